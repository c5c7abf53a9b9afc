// Licensed to Elasticsearch B.V. under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. Elasticsearch B.V. licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package spanexport

import (
	"strconv"
)

const (
	attributeHTTPStatusCode = "http.status_code"
	attributeGRPCStatusCode = "rpc.grpc.status_code"
)

const (
	statusOK           = "ok"
	statusUnknownError = "unknown_error"
)

var canonicalStatuses = map[string]struct{}{
	"ok":                  {},
	"cancelled":           {},
	"unknown":             {},
	"invalid_argument":    {},
	"deadline_exceeded":   {},
	"not_found":           {},
	"already_exists":      {},
	"permission_denied":   {},
	"resource_exhausted":  {},
	"failed_precondition": {},
	"aborted":             {},
	"out_of_range":        {},
	"unimplemented":       {},
	"internal_error":      {},
	"unavailable":         {},
	"data_loss":           {},
	"unauthenticated":     {},
}

// grpc status codes 1..16 in order.
var grpcStatuses = [...]string{
	"ok",
	"cancelled",
	"unknown",
	"invalid_argument",
	"deadline_exceeded",
	"not_found",
	"already_exists",
	"permission_denied",
	"resource_exhausted",
	"failed_precondition",
	"aborted",
	"out_of_range",
	"unimplemented",
	"internal_error",
	"unavailable",
	"data_loss",
	"unauthenticated",
}

// mapStatus resolves the status name reported for a span.
func mapStatus(s *SpanRecord) string {
	httpCode, hasHTTP := intAttribute(s.Attributes, attributeHTTPStatusCode)
	grpcCode, hasGRPC := intAttribute(s.Attributes, attributeGRPCStatusCode)

	switch s.Status.Code {
	case StatusOK:
		return statusOK
	case StatusError:
		if _, ok := canonicalStatuses[s.Status.Message]; ok {
			return s.Status.Message
		}
		if hasHTTP {
			return statusFromHTTPCode(httpCode)
		}
		if hasGRPC {
			return statusFromGRPCCode(grpcCode)
		}
		return statusUnknownError
	}

	if hasHTTP {
		return statusFromHTTPCode(httpCode)
	}
	if hasGRPC {
		return statusFromGRPCCode(grpcCode)
	}
	return statusOK
}

func statusFromHTTPCode(code int) string {
	if code < 400 && code >= 100 {
		return statusOK
	}
	if code >= 400 && code < 500 {
		switch code {
		case 401:
			return "unauthenticated"
		case 403:
			return "permission_denied"
		case 404:
			return "not_found"
		case 409:
			return "already_exists"
		case 413:
			return "failed_precondition"
		case 429:
			return "resource_exhausted"
		case 499:
			return "cancelled"
		}
		return "invalid_argument"
	}
	if code >= 500 && code < 600 {
		switch code {
		case 501:
			return "unimplemented"
		case 503:
			return "unavailable"
		case 504:
			return "deadline_exceeded"
		}
		return "internal_error"
	}
	return statusUnknownError
}

func statusFromGRPCCode(code int) string {
	if code < 0 || code >= len(grpcStatuses) {
		return statusUnknownError
	}
	return grpcStatuses[code]
}

func intAttribute(attrs map[string]any, key string) (int, bool) {
	switch v := attrs[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

func stringAttribute(attrs map[string]any, key string) (string, bool) {
	v, ok := attrs[key].(string)
	return v, ok && v != ""
}
