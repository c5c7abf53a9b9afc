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

package receiver

import (
	"errors"
	"fmt"
	"time"

	"github.com/elastic/apm-telemetry-buffer/spanexport"
	"github.com/tidwall/gjson"
)

// ParseSpan decodes one JSON span object. Times are either Unix
// nanoseconds or RFC 3339 strings.
func ParseSpan(raw []byte) (*spanexport.SpanRecord, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("invalid JSON")
	}
	doc := gjson.ParseBytes(raw)

	span := &spanexport.SpanRecord{
		TraceID:        doc.Get("trace_id").String(),
		SpanID:         doc.Get("span_id").String(),
		ParentSpanID:   doc.Get("parent_span_id").String(),
		ParentIsRemote: doc.Get("parent_is_remote").Bool(),
		Name:           doc.Get("name").String(),
		Kind:           spanexport.ParseSpanKind(doc.Get("kind").String()),
		Attributes:     objectValue(doc.Get("attributes")),
		Resource:       objectValue(doc.Get("resource")),
	}
	if span.SpanID == "" {
		return nil, errors.New("missing span_id")
	}

	var err error
	if span.StartTime, err = parseTime(doc.Get("start_time")); err != nil {
		return nil, fmt.Errorf("start_time: %w", err)
	}
	if span.StartTime.IsZero() {
		return nil, errors.New("missing start_time")
	}
	if span.EndTime, err = parseTime(doc.Get("end_time")); err != nil {
		return nil, fmt.Errorf("end_time: %w", err)
	}

	switch doc.Get("status.code").String() {
	case "ok", "OK":
		span.Status.Code = spanexport.StatusOK
	case "error", "ERROR":
		span.Status.Code = spanexport.StatusError
	}
	span.Status.Message = doc.Get("status.message").String()

	for _, e := range doc.Get("events").Array() {
		t, err := parseTime(e.Get("time"))
		if err != nil {
			return nil, fmt.Errorf("event %q: %w", e.Get("name").String(), err)
		}
		span.Events = append(span.Events, spanexport.TimedEvent{
			Name:       e.Get("name").String(),
			Time:       t,
			Attributes: objectValue(e.Get("attributes")),
		})
	}
	return span, nil
}

func parseTime(r gjson.Result) (time.Time, error) {
	switch r.Type {
	case gjson.Null:
		return time.Time{}, nil
	case gjson.Number:
		if r.Int() == 0 {
			return time.Time{}, nil
		}
		return time.Unix(0, r.Int()), nil
	case gjson.String:
		return time.Parse(time.RFC3339Nano, r.Str)
	}
	return time.Time{}, fmt.Errorf("unsupported time %s", r.Raw)
}

func objectValue(r gjson.Result) map[string]any {
	if !r.IsObject() {
		return nil
	}
	m, _ := r.Value().(map[string]any)
	return m
}
