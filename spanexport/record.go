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

import "time"

// Attribute keys carried on span records for the exporter itself. The
// sample rate and remote parent markers never leave the process.
const (
	AttributeOp               = "telemetry.op"
	AttributeOrigin           = "telemetry.origin"
	AttributeSource           = "telemetry.source"
	AttributeSampleRate       = "telemetry.sample_rate"
	AttributeParentIsRemote   = "telemetry.parent_is_remote"
	AttributeMeasurementUnit  = "telemetry.measurement_unit"
	AttributeMeasurementValue = "telemetry.measurement_value"
)

type SpanKind int

const (
	KindInternal SpanKind = iota
	KindServer
	KindClient
	KindProducer
	KindConsumer
)

func (k SpanKind) String() string {
	switch k {
	case KindServer:
		return "SERVER"
	case KindClient:
		return "CLIENT"
	case KindProducer:
		return "PRODUCER"
	case KindConsumer:
		return "CONSUMER"
	}
	return "INTERNAL"
}

// ParseSpanKind is the inverse of SpanKind.String. Unknown names map to
// KindInternal.
func ParseSpanKind(s string) SpanKind {
	switch s {
	case "SERVER", "server":
		return KindServer
	case "CLIENT", "client":
		return KindClient
	case "PRODUCER", "producer":
		return KindProducer
	case "CONSUMER", "consumer":
		return KindConsumer
	}
	return KindInternal
}

type StatusCode int

const (
	StatusUnset StatusCode = iota
	StatusOK
	StatusError
)

type Status struct {
	Code    StatusCode
	Message string
}

// TimedEvent is a point-in-time annotation recorded on a span.
type TimedEvent struct {
	Name       string
	Time       time.Time
	Attributes map[string]any
}

// SpanRecord is a finished span as handed to the Exporter. Records are
// never modified after Export.
type SpanRecord struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	// ParentIsRemote marks a parent that lives in another process.
	ParentIsRemote bool

	Name      string
	Kind      SpanKind
	StartTime time.Time
	// EndTime is zero while the span is still open.
	EndTime time.Time
	Status  Status

	Attributes map[string]any
	Resource   map[string]any
	Events     []TimedEvent
}

// localParentID returns the parent span id when the parent belongs to
// this process, or "" otherwise.
func (s *SpanRecord) localParentID() string {
	if s.ParentSpanID == "" || s.ParentSpanID == s.SpanID || s.ParentIsRemote {
		return ""
	}
	if remote, ok := s.Attributes[AttributeParentIsRemote].(bool); ok && remote {
		return ""
	}
	return s.ParentSpanID
}
