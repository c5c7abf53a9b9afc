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
	"math"
	"strings"
	"time"

	"github.com/elastic/apm-telemetry-buffer/metrics"
	"github.com/google/uuid"
)

const defaultOrigin = "manual"

// TransactionEvent is the exported form of a complete span tree: the
// root span plus every descendant flattened in pre-order.
type TransactionEvent struct {
	EventID        string
	Transaction    string
	Source         string
	StartTimestamp float64
	Timestamp      float64
	Trace          TraceContext
	OtelAttributes map[string]any
	OtelResource   map[string]any
	Spans          []SpanJSON
	Measurements   map[string]Measurement
	MetricsSummary map[string][]metrics.Summary
}

type TraceContext struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Op           string
	Origin       string
	Status       string
	Data         map[string]any
}

// SpanJSON is a child span of a transaction. A zero Timestamp means the
// span had no end time.
type SpanJSON struct {
	SpanID         string
	TraceID        string
	ParentSpanID   string
	Description    string
	Op             string
	Origin         string
	Status         string
	Data           map[string]any
	StartTimestamp float64
	Timestamp      float64
	MetricsSummary map[string][]metrics.Summary
}

type Measurement struct {
	Value float64
	Unit  string
}

type spanData struct {
	spanDescription
	origin string
	data   map[string]any
}

func resolveSpanData(s *SpanRecord) spanData {
	d := spanData{spanDescription: describeSpan(s), origin: defaultOrigin}
	if op, ok := stringAttribute(s.Attributes, AttributeOp); ok {
		d.op = op
	}
	if source, ok := stringAttribute(s.Attributes, AttributeSource); ok {
		d.source = source
	}
	if origin, ok := stringAttribute(s.Attributes, AttributeOrigin); ok {
		d.origin = origin
	}

	d.data = requestData(s.Attributes)
	d.data["otel.kind"] = s.Kind.String()
	if code, ok := s.Attributes[attributeHTTPStatusCode]; ok && code != nil {
		d.data["http.response.status_code"] = code
	}
	return d
}

// NewTransactionEvent builds the transaction for a root span. Spans and
// measurements are filled in by the caller.
func NewTransactionEvent(root *SpanRecord) *TransactionEvent {
	d := resolveSpanData(root)

	data := make(map[string]any)
	if d.source != "" {
		data[AttributeSource] = d.source
	}
	if rate, ok := root.Attributes[AttributeSampleRate]; ok {
		data[AttributeSampleRate] = rate
	}
	if d.op != "" {
		data[AttributeOp] = d.op
	}
	data[AttributeOrigin] = d.origin
	mergeInto(data, d.data)
	mergeInto(data, publicAttributes(root.Attributes))

	start := toSeconds(root.StartTime)
	end, ok := endSeconds(root)
	if !ok {
		end = start
	}

	return &TransactionEvent{
		EventID:        newEventID(),
		Transaction:    d.description,
		Source:         d.source,
		StartTimestamp: start,
		Timestamp:      end,
		Trace: TraceContext{
			TraceID:      root.TraceID,
			SpanID:       root.SpanID,
			ParentSpanID: root.ParentSpanID,
			Op:           d.op,
			Origin:       d.origin,
			Status:       mapStatus(root),
			Data:         data,
		},
		OtelAttributes: publicAttributes(root.Attributes),
		OtelResource:   root.Resource,
	}
}

// NewSpanJSON builds the child span entry for s.
func NewSpanJSON(s *SpanRecord) SpanJSON {
	d := resolveSpanData(s)

	data := map[string]any{AttributeOrigin: d.origin}
	if d.op != "" {
		data[AttributeOp] = d.op
	}
	mergeInto(data, publicAttributes(s.Attributes))
	mergeInto(data, d.data)

	end, _ := endSeconds(s)
	return SpanJSON{
		SpanID:         s.SpanID,
		TraceID:        s.TraceID,
		ParentSpanID:   s.ParentSpanID,
		Description:    d.description,
		Op:             d.op,
		Origin:         d.origin,
		Status:         mapStatus(s),
		Data:           data,
		StartTimestamp: toSeconds(s.StartTime),
		Timestamp:      end,
	}
}

// measurementsFromEvents folds timed events that carry a measurement
// unit and value into a map keyed by event name. Spans without a
// usable end time produce no measurements.
func measurementsFromEvents(s *SpanRecord) map[string]Measurement {
	if s.EndTime.IsZero() || s.EndTime.Before(s.StartTime) {
		return nil
	}
	var measurements map[string]Measurement
	for _, event := range s.Events {
		unit, ok := event.Attributes[AttributeMeasurementUnit].(string)
		if !ok {
			continue
		}
		value, ok := floatValue(event.Attributes[AttributeMeasurementValue])
		if !ok || math.IsNaN(value) || math.IsInf(value, 0) {
			continue
		}
		if measurements == nil {
			measurements = make(map[string]Measurement)
		}
		measurements[event.Name] = Measurement{Value: value, Unit: unit}
	}
	return measurements
}

// publicAttributes copies attrs without the keys that only matter
// inside the process.
func publicAttributes(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if k == AttributeSampleRate || k == AttributeParentIsRemote {
			continue
		}
		out[k] = v
	}
	return out
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}

func toSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// endSeconds returns the end of s in seconds. An end before the start
// is reported as the start.
func endSeconds(s *SpanRecord) (float64, bool) {
	if s.EndTime.IsZero() {
		return 0, false
	}
	if s.EndTime.Before(s.StartTime) {
		return toSeconds(s.StartTime), true
	}
	return toSeconds(s.EndTime), true
}

func floatValue(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	}
	return 0, false
}

func newEventID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
