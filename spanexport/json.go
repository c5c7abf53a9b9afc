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
	"sort"

	"github.com/elastic/apm-telemetry-buffer/metrics"
	"go.elastic.co/fastjson"
)

func (e *TransactionEvent) MarshalFastJSON(w *fastjson.Writer) error {
	var firstErr error
	w.RawString(`{"event_id":`)
	w.String(e.EventID)
	w.RawString(`,"type":"transaction","transaction":`)
	w.String(e.Transaction)
	if e.Source != "" {
		w.RawString(`,"transaction_info":{"source":`)
		w.String(e.Source)
		w.RawByte('}')
	}
	w.RawString(`,"start_timestamp":`)
	w.Float64(e.StartTimestamp)
	w.RawString(`,"timestamp":`)
	w.Float64(e.Timestamp)

	w.RawString(`,"contexts":{"trace":`)
	if err := e.Trace.MarshalFastJSON(w); err != nil && firstErr == nil {
		firstErr = err
	}
	w.RawString(`,"otel":{"attributes":`)
	if err := marshalMap(w, e.OtelAttributes); err != nil && firstErr == nil {
		firstErr = err
	}
	w.RawString(`,"resource":`)
	if err := marshalMap(w, e.OtelResource); err != nil && firstErr == nil {
		firstErr = err
	}
	w.RawString(`}}`)

	w.RawString(`,"spans":[`)
	for i := range e.Spans {
		if i > 0 {
			w.RawByte(',')
		}
		if err := e.Spans[i].MarshalFastJSON(w); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	w.RawByte(']')

	if len(e.Measurements) > 0 {
		w.RawString(`,"measurements":{`)
		for i, name := range sortedKeys(e.Measurements) {
			if i > 0 {
				w.RawByte(',')
			}
			m := e.Measurements[name]
			w.String(name)
			w.RawString(`:{"value":`)
			w.Float64(m.Value)
			w.RawString(`,"unit":`)
			w.String(m.Unit)
			w.RawByte('}')
		}
		w.RawByte('}')
	}
	writeMetricsSummary(w, e.MetricsSummary)
	w.RawByte('}')
	return firstErr
}

func (c *TraceContext) MarshalFastJSON(w *fastjson.Writer) error {
	w.RawString(`{"trace_id":`)
	w.String(c.TraceID)
	w.RawString(`,"span_id":`)
	w.String(c.SpanID)
	if c.ParentSpanID != "" {
		w.RawString(`,"parent_span_id":`)
		w.String(c.ParentSpanID)
	}
	writeOptionalString(w, "op", c.Op)
	writeOptionalString(w, "origin", c.Origin)
	writeOptionalString(w, "status", c.Status)
	w.RawString(`,"data":`)
	err := marshalMap(w, c.Data)
	w.RawByte('}')
	return err
}

func (s *SpanJSON) MarshalFastJSON(w *fastjson.Writer) error {
	w.RawString(`{"span_id":`)
	w.String(s.SpanID)
	w.RawString(`,"trace_id":`)
	w.String(s.TraceID)
	writeOptionalString(w, "parent_span_id", s.ParentSpanID)
	writeOptionalString(w, "description", s.Description)
	writeOptionalString(w, "op", s.Op)
	writeOptionalString(w, "origin", s.Origin)
	writeOptionalString(w, "status", s.Status)
	w.RawString(`,"data":`)
	err := marshalMap(w, s.Data)
	w.RawString(`,"start_timestamp":`)
	w.Float64(s.StartTimestamp)
	if s.Timestamp != 0 {
		w.RawString(`,"timestamp":`)
		w.Float64(s.Timestamp)
	}
	writeMetricsSummary(w, s.MetricsSummary)
	w.RawByte('}')
	return err
}

// writeMetricsSummary writes the "_metrics_summary" member, if any.
func writeMetricsSummary(w *fastjson.Writer, summary map[string][]metrics.Summary) {
	if len(summary) == 0 {
		return
	}
	w.RawString(`,"_metrics_summary":{`)
	for i, key := range sortedKeys(summary) {
		if i > 0 {
			w.RawByte(',')
		}
		w.String(key)
		w.RawString(`:[`)
		for j, s := range summary[key] {
			if j > 0 {
				w.RawByte(',')
			}
			w.RawString(`{"min":`)
			w.Float64(s.Min)
			w.RawString(`,"max":`)
			w.Float64(s.Max)
			w.RawString(`,"count":`)
			w.Int64(int64(s.Count))
			w.RawString(`,"sum":`)
			w.Float64(s.Sum)
			if len(s.Tags) > 0 {
				w.RawString(`,"tags":{`)
				for k, tag := range sortedKeys(s.Tags) {
					if k > 0 {
						w.RawByte(',')
					}
					w.String(tag)
					w.RawByte(':')
					w.String(s.Tags[tag])
				}
				w.RawByte('}')
			}
			w.RawByte('}')
		}
		w.RawByte(']')
	}
	w.RawByte('}')
}

func writeOptionalString(w *fastjson.Writer, key, value string) {
	if value == "" {
		return
	}
	w.RawString(`,"`)
	w.RawString(key)
	w.RawString(`":`)
	w.String(value)
}

// marshalMap writes m with its keys sorted so output is stable.
func marshalMap(w *fastjson.Writer, m map[string]any) error {
	var firstErr error
	w.RawByte('{')
	for i, k := range sortedKeys(m) {
		if i > 0 {
			w.RawByte(',')
		}
		w.String(k)
		w.RawByte(':')
		if err := fastjson.Marshal(w, m[k]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	w.RawByte('}')
	return firstErr
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
