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

// Package metrics aggregates counter, gauge, distribution and set
// emissions into time-bucketed aggregates and hands them to a Capturer
// on a jittered schedule, when the store grows too heavy, or on demand.
package metrics

import "time"

// Type is the statsd type of a metric.
type Type string

const (
	Counter      Type = "c"
	Gauge        Type = "g"
	Distribution Type = "d"
	Set          Type = "s"
)

const (
	// DefaultFlushInterval is the period of the scheduled flush and the
	// minimum age of a bucket before a scheduled flush picks it up.
	DefaultFlushInterval = 10 * time.Second
	// DefaultMaxWeight is the total bucket weight at which the whole
	// store is flushed ahead of schedule.
	DefaultMaxWeight = 10000

	defaultUnit = "none"
)

func (t Type) valid() bool {
	switch t {
	case Counter, Gauge, Distribution, Set:
		return true
	}
	return false
}

// Capturer receives buckets removed from the store. Implementations
// must not block: the aggregator does not wait on the outcome.
type Capturer interface {
	CaptureAggregatedMetrics(buckets []*Bucket)
}

// CapturerFunc adapts a function to the Capturer interface.
type CapturerFunc func(buckets []*Bucket)

// CaptureAggregatedMetrics calls f(buckets).
func (f CapturerFunc) CaptureAggregatedMetrics(buckets []*Bucket) { f(buckets) }

// SummaryObserver is told about every accepted emission so that the
// span it was made in can keep a per-span metric summary. spanID is the
// value of the SpanTag tag, empty when the emission carried none. For
// sets, value is the weight the emission added rather than the member
// itself.
type SummaryObserver interface {
	ObserveMetric(spanID string, metricType Type, name string, value float64, unit string, tags map[string]string, bucketKey string)
}
