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

package metrics

import (
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// SpanTag is the reserved tag naming the span an emission was made in.
// It is removed before the bucket key is built and only feeds the
// SummaryObserver.
const SpanTag = "telemetry.span_id"

// DefaultSummaryMaxAge is how long a span's summaries are kept when the
// span is never exported.
const DefaultSummaryMaxAge = 5 * time.Minute

const summaryPruneEvery = time.Minute

// Summary condenses the emissions a span made to one bucket.
type Summary struct {
	Min   float64
	Max   float64
	Sum   float64
	Count int
	Tags  map[string]string
}

type summaryEntry struct {
	exportKey string
	summary   Summary
}

type spanSummaries struct {
	updated time.Time
	// bucket keys in first-seen order
	keys    []string
	entries map[string]*summaryEntry
}

// SummaryStore keeps a metric summary per span. It implements
// SummaryObserver; summaries are handed out once with TakeSummary.
type SummaryStore struct {
	mu        sync.Mutex
	spans     map[string]*spanSummaries
	lastPrune time.Time

	clock  clockz.Clock
	maxAge time.Duration
}

// SummaryOption configures a SummaryStore.
type SummaryOption func(*SummaryStore)

// WithSummaryClock sets the clock used to expire summaries.
func WithSummaryClock(c clockz.Clock) SummaryOption {
	return func(s *SummaryStore) {
		s.clock = c
	}
}

// WithSummaryMaxAge sets how long summaries of a span that is never
// taken are kept after their last update.
func WithSummaryMaxAge(d time.Duration) SummaryOption {
	return func(s *SummaryStore) {
		if d > 0 {
			s.maxAge = d
		}
	}
}

func NewSummaryStore(opts ...SummaryOption) *SummaryStore {
	s := &SummaryStore{
		spans:  make(map[string]*spanSummaries),
		clock:  clockz.RealClock,
		maxAge: DefaultSummaryMaxAge,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastPrune = s.clock.Now()
	return s
}

// ObserveMetric records one emission against spanID. Emissions outside
// of a span are ignored.
func (s *SummaryStore) ObserveMetric(spanID string, metricType Type, name string, value float64, unit string, tags map[string]string, bucketKey string) {
	if spanID == "" {
		return
	}
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastPrune) >= summaryPruneEvery {
		s.pruneLocked(now)
	}

	span, ok := s.spans[spanID]
	if !ok {
		span = &spanSummaries{entries: make(map[string]*summaryEntry)}
		s.spans[spanID] = span
	}
	span.updated = now

	entry, ok := span.entries[bucketKey]
	if !ok {
		span.entries[bucketKey] = &summaryEntry{
			exportKey: string(metricType) + ":" + name + "@" + unit,
			summary:   Summary{Min: value, Max: value, Sum: value, Count: 1, Tags: tags},
		}
		span.keys = append(span.keys, bucketKey)
		return
	}
	entry.summary.Min = min(entry.summary.Min, value)
	entry.summary.Max = max(entry.summary.Max, value)
	entry.summary.Sum += value
	entry.summary.Count++
}

// TakeSummary removes and returns the summaries recorded for spanID,
// grouped by "type:name@unit". It returns nil when there are none.
func (s *SummaryStore) TakeSummary(spanID string) map[string][]Summary {
	s.mu.Lock()
	span, ok := s.spans[spanID]
	delete(s.spans, spanID)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	out := make(map[string][]Summary)
	for _, key := range span.keys {
		entry := span.entries[key]
		out[entry.exportKey] = append(out[entry.exportKey], entry.summary)
	}
	return out
}

// Len returns the number of spans with recorded summaries.
func (s *SummaryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spans)
}

func (s *SummaryStore) pruneLocked(now time.Time) {
	s.lastPrune = now
	cutoff := now.Add(-s.maxAge)
	for id, span := range s.spans {
		if span.updated.Before(cutoff) {
			delete(s.spans, id)
		}
	}
}

// splitSpanTag returns the value of SpanTag and the remaining tags. The
// caller's map is not modified.
func splitSpanTag(tags map[string]any) (string, map[string]any) {
	v, ok := tags[SpanTag]
	if !ok {
		return "", tags
	}
	rest := make(map[string]any, len(tags)-1)
	for k, val := range tags {
		if k != SpanTag {
			rest[k] = val
		}
	}
	spanID, _ := primitiveString(v)
	return spanID, rest
}
