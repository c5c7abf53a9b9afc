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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
)

func TestSummaryStoreAccumulates(t *testing.T) {
	s := NewSummaryStore(WithSummaryClock(clockz.NewFakeClockAt(epoch)))
	tags := map[string]string{"route": "/a"}

	s.ObserveMetric("span-1", Counter, "requests", 2, "none", tags, "c|requests|none|route=/a")
	s.ObserveMetric("span-1", Counter, "requests", 5, "none", tags, "c|requests|none|route=/a")
	s.ObserveMetric("span-1", Counter, "requests", 1, "none", nil, "c|requests|none|")
	s.ObserveMetric("span-1", Distribution, "latency", 12.5, "millisecond", nil, "d|latency|millisecond|")
	s.ObserveMetric("span-2", Counter, "requests", 1, "none", nil, "c|requests|none|")
	s.ObserveMetric("", Counter, "requests", 1, "none", nil, "c|requests|none|")
	assert.Equal(t, 2, s.Len())

	assert.Equal(t, map[string][]Summary{
		"c:requests@none": {
			{Min: 2, Max: 5, Sum: 7, Count: 2, Tags: tags},
			{Min: 1, Max: 1, Sum: 1, Count: 1},
		},
		"d:latency@millisecond": {
			{Min: 12.5, Max: 12.5, Sum: 12.5, Count: 1},
		},
	}, s.TakeSummary("span-1"))

	assert.Nil(t, s.TakeSummary("span-1"))
	assert.Equal(t, 1, s.Len())
}

func TestSummaryStorePrunesIdleSpans(t *testing.T) {
	clk := clockz.NewFakeClockAt(epoch)
	s := NewSummaryStore(WithSummaryClock(clk), WithSummaryMaxAge(5 * time.Minute))

	s.ObserveMetric("idle", Counter, "c", 1, "none", nil, "k")
	clk.Advance(4 * time.Minute)
	s.ObserveMetric("busy", Counter, "c", 1, "none", nil, "k")
	require.Equal(t, 2, s.Len())

	clk.Advance(2 * time.Minute)
	s.ObserveMetric("busy", Counter, "c", 1, "none", nil, "k")
	assert.Equal(t, 1, s.Len())
	assert.Nil(t, s.TakeSummary("idle"))
	assert.Equal(t, 2, s.TakeSummary("busy")["c:c@none"][0].Count)
}

func TestAggregatorFeedsSummaryStore(t *testing.T) {
	store := NewSummaryStore(WithSummaryClock(clockz.NewFakeClockAt(epoch)))
	a, _, _ := newTestAggregator(t, WithSummaryObserver(store))

	span := map[string]any{SpanTag: "root"}
	a.Add(Counter, "requests", 1, "", span, epoch)
	a.Add(Counter, "requests", 4, "", span, epoch)
	a.Add(Set, "users", "alice", "", span, epoch)
	a.Add(Set, "users", "alice", "", span, epoch)
	a.Add(Counter, "requests", 1, "", nil, epoch)

	assert.Equal(t, map[string][]Summary{
		"c:requests@none": {{Min: 1, Max: 4, Sum: 5, Count: 2, Tags: map[string]string{}}},
		"s:users@none":    {{Min: 0, Max: 1, Sum: 1, Count: 2, Tags: map[string]string{}}},
	}, store.TakeSummary("root"))
}
