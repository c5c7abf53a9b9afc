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
	"math"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Metric is the mutable aggregate held by a bucket.
type Metric interface {
	// Weight approximates the memory held by the aggregate.
	Weight() int
	// String renders the aggregate as statsd values.
	String() string

	add(v any) bool
}

// CounterMetric sums every emitted value.
type CounterMetric struct {
	Value float64
}

func (m *CounterMetric) Weight() int    { return 1 }
func (m *CounterMetric) String() string { return formatFloat(m.Value) }

func (m *CounterMetric) add(v any) bool {
	f, ok := numeric(v)
	if ok {
		m.Value += f
	}
	return ok
}

// GaugeMetric keeps the last value and running min, max, sum and count.
type GaugeMetric struct {
	Last, Min, Max, Sum float64
	Count               int
}

func (m *GaugeMetric) Weight() int { return 5 }

func (m *GaugeMetric) String() string {
	return strings.Join([]string{
		formatFloat(m.Last),
		formatFloat(m.Min),
		formatFloat(m.Max),
		formatFloat(m.Sum),
		strconv.Itoa(m.Count),
	}, ":")
}

func (m *GaugeMetric) add(v any) bool {
	f, ok := numeric(v)
	if !ok {
		return false
	}
	if m.Count == 0 {
		m.Min, m.Max = f, f
	}
	m.Last = f
	m.Min = math.Min(m.Min, f)
	m.Max = math.Max(m.Max, f)
	m.Sum += f
	m.Count++
	return true
}

// DistributionMetric keeps every emitted value in arrival order.
type DistributionMetric struct {
	Values []float64
}

func (m *DistributionMetric) Weight() int { return len(m.Values) }

func (m *DistributionMetric) String() string {
	parts := make([]string, len(m.Values))
	for i, v := range m.Values {
		parts[i] = formatFloat(v)
	}
	return strings.Join(parts, ":")
}

func (m *DistributionMetric) add(v any) bool {
	f, ok := numeric(v)
	if ok {
		m.Values = append(m.Values, f)
	}
	return ok
}

// SetMetric keeps the distinct members emitted. Members are either
// int64 or string; numeric values are truncated before they are compared.
type SetMetric struct {
	members map[any]struct{}
	order   []any
}

func (m *SetMetric) Weight() int { return len(m.order) }

// Members returns the distinct members in first-seen order.
func (m *SetMetric) Members() []any {
	return append([]any(nil), m.order...)
}

// String renders numeric members as integers and string members as
// their 32 bit hash.
func (m *SetMetric) String() string {
	parts := make([]string, len(m.order))
	for i, member := range m.order {
		switch member := member.(type) {
		case string:
			parts[i] = strconv.FormatUint(uint64(hashMember(member)), 10)
		case int64:
			parts[i] = strconv.FormatInt(member, 10)
		}
	}
	return strings.Join(parts, ":")
}

func (m *SetMetric) add(v any) bool {
	var member any
	if s, ok := v.(string); ok {
		member = s
	} else if f, ok := numeric(v); ok && f >= math.MinInt64 && f < math.MaxInt64 {
		member = int64(f)
	} else {
		return false
	}
	if m.members == nil {
		m.members = make(map[any]struct{})
	}
	if _, seen := m.members[member]; !seen {
		m.members[member] = struct{}{}
		m.order = append(m.order, member)
	}
	return true
}

func hashMember(s string) uint32 {
	return uint32(xxhash.Sum64String(s))
}

func newMetric(t Type) Metric {
	switch t {
	case Counter:
		return &CounterMetric{}
	case Gauge:
		return &GaugeMetric{}
	case Distribution:
		return &DistributionMetric{}
	case Set:
		return &SetMetric{}
	}
	return nil
}
