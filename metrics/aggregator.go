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
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// Aggregator merges metric emissions into buckets and flushes them to a
// Capturer. A bucket is flushed by the schedule once it has not been
// updated for the flush interval plus a per-instance shift. The shift is
// drawn once so that many processes started together do not flush in
// lockstep.
//
// Scheduled flushes run on a background goroutine driven by a ticker
// from the configured clock. All methods are safe for concurrent use.
// Captures happen outside the internal lock.
type Aggregator struct {
	mu          sync.Mutex
	buckets     map[string]*Bucket
	totalWeight int
	// flushShift is in whole seconds, within [0, flush interval).
	flushShift int64
	forceFlush bool
	closed     bool
	done       chan struct{}
	wg         sync.WaitGroup

	capturer      Capturer
	clock         clockz.Clock
	logger        *zap.SugaredLogger
	flushInterval time.Duration
	maxWeight     int
	observer      SummaryObserver
}

// New returns a running Aggregator. Close must be called to stop the
// flush schedule and capture what is left.
func New(capturer Capturer, opts ...Option) *Aggregator {
	a := &Aggregator{
		buckets:       make(map[string]*Bucket),
		capturer:      capturer,
		clock:         clockz.RealClock,
		done:          make(chan struct{}),
		logger:        zap.NewNop().Sugar(),
		flushInterval: DefaultFlushInterval,
		maxWeight:     DefaultMaxWeight,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.flushInterval < time.Second {
		a.flushInterval = time.Second
	}
	a.flushShift = rand.Int63n(a.intervalSeconds()) //nolint:gosec

	a.wg.Add(1)
	go a.run(a.clock.NewTicker(a.flushInterval))
	return a
}

func (a *Aggregator) run(ticker clockz.Ticker) {
	defer a.wg.Done()
	defer ticker.Stop()
	for {
		select {
		case <-a.done:
			return
		case <-ticker.C():
			a.scheduledFlush()
		}
	}
}

// Add merges one emission into its bucket. A zero timestamp means now.
// Invalid input never fails: names and tags are sanitized, and values
// that cannot feed the metric type are dropped.
func (a *Aggregator) Add(metricType Type, name string, value any, unit string, tags map[string]any, timestamp time.Time) {
	if !metricType.valid() {
		a.logger.Debugf("Dropping metric %q with unknown type %q", name, metricType)
		return
	}
	if timestamp.IsZero() {
		timestamp = a.clock.Now()
	}
	spanID, tags := splitSpanTag(tags)
	name = SanitizeName(name)
	unit = SanitizeUnit(unit)
	sanitized := SanitizeTags(tags)
	key := BucketKey(metricType, name, unit, sanitized)
	seconds := timestamp.Unix()

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		a.logger.Warnf("Metric %q added after the aggregator was closed", name)
		return
	}

	previousWeight := 0
	bucket, ok := a.buckets[key]
	if ok {
		previousWeight = bucket.Metric.Weight()
		if !bucket.Metric.add(value) {
			a.mu.Unlock()
			a.logger.Debugf("Dropping value %v for metric %q of type %q", value, name, metricType)
			return
		}
		if seconds > bucket.Timestamp {
			bucket.Timestamp = seconds
		}
	} else {
		m := newMetric(metricType)
		if !m.add(value) {
			a.mu.Unlock()
			a.logger.Debugf("Dropping value %v for metric %q of type %q", value, name, metricType)
			return
		}
		bucket = &Bucket{
			Key:       key,
			Type:      metricType,
			Name:      name,
			Unit:      unit,
			Tags:      sanitized,
			Metric:    m,
			Timestamp: seconds,
		}
		a.buckets[key] = bucket
	}

	delta := bucket.Metric.Weight() - previousWeight
	a.totalWeight += delta

	var flushed []*Bucket
	if a.totalWeight >= a.maxWeight {
		a.logger.Debugf("Total metric weight %d reached %d, forcing flush", a.totalWeight, a.maxWeight)
		a.forceFlush = true
		flushed = a.collectLocked()
	}
	a.mu.Unlock()

	if a.observer != nil {
		observed, _ := numeric(value)
		if metricType == Set {
			observed = float64(delta)
		}
		a.observer.ObserveMetric(spanID, metricType, name, observed, unit, sanitized, key)
	}
	a.capture(flushed)
}

// Flush captures every bucket regardless of age.
func (a *Aggregator) Flush() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.forceFlush = true
	flushed := a.collectLocked()
	a.mu.Unlock()

	a.capture(flushed)
}

// Close stops the flush schedule and captures every remaining bucket.
// Further calls to Add are dropped; Close and Flush become no-ops.
func (a *Aggregator) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.forceFlush = true
	flushed := a.collectLocked()
	a.mu.Unlock()

	close(a.done)
	a.wg.Wait()
	a.capture(flushed)
}

// TotalWeight returns the summed weight of all buckets in the store.
func (a *Aggregator) TotalWeight() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalWeight
}

// Len returns the number of buckets in the store.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buckets)
}

func (a *Aggregator) scheduledFlush() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	flushed := a.collectLocked()
	a.mu.Unlock()

	a.capture(flushed)
}

// collectLocked removes the buckets due for capture from the store and
// keeps totalWeight in step. Must be called with a.mu held.
func (a *Aggregator) collectLocked() []*Bucket {
	var flushed []*Bucket
	if a.forceFlush {
		a.forceFlush = false
		a.totalWeight = 0
		flushed = make([]*Bucket, 0, len(a.buckets))
		for _, b := range a.buckets {
			flushed = append(flushed, b)
		}
		clear(a.buckets)
	} else {
		cutoff := a.clock.Now().Unix() - a.intervalSeconds() - a.flushShift
		for key, b := range a.buckets {
			if b.Timestamp <= cutoff {
				flushed = append(flushed, b)
				a.totalWeight -= b.Metric.Weight()
				delete(a.buckets, key)
			}
		}
	}
	sort.Slice(flushed, func(i, j int) bool { return flushed[i].Key < flushed[j].Key })
	return flushed
}

func (a *Aggregator) capture(buckets []*Bucket) {
	if len(buckets) == 0 || a.capturer == nil {
		return
	}
	a.logger.Debugf("Capturing %d metric buckets", len(buckets))
	a.capturer.CaptureAggregatedMetrics(buckets)
}

func (a *Aggregator) intervalSeconds() int64 {
	return int64(a.flushInterval / time.Second)
}
