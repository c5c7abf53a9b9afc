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
	"sync"
	"time"

	"github.com/elastic/apm-telemetry-buffer/metrics"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

type EventCapturer interface {
	CaptureEvent(event *TransactionEvent)
}

type EventCapturerFunc func(event *TransactionEvent)

func (f EventCapturerFunc) CaptureEvent(event *TransactionEvent) {
	f(event)
}

// SummarySource hands out, once, the metric summaries recorded for a
// span.
type SummarySource interface {
	TakeSummary(spanID string) map[string][]metrics.Summary
}

// Exporter buffers finished spans until the root of their tree is
// known, then sends the whole tree as one TransactionEvent. Spans whose
// root never shows up are dropped once they are older than the
// staleness window.
type Exporter struct {
	mu       sync.Mutex
	finished []*SpanRecord
	timer    clockz.Timer
	flushing sync.WaitGroup

	capturer   EventCapturer
	summaries  SummarySource
	clock      clockz.Clock
	logger     *zap.SugaredLogger
	staleAfter time.Duration
	debounce   time.Duration
}

func New(capturer EventCapturer, opts ...Option) *Exporter {
	e := &Exporter{
		capturer:   capturer,
		clock:      clockz.RealClock,
		logger:     zap.NewNop().Sugar(),
		staleAfter: DefaultStaleAfter,
		debounce:   DefaultDebounce,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export adds a finished span to the buffer. When its parent is already
// buffered nothing can be sent yet. Otherwise the span may complete a
// tree and a flush is scheduled after the debounce delay, replacing any
// flush scheduled before.
func (e *Exporter) Export(span *SpanRecord) {
	if span == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.finished = append(e.finished, span)

	if parentID := span.localParentID(); parentID != "" && e.bufferedLocked(parentID) {
		e.logger.Debugf("SpanExporter has %d unsent spans remaining", len(e.finished))
		e.finished = e.reapLocked(e.finished)
		return
	}

	e.stopTimerLocked()
	// The callback must not call back into the clock, which may still
	// hold its own lock while running it.
	e.timer = e.clock.AfterFunc(e.debounce, func() {
		e.flushing.Add(1)
		go func() {
			defer e.flushing.Done()
			e.Flush()
		}()
	})
}

// Flush sends every complete tree in the buffer and keeps the rest.
func (e *Exporter) Flush() {
	e.mu.Lock()
	e.stopTimerLocked()
	open := len(e.finished)
	events, remaining := maybeSend(e.finished)
	e.finished = e.reapLocked(remaining)
	e.mu.Unlock()

	if e.summaries != nil {
		for _, event := range events {
			event.MetricsSummary = e.summaries.TakeSummary(event.Trace.SpanID)
			for i := range event.Spans {
				event.Spans[i].MetricsSummary = e.summaries.TakeSummary(event.Spans[i].SpanID)
			}
		}
	}

	e.logger.Debugf("SpanExporter exported %d spans, %d unsent spans remaining", open-len(remaining), len(remaining))
	for _, event := range events {
		e.capturer.CaptureEvent(event)
	}
}

// Clear drops every buffered span and cancels a pending flush.
func (e *Exporter) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.finished {
		e.discardSummaryLocked(s)
	}
	e.finished = nil
	e.stopTimerLocked()
}

// Len returns the number of buffered spans.
func (e *Exporter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.finished)
}

func (e *Exporter) bufferedLocked(spanID string) bool {
	for _, s := range e.finished {
		if s.SpanID == spanID {
			return true
		}
	}
	return false
}

func (e *Exporter) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *Exporter) reapLocked(spans []*SpanRecord) []*SpanRecord {
	cutoff := e.clock.Now().Add(-e.staleAfter)
	kept := spans[:0]
	for _, s := range spans {
		if s.StartTime.Before(cutoff) {
			e.logger.Debugf("SpanExporter dropping span %s (%s) because it is pending for more than %s", s.Name, s.SpanID, e.staleAfter)
			e.discardSummaryLocked(s)
			continue
		}
		kept = append(kept, s)
	}
	clear(spans[len(kept):])
	return kept
}

func (e *Exporter) discardSummaryLocked(s *SpanRecord) {
	if e.summaries != nil && s != nil {
		e.summaries.TakeSummary(s.SpanID)
	}
}

// maybeSend builds a transaction for every complete root in spans and
// returns the spans that are not part of any of them, in their original
// order.
func maybeSend(spans []*SpanRecord) ([]*TransactionEvent, []*SpanRecord) {
	tree := GroupSpansWithParents(spans)
	consumed := make([]bool, len(tree.Nodes))

	var events []*TransactionEvent
	for _, root := range tree.Roots() {
		record := tree.Nodes[root].Record
		event := NewTransactionEvent(record)
		tree.Walk(root, func(i int, node *SpanNode) {
			consumed[i] = true
			if i == root || node.Record == nil {
				return
			}
			event.Spans = append(event.Spans, NewSpanJSON(node.Record))
		})
		event.Measurements = measurementsFromEvents(record)
		events = append(events, event)
	}

	var remaining []*SpanRecord
	for _, s := range spans {
		if s == nil {
			continue
		}
		i, _ := tree.Lookup(s.SpanID)
		if consumed[i] || tree.Nodes[i].Record != s {
			continue
		}
		remaining = append(remaining, s)
	}
	return events, remaining
}
