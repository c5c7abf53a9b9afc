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
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock sets the clock driving timestamps and the flush schedule.
func WithClock(c clockz.Clock) Option {
	return func(a *Aggregator) {
		a.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// WithFlushInterval sets the scheduled flush period. Intervals shorter
// than a second are rounded up to one second.
func WithFlushInterval(d time.Duration) Option {
	return func(a *Aggregator) {
		a.flushInterval = d
	}
}

// WithMaxWeight sets the total weight that forces an early flush.
func WithMaxWeight(w int) Option {
	return func(a *Aggregator) {
		a.maxWeight = w
	}
}

// WithSummaryObserver registers an observer for accepted emissions.
func WithSummaryObserver(o SummaryObserver) Option {
	return func(a *Aggregator) {
		a.observer = o
	}
}
