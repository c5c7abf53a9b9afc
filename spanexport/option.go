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
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

const (
	DefaultStaleAfter = 5 * time.Minute
	DefaultDebounce   = time.Millisecond
)

type Option func(*Exporter)

func WithClock(c clockz.Clock) Option {
	return func(e *Exporter) {
		e.clock = c
	}
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(e *Exporter) {
		e.logger = logger
	}
}

// WithStaleAfter sets how long a span may wait for its root before it is
// dropped.
func WithStaleAfter(d time.Duration) Option {
	return func(e *Exporter) {
		if d > 0 {
			e.staleAfter = d
		}
	}
}

// WithDebounce sets the delay between an export that may complete a tree
// and the flush that sends it.
func WithDebounce(d time.Duration) Option {
	return func(e *Exporter) {
		if d > 0 {
			e.debounce = d
		}
	}
}

// WithMetricsSummary attaches the metric summaries recorded for each
// exported span. Summaries of dropped spans are discarded.
func WithMetricsSummary(src SummarySource) Option {
	return func(e *Exporter) {
		e.summaries = src
	}
}
