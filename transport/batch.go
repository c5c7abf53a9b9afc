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

package transport

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// ErrBatchFull signifies that the batch has reached full capacity and
// cannot accept more items.
var ErrBatchFull = errors.New("batch is full")

var (
	maxSizeThreshold = 0.9
	newLineSep       = []byte("\n")
)

// Batch holds envelope items that have not been shipped yet. Items are
// stored already encoded so a ship is a single write of the buffer.
type Batch struct {
	mu      sync.RWMutex
	buf     bytes.Buffer
	count   int
	age     time.Time
	maxSize int
	maxAge  time.Duration
	clock   clockz.Clock
}

// NewBatch creates a Batch which accepts up to maxSize items and asks to
// be shipped once its first item is older than maxAge.
func NewBatch(maxSize int, maxAge time.Duration, c clockz.Clock) *Batch {
	return &Batch{
		maxSize: maxSize,
		maxAge:  maxAge,
		clock:   c,
	}
}

// Add appends an encoded item. Returns ErrBatchFull if the batch has
// reached its maximum size.
func (b *Batch) Add(item Item) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count >= b.maxSize {
		return ErrBatchFull
	}
	if err := item.writeTo(&b.buf); err != nil {
		return err
	}
	if b.count == 0 {
		b.age = b.clock.Now()
	}
	b.count++
	return nil
}

// Count returns the number of items in the batch.
func (b *Batch) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// ShouldShip indicates when a batch is ready for sending: it holds at
// least 90% of its max size, or its first item is older than max age.
func (b *Batch) ShouldShip() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return (b.count >= int(float64(b.maxSize)*maxSizeThreshold)) ||
		(!b.age.IsZero() && b.clock.Now().Sub(b.age) > b.maxAge)
}

// Reset empties the batch.
func (b *Batch) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count, b.age = 0, time.Time{}
	b.buf.Reset()
}

// Envelope returns the batch as an envelope: an empty header line
// followed by the items. The header is completed when the envelope is
// posted.
func (b *Batch) Envelope() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]byte, 0, b.buf.Len()+3)
	out = append(out, "{}"...)
	out = append(out, newLineSep...)
	return append(out, b.buf.Bytes()...)
}
