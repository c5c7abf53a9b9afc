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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
)

func TestBatchAdd(t *testing.T) {
	b := NewBatch(2, time.Minute, clockz.NewFakeClockAt(epoch))
	require.NoError(t, b.Add(Item{Type: StatsdItem, Payload: []byte("x")}))
	require.NoError(t, b.Add(Item{Type: TransactionItem, EventID: "abc", Payload: []byte(`{"a":1}`)}))
	assert.ErrorIs(t, b.Add(Item{Type: StatsdItem}), ErrBatchFull)
	assert.Equal(t, 2, b.Count())

	assert.Equal(t,
		"{}\n"+
			`{"type":"statsd","length":1}`+"\nx\n"+
			`{"type":"transaction","event_id":"abc","length":7}`+"\n"+`{"a":1}`+"\n",
		string(b.Envelope()))

	b.Reset()
	assert.Equal(t, 0, b.Count())
	assert.Equal(t, "{}\n", string(b.Envelope()))
}

func TestBatchShouldShip(t *testing.T) {
	t.Run("size", func(t *testing.T) {
		b := NewBatch(10, time.Hour, clockz.NewFakeClockAt(epoch))
		for i := 0; i < 8; i++ {
			require.NoError(t, b.Add(Item{Type: StatsdItem}))
		}
		assert.False(t, b.ShouldShip())
		require.NoError(t, b.Add(Item{Type: StatsdItem}))
		assert.True(t, b.ShouldShip())
	})
	t.Run("age", func(t *testing.T) {
		clk := clockz.NewFakeClockAt(epoch)
		b := NewBatch(10, time.Second, clk)
		assert.False(t, b.ShouldShip())
		require.NoError(t, b.Add(Item{Type: StatsdItem}))
		clk.Advance(time.Second)
		assert.False(t, b.ShouldShip())
		clk.Advance(time.Millisecond)
		assert.True(t, b.ShouldShip())

		b.Reset()
		assert.False(t, b.ShouldShip())
	})
}
