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
	"fmt"

	"github.com/elastic/apm-telemetry-buffer/metrics"
	"github.com/elastic/apm-telemetry-buffer/spanexport"
	"go.elastic.co/fastjson"
)

// ItemType is the type of an envelope item.
type ItemType string

const (
	TransactionItem ItemType = "transaction"
	StatsdItem      ItemType = "statsd"
)

// Item is one entry of an envelope: an item header line followed by the
// payload. The payload length is carried in the header so payloads may
// contain newlines.
type Item struct {
	Type    ItemType
	EventID string
	Payload []byte
}

// NewTransactionItem encodes a transaction event.
func NewTransactionItem(event *spanexport.TransactionEvent) (Item, error) {
	var w fastjson.Writer
	if err := event.MarshalFastJSON(&w); err != nil {
		return Item{}, fmt.Errorf("failed to encode transaction %s: %w", event.EventID, err)
	}
	return Item{
		Type:    TransactionItem,
		EventID: event.EventID,
		Payload: w.Bytes(),
	}, nil
}

// NewStatsdItem encodes aggregated metric buckets as statsd lines.
func NewStatsdItem(buckets []*metrics.Bucket) Item {
	return Item{
		Type:    StatsdItem,
		Payload: metrics.SerializeBuckets(buckets),
	}
}

func (i Item) MarshalFastJSON(w *fastjson.Writer) error {
	w.RawString(`{"type":`)
	w.String(string(i.Type))
	if i.EventID != "" {
		w.RawString(`,"event_id":`)
		w.String(i.EventID)
	}
	w.RawString(`,"length":`)
	w.Int64(int64(len(i.Payload)))
	w.RawByte('}')
	return nil
}

func (i Item) writeTo(buf *bytes.Buffer) error {
	var w fastjson.Writer
	if err := i.MarshalFastJSON(&w); err != nil {
		return err
	}
	buf.Write(w.Bytes())
	buf.Write(newLineSep)
	buf.Write(i.Payload)
	buf.Write(newLineSep)
	return nil
}
