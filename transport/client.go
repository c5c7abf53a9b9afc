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
	"crypto/tls"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/elastic/apm-telemetry-buffer/metrics"
	"github.com/elastic/apm-telemetry-buffer/spanexport"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

const (
	defaultDataForwarderTimeout time.Duration = 3 * time.Second
	defaultBufferSize           int           = 100
	defaultMaxBatchSize         int           = 50
	defaultMaxBatchAge          time.Duration = 2 * time.Second
)

// Client forwards captured events to the intake. Capture calls only
// encode and enqueue; ForwardData and FlushData do the sending.
type Client struct {
	mu                sync.RWMutex
	bufferPool        sync.Pool
	dataChannel       chan Item
	client            *http.Client
	status            Status
	reconnectionCount int
	ServerAPIKey      string
	ServerSecretToken string
	serverURL         string
	logger            *zap.SugaredLogger
	clock             clockz.Clock

	batch        *Batch
	maxBatchSize int
	maxBatchAge  time.Duration
}

func NewClient(opts ...Option) (*Client, error) {
	c := Client{
		bufferPool: sync.Pool{New: func() interface{} {
			return &bytes.Buffer{}
		}},
		dataChannel: make(chan Item, defaultBufferSize),
		client: &http.Client{
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
		},
		reconnectionCount: -1,
		status:            Started,
		clock:             clockz.RealClock,
		maxBatchSize:      defaultMaxBatchSize,
		maxBatchAge:       defaultMaxBatchAge,
	}

	c.client.Timeout = defaultDataForwarderTimeout

	for _, opt := range opts {
		opt(&c)
	}

	if c.serverURL == "" {
		return nil, errors.New("intake URL cannot be empty")
	}

	if c.logger == nil {
		return nil, errors.New("logger cannot be empty")
	}

	// normalize server URL
	if !strings.HasSuffix(c.serverURL, "/") {
		c.serverURL = c.serverURL + "/"
	}

	c.batch = NewBatch(c.maxBatchSize, c.maxBatchAge, c.clock)

	return &c, nil
}

// CaptureEvent encodes a transaction and queues it for forwarding.
func (c *Client) CaptureEvent(event *spanexport.TransactionEvent) {
	item, err := NewTransactionItem(event)
	if err != nil {
		c.logger.Warnf("Dropping transaction: %v", err)
		return
	}
	c.enqueue(item)
}

// CaptureAggregatedMetrics encodes metric buckets and queues them for
// forwarding.
func (c *Client) CaptureAggregatedMetrics(buckets []*metrics.Bucket) {
	if len(buckets) == 0 {
		return
	}
	c.enqueue(NewStatsdItem(buckets))
}

// Queued returns the number of items waiting to be forwarded.
func (c *Client) Queued() int {
	return len(c.dataChannel)
}

func (c *Client) enqueue(item Item) {
	select {
	case c.dataChannel <- item:
	default:
		c.logger.Warnf("Channel full: dropping %s item", item.Type)
	}
}

func (c *Client) tlsConfig() *tls.Config {
	transport := c.client.Transport.(*http.Transport)
	if transport.TLSClientConfig == nil {
		transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return transport.TLSClientConfig
}
