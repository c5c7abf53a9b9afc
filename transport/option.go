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
	"crypto/x509"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

type Option func(*Client)

func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.ServerAPIKey = key
	}
}

func WithSecretToken(secret string) Option {
	return func(c *Client) {
		c.ServerSecretToken = secret
	}
}

func WithURL(url string) Option {
	return func(c *Client) {
		c.serverURL = url
	}
}

func WithDataForwarderTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = timeout
	}
}

// WithBufferSize sets how many encoded items may wait for the forwarder
// before new ones are dropped.
func WithBufferSize(size int) Option {
	return func(c *Client) {
		c.dataChannel = make(chan Item, size)
	}
}

// WithLogger configures a custom zap logger to be used by
// the client.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClock sets the clock used for batch age and grace periods.
func WithClock(cl clockz.Clock) Option {
	return func(c *Client) {
		c.clock = cl
	}
}

// WithMaxBatchSize configures the maximum number of items sent in one
// envelope.
func WithMaxBatchSize(size int) Option {
	return func(c *Client) {
		c.maxBatchSize = size
	}
}

// WithMaxBatchAge configures the maximum age of the batch before it is
// sent. Age is measured from the time the first item is added.
func WithMaxBatchAge(age time.Duration) Option {
	return func(c *Client) {
		c.maxBatchAge = age
	}
}

// WithRootCerts trusts the given pool when verifying the intake
// certificate.
func WithRootCerts(pool *x509.CertPool) Option {
	return func(c *Client) {
		c.tlsConfig().RootCAs = pool
	}
}

// WithVerifyCerts toggles verification of the intake certificate.
func WithVerifyCerts(verify bool) Option {
	return func(c *Client) {
		c.tlsConfig().InsecureSkipVerify = !verify //nolint:gosec
	}
}
