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
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/elastic/apm-telemetry-buffer/version"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

const endpointURI = "api/envelope/"

// ForwardData receives items as they are captured and posts them in
// batches until ctx is done. A batch is sent once it is nearly full or
// its oldest item reached the max batch age.
func (c *Client) ForwardData(ctx context.Context) error {
	if c.IsUnhealthy() {
		c.logger.Warn("Failed to start data forwarder due to client unhealthy")
		return nil
	}
	tick := c.clock.After(c.maxBatchAge)
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Forwarder context canceled, not processing any more data")
			return nil
		case item := <-c.dataChannel:
			c.forwardItem(ctx, item)
		case <-tick:
			if c.batch.ShouldShip() {
				c.sendBatch(ctx)
			}
			tick = c.clock.After(c.maxBatchAge)
		}
	}
}

// FlushData sends every item that is queued when it is called.
func (c *Client) FlushData(ctx context.Context) {
	if c.IsUnhealthy() {
		c.logger.Debug("Flush skipped - Transport failing")
		return
	}
	c.logger.Debug("Flush started - Checking for queued data")

	for {
		select {
		case item := <-c.dataChannel:
			c.forwardItem(ctx, item)
		case <-ctx.Done():
			c.logger.Debug("Failed to flush completely, may result in data drop")
			return
		default:
			c.sendBatch(ctx)
			c.logger.Debug("Flush ended - no data in buffer")
			return
		}
	}
}

// PostEnvelope takes an envelope, stamps its header with the send time,
// compresses it and posts it to the intake.
//
// It sets the transport status to failing upon errors, as part of the
// backoff strategy.
func (c *Client) PostEnvelope(ctx context.Context, envelope []byte) error {
	if c.IsUnhealthy() {
		return errors.New("transport status is unhealthy")
	}

	header, items, _ := bytes.Cut(envelope, newLineSep)
	header, err := sjson.SetBytes(header, "sent_at", c.clock.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to stamp envelope header: %w", err)
	}

	buf := c.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		c.bufferPool.Put(buf)
	}()
	gw, err := gzip.NewWriterLevel(buf, gzip.BestSpeed)
	if err != nil {
		return err
	}
	for _, part := range [][]byte{header, newLineSep, items} {
		if _, err := gw.Write(part); err != nil {
			return fmt.Errorf("failed to compress data: %w", err)
		}
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("failed to write compressed data to buffer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+endpointURI, buf)
	if err != nil {
		return fmt.Errorf("failed to create a new request when posting to intake: %w", err)
	}
	req.Header.Add("Content-Encoding", "gzip")
	req.Header.Add("Content-Type", "application/x-ndjson")
	req.Header.Set("User-Agent", version.UserAgent)
	if c.ServerAPIKey != "" {
		req.Header.Add("Authorization", "ApiKey "+c.ServerAPIKey)
	} else if c.ServerSecretToken != "" {
		req.Header.Add("Authorization", "Bearer "+c.ServerSecretToken)
	}

	c.logger.Debug("Sending envelope to intake")
	resp, err := c.client.Do(req)
	if err != nil {
		c.UpdateStatus(ctx, Failing)
		return fmt.Errorf("failed to post to intake: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK:
		c.UpdateStatus(ctx, Healthy)
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Warnf("Transport has been rate limited: response status code: %d", resp.StatusCode)
		c.UpdateStatus(ctx, RateLimited)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		logBodyErrors(c.logger, resp)
		c.UpdateStatus(ctx, Failing)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		logBodyErrors(c.logger, resp)
		c.UpdateStatus(ctx, ClientFailing)
	case resp.StatusCode == http.StatusInternalServerError || resp.StatusCode == http.StatusServiceUnavailable:
		logBodyErrors(c.logger, resp)
		c.UpdateStatus(ctx, Failing)
	default:
		c.logger.Warnf("unhandled status code: %d", resp.StatusCode)
	}
	return nil
}

func logBodyErrors(logger *zap.SugaredLogger, resp *http.Response) {
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Warnf("failed to post data to intake: response status: %s: failed to read response body: %v", resp.Status, err)
		return
	}

	if !gjson.ValidBytes(b) {
		logger.Warnf("failed to post data to intake: response status: %s: failed to decode response body: %s", resp.Status, string(b))
		return
	}

	errs := gjson.GetBytes(b, "errors").Array()
	if len(errs) == 0 {
		if detail := gjson.GetBytes(b, "detail").String(); detail != "" {
			logger.Warnf("failed to post data to intake: response status: %s: %s", resp.Status, detail)
			return
		}
		logger.Warnf("failed to post data to intake: response status: %s: response body: %s", resp.Status, string(b))
		return
	}

	logger.Warnf("failed to post data to intake: response status: %s", resp.Status)
	for _, e := range errs {
		logger.Warnf("document %s: message: %s", e.Get("document").String(), e.Get("message").String())
	}
}

// Status returns the current transport status.
func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// IsUnhealthy returns true if the transport is in its failing grace
// period.
func (c *Client) IsUnhealthy() bool {
	return c.Status() == Failing
}

// UpdateStatus takes a state of the intake transport and updates the
// current state of the transport. For a change to a failing state, the
// grace period is calculated and a go routine is started that waits for
// that period to complete before changing the status back to Started.
// This allows a subsequent send attempt.
func (c *Client) UpdateStatus(ctx context.Context, status Status) {
	// Reduce lock contention as UpdateStatus is called on every
	// successful request
	c.mu.RLock()
	if status == c.status {
		c.mu.RUnlock()
		return
	}
	c.mu.RUnlock()

	switch status {
	case Healthy:
		c.mu.Lock()
		c.status = status
		c.reconnectionCount = -1
		c.mu.Unlock()
		c.logger.Debugf("Transport status set to %s", status)
	case RateLimited, ClientFailing:
		// No need to start backoff, this is a temporary status.
		c.mu.Lock()
		c.status = status
		c.mu.Unlock()
		c.logger.Debugf("Transport status set to %s", status)
	case Failing:
		c.mu.Lock()
		c.status = status
		c.reconnectionCount++
		gracePeriod := c.clock.After(c.computeGracePeriodLocked())
		c.logger.Debugf("Grace period entered, reconnection count : %d", c.reconnectionCount)
		c.mu.Unlock()

		go func() {
			select {
			case <-gracePeriod:
				c.logger.Debug("Grace period over - timer timed out")
			case <-ctx.Done():
				c.logger.Debug("Grace period over - context done")
			}
			c.logger.Debugf("Transport status set to %s", Started)
			c.mu.Lock()
			c.status = Started
			c.mu.Unlock()
		}()
	default:
		c.logger.Errorf("Cannot set transport status to %s", status)
	}
}

// ComputeGracePeriod returns the backoff before the next attempt after
// a failure.
func (c *Client) ComputeGracePeriod() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.computeGracePeriodLocked()
}

func (c *Client) computeGracePeriodLocked() time.Duration {
	// The first reconnection gets a random period in an interval so that
	// many processes failing at once do not retry in lockstep.
	if c.reconnectionCount <= 0 {
		gracePeriod := rand.Float64() * 5 //nolint:gosec
		return time.Duration(gracePeriod * float64(time.Second))
	}
	gracePeriodWithoutJitter := math.Pow(math.Min(float64(c.reconnectionCount), 6), 2)
	jitter := rand.Float64()/5 - 0.1 //nolint:gosec
	return time.Duration((gracePeriodWithoutJitter + jitter*gracePeriodWithoutJitter) * float64(time.Second))
}

func (c *Client) forwardItem(ctx context.Context, item Item) {
	if err := c.batch.Add(item); err != nil {
		if !errors.Is(err, ErrBatchFull) {
			c.logger.Warnf("Dropping %s item due to error: %v", item.Type, err)
			return
		}
		c.sendBatch(ctx)
		if err := c.batch.Add(item); err != nil {
			c.logger.Warnf("Dropping %s item due to error: %v", item.Type, err)
			return
		}
	}
	if c.batch.ShouldShip() {
		c.sendBatch(ctx)
	}
}

func (c *Client) sendBatch(ctx context.Context) {
	if c.batch.Count() == 0 {
		return
	}
	defer c.batch.Reset()
	if err := c.PostEnvelope(ctx, c.batch.Envelope()); err != nil {
		c.logger.Errorf("Error sending to intake, skipping: %v", err)
	}
}
