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

package receiver

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/elastic/apm-telemetry-buffer/metrics"
	"github.com/elastic/apm-telemetry-buffer/spanexport"
	"go.elastic.co/fastjson"
	"go.uber.org/zap"
)

const (
	defaultReceiverAddr    = "127.0.0.1:8125"
	defaultReceiverTimeout = 15 * time.Second
	maxBodyBytes           = 10 << 20
)

// MetricSink receives parsed metric samples.
type MetricSink interface {
	Add(metricType metrics.Type, name string, value any, unit string, tags map[string]any, timestamp time.Time)
	Flush()
}

// SpanSink receives parsed span records.
type SpanSink interface {
	Export(span *spanexport.SpanRecord)
	Flush()
}

// Server is the local HTTP intake for instrumented processes.
type Server struct {
	server  *http.Server
	metrics MetricSink
	spans   SpanSink
	logger  *zap.SugaredLogger

	listener net.Listener
}

func New(metricSink MetricSink, spanSink SpanSink, opts ...Option) *Server {
	s := &Server{
		server: &http.Server{
			Addr:           defaultReceiverAddr,
			ReadTimeout:    defaultReceiverTimeout,
			WriteTimeout:   defaultReceiverTimeout,
			MaxHeaderBytes: 1 << 20,
		},
		metrics: metricSink,
		spans:   spanSink,
		logger:  zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.server.Handler = s.Handler()
	return s
}

// Handler returns the intake routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/metrics", s.handleMetrics)
	mux.HandleFunc("/v1/spans", s.handleSpans)
	mux.HandleFunc("/v1/flush", s.handleFlush)
	return mux
}

// Start starts listening in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on addr %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	go func() {
		s.logger.Infof("Receiver listening for telemetry on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("received error from http.Serve(): %v", err)
		} else {
			s.logger.Debug("server closed")
		}
	}()
	return nil
}

// Addr returns the address the receiver listens on once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.server.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown stops the receiver gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// URL: http://receiver/v1/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	var accepted, rejected int
	forEachLine(body, func(line []byte) {
		sample, err := ParseStatsdLine(line)
		if err != nil {
			s.logger.Debugf("Skipping statsd line %q: %v", line, err)
			rejected++
			return
		}
		for _, v := range sample.Values {
			s.metrics.Add(sample.Type, sample.Name, v, sample.Unit, sample.Tags, sample.Timestamp)
		}
		accepted++
	})
	s.writeAccepted(w, accepted, rejected)
}

// URL: http://receiver/v1/spans
func (s *Server) handleSpans(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	var accepted, rejected int
	forEachLine(body, func(line []byte) {
		span, err := ParseSpan(line)
		if err != nil {
			s.logger.Debugf("Skipping span: %v", err)
			rejected++
			return
		}
		s.spans.Export(span)
		accepted++
	})
	s.writeAccepted(w, accepted, rejected)
}

// URL: http://receiver/v1/flush
func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.logger.Debug("Handling flush request")
	s.metrics.Flush()
	s.spans.Flush()
	s.writeAccepted(w, 0, 0)
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return nil, false
	}
	defer r.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.logger.Errorf("Could not read intake request body: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return nil, false
	}
	body, err := uncompressedBytes(raw, r.Header.Get("Content-Encoding"))
	if err != nil {
		s.logger.Warnf("Could not decode intake request body: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

func (s *Server) writeAccepted(w http.ResponseWriter, accepted, rejected int) {
	var json fastjson.Writer
	json.RawString(`{"accepted":`)
	json.Int64(int64(accepted))
	json.RawString(`,"rejected":`)
	json.Int64(int64(rejected))
	json.RawByte('}')

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if _, err := w.Write(json.Bytes()); err != nil {
		s.logger.Errorf("Failed to send intake response: %v", err)
	}
}

func forEachLine(body []byte, fn func(line []byte)) {
	for len(body) > 0 {
		var line []byte
		line, body, _ = bytes.Cut(body, []byte("\n"))
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		fn(line)
	}
}

func uncompressedBytes(raw []byte, encoding string) ([]byte, error) {
	switch encoding {
	case "":
		return raw, nil
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case "deflate":
		r, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	}
	return nil, fmt.Errorf("unsupported content encoding %q", encoding)
}
