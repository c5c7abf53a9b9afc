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

package app

import (
	"compress/gzip"
	"context"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type intake struct {
	mu     sync.Mutex
	bodies []string
}

func (i *intake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	gz, err := gzip.NewReader(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	b, _ := io.ReadAll(gz)
	i.mu.Lock()
	i.bodies = append(i.bodies, string(b))
	i.mu.Unlock()
	w.WriteHeader(http.StatusAccepted)
}

func (i *intake) received() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return strings.Join(i.bodies, "")
}

func runApp(t *testing.T, app *App) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	select {
	case <-app.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("app stopped before becoming ready: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("app did not become ready")
	}
	return cancel, done
}

func post(t *testing.T, client *http.Client, url, body string) {
	t.Helper()
	resp, err := client.Post(url, "text/plain", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestNewRequiresServerURL(t *testing.T) {
	t.Setenv("ELASTIC_TELEMETRY_SERVER_URL", "")
	_, err := New(context.Background(), WithLogLevel("off"))
	assert.ErrorContains(t, err, "failed to create transport")
}

func TestNewRejectsInvalidLogLevel(t *testing.T) {
	_, err := New(context.Background(), WithLogLevel("loud"), WithServerURL("http://localhost:8200"))
	assert.Error(t, err)
}

func TestNewRejectsInvalidEnv(t *testing.T) {
	for _, env := range []string{
		"ELASTIC_TELEMETRY_BUFFER_SIZE",
		"ELASTIC_TELEMETRY_MAX_WEIGHT",
		"ELASTIC_TELEMETRY_FLUSH_INTERVAL",
		"ELASTIC_TELEMETRY_SPAN_STALE_AFTER",
		"ELASTIC_TELEMETRY_RECEIVER_TIMEOUT",
		"ELASTIC_TELEMETRY_DATA_FORWARDER_TIMEOUT",
		"ELASTIC_TELEMETRY_VERIFY_SERVER_CERT",
	} {
		t.Run(env, func(t *testing.T) {
			t.Setenv(env, "not-a-value")
			_, err := New(context.Background(), WithLogLevel("off"), WithServerURL("http://localhost:8200"))
			assert.ErrorContains(t, err, env)
		})
	}
}

func TestNewRejectsInvalidCertificate(t *testing.T) {
	t.Setenv("ELASTIC_TELEMETRY_SERVER_CA_CERT_PEM", "garbage")
	_, err := New(context.Background(), WithLogLevel("off"), WithServerURL("https://localhost:8200"))
	assert.ErrorIs(t, err, ErrInvalidCertificate)
}

func TestParseDurationTimeout(t *testing.T) {
	l := zaptest.NewLogger(t).Sugar()

	_, ok, err := parseDurationTimeout(l, "ELASTIC_TELEMETRY_TEST_TIMEOUT", "ELASTIC_TELEMETRY_TEST_TIMEOUT_SECONDS")
	require.NoError(t, err)
	assert.False(t, ok)

	t.Setenv("ELASTIC_TELEMETRY_TEST_TIMEOUT_SECONDS", "7")
	d, ok, err := parseDurationTimeout(l, "ELASTIC_TELEMETRY_TEST_TIMEOUT", "ELASTIC_TELEMETRY_TEST_TIMEOUT_SECONDS")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7*time.Second, d)

	t.Setenv("ELASTIC_TELEMETRY_TEST_TIMEOUT", "250ms")
	d, ok, err = parseDurationTimeout(l, "ELASTIC_TELEMETRY_TEST_TIMEOUT", "ELASTIC_TELEMETRY_TEST_TIMEOUT_SECONDS")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 250*time.Millisecond, d)
}

func TestRunFlushesOnShutdown(t *testing.T) {
	in := &intake{}
	srv := httptest.NewServer(in)
	defer srv.Close()

	app, err := New(context.Background(),
		WithLogLevel("off"),
		WithServerURL(srv.URL),
		WithReceiverAddress("127.0.0.1:0"),
	)
	require.NoError(t, err)
	require.NotNil(t, app.Metrics())
	require.NotNil(t, app.Spans())

	cancel, done := runApp(t, app)
	base := "http://" + app.ReceiverAddr()

	post(t, http.DefaultClient, base+"/v1/metrics", "requests:1:2|c|#route:/users,telemetry.span_id:root\n")
	post(t, http.DefaultClient, base+"/v1/spans",
		`{"trace_id":"t1","span_id":"child","parent_span_id":"root","name":"query","start_time":"2024-03-01T12:00:00.5Z","end_time":"2024-03-01T12:00:00.7Z"}`+"\n"+
			`{"trace_id":"t1","span_id":"root","name":"GET /users","kind":"server","start_time":"2024-03-01T12:00:00Z","end_time":"2024-03-01T12:00:01Z"}`+"\n")

	// An orphan that never gets its parent is dropped at shutdown.
	post(t, http.DefaultClient, base+"/v1/spans",
		`{"trace_id":"t2","span_id":"orphan","parent_span_id":"gone","name":"lost","start_time":"2024-03-01T12:00:00Z"}`+"\n")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("app did not stop")
	}

	body := in.received()
	assert.Contains(t, body, `{"type":"transaction"`)
	assert.Contains(t, body, `"transaction":"GET /users"`)
	assert.Contains(t, body, `{"type":"statsd"`)
	assert.Contains(t, body, "requests@none:3|c|#route:/users|T")
	assert.Contains(t, body, `"_metrics_summary":{"c:requests@none":[`)
	assert.Contains(t, body, `"count":2,"sum":3,"tags":{"route":"/users"}`)
	assert.NotContains(t, body, "lost")
	assert.Zero(t, app.Spans().Len())
	assert.Zero(t, app.Metrics().Len())
}

func TestRunWithCustomCA(t *testing.T) {
	in := &intake{}
	srv := httptest.NewTLSServer(in)
	defer srv.Close()

	certFile := filepath.Join(t.TempDir(), "ca.pem")
	certPem := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	require.NoError(t, os.WriteFile(certFile, certPem, 0o600))
	t.Setenv("ELASTIC_TELEMETRY_SERVER_CA_CERT_FILE", certFile)
	t.Setenv("ELASTIC_TELEMETRY_SECRET_TOKEN", "token")

	app, err := New(context.Background(),
		WithLogLevel("off"),
		WithServerURL(srv.URL),
		WithReceiverAddress("127.0.0.1:0"),
	)
	require.NoError(t, err)

	cancel, done := runApp(t, app)
	post(t, http.DefaultClient, "http://"+app.ReceiverAddr()+"/v1/metrics", "latency@millisecond:12|d\n")

	cancel()
	require.NoError(t, <-done)
	assert.Contains(t, in.received(), "latency@millisecond:12|d|T")
}

func TestRunFailsWhenAddressIsTaken(t *testing.T) {
	blocker := httptest.NewServer(http.NotFoundHandler())
	defer blocker.Close()

	app, err := New(context.Background(),
		WithLogLevel("off"),
		WithServerURL("http://localhost:8200"),
		WithReceiverAddress(blocker.Listener.Addr().String()),
	)
	require.NoError(t, err)

	err = app.Run(context.Background())
	assert.ErrorContains(t, err, "failed to start the telemetry receiver")
}
