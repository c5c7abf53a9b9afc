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
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/elastic/apm-telemetry-buffer/logger"
	"github.com/elastic/apm-telemetry-buffer/metrics"
	"github.com/elastic/apm-telemetry-buffer/receiver"
	"github.com/elastic/apm-telemetry-buffer/spanexport"
	"github.com/elastic/apm-telemetry-buffer/transport"

	"github.com/zoobzio/clockz"
	"go.elastic.co/ecszap"
	"go.uber.org/zap"
)

// ErrInvalidCertificate is returned when a configured CA certificate
// contains no usable PEM block.
var ErrInvalidCertificate = errors.New("no valid PEM certificate found")

// App is the main application.
type App struct {
	logger    *zap.SugaredLogger
	transport *transport.Client
	metrics   *metrics.Aggregator
	spans     *spanexport.Exporter
	receiver  *receiver.Server
	ready     chan struct{}
}

// New returns an App or an error if the creation failed.
func New(ctx context.Context, opts ...ConfigOption) (*App, error) {
	c := appConfig{
		clock: clockz.RealClock,
	}

	for _, opt := range opts {
		opt(&c)
	}

	app := &App{
		ready: make(chan struct{}),
	}

	var err error

	if app.logger, err = buildLogger(c.logLevel); err != nil {
		return nil, err
	}

	apiKey, secretToken := loadCredentials(ctx, lazySecretsManager(c.awsConfig), app.logger)

	transportOpts := []transport.Option{
		transport.WithLogger(app.logger),
		transport.WithClock(c.clock),
		transport.WithAPIKey(apiKey),
		transport.WithSecretToken(secretToken),
	}

	if dataForwarderTimeout, ok, err := parseDurationTimeout(app.logger, "ELASTIC_TELEMETRY_DATA_FORWARDER_TIMEOUT", "ELASTIC_TELEMETRY_DATA_FORWARDER_TIMEOUT_SECONDS"); err != nil || ok {
		if err != nil {
			return nil, err
		}
		transportOpts = append(transportOpts, transport.WithDataForwarderTimeout(dataForwarderTimeout))
	}

	if bufferSize := os.Getenv("ELASTIC_TELEMETRY_BUFFER_SIZE"); bufferSize != "" {
		size, err := strconv.Atoi(bufferSize)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ELASTIC_TELEMETRY_BUFFER_SIZE: %w", err)
		}
		transportOpts = append(transportOpts, transport.WithBufferSize(size))
	}

	if verifyCertsString := os.Getenv("ELASTIC_TELEMETRY_VERIFY_SERVER_CERT"); verifyCertsString != "" {
		verifyCerts, err := strconv.ParseBool(verifyCertsString)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ELASTIC_TELEMETRY_VERIFY_SERVER_CERT: %w", err)
		}
		if !verifyCerts {
			app.logger.Infof("Ignoring Certificates.")
		}
		transportOpts = append(transportOpts, transport.WithVerifyCerts(verifyCerts))
	}

	pool, err := loadRootCerts(ctx, c, app.logger)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		transportOpts = append(transportOpts, transport.WithRootCerts(pool))
	}

	serverURL := c.serverURL
	if serverURL == "" {
		serverURL = os.Getenv("ELASTIC_TELEMETRY_SERVER_URL")
	}
	transportOpts = append(transportOpts, transport.WithURL(serverURL))

	if app.transport, err = transport.NewClient(transportOpts...); err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	metricOpts := []metrics.Option{
		metrics.WithLogger(app.logger),
		metrics.WithClock(c.clock),
	}

	if flushInterval, ok, err := parseDurationTimeout(app.logger, "ELASTIC_TELEMETRY_FLUSH_INTERVAL", "ELASTIC_TELEMETRY_FLUSH_INTERVAL_SECONDS"); err != nil || ok {
		if err != nil {
			return nil, err
		}
		metricOpts = append(metricOpts, metrics.WithFlushInterval(flushInterval))
	}

	if maxWeight := os.Getenv("ELASTIC_TELEMETRY_MAX_WEIGHT"); maxWeight != "" {
		w, err := strconv.Atoi(maxWeight)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ELASTIC_TELEMETRY_MAX_WEIGHT: %w", err)
		}
		metricOpts = append(metricOpts, metrics.WithMaxWeight(w))
	}

	summaryOpts := []metrics.SummaryOption{
		metrics.WithSummaryClock(c.clock),
	}

	spanOpts := []spanexport.Option{
		spanexport.WithLogger(app.logger),
		spanexport.WithClock(c.clock),
	}

	if staleAfter, ok, err := parseDurationTimeout(app.logger, "ELASTIC_TELEMETRY_SPAN_STALE_AFTER", "ELASTIC_TELEMETRY_SPAN_STALE_AFTER_SECONDS"); err != nil || ok {
		if err != nil {
			return nil, err
		}
		spanOpts = append(spanOpts, spanexport.WithStaleAfter(staleAfter))
		summaryOpts = append(summaryOpts, metrics.WithSummaryMaxAge(staleAfter))
	}

	summaries := metrics.NewSummaryStore(summaryOpts...)
	metricOpts = append(metricOpts, metrics.WithSummaryObserver(summaries))
	spanOpts = append(spanOpts, spanexport.WithMetricsSummary(summaries))

	receiverOpts := []receiver.Option{
		receiver.WithLogger(app.logger),
	}

	receiverAddr := c.receiverAddr
	if receiverAddr == "" {
		receiverAddr = os.Getenv("ELASTIC_TELEMETRY_RECEIVER_ADDRESS")
	}
	if receiverAddr != "" {
		receiverOpts = append(receiverOpts, receiver.WithAddress(receiverAddr))
	}

	if receiverTimeout, ok, err := parseDurationTimeout(app.logger, "ELASTIC_TELEMETRY_RECEIVER_TIMEOUT", "ELASTIC_TELEMETRY_RECEIVER_TIMEOUT_SECONDS"); err != nil || ok {
		if err != nil {
			return nil, err
		}
		receiverOpts = append(receiverOpts, receiver.WithTimeout(receiverTimeout))
	}

	app.metrics = metrics.New(app.transport, metricOpts...)
	app.spans = spanexport.New(app.transport, spanOpts...)

	app.receiver = receiver.New(app.metrics, app.spans, receiverOpts...)

	return app, nil
}

// Metrics returns the metric aggregator owned by the app.
func (app *App) Metrics() *metrics.Aggregator {
	return app.metrics
}

// Spans returns the span exporter owned by the app.
func (app *App) Spans() *spanexport.Exporter {
	return app.spans
}

// Ready is closed once the receiver accepts connections.
func (app *App) Ready() <-chan struct{} {
	return app.ready
}

// ReceiverAddr returns the address of the local intake. It is only
// meaningful after Ready is closed.
func (app *App) ReceiverAddr() string {
	return app.receiver.Addr()
}

func loadRootCerts(ctx context.Context, c appConfig, l *zap.SugaredLogger) (*x509.CertPool, error) {
	var pems []string

	if encodedCertPem := os.Getenv("ELASTIC_TELEMETRY_SERVER_CA_CERT_PEM"); encodedCertPem != "" {
		l.Infof("Using CA certificates from environment variable.")
		pems = append(pems, strings.ReplaceAll(encodedCertPem, "\\n", "\n"))
	}

	if certFile := os.Getenv("ELASTIC_TELEMETRY_SERVER_CA_CERT_FILE"); certFile != "" {
		cert, err := os.ReadFile(certFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate file: %w", err)
		}
		l.Infof("Using CA certificate loaded from file %s", certFile)
		pems = append(pems, string(cert))
	}

	if acmCertArn := os.Getenv("ELASTIC_TELEMETRY_SERVER_CA_CERT_ACM_ID"); acmCertArn != "" {
		cert, err := loadAcmCertificate(ctx, acm.NewFromConfig(c.awsConfig), acmCertArn)
		if err != nil {
			return nil, err
		}
		l.Infof("Using CA certificate %s", acmCertArn)
		pems = append(pems, cert)
	}

	if len(pems) == 0 {
		return nil, nil
	}

	pool := x509.NewCertPool()
	for _, pem := range pems {
		if !pool.AppendCertsFromPEM([]byte(pem)) {
			return nil, ErrInvalidCertificate
		}
	}
	return pool, nil
}

func parseDurationTimeout(l *zap.SugaredLogger, flag string, deprecatedFlag string) (time.Duration, bool, error) {
	if strValue, ok := os.LookupEnv(flag); ok {
		d, err := time.ParseDuration(strValue)
		if err != nil {
			return 0, false, fmt.Errorf("failed to parse %s: %w", flag, err)
		}

		return d, true, nil
	}

	if strValueSeconds, ok := os.LookupEnv(deprecatedFlag); ok {
		l.Warnf("%s is deprecated, please consider moving to %s", deprecatedFlag, flag)

		seconds, err := strconv.Atoi(strValueSeconds)
		if err != nil {
			return 0, false, fmt.Errorf("failed to parse %s: %w", deprecatedFlag, err)
		}

		return time.Duration(seconds) * time.Second, true, nil
	}

	return 0, false, nil
}

func buildLogger(level string) (*zap.SugaredLogger, error) {
	if level == "" {
		level = "info"
	}

	l, err := logger.ParseLogLevel(level)
	if err != nil {
		return nil, err
	}

	return logger.New(
		logger.WithEncoderConfig(ecszap.NewDefaultEncoderConfig().ToZapCoreEncoderConfig()),
		logger.WithLevel(l),
	)
}
