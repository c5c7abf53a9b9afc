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
	"fmt"
	"sync"
	"time"
)

const shutdownTimeout = 5 * time.Second

// Run starts the receiver and the forwarder and blocks until ctx is
// done. Buffered telemetry is flushed to the intake before it returns.
func (app *App) Run(ctx context.Context) error {
	// start http server to receive data from instrumented processes
	if err := app.receiver.Start(); err != nil {
		app.metrics.Close()
		return fmt.Errorf("failed to start the telemetry receiver: %w", err)
	}
	close(app.ready)

	forwardCtx, cancelForward := context.WithCancel(context.Background())
	var forwardWg sync.WaitGroup
	forwardWg.Add(1)
	go func() {
		defer forwardWg.Done()
		if err := app.transport.ForwardData(forwardCtx); err != nil {
			app.logger.Error(err)
		}
	}()

	<-ctx.Done()
	app.logger.Info("Received a signal, exiting...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.receiver.Shutdown(shutdownCtx); err != nil {
		app.logger.Warnf("Error while shutting down the telemetry receiver: %v", err)
	}

	app.metrics.Close()
	app.spans.Flush()
	app.spans.Clear()

	cancelForward()
	forwardWg.Wait()

	// Flush all data before shutting down.
	app.transport.FlushData(shutdownCtx)
	app.logger.Debug("Telemetry buffer stopped")
	return nil
}
