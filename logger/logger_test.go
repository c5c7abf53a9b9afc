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

package logger_test

import (
	"os"
	"testing"

	"github.com/elastic/apm-telemetry-buffer/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.elastic.co/ecszap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newFileLogger(t *testing.T, opts ...logger.Option) (*zap.SugaredLogger, string) {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "logger-")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	opts = append(opts,
		logger.WithEncoderConfig(ecszap.NewDefaultEncoderConfig().ToZapCoreEncoderConfig()),
		logger.WithOutputPaths(f.Name()),
	)
	l, err := logger.New(opts...)
	require.NoError(t, err)
	return l, f.Name()
}

func TestDefaultLevelIsInfo(t *testing.T) {
	l, path := newFileLogger(t)

	l.Infof("%s", "bucket flushed")
	l.Debugf("%s", "bucket merged")
	require.NoError(t, l.Sync())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Regexp(t, `"log.level":"info".*"message":"bucket flushed","ecs.version":"1.6.0"`, string(contents))
	assert.NotContains(t, string(contents), "bucket merged")
}

func TestDebugLevel(t *testing.T) {
	l, path := newFileLogger(t, logger.WithLevel(zapcore.DebugLevel))

	l.Debugw("span reaped", "span.id", "b7ad6b7169203331")
	require.NoError(t, l.Sync())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Regexp(t, `"log.level":"debug".*"message":"span reaped"`, string(contents))
	assert.Contains(t, string(contents), `"span.id":"b7ad6b7169203331"`)
}

func TestOffLevel(t *testing.T) {
	l, path := newFileLogger(t, logger.WithLevel(zapcore.FatalLevel+1))

	l.Errorf("%s", "should not be written")
	require.NoError(t, l.Sync())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, string(contents))
}

func TestParseLogLevel(t *testing.T) {
	for _, tc := range []struct {
		level       string
		expected    zapcore.Level
		expectedErr bool
	}{
		{level: "TRacE", expected: zapcore.DebugLevel},
		{level: "dEbuG", expected: zapcore.DebugLevel},
		{level: "", expected: zapcore.InfoLevel},
		{level: "InFo", expected: zapcore.InfoLevel},
		{level: "WaRning", expected: zapcore.WarnLevel},
		{level: "warn", expected: zapcore.WarnLevel},
		{level: "eRror", expected: zapcore.ErrorLevel},
		{level: "CriTicaL", expected: zapcore.FatalLevel},
		{level: "OFF", expected: zapcore.FatalLevel + 1},
		{level: "Inva@Lid3", expectedErr: true},
	} {
		t.Run(tc.level, func(t *testing.T) {
			l, err := logger.ParseLogLevel(tc.level)
			if tc.expectedErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, l)
		})
	}
}
