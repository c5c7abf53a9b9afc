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

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMainWithErrorLoadsEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("ELASTIC_TELEMETRY_LOG_LEVEL=loud\n"), 0o600))
	t.Setenv("ELASTIC_TELEMETRY_ENV_FILE", envFile)
	t.Setenv("ELASTIC_TELEMETRY_SERVER_URL", "http://localhost:8200")
	t.Setenv("ELASTIC_TELEMETRY_LOG_LEVEL", "")
	os.Unsetenv("ELASTIC_TELEMETRY_LOG_LEVEL")

	err := mainWithError()
	assert.ErrorContains(t, err, "invalid log level")
	assert.Equal(t, "loud", os.Getenv("ELASTIC_TELEMETRY_LOG_LEVEL"))
}

func TestMainWithErrorMissingEnvFile(t *testing.T) {
	t.Setenv("ELASTIC_TELEMETRY_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	err := mainWithError()
	assert.ErrorContains(t, err, "failed to load env file")
}
