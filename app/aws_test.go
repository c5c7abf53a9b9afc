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
	"encoding/base64"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSecrets map[string]*secretsmanager.GetSecretValueOutput

func (f fakeSecrets) GetSecretValue(_ context.Context, params *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	out, ok := f[aws.ToString(params.SecretId)]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return out, nil
}

func managerOf(f fakeSecrets) func() (secretGetter, error) {
	return func() (secretGetter, error) { return f, nil }
}

type fakeCertificates map[string]*acm.GetCertificateOutput

func (f fakeCertificates) GetCertificate(_ context.Context, params *acm.GetCertificateInput, _ ...func(*acm.Options)) (*acm.GetCertificateOutput, error) {
	out, ok := f[aws.ToString(params.CertificateArn)]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return out, nil
}

func TestLoadSecret(t *testing.T) {
	secrets := fakeSecrets{
		"plain":  {SecretString: aws.String("s3cr3t")},
		"binary": {SecretBinary: []byte(base64.StdEncoding.EncodeToString([]byte("b1nary")))},
		"broken": {SecretBinary: []byte("%%%")},
	}

	v, err := loadSecret(context.Background(), managerOf(secrets), "plain")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", v)

	v, err = loadSecret(context.Background(), managerOf(secrets), "binary")
	require.NoError(t, err)
	assert.Equal(t, "b1nary", v)

	_, err = loadSecret(context.Background(), managerOf(secrets), "broken")
	assert.ErrorContains(t, err, "decode")

	_, err = loadSecret(context.Background(), managerOf(secrets), "missing")
	assert.ErrorContains(t, err, "failed to retrieve secret value")

	failing := func() (secretGetter, error) { return nil, errors.New("no region") }
	_, err = loadSecret(context.Background(), failing, "plain")
	assert.ErrorContains(t, err, "failed to create manager")
}

func TestLoadCredentialsFromEnv(t *testing.T) {
	t.Setenv("ELASTIC_TELEMETRY_API_KEY", "env-key")
	t.Setenv("ELASTIC_TELEMETRY_SECRET_TOKEN", "env-token")

	called := false
	lazy := func() (secretGetter, error) {
		called = true
		return fakeSecrets{}, nil
	}
	key, token := loadCredentials(context.Background(), lazy, zaptest.NewLogger(t).Sugar())
	assert.Equal(t, "env-key", key)
	assert.Equal(t, "env-token", token)
	assert.False(t, called, "secrets manager must not be created without secret ids")
}

func TestLoadCredentialsFromSecretsManager(t *testing.T) {
	t.Setenv("ELASTIC_TELEMETRY_API_KEY", "env-key")
	t.Setenv("ELASTIC_TELEMETRY_SECRET_TOKEN", "env-token")
	t.Setenv("ELASTIC_TELEMETRY_SECRETS_MANAGER_API_KEY_ID", "missing")
	t.Setenv("ELASTIC_TELEMETRY_SECRETS_MANAGER_SECRET_TOKEN_ID", "token")

	core, logs := observer.New(zapcore.WarnLevel)
	secrets := fakeSecrets{"token": {SecretString: aws.String("managed-token")}}

	key, token := loadCredentials(context.Background(), managerOf(secrets), zap.New(core).Sugar())
	assert.Empty(t, key)
	assert.Equal(t, "managed-token", token)
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "ELASTIC_TELEMETRY_SECRETS_MANAGER_API_KEY_ID=missing")
}

func TestLazySecretsManagerIsCreatedOnce(t *testing.T) {
	lazy := lazySecretsManager(aws.Config{Region: "eu-west-1"})
	first, err := lazy()
	require.NoError(t, err)
	second, err := lazy()
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestLoadAcmCertificate(t *testing.T) {
	certs := fakeCertificates{
		"arn:cert": {Certificate: aws.String("-----BEGIN CERTIFICATE-----")},
		"arn:none": {},
	}

	cert, err := loadAcmCertificate(context.Background(), certs, "arn:cert")
	require.NoError(t, err)
	assert.Equal(t, "-----BEGIN CERTIFICATE-----", cert)

	_, err = loadAcmCertificate(context.Background(), certs, "arn:none")
	assert.ErrorContains(t, err, "has no body")

	_, err = loadAcmCertificate(context.Background(), certs, "arn:missing")
	assert.ErrorContains(t, err, "failed to get certificate arn:missing")
}
