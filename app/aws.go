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
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"go.uber.org/zap"
)

type secretGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type certificateGetter interface {
	GetCertificate(ctx context.Context, params *acm.GetCertificateInput, optFns ...func(*acm.Options)) (*acm.GetCertificateOutput, error)
}

func lazySecretsManager(cfg aws.Config) func() (secretGetter, error) {
	var manager secretGetter
	return func() (secretGetter, error) {
		if manager == nil {
			manager = secretsmanager.NewFromConfig(cfg)
		}
		return manager, nil
	}
}

// loadCredentials returns the API key and secret token for the intake.
// Values from the environment are replaced by Secrets Manager secrets
// when a secret id is configured.
func loadCredentials(ctx context.Context, lazyManager func() (secretGetter, error), logger *zap.SugaredLogger) (string, string) {
	apiKey := os.Getenv("ELASTIC_TELEMETRY_API_KEY")
	if secretID, ok := os.LookupEnv("ELASTIC_TELEMETRY_SECRETS_MANAGER_API_KEY_ID"); ok {
		result, err := loadSecret(ctx, lazyManager, secretID)
		if err != nil {
			logger.Warnf("Could not load API key from AWS Secrets Manager. Sending telemetry will likely fail. Is 'ELASTIC_TELEMETRY_SECRETS_MANAGER_API_KEY_ID=%s' correct? Error message: %v", secretID, err)
			apiKey = ""
		} else {
			logger.Infof("Using the API key retrieved from AWS Secrets Manager.")
			apiKey = result
		}
	}

	secretToken := os.Getenv("ELASTIC_TELEMETRY_SECRET_TOKEN")
	if secretID, ok := os.LookupEnv("ELASTIC_TELEMETRY_SECRETS_MANAGER_SECRET_TOKEN_ID"); ok {
		result, err := loadSecret(ctx, lazyManager, secretID)
		if err != nil {
			logger.Warnf("Could not load secret token from AWS Secrets Manager. Sending telemetry will likely fail. Is 'ELASTIC_TELEMETRY_SECRETS_MANAGER_SECRET_TOKEN_ID=%s' correct? Error message: %v", secretID, err)
			secretToken = ""
		} else {
			logger.Infof("Using the secret token retrieved from AWS Secrets Manager.")
			secretToken = result
		}
	}

	return apiKey, secretToken
}

func loadSecret(ctx context.Context, lazyManager func() (secretGetter, error), secretID string) (string, error) {
	input := &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(secretID),
		VersionStage: aws.String("AWSCURRENT"),
	}

	manager, err := lazyManager()
	if err != nil {
		return "", fmt.Errorf("failed to create manager: %w", err)
	}

	result, err := manager.GetSecretValue(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve secret value: %w", err)
	}

	if result.SecretString != nil {
		return *result.SecretString, nil
	}

	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(result.SecretBinary)))
	n, err := base64.StdEncoding.Decode(decoded, result.SecretBinary)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64 encoded secret: %w", err)
	}

	return string(decoded[:n]), nil
}

func loadAcmCertificate(ctx context.Context, client certificateGetter, arn string) (string, error) {
	response, err := client.GetCertificate(ctx, &acm.GetCertificateInput{
		CertificateArn: aws.String(arn),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get certificate %s: %w", arn, err)
	}
	if response.Certificate == nil {
		return "", fmt.Errorf("certificate %s has no body", arn)
	}

	return *response.Certificate, nil
}
