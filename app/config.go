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
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/zoobzio/clockz"
)

type appConfig struct {
	awsConfig    aws.Config
	logLevel     string
	serverURL    string
	receiverAddr string
	clock        clockz.Clock
}

// ConfigOption is used to configure the telemetry buffer.
type ConfigOption func(*appConfig)

// WithLogLevel sets the log level.
func WithLogLevel(level string) ConfigOption {
	return func(c *appConfig) {
		c.logLevel = level
	}
}

// WithServerURL sets the intake URL. It takes precedence over
// ELASTIC_TELEMETRY_SERVER_URL.
func WithServerURL(url string) ConfigOption {
	return func(c *appConfig) {
		c.serverURL = url
	}
}

// WithReceiverAddress sets the listen address of the local intake. It
// takes precedence over ELASTIC_TELEMETRY_RECEIVER_ADDRESS.
func WithReceiverAddress(addr string) ConfigOption {
	return func(c *appConfig) {
		c.receiverAddr = addr
	}
}

// WithClock sets the clock shared by the aggregator, the span exporter
// and the transport.
func WithClock(cl clockz.Clock) ConfigOption {
	return func(c *appConfig) {
		c.clock = cl
	}
}

// WithAWSConfig sets the AWS config used for Secrets Manager and ACM.
func WithAWSConfig(awsConfig aws.Config) ConfigOption {
	return func(c *appConfig) {
		c.awsConfig = awsConfig
	}
}
