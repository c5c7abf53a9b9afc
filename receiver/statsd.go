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
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/elastic/apm-telemetry-buffer/metrics"
)

var (
	errMissingValue = errors.New("missing value")
	errMissingType  = errors.New("missing type")
)

// Sample is one parsed statsd line. A line may carry several values for
// the same metric.
type Sample struct {
	Type      metrics.Type
	Name      string
	Unit      string
	Values    []any
	Tags      map[string]any
	Timestamp time.Time
}

// ParseStatsdLine parses `name[@unit]:value[:value...]|type[|#k:v,...][|T<unix>]`.
// Set values that are not numbers are kept as strings.
func ParseStatsdLine(line []byte) (Sample, error) {
	var s Sample
	head, rest, ok := bytes.Cut(line, []byte("|"))
	if !ok {
		return s, errMissingType
	}
	key, values, ok := bytes.Cut(head, []byte(":"))
	if !ok || len(values) == 0 {
		return s, errMissingValue
	}
	name, unit, _ := bytes.Cut(key, []byte("@"))
	if len(name) == 0 {
		return s, errors.New("missing name")
	}
	s.Name, s.Unit = string(name), string(unit)

	fields := bytes.Split(rest, []byte("|"))
	s.Type = metrics.Type(fields[0])
	switch s.Type {
	case metrics.Counter, metrics.Gauge, metrics.Distribution, metrics.Set:
	default:
		return s, fmt.Errorf("unknown metric type %q", fields[0])
	}

	for _, raw := range bytes.Split(values, []byte(":")) {
		v, err := strconv.ParseFloat(string(raw), 64)
		switch {
		case err == nil:
			s.Values = append(s.Values, v)
		case s.Type == metrics.Set && len(raw) > 0:
			s.Values = append(s.Values, string(raw))
		default:
			return s, fmt.Errorf("invalid value %q", raw)
		}
	}

	for _, field := range fields[1:] {
		switch {
		case len(field) > 1 && field[0] == '#':
			s.Tags = parseTags(field[1:])
		case len(field) > 1 && field[0] == 'T':
			sec, err := strconv.ParseInt(string(field[1:]), 10, 64)
			if err != nil {
				return s, fmt.Errorf("invalid timestamp %q", field[1:])
			}
			s.Timestamp = time.Unix(sec, 0)
		}
	}
	return s, nil
}

func parseTags(raw []byte) map[string]any {
	tags := make(map[string]any)
	for _, pair := range bytes.Split(raw, []byte(",")) {
		k, v, _ := bytes.Cut(pair, []byte(":"))
		if len(k) == 0 {
			continue
		}
		tags[string(k)] = string(v)
	}
	return tags
}
