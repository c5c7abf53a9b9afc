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

package metrics

import (
	"sort"
	"strings"
)

// Bucket is the aggregate for one (type, name, unit, tags) combination.
type Bucket struct {
	Key    string
	Type   Type
	Name   string
	Unit   string
	Tags   map[string]string
	Metric Metric
	// Timestamp is the Unix second of the latest emission. It only
	// decides when a scheduled flush picks the bucket up.
	Timestamp int64
}

// BucketKey returns the deterministic key under which emissions with
// the given, already sanitized, attributes are merged.
func BucketKey(t Type, name, unit string, tags map[string]string) string {
	var b strings.Builder
	b.WriteString(string(t))
	b.WriteByte('|')
	b.WriteString(name)
	b.WriteByte('|')
	b.WriteString(unit)
	for _, k := range sortedKeys(tags) {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(tags[k])
	}
	return b.String()
}

func sortedKeys(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
