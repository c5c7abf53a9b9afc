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
	"bytes"
	"strconv"
)

// SerializeBuckets renders buckets as statsd lines:
//
//	name@unit:value[:value...]|type[|#key:value,...]|T<unix seconds>
func SerializeBuckets(buckets []*Bucket) []byte {
	var buf bytes.Buffer
	for _, b := range buckets {
		buf.WriteString(b.Name)
		buf.WriteByte('@')
		buf.WriteString(b.Unit)
		buf.WriteByte(':')
		buf.WriteString(b.Metric.String())
		buf.WriteByte('|')
		buf.WriteString(string(b.Type))
		if len(b.Tags) > 0 {
			buf.WriteString("|#")
			for i, k := range sortedKeys(b.Tags) {
				if i > 0 {
					buf.WriteByte(',')
				}
				buf.WriteString(k)
				buf.WriteByte(':')
				buf.WriteString(b.Tags[k])
			}
		}
		buf.WriteString("|T")
		buf.WriteString(strconv.FormatInt(b.Timestamp, 10))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
