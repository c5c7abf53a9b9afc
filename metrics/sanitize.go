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
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
)

const (
	maxNameLength     = 200
	maxTagKeyLength   = 32
	maxTagValueLength = 200
)

var (
	nameAndTagKeyPattern = regexp.MustCompile(`[^a-zA-Z0-9_/.-]+`)
	tagValuePattern      = regexp.MustCompile(`[^\w\s_:/@.{}\[\]$-]+`)
	unitPattern          = regexp.MustCompile(`[^\w]+`)
)

// SanitizeName replaces every run of disallowed characters in a metric
// name with an underscore and clamps its length.
func SanitizeName(name string) string {
	return clamp(nameAndTagKeyPattern.ReplaceAllString(name, "_"), maxNameLength)
}

// SanitizeUnit strips non word characters from a unit. An empty unit
// becomes "none".
func SanitizeUnit(unit string) string {
	unit = unitPattern.ReplaceAllString(unit, "")
	if unit == "" {
		return defaultUnit
	}
	return unit
}

// SanitizeTags normalizes tag keys and values. Values that are not
// primitives are dropped; the result is never nil. When several raw keys
// sanitize to the same key, the value of the greatest raw key wins.
func SanitizeTags(tags map[string]any) map[string]string {
	out := make(map[string]string, len(tags))
	raw := make([]string, 0, len(tags))
	for k := range tags {
		raw = append(raw, k)
	}
	sort.Strings(raw)
	for _, k := range raw {
		s, ok := primitiveString(tags[k])
		if !ok {
			continue
		}
		key := clamp(nameAndTagKeyPattern.ReplaceAllString(k, "_"), maxTagKeyLength)
		out[key] = clamp(tagValuePattern.ReplaceAllString(s, ""), maxTagValueLength)
	}
	return out
}

func primitiveString(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case int:
		return strconv.FormatInt(int64(v), 10), true
	case int8:
		return strconv.FormatInt(int64(v), 10), true
	case int16:
		return strconv.FormatInt(int64(v), 10), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint:
		return strconv.FormatUint(uint64(v), 10), true
	case uint8:
		return strconv.FormatUint(uint64(v), 10), true
	case uint16:
		return strconv.FormatUint(uint64(v), 10), true
	case uint32:
		return strconv.FormatUint(uint64(v), 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case float32:
		return formatFloat(float64(v)), true
	case float64:
		return formatFloat(v), true
	case fmt.Stringer:
		return v.String(), true
	}
	return "", false
}

// numeric converts an emitted value to a finite float. Strings are
// parsed so that "3.5" can still feed a distribution; NaN and infinities
// are rejected.
func numeric(v any) (float64, bool) {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func clamp(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
