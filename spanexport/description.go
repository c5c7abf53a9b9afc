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

package spanexport

import (
	"net/url"
)

const (
	sourceCustom = "custom"
	sourceRoute  = "route"
	sourceURL    = "url"
	sourceTask   = "task"
)

type spanDescription struct {
	op          string
	description string
	source      string
}

// describeSpan infers op, description and transaction source from the
// semantic attributes of a span.
func describeSpan(s *SpanRecord) spanDescription {
	attrs := s.Attributes
	if method, ok := stringAttribute(attrs, "http.method"); ok {
		return describeHTTP(s, method)
	}
	if _, ok := stringAttribute(attrs, "db.system"); ok {
		description := s.Name
		if statement, ok := stringAttribute(attrs, "db.statement"); ok {
			description = statement
		}
		return spanDescription{op: "db", description: description, source: sourceTask}
	}
	if _, ok := stringAttribute(attrs, "rpc.service"); ok {
		return spanDescription{op: "rpc", description: s.Name, source: sourceRoute}
	}
	if _, ok := stringAttribute(attrs, "messaging.system"); ok {
		return spanDescription{op: "message", description: s.Name, source: sourceRoute}
	}
	if trigger, ok := stringAttribute(attrs, "faas.trigger"); ok {
		return spanDescription{op: trigger, description: s.Name, source: sourceRoute}
	}
	return spanDescription{description: s.Name, source: sourceCustom}
}

func describeHTTP(s *SpanRecord, method string) spanDescription {
	d := spanDescription{op: "http", description: s.Name, source: sourceCustom}
	switch s.Kind {
	case KindServer:
		d.op = "http.server"
	case KindClient:
		d.op = "http.client"
	}

	if route, ok := stringAttribute(s.Attributes, "http.route"); ok && s.Kind == KindServer {
		d.description = method + " " + route
		d.source = sourceRoute
		return d
	}
	if target := requestURL(s.Attributes); target != nil {
		d.description = method + " " + urlWithoutQuery(target)
		d.source = sourceURL
	}
	return d
}

// requestURL parses http.url, falling back to http.target.
func requestURL(attrs map[string]any) *url.URL {
	raw, ok := stringAttribute(attrs, "http.url")
	if !ok {
		raw, ok = stringAttribute(attrs, "http.target")
	}
	if !ok {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	return u
}

func urlWithoutQuery(u *url.URL) string {
	stripped := *u
	stripped.RawQuery = ""
	stripped.ForceQuery = false
	stripped.Fragment = ""
	stripped.RawFragment = ""
	return stripped.String()
}

// requestData extracts url, query and fragment of an HTTP span.
func requestData(attrs map[string]any) map[string]any {
	data := make(map[string]any)
	u := requestURL(attrs)
	if u == nil {
		return data
	}
	if s := urlWithoutQuery(u); s != "" {
		data["url"] = s
	}
	if u.RawQuery != "" {
		data["http.query"] = u.RawQuery
	}
	if u.Fragment != "" {
		data["http.fragment"] = u.Fragment
	}
	return data
}
