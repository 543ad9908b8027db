// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package ingress

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/core"
)

// HTTPIn is an inbound webhook request handed to a provider's ingest_http
// operation.
type HTTPIn struct {
	Method    string              `json:"method"`
	Path      string              `json:"path"`
	Query     *string             `json:"query,omitempty"`
	Headers   []capability.Header `json:"headers"`
	BodyB64   string              `json:"body_b64"`
	Route     *string             `json:"route,omitempty"`
	BindingID *string             `json:"binding_id,omitempty"`
	Config    json.RawMessage     `json:"config,omitempty"`
}

// ParseHTTPIn decodes an HTTPIn. The query may be a string or a list of
// [key, value] pairs; headers may be [name, value] pairs or {name, value}
// objects. Method defaults to POST and path to "/".
func ParseHTTPIn(raw []byte) (HTTPIn, error) {
	var wire struct {
		Method    string          `json:"method"`
		Path      string          `json:"path"`
		Query     json.RawMessage `json:"query"`
		Headers   []any           `json:"headers"`
		BodyB64   string          `json:"body_b64"`
		Route     *string         `json:"route"`
		BindingID *string         `json:"binding_id"`
		Config    json.RawMessage `json:"config"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return HTTPIn{}, err
	}
	in := HTTPIn{
		Method:    wire.Method,
		Path:      wire.Path,
		Query:     parseQuery(wire.Query),
		Headers:   parseHeaders(wire.Headers),
		BodyB64:   wire.BodyB64,
		Route:     wire.Route,
		BindingID: wire.BindingID,
		Config:    wire.Config,
	}
	if in.Method == "" {
		in.Method = http.MethodPost
	}
	if in.Path == "" {
		in.Path = "/"
	}
	return in, nil
}

func parseQuery(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s
	}
	var pairs [][]any
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil
	}
	parts := make([]string, 0, len(pairs))
	for _, kv := range pairs {
		if len(kv) == 0 {
			continue
		}
		k, ok := kv[0].(string)
		if !ok {
			continue
		}
		v := ""
		if len(kv) > 1 {
			v, _ = kv[1].(string)
		}
		parts = append(parts, k+"="+v)
	}
	if len(parts) == 0 {
		return nil
	}
	q := strings.Join(parts, "&")
	return &q
}

func parseHeaders(items []any) []capability.Header {
	out := make([]capability.Header, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case []any:
			if len(v) == 0 {
				continue
			}
			name, ok := v[0].(string)
			if !ok {
				continue
			}
			value := ""
			if len(v) > 1 {
				value, _ = v[1].(string)
			}
			out = append(out, capability.Header{Name: name, Value: value})
		case map[string]any:
			name, ok := v["name"].(string)
			if !ok {
				continue
			}
			value, _ := v["value"].(string)
			out = append(out, capability.Header{Name: name, Value: value})
		}
	}
	return out
}

// Body decodes BodyB64.
func (in HTTPIn) Body() ([]byte, error) {
	return base64.StdEncoding.DecodeString(in.BodyB64)
}

// Header returns the first header named name, ASCII case-insensitively.
func (in HTTPIn) Header(name string) (string, bool) {
	return capability.LookupHeader(in.Headers, name)
}

// QueryValues parses Query; a missing or malformed query is empty.
func (in HTTPIn) QueryValues() url.Values {
	if in.Query == nil {
		return url.Values{}
	}
	v, err := url.ParseQuery(strings.TrimPrefix(*in.Query, "?"))
	if err != nil {
		return url.Values{}
	}
	return v
}

// FromRequest wraps an HTTP request as an HTTPIn.
func FromRequest(r *http.Request, body []byte) HTTPIn {
	in := HTTPIn{
		Method:  r.Method,
		Path:    r.URL.Path,
		Headers: HeadersFrom(r.Header),
		BodyB64: base64.StdEncoding.EncodeToString(body),
	}
	if r.URL.RawQuery != "" {
		q := r.URL.RawQuery
		in.Query = &q
	}
	return in
}

// HeadersFrom flattens h in sorted name order.
func HeadersFrom(h http.Header) []capability.Header {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]capability.Header, 0, len(names))
	for _, name := range names {
		for _, v := range h[name] {
			out = append(out, capability.Header{Name: name, Value: v})
		}
	}
	return out
}

// HTTPOut is the ingest_http result: the response to return to the
// webhook caller plus the envelopes it produced.
type HTTPOut struct {
	Status  int                           `json:"status"`
	Headers []capability.Header           `json:"headers"`
	BodyB64 string                        `json:"body_b64"`
	Events  []core.ChannelMessageEnvelope `json:"events"`
}

// MarshalJSON writes the versioned wire form with headers as
// [name, value] pairs.
func (o HTTPOut) MarshalJSON() ([]byte, error) {
	headers := make([][2]string, 0, len(o.Headers))
	for _, h := range o.Headers {
		headers = append(headers, [2]string{h.Name, h.Value})
	}
	events := o.Events
	if events == nil {
		events = []core.ChannelMessageEnvelope{}
	}
	return json.Marshal(struct {
		V       int                           `json:"v"`
		Status  int                           `json:"status"`
		Headers [][2]string                   `json:"headers"`
		BodyB64 string                        `json:"body_b64"`
		Events  []core.ChannelMessageEnvelope `json:"events"`
	}{1, o.Status, headers, o.BodyB64, events})
}

// UnmarshalJSON reads the wire form written by MarshalJSON.
func (o *HTTPOut) UnmarshalJSON(data []byte) error {
	var wire struct {
		Status  int                           `json:"status"`
		Headers []any                         `json:"headers"`
		BodyB64 string                        `json:"body_b64"`
		Events  []core.ChannelMessageEnvelope `json:"events"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*o = HTTPOut{Status: wire.Status, Headers: parseHeaders(wire.Headers), BodyB64: wire.BodyB64, Events: wire.Events}
	return nil
}

// Body decodes BodyB64.
func (o HTTPOut) Body() ([]byte, error) {
	return base64.StdEncoding.DecodeString(o.BodyB64)
}

// JSONOut returns a 200 response whose body is v as JSON.
func JSONOut(v any, events ...core.ChannelMessageEnvelope) HTTPOut {
	body, err := json.Marshal(v)
	if err != nil {
		body = []byte("{}")
	}
	return HTTPOut{
		Status:  http.StatusOK,
		Headers: []capability.Header{{Name: "Content-Type", Value: "application/json"}},
		BodyB64: base64.StdEncoding.EncodeToString(body),
		Events:  events,
	}
}

// TextOut returns a plain text response.
func TextOut(status int, text string) HTTPOut {
	return HTTPOut{
		Status:  status,
		Headers: []capability.Header{{Name: "Content-Type", Value: "text/plain"}},
		BodyB64: base64.StdEncoding.EncodeToString([]byte(text)),
	}
}

// ErrorOut returns an error response carrying message as the body.
func ErrorOut(status int, message string) HTTPOut {
	return HTTPOut{
		Status:  status,
		BodyB64: base64.StdEncoding.EncodeToString([]byte(message)),
	}
}
