// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package providertest drives provider definitions through a dispatcher in
// tests.
package providertest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/codec"
	"github.com/greentic/messaging-providers/internal/ingress"
	"github.com/greentic/messaging-providers/internal/provider"
)

// Harness invokes one provider with a fixed capability set.
type Harness struct {
	t    *testing.T
	def  *provider.Definition
	disp *provider.Dispatcher
}

// New returns a harness for def using caps.
func New(t *testing.T, def *provider.Definition, caps capability.Set) *Harness {
	t.Helper()
	d, err := provider.NewDispatcher(provider.NewRegistry(def), provider.WithCapabilities(caps))
	require.NoError(t, err)
	return &Harness{t: t, def: def, disp: d}
}

// Raw invokes op with input, which is marshaled unless it is a string or
// a byte slice, and returns the raw output.
func (h *Harness) Raw(op string, input any) []byte {
	h.t.Helper()
	var raw []byte
	switch v := input.(type) {
	case nil:
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		var err error
		raw, err = json.Marshal(v)
		require.NoError(h.t, err)
	}
	out, err := h.disp.Invoke(context.Background(), provider.Call{Provider: h.def.ID, Op: op, Input: raw})
	require.NoError(h.t, err)
	return out
}

// Object invokes op and decodes the output as a JSON object.
func (h *Harness) Object(op string, input any) map[string]any {
	h.t.Helper()
	out := h.Raw(op, input)
	var obj map[string]any
	require.NoError(h.t, json.Unmarshal(out, &obj), "output: %s", out)
	return obj
}

// Error invokes op and returns the error message of a failed result.
func (h *Harness) Error(op string, input any) string {
	h.t.Helper()
	obj := h.Object(op, input)
	require.Equal(h.t, false, obj["ok"], "expected failure, got %v", obj)
	msg, _ := obj["error"].(string)
	return msg
}

// Webhook invokes ingest_http with a request carrying body and headers
// given as name/value pairs.
func (h *Harness) Webhook(method, path string, body []byte, headers ...string) ingress.HTTPOut {
	h.t.Helper()
	pairs := make([][2]string, 0, len(headers)/2)
	for i := 0; i+1 < len(headers); i += 2 {
		pairs = append(pairs, [2]string{headers[i], headers[i+1]})
	}
	out := h.Raw(provider.OpIngestHTTP, map[string]any{
		"method":   method,
		"path":     path,
		"headers":  pairs,
		"body_b64": base64.StdEncoding.EncodeToString(body),
	})
	var res ingress.HTTPOut
	require.NoError(h.t, json.Unmarshal(out, &res), "output: %s", out)
	return res
}

// Apply runs apply-answers and returns the decoded result.
func (h *Harness) Apply(mode string, answers map[string]any) map[string]any {
	h.t.Helper()
	return h.Object("apply-answers", map[string]any{"mode": mode, "answers": answers})
}

// QuestionIDs returns the question ids of qa-spec for mode.
func (h *Harness) QuestionIDs(mode string) []string {
	h.t.Helper()
	spec := h.Object("qa-spec", map[string]any{"mode": mode})
	var ids []string
	questions, _ := spec["questions"].([]any)
	for _, q := range questions {
		if obj, ok := q.(map[string]any); ok {
			id, _ := obj["id"].(string)
			ids = append(ids, id)
		}
	}
	return ids
}

// Bundle invokes i18n-bundle and decodes its CBOR output.
func (h *Harness) Bundle(locale string) map[string]any {
	h.t.Helper()
	out := h.Raw(provider.OpI18nBundle, map[string]any{"locale": locale})
	js, err := codec.ToJSON(out)
	require.NoError(h.t, err)
	var obj map[string]any
	require.NoError(h.t, json.Unmarshal(js, &obj))
	return obj
}

// Plan invokes render_plan and decodes the nested plan_json.
func (h *Harness) Plan(input any) map[string]any {
	h.t.Helper()
	out := h.Object(provider.OpRenderPlan, input)
	require.Equal(h.t, true, out["ok"], "render_plan failed: %v", out)
	plan, _ := out["plan"].(map[string]any)
	raw, _ := plan["plan_json"].(string)
	var obj map[string]any
	require.NoError(h.t, json.Unmarshal([]byte(raw), &obj))
	return obj
}

// Payload decodes the body of an encode result.
func Payload(t *testing.T, encoded map[string]any) (body map[string]any, meta map[string]any) {
	t.Helper()
	require.Equal(t, true, encoded["ok"], "encode failed: %v", encoded)
	payload, _ := encoded["payload"].(map[string]any)
	raw, err := base64.StdEncoding.DecodeString(payload["body_b64"].(string))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &body))
	meta, _ = payload["metadata"].(map[string]any)
	return body, meta
}
