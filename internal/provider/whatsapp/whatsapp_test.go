// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package whatsapp_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/capability/capabilitytest"
	"github.com/greentic/messaging-providers/internal/ingress"
	"github.com/greentic/messaging-providers/internal/provider"
	"github.com/greentic/messaging-providers/internal/provider/providertest"
	"github.com/greentic/messaging-providers/internal/provider/whatsapp"
)

const schemaHash = "12fc34242be5488838d7989630baa19d0fbdff69ec3706d8e3b50bb25d2fe45f"

func validConfig() map[string]any {
	return map[string]any{
		"phone_number_id": "1055",
		"public_base_url": "https://example.com",
		"token":           "wa-token",
	}
}

func newHarness(t *testing.T, secrets map[string]string, replies ...capabilitytest.Reply) (*providertest.Harness, *capabilitytest.FakeHTTP) {
	t.Helper()
	fake := capabilitytest.NewFakeHTTP(replies...)
	return providertest.New(t, whatsapp.Definition, fake.Set(secrets)), fake
}

func sent(id string) capabilitytest.Reply {
	return capabilitytest.JSONReply(200, map[string]any{
		"messaging_product": "whatsapp",
		"messages":          []any{map[string]any{"id": id}},
	})
}

func message(text string, meta map[string]any) map[string]any {
	msg := map[string]any{
		"id":         "m1",
		"tenant":     map[string]any{"env": "default", "tenant": "default"},
		"channel":    "whatsapp",
		"session_id": "s",
	}
	if text != "" {
		msg["text"] = text
	}
	if meta != nil {
		msg["metadata"] = meta
	}
	return msg
}

func TestDescribe(t *testing.T) {
	d := whatsapp.Definition.Describe()
	assert.Equal(t, schemaHash, d.SchemaHash)
	require.Len(t, d.Redactions, 1)
	assert.Equal(t, "$.token", d.Redactions[0].Path)
}

func TestSend_PostsTextMessage(t *testing.T) {
	h, fake := newHarness(t, nil, sent("wamid.1"))

	out := h.Object(provider.OpSend, map[string]any{"to": "+15550001", "text": "hello", "config": validConfig()})

	require.Equal(t, true, out["ok"], "%v", out)
	assert.Equal(t, "wamid.1", out["message_id"])
	assert.Equal(t, "whatsapp:wamid.1", out["provider_message_id"])
	assert.Equal(t, "sent", out["status"])

	req, _ := fake.LastRequest()
	assert.Equal(t, "https://graph.facebook.com/v19.0/1055/messages", req.URL)
	auth, _ := capability.LookupHeader(req.Headers, "Authorization")
	assert.Equal(t, "Bearer wa-token", auth)
	assert.Equal(t, map[string]any{
		"messaging_product": "whatsapp",
		"to":                "+15550001",
		"type":              "text",
		"text":              map[string]any{"body": "hello"},
	}, fake.LastJSONBody())
}

func TestSend_TopLevelConfigAndSecretToken(t *testing.T) {
	h, fake := newHarness(t, map[string]string{whatsapp.TokenKey: "secret-token"})

	out := h.Object(provider.OpSend, map[string]any{
		"to":              map[string]any{"id": "+1555", "kind": "user"},
		"text":            "hi",
		"phone_number_id": "77",
		"api_version":     "v20.0",
	})

	require.Equal(t, true, out["ok"], "%v", out)
	assert.Equal(t, "wa-message", out["message_id"])
	req, _ := fake.LastRequest()
	assert.Equal(t, "https://graph.facebook.com/v20.0/77/messages", req.URL)
	auth, _ := capability.LookupHeader(req.Headers, "Authorization")
	assert.Equal(t, "Bearer secret-token", auth)
}

func TestSend_Template(t *testing.T) {
	h, fake := newHarness(t, nil, sent("wamid.t"))

	out := h.Object(provider.OpSend, map[string]any{
		"to":     "+1555",
		"config": validConfig(),
		"rich": map[string]any{
			"format":   "whatsapp_template",
			"name":     "order_update",
			"language": "de",
		},
	})

	require.Equal(t, true, out["ok"], "%v", out)
	body := fake.LastJSONBody()
	assert.Equal(t, "template", body["type"])
	assert.Equal(t, map[string]any{"name": "order_update", "language": map[string]any{"code": "de"}}, body["template"])
	assert.NotContains(t, body, "text")
}

func TestSend_Failures(t *testing.T) {
	tests := []struct {
		name  string
		input map[string]any
		want  string
	}{
		{"no config", map[string]any{"to": "+1", "text": "hi"}, "invalid config: expected `config` or top-level config fields"},
		{"no phone number", map[string]any{"to": "+1", "text": "hi", "config": map[string]any{"public_base_url": "https://example.com"}}, "invalid config: phone_number_id cannot be empty"},
		{"disabled", map[string]any{"to": "+1", "text": "hi", "config": map[string]any{"enabled": false, "phone_number_id": "1"}}, "provider disabled by config"},
		{"no destination", map[string]any{"text": "hi", "config": validConfig()}, "destination required"},
		{"bad kind", map[string]any{"to": map[string]any{"id": "x", "kind": "channel"}, "text": "hi", "config": validConfig()}, "unsupported destination kind: channel"},
		{"no text", map[string]any{"to": "+1", "config": validConfig()}, "text required"},
		{"template without name", map[string]any{"to": "+1", "config": validConfig(), "rich": map[string]any{"format": "whatsapp_template"}}, "template name required"},
		{"no token", map[string]any{"to": "+1", "text": "hi", "config": map[string]any{"phone_number_id": "1"}}, "missing secret: WHATSAPP_TOKEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, fake := newHarness(t, nil)
			assert.Contains(t, h.Error(provider.OpSend, tt.input), tt.want)
			assert.Empty(t, fake.Requests())
		})
	}
}

func TestSend_UpstreamStatus(t *testing.T) {
	h, _ := newHarness(t, nil, capabilitytest.JSONReply(401, map[string]any{"error": map[string]any{"code": 190}}))

	assert.Equal(t, "whatsapp returned status 401",
		h.Error(provider.OpSend, map[string]any{"to": "+1", "text": "hi", "config": validConfig()}))
}

func TestReply_SetsContext(t *testing.T) {
	h, fake := newHarness(t, nil)

	assert.Equal(t, "reply_to_id or thread_id required",
		h.Error(provider.OpReply, map[string]any{"to": "+1", "text": "hi", "config": validConfig()}))

	out := h.Object(provider.OpReply, map[string]any{"to": "+1", "text": "hi", "reply_to_id": "wamid.in", "config": validConfig()})
	require.Equal(t, true, out["ok"], "%v", out)
	assert.Equal(t, "replied", out["status"])
	assert.Equal(t, "wa-reply", out["message_id"])
	assert.Equal(t, map[string]any{"message_id": "wamid.in"}, fake.LastJSONBody()["context"])
}

func challengeRequest(t *testing.T, h *providertest.Harness, query string) ingress.HTTPOut {
	t.Helper()
	out := h.Raw(provider.OpIngestHTTP, map[string]any{
		"method":   http.MethodGet,
		"path":     "/whatsapp",
		"query":    query,
		"headers":  []any{},
		"body_b64": "",
	})
	var res ingress.HTTPOut
	require.NoError(t, json.Unmarshal(out, &res))
	return res
}

func TestIngestHTTP_SubscriptionHandshake(t *testing.T) {
	h, _ := newHarness(t, map[string]string{ingress.WhatsAppVerifyKey: "yes"})

	ok := challengeRequest(t, h, "hub.mode=subscribe&hub.verify_token=yes&hub.challenge=1158201444")
	require.Equal(t, http.StatusOK, ok.Status)
	body, err := ok.Body()
	require.NoError(t, err)
	assert.Equal(t, "1158201444", string(body))

	denied := challengeRequest(t, h, "hub.mode=subscribe&hub.verify_token=no&hub.challenge=1")
	assert.Equal(t, http.StatusForbidden, denied.Status)
}

func TestIngestHTTP_CloudNotification(t *testing.T) {
	h, _ := newHarness(t, nil)
	body := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {
			"metadata": {"phone_number_id": "1055"},
			"messages": [
				{"id": "wamid.A", "from": "15551234", "type": "text", "text": {"body": "hello"}},
				{"id": "wamid.B", "from": "15551234", "type": "interactive", "interactive": {"button_reply": {"id": "b1", "title": "Yes"}}}
			]
		}}]}]
	}`)

	out := h.Webhook(http.MethodPost, "/whatsapp", body)

	require.Equal(t, http.StatusOK, out.Status)
	require.Len(t, out.Events, 2)
	first := out.Events[0]
	assert.Equal(t, "whatsapp-wamid.A", first.ID)
	assert.Equal(t, "hello", *first.Text)
	assert.Equal(t, "1055", first.Metadata["phone_number_id"])
	assert.Equal(t, "15551234", first.Metadata["from"])
	require.Len(t, first.To, 1)
	assert.Equal(t, "phone", first.To[0].Kind)
	assert.Equal(t, "Yes", *out.Events[1].Text)
}

func TestIngestHTTP_StatusOnlyNotification(t *testing.T) {
	h, _ := newHarness(t, nil)
	body := []byte(`{"entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.A","status":"delivered"}]}}]}]}`)

	out := h.Webhook(http.MethodPost, "/whatsapp", body)

	assert.Equal(t, http.StatusOK, out.Status)
	assert.Empty(t, out.Events)
}

func TestIngestHTTP_FlatBody(t *testing.T) {
	h, _ := newHarness(t, nil)

	out := h.Webhook(http.MethodPost, "/whatsapp", []byte(`{"from":"1555","text":{"body":"yo"}}`))

	require.Len(t, out.Events, 1)
	assert.Equal(t, "yo", *out.Events[0].Text)
	assert.Equal(t, "unknown", out.Events[0].Metadata["phone_number_id"])
}

func TestIngestHTTP_VerifyTokenMismatch(t *testing.T) {
	h, _ := newHarness(t, map[string]string{ingress.WhatsAppVerifyKey: "yes"})

	out := h.Webhook(http.MethodPost, "/whatsapp", []byte(`{"hub.verify_token":"no"}`))

	assert.Equal(t, http.StatusBadRequest, out.Status)
	body, err := out.Body()
	require.NoError(t, err)
	assert.Contains(t, string(body), "verify token mismatch")
}

func TestEncodeThenSendPayload(t *testing.T) {
	h, fake := newHarness(t, map[string]string{whatsapp.TokenKey: "tok"}, sent("wamid.x"))
	msg := message("", map[string]any{
		"from":            "15559876",
		"phone_number_id": "1055",
		"adaptive_card":   `{"type":"AdaptiveCard","body":[{"type":"TextBlock","text":"Order shipped"}]}`,
	})

	encoded := h.Object(provider.OpEncode, map[string]any{"message": msg})
	body, meta := providertest.Payload(t, encoded)
	assert.Equal(t, "https://graph.facebook.com/v19.0/1055/messages", meta["url"])
	assert.Equal(t, map[string]any{"kind": "phone", "id": "15559876"}, body["to"])
	assert.Contains(t, body["text"], "Order shipped")

	out := h.Object(provider.OpSendPayload, map[string]any{"provider_type": whatsapp.ProviderType, "payload": encoded["payload"]})
	require.Equal(t, true, out["ok"], "%v", out)
	req, _ := fake.LastRequest()
	assert.Equal(t, "https://graph.facebook.com/v19.0/1055/messages", req.URL)
	assert.Equal(t, "15559876", fake.LastJSONBody()["to"])
}

func TestEncode_DefaultText(t *testing.T) {
	h, _ := newHarness(t, nil)

	encoded := h.Object(provider.OpEncode, map[string]any{"message": message("", nil)})
	body, meta := providertest.Payload(t, encoded)

	assert.Equal(t, "universal whatsapp payload", body["text"])
	assert.NotContains(t, body, "config")
	assert.NotContains(t, meta, "url")
}

func TestSendPayload_ServerErrorIsRetryable(t *testing.T) {
	h, _ := newHarness(t, map[string]string{whatsapp.TokenKey: "tok"}, capabilitytest.JSONReply(502, nil))
	encoded := h.Object(provider.OpEncode, map[string]any{"message": message("hi", map[string]any{"from": "1", "phone_number_id": "2"})})

	out := h.Object(provider.OpSendPayload, map[string]any{"provider_type": whatsapp.ProviderType, "payload": encoded["payload"]})

	assert.Equal(t, false, out["ok"])
	assert.Equal(t, true, out["retryable"])
	assert.Equal(t, "whatsapp returned status 502", out["message"])
}

func TestQA(t *testing.T) {
	h, _ := newHarness(t, nil)

	assert.Equal(t, []string{"phone_number_id", "public_base_url"}, h.QuestionIDs("default"))
	assert.Equal(t, []string{
		"enabled", "phone_number_id", "public_base_url", "business_account_id",
		"api_base_url", "api_version", "token",
	}, h.QuestionIDs("setup"))

	out := h.Apply("default", map[string]any{"phone_number_id": "1055", "public_base_url": "https://example.com"})
	require.Equal(t, true, out["ok"], "%v", out)
	cfg, _ := out["config"].(map[string]any)
	assert.Equal(t, "v19.0", cfg["api_version"])
	assert.Equal(t, "https://graph.facebook.com", cfg["api_base_url"])

	missing := h.Apply("default", map[string]any{"public_base_url": "https://example.com"})
	assert.Equal(t, false, missing["ok"])
}

func TestValidateConfig(t *testing.T) {
	h, _ := newHarness(t, nil)

	ok := h.Object(provider.OpValidateConfig, map[string]any{"config": validConfig()})
	assert.Equal(t, true, ok["ok"], "%v", ok)

	bad := h.Error(provider.OpValidateConfig, map[string]any{"config": map[string]any{"phone_number_id": "1", "public_base_url": "https://x", "extra": 1}})
	assert.Contains(t, bad, "unknown field")
}
