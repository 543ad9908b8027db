// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package webex_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/capability/capabilitytest"
	"github.com/greentic/messaging-providers/internal/ingress"
	"github.com/greentic/messaging-providers/internal/provider"
	"github.com/greentic/messaging-providers/internal/provider/providertest"
	"github.com/greentic/messaging-providers/internal/provider/webex"
)

const schemaHash = "074aca486987c019467084e02a4c5ace102a333f7755bb0e01da3620bcb8ae85"

const roomID = "Y2lzY29zcGFyazovL3VzL1JPT00vYWJj"

func validConfig() map[string]any {
	return map[string]any{
		"public_base_url": "https://example.com",
		"bot_token":       "bot-tok",
	}
}

func newHarness(t *testing.T, secrets map[string]string, replies ...capabilitytest.Reply) (*providertest.Harness, *capabilitytest.FakeHTTP) {
	t.Helper()
	fake := capabilitytest.NewFakeHTTP(replies...)
	return providertest.New(t, webex.Definition, fake.Set(secrets)), fake
}

func created(id string) capabilitytest.Reply {
	return capabilitytest.JSONReply(200, map[string]any{"id": id})
}

func message(text string, to map[string]any, meta map[string]any) map[string]any {
	msg := map[string]any{
		"id":         "m1",
		"tenant":     map[string]any{"env": "default", "tenant": "default"},
		"channel":    "webex",
		"session_id": "s",
	}
	if text != "" {
		msg["text"] = text
	}
	if to != nil {
		msg["to"] = []any{to}
	}
	if meta != nil {
		msg["metadata"] = meta
	}
	return msg
}

func TestDescribe(t *testing.T) {
	d := webex.Definition.Describe()
	assert.Equal(t, schemaHash, d.SchemaHash)
	require.Len(t, d.Redactions, 1)
	assert.Equal(t, "$.bot_token", d.Redactions[0].Path)
	assert.Len(t, d.Operations, 7)
}

func TestDetectKind(t *testing.T) {
	assert.Equal(t, "email", webex.DetectKind("alice@example.com"))
	assert.Equal(t, "room", webex.DetectKind(roomID))
	assert.Equal(t, "email", webex.DetectKind("alice"))
}

func TestSend_Destinations(t *testing.T) {
	tests := []struct {
		name  string
		to    any
		field string
		want  string
	}{
		{name: "string is a room", to: "room-1", field: "roomId", want: "room-1"},
		{name: "email kind", to: map[string]any{"id": "a@example.com", "kind": "email"}, field: "toPersonEmail", want: "a@example.com"},
		{name: "person kind", to: map[string]any{"id": "p-1", "kind": "person"}, field: "toPersonId", want: "p-1"},
		{name: "user kind", to: map[string]any{"id": "p-2", "kind": "user"}, field: "toPersonId", want: "p-2"},
		{name: "detected room", to: map[string]any{"id": roomID}, field: "roomId", want: roomID},
		{name: "detected email", to: map[string]any{"id": "b@example.com"}, field: "toPersonEmail", want: "b@example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, fake := newHarness(t, nil, created("msg-1"))

			out := h.Object(provider.OpSend, map[string]any{"to": tt.to, "text": "hello", "config": validConfig()})

			require.Equal(t, true, out["ok"], "%v", out)
			body := fake.LastJSONBody()
			assert.Equal(t, tt.want, body[tt.field])
			assert.Equal(t, "hello", body["text"])
			assert.Equal(t, "hello", body["markdown"])
		})
	}
}

func TestSend_PostsMessage(t *testing.T) {
	h, fake := newHarness(t, nil, created("Y2lz-msg"))

	out := h.Object(provider.OpSend, map[string]any{"to": "room-1", "text": "hi", "config": validConfig()})

	require.Equal(t, true, out["ok"], "%v", out)
	assert.Equal(t, "sent", out["status"])
	assert.Equal(t, "Y2lz-msg", out["message_id"])
	assert.Equal(t, "webex:Y2lz-msg", out["provider_message_id"])
	assert.Equal(t, webex.ProviderType, out["provider_type"])

	req, _ := fake.LastRequest()
	assert.Equal(t, "https://webexapis.com/v1/messages", req.URL)
	auth, _ := capability.LookupHeader(req.Headers, "Authorization")
	assert.Equal(t, "Bearer bot-tok", auth)
}

func TestSend_TokenFromSecrets(t *testing.T) {
	h, fake := newHarness(t, map[string]string{webex.TokenKey: "secret-tok"}, created("x"))

	out := h.Object(provider.OpSend, map[string]any{"to": "room-1", "text": "hi"})

	require.Equal(t, true, out["ok"], "%v", out)
	req, _ := fake.LastRequest()
	auth, _ := capability.LookupHeader(req.Headers, "Authorization")
	assert.Equal(t, "Bearer secret-tok", auth)
}

func TestSend_DefaultDestinations(t *testing.T) {
	cfg := validConfig()
	cfg["default_to_person_email"] = "ops@example.com"
	h, fake := newHarness(t, nil, created("a"), created("b"))

	out := h.Object(provider.OpSend, map[string]any{"text": "hi", "config": cfg})
	require.Equal(t, true, out["ok"], "%v", out)
	assert.Equal(t, "ops@example.com", fake.LastJSONBody()["toPersonEmail"])

	cfg["default_room_id"] = "room-9"
	out = h.Object(provider.OpSend, map[string]any{"text": "hi", "config": cfg})
	require.Equal(t, true, out["ok"], "%v", out)
	assert.Equal(t, "room-9", fake.LastJSONBody()["roomId"])
}

func TestSend_AdaptiveCard(t *testing.T) {
	h, fake := newHarness(t, map[string]string{webex.TokenKey: "tok"}, created("card"))
	card := `{"type":"AdaptiveCard","version":"1.5","body":[{"type":"TextBlock","text":"Build"},{"type":"TextBlock","text":"passed"}]}`

	out := h.Object(provider.OpSend, message("", map[string]any{"id": "room-1", "kind": "room"}, map[string]any{
		"adaptive_card": card,
	}))

	require.Equal(t, true, out["ok"], "%v", out)
	body := fake.LastJSONBody()
	assert.Equal(t, "Build passed", body["markdown"])
	assert.NotContains(t, body, "text")
	attachments, _ := body["attachments"].([]any)
	require.Len(t, attachments, 1)
	att := attachments[0].(map[string]any)
	assert.Equal(t, "application/vnd.microsoft.card.adaptive", att["contentType"])
	assert.Equal(t, "1.3", att["content"].(map[string]any)["version"])
}

func TestSend_InvalidCardFallsBackToText(t *testing.T) {
	h, fake := newHarness(t, map[string]string{webex.TokenKey: "tok"}, created("t"))

	out := h.Object(provider.OpSend, message("plain", map[string]any{"id": "room-1", "kind": "room"}, map[string]any{
		"adaptive_card": "{not json",
	}))

	require.Equal(t, true, out["ok"], "%v", out)
	body := fake.LastJSONBody()
	assert.Equal(t, "plain", body["text"])
	assert.NotContains(t, body, "attachments")
}

func TestSend_ThreadFromMetadata(t *testing.T) {
	h, fake := newHarness(t, map[string]string{webex.TokenKey: "tok"}, created("t"))

	out := h.Object(provider.OpSend, message("in thread", map[string]any{"id": "room-1", "kind": "room"}, map[string]any{
		"reply_to_id": `"parent-1"`,
	}))

	require.Equal(t, true, out["ok"], "%v", out)
	assert.Equal(t, "parent-1", fake.LastJSONBody()["parentId"])
}

func TestReply(t *testing.T) {
	h, fake := newHarness(t, nil, capabilitytest.JSONReply(200, map[string]any{}))

	assert.Equal(t, "reply_to_id or thread_id required",
		h.Error(provider.OpReply, map[string]any{"to": "room-1", "text": "hi", "config": validConfig()}))

	out := h.Object(provider.OpReply, map[string]any{
		"to":        "room-1",
		"text":      "answer",
		"thread_id": "parent-7",
		"config":    validConfig(),
	})

	require.Equal(t, true, out["ok"], "%v", out)
	assert.Equal(t, "replied", out["status"])
	assert.Equal(t, "webex-reply", out["message_id"])
	assert.Equal(t, "parent-7", fake.LastJSONBody()["parentId"])
}

func TestSend_Failures(t *testing.T) {
	disabled := validConfig()
	disabled["enabled"] = false
	noToken := validConfig()
	delete(noToken, "bot_token")

	tests := []struct {
		name  string
		input map[string]any
		want  string
	}{
		{name: "disabled", input: map[string]any{"to": "r", "text": "hi", "config": disabled}, want: "provider disabled by config"},
		{name: "no destination", input: map[string]any{"text": "hi", "config": validConfig()}, want: "destination required"},
		{name: "no text", input: map[string]any{"to": "r", "config": validConfig()}, want: "text required"},
		{name: "unsupported kind", input: map[string]any{"to": map[string]any{"id": "x", "kind": "team"}, "text": "hi", "config": validConfig()}, want: "unsupported destination kind: team"},
		{name: "no token", input: map[string]any{"to": "r", "text": "hi", "config": noToken}, want: "missing secret: WEBEX_BOT_TOKEN (scope: tenant)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, fake := newHarness(t, nil)
			assert.Equal(t, tt.want, h.Error(provider.OpSend, tt.input))
			assert.Empty(t, fake.Requests())
		})
	}
}

func TestSend_APIStatus(t *testing.T) {
	h, _ := newHarness(t, nil, capabilitytest.JSONReply(404, map[string]any{"message": "room not found"}))

	assert.Equal(t, "webex returned status 404",
		h.Error(provider.OpSend, map[string]any{"to": "r", "text": "hi", "config": validConfig()}))
}

func TestIngestHTTP_FetchesCreatedMessage(t *testing.T) {
	h, fake := newHarness(t, map[string]string{webex.TokenKey: "tok"}, capabilitytest.JSONReply(200, map[string]any{
		"id":          "msg-1",
		"roomId":      "room-1",
		"personEmail": "alice@example.com",
		"markdown":    "**hello**",
		"text":        "hello",
		"attachments": []any{map[string]any{"contentType": "image/png", "contentUrl": "https://files.test/1", "size": 42}},
	}))
	body := []byte(`{"resource":"messages","event":"created","data":{"id":"msg-1","roomId":"room-1","personId":"p-1"}}`)

	out := h.Webhook(http.MethodPost, "/webex", body)

	require.Equal(t, http.StatusOK, out.Status)
	req, _ := fake.LastRequest()
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "https://webexapis.com/v1/messages/msg-1", req.URL)

	require.Len(t, out.Events, 1)
	env := out.Events[0]
	assert.Equal(t, "webex-msg-1", env.ID)
	assert.Equal(t, "room-1", env.SessionID)
	assert.Equal(t, "**hello**", *env.Text)
	require.NotNil(t, env.From)
	assert.Equal(t, "alice@example.com", env.From.ID)
	assert.Equal(t, "person", env.From.Kind)
	assert.Equal(t, "200", env.Metadata["webex.fetchStatus"])
	assert.Equal(t, "true", env.Metadata["webex.hasAttachments"])
	assert.Equal(t, "image/png", env.Metadata["webex.attachmentTypes"])
	require.Len(t, env.Attachments, 1)
	assert.Equal(t, "https://files.test/1", env.Attachments[0].URL)
	assert.EqualValues(t, 42, env.Attachments[0].SizeBytes)
}

func TestIngestHTTP_FetchFailures(t *testing.T) {
	body := []byte(`{"resource":"messages","event":"created","data":{"id":"msg-2","roomId":"room-2","personEmail":"bob@example.com"}}`)

	t.Run("no token", func(t *testing.T) {
		h, fake := newHarness(t, nil)

		out := h.Webhook(http.MethodPost, "/webex", body)

		assert.Equal(t, http.StatusInternalServerError, out.Status)
		assert.Empty(t, fake.Requests())
		require.Len(t, out.Events, 1)
		assert.Equal(t, "missing secret: WEBEX_BOT_TOKEN (scope: tenant)", out.Events[0].Metadata["webex.ingestError"])
		assert.Equal(t, "room-2", out.Events[0].SessionID)
	})

	t.Run("upstream error", func(t *testing.T) {
		h, _ := newHarness(t, map[string]string{webex.TokenKey: "tok"}, capabilitytest.JSONReply(401, nil))

		out := h.Webhook(http.MethodPost, "/webex", body)

		assert.Equal(t, http.StatusBadGateway, out.Status)
		require.Len(t, out.Events, 1)
		assert.Equal(t, "webex returned status 401", out.Events[0].Metadata["webex.ingestError"])
		assert.Equal(t, "bob@example.com", out.Events[0].From.ID)
		resp, err := out.Body()
		require.NoError(t, err)
		assert.Contains(t, string(resp), `"ok":false`)
	})
}

func TestIngestHTTP_OtherEvents(t *testing.T) {
	h, fake := newHarness(t, nil)
	body := []byte(`{"resource":"memberships","event":"created","text":"joined","data":{"roomId":"room-3","personId":"p-3"}}`)

	out := h.Webhook(http.MethodPost, "/webex", body)

	require.Equal(t, http.StatusOK, out.Status)
	assert.Empty(t, fake.Requests())
	require.Len(t, out.Events, 1)
	env := out.Events[0]
	assert.Equal(t, "webex-ingress-room-3", env.ID)
	assert.Equal(t, "joined", *env.Text)
	assert.Equal(t, "memberships", env.Metadata["webex.resource"])
	assert.Equal(t, "false", env.Metadata["webex.hasAttachments"])
}

func TestIngestHTTP_Signature(t *testing.T) {
	secrets := map[string]string{ingress.WebexWebhookSecretKey: "hook"}
	body := []byte(`{"resource":"rooms","event":"updated","data":{"roomId":"room-4"}}`)

	h, _ := newHarness(t, secrets)
	ok := h.Webhook(http.MethodPost, "/webex", body, ingress.HeaderWebexSignature, ingress.WebexSignature("hook", body))
	assert.Equal(t, http.StatusOK, ok.Status)

	bad := h.Webhook(http.MethodPost, "/webex", body, ingress.HeaderWebexSignature, "00")
	assert.Equal(t, http.StatusBadRequest, bad.Status)
	assert.Empty(t, bad.Events)
}

func TestEncodeThenSendPayload(t *testing.T) {
	h, fake := newHarness(t, map[string]string{webex.TokenKey: "tok"}, created("p-1"))
	msg := message("queued", map[string]any{"id": "carol@example.com"}, map[string]any{"parentId": "thread-1"})

	encoded := h.Object(provider.OpEncode, map[string]any{"message": msg})
	body, meta := providertest.Payload(t, encoded)
	assert.Equal(t, "queued", body["text"])
	assert.Equal(t, "POST", meta["method"])

	out := h.Object(provider.OpSendPayload, map[string]any{"provider_type": webex.ProviderType, "payload": encoded["payload"]})

	require.Equal(t, true, out["ok"], "%v", out)
	sent := fake.LastJSONBody()
	assert.Equal(t, "carol@example.com", sent["toPersonEmail"])
	assert.Equal(t, "thread-1", sent["parentId"])
}

func TestSendPayload_ServerErrorIsRetryable(t *testing.T) {
	h, _ := newHarness(t, map[string]string{webex.TokenKey: "tok"}, capabilitytest.JSONReply(503, nil))
	encoded := h.Object(provider.OpEncode, map[string]any{"message": message("x", map[string]any{"id": "room-1", "kind": "room"}, nil)})

	out := h.Object(provider.OpSendPayload, map[string]any{"provider_type": webex.ProviderType, "payload": encoded["payload"]})

	assert.Equal(t, false, out["ok"])
	assert.Equal(t, true, out["retryable"])
	assert.Equal(t, "webex returned status 503", out["message"])

	mismatch := h.Object(provider.OpSendPayload, map[string]any{"provider_type": "messaging.slack.api", "payload": encoded["payload"]})
	assert.Equal(t, "provider type mismatch", mismatch["message"])
}

func TestRenderPlan(t *testing.T) {
	h, _ := newHarness(t, nil)

	plan := h.Plan(map[string]any{"message": map[string]any{}})

	assert.Equal(t, "webex message", plan["summary_text"])
}

func TestQA(t *testing.T) {
	h, _ := newHarness(t, nil)

	assert.Equal(t, []string{"public_base_url"}, h.QuestionIDs("default"))

	out := h.Apply("default", map[string]any{"public_base_url": "https://example.com"})
	require.Equal(t, true, out["ok"], "%v", out)
	cfg, _ := out["config"].(map[string]any)
	assert.Equal(t, "https://webexapis.com/v1", cfg["api_base_url"])

	missing := h.Apply("default", map[string]any{})
	assert.Equal(t, false, missing["ok"])

	bundle := h.Bundle("en")
	messages, _ := bundle["messages"].(map[string]any)
	assert.Equal(t, "Reply in a Webex thread", messages["webex.op.reply.description"])
}

func TestValidateConfig(t *testing.T) {
	h, _ := newHarness(t, nil)

	ok := h.Object(provider.OpValidateConfig, map[string]any{"config": validConfig()})
	assert.Equal(t, true, ok["ok"], "%v", ok)

	bad := validConfig()
	bad["api_base_url"] = "webexapis.com"
	assert.Equal(t, false, h.Object(provider.OpValidateConfig, map[string]any{"config": bad})["ok"])
}
