// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package dummy_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/provider"
	"github.com/greentic/messaging-providers/internal/provider/dummy"
	"github.com/greentic/messaging-providers/internal/provider/providertest"
)

func newHarness(t *testing.T) *providertest.Harness {
	t.Helper()
	return providertest.New(t, dummy.Definition, capability.Set{})
}

func TestSend_StableIDsIgnoreKeyOrder(t *testing.T) {
	h := newHarness(t)

	a := h.Object(provider.OpSend, `{"to":"x","text":"hello"}`)
	b := h.Object(provider.OpSend, `{"text":"hello","to":"x"}`)

	assert.Equal(t, true, a["ok"])
	assert.Equal(t, a["message_id"], b["message_id"])
	assert.Equal(t, a["provider_message_id"], b["provider_message_id"])
	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`, a["message_id"])
	assert.Regexp(t, `^dummy:[0-9a-f]{64}$`, a["provider_message_id"])
	assert.Equal(t, "sent", a["status"])
	assert.Equal(t, dummy.ProviderType, a["provider_type"])
}

func TestSend_DifferentInputDifferentID(t *testing.T) {
	h := newHarness(t)

	a := h.Object(provider.OpSend, `{"text":"one"}`)
	b := h.Object(provider.OpSend, `{"text":"two"}`)

	assert.NotEqual(t, a["message_id"], b["message_id"])
}

func TestSend_InvalidJSONStillYieldsIDs(t *testing.T) {
	h := newHarness(t)

	out := h.Object(provider.OpSend, `not json`)

	assert.Equal(t, false, out["ok"])
	assert.NotEmpty(t, out["message_id"])
	assert.NotEmpty(t, out["error"])
}

func TestReply_Status(t *testing.T) {
	h := newHarness(t)

	out := h.Object(provider.OpReply, `{"text":"re"}`)

	assert.Equal(t, "replied", out["status"])
	assert.Equal(t, "reply", out["op"])
}

func TestSendMessageAlias(t *testing.T) {
	h := newHarness(t)

	out := h.Object("send-message", `{"text":"hi"}`)

	assert.Equal(t, true, out["ok"])
	assert.Equal(t, "send", out["op"])
}

func TestIngestHTTP_EchoesBody(t *testing.T) {
	h := newHarness(t)

	out := h.Webhook(http.MethodPost, "hooks", []byte("ping"))

	assert.Equal(t, http.StatusOK, out.Status)
	body, err := out.Body()
	require.NoError(t, err)
	assert.Equal(t, "ping", string(body))
	require.Len(t, out.Events, 1)
	assert.Equal(t, "dummy-hooks", out.Events[0].ID)
	require.NotNil(t, out.Events[0].Text)
	assert.Equal(t, "ping", *out.Events[0].Text)
}

func TestRenderPlan_TierD(t *testing.T) {
	h := newHarness(t)

	plan := h.Plan(map[string]any{"message": map[string]any{}})

	assert.Equal(t, "TierD", plan["tier"])
	assert.Equal(t, "dummy message", plan["summary_text"])
}

func TestEncodeAndSendPayload(t *testing.T) {
	h := newHarness(t)

	encoded := h.Object(provider.OpEncode, map[string]any{"message": map[string]any{"text": "hey"}})
	body, meta := providertest.Payload(t, encoded)
	assert.Equal(t, map[string]any{"body": "hey"}, body)
	assert.Equal(t, "hey", meta["text"])

	sent := h.Object(provider.OpSendPayload, map[string]any{"provider_type": dummy.ProviderType, "payload": encoded["payload"]})
	assert.Equal(t, true, sent["ok"], "%v", sent)
}

func TestSendPayload_Empty(t *testing.T) {
	h := newHarness(t)

	out := h.Object(provider.OpSendPayload, map[string]any{
		"provider_type": dummy.ProviderType,
		"payload":       map[string]any{"content_type": "application/json", "body_b64": "", "metadata": map[string]any{}},
	})

	assert.Equal(t, false, out["ok"])
	assert.Equal(t, "payload empty", out["message"])
}

func TestManifest(t *testing.T) {
	m := dummy.Definition.Manifest()

	assert.Equal(t, dummy.ProviderType, m.ProviderType)
	require.NotNil(t, m.ConfigSchemaRef)
	assert.Equal(t, dummy.ConfigSchemaRef, *m.ConfigSchemaRef)
	assert.Len(t, m.Ops, 6)
}
