// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package whatsapp

import (
	"context"
	"net/http"
	"strings"

	"github.com/greentic/messaging-providers/internal/config"
	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/ingress"
	"github.com/greentic/messaging-providers/internal/provider"
	"github.com/greentic/messaging-providers/internal/render"
)

const (
	defaultPayload  = "universal whatsapp payload"
	kindPhone       = "phone"
	templateFormat  = "whatsapp_template"
	defaultLanguage = "en_US"
)

// template is a pre-approved message template sent instead of text.
type template struct {
	Name       string
	Language   string
	Components any
}

// parseTemplate reads {"rich":{"format":"whatsapp_template",...}} from the
// input. ok is false when the input carries no template.
func parseTemplate(raw map[string]any) (tmpl template, ok bool, err error) {
	rich, isMap := raw["rich"].(map[string]any)
	if !isMap || provider.LookupString(rich, "format") != templateFormat {
		return template{}, false, nil
	}
	tmpl.Name = strings.TrimSpace(provider.LookupString(rich, "name"))
	if tmpl.Name == "" {
		return template{}, true, provider.Invalid("template name required")
	}
	tmpl.Language = strings.TrimSpace(provider.LookupString(rich, "language"))
	if tmpl.Language == "" {
		tmpl.Language = defaultLanguage
	}
	tmpl.Components = rich["components"]
	return tmpl, true, nil
}

func (t template) body() map[string]any {
	out := map[string]any{
		"name":     t.Name,
		"language": map[string]any{"code": t.Language},
	}
	if t.Components != nil {
		out["components"] = t.Components
	}
	return out
}

func handleSend(ctx context.Context, inv provider.Invocation) (any, error) {
	in, err := provider.DecodeSendInput(inv)
	if err != nil {
		return nil, err
	}
	tmpl, isTemplate, err := parseTemplate(in.Raw)
	if err != nil {
		return nil, err
	}
	cfg, err := resolver.Resolve(ctx, in.Raw, in.Metadata(), inv.Caps.Secrets)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, provider.ErrDisabled()
	}

	env, err := in.Resolve(provider.EnvelopeOptions{
		Channel: Prefix,
		Keys:    []string{"to"},
		Kind:    kindPhone,
	})
	if err != nil {
		return nil, err
	}
	dest, ok := env.FirstDestination()
	if !ok {
		return nil, provider.Invalid("destination required")
	}
	if dest.ID == "" {
		return nil, provider.Invalid("destination id required")
	}
	switch dest.Kind {
	case "", kindPhone, "user":
	default:
		return nil, provider.Invalid("unsupported destination kind: %s", dest.Kind)
	}

	msg := map[string]any{
		"messaging_product": "whatsapp",
		"to":                dest.ID,
	}
	if isTemplate {
		msg["type"] = "template"
		msg["template"] = tmpl.body()
	} else {
		text, err := provider.RequireText(&env)
		if err != nil {
			return nil, err
		}
		msg["type"] = "text"
		msg["text"] = map[string]any{"body": text}
	}
	if inv.Op == provider.OpReply {
		target, ok := in.ReplyTarget()
		if !ok {
			return nil, provider.Invalid("reply_to_id or thread_id required")
		}
		msg["context"] = map[string]any{"message_id": target}
	}

	token, err := config.SecretOr(ctx, inv.Caps.Secrets, cfg.Token, TokenKey)
	if err != nil {
		return nil, err
	}
	resp, err := provider.Do(ctx, inv.Caps, inv.Tenant, provider.Request{
		Service: Prefix,
		URL:     cfg.MessagesURL(),
		Bearer:  token,
		JSON:    msg,
	})
	if err != nil {
		return nil, err
	}

	parsed := provider.DecodeBody(resp)
	id := firstMessageID(parsed, inv.Op)
	return provider.SendResult{
		OK:                true,
		ProviderType:      ProviderType,
		Status:            provider.SendStatus(inv.Op),
		MessageID:         id,
		ProviderMessageID: Prefix + ":" + id,
		PublicBaseURL:     cfg.PublicBaseURL,
		Response:          parsed,
	}, nil
}

// firstMessageID reads messages[0].id of a Cloud API response.
func firstMessageID(body map[string]any, op string) string {
	if list, ok := body["messages"].([]any); ok && len(list) > 0 {
		if id := provider.LookupString(list[0], "id"); id != "" {
			return id
		}
	}
	if op == provider.OpReply {
		return "wa-reply"
	}
	return "wa-message"
}

// inbound is one user message found in a webhook body.
type inbound struct {
	ID            string
	From          string
	Text          string
	PhoneNumberID string
}

// ingestHTTP answers the subscription handshake on GET and normalizes
// message notifications on POST. A Cloud API notification may batch
// several messages; each becomes one envelope. Status-only notifications
// produce none.
func ingestHTTP(ctx context.Context, inv provider.Invocation) (any, error) {
	req, failed := provider.DecodeIngest(inv)
	if failed != nil {
		return *failed, nil
	}
	if out, handled := ingress.Challenge(ctx, req.In, inv.Caps.Secrets); handled {
		return out, nil
	}
	if req.In.Method == http.MethodGet {
		return ingress.TextOut(http.StatusOK, req.In.QueryValues().Get("hub.challenge")), nil
	}

	ev, err := ingress.Check(Prefix, ingress.WhatsApp{}).Validate(ctx, req.In.Headers, req.Body, inv.Caps.Secrets)
	if err != nil {
		return ingress.ErrorOut(http.StatusBadRequest, err.Error()), nil
	}

	messages := cloudMessages(ev.Event)
	if _, isCloud := provider.Lookup(ev.Event, "entry").([]any); !isCloud {
		messages = []inbound{flatMessage(ev.Event, "")}
	}

	events := make([]core.ChannelMessageEnvelope, 0, len(messages))
	for _, m := range messages {
		events = append(events, m.envelope())
	}
	resp := map[string]any{"ok": true, "event": ev.Event, "text": "", "from": nil}
	if len(messages) > 0 {
		resp["text"] = messages[0].Text
		if messages[0].From != "" {
			resp["from"] = messages[0].From
		}
	}
	return ingress.JSONOut(resp, events...), nil
}

func cloudMessages(body any) []inbound {
	var out []inbound
	entries, _ := provider.Lookup(body, "entry").([]any)
	for _, entry := range entries {
		changes, _ := provider.Lookup(entry, "changes").([]any)
		for _, change := range changes {
			value := provider.Lookup(change, "value")
			phoneID := provider.LookupString(value, "metadata", "phone_number_id")
			list, _ := provider.Lookup(value, "messages").([]any)
			for _, m := range list {
				out = append(out, flatMessage(m, phoneID))
			}
		}
	}
	return out
}

func flatMessage(m any, phoneID string) inbound {
	text := provider.LookupString(m, "text", "body")
	if text == "" {
		text = provider.LookupString(m, "text")
	}
	for _, path := range [][]string{
		{"interactive", "button_reply", "title"},
		{"interactive", "list_reply", "title"},
		{"button", "text"},
	} {
		if text != "" {
			break
		}
		text = provider.LookupString(m, path...)
	}
	return inbound{
		ID:            provider.LookupString(m, "id"),
		From:          provider.LookupString(m, "from"),
		Text:          text,
		PhoneNumberID: phoneID,
	}
}

func (m inbound) envelope() core.ChannelMessageEnvelope {
	phoneID := m.PhoneNumberID
	if phoneID == "" {
		phoneID = "unknown"
	}
	meta := core.MessageMetadata{
		"universal":       "true",
		"channel_id":      Prefix,
		"phone_number_id": phoneID,
	}
	session := Prefix
	var actor *core.Actor
	var to []core.Destination
	if m.From != "" {
		meta["from"] = m.From
		actor = &core.Actor{ID: m.From, Kind: "user"}
		to = []core.Destination{{ID: m.From, Kind: kindPhone}}
		session = m.From
	}
	id := m.ID
	if id == "" {
		id = m.Text
	}
	return core.IngressEnvelope(Prefix+"-"+id, Prefix, session, actor, to, m.Text, meta)
}

// encode builds a send input addressed to the message sender, or to the
// first destination. A card is reduced to its text summary.
func encode(_ context.Context, inv provider.Invocation) (any, error) {
	in, err := provider.DecodeEncodeInput(inv.Input)
	if err != nil {
		return nil, err
	}
	env := in.Message
	text := render.EncodeText(&env, caps)
	if strings.TrimSpace(text) == "" {
		text = defaultPayload
	}

	to := map[string]any{"kind": kindPhone, "id": "whatsapp-user"}
	if dest, ok := env.FirstDestination(); ok {
		to["id"] = dest.ID
		if dest.Kind != "" {
			to["kind"] = dest.Kind
		}
	}
	if from := env.Metadata["from"]; from != "" {
		to["id"] = from
	}
	body := map[string]any{"text": text, "to": to}
	meta := map[string]any{"method": http.MethodPost}
	if phoneID := env.Metadata["phone_number_id"]; phoneID != "" && phoneID != "unknown" {
		body["config"] = map[string]any{"phone_number_id": phoneID}
		cfg := DefaultConfig()
		cfg.PhoneNumberID = phoneID
		meta["url"] = cfg.MessagesURL()
	}

	payload, err := provider.JSONPayload(body, meta)
	if err != nil {
		return nil, err
	}
	return provider.EncodeResult{OK: true, Payload: payload}, nil
}

func sendPayload(ctx context.Context, inv provider.Invocation) (any, error) {
	in, body, failed := provider.DecodeSendPayload(inv.Input, ProviderType)
	if failed != nil {
		return *failed, nil
	}
	tenant := inv.Tenant
	if tenant == nil {
		tenant = in.Tenant
	}
	_, err := handleSend(ctx, provider.Invocation{
		Op:      provider.OpSend,
		Input:   body,
		Tenant:  tenant,
		Caps:    inv.Caps,
		Runtime: inv.Runtime,
	})
	return provider.PayloadResult(err), nil
}
