// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package slack

import (
	"context"
	"net/http"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/config"
	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/ingress"
	"github.com/greentic/messaging-providers/internal/provider"
	"github.com/greentic/messaging-providers/internal/render"
)

const pendingTS = "pending-ts"

func handleSend(ctx context.Context, inv provider.Invocation) (any, error) {
	in, err := provider.DecodeSendInput(inv)
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

	var fallback *core.Destination
	if ch := config.Or(cfg.DefaultChannel, ""); ch != "" {
		fallback = &core.Destination{ID: ch, Kind: "channel"}
	}
	env, err := in.Resolve(provider.EnvelopeOptions{
		Channel:  Prefix,
		Keys:     []string{"to", "channel"},
		Kind:     "channel",
		Fallback: fallback,
		Missing:  "channel required",
	})
	if err != nil {
		return nil, err
	}
	text, err := provider.RequireText(&env)
	if err != nil {
		return nil, err
	}
	dest, ok := env.FirstDestination()
	if !ok {
		if fallback == nil {
			return nil, provider.Invalid("destination required")
		}
		dest = *fallback
	}
	if dest.ID == "" {
		return nil, provider.Invalid("destination id required")
	}
	switch dest.Kind {
	case "", "channel", "user":
	default:
		return nil, provider.Invalid("unsupported destination kind: %s", dest.Kind)
	}

	body := map[string]any{"channel": dest.ID, "text": text}
	if inv.Op == provider.OpReply {
		ts, ok := in.ReplyTarget()
		if !ok {
			return nil, provider.Invalid("reply requires thread_id or reply_to_id")
		}
		body["thread_ts"] = ts
	}
	if format, _ := provider.Lookup(in.Raw, "rich", "format").(string); format == "slack_blocks" {
		if blocks := provider.Lookup(in.Raw, "rich", "blocks"); blocks != nil {
			body["blocks"] = blocks
		}
	}

	token, err := config.SecretOr(ctx, inv.Caps.Secrets, &cfg.BotToken, BotTokenKey)
	if err != nil {
		return nil, err
	}
	resp, err := provider.Do(ctx, inv.Caps, inv.Tenant, provider.Request{
		Service: Prefix,
		URL:     cfg.APIBaseURL + "/chat.postMessage",
		Bearer:  token,
		JSON:    body,
	})
	if err != nil {
		return nil, err
	}

	parsed := provider.DecodeBody(resp)
	ts := provider.LookupString(parsed, "ts")
	if ts == "" {
		ts = provider.LookupString(parsed, "message", "ts")
	}
	if ts == "" {
		ts = pendingTS
	}
	return provider.SendResult{
		OK:                true,
		ProviderType:      ProviderType,
		Status:            provider.SendStatus(inv.Op),
		MessageID:         ts,
		ProviderMessageID: "slack:" + ts,
		PublicBaseURL:     cfg.PublicBaseURL,
		Response:          parsed,
	}, nil
}

// ingestHTTP verifies the request signature when a signing secret is
// configured and normalizes Events API, wrapped and flat payloads.
func ingestHTTP(ctx context.Context, inv provider.Invocation) (any, error) {
	req, failed := provider.DecodeIngest(inv)
	if failed != nil {
		return *failed, nil
	}
	_, signed, err := capability.LookupSecret(ctx, inv.Caps.Secrets, SigningSecretKey)
	if err != nil {
		return ingress.ErrorOut(http.StatusInternalServerError, err.Error()), nil
	}
	if signed {
		validator := ingress.Check(Prefix, ingress.Slack{RequireSecret: true})
		if _, err := validator.Validate(ctx, req.In.Headers, req.Body, inv.Caps.Secrets); err != nil {
			return ingress.ErrorOut(http.StatusUnauthorized, err.Error()), nil
		}
	}

	body := req.JSON()
	if provider.LookupString(body, "type") == "url_verification" {
		return ingress.JSONOut(map[string]string{"challenge": provider.LookupString(body, "challenge")}), nil
	}

	payload := provider.Lookup(body, "event")
	if payload == nil {
		payload = provider.Lookup(body, "body")
	}
	if payload == nil {
		payload = body
	}
	text := provider.LookupString(payload, "text")
	channel := provider.LookupString(payload, "channel")
	sender := provider.LookupString(payload, "user")
	if sender == "" {
		sender = provider.LookupString(payload, "user_id")
	}

	env := ingestEnvelope(text, channel, sender)
	var ch any
	if channel != "" {
		ch = channel
	}
	return ingress.JSONOut(map[string]any{"ok": true, "event": body, "channel": ch}, env), nil
}

func ingestEnvelope(text, channel, sender string) core.ChannelMessageEnvelope {
	meta := core.MessageMetadata{"universal": "true"}
	var to []core.Destination
	name := Prefix
	if channel != "" {
		meta["channel"] = channel
		to = []core.Destination{{ID: channel}}
		name = channel
	}
	var from *core.Actor
	if sender != "" {
		meta["from"] = sender
		from = &core.Actor{ID: sender, Kind: "user"}
	}
	return core.IngressEnvelope("slack-"+name, name, name, from, to, text, meta)
}

func encode(_ context.Context, inv provider.Invocation) (any, error) {
	in, err := provider.DecodeEncodeInput(inv.Input)
	if err != nil {
		return nil, err
	}
	dest, ok := in.Message.FirstDestination()
	if !ok || dest.ID == "" {
		return nil, provider.Invalid("destination (to) required")
	}
	text := render.EncodeText(&in.Message, caps)
	if text == "" {
		text = "slack universal payload"
	}
	payload, err := provider.JSONPayload(map[string]string{"channel": dest.ID, "text": text}, map[string]any{
		"url":     DefaultAPIBase + "/chat.postMessage",
		"method":  http.MethodPost,
		"channel": dest.ID,
	})
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
	url := in.Payload.MetaString("url")
	if url == "" {
		url = DefaultAPIBase + "/chat.postMessage"
	}
	method := in.Payload.MetaString("method")
	token, err := config.SecretOr(ctx, inv.Caps.Secrets, nil, BotTokenKey)
	if err != nil {
		return provider.PayloadFailed(err.Error(), false), nil
	}
	tenant := inv.Tenant
	if tenant == nil {
		tenant = in.Tenant
	}
	_, err = provider.Do(ctx, inv.Caps, tenant, provider.Request{
		Service: Prefix,
		Method:  method,
		URL:     url,
		Bearer:  token,
		Headers: contentType(in.Payload),
		Body:    body,
	})
	return provider.PayloadResult(err), nil
}

func contentType(p provider.Payload) []capability.Header {
	ct := p.ContentType
	if ct == "" {
		ct = provider.ContentTypeJSON
	}
	return []capability.Header{{Name: "Content-Type", Value: ct}}
}
