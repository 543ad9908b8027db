// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package telegram

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/config"
	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/ingress"
	"github.com/greentic/messaging-providers/internal/provider"
)

const (
	pendingMessageID = "pending-message-id"
	defaultPayload   = "universal telegram payload"
)

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
	if id := config.Or(cfg.DefaultChatID, ""); id != "" {
		fallback = &core.Destination{ID: id, Kind: "chat"}
	}
	env, err := in.Resolve(provider.EnvelopeOptions{
		Channel:  Prefix,
		Keys:     []string{"to", "chat_id"},
		Kind:     "chat",
		Fallback: fallback,
		Missing:  "chat_id required",
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
	if dest.Kind != "" && dest.Kind != "chat" {
		return nil, provider.Invalid("unsupported destination kind: %s", dest.Kind)
	}

	msg := map[string]any{"chat_id": dest.ID, "text": text}
	if inv.Op == provider.OpReply {
		target, ok := replyTarget(in)
		if !ok {
			return nil, provider.Invalid("reply_to_id or thread_id required")
		}
		msg["reply_to_message_id"] = target
	}
	if mode := env.Metadata[metaParseMode]; mode != "" {
		msg["parse_mode"] = mode
	}
	if keyboard := inlineKeyboard(metaList[cardAction](env.Metadata, metaActions)); len(keyboard) > 0 {
		msg["reply_markup"] = map[string]any{"inline_keyboard": keyboard}
	}

	token, err := config.SecretOr(ctx, inv.Caps.Secrets, cfg.BotToken, BotTokenKey)
	if err != nil {
		return nil, err
	}
	s := sender{inv: inv, base: cfg.APIBaseURL + "/bot" + token}
	resp, err := s.deliver(ctx, msg, metaList[string](env.Metadata, metaImages), text)
	if err != nil {
		return nil, err
	}

	parsed := provider.DecodeBody(resp)
	id := messageID(provider.Lookup(parsed, "result", "message_id"))
	return provider.SendResult{
		OK:                true,
		ProviderType:      ProviderType,
		Status:            provider.SendStatus(inv.Op),
		MessageID:         id,
		ProviderMessageID: "tg:" + id,
		PublicBaseURL:     cfg.PublicBaseURL,
		Response:          parsed,
	}, nil
}

func replyTarget(in provider.SendInput) (string, bool) {
	if s := in.String("reply_to_id"); s != "" {
		return s, true
	}
	return in.ReplyTarget()
}

// metaList decodes a JSON list stored in envelope metadata. A missing or
// malformed entry yields nil.
func metaList[T any](meta core.MessageMetadata, key string) []T {
	raw, ok := meta[key]
	if !ok {
		return nil
	}
	var out []T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

type sender struct {
	inv  provider.Invocation
	base string
}

func (s sender) call(ctx context.Context, method string, body map[string]any) (capability.Response, error) {
	return provider.Do(ctx, s.inv.Caps, s.inv.Tenant, provider.Request{
		Service: Prefix,
		URL:     s.base + "/" + method,
		JSON:    body,
	})
}

// deliver picks the Bot API method from the image count: one image goes
// out as sendPhoto with the text as caption, several as an album followed
// by the text message. sendMessage is the fallback for a failed photo.
func (s sender) deliver(ctx context.Context, msg map[string]any, images []string, text string) (capability.Response, error) {
	switch {
	case len(images) == 1:
		photo := map[string]any{
			"chat_id": msg["chat_id"],
			"photo":   images[0],
			"caption": truncate(text, maxCaptionLen),
		}
		for _, key := range []string{"parse_mode", "reply_markup", "reply_to_message_id"} {
			if v, ok := msg[key]; ok {
				photo[key] = v
			}
		}
		resp, err := s.call(ctx, "sendPhoto", photo)
		if err == nil {
			return resp, nil
		}
		slog.WarnContext(ctx, "telegram sendPhoto failed, falling back to sendMessage", "error", err)
	case len(images) > 1:
		media := make([]map[string]any, 0, maxAlbumSize)
		for i, url := range images {
			if i == maxAlbumSize {
				break
			}
			item := map[string]any{"type": "photo", "media": url}
			if mode, ok := msg["parse_mode"]; ok && i == 0 {
				item["parse_mode"] = mode
			}
			media = append(media, item)
		}
		if _, err := s.call(ctx, "sendMediaGroup", map[string]any{"chat_id": msg["chat_id"], "media": media}); err != nil {
			slog.WarnContext(ctx, "telegram sendMediaGroup failed", "error", err)
		}
	}
	return s.call(ctx, "sendMessage", msg)
}

func messageID(v any) string {
	switch id := v.(type) {
	case string:
		if id != "" {
			return id
		}
	case float64:
		return formatNumber(id)
	}
	return pendingMessageID
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func idString(v any) string {
	switch id := v.(type) {
	case float64:
		return formatNumber(id)
	case string:
		return id
	}
	return ""
}

// ingestHTTP normalizes a Bot API update. Messages, edited messages,
// channel posts and inline keyboard callbacks produce one envelope.
func ingestHTTP(ctx context.Context, inv provider.Invocation) (any, error) {
	req, failed := provider.DecodeIngest(inv)
	if failed != nil {
		return *failed, nil
	}
	ev, err := ingress.Check(Prefix, ingress.Passthrough{}).Validate(ctx, req.In.Headers, req.Body, inv.Caps.Secrets)
	if err != nil {
		return ingress.ErrorOut(http.StatusBadRequest, err.Error()), nil
	}
	update := ev.Event

	var message any
	for _, key := range []string{"message", "edited_message", "channel_post"} {
		if message = provider.Lookup(update, key); message != nil {
			break
		}
	}
	text := provider.LookupString(message, "text")
	chatID := idString(provider.Lookup(message, "chat", "id"))
	from := idString(provider.Lookup(message, "from", "id"))
	if callback := provider.Lookup(update, "callback_query"); message == nil && callback != nil {
		text = provider.LookupString(callback, "data")
		chatID = idString(provider.Lookup(callback, "message", "chat", "id"))
		from = idString(provider.Lookup(callback, "from", "id"))
	}

	env := ingestEnvelope(text, chatID, from)
	return ingress.JSONOut(map[string]any{
		"ok":      true,
		"event":   update,
		"message": message,
		"chat_id": nullable(chatID),
		"from":    nullable(from),
	}, env), nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func ingestEnvelope(text, chatID, from string) core.ChannelMessageEnvelope {
	meta := core.MessageMetadata{"universal": "true"}
	session := Prefix
	var to []core.Destination
	if chatID != "" {
		meta["chat_id"] = chatID
		to = []core.Destination{{ID: chatID, Kind: "chat"}}
		session = chatID
	}
	var actor *core.Actor
	if from != "" {
		meta["from"] = from
		actor = &core.Actor{ID: from, Kind: "user"}
	}
	return core.IngressEnvelope("telegram-"+session, Prefix, session, actor, to, text, meta)
}

// encode converts an Adaptive Card into Telegram HTML and returns the
// envelope itself as the payload; send_payload replays it through send.
func encode(_ context.Context, inv provider.Invocation) (any, error) {
	in, err := provider.DecodeEncodeInput(inv.Input)
	if err != nil {
		return nil, err
	}
	env := in.Message
	apiMethod := "sendMessage"
	if raw, ok := env.Metadata[core.MetadataAdaptiveCard]; ok {
		if content, ok := convertCard(raw); ok {
			env.Text = core.StringPtr(content.HTML)
			env.Metadata[metaParseMode] = "HTML"
			if len(content.Actions) > 0 {
				actions, _ := json.Marshal(content.Actions)
				env.Metadata[metaActions] = string(actions)
			}
			if len(content.Images) > 0 {
				images, _ := json.Marshal(content.Images)
				env.Metadata[metaImages] = string(images)
				apiMethod = "sendPhoto"
				if len(content.Images) > 1 {
					apiMethod = "sendMediaGroup"
				}
			}
		}
	}
	if env.TrimmedText() == "" {
		env.Text = core.StringPtr(defaultPayload)
	}
	payload, err := provider.JSONPayload(env, map[string]any{
		"method":     http.MethodPost,
		"api_method": apiMethod,
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
