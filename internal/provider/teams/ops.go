// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package teams

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/ingress"
	"github.com/greentic/messaging-providers/internal/provider"
	"github.com/greentic/messaging-providers/internal/token"
)

// SubscriptionLifetime is the default subscription lifetime. Graph caps
// channel message subscriptions at one hour.
const SubscriptionLifetime = 55 * time.Minute

const (
	kindChannel = "channel"
	kindChat    = "chat"

	cardAttachmentID   = "ac-card-1"
	cardContentType    = "application/vnd.microsoft.card.adaptive"
	metadataReplyToID  = "reply_to_id"
	validationTokenKey = "validationToken"
)

// shorthandDestination reads the destination of a shorthand input: "to",
// else kind with team_id/channel_id or chat_id, falling back to the
// configured channel.
func shorthandDestination(in provider.SendInput, cfg Config) (core.Destination, error) {
	if dest, ok := core.ParseDestination(in.Raw["to"], kindChannel); ok {
		return dest, nil
	}
	kind := in.String("kind")
	if kind == "" {
		kind = kindChannel
	}
	switch kind {
	case kindChannel:
		team := firstNonEmpty(in.String("team_id"), trimmed(cfg.TeamID))
		if team == "" {
			return core.Destination{}, provider.Invalid("team_id required for channel destination")
		}
		channel := firstNonEmpty(in.String("channel_id"), trimmed(cfg.ChannelID))
		if channel == "" {
			return core.Destination{}, provider.Invalid("channel_id required for channel destination")
		}
		return core.Destination{ID: team + ":" + channel, Kind: kindChannel}, nil
	case kindChat:
		chat := in.String("chat_id")
		if chat == "" {
			return core.Destination{}, provider.Invalid("chat_id required for chat destination")
		}
		return core.Destination{ID: chat, Kind: kindChat}, nil
	}
	return core.Destination{}, provider.Invalid("unsupported destination kind: %s", kind)
}

func trimmed(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// messagePath returns the Graph path for dest. A reply target on a channel
// destination posts to the replies of that message.
func messagePath(dest core.Destination, replyTo string) (string, error) {
	id := strings.TrimSpace(dest.ID)
	if id == "" {
		return "", provider.Invalid("destination id required")
	}
	kind := dest.Kind
	if kind == "" {
		kind = kindChannel
	}
	switch kind {
	case kindChannel:
		team, channel, ok := strings.Cut(id, ":")
		if !ok {
			return "", provider.Invalid("channel destination must be team_id:channel_id")
		}
		team, channel = strings.TrimSpace(team), strings.TrimSpace(channel)
		if team == "" || channel == "" {
			return "", provider.Invalid("channel destination must include team_id and channel_id")
		}
		path := "/teams/" + url.PathEscape(team) + "/channels/" + url.PathEscape(channel) + "/messages"
		if replyTo != "" {
			path += "/" + url.PathEscape(replyTo) + "/replies"
		}
		return path, nil
	case kindChat:
		return "/chats/" + url.PathEscape(id) + "/messages", nil
	}
	return "", provider.Invalid("unsupported destination kind: %s", kind)
}

// chatMessage builds the Graph chatMessage body. A valid Adaptive Card is
// attached and referenced from the HTML body.
func chatMessage(env *core.ChannelMessageEnvelope) (map[string]any, error) {
	if len(env.Attachments) > 0 {
		return nil, provider.Invalid("attachments not supported")
	}
	text := env.TrimmedText()
	_, hasCard, err := env.AdaptiveCard()
	if hasCard && err != nil {
		return nil, provider.Invalid("invalid adaptive card: %v", err)
	}
	if !hasCard {
		if text == "" {
			return nil, provider.Invalid("text required")
		}
		return map[string]any{
			"body": map[string]any{"content": text, "contentType": "html"},
		}, nil
	}
	content := `<attachment id="` + cardAttachmentID + `"></attachment>`
	if text != "" {
		content = text + content
	}
	attachment := map[string]any{
		"id":          cardAttachmentID,
		"contentType": cardContentType,
		"content":     env.Metadata[core.MetadataAdaptiveCard],
	}
	return map[string]any{
		"body":        map[string]any{"content": content, "contentType": "html"},
		"attachments": []any{attachment},
	}, nil
}

// replyTarget returns the message a send answers: the input reply fields,
// the envelope reply scope, then metadata reply_to_id. Quotes are trimmed.
func replyTarget(in provider.SendInput, env *core.ChannelMessageEnvelope) string {
	target, ok := in.ReplyTarget()
	if !ok && env.ReplyScope != nil {
		target = firstNonEmpty(strings.TrimSpace(env.ReplyScope.ReplyTo), strings.TrimSpace(env.ReplyScope.Thread))
	}
	if target == "" {
		target = strings.TrimSpace(env.Metadata[metadataReplyToID])
	}
	return strings.Trim(target, `"`)
}

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

	var env core.ChannelMessageEnvelope
	if in.Envelope != nil {
		env = *in.Envelope
	} else {
		dest, err := shorthandDestination(in, cfg)
		if err != nil {
			return nil, err
		}
		var text *string
		if s, ok := in.Raw["text"].(string); ok {
			text = &s
		}
		env = core.SyntheticEnvelope(Prefix, dest, text)
	}
	dest, ok := env.FirstDestination()
	if !ok {
		fallback := cfg.DefaultDestination()
		if fallback == nil {
			return nil, provider.Invalid("destination required")
		}
		dest = *fallback
	}

	target := replyTarget(in, &env)
	if inv.Op == provider.OpReply && target == "" {
		return nil, provider.Invalid("reply_to_id or thread_id required")
	}
	path, err := messagePath(dest, target)
	if err != nil {
		return nil, err
	}
	body, err := chatMessage(&env)
	if err != nil {
		return nil, err
	}

	client, err := clientFor(ctx, inv, cfg)
	if err != nil {
		return nil, err
	}
	created, err := client.Post(ctx, path, body)
	if err != nil {
		return nil, err
	}
	id := provider.LookupString(created, "id")
	if id == "" {
		id = "graph-message"
		if target != "" {
			id = "graph-reply"
		}
	}
	return provider.SendResult{
		OK:                true,
		ProviderType:      ProviderType,
		Status:            provider.SendStatus(inv.Op),
		MessageID:         id,
		ProviderMessageID: Prefix + ":" + id,
		PublicBaseURL:     cfg.PublicBaseURL,
		Response:          created,
	}, nil
}

// notification is one Graph change notification carrying a chatMessage.
type notification struct {
	Text      string
	TeamID    string
	ChannelID string
	ChatID    string
	From      string
	MessageID string
}

func parseNotification(v any) notification {
	data := provider.Lookup(v, "resourceData")
	n := notification{
		Text:      provider.LookupString(data, "body", "content"),
		TeamID:    provider.LookupString(data, "channelIdentity", "teamId"),
		ChannelID: provider.LookupString(data, "channelIdentity", "channelId"),
		ChatID:    provider.LookupString(data, "chatId"),
		From:      provider.LookupString(data, "from", "user"),
		MessageID: provider.LookupString(data, "id"),
	}
	if n.From == "" {
		n.From = provider.LookupString(data, "from", "user", "id")
	}
	return n
}

func (n notification) envelope() core.ChannelMessageEnvelope {
	meta := core.MessageMetadata{"universal": "true"}
	if n.TeamID != "" {
		meta["team_id"] = n.TeamID
	}
	if n.ChannelID != "" {
		meta["channel_id"] = n.ChannelID
	}
	if n.ChatID != "" {
		meta["chat_id"] = n.ChatID
	}
	var actor *core.Actor
	if n.From != "" {
		meta["from"] = n.From
		actor = &core.Actor{ID: n.From, Kind: "user"}
	}
	if n.MessageID != "" {
		meta[metadataReplyToID] = n.MessageID
	}
	var to []core.Destination
	switch {
	case n.TeamID != "" && n.ChannelID != "":
		to = []core.Destination{{ID: n.TeamID + ":" + n.ChannelID, Kind: kindChannel}}
	case n.ChatID != "":
		to = []core.Destination{{ID: n.ChatID, Kind: kindChat}}
	}
	name := firstNonEmpty(n.ChannelID, n.ChatID, n.TeamID, Prefix)
	return core.IngressEnvelope(Prefix+"-"+name, name, name, actor, to, n.Text, meta)
}

// ingestHTTP answers the Graph validation handshake and normalizes change
// notifications. A {"value":[...]} batch yields one envelope per entry.
func ingestHTTP(_ context.Context, inv provider.Invocation) (any, error) {
	req, failed := provider.DecodeIngest(inv)
	if failed != nil {
		return *failed, nil
	}
	if vt := req.In.QueryValues().Get(validationTokenKey); vt != "" {
		return ingress.TextOut(http.StatusOK, vt), nil
	}

	body := req.JSON()
	items, batched := provider.Lookup(body, "value").([]any)
	if !batched {
		items = []any{body}
	}
	events := make([]core.ChannelMessageEnvelope, 0, len(items))
	var first notification
	for i, item := range items {
		n := parseNotification(item)
		if i == 0 {
			first = n
		}
		events = append(events, n.envelope())
	}
	resp := map[string]any{
		"ok":         true,
		"event":      body,
		"team_id":    nilIfEmpty(first.TeamID),
		"channel_id": nilIfEmpty(first.ChannelID),
	}
	return ingress.JSONOut(resp, events...), nil
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// encode carries the whole envelope so that send_payload can replay it
// with its destination, card and reply target.
func encode(_ context.Context, inv provider.Invocation) (any, error) {
	in, err := provider.DecodeEncodeInput(inv.Input)
	if err != nil {
		return nil, err
	}
	payload, err := provider.JSONPayload(in.Message, map[string]any{"method": http.MethodPost})
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

// RefreshResult reports a token acquisition without exposing the token.
type RefreshResult struct {
	OK        bool   `json:"ok"`
	TokenType string `json:"token_type,omitempty"`
	ExpiresIn int64  `json:"expires_in,omitempty"`
}

// refresh acquires a token with the resolved credentials, proving them.
func refresh(ctx context.Context, inv provider.Invocation) (any, error) {
	raw, err := inv.Object()
	if err != nil {
		return nil, err
	}
	cfg, err := resolver.Resolve(ctx, raw, nil, inv.Caps.Secrets)
	if err != nil {
		return nil, err
	}
	creds, err := cfg.Credentials(ctx, inv.Caps.Secrets)
	if err != nil {
		return nil, err
	}
	tok, err := token.Acquire(ctx, inv.Caps.WithDefaults().HTTP, creds, inv.Tenant)
	if err != nil {
		return nil, err
	}
	return RefreshResult{OK: true, TokenType: tok.TokenType, ExpiresIn: tok.ExpiresIn}, nil
}
