// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package webex

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/config"
	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/ingress"
	"github.com/greentic/messaging-providers/internal/provider"
)

const (
	kindRoom   = "room"
	kindPerson = "person"
	kindEmail  = "email"

	cardContentType = "application/vnd.microsoft.card.adaptive"
	// Webex renders Adaptive Cards up to 1.3.
	maxCardVersion = "1.3"

	metadataReplyToID = "reply_to_id"
	metadataParentID  = "parentId"
)

var supportedCardVersions = map[string]bool{"1.0": true, "1.1": true, "1.2": true, "1.3": true}

// DetectKind guesses the kind of a destination id without one: ids with
// "@" are emails, base64 "ciscospark://" URNs are rooms.
func DetectKind(id string) string {
	switch {
	case strings.Contains(id, "@"):
		return kindEmail
	case strings.HasPrefix(id, "Y2lz"):
		return kindRoom
	}
	return kindEmail
}

// cardOf returns the parsed Adaptive Card of env. A card that does not
// parse is ignored and the text is sent instead.
func cardOf(env *core.ChannelMessageEnvelope) map[string]any {
	raw := strings.TrimSpace(env.Metadata[core.MetadataAdaptiveCard])
	if raw == "" {
		return nil
	}
	var card map[string]any
	if err := json.Unmarshal([]byte(raw), &card); err != nil {
		return nil
	}
	return card
}

// cardText is the card's top-level text, else its body text blocks
// joined with spaces.
func cardText(card map[string]any) string {
	if text := strings.TrimSpace(provider.LookupString(card, "text")); text != "" {
		return text
	}
	blocks, _ := card["body"].([]any)
	var parts []string
	for _, block := range blocks {
		if text := strings.TrimSpace(provider.LookupString(block, "text")); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// messageBody builds the /messages body without its destination. A card
// is sent as an attachment with markdown as the fallback text.
func messageBody(env *core.ChannelMessageEnvelope) (map[string]any, error) {
	if len(env.Attachments) > 0 {
		return nil, provider.Invalid("attachments not supported")
	}
	text := env.TrimmedText()
	card := cardOf(env)
	if card == nil {
		if text == "" {
			return nil, provider.Invalid("text required")
		}
		return map[string]any{"text": text, "markdown": text}, nil
	}

	if v, ok := card["version"].(string); ok && !supportedCardVersions[v] {
		card["version"] = maxCardVersion
	}
	markdown := cardText(card)
	if markdown == "" {
		markdown = text
	}
	if markdown == "" {
		markdown = " "
	}
	attachment := map[string]any{"contentType": cardContentType, "content": card}
	return map[string]any{
		"attachments": []any{attachment},
		"markdown":    markdown,
	}, nil
}

// address sets the destination field of body for dest.
func address(body map[string]any, dest core.Destination) error {
	id := strings.TrimSpace(dest.ID)
	if id == "" {
		return provider.Invalid("destination id required")
	}
	kind := dest.Kind
	if kind == "" {
		kind = DetectKind(id)
	}
	switch kind {
	case kindRoom:
		body["roomId"] = id
	case kindPerson, "user":
		body["toPersonId"] = id
	case kindEmail:
		body["toPersonEmail"] = id
	default:
		return provider.Invalid("unsupported destination kind: %s", kind)
	}
	return nil
}

// parentID is the thread a message is posted into: the input reply
// fields or parentId, then reply_to_id or parentId in the metadata.
func parentID(in provider.SendInput, env *core.ChannelMessageEnvelope) string {
	target, ok := in.ReplyTarget()
	if !ok {
		target = in.String(metadataParentID)
	}
	for _, key := range []string{metadataReplyToID, metadataParentID} {
		if target != "" {
			break
		}
		target = strings.TrimSpace(env.Metadata[key])
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

	env, err := in.Resolve(provider.EnvelopeOptions{
		Channel:  Prefix,
		Keys:     []string{"to"},
		Kind:     kindRoom,
		Fallback: cfg.DefaultDestination(),
	})
	if err != nil {
		return nil, err
	}
	body, err := messageBody(&env)
	if err != nil {
		return nil, err
	}
	dest, ok := env.FirstDestination()
	if !ok {
		fallback := cfg.DefaultDestination()
		if fallback == nil {
			return nil, provider.Invalid("destination required")
		}
		dest = *fallback
	}
	if err := address(body, dest); err != nil {
		return nil, err
	}
	parent := parentID(in, &env)
	if inv.Op == provider.OpReply && parent == "" {
		return nil, provider.Invalid("reply_to_id or thread_id required")
	}
	if parent != "" {
		body["parentId"] = parent
	}

	token, err := config.SecretOr(ctx, inv.Caps.Secrets, cfg.BotToken, TokenKey)
	if err != nil {
		return nil, err
	}
	resp, err := provider.Do(ctx, inv.Caps, inv.Tenant, provider.Request{
		Service: Prefix,
		URL:     cfg.APIBaseURL + "/messages",
		Bearer:  token,
		JSON:    body,
	})
	if err != nil {
		return nil, err
	}

	parsed := provider.DecodeBody(resp)
	id := provider.LookupString(parsed, "id")
	if id == "" {
		id = "webex-message"
		if inv.Op == provider.OpReply {
			id = "webex-reply"
		}
	}
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

// notification is the part of a Webex webhook body used for ingest.
type notification struct {
	Resource    string
	Event       string
	MessageID   string
	RoomID      string
	PersonEmail string
	PersonID    string
	Text        string
}

func parseNotification(body any) notification {
	return notification{
		Resource:    provider.LookupString(body, "resource"),
		Event:       provider.LookupString(body, "event"),
		MessageID:   provider.LookupString(body, "data", "id"),
		RoomID:      provider.LookupString(body, "data", "roomId"),
		PersonEmail: provider.LookupString(body, "data", "personEmail"),
		PersonID:    provider.LookupString(body, "data", "personId"),
		Text:        firstString(body, "text", "markdown"),
	}
}

func firstString(v any, keys ...string) string {
	for _, k := range keys {
		if s := provider.LookupString(v, k); s != "" {
			return s
		}
	}
	return ""
}

// message is a message fetched from GET /messages/{id}.
type message struct {
	Markdown    string
	Text        string
	RoomID      string
	PersonEmail string
	PersonID    string
	Attachments []core.Attachment
}

func fetchMessage(ctx context.Context, inv provider.Invocation, id, token string) (message, error) {
	resp, err := provider.Do(ctx, inv.Caps, inv.Tenant, provider.Request{
		Service: Prefix,
		Method:  http.MethodGet,
		URL:     DefaultAPIBase + "/messages/" + url.PathEscape(id),
		Bearer:  token,
	})
	if err != nil {
		return message{}, err
	}
	var data any = provider.DecodeBody(resp)
	if result := provider.Lookup(data, "result"); result != nil {
		data = result
	}
	return message{
		Markdown:    provider.LookupString(data, "markdown"),
		Text:        provider.LookupString(data, "text"),
		RoomID:      provider.LookupString(data, "roomId"),
		PersonEmail: provider.LookupString(data, "personEmail"),
		PersonID:    provider.LookupString(data, "personId"),
		Attachments: attachments(id, provider.Lookup(data, "attachments")),
	}, nil
}

func attachments(messageID string, v any) []core.Attachment {
	items, _ := v.([]any)
	out := make([]core.Attachment, 0, len(items))
	for i, item := range items {
		a := core.Attachment{
			MimeType: provider.LookupString(item, "contentType"),
			URL:      provider.LookupString(item, "contentUrl"),
			Name:     firstString(item, "name", "displayName"),
		}
		if a.MimeType == "" {
			a.MimeType = "application/octet-stream"
		}
		if a.URL == "" {
			a.URL = provider.LookupString(item, "content", "url")
		}
		if a.URL == "" {
			a.URL = "webex:" + messageID + ":attachment:" + strconv.Itoa(i)
		}
		for _, key := range []string{"size", "sizeBytes"} {
			if n, ok := provider.Lookup(item, key).(float64); ok && n >= 0 {
				a.SizeBytes = int64(n)
				break
			}
		}
		out = append(out, a)
	}
	return out
}

// inbound collects what ends up in the ingress envelope.
type inbound struct {
	notification
	Status      int
	Err         string
	Attachments []core.Attachment
}

func (m inbound) envelope() core.ChannelMessageEnvelope {
	session := firstNonEmpty(m.RoomID, m.MessageID, Prefix)
	meta := core.MessageMetadata{
		"webex.resource":       m.Resource,
		"webex.event":          m.Event,
		"webex.fetchStatus":    strconv.Itoa(m.Status),
		"webex.hasAttachments": strconv.FormatBool(len(m.Attachments) > 0),
	}
	for key, value := range map[string]string{
		"webex.messageId":   m.MessageID,
		"webex.roomId":      m.RoomID,
		"webex.personEmail": m.PersonEmail,
		"webex.personId":    m.PersonID,
		"webex.ingestError": m.Err,
	} {
		if value != "" {
			meta[key] = value
		}
	}
	if len(m.Attachments) > 0 {
		types := make([]string, 0, len(m.Attachments))
		for _, a := range m.Attachments {
			types = append(types, a.MimeType)
		}
		meta["webex.attachmentTypes"] = strings.Join(types, ",")
	}

	var from *core.Actor
	if sender := firstNonEmpty(m.PersonEmail, m.PersonID); sender != "" {
		from = &core.Actor{ID: sender, Kind: kindPerson}
	}
	id := Prefix + "-ingress-" + session
	if m.MessageID != "" {
		id = Prefix + "-" + m.MessageID
	}
	env := core.IngressEnvelope(id, Prefix, session, from, []core.Destination{{ID: session}}, m.Text, meta)
	env.Attachments = m.Attachments
	return env
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ingestHTTP normalizes a webhook. Webhooks carry only ids, so a
// messages:created event fetches the message with the bot token; a
// failed fetch still yields an envelope, flagged with webex.ingestError.
func ingestHTTP(ctx context.Context, inv provider.Invocation) (any, error) {
	req, failed := provider.DecodeIngest(inv)
	if failed != nil {
		return *failed, nil
	}
	ev, err := ingress.Check(Prefix, ingress.Webex{}).Validate(ctx, req.In.Headers, req.Body, inv.Caps.Secrets)
	if err != nil {
		return ingress.ErrorOut(http.StatusBadRequest, err.Error()), nil
	}

	m := inbound{notification: parseNotification(ev.Event), Status: http.StatusOK}
	if m.Resource == "messages" && m.Event == "created" && m.MessageID != "" {
		m = fetchInbound(ctx, inv, m)
	}

	resp := map[string]any{"ok": m.Err == "", "event": ev.Event}
	if m.Err != "" {
		resp["error"] = m.Err
	}
	out := ingress.JSONOut(resp, m.envelope())
	out.Status = m.Status
	return out, nil
}

func fetchInbound(ctx context.Context, inv provider.Invocation, m inbound) inbound {
	m.Text = ""
	token, err := botToken(ctx, inv.Caps.Secrets)
	if err != nil {
		m.Status, m.Err = http.StatusInternalServerError, err.Error()
		return m
	}
	fetched, err := fetchMessage(ctx, inv, m.MessageID, token)
	if err != nil {
		slog.WarnContext(ctx, "webex message fetch failed", "message_id", m.MessageID, "error", err)
		m.Status, m.Err = http.StatusBadGateway, err.Error()
		return m
	}
	m.Text = firstNonEmpty(strings.TrimSpace(fetched.Markdown), fetched.Text)
	m.RoomID = firstNonEmpty(fetched.RoomID, m.RoomID)
	if fetched.PersonEmail != "" || fetched.PersonID != "" {
		m.PersonEmail, m.PersonID = fetched.PersonEmail, fetched.PersonID
	}
	m.Attachments = fetched.Attachments
	return m
}

func botToken(ctx context.Context, secrets capability.SecretStore) (string, error) {
	if secrets == nil {
		return "", core.ErrMissingSecret(TokenKey)
	}
	return capability.SecretString(ctx, secrets, TokenKey)
}

// encode carries the whole envelope so that send_payload can replay it
// with its destination, card and thread.
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
