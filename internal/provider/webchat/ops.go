// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package webchat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/greentic/messaging-providers/internal/config"
	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/ingress"
	"github.com/greentic/messaging-providers/internal/keys"
	"github.com/greentic/messaging-providers/internal/provider"
	"github.com/greentic/messaging-providers/internal/provider/webchat/directline"
)

const (
	defaultPayloadText = "universal webchat payload"
	metadataRoute      = "route"
	metadataChannel    = "tenant_channel_id"
)

// QueuedMessage is the record stored in the queue of a route.
type QueuedMessage struct {
	Route           *string `json:"route"`
	TenantChannelID *string `json:"tenant_channel_id"`
	PublicBaseURL   *string `json:"public_base_url"`
	Mode            string  `json:"mode"`
	BaseURL         *string `json:"base_url"`
	Text            string  `json:"text"`
}

// queueKey is the route the record is stored under.
func (m QueuedMessage) queueKey() string {
	if m.Route != nil {
		return *m.Route
	}
	if m.TenantChannelID != nil {
		return *m.TenantChannelID
	}
	return Prefix
}

// QueueKey returns the state key of the queue for route.
func QueueKey(tenant *core.TenantCtx, route string) string {
	c := directline.ContextFromTenant(tenant)
	return keys.NewScope(Prefix, c.Tenant, c.Team).State("queue:" + route)
}

// SendResult is the send output; Payload is the queued record.
type SendResult struct {
	provider.SendResult
	Payload QueuedMessage `json:"payload"`
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

	meta := in.Metadata()
	route := firstNonEmpty(in.String("route"), meta[metadataRoute], config.Or(cfg.Route, ""))
	channel := firstNonEmpty(in.String("tenant_channel_id"), meta[metadataChannel], config.Or(cfg.TenantChannelID, ""))
	if route == "" && channel == "" {
		return nil, provider.Invalid("route or tenant_channel_id required")
	}

	var text string
	if in.Envelope != nil {
		if text, err = provider.RequireText(in.Envelope); err != nil {
			return nil, err
		}
	} else if text = in.String("text"); text == "" {
		return nil, provider.Invalid("text required")
	}

	msg := QueuedMessage{
		Route:           config.Optional(route),
		TenantChannelID: config.Optional(channel),
		PublicBaseURL:   &cfg.PublicBaseURL,
		Mode:            cfg.Mode,
		BaseURL:         cfg.BaseURL,
		Text:            text,
	}
	raw, err := enqueue(ctx, inv, inv.Tenant, msg)
	if err != nil {
		return nil, err
	}
	id, digest := provider.MessageID(raw)
	return SendResult{
		SendResult: provider.SendResult{
			OK:                true,
			ProviderType:      ProviderType,
			Status:            provider.SendStatus(inv.Op),
			MessageID:         id,
			ProviderMessageID: Prefix + ":" + digest,
			PublicBaseURL:     cfg.PublicBaseURL,
		},
		Payload: msg,
	}, nil
}

// enqueue stores msg as the latest message of its route and returns the
// stored bytes.
func enqueue(ctx context.Context, inv provider.Invocation, tenant *core.TenantCtx, msg QueuedMessage) ([]byte, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, core.ErrOther("%v", err)
	}
	key := QueueKey(tenant, msg.queueKey())
	if err := inv.Caps.WithDefaults().State.Write(ctx, key, raw, tenant); err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "webchat message queued", "key", key, "mode", msg.Mode)
	return raw, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// chatEvent is the loose JSON shape of events posted by the chat client.
type chatEvent map[string]any

func (e chatEvent) str(keys ...string) string {
	for _, k := range keys {
		if s, ok := e[k].(string); ok {
			return s
		}
	}
	return ""
}

func (e chatEvent) text() string { return e.str("text", "message") }

func (e chatEvent) user() string { return strings.TrimSpace(e.str("user_id", "from")) }

// IngestResult is the output of ingest.
type IngestResult struct {
	OK       bool                        `json:"ok"`
	Envelope core.ChannelMessageEnvelope `json:"envelope"`
}

func handleIngest(_ context.Context, inv provider.Invocation) (any, error) {
	raw, err := inv.Object()
	if err != nil {
		return nil, err
	}
	ev := chatEvent(raw)
	return IngestResult{
		OK:       true,
		Envelope: inboundEnvelope(ev.text(), ev.user(), strings.TrimSpace(ev.str("route")), strings.TrimSpace(ev.str("tenant_channel_id"))),
	}, nil
}

func ingestHTTP(ctx context.Context, inv provider.Invocation) (any, error) {
	req, failed := provider.DecodeIngest(inv)
	if failed != nil {
		return *failed, nil
	}
	if sub, ok := directline.SubPath(req.In.Path); ok {
		return serveDirectLine(ctx, inv, req, sub), nil
	}

	event := req.JSON()
	obj, _ := event.(map[string]any)
	ev := chatEvent(obj)
	route := ""
	if req.In.Route != nil {
		route = strings.TrimSpace(*req.In.Route)
	}
	route = firstNonEmpty(route, ev.str("route"))
	channel := strings.TrimSpace(ev.str("tenant_channel_id"))
	env := inboundEnvelope(ev.text(), ev.user(), route, channel)

	return ingress.JSONOut(map[string]any{
		"ok":                true,
		"event":             event,
		"route":             config.Optional(route),
		"tenant_channel_id": config.Optional(channel),
	}, env), nil
}

// serveDirectLine answers a Direct Line request. A posted user message is
// also emitted as an event so the host can hand it to the flow engine.
func serveDirectLine(ctx context.Context, inv provider.Invocation, req provider.Ingest, sub string) ingress.HTTPOut {
	dl := req.In
	dl.Path = sub
	out := directline.NewHandler(inv.Caps, inv.Tenant).Serve(ctx, dl)

	if !strings.EqualFold(dl.Method, http.MethodPost) || out.Status != http.StatusCreated || !strings.HasSuffix(sub, "/activities") {
		return out
	}
	var activity map[string]any
	if err := json.Unmarshal(req.Body, &activity); err != nil {
		return out
	}
	text, _ := activity["text"].(string)
	if text == "" {
		return out
	}
	user := provider.LookupString(activity, "from", "id")
	rest := strings.TrimPrefix(sub, directline.PathPrefix+"/conversations/")
	conversationID, _, _ := strings.Cut(rest, "/")
	out.Events = append(out.Events, inboundEnvelope(text, user, conversationID, ""))
	return out
}

func inboundEnvelope(text, user, route, channel string) core.ChannelMessageEnvelope {
	meta := core.MessageMetadata{"universal": "true"}
	if route != "" {
		meta[metadataRoute] = route
	}
	if channel != "" {
		meta[metadataChannel] = channel
	}
	session := firstNonEmpty(route, channel, Prefix)
	var from *core.Actor
	if user != "" {
		from = &core.Actor{ID: user, Kind: "user"}
	}
	return core.IngressEnvelope(Prefix+"-"+session, session, session, from, nil, text, meta)
}

// payloadBody is the body of an encoded webchat payload.
type payloadBody struct {
	Text      string `json:"text"`
	Route     string `json:"route"`
	SessionID string `json:"session_id"`
}

func encode(_ context.Context, inv provider.Invocation) (any, error) {
	in, err := provider.DecodeEncodeInput(inv.Input)
	if err != nil {
		return nil, err
	}
	msg := in.Message
	text := defaultPayloadText
	if msg.Text != nil && strings.TrimSpace(*msg.Text) != "" {
		text = *msg.Text
	}
	route := firstNonEmpty(msg.Metadata[metadataRoute], msg.SessionID, Prefix)
	payload, err := provider.JSONPayload(payloadBody{Text: text, Route: route, SessionID: msg.SessionID}, map[string]any{
		"route":  route,
		"method": http.MethodPost,
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
	var ev chatEvent
	_ = json.Unmarshal(body, &ev)

	route := strings.TrimSpace(ev.str("route"))
	channel := strings.TrimSpace(ev.str("tenant_channel_id"))
	if route == "" && channel == "" {
		return provider.PayloadFailed("route or tenant_channel_id required", false), nil
	}
	text := ev.text()
	if text == "" {
		return provider.PayloadFailed("text required", false), nil
	}

	tenant := inv.Tenant
	if tenant == nil {
		tenant = in.Tenant
	}
	if session := strings.TrimSpace(ev.str("session_id")); session != "" {
		h := directline.NewHandler(inv.Caps, tenant)
		found, err := h.AppendBotActivity(ctx, directline.ContextFromTenant(tenant), session, text)
		if err != nil {
			slog.WarnContext(ctx, "webchat bot activity not recorded", "conversation_id", session, "error", err)
		} else if !found {
			slog.DebugContext(ctx, "webchat conversation not found", "conversation_id", session)
		}
	}

	msg := QueuedMessage{
		Route:           config.Optional(route),
		TenantChannelID: config.Optional(channel),
		PublicBaseURL:   config.Optional(ev.str("public_base_url")),
		Mode:            firstNonEmpty(ev.str("mode"), ModeLocalQueue),
		BaseURL:         config.Optional(ev.str("base_url")),
		Text:            text,
	}
	if _, err := enqueue(ctx, inv, tenant, msg); err != nil {
		return provider.PayloadFailed(err.Error(), false), nil
	}
	return provider.PayloadSent(), nil
}
