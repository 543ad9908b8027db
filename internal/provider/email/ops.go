// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package email

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/graph"
	"github.com/greentic/messaging-providers/internal/ingress"
	"github.com/greentic/messaging-providers/internal/provider"
	"github.com/greentic/messaging-providers/internal/render"
)

const (
	kindEmail = "email"

	defaultSubject     = "email message"
	defaultPayloadText = "universal email payload"
	maxSubjectChars    = 78

	bodyTypeHTML = "HTML"
	bodyTypeText = "Text"

	metadataSubject    = "subject"
	metadataTo         = "to"
	validationTokenKey = "validationToken"
	messageSelect      = "subject,bodyPreview,receivedDateTime,from,toRecipients,webLink,internetMessageId"
)

// SendResult is the send and reply result. Payload is the SMTP submission
// the id was derived from.
type SendResult struct {
	provider.SendResult
	Payload map[string]any `json:"payload"`
}

func replyTarget(in provider.SendInput, env *core.ChannelMessageEnvelope) string {
	if target, ok := in.ReplyTarget(); ok {
		return target
	}
	for _, key := range []string{"reply_to_id", "in_reply_to"} {
		if v := strings.TrimSpace(env.Metadata[key]); v != "" {
			return v
		}
	}
	return ""
}

// handleSend records an SMTP submission. The message and provider ids
// derive from a hash of the submission, so resending the same message
// yields the same ids.
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
		Kind:     kindEmail,
		Fallback: cfg.DefaultDestination(),
	})
	if err != nil {
		return nil, err
	}
	if env.Text == nil {
		if body := in.String("body"); body != "" {
			env.Text = &body
		}
	}
	body, err := provider.RequireText(&env)
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
	to := strings.TrimSpace(dest.ID)
	if to == "" {
		return nil, provider.Invalid("destination id required")
	}
	if dest.Kind != "" && dest.Kind != kindEmail {
		return nil, provider.Invalid("unsupported destination kind: %s", dest.Kind)
	}

	subject := firstNonEmpty(env.Metadata[metadataSubject], in.String("subject"), defaultSubject)
	payload := map[string]any{
		"from":     cfg.FromAddress,
		"to":       to,
		"subject":  subject,
		"body":     body,
		"host":     cfg.Host,
		"port":     int(cfg.Port),
		"username": cfg.Username,
		"tls_mode": cfg.TLSMode,
	}
	scheme := "smtp"
	if inv.Op == provider.OpReply {
		target := replyTarget(in, &env)
		if target == "" {
			return nil, provider.Invalid("reply_to_id or thread_id required")
		}
		payload["in_reply_to"] = target
		scheme = "smtp-reply"
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, core.ErrOther("%v", err)
	}
	id, digest := provider.MessageID(raw)
	slog.DebugContext(ctx, "email submission recorded", "message_id", id, "tls_mode", cfg.TLSMode)
	return SendResult{
		SendResult: provider.SendResult{
			OK:                true,
			ProviderType:      ProviderType,
			Status:            provider.SendStatus(inv.Op),
			MessageID:         id,
			ProviderMessageID: scheme + ":" + digest,
			PublicBaseURL:     cfg.PublicBaseURL,
		},
		Payload: payload,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// ingestHTTP answers the Graph validation handshake and turns mail change
// notifications into envelopes, fetching each message for the mailbox
// named by the binding.
func ingestHTTP(ctx context.Context, inv provider.Invocation) (any, error) {
	req, failed := provider.DecodeIngest(inv)
	if failed != nil {
		return *failed, nil
	}
	if vt := req.In.QueryValues().Get(validationTokenKey); vt != "" {
		return ingress.TextOut(http.StatusOK, vt), nil
	}
	switch strings.ToUpper(req.In.Method) {
	case http.MethodGet:
		return ingress.ErrorOut(http.StatusBadRequest, "validationToken missing"), nil
	case http.MethodPost:
		return notifications(ctx, inv, req), nil
	}
	return ingress.ErrorOut(http.StatusMethodNotAllowed, "method not allowed"), nil
}

type notification struct {
	Resource  string
	MessageID string
}

func parseNotifications(body []byte) ([]notification, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, provider.Invalid("notification decode failed: %v", err)
	}
	entries, ok := doc["value"].([]any)
	if !ok {
		return nil, provider.Invalid("missing notification value array")
	}
	out := make([]notification, 0, len(entries))
	for _, entry := range entries {
		id := provider.LookupString(entry, "resourceData", "id")
		if id == "" {
			if odata := provider.LookupString(entry, "resourceData", "@odata.id"); odata != "" {
				id = path.Base(odata)
			}
		}
		if id == "" {
			return nil, provider.Invalid("notification missing resourceData.id")
		}
		out = append(out, notification{Resource: provider.LookupString(entry, "resource"), MessageID: id})
	}
	return out, nil
}

func notifications(ctx context.Context, inv provider.Invocation, req provider.Ingest) ingress.HTTPOut {
	if len(req.In.Config) == 0 {
		return ingress.ErrorOut(http.StatusBadRequest, "config required for ingest")
	}
	cfg, err := ParseConfig(req.In.Config)
	if err != nil {
		return ingress.ErrorOut(http.StatusBadRequest, err.Error())
	}
	binding := ""
	if req.In.BindingID != nil {
		binding = *req.In.BindingID
	}
	user, err := BindingUser(binding)
	if err != nil {
		return ingress.ErrorOut(http.StatusBadRequest, err.Error())
	}
	items, err := parseNotifications(req.Body)
	if err != nil {
		return ingress.ErrorOut(http.StatusBadRequest, err.Error())
	}

	creds, err := cfg.UserCredentials(ctx, inv.Caps.Secrets, user)
	if err != nil {
		return ingress.ErrorOut(http.StatusInternalServerError, err.Error())
	}
	client, err := graph.NewClient(ctx, inv.Caps, inv.Tenant, cfg.GraphBase(), creds)
	if err != nil {
		return ingress.ErrorOut(http.StatusInternalServerError, err.Error())
	}
	events := make([]core.ChannelMessageEnvelope, 0, len(items))
	for _, n := range items {
		msg, err := client.Call(ctx, http.MethodGet, "/me/messages/"+url.PathEscape(n.MessageID)+"?$select="+messageSelect, nil)
		if err != nil {
			slog.WarnContext(ctx, "graph message fetch failed", "message_id", n.MessageID, "error", err)
			return ingress.ErrorOut(http.StatusInternalServerError, err.Error())
		}
		events = append(events, inboundEnvelope(msg, user, n))
	}
	return ingress.HTTPOut{Status: http.StatusOK, Events: events}
}

func inboundEnvelope(msg map[string]any, user AuthUser, n notification) core.ChannelMessageEnvelope {
	subject := provider.LookupString(msg, "subject")
	if _, present := msg["subject"].(string); !present {
		subject = defaultSubject
	}
	meta := core.MessageMetadata{
		"graph_message_id": n.MessageID,
		"subject":          subject,
		"resource":         n.Resource,
	}
	if preview := provider.LookupString(msg, "bodyPreview"); preview != "" {
		meta["body_preview"] = preview
	}
	if received := provider.LookupString(msg, "receivedDateTime"); received != "" {
		meta["receivedDateTime"] = received
	}
	var to []core.Destination
	if from := provider.LookupString(msg, "from", "emailAddress", "address"); from != "" {
		meta["from"] = from
		meta[metadataTo] = from
		to = []core.Destination{{ID: from, Kind: kindEmail}}
	}
	actor := &core.Actor{ID: user.UserID, Kind: "user"}
	env := core.IngressEnvelope("email-"+n.MessageID, Prefix, n.MessageID, actor, to, subject, meta)
	env.CorrelationID = n.Resource
	return env
}

// mailPayload is the body of an encoded email payload.
type mailPayload struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	BodyType string `json:"body_type,omitempty"`
}

// encode renders an Adaptive Card as an HTML body. Without a card the body
// is the message text.
func encode(_ context.Context, inv provider.Invocation) (any, error) {
	in, err := provider.DecodeEncodeInput(inv.Input)
	if err != nil {
		return nil, err
	}
	msg := in.Message
	rawCard := msg.Metadata[core.MetadataAdaptiveCard]

	mail := mailPayload{BodyType: bodyTypeHTML}
	var ok bool
	if strings.TrimSpace(rawCard) != "" {
		mail.Body, ok = CardHTML(rawCard)
	}
	if !ok {
		mail.BodyType = ""
		mail.Body = strings.TrimSpace(render.EncodeText(&msg, caps))
		if mail.Body == "" {
			mail.Body = defaultPayloadText
		}
	}

	if dest, found := msg.FirstDestination(); found {
		mail.To = dest.ID
	}
	if mail.To == "" {
		mail.To = msg.Metadata[metadataTo]
	}
	if mail.To == "" {
		return nil, provider.Invalid("missing email target")
	}
	mail.Subject = msg.Metadata[metadataSubject]
	if mail.Subject == "" {
		mail.Subject = cardTitle(rawCard)
	}
	if mail.Subject == "" {
		mail.Subject = truncateRunes(mail.Body, maxSubjectChars)
	}

	payload, err := provider.JSONPayload(mail, map[string]any{
		"to":      mail.To,
		"subject": mail.Subject,
		"method":  http.MethodPost,
	})
	if err != nil {
		return nil, err
	}
	return provider.EncodeResult{OK: true, Payload: payload}, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// sendPayload delivers an encoded payload with Graph sendMail. A delegated
// token sends as /me; an application token sends as the configured
// sender.
func sendPayload(ctx context.Context, inv provider.Invocation) (any, error) {
	in, body, failed := provider.DecodeSendPayload(inv.Input, ProviderType)
	if failed != nil {
		return *failed, nil
	}
	var mail mailPayload
	_ = json.Unmarshal(body, &mail)
	mail.To = strings.TrimSpace(mail.To)
	mail.Subject = strings.TrimSpace(mail.Subject)
	if mail.To == "" {
		return provider.PayloadFailed("missing email target", false), nil
	}
	if mail.Subject == "" {
		return provider.PayloadFailed("subject required", false), nil
	}

	raw, err := inv.Object()
	if err != nil {
		return provider.PayloadFailed(err.Error(), false), nil
	}
	var extra struct {
		AuthUser *AuthUser `json:"auth_user"`
	}
	_ = json.Unmarshal(inv.Input, &extra)
	cfg, err := resolver.Resolve(ctx, raw, nil, inv.Caps.Secrets)
	if err != nil {
		return provider.PayloadFailed(err.Error(), false), nil
	}

	secrets := inv.Caps.Secrets
	delegated := extra.AuthUser != nil
	var client graph.Client
	if delegated {
		creds, err := cfg.UserCredentials(ctx, secrets, *extra.AuthUser)
		if err != nil {
			return provider.PayloadFailed(err.Error(), false), nil
		}
		client, err = graph.NewClient(ctx, inv.Caps, tenantOf(inv, in), cfg.GraphBase(), creds)
		if err != nil {
			return provider.PayloadFailed(err.Error(), true), nil
		}
	} else {
		creds, err := cfg.Credentials(ctx, secrets)
		if err != nil {
			return provider.PayloadFailed(err.Error(), false), nil
		}
		client, err = graph.NewClient(ctx, inv.Caps, tenantOf(inv, in), cfg.GraphBase(), creds)
		if err != nil {
			return provider.PayloadFailed(err.Error(), true), nil
		}
		delegated = cfg.hasRefreshToken(ctx, secrets)
	}

	contentType := mail.BodyType
	if contentType == "" {
		contentType = bodyTypeText
	}
	message := map[string]any{
		"message": map[string]any{
			"subject": mail.Subject,
			"body":    map[string]any{"contentType": contentType, "content": mail.Body},
			"toRecipients": []any{
				map[string]any{"emailAddress": map[string]any{"address": mail.To}},
			},
		},
		"saveToSentItems": false,
	}
	target := "/users/" + url.PathEscape(cfg.FromAddress) + "/sendMail"
	if delegated {
		target = "/me/sendMail"
	}
	if _, err := client.Post(ctx, target, message); err != nil {
		return provider.PayloadFailed(err.Error(), true), nil
	}
	return provider.PayloadSent(), nil
}

func tenantOf(inv provider.Invocation, in provider.SendPayloadInput) *core.TenantCtx {
	if inv.Tenant != nil {
		return inv.Tenant
	}
	return in.Tenant
}
