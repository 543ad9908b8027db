// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package directline serves the subset of the Bot Framework Direct Line
// v3 API that the webchat client polls: token generation, conversation
// start and activity exchange. Conversations and rate-limit windows live
// in the state capability.
package directline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/ingress"
)

// PathPrefix roots every Direct Line endpoint.
const PathPrefix = "/v3/directline"

// SigningKeySecret is the secret holding the HS256 signing key.
const SigningKeySecret = "jwt_signing_key"

// Token issuance limits and attachment rules.
const (
	RateLimitWindow    = 60 * time.Second
	RateLimitRequests  = 5
	MaxAttachmentBytes = 512 * 1024
)

var allowedAttachmentTypes = map[string]bool{
	"text/plain":                               true,
	"application/json":                         true,
	"image/png":                                true,
	"image/jpeg":                               true,
	"image/gif":                                true,
	"application/vnd.microsoft.card.adaptive":  true,
	"application/vnd.microsoft.card.hero":      true,
	"application/vnd.microsoft.card.thumbnail": true,
}

// Requests counts Direct Line requests by endpoint and response status.
var Requests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "msgprov_directline_requests_total",
		Help: "Total number of Direct Line requests",
	},
	[]string{"endpoint", "status"},
)

// RegisterMetrics registers Direct Line metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Requests)
}

// Handler answers Direct Line requests. Now and NewID default to the wall
// clock and ULIDs.
type Handler struct {
	Store   Store
	Secrets capability.SecretStore
	Now     func() time.Time
	NewID   func() string
}

// NewHandler returns a handler over caps for tenant.
func NewHandler(caps capability.Set, tenant *core.TenantCtx) Handler {
	caps = caps.WithDefaults()
	return Handler{
		Store:   Store{State: caps.State, Tenant: tenant},
		Secrets: caps.Secrets,
	}
}

func (h Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h Handler) newID() string {
	if h.NewID != nil {
		return h.NewID()
	}
	return ulid.Make().String()
}

// SubPath returns the part of path starting at PathPrefix, which lets
// the handler sit behind operator routes such as
// /messaging/ingress/webchat/default/_/v3/directline/...
func SubPath(path string) (string, bool) {
	i := strings.Index(path, PathPrefix)
	if i < 0 {
		return "", false
	}
	return path[i:], true
}

// Serve routes req by path and method.
func (h Handler) Serve(ctx context.Context, req ingress.HTTPIn) ingress.HTTPOut {
	endpoint, out := h.route(ctx, req)
	Requests.WithLabelValues(endpoint, strconv.Itoa(out.Status)).Inc()
	return out
}

func (h Handler) route(ctx context.Context, req ingress.HTTPIn) (string, ingress.HTTPOut) {
	if !strings.HasPrefix(req.Path, PathPrefix) {
		return "unknown", errorOut(http.StatusNotFound, "not_found", "missing directline prefix")
	}
	if strings.EqualFold(req.Method, http.MethodOptions) {
		return "preflight", ingress.HTTPOut{Status: http.StatusNoContent, Headers: jsonHeaders()}
	}
	post := strings.EqualFold(req.Method, http.MethodPost)
	get := strings.EqualFold(req.Method, http.MethodGet)

	segments := strings.Split(strings.Trim(strings.TrimPrefix(req.Path, PathPrefix), "/"), "/")
	switch {
	case len(segments) == 2 && segments[0] == "tokens" && segments[1] == "generate":
		if !post {
			return "tokens", methodNotAllowed()
		}
		return "tokens", h.generateToken(ctx, req)
	case len(segments) == 1 && segments[0] == "conversations":
		if !post {
			return "conversations", methodNotAllowed()
		}
		return "conversations", h.startConversation(ctx, req)
	case len(segments) == 3 && segments[0] == "conversations" && segments[2] == "activities":
		switch {
		case post:
			return "activities", h.postActivity(ctx, req, segments[1])
		case get:
			return "activities", h.getActivities(ctx, req, segments[1])
		}
		return "activities", methodNotAllowed()
	case len(segments) == 3 && segments[0] == "conversations" && segments[2] == "stream":
		return "stream", errorOut(http.StatusNotImplemented, "not_implemented", "streaming not supported")
	}
	return "unknown", errorOut(http.StatusNotFound, "not_found", "unknown directline endpoint")
}

func (h Handler) generateToken(ctx context.Context, req ingress.HTTPIn) ingress.HTTPOut {
	dlCtx := contextFromQuery(req)
	body, out := decodeBody(req)
	if out != nil {
		return *out
	}
	user := "anonymous"
	if u, ok := body["user"].(map[string]any); ok {
		if id, ok := u["id"].(string); ok {
			user = id
		}
	}

	if out := h.enforceRateLimit(ctx, RateLimitKey(dlCtx, user)); out != nil {
		return *out
	}
	key, out := h.signingKey(ctx)
	if out != nil {
		return *out
	}
	token, err := IssueToken(key, dlCtx, user, "", h.now())
	if err != nil {
		return errorOut(http.StatusInternalServerError, "token_issue_failed", "failed to mint token: "+err.Error())
	}
	return jsonOut(http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(TokenTTL / time.Second),
	})
}

func (h Handler) enforceRateLimit(ctx context.Context, key string) *ingress.HTTPOut {
	now := h.now().Unix()
	state := NewRateLimit(now)
	if _, err := h.Store.Load(ctx, key, &state); err != nil {
		out := stateError("state_read", err)
		return &out
	}
	if _, ok := state.Bump(now, int64(RateLimitWindow/time.Second), RateLimitRequests); !ok {
		slog.WarnContext(ctx, "directline token rate limit exceeded", "key", key)
		out := errorOut(http.StatusTooManyRequests, "rate_limited", "token rate limit exceeded")
		return &out
	}
	if err := h.Store.Save(ctx, key, state); err != nil {
		out := stateError("state_write", err)
		return &out
	}
	return nil
}

func (h Handler) startConversation(ctx context.Context, req ingress.HTTPIn) ingress.HTTPOut {
	key, claims, out := h.authorize(ctx, req)
	if out != nil {
		return *out
	}
	if claims.Conv != "" {
		return errorOut(http.StatusForbidden, "forbidden", "token already bound to a conversation")
	}

	id := h.newID()
	if err := h.Store.Save(ctx, ConversationKey(claims.Ctx, id), NewConversation(claims.Ctx)); err != nil {
		return stateError("state_write", err)
	}
	token, err := IssueToken(key, claims.Ctx, claims.Subject, id, h.now())
	if err != nil {
		return errorOut(http.StatusInternalServerError, "token_issue_failed", "failed to mint conversation token: "+err.Error())
	}
	slog.InfoContext(ctx, "directline conversation started", "conversation_id", id, "tenant", claims.Ctx.Tenant)
	return jsonOut(http.StatusCreated, map[string]any{
		"conversationId": id,
		"token":          token,
		"expires_in":     int(TokenTTL / time.Second),
		"streamUrl":      nil,
	})
}

func (h Handler) postActivity(ctx context.Context, req ingress.HTTPIn, conversationID string) ingress.HTTPOut {
	conv, key, out := h.conversation(ctx, req, conversationID)
	if out != nil {
		return *out
	}
	body, out := decodeBody(req)
	if out != nil {
		return *out
	}
	if out := validateAttachments(body); out != nil {
		return *out
	}

	activity := Activity{
		ID:        h.newID(),
		Type:      "message",
		Timestamp: h.now().UnixMilli(),
		Watermark: conv.BumpWatermark(),
		Raw:       body,
	}
	if t, ok := body["type"].(string); ok {
		activity.Type = t
	}
	if text, ok := body["text"].(string); ok {
		activity.Text = &text
	}
	if from, ok := body["from"].(map[string]any); ok {
		if id, ok := from["id"].(string); ok {
			activity.From = &id
		}
	}
	conv.Activities = append(conv.Activities, activity)
	if err := h.Store.Save(ctx, key, conv); err != nil {
		return stateError("state_write", err)
	}
	return jsonOut(http.StatusCreated, map[string]any{"id": activity.ID})
}

func (h Handler) getActivities(ctx context.Context, req ingress.HTTPIn, conversationID string) ingress.HTTPOut {
	conv, _, out := h.conversation(ctx, req, conversationID)
	if out != nil {
		return *out
	}
	var watermark *uint64
	if raw := req.QueryValues().Get("watermark"); raw != "" {
		w, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return errorOut(http.StatusBadRequest, "bad_request", "watermark must be a number")
		}
		watermark = &w
	}
	activities := conv.Since(watermark)
	values := make([]map[string]any, 0, len(activities))
	for _, a := range activities {
		values = append(values, activityValue(a))
	}
	return jsonOut(http.StatusOK, map[string]any{
		"activities": values,
		"watermark":  strconv.FormatUint(conv.NextWatermark, 10),
	})
}

// conversation authorizes req for conversationID and loads its state.
func (h Handler) conversation(ctx context.Context, req ingress.HTTPIn, conversationID string) (Conversation, string, *ingress.HTTPOut) {
	_, claims, out := h.authorize(ctx, req)
	if out != nil {
		return Conversation{}, "", out
	}
	if claims.Conv != conversationID {
		o := errorOut(http.StatusForbidden, "forbidden", "token bound to different conversation")
		return Conversation{}, "", &o
	}
	key := ConversationKey(claims.Ctx, conversationID)
	var conv Conversation
	found, err := h.Store.Load(ctx, key, &conv)
	if err != nil {
		o := stateError("state_read", err)
		return Conversation{}, "", &o
	}
	if !found {
		o := errorOut(http.StatusNotFound, "not_found", "conversation not found")
		return Conversation{}, "", &o
	}
	if conv.Ctx != claims.Ctx {
		o := errorOut(http.StatusForbidden, "forbidden", "token context mismatch")
		return Conversation{}, "", &o
	}
	return conv, key, nil
}

// authorize verifies the bearer token of req and returns the signing key
// along with its claims.
func (h Handler) authorize(ctx context.Context, req ingress.HTTPIn) ([]byte, *Claims, *ingress.HTTPOut) {
	token, ok := bearer(req)
	if !ok {
		out := errorOut(http.StatusUnauthorized, "unauthorized", "missing Authorization header")
		return nil, nil, &out
	}
	key, out := h.signingKey(ctx)
	if out != nil {
		return nil, nil, out
	}
	claims, err := VerifyToken(key, token, h.now())
	if err != nil {
		o := errorOut(http.StatusUnauthorized, "unauthorized", "invalid token: "+err.Error())
		return nil, nil, &o
	}
	return key, claims, nil
}

func (h Handler) signingKey(ctx context.Context) ([]byte, *ingress.HTTPOut) {
	if h.Secrets == nil {
		out := errorOut(http.StatusInternalServerError, "missing_secret", "secret "+SigningKeySecret+" not found")
		return nil, &out
	}
	key, err := h.Secrets.Get(ctx, SigningKeySecret)
	switch {
	case errors.Is(err, capability.ErrNotFound):
		out := errorOut(http.StatusInternalServerError, "missing_secret", "secret "+SigningKeySecret+" not found")
		return nil, &out
	case err != nil:
		out := errorOut(http.StatusInternalServerError, "secret_error", err.Error())
		return nil, &out
	case len(key) == 0:
		out := errorOut(http.StatusInternalServerError, "invalid_secret", "signing key is empty")
		return nil, &out
	}
	return key, nil
}

// AppendBotActivity adds a bot message to an existing conversation so the
// next poll returns it. found is false when the conversation does not
// exist.
func (h Handler) AppendBotActivity(ctx context.Context, dlCtx Context, conversationID, text string) (found bool, err error) {
	key := ConversationKey(dlCtx, conversationID)
	var conv Conversation
	found, err = h.Store.Load(ctx, key, &conv)
	if err != nil || !found {
		return found, err
	}
	watermark := conv.BumpWatermark()
	from := "bot"
	conv.Activities = append(conv.Activities, Activity{
		ID:        "bot-" + strconv.FormatUint(watermark, 10),
		Type:      "message",
		Text:      &text,
		From:      &from,
		Timestamp: h.now().UnixMilli(),
		Watermark: watermark,
		Raw: map[string]any{
			"type": "message",
			"text": text,
			"from": map[string]any{"id": "bot", "name": "Bot"},
		},
	})
	return true, h.Store.Save(ctx, key, conv)
}

func contextFromQuery(req ingress.HTTPIn) Context {
	q := req.QueryValues()
	c := Context{
		Env:    q.Get("env"),
		Tenant: q.Get("tenant"),
		Team:   strings.TrimSpace(q.Get("team")),
	}
	if c.Env == "" {
		c.Env = "default"
	}
	if c.Tenant == "" {
		c.Tenant = "default"
	}
	return c
}

// ContextFromTenant maps a tenant context onto Direct Line tenancy.
func ContextFromTenant(t *core.TenantCtx) Context {
	c := Context{Env: "default", Tenant: "default"}
	if t == nil {
		return c
	}
	if t.Env != "" {
		c.Env = string(t.Env)
	}
	if t.Tenant != "" {
		c.Tenant = string(t.Tenant)
	}
	c.Team = strings.TrimSpace(t.Team)
	return c
}

func decodeBody(req ingress.HTTPIn) (map[string]any, *ingress.HTTPOut) {
	if strings.TrimSpace(req.BodyB64) == "" {
		return map[string]any{}, nil
	}
	raw, err := base64.StdEncoding.DecodeString(req.BodyB64)
	if err != nil {
		out := errorOut(http.StatusBadRequest, "bad_request", "invalid body encoding: "+err.Error())
		return nil, &out
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		out := errorOut(http.StatusBadRequest, "bad_request", "invalid json payload: "+err.Error())
		return nil, &out
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, nil
}

func validateAttachments(body map[string]any) *ingress.HTTPOut {
	attachments, ok := body["attachments"].([]any)
	if !ok {
		return nil
	}
	for _, a := range attachments {
		m, _ := a.(map[string]any)
		contentType, _ := m["contentType"].(string)
		if !allowedAttachmentTypes[contentType] {
			out := errorOut(http.StatusBadRequest, "bad_request", "unsupported content type: "+contentType)
			return &out
		}
		if content, ok := m["content"].(string); ok && len(content) > MaxAttachmentBytes {
			out := errorOut(http.StatusBadRequest, "bad_request", "attachment too large")
			return &out
		}
	}
	return nil
}

func activityValue(a Activity) map[string]any {
	v := make(map[string]any, len(a.Raw)+6)
	for k, val := range a.Raw {
		v[k] = val
	}
	v["id"] = a.ID
	v["type"] = a.Type
	v["timestamp"] = time.UnixMilli(a.Timestamp).UTC().Format(time.RFC3339Nano)
	v["watermark"] = strconv.FormatUint(a.Watermark, 10)
	if a.Text != nil {
		v["text"] = *a.Text
	}
	if a.From != nil {
		v["from"] = map[string]any{"id": *a.From}
	}
	return v
}

func bearer(req ingress.HTTPIn) (string, bool) {
	value, ok := req.Header("Authorization")
	if !ok {
		return "", false
	}
	scheme, token, _ := strings.Cut(strings.TrimSpace(value), " ")
	if !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func jsonHeaders() []capability.Header {
	return []capability.Header{
		{Name: "Content-Type", Value: "application/json"},
		{Name: "Access-Control-Allow-Origin", Value: "*"},
		{Name: "Access-Control-Allow-Headers", Value: "Authorization, Content-Type"},
		{Name: "Access-Control-Allow-Methods", Value: "GET, POST, OPTIONS"},
	}
}

func jsonOut(status int, v any) ingress.HTTPOut {
	body, err := json.Marshal(v)
	if err != nil {
		body = []byte("{}")
	}
	return ingress.HTTPOut{
		Status:  status,
		Headers: jsonHeaders(),
		BodyB64: base64.StdEncoding.EncodeToString(body),
	}
}

func errorOut(status int, code, message string) ingress.HTTPOut {
	return jsonOut(status, map[string]string{"error": code, "message": message})
}

func stateError(code string, err error) ingress.HTTPOut {
	return errorOut(http.StatusInternalServerError, code, err.Error())
}

func methodNotAllowed() ingress.HTTPOut {
	return errorOut(http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed on this endpoint")
}
