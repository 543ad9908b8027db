// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package graph

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/greentic/messaging-providers/internal/provider"
)

// CodeSubscription marks subscription failures that are not upstream
// statuses.
const CodeSubscription = "SUBSCRIPTION"

// EnsureInput is the subscription_ensure input.
type EnsureInput struct {
	Provider               string   `json:"provider"`
	Resource               string   `json:"resource"`
	ChangeTypes            []string `json:"change_types"`
	NotificationURL        string   `json:"notification_url"`
	ExpirationMinutes      *int64   `json:"expiration_minutes,omitempty"`
	ExpirationTargetUnixMs *int64   `json:"expiration_target_unix_ms,omitempty"`
	ClientState            *string  `json:"client_state,omitempty"`
	Metadata               any      `json:"metadata,omitempty"`
	BindingID              *string  `json:"binding_id,omitempty"`
	User                   any      `json:"user,omitempty"`
}

// RenewInput is the subscription_renew input.
type RenewInput struct {
	Provider               string `json:"provider"`
	SubscriptionID         string `json:"subscription_id"`
	ExpirationMinutes      *int64 `json:"expiration_minutes,omitempty"`
	ExpirationTargetUnixMs *int64 `json:"expiration_target_unix_ms,omitempty"`
	Metadata               any    `json:"metadata,omitempty"`
	User                   any    `json:"user,omitempty"`
}

// DeleteInput is the subscription_delete input.
type DeleteInput struct {
	Provider       string `json:"provider"`
	SubscriptionID string `json:"subscription_id"`
	User           any    `json:"user,omitempty"`
}

// Subscription is the subscription record returned by every op.
type Subscription struct {
	V                int      `json:"v"`
	SubscriptionID   string   `json:"subscription_id"`
	ExpirationUnixMs *int64   `json:"expiration_unix_ms,omitempty"`
	Resource         string   `json:"resource,omitempty"`
	ChangeTypes      []string `json:"change_types,omitempty"`
	ClientState      *string  `json:"client_state,omitempty"`
	Metadata         any      `json:"metadata,omitempty"`
	BindingID        *string  `json:"binding_id,omitempty"`
	User             any      `json:"user,omitempty"`
}

// Result is the output of the subscription ops.
type Result struct {
	OK           bool         `json:"ok"`
	Subscription Subscription `json:"subscription"`
}

// Policy holds what differs between the providers that subscribe.
type Policy struct {
	// CheckProvider validates the provider field of the input.
	CheckProvider func(name string) error
	// DefaultChangeTypes is used when the input names none. When nil,
	// change_types is required.
	DefaultChangeTypes []string
	// DefaultExpiration is the lifetime used when the input gives no
	// target.
	DefaultExpiration time.Duration
	// MaxExpiration clamps requested expirations into [now, now+max].
	// Zero disables clamping.
	MaxExpiration time.Duration
	// ReuseOnConflict renews a matching existing subscription when Graph
	// answers 409 to the create.
	ReuseOnConflict bool
	// ClientStateFromBinding uses binding_id as clientState when the input
	// sets none.
	ClientStateFromBinding bool
	// RequireRenewTarget rejects renewals without
	// expiration_target_unix_ms.
	RequireRenewTarget bool
	// Now defaults to time.Now.
	Now func() time.Time
}

func (p Policy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p Policy) expiration(minutes, targetMs *int64) time.Time {
	now := p.now()
	var at time.Time
	switch {
	case targetMs != nil:
		at = time.UnixMilli(*targetMs)
	case minutes != nil:
		at = now.Add(time.Duration(*minutes) * time.Minute)
	default:
		at = now.Add(p.DefaultExpiration)
	}
	if p.MaxExpiration > 0 {
		if limit := now.Add(p.MaxExpiration); at.After(limit) {
			at = limit
		}
		if at.Before(now) {
			at = now
		}
	}
	return at.UTC().Truncate(time.Second)
}

// Connect resolves the provider config from the raw input and returns an
// authenticated client.
type Connect func(ctx context.Context, inv provider.Invocation, raw map[string]any) (Client, error)

// Subscriptions implements subscription_ensure, subscription_renew and
// subscription_delete against /subscriptions.
type Subscriptions struct {
	Policy  Policy
	Connect Connect
}

// Handlers returns the three ops keyed by name.
func (s Subscriptions) Handlers() map[string]provider.Handler {
	return map[string]provider.Handler{
		provider.OpSubscriptionEnsure: s.Ensure,
		provider.OpSubscriptionRenew:  s.Renew,
		provider.OpSubscriptionDelete: s.Delete,
	}
}

func (s Subscriptions) decode(inv provider.Invocation, kind string, dst any) (map[string]any, error) {
	raw, err := inv.Object()
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(inv.Input, dst); err != nil {
		return nil, provider.Invalid("invalid subscription %s input: %v", kind, err)
	}
	return raw, nil
}

func (s Subscriptions) checkProvider(name string) error {
	if s.Policy.CheckProvider == nil {
		return nil
	}
	return s.Policy.CheckProvider(name)
}

// Ensure creates a subscription. With ReuseOnConflict, a 409 reply makes
// it look up the subscription for the same resource, change types and
// notification URL and extend it instead.
func (s Subscriptions) Ensure(ctx context.Context, inv provider.Invocation) (any, error) {
	var in EnsureInput
	raw, err := s.decode(inv, "ensure", &in)
	if err != nil {
		return nil, err
	}
	if err := s.checkProvider(in.Provider); err != nil {
		return nil, err
	}
	changeTypes := in.ChangeTypes
	if len(changeTypes) == 0 {
		if s.Policy.DefaultChangeTypes == nil {
			return nil, provider.Invalid("change_types required")
		}
		changeTypes = s.Policy.DefaultChangeTypes
	}
	client, err := s.Connect(ctx, inv, raw)
	if err != nil {
		return nil, err
	}

	expiry := s.Policy.expiration(in.ExpirationMinutes, in.ExpirationTargetUnixMs)
	clientState := in.ClientState
	if clientState == nil && s.Policy.ClientStateFromBinding {
		clientState = in.BindingID
	}
	changeType := strings.Join(changeTypes, ",")
	body := map[string]any{
		"changeType":         changeType,
		"notificationUrl":    in.NotificationURL,
		"resource":           in.Resource,
		"expirationDateTime": formatTime(expiry),
	}
	if clientState != nil {
		body["clientState"] = *clientState
	}

	var id, expiresAt string
	created, err := client.Post(ctx, "/subscriptions", body)
	switch {
	case err == nil:
		id = provider.LookupString(created, "id")
		if id == "" {
			return nil, oops.Code(CodeSubscription).Errorf("subscription response missing id")
		}
		expiresAt = provider.LookupString(created, "expirationDateTime")
	case s.Policy.ReuseOnConflict && IsStatus(err, http.StatusConflict):
		existing, findErr := s.findExisting(ctx, client, in.Resource, changeType, in.NotificationURL)
		if findErr != nil {
			return nil, findErr
		}
		slog.InfoContext(ctx, "reusing existing graph subscription", "subscription_id", existing)
		if _, err := renew(ctx, client, existing, expiry); err != nil {
			return nil, err
		}
		id = existing
	default:
		return nil, err
	}

	return Result{OK: true, Subscription: Subscription{
		V:                1,
		SubscriptionID:   id,
		ExpirationUnixMs: expiresMs(expiresAt, expiry),
		Resource:         in.Resource,
		ChangeTypes:      changeTypes,
		ClientState:      clientState,
		Metadata:         in.Metadata,
		BindingID:        in.BindingID,
		User:             in.User,
	}}, nil
}

func (s Subscriptions) findExisting(ctx context.Context, client Client, resource, changeType, notificationURL string) (string, error) {
	list, err := client.Call(ctx, http.MethodGet, "/subscriptions", nil)
	if err != nil {
		return "", err
	}
	items, _ := list["value"].([]any)
	for _, item := range items {
		if provider.LookupString(item, "resource") == resource &&
			provider.LookupString(item, "changeType") == changeType &&
			provider.LookupString(item, "notificationUrl") == notificationURL {
			if id := provider.LookupString(item, "id"); id != "" {
				return id, nil
			}
		}
	}
	return "", oops.Code(CodeSubscription).Errorf("subscription conflict: existing subscription not found")
}

// Renew extends a subscription.
func (s Subscriptions) Renew(ctx context.Context, inv provider.Invocation) (any, error) {
	var in RenewInput
	raw, err := s.decode(inv, "renew", &in)
	if err != nil {
		return nil, err
	}
	if err := s.checkProvider(in.Provider); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.SubscriptionID) == "" {
		return nil, provider.Invalid("subscription_id required")
	}
	if s.Policy.RequireRenewTarget && in.ExpirationTargetUnixMs == nil {
		return nil, provider.Invalid("expiration_target_unix_ms required")
	}
	client, err := s.Connect(ctx, inv, raw)
	if err != nil {
		return nil, err
	}
	expiry := s.Policy.expiration(in.ExpirationMinutes, in.ExpirationTargetUnixMs)
	updated, err := renew(ctx, client, in.SubscriptionID, expiry)
	if err != nil {
		return nil, err
	}
	return Result{OK: true, Subscription: Subscription{
		V:                1,
		SubscriptionID:   in.SubscriptionID,
		ExpirationUnixMs: expiresMs(provider.LookupString(updated, "expirationDateTime"), expiry),
		Metadata:         in.Metadata,
		User:             in.User,
	}}, nil
}

// Delete removes a subscription.
func (s Subscriptions) Delete(ctx context.Context, inv provider.Invocation) (any, error) {
	var in DeleteInput
	raw, err := s.decode(inv, "delete", &in)
	if err != nil {
		return nil, err
	}
	if err := s.checkProvider(in.Provider); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.SubscriptionID) == "" {
		return nil, provider.Invalid("subscription_id required")
	}
	client, err := s.Connect(ctx, inv, raw)
	if err != nil {
		return nil, err
	}
	if _, err := client.Call(ctx, http.MethodDelete, subscriptionPath(in.SubscriptionID), nil); err != nil {
		return nil, err
	}
	return Result{OK: true, Subscription: Subscription{
		V:              1,
		SubscriptionID: in.SubscriptionID,
		User:           in.User,
	}}, nil
}

func renew(ctx context.Context, client Client, id string, expiry time.Time) (map[string]any, error) {
	return client.Call(ctx, http.MethodPatch, subscriptionPath(id),
		map[string]any{"expirationDateTime": formatTime(expiry)})
}

func subscriptionPath(id string) string {
	return "/subscriptions/" + url.PathEscape(id)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// expiresMs reads the expiration Graph reported, falling back to the one
// requested.
func expiresMs(reported string, requested time.Time) *int64 {
	ms := requested.UnixMilli()
	if t, err := time.Parse(time.RFC3339, reported); err == nil {
		ms = t.UnixMilli()
	}
	return &ms
}
