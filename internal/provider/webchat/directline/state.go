// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package directline

import (
	"context"
	"encoding/json"
	"errors"
	"math"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/keys"
)

// Namespace is the provider segment of Direct Line state keys.
const Namespace = "webchat"

// RateLimit is the token issuance window persisted per
// (env, tenant, team, user).
type RateLimit struct {
	WindowStart int64  `json:"window_start"`
	Count       uint32 `json:"count"`
}

// NewRateLimit opens a window at now.
func NewRateLimit(now int64) RateLimit {
	return RateLimit{WindowStart: now}
}

// Bump counts one request at now (unix seconds). A window older than
// windowSeconds restarts; ok is false once limit requests were counted.
func (r *RateLimit) Bump(now, windowSeconds int64, limit uint32) (count uint32, ok bool) {
	if now-r.WindowStart >= windowSeconds {
		r.WindowStart = now
		r.Count = 0
	}
	if r.Count >= limit {
		return r.Count, false
	}
	if r.Count < math.MaxUint32 {
		r.Count++
	}
	return r.Count, true
}

// Activity is one stored conversation activity.
type Activity struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Text      *string        `json:"text,omitempty"`
	From      *string        `json:"from,omitempty"`
	Timestamp int64          `json:"timestamp"`
	Watermark uint64         `json:"watermark"`
	Raw       map[string]any `json:"raw"`
}

// Conversation is the persisted state of one conversation.
type Conversation struct {
	Ctx           Context    `json:"ctx"`
	NextWatermark uint64     `json:"next_watermark"`
	Activities    []Activity `json:"activities"`
}

// NewConversation returns an empty conversation owned by ctx.
func NewConversation(ctx Context) Conversation {
	return Conversation{Ctx: ctx, Activities: []Activity{}}
}

// BumpWatermark advances the watermark and returns the value assigned to
// the next activity.
func (c *Conversation) BumpWatermark() uint64 {
	c.NextWatermark++
	return c.NextWatermark
}

// Since returns the activities after watermark; a nil watermark selects
// all of them.
func (c Conversation) Since(watermark *uint64) []Activity {
	out := make([]Activity, 0, len(c.Activities))
	for _, a := range c.Activities {
		if watermark == nil || a.Watermark > *watermark {
			out = append(out, a)
		}
	}
	return out
}

func scope(c Context) keys.Scope {
	return keys.NewScope(Namespace, c.Tenant, c.Team)
}

// ConversationKey is the state key of conversation id.
func ConversationKey(c Context, id string) string {
	return scope(c).State("directline:" + c.Env + ":conversations:" + id)
}

// RateLimitKey is the state key of user's token issuance window.
func RateLimitKey(c Context, user string) string {
	return scope(c).State("directline:" + c.Env + ":rate:tokens:" + user)
}

// Store reads and writes Direct Line records as JSON through the state
// capability.
type Store struct {
	State  capability.StateStore
	Tenant *core.TenantCtx
}

// Load decodes the value at key into v. found is false for a missing or
// empty value.
func (s Store) Load(ctx context.Context, key string, v any) (found bool, err error) {
	raw, err := s.State.Read(ctx, key, s.Tenant)
	if errors.Is(err, capability.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, err
	}
	return true, nil
}

// Save encodes v at key.
func (s Store) Save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.State.Write(ctx, key, raw, s.Tenant)
}
