// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package render

import (
	"encoding/json"
	"log/slog"
	"os"
	"strings"

	"github.com/greentic/messaging-providers/internal/core"
)

// ModeEnv selects the renderer mode.
const ModeEnv = "GREENTIC_MESSAGING_RENDERER_MODE"

// Mode switches between passing cards through and downsampling them.
type Mode int

// Renderer modes.
const (
	Passthrough Mode = iota
	Downsample
)

func (m Mode) String() string {
	if m == Downsample {
		return "Downsample"
	}
	return "Passthrough"
}

// ParseMode reads a case-insensitive mode name. "noop" is an alias for
// passthrough.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "passthrough", "noop":
		return Passthrough, true
	case "downsample":
		return Downsample, true
	default:
		return Passthrough, false
	}
}

// ModeFromEnv reads ModeEnv; unset or unrecognized values yield
// Passthrough.
func ModeFromEnv() Mode {
	raw, set := os.LookupEnv(ModeEnv)
	if !set {
		return Passthrough
	}
	mode, ok := ParseMode(raw)
	if !ok {
		slog.Warn("unrecognized renderer mode, using passthrough", "value", raw)
	}
	return mode
}

// Context describes the render target.
type Context struct {
	Target *string `json:"target"`
}

// Renderer plans envelopes for a channel.
type Renderer struct {
	Caps Capabilities
	Mode Mode
}

// NewRenderer returns a renderer for caps using the mode from the
// environment.
func NewRenderer(caps Capabilities) Renderer {
	return Renderer{Caps: caps, Mode: ModeFromEnv()}
}

// Render plans env. A metadata adaptive_card that is not valid JSON is
// dropped with an adaptive_card_invalid warning and the text is rendered
// alone.
func (r Renderer) Render(env *core.ChannelMessageEnvelope, rc Context) Plan {
	card, invalid := parseCard(env)
	var plan Plan
	if r.Mode == Passthrough {
		plan = r.passthrough(env, card)
	} else {
		plan = r.downsample(env, card)
	}
	if invalid != nil {
		plan.Warnings = append(plan.Warnings, *invalid)
	}
	plan.Debug = map[string]any{"mode": r.Mode.String(), "target": rc.Target}
	return plan
}

// passthrough keeps the text and card unchanged but still classifies the
// tier.
func (r Renderer) passthrough(env *core.ChannelMessageEnvelope, card any) Plan {
	plan := NewPlan()
	plan.Tier = selectTier(r.Caps, card != nil)
	if text := env.TrimmedText(); text != "" {
		plan.Items = append(plan.Items, TextItem(text))
	}
	if card != nil {
		plan.Items = append(plan.Items, CardItem(card))
	}
	plan.SummaryText = summaryFor(env, card)
	return plan
}

func (r Renderer) downsample(env *core.ChannelMessageEnvelope, card any) Plan {
	text := env.TrimmedText()
	if card == nil {
		return PlanCard(Card{Text: text}, r.Caps, nil)
	}
	plan := PlanCard(ExtractCard(card), r.Caps, card)
	if text != "" {
		plan.SummaryText = &text
		if r.Caps.AdaptiveCards && len(plan.Items) > 0 && plan.Items[0].Text != nil {
			plan.Items[0] = TextItem(text)
		}
	}
	return plan
}

// summaryFor returns the trimmed text, else the first text block of card.
func summaryFor(env *core.ChannelMessageEnvelope, card any) *string {
	if text := env.TrimmedText(); text != "" {
		return &text
	}
	if card == nil {
		return nil
	}
	c := ExtractCard(card)
	first := c.Title
	if first == "" && c.Text != "" {
		first, _, _ = strings.Cut(c.Text, "\n")
	}
	if first == "" {
		return nil
	}
	return &first
}

func parseCard(env *core.ChannelMessageEnvelope) (any, *Warning) {
	card, present, err := env.AdaptiveCard()
	if !present {
		return nil, nil
	}
	if err != nil {
		w := invalidCard(err)
		return nil, &w
	}
	return card, nil
}

func invalidCard(err error) Warning {
	path := "metadata.adaptive_card"
	w := warn(WarnCardInvalid, "Adaptive Card is not valid JSON: "+err.Error())
	w.Path = &path
	return w
}

// Summary returns the downsampled text of a serialized Adaptive Card, or
// false when the card does not parse or yields no text.
func Summary(raw string, caps Capabilities) (string, bool) {
	var card any
	if err := json.Unmarshal([]byte(raw), &card); err != nil {
		return "", false
	}
	plan := PlanCard(ExtractCard(card), caps, card)
	if plan.SummaryText == nil || strings.TrimSpace(*plan.SummaryText) == "" {
		return "", false
	}
	return *plan.SummaryText, true
}
