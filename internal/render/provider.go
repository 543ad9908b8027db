// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package render

import (
	"encoding/json"
	"strings"

	"github.com/greentic/messaging-providers/internal/core"
)

// PlanInput is the render_plan operation input.
type PlanInput struct {
	Message  core.ChannelMessageEnvelope `json:"message"`
	Metadata any                         `json:"metadata,omitempty"`
}

// ProviderPlan is the plan shape returned by provider render_plan
// operations.
type ProviderPlan struct {
	Tier        string    `json:"tier"`
	SummaryText string    `json:"summary_text"`
	Actions     []any     `json:"actions"`
	Attachments []any     `json:"attachments"`
	Warnings    []Warning `json:"warnings"`
	Debug       any       `json:"debug"`
}

// PlanConfig parameterizes PlanForProvider.
type PlanConfig struct {
	Caps Capabilities
	// DefaultSummary is used when the message has neither text nor a card
	// summary, e.g. "slack message".
	DefaultSummary string
}

// PlanForProvider plans in for a provider. The card is always offered to
// the planner so text-only channels report the downgrade; it is attached
// only on tiers A and B.
func PlanForProvider(in PlanInput, cfg PlanConfig) ProviderPlan {
	env := &in.Message
	text := env.TrimmedText()

	var plan Plan
	card, invalid := parseCard(env)
	if card != nil {
		plan = PlanCard(ExtractCard(card), cfg.Caps, card)
	} else {
		plan = PlanCard(Card{Text: text}, cfg.Caps, nil)
	}
	if invalid != nil {
		plan.Warnings = append(plan.Warnings, *invalid)
	}

	summary := cfg.DefaultSummary
	switch {
	case plan.SummaryText != nil:
		summary = *plan.SummaryText
	case text != "":
		summary = text
	}
	attachments := make([]any, 0, 1)
	for _, c := range plan.Cards() {
		attachments = append(attachments, c)
	}
	return ProviderPlan{
		Tier:        plan.Tier.Label(),
		SummaryText: summary,
		Actions:     []any{},
		Attachments: attachments,
		Warnings:    plan.Warnings,
		Debug:       in.Metadata,
	}
}

// PlanJSON serializes p for the {ok, plan:{plan_json}} result.
func (p ProviderPlan) PlanJSON() string {
	raw, err := json.Marshal(p)
	if err != nil {
		return `{"tier":"` + p.Tier + `"}`
	}
	return string(raw)
}

// EncodeText returns the text an encode operation should send for env:
// the card summary on channels without Adaptive Cards, else the message
// text.
func EncodeText(env *core.ChannelMessageEnvelope, caps Capabilities) string {
	if !caps.AdaptiveCards {
		if raw, ok := env.Metadata[core.MetadataAdaptiveCard]; ok && strings.TrimSpace(raw) != "" {
			if s, ok := Summary(raw, caps); ok {
				return s
			}
		}
	}
	if env.Text == nil {
		return ""
	}
	return *env.Text
}
