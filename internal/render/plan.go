// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package render plans how a message is delivered to a channel whose
// capabilities may not include Adaptive Cards, downgrading the card to text
// where needed.
package render

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Tier classifies how richly a channel can present a message. TierA is the
// richest.
type Tier int

// Render tiers.
const (
	TierD Tier = iota
	TierC
	TierB
	TierA
)

var tierNames = map[Tier]string{
	TierA: "tier_a",
	TierB: "tier_b",
	TierC: "tier_c",
	TierD: "tier_d",
}

// String returns the snake_case wire name, e.g. "tier_a".
func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// Label returns the CamelCase name used in provider render_plan output.
func (t Tier) Label() string {
	switch t {
	case TierA:
		return "TierA"
	case TierB:
		return "TierB"
	case TierC:
		return "TierC"
	default:
		return "TierD"
	}
}

// MarshalJSON encodes the tier as its wire name.
func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts the wire name.
func (t *Tier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for tier, name := range tierNames {
		if name == s {
			*t = tier
			return nil
		}
	}
	return fmt.Errorf("unknown render tier %q", s)
}

// Warning codes.
const (
	WarnCardDownsampled     = "adaptive_card_downsampled"
	WarnCardInvalid         = "adaptive_card_invalid"
	WarnUnsupportedElements = "unsupported_elements_removed"
	WarnTextSanitized       = "text_sanitized"
	WarnTextTruncated       = "text_truncated"
	WarnPayloadTruncated    = "payload_truncated"
)

// Warning records a lossy step taken while planning.
type Warning struct {
	Code    string  `json:"code"`
	Message *string `json:"message,omitempty"`
	Path    *string `json:"path,omitempty"`
}

func warn(code, message string) Warning {
	return Warning{Code: code, Message: &message}
}

// Item is one renderable element: either Text or an AdaptiveCard.
type Item struct {
	Text         *string
	AdaptiveCard any
}

// TextItem returns a text item.
func TextItem(s string) Item { return Item{Text: &s} }

// CardItem returns an Adaptive Card item.
func CardItem(card any) Item { return Item{AdaptiveCard: card} }

// IsCard reports whether i carries an Adaptive Card.
func (i Item) IsCard() bool { return i.Text == nil && i.AdaptiveCard != nil }

// MarshalJSON encodes the item externally tagged: {"Text":"…"} or
// {"AdaptiveCard":{…}}.
func (i Item) MarshalJSON() ([]byte, error) {
	if i.Text != nil {
		return json.Marshal(map[string]string{"Text": *i.Text})
	}
	return json.Marshal(map[string]any{"AdaptiveCard": i.AdaptiveCard})
}

// UnmarshalJSON decodes the externally tagged form.
func (i *Item) UnmarshalJSON(data []byte) error {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	if len(tagged) != 1 {
		return errors.New("render item must have exactly one tag")
	}
	if raw, ok := tagged["Text"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*i = TextItem(s)
		return nil
	}
	if raw, ok := tagged["AdaptiveCard"]; ok {
		var card any
		if err := json.Unmarshal(raw, &card); err != nil {
			return err
		}
		*i = CardItem(card)
		return nil
	}
	return errors.New("unknown render item tag")
}

// Plan is the outcome of rendering one message for one channel. Text items
// precede card items.
type Plan struct {
	Tier        Tier      `json:"tier"`
	SummaryText *string   `json:"summary_text,omitempty"`
	Items       []Item    `json:"items"`
	Warnings    []Warning `json:"warnings"`
	Debug       any       `json:"debug,omitempty"`
}

// NewPlan returns an empty TierD plan.
func NewPlan() Plan {
	return Plan{Tier: TierD, Items: []Item{}, Warnings: []Warning{}}
}

// HasWarning reports whether the plan carries a warning with code.
func (p Plan) HasWarning(code string) bool {
	for _, w := range p.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// Cards returns the Adaptive Card items in order.
func (p Plan) Cards() []any {
	var cards []any
	for _, item := range p.Items {
		if item.IsCard() {
			cards = append(cards, item.AdaptiveCard)
		}
	}
	return cards
}

func (p *Plan) firstText() *string {
	for _, item := range p.Items {
		if item.Text != nil {
			s := *item.Text
			return &s
		}
	}
	return nil
}
