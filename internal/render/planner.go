// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package render

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Capabilities describe what a channel can present.
type Capabilities struct {
	AdaptiveCards   bool `json:"supports_adaptive_cards"`
	Markdown        bool `json:"supports_markdown"`
	HTML            bool `json:"supports_html"`
	Images          bool `json:"supports_images"`
	Buttons         bool `json:"supports_buttons"`
	MaxTextLen      *int `json:"max_text_len,omitempty"`
	MaxPayloadBytes *int `json:"max_payload_bytes,omitempty"`
}

// Action is a card button.
type Action struct {
	Title string
	URL   string
}

// Card is the text-level content extracted from an Adaptive Card.
type Card struct {
	Title   string
	Text    string
	Actions []Action
	Images  []string
}

const ellipsis = "…"

// PlanCard plans card for a channel with caps. ac is the original Adaptive
// Card JSON, or nil when the message carries none.
func PlanCard(card Card, caps Capabilities, ac any) Plan {
	plan := NewPlan()
	plan.Tier = selectTier(caps, ac != nil)

	if text, ok := summarize(card, caps, &plan.Warnings); ok {
		plan.Items = append(plan.Items, TextItem(text))
	}
	switch plan.Tier {
	case TierA, TierB:
		plan.Items = append(plan.Items, CardItem(ac))
		if plan.Tier == TierB && hasUnsupportedElements(card, caps) {
			plan.Warnings = append(plan.Warnings, warn(WarnUnsupportedElements, "Some card elements were removed for this channel"))
		}
	default:
		if ac != nil {
			plan.Warnings = append(plan.Warnings, warn(WarnCardDownsampled, "Adaptive Card was converted to text for this channel"))
		}
	}
	plan.SummaryText = plan.firstText()
	return plan
}

func selectTier(caps Capabilities, hasCard bool) Tier {
	switch {
	case hasCard && caps.AdaptiveCards && caps.Buttons && caps.Images:
		return TierA
	case hasCard && caps.AdaptiveCards:
		return TierB
	case caps.Markdown || caps.HTML:
		return TierC
	default:
		return TierD
	}
}

func hasUnsupportedElements(card Card, caps Capabilities) bool {
	return (len(card.Actions) > 0 && !caps.Buttons) || (len(card.Images) > 0 && !caps.Images)
}

// summarize joins the title, text and (for channels without buttons) the
// action labels, then sanitizes and truncates for caps.
func summarize(card Card, caps Capabilities, warnings *[]Warning) (string, bool) {
	var parts []string
	if t := strings.TrimSpace(card.Title); t != "" {
		parts = append(parts, t)
	}
	if t := strings.TrimSpace(card.Text); t != "" {
		parts = append(parts, t)
	}
	if !caps.Buttons && len(card.Actions) > 0 {
		labels := make([]string, 0, len(card.Actions))
		for _, a := range card.Actions {
			if a.URL != "" {
				labels = append(labels, fmt.Sprintf("[%s](%s)", a.Title, a.URL))
			} else {
				labels = append(labels, a.Title)
			}
		}
		parts = append(parts, strings.Join(labels, " | "))
	}
	if len(parts) == 0 {
		return "", false
	}

	text := strings.Join(parts, "\n\n")
	if sanitized, changed := Sanitize(text, caps); changed {
		text = sanitized
		*warnings = append(*warnings, warn(WarnTextSanitized, "Text was sanitized for this channel"))
	}
	if caps.MaxTextLen != nil {
		var cut bool
		if text, cut = TruncateChars(text, *caps.MaxTextLen); cut {
			*warnings = append(*warnings, warn(WarnTextTruncated, fmt.Sprintf("Text truncated to %d chars", *caps.MaxTextLen)))
		}
	}
	if caps.MaxPayloadBytes != nil {
		var cut bool
		if text, cut = TruncateBytes(text, *caps.MaxPayloadBytes); cut {
			*warnings = append(*warnings, warn(WarnPayloadTruncated, fmt.Sprintf("Payload truncated to %d bytes", *caps.MaxPayloadBytes)))
		}
	}
	return text, true
}

var markdownMarkers = strings.NewReplacer("**", "", "__", "", "~~", "", "`", "")

// Sanitize strips HTML tags when the channel lacks HTML and markdown
// emphasis markers when it lacks markdown.
func Sanitize(text string, caps Capabilities) (string, bool) {
	out := text
	if !caps.HTML {
		out = stripTags(out)
	}
	if !caps.Markdown {
		out = markdownMarkers.Replace(out)
	}
	return out, out != text
}

func stripTags(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inTag := false
	for _, r := range text {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TruncateChars limits text to maxChars runes, the last being an ellipsis.
func TruncateChars(text string, maxChars int) (string, bool) {
	if maxChars <= 0 {
		return "", text != ""
	}
	if utf8.RuneCountInString(text) <= maxChars {
		return text, false
	}
	runes := []rune(text)
	return string(runes[:maxChars-1]) + ellipsis, true
}

// TruncateBytes limits text to roughly maxBytes, cutting on a rune
// boundary and appending an ellipsis. Budgets under four bytes yield "".
func TruncateBytes(text string, maxBytes int) (string, bool) {
	if len(text) <= maxBytes {
		return text, false
	}
	if maxBytes < 4 {
		return "", true
	}
	boundary := maxBytes - 3
	end := 0
	for i, r := range text {
		if i > boundary {
			break
		}
		end = i + utf8.RuneLen(r)
	}
	return text[:end] + ellipsis, true
}
