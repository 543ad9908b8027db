// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package render_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/render"
)

const sampleCard = `{
  "type": "AdaptiveCard",
  "version": "1.5",
  "body": [
    {"type": "TextBlock", "text": "Deploy finished", "weight": "Bolder"},
    {"type": "TextBlock", "text": "All **green**"},
    {"type": "FactSet", "facts": [{"title": "env", "value": "prod"}]},
    {"type": "Image", "url": "https://img/1.png"}
  ],
  "actions": [
    {"type": "Action.OpenUrl", "title": "Open", "url": "https://ci/1"},
    {"type": "Action.Submit", "title": "Ack"}
  ]
}`

var (
	fullCaps  = render.Capabilities{AdaptiveCards: true, Buttons: true, Images: true, Markdown: true}
	plainCaps = render.Capabilities{}
)

func envelope(text string, meta core.MessageMetadata) *core.ChannelMessageEnvelope {
	env := core.IngressEnvelope("m1", "C1", "C1", nil, nil, text, meta)
	return &env
}

func TestTierJSON(t *testing.T) {
	raw, err := json.Marshal(render.TierB)
	require.NoError(t, err)
	assert.JSONEq(t, `"tier_b"`, string(raw))

	var tier render.Tier
	require.NoError(t, json.Unmarshal([]byte(`"tier_c"`), &tier))
	assert.Equal(t, render.TierC, tier)
	assert.Error(t, json.Unmarshal([]byte(`"tier_z"`), &tier))
	assert.Equal(t, "TierA", render.TierA.Label())
	assert.Greater(t, int(render.TierA), int(render.TierD))
}

func TestItemJSON(t *testing.T) {
	plan := render.Plan{
		Tier:     render.TierA,
		Items:    []render.Item{render.TextItem("hi"), render.CardItem(map[string]any{"type": "AdaptiveCard"})},
		Warnings: []render.Warning{},
	}
	raw, err := json.Marshal(plan)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tier":"tier_a","items":[{"Text":"hi"},{"AdaptiveCard":{"type":"AdaptiveCard"}}],"warnings":[]}`, string(raw))

	var back render.Plan
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, plan, back)

	var item render.Item
	assert.Error(t, json.Unmarshal([]byte(`{"Text":"a","AdaptiveCard":{}}`), &item))
	assert.Error(t, json.Unmarshal([]byte(`{"Html":"a"}`), &item))
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want render.Mode
		ok   bool
	}{
		{in: "passthrough", want: render.Passthrough, ok: true},
		{in: " NOOP ", want: render.Passthrough, ok: true},
		{in: "DownSample", want: render.Downsample, ok: true},
		{in: "fancy", want: render.Passthrough, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := render.ParseMode(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestModeFromEnv(t *testing.T) {
	t.Setenv(render.ModeEnv, "downsample")
	assert.Equal(t, render.Downsample, render.ModeFromEnv())
	t.Setenv(render.ModeEnv, "bogus")
	assert.Equal(t, render.Passthrough, render.ModeFromEnv())
}

func TestExtractCard(t *testing.T) {
	var ac any
	require.NoError(t, json.Unmarshal([]byte(`{
	  "body": [
	    {"type": "TextBlock", "text": "  "},
	    {"type": "TextBlock", "text": "Heading", "style": "heading"},
	    {"type": "TextBlock", "text": "Second", "size": "Large"},
	    {"type": "RichTextBlock", "inlines": [{"text": "rich "}, "text"]},
	    {"type": "Container", "items": [{"type": "TextBlock", "text": "nested"}]},
	    {"type": "ColumnSet", "columns": [{"items": [{"type": "Image", "url": "https://a"}]}]},
	    {"type": "ImageSet", "images": [{"url": "https://b"}]},
	    {"type": "ActionSet", "actions": [{"type": "Action.OpenUrl", "title": "Go", "url": "https://go"}]},
	    {"type": "FactSet", "facts": [{"title": "", "value": ""}, {"title": "k", "value": "v"}]},
	    {"type": "Media"}
	  ],
	  "actions": [{"type": "Action.Submit", "title": ""}, {"type": "Action.Submit", "title": "Done", "url": "ignored"}]
	}`), &ac))

	card := render.ExtractCard(ac)
	assert.Equal(t, "Heading", card.Title)
	assert.Equal(t, "Second\nrich text\nnested\nk: v", card.Text)
	assert.Equal(t, []string{"https://a", "https://b"}, card.Images)
	assert.Equal(t, []render.Action{{Title: "Go", URL: "https://go"}, {Title: "Done"}}, card.Actions)

	assert.Equal(t, render.Card{}, render.ExtractCard("not a card"))
}

func TestPlanCardTiers(t *testing.T) {
	card := render.Card{Title: "T", Text: "Body", Actions: []render.Action{{Title: "Ack"}}, Images: []string{"https://i"}}
	ac := map[string]any{"type": "AdaptiveCard"}

	tests := []struct {
		name     string
		caps     render.Capabilities
		ac       any
		tier     render.Tier
		warnings []string
		hasCard  bool
	}{
		{name: "full", caps: fullCaps, ac: ac, tier: render.TierA, hasCard: true},
		{
			name:     "cards without buttons",
			caps:     render.Capabilities{AdaptiveCards: true, Images: true, Markdown: true},
			ac:       ac,
			tier:     render.TierB,
			warnings: []string{render.WarnUnsupportedElements},
			hasCard:  true,
		},
		{name: "markdown only", caps: render.Capabilities{Markdown: true, Buttons: true}, ac: ac, tier: render.TierC, warnings: []string{render.WarnCardDownsampled}},
		{name: "plain", caps: render.Capabilities{Buttons: true}, ac: ac, tier: render.TierD, warnings: []string{render.WarnCardDownsampled}},
		{name: "no card", caps: render.Capabilities{Buttons: true}, tier: render.TierD},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := render.PlanCard(card, tt.caps, tt.ac)
			assert.Equal(t, tt.tier, plan.Tier)
			var codes []string
			for _, w := range plan.Warnings {
				codes = append(codes, w.Code)
			}
			assert.Equal(t, tt.warnings, codes)
			assert.Equal(t, tt.hasCard, len(plan.Cards()) == 1)
			require.NotNil(t, plan.SummaryText)
			require.NotEmpty(t, plan.Items)
			require.NotNil(t, plan.Items[0].Text, "text comes first")
			assert.Equal(t, *plan.Items[0].Text, *plan.SummaryText)
		})
	}
}

func TestPlanCardSummaryIncludesActionsWithoutButtons(t *testing.T) {
	card := render.Card{Title: "T", Actions: []render.Action{{Title: "Open", URL: "https://x"}, {Title: "Ack"}}}
	plan := render.PlanCard(card, render.Capabilities{Markdown: true}, nil)
	assert.Equal(t, "T\n\n[Open](https://x) | Ack", *plan.SummaryText)
}

func TestSanitize(t *testing.T) {
	got, changed := render.Sanitize("<b>bold</b> text", render.Capabilities{Markdown: true})
	assert.Equal(t, "bold text", got)
	assert.True(t, changed)

	got, changed = render.Sanitize("**bold** and `code`", render.Capabilities{HTML: true})
	assert.Equal(t, "bold and code", got)
	assert.True(t, changed)

	got, changed = render.Sanitize("<b>x</b> **y**", render.Capabilities{HTML: true, Markdown: true})
	assert.Equal(t, "<b>x</b> **y**", got)
	assert.False(t, changed)
}

func TestTruncate(t *testing.T) {
	got, cut := render.TruncateChars("hello world", 6)
	assert.True(t, cut)
	assert.Equal(t, "hello…", got)

	got, cut = render.TruncateChars("héllo", 5)
	assert.False(t, cut)
	assert.Equal(t, "héllo", got)

	got, cut = render.TruncateChars("x", 0)
	assert.True(t, cut)
	assert.Empty(t, got)

	got, cut = render.TruncateBytes("hello world this is long", 10)
	assert.True(t, cut)
	assert.Equal(t, "hello wo…", got)
	assert.LessOrEqual(t, len(got), 13)

	got, cut = render.TruncateBytes("ééééé", 6)
	assert.True(t, cut)
	assert.Equal(t, "éé…", got)

	got, cut = render.TruncateBytes("hello", 3)
	assert.True(t, cut)
	assert.Empty(t, got)

	got, cut = render.TruncateBytes("hello", 100)
	assert.False(t, cut)
	assert.Equal(t, "hello", got)
}

func TestPlanCardTruncationWarnings(t *testing.T) {
	maxLen, maxBytes := 8, 6
	plan := render.PlanCard(render.Card{Text: "a fairly long message"}, render.Capabilities{MaxTextLen: &maxLen, MaxPayloadBytes: &maxBytes, Markdown: true}, nil)
	assert.True(t, plan.HasWarning(render.WarnTextTruncated))
	assert.True(t, plan.HasWarning(render.WarnPayloadTruncated))
}

func TestRenderDownsampleNonCardChannel(t *testing.T) {
	r := render.Renderer{Caps: plainCaps, Mode: render.Downsample}
	plan := r.Render(envelope("", core.MessageMetadata{core.MetadataAdaptiveCard: sampleCard}), render.Context{})

	assert.Contains(t, []render.Tier{render.TierC, render.TierD}, plan.Tier)
	assert.True(t, plan.HasWarning(render.WarnCardDownsampled))
	require.NotNil(t, plan.SummaryText)
	assert.Equal(t, "Deploy finished\n\nAll green\nenv: prod\n\n[Open](https://ci/1) | Ack", *plan.SummaryText)
	assert.Empty(t, plan.Cards())
	assert.True(t, plan.HasWarning(render.WarnTextSanitized))
}

func TestRenderDownsampleCardChannel(t *testing.T) {
	r := render.Renderer{Caps: fullCaps, Mode: render.Downsample}
	plan := r.Render(envelope(" see card ", core.MessageMetadata{core.MetadataAdaptiveCard: sampleCard}), render.Context{})

	assert.Equal(t, render.TierA, plan.Tier)
	require.Len(t, plan.Items, 2)
	assert.Equal(t, "see card", *plan.Items[0].Text)
	assert.Equal(t, "see card", *plan.SummaryText)

	var want any
	require.NoError(t, json.Unmarshal([]byte(sampleCard), &want))
	assert.Equal(t, want, plan.Items[1].AdaptiveCard)
}

func TestRenderPassthrough(t *testing.T) {
	target := "teams"
	r := render.Renderer{Caps: plainCaps, Mode: render.Passthrough}
	plan := r.Render(envelope("", core.MessageMetadata{core.MetadataAdaptiveCard: sampleCard}), render.Context{Target: &target})

	assert.Equal(t, render.TierD, plan.Tier)
	assert.Empty(t, plan.Warnings)
	require.Len(t, plan.Items, 1)
	assert.True(t, plan.Items[0].IsCard())
	assert.Equal(t, "Deploy finished", *plan.SummaryText)
	assert.Equal(t, map[string]any{"mode": "Passthrough", "target": &target}, plan.Debug)

	r.Caps = fullCaps
	plan = r.Render(envelope(" hi ", nil), render.Context{})
	assert.Equal(t, render.TierC, plan.Tier)
	assert.Equal(t, []render.Item{render.TextItem("hi")}, plan.Items)
}

func TestRenderInvalidCardFallsBackToText(t *testing.T) {
	for _, mode := range []render.Mode{render.Passthrough, render.Downsample} {
		t.Run(mode.String(), func(t *testing.T) {
			r := render.Renderer{Caps: fullCaps, Mode: mode}
			plan := r.Render(envelope("hello", core.MessageMetadata{core.MetadataAdaptiveCard: "{not json"}), render.Context{})

			assert.True(t, plan.HasWarning(render.WarnCardInvalid))
			assert.Empty(t, plan.Cards())
			assert.Equal(t, []render.Item{render.TextItem("hello")}, plan.Items)
		})
	}
}

func TestPlanForProvider(t *testing.T) {
	msg := *envelope("", core.MessageMetadata{core.MetadataAdaptiveCard: sampleCard})

	text := render.PlanForProvider(render.PlanInput{Message: msg, Metadata: map[string]any{"trace": "x"}},
		render.PlanConfig{Caps: render.Capabilities{Markdown: true}, DefaultSummary: "slack message"})
	assert.Equal(t, "TierC", text.Tier)
	assert.Empty(t, text.Attachments)
	assert.Contains(t, text.SummaryText, "Deploy finished")
	assert.Equal(t, render.WarnCardDownsampled, text.Warnings[0].Code)
	assert.Equal(t, map[string]any{"trace": "x"}, text.Debug)

	cards := render.PlanForProvider(render.PlanInput{Message: msg}, render.PlanConfig{Caps: fullCaps})
	assert.Equal(t, "TierA", cards.Tier)
	assert.Len(t, cards.Attachments, 1)

	empty := render.PlanForProvider(render.PlanInput{Message: *envelope("  ", nil)}, render.PlanConfig{DefaultSummary: "webex message"})
	assert.Equal(t, "webex message", empty.SummaryText)
	assert.Equal(t, "TierD", empty.Tier)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(cards.PlanJSON()), &decoded))
	assert.Equal(t, "TierA", decoded["tier"])
	assert.Equal(t, []any{}, decoded["actions"])
}

func TestEncodeText(t *testing.T) {
	env := envelope("fallback", core.MessageMetadata{core.MetadataAdaptiveCard: sampleCard})
	assert.Contains(t, render.EncodeText(env, render.Capabilities{Markdown: true}), "Deploy finished")
	assert.Equal(t, "fallback", render.EncodeText(env, fullCaps))
	assert.Equal(t, "fallback", render.EncodeText(envelope("fallback", core.MessageMetadata{core.MetadataAdaptiveCard: "{"}), plainCaps))
}
