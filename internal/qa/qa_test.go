// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package qa_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greentic/messaging-providers/internal/codec"
	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/qa"
	"github.com/greentic/messaging-providers/pkg/errutil"
)

var testDefs = []qa.Def{
	{Field: "enabled", LabelKey: "demo.qa.setup.enabled", Required: true, Kind: qa.Bool()},
	{Field: "public_base_url", LabelKey: "demo.qa.setup.public_base_url", Required: true},
	{Field: "default_channel", LabelKey: "demo.qa.setup.default_channel"},
	{Field: "bot_token", LabelKey: "demo.qa.setup.bot_token"},
}

func questionIDs(spec qa.Spec) []string {
	ids := make([]string, 0, len(spec.Questions))
	for _, q := range spec.Questions {
		ids = append(ids, q.ID)
	}
	return ids
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    qa.Mode
		wantErr bool
	}{
		{in: "", want: qa.ModeSetup},
		{in: "default", want: qa.ModeDefault},
		{in: " Upgrade ", want: qa.ModeUpgrade},
		{in: "remove", want: qa.ModeRemove},
		{in: "wipe", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := qa.ParseMode(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "validation error: unsupported qa mode")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSpecForMode(t *testing.T) {
	t.Run("default asks only the default keys, all required", func(t *testing.T) {
		spec := qa.SpecForMode(qa.ModeDefault, "demo", testDefs, []string{"public_base_url"})
		assert.Equal(t, "demo.qa.default.title", spec.Title.Key)
		assert.Equal(t, []string{"public_base_url"}, questionIDs(spec))
		assert.True(t, spec.Questions[0].Required)
	})

	t.Run("setup asks everything with declared requiredness", func(t *testing.T) {
		spec := qa.SpecForMode(qa.ModeSetup, "demo", testDefs, nil)
		assert.Equal(t, []string{"enabled", "public_base_url", "default_channel", "bot_token"}, questionIDs(spec))
		assert.True(t, spec.Questions[1].Required)
		assert.False(t, spec.Questions[2].Required)
		assert.Equal(t, qa.KindBool, spec.Questions[0].Kind.Type)
		assert.Equal(t, qa.KindText, spec.Questions[1].Kind.Type)
	})

	t.Run("upgrade makes everything optional", func(t *testing.T) {
		spec := qa.SpecForMode(qa.ModeUpgrade, "demo", testDefs, nil)
		require.Len(t, spec.Questions, len(testDefs))
		for _, q := range spec.Questions {
			assert.False(t, q.Required, q.ID)
		}
	})

	t.Run("remove has no questions", func(t *testing.T) {
		spec := qa.SpecForMode(qa.ModeRemove, "demo", testDefs, nil)
		assert.Empty(t, spec.Questions)
		assert.Equal(t, "demo.qa.remove.title", spec.Title.Key)
	})
}

func TestSpecJSONShape(t *testing.T) {
	spec := qa.SpecForMode(qa.ModeDefault, "demo", testDefs, []string{"public_base_url"})
	raw, err := json.Marshal(spec)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"mode": "default",
		"title": {"key": "demo.qa.default.title"},
		"description": null,
		"questions": [{
			"id": "public_base_url",
			"label": {"key": "demo.qa.setup.public_base_url"},
			"kind": {"type": "text"},
			"required": true
		}],
		"defaults": {}
	}`, string(raw))
}

func TestSpecValidate(t *testing.T) {
	one := 1.0
	zero := 0.0
	tests := []struct {
		name     string
		question qa.Question
		code     string
	}{
		{name: "bad regex", question: qa.Question{ID: "a", Kind: qa.Kind{Type: qa.KindText, Regex: "("}}, code: qa.CodeInvalidRegex},
		{name: "empty choice", question: qa.Question{ID: "a", Kind: qa.Choice()}, code: qa.CodeInvalidSpec},
		{name: "inverted bounds", question: qa.Question{ID: "a", Kind: qa.Number(&one, &zero)}, code: qa.CodeInvalidSpec},
		{name: "unknown kind", question: qa.Question{ID: "a", Kind: qa.Kind{Type: "date"}}, code: qa.CodeInvalidSpec},
		{name: "empty id", question: qa.Question{Kind: qa.Text()}, code: qa.CodeInvalidSpec},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := qa.Spec{Questions: []qa.Question{tt.question}}.Validate()
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}

	t.Run("valid", func(t *testing.T) {
		spec := qa.SpecForMode(qa.ModeSetup, "demo", testDefs, nil)
		require.NoError(t, spec.Validate())
	})

	t.Run("duplicate id", func(t *testing.T) {
		err := qa.Spec{Questions: []qa.Question{{ID: "a", Kind: qa.Text()}, {ID: "a", Kind: qa.Text()}}}.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate question a")
	})
}

func TestValidateAnswers(t *testing.T) {
	lo, hi := 1.0, 10.0
	spec := qa.Spec{Questions: []qa.Question{
		{ID: "name", Kind: qa.Kind{Type: qa.KindText, Regex: "^[a-z]+$"}, Required: true},
		{ID: "enabled", Kind: qa.Bool()},
		{ID: "port", Kind: qa.Number(&lo, &hi)},
		{ID: "mode", Kind: qa.Choice(qa.ChoiceOption{Value: "a"}, qa.ChoiceOption{Value: "b"})},
	}}

	tests := []struct {
		name    string
		answers map[string]any
		want    []qa.Issue
	}{
		{
			name:    "valid",
			answers: map[string]any{"name": "abc", "enabled": true, "port": 5.0, "mode": "b"},
			want:    []qa.Issue{},
		},
		{
			name:    "missing required",
			answers: map[string]any{},
			want:    []qa.Issue{{Path: "name", Code: qa.IssueRequired, Message: "required"}},
		},
		{
			name:    "blank required",
			answers: map[string]any{"name": "  "},
			want:    []qa.Issue{{Path: "name", Code: qa.IssueRequired, Message: "required"}},
		},
		{
			name:    "null optional is skipped",
			answers: map[string]any{"name": "abc", "enabled": nil},
			want:    []qa.Issue{},
		},
		{
			name:    "type mismatches",
			answers: map[string]any{"name": 1, "enabled": "yes", "port": "2", "mode": 3},
			want: []qa.Issue{
				{Path: "name", Code: qa.IssueType, Message: "expected string"},
				{Path: "enabled", Code: qa.IssueType, Message: "expected bool"},
				{Path: "port", Code: qa.IssueType, Message: "expected number"},
				{Path: "mode", Code: qa.IssueType, Message: "expected string"},
			},
		},
		{
			name:    "regex bounds and choice",
			answers: map[string]any{"name": "ABC", "port": json.Number("11"), "mode": "c"},
			want: []qa.Issue{
				{Path: "name", Code: qa.IssueRegex, Message: "does not match ^[a-z]+$"},
				{Path: "port", Code: qa.IssueMax, Message: "above maximum"},
				{Path: "mode", Code: qa.IssueChoice, Message: "not an allowed choice"},
			},
		},
		{
			name:    "below minimum",
			answers: map[string]any{"name": "abc", "port": 0},
			want:    []qa.Issue{{Path: "port", Code: qa.IssueMin, Message: "below minimum"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, qa.ValidateAnswers(spec, tt.answers))
		})
	}
}

func TestExampleAnswers(t *testing.T) {
	lo := 3.0
	spec := qa.Spec{Questions: []qa.Question{
		{ID: "s", Kind: qa.Text()},
		{ID: "d", Kind: qa.Text(), Default: json.RawMessage(`"x"`)},
		{ID: "b", Kind: qa.Bool()},
		{ID: "n", Kind: qa.Number(&lo, nil)},
		{ID: "c", Kind: qa.Choice(qa.ChoiceOption{Value: "first"}, qa.ChoiceOption{Value: "second"})},
	}}
	assert.Equal(t, map[string]any{"s": "", "d": "x", "b": false, "n": 3.0, "c": "first"}, qa.ExampleAnswers(spec))
}

type demoConfig struct {
	Enabled        bool    `json:"enabled"`
	PublicBaseURL  string  `json:"public_base_url"`
	DefaultChannel *string `json:"default_channel,omitempty"`
	BotToken       string  `json:"bot_token"`
	APIBaseURL     string  `json:"api_base_url"`
}

var demoApplier = qa.Applier[demoConfig]{
	Fields: []qa.Field{
		{Name: "enabled", Kind: qa.KindBool},
		{Name: "public_base_url"},
		{Name: "default_channel", Optional: true},
		{Name: "bot_token"},
		{Name: "api_base_url"},
	},
	Default: func() demoConfig { return demoConfig{Enabled: true, APIBaseURL: "https://api.example.com"} },
	Normalize: func(c *demoConfig) {
		if strings.TrimSpace(c.APIBaseURL) == "" {
			c.APIBaseURL = "https://api.example.com"
		}
	},
	Validate: func(c demoConfig) error {
		if !strings.HasPrefix(c.PublicBaseURL, "http://") && !strings.HasPrefix(c.PublicBaseURL, "https://") {
			return errors.New("invalid config: public_base_url must be an absolute URL")
		}
		return nil
	},
}

func applyJSON(t *testing.T, mode qa.Mode, answers string) map[string]any {
	t.Helper()
	tree, err := codec.DecodeJSON([]byte(answers))
	require.NoError(t, err)
	payload, err := codec.Canonical(tree)
	require.NoError(t, err)
	out, err := codec.ToJSON(demoApplier.Apply(mode, payload))
	require.NoError(t, err)
	var result map[string]any
	require.NoError(t, json.Unmarshal(out, &result))
	return result
}

func TestApplierSetup(t *testing.T) {
	result := applyJSON(t, qa.ModeSetup, `{"public_base_url":" https://example.com ","bot_token":"tok","api_base_url":""}`)
	assert.Equal(t, true, result["ok"])
	assert.Nil(t, result["error"])
	assert.Equal(t, map[string]any{
		"enabled":         true,
		"public_base_url": "https://example.com",
		"bot_token":       "tok",
		"api_base_url":    "https://api.example.com",
	}, result["config"])
}

func TestApplierUpgradeKeepsUnspecifiedFields(t *testing.T) {
	result := applyJSON(t, qa.ModeUpgrade, `{
		"existing_config": {
			"enabled": true,
			"default_channel": "C1",
			"public_base_url": "https://example.com",
			"api_base_url": "https://api.example.com",
			"bot_token": "token-a"
		},
		"default_channel": "C2"
	}`)
	require.Equal(t, true, result["ok"])
	cfg := result["config"].(map[string]any)
	assert.Equal(t, "https://example.com", cfg["public_base_url"])
	assert.Equal(t, "token-a", cfg["bot_token"])
	assert.Equal(t, "C2", cfg["default_channel"])
}

func TestApplierUpgradeClearsOptionalField(t *testing.T) {
	result := applyJSON(t, qa.ModeUpgrade, `{
		"config": {"public_base_url": "https://example.com", "default_channel": "C1", "bot_token": "t"},
		"default_channel": ""
	}`)
	require.Equal(t, true, result["ok"])
	cfg := result["config"].(map[string]any)
	assert.NotContains(t, cfg, "default_channel")
	assert.Equal(t, "t", cfg["bot_token"])
}

func TestApplierValidationFailure(t *testing.T) {
	result := applyJSON(t, qa.ModeSetup, `{"public_base_url":"ftp://example.com"}`)
	assert.Equal(t, false, result["ok"])
	assert.Nil(t, result["config"])
	assert.Equal(t, "invalid config: public_base_url must be an absolute URL", result["error"])
}

func TestApplierRemove(t *testing.T) {
	result := applyJSON(t, qa.ModeRemove, `{}`)
	assert.Equal(t, map[string]any{
		"ok":     true,
		"config": nil,
		"remove": map[string]any{
			"remove_all": true,
			"cleanup": []any{
				"delete_config_key",
				"delete_provenance_key",
				"delete_provider_state_namespace",
				"best_effort_revoke_webhooks",
				"best_effort_revoke_tokens",
				"best_effort_delete_provider_owned_secrets",
			},
		},
		"diagnostics": []any{},
		"error":       nil,
	}, result)
}

func TestApplierRejectsBadCBOR(t *testing.T) {
	out, err := codec.ToJSON(demoApplier.Apply(qa.ModeSetup, []byte{0xff}))
	require.NoError(t, err)
	var result map[string]any
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Equal(t, false, result["ok"])
	assert.True(t, strings.HasPrefix(result["error"].(string), "invalid answers cbor"))
}

func TestSpecKeys(t *testing.T) {
	help := core.I18n("demo.qa.channel.help")
	spec := qa.Spec{
		Title: core.I18n("demo.qa.setup.title"),
		Questions: []qa.Question{{
			ID:    "channel",
			Label: core.I18n("demo.qa.channel"),
			Help:  &help,
			Kind: qa.Choice(
				qa.ChoiceOption{Value: "a", Label: core.I18n("demo.qa.channel.a")},
				qa.ChoiceOption{Value: "b", Label: core.I18n("demo.qa.channel.b")},
			),
		}},
	}

	assert.Equal(t, []string{
		"demo.qa.setup.title",
		"demo.qa.channel",
		"demo.qa.channel.help",
		"demo.qa.channel.a",
		"demo.qa.channel.b",
	}, spec.Keys())
}
