// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greentic/messaging-providers/internal/qa"
)

func float(v float64) *float64 { return &v }

func str(v string) *string { return &v }

var testSpec = qa.QuestionsSpec{
	ID:    "messaging-provider-telegram",
	Title: "Telegram",
	Questions: []qa.QuestionItem{
		{Name: "public_base_url", Title: "Public URL", Kind: qa.SetupKindString, Required: true,
			Validate: &qa.ValidateRules{Regex: str(`^https://`)}},
		{Name: "enabled", Title: "Enabled", Kind: qa.SetupKindBool, Default: true},
		{Name: "port", Title: "Port", Kind: qa.SetupKindNumber, Validate: &qa.ValidateRules{Min: float(1), Max: float(65535)}},
		{Name: "mode", Title: "Mode", Kind: qa.SetupKindChoice, Choices: []any{"polling", "webhook"}},
		{Name: "bot_token", Title: "Bot token", Kind: qa.SetupKindString, Secret: true},
	},
}

func ask(t *testing.T, input string) (map[string]any, string, error) {
	t.Helper()
	out := new(bytes.Buffer)
	a := newAsker(strings.NewReader(input), out)
	answers, err := a.Ask(testSpec)
	return answers, out.String(), err
}

func TestAsk(t *testing.T) {
	answers, out, err := ask(t, "https://example.com\n\n8443\nwebhook\n123:abc\n")
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"public_base_url": "https://example.com",
		"enabled":         true,
		"port":            int64(8443),
		"mode":            "webhook",
		"bot_token":       "123:abc",
	}, answers)
	assert.Contains(t, out, "Telegram (messaging-provider-telegram)")
	assert.Contains(t, out, "Public URL *: ")
	assert.Contains(t, out, "Mode (polling/webhook): ")
}

func TestAsk_ReasksInvalidAndMissing(t *testing.T) {
	input := strings.Join([]string{
		"",                    // required, asked again
		"http://insecure",     // fails regex
		"https://example.com", // ok
		"no",                  // enabled=false
		"eighty",              // not an integer
		"70000",               // above max
		"80",                  // ok
		"sms",                 // not a choice
		"",                    // optional choice left blank
		"",                    // optional secret left blank
	}, "\n") + "\n"

	answers, out, err := ask(t, input)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com", answers["public_base_url"])
	assert.Equal(t, false, answers["enabled"])
	assert.Equal(t, int64(80), answers["port"])
	assert.Equal(t, "", answers["mode"])
	assert.Equal(t, "", answers["bot_token"])
	assert.Equal(t, 4, strings.Count(out, "Invalid value for"), out)
}

func TestAsk_InputClosed(t *testing.T) {
	_, _, err := ask(t, "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "public_base_url")
}

func TestParseAnswer(t *testing.T) {
	tests := []struct {
		raw     string
		kind    string
		want    any
		wantErr bool
	}{
		{"yes", "bool", true, false},
		{"Y", "boolean", true, false},
		{"1", "bool", true, false},
		{"nope", "bool", false, false},
		{"42", "number", int64(42), false},
		{"-7", "integer", int64(-7), false},
		{"4.2", "number", nil, true},
		{"hello", "string", "hello", false},
		{"hello", "choice", "hello", false},
	}
	for _, tt := range tests {
		t.Run(tt.kind+"/"+tt.raw, func(t *testing.T) {
			got, err := parseAnswer(tt.raw, tt.kind)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrompt(t *testing.T) {
	assert.Equal(t, "Token * [from BotFather]: ",
		prompt(qa.QuestionItem{Title: "Token", Required: true, Help: "from BotFather"}))
	assert.Equal(t, "Enabled: ", prompt(qa.QuestionItem{Title: "Enabled"}))
}
