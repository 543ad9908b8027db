// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package core_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/pkg/errutil"
)

func TestParseIdentifiers(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "default", false},
		{"dashes and underscores", "team_a-1", false},
		{"empty", "", true},
		{"uppercase", "Prod", true},
		{"colon", "a:b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, envErr := core.ParseEnvID(tt.input)
			_, tenantErr := core.ParseTenantID(tt.input)
			if tt.wantErr {
				require.Error(t, envErr)
				require.Error(t, tenantErr)
				errutil.AssertErrorCode(t, envErr, core.CodeValidation)
				return
			}
			require.NoError(t, envErr)
			require.NoError(t, tenantErr)
		})
	}
}

func TestTenantCtx_WithTeamTrims(t *testing.T) {
	ctx := core.NewTenantCtx("dev", "acme").WithTeam("  ")
	assert.Empty(t, ctx.Team)

	ctx = ctx.WithTeam(" ops ")
	assert.Equal(t, "ops", ctx.Team)
	require.NoError(t, ctx.Validate())
}

func TestParseDestination(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		want   core.Destination
		wantOK bool
	}{
		{"string uses default kind", " C123 ", core.Destination{ID: "C123", Kind: "channel"}, true},
		{"blank string", "   ", core.Destination{}, false},
		{"object with kind", map[string]any{"id": "U1", "kind": " user "}, core.Destination{ID: "U1", Kind: "user"}, true},
		{"object without kind", map[string]any{"id": "C9"}, core.Destination{ID: "C9", Kind: "channel"}, true},
		{"object with blank id", map[string]any{"id": " "}, core.Destination{}, false},
		{"number", 12, core.Destination{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := core.ParseDestination(tt.input, "channel")
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnvelope_Validate(t *testing.T) {
	withText := core.SyntheticEnvelope("slack", core.Destination{ID: "C1"}, core.StringPtr("hi"))
	require.NoError(t, withText.Validate())

	blank := core.SyntheticEnvelope("slack", core.Destination{ID: "C1"}, core.StringPtr("  "))
	err := blank.Validate()
	require.Error(t, err)
	errutil.AssertErrorPrefix(t, err, "validation error:")

	blank.Metadata[core.MetadataAdaptiveCard] = `{"type":"AdaptiveCard","body":[]}`
	require.NoError(t, blank.Validate())

	blank.Metadata[core.MetadataAdaptiveCard] = `{not json`
	require.Error(t, blank.Validate())
}

func TestEnvelope_AdaptiveCard(t *testing.T) {
	env := core.ChannelMessageEnvelope{Metadata: core.MessageMetadata{}}
	_, ok, err := env.AdaptiveCard()
	assert.False(t, ok)
	assert.NoError(t, err)

	env.Metadata[core.MetadataAdaptiveCard] = `{"type":"AdaptiveCard"}`
	card, ok, err := env.AdaptiveCard()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"type": "AdaptiveCard"}, card)
}

func TestLooksLikeEnvelope(t *testing.T) {
	full := map[string]any{
		"id": "e1", "tenant": map[string]any{"env": "default", "tenant": "default"},
		"channel": "slack", "session_id": "s1",
	}
	assert.True(t, core.LooksLikeEnvelope(full))
	assert.False(t, core.LooksLikeEnvelope(map[string]any{"to": "C1", "text": "hi"}))

	full["tenant"] = "default"
	assert.False(t, core.LooksLikeEnvelope(full), "tenant must be an object")
}

func TestDecodeEnvelope_FillsCollections(t *testing.T) {
	env, err := core.DecodeEnvelope([]byte(`{"id":"e1","tenant":{"env":"default","tenant":"default"},"channel":"c","session_id":"s"}`))
	require.NoError(t, err)
	assert.NotNil(t, env.To)
	assert.NotNil(t, env.Attachments)
	assert.NotNil(t, env.Metadata)

	out, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"e1","tenant":{"env":"default","tenant":"default"},"channel":"c","session_id":"s","to":[],"attachments":[],"metadata":{}}`, string(out))
}

func TestSyntheticEnvelope(t *testing.T) {
	env := core.SyntheticEnvelope("slack", core.Destination{ID: "C1", Kind: "channel"}, core.StringPtr("hi"))
	assert.Equal(t, core.TenantID("manual"), env.Tenant.Tenant)
	assert.Equal(t, "C1", env.Channel)
	assert.Equal(t, "channel", env.Metadata["destination_kind"])
	assert.Contains(t, env.ID, "synthetic-slack-")
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
		msg  string
	}{
		{"validation", core.ErrValidation("invalid signature"), core.CodeValidation, "validation error: invalid signature"},
		{"transport", core.ErrTransport("timeout"), core.CodeTransport, "transport error: timeout"},
		{"missing secret", core.ErrMissingSecret("SLACK_BOT_TOKEN"), core.CodeMissingSecret, "missing secret: SLACK_BOT_TOKEN (scope: tenant)"},
		{"invalid config", core.ErrInvalidConfig("unknown field `x`"), core.CodeConfig, "invalid config: unknown field `x`"},
		{"config validation", core.ErrConfigValidation("mode"), core.CodeConfig, "config validation failed: mode"},
		{"other", core.ErrOther("boom"), core.CodeOther, "other error: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.msg, tt.err.Error())
			assert.Equal(t, tt.code, core.ErrorCode(tt.err))
		})
	}

	assert.Equal(t, "", core.ErrorCode(nil))
	assert.Equal(t, core.CodeOther, core.ErrorCode(assert.AnError))
}
