// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package config_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/config"
	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/pkg/errutil"
)

type testConfig struct {
	Enabled       bool    `json:"enabled"`
	PublicBaseURL string  `json:"public_base_url"`
	APIBaseURL    *string `json:"api_base_url,omitempty"`
	BotToken      *string `json:"bot_token,omitempty"`
	Port          int     `json:"port,omitempty"`
}

func testResolver() config.Resolver[testConfig] {
	return config.Resolver[testConfig]{
		Fields:    []string{"enabled", "public_base_url", "api_base_url", "bot_token", "port"},
		Overrides: []string{"api_base_url", "enabled", "port"},
		Fallback: func(ctx context.Context, secrets capability.SecretStore) (testConfig, error) {
			token, err := capability.SecretString(ctx, secrets, "DEMO_BOT_TOKEN")
			if err != nil {
				return testConfig{}, err
			}
			return testConfig{Enabled: true, PublicBaseURL: "https://invalid.local", BotToken: &token}, nil
		},
		Validate: func(c *testConfig) error {
			return config.First(
				config.AbsoluteURL("public_base_url", c.PublicBaseURL),
				config.OptionalURL("api_base_url", c.APIBaseURL),
			)
		},
	}
}

func TestResolveFromConfigObject(t *testing.T) {
	cfg, source, err := testResolver().ResolveSource(context.Background(), map[string]any{
		"config": map[string]any{"enabled": true, "public_base_url": "https://example.com"},
		"text":   "ignored",
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, config.SourceConfig, source)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "https://example.com", cfg.PublicBaseURL)
}

func TestResolveRejectsUnknownField(t *testing.T) {
	_, err := testResolver().Resolve(context.Background(), map[string]any{
		"config": map[string]any{"public_base_url": "https://example.com", "extra": 1},
	}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field")
	errutil.AssertErrorPrefix(t, err, "invalid config: ")
}

func TestResolveRejectsNonObjectConfig(t *testing.T) {
	_, err := testResolver().Resolve(context.Background(), map[string]any{"config": "x"}, nil, nil)
	require.Error(t, err)
	assert.Equal(t, "invalid config: config must be an object", err.Error())
}

func TestResolveFromTopLevelFields(t *testing.T) {
	cfg, source, err := testResolver().ResolveSource(context.Background(), map[string]any{
		"public_base_url": "https://example.com",
		"bot_token":       "tok",
		"to":              "C1",
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, config.SourceTopLevel, source)
	require.NotNil(t, cfg.BotToken)
	assert.Equal(t, "tok", *cfg.BotToken)
}

func TestResolveFallsBackToSecrets(t *testing.T) {
	secrets := capability.MapSecrets{"demo_bot_token": []byte("from-secret")}
	cfg, source, err := testResolver().ResolveSource(context.Background(), map[string]any{"text": "hi"}, nil, secrets)
	require.NoError(t, err)
	assert.Equal(t, config.SourceSecrets, source)
	assert.Equal(t, "from-secret", *cfg.BotToken)

	_, err = testResolver().Resolve(context.Background(), map[string]any{}, nil, capability.MapSecrets{})
	require.Error(t, err)
	assert.Equal(t, "missing secret: DEMO_BOT_TOKEN (scope: tenant)", err.Error())
}

func TestResolveWithoutFallback(t *testing.T) {
	r := testResolver()
	r.Fallback = nil
	_, err := r.Resolve(context.Background(), map[string]any{}, nil, nil)
	require.Error(t, err)
	errutil.AssertErrorPrefix(t, err, "invalid config: expected `config`")
}

func TestResolveMetadataOverrides(t *testing.T) {
	meta := core.MessageMetadata{
		"config.api_base_url":    "https://override.example.com",
		"config.enabled":         "false",
		"config.port":            "8443",
		"config.public_base_url": "https://not-allowed.example.com",
	}
	cfg, err := testResolver().Resolve(context.Background(), map[string]any{
		"config": map[string]any{"enabled": true, "public_base_url": "https://example.com"},
	}, meta, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://override.example.com", *cfg.APIBaseURL)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 8443, cfg.Port)
	assert.Equal(t, "https://example.com", cfg.PublicBaseURL)
}

func TestResolveBadOverride(t *testing.T) {
	_, err := testResolver().Resolve(context.Background(), map[string]any{
		"config": map[string]any{"public_base_url": "https://example.com"},
	}, core.MessageMetadata{"config.port": "eighty"}, nil)
	require.Error(t, err)
	assert.Equal(t, "invalid config: metadata override config.port: eighty", err.Error())
}

func TestResolveValidates(t *testing.T) {
	_, err := testResolver().Resolve(context.Background(), map[string]any{
		"public_base_url": "example.com",
	}, nil, nil)
	require.Error(t, err)
	assert.Equal(t, "invalid config: public_base_url must be an absolute URL", err.Error())
	errutil.AssertErrorContext(t, err, "field", "public_base_url")
}

func TestRules(t *testing.T) {
	s := func(v string) *string { return &v }
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "empty", err: config.NonEmpty("host", "  "), want: "invalid config: host cannot be empty"},
		{name: "url empty", err: config.AbsoluteURL("u", ""), want: "invalid config: u cannot be empty"},
		{name: "url scheme", err: config.AbsoluteURL("u", "ftp://x"), want: "invalid config: u must be an absolute URL"},
		{name: "url ok", err: config.AbsoluteURL("u", "http://x")},
		{name: "optional url unset", err: config.OptionalURL("u", nil)},
		{name: "optional url bad", err: config.OptionalURL("u", s("x")), want: "invalid config: u must be an absolute URL"},
		{name: "one of", err: config.OneOf("mode", "x", "a", "b"), want: "invalid config: mode must be one of a, b"},
		{name: "one of ok", err: config.OneOf("mode", "b", "a", "b")},
		{name: "range", err: config.InRange("port", 0, 1, 65535), want: "invalid config: port must be between 1 and 65535"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.want == "" {
				assert.NoError(t, tt.err)
				return
			}
			require.Error(t, tt.err)
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestSecretOr(t *testing.T) {
	ctx := context.Background()
	secrets := capability.MapSecrets{"TOKEN": []byte("secret")}
	v := " inline "

	got, err := config.SecretOr(ctx, secrets, &v, "TOKEN")
	require.NoError(t, err)
	assert.Equal(t, "inline", got)

	got, err = config.SecretOr(ctx, secrets, nil, "token")
	require.NoError(t, err)
	assert.Equal(t, "secret", got)

	_, err = config.SecretOr(ctx, capability.MapSecrets{}, nil, "TOKEN")
	errutil.AssertErrorCode(t, err, core.CodeMissingSecret)

	_, found, err := config.LookupOr(ctx, capability.MapSecrets{}, nil, "TOKEN")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "fallback", config.Or(nil, "fallback"))
	assert.Nil(t, config.Optional("  "))
}

func TestResolveSeedsDefaults(t *testing.T) {
	r := testResolver()
	r.Default = func() testConfig { return testConfig{Enabled: true, Port: 587} }

	cfg, err := r.Resolve(context.Background(), map[string]any{
		"config": map[string]any{"public_base_url": "https://example.com"},
	}, nil, nil)
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 587, cfg.Port)

	cfg, err = r.Resolve(context.Background(), map[string]any{
		"config": map[string]any{"public_base_url": "https://example.com", "enabled": false},
	}, nil, nil)
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
}

func TestParseStrictDefault(t *testing.T) {
	def := func() testConfig { return testConfig{Enabled: true, Port: 25} }

	cfg, err := config.ParseStrictDefault([]byte(`{"public_base_url":"https://example.com","port":2525}`), def)
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 2525, cfg.Port)

	_, err = config.ParseStrictDefault([]byte(`{"unknown":1}`), def)
	require.Error(t, err)
	assert.Equal(t, core.CodeConfig, core.ErrorCode(err))
}
