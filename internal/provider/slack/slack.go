// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package slack sends messages through the Slack Web API and normalizes
// Events API webhooks.
package slack

import (
	"context"
	"strings"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/config"
	"github.com/greentic/messaging-providers/internal/provider"
	"github.com/greentic/messaging-providers/internal/qa"
	"github.com/greentic/messaging-providers/internal/render"
)

// Provider identity.
const (
	ID           = "messaging-provider-slack"
	ProviderType = "messaging.slack.api"
	Prefix       = "slack"
)

// Defaults and secret keys.
const (
	DefaultAPIBase   = "https://slack.com/api"
	BotTokenKey      = "SLACK_BOT_TOKEN"
	SigningSecretKey = "SLACK_SIGNING_SECRET"
)

// Config is the Slack provider config.
type Config struct {
	Enabled        bool    `json:"enabled"`
	DefaultChannel *string `json:"default_channel,omitempty"`
	PublicBaseURL  string  `json:"public_base_url"`
	APIBaseURL     string  `json:"api_base_url"`
	BotToken       string  `json:"bot_token"`
}

// DefaultConfig returns the config every decode starts from.
func DefaultConfig() Config {
	return Config{Enabled: true, APIBaseURL: DefaultAPIBase}
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		c.APIBaseURL = DefaultAPIBase
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
}

// Validate checks a stored config: both URLs absolute and a bot token.
func (c Config) Validate() error {
	return config.First(
		config.AbsoluteURL("public_base_url", c.PublicBaseURL),
		config.NonEmpty("bot_token", c.BotToken),
		config.AbsoluteURL("api_base_url", c.APIBaseURL),
	)
}

var fields = []string{"enabled", "default_channel", "public_base_url", "api_base_url", "bot_token"}

var resolver = config.Resolver[Config]{
	Fields:    fields,
	Overrides: []string{"default_channel", "api_base_url", "enabled"},
	Default:   DefaultConfig,
	Fallback: func(ctx context.Context, secrets capability.SecretStore) (Config, error) {
		token, err := capability.SecretString(ctx, secrets, BotTokenKey)
		if err != nil {
			return Config{}, err
		}
		cfg := DefaultConfig()
		cfg.BotToken = token
		return cfg, nil
	},
	Validate: func(c *Config) error {
		c.normalize()
		return config.First(
			config.OptionalURL("public_base_url", &c.PublicBaseURL),
			config.AbsoluteURL("api_base_url", c.APIBaseURL),
		)
	},
}

var applier = qa.Applier[Config]{
	Fields: []qa.Field{
		{Name: "enabled", Kind: qa.KindBool},
		{Name: "public_base_url"},
		{Name: "api_base_url"},
		{Name: "bot_token"},
		{Name: "default_channel", Optional: true},
	},
	Default:   DefaultConfig,
	Normalize: (*Config).normalize,
	Validate:  Config.Validate,
}

func validateConfig(raw []byte) (any, error) {
	cfg, err := config.ParseStrictDefault(raw, DefaultConfig)
	if err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var caps = render.Capabilities{Markdown: true}

// Definition is the Slack provider.
var Definition = &provider.Definition{
	ID:     ID,
	Type:   ProviderType,
	Prefix: Prefix,
	Name:   "Slack",
	Ops: []string{
		provider.OpRun, provider.OpSend, provider.OpReply, provider.OpIngestHTTP,
		provider.OpRenderPlan, provider.OpEncode, provider.OpSendPayload,
	},
	Config: provider.NewConfig(Prefix).
		Bool("enabled", true).
		String("default_channel", false).
		URL("public_base_url", true).
		URL("api_base_url", true).
		Secret("bot_token", true).
		Build(),
	Setup: []qa.Def{
		{Field: "enabled", LabelKey: "slack.qa.setup.enabled", Required: true, Kind: qa.Bool()},
		{Field: "public_base_url", LabelKey: "slack.qa.setup.public_base_url", Required: true},
		{Field: "api_base_url", LabelKey: "slack.qa.setup.api_base_url", Required: true},
		{Field: "bot_token", LabelKey: "slack.qa.setup.bot_token", Required: true},
		{Field: "default_channel", LabelKey: "slack.qa.setup.default_channel"},
	},
	DefaultKeys: []string{"public_base_url", "bot_token"},
	Messages: map[string]string{
		"slack.op.reply.description":                "Reply in a Slack thread",
		"slack.qa.setup.public_base_url":            "Public base URL",
		"slack.qa.setup.api_base_url":               "API base URL",
		"slack.qa.setup.bot_token":                  "Bot token",
		"slack.qa.setup.default_channel":            "Default channel",
		"slack.schema.config.bot_token.description": "Slack bot token for API calls",
	},
	Capabilities:   []string{"messaging"},
	Apply:          applier.Apply,
	ValidateConfig: validateConfig,
	Handlers: map[string]provider.Handler{
		provider.OpSend:        handleSend,
		provider.OpReply:       handleSend,
		provider.OpIngestHTTP:  ingestHTTP,
		provider.OpRenderPlan:  provider.RenderPlanHandler(render.PlanConfig{Caps: caps, DefaultSummary: "slack message"}),
		provider.OpEncode:      encode,
		provider.OpSendPayload: sendPayload,
	},
}
