// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package telegram sends messages through the Telegram Bot API. Adaptive
// Cards are flattened into Telegram HTML with inline keyboards and photos.
package telegram

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
	ID           = "messaging-provider-telegram"
	ProviderType = "messaging.telegram.bot"
	Prefix       = "telegram"
)

// Defaults and secret keys.
const (
	DefaultAPIBase = "https://api.telegram.org"
	BotTokenKey    = "TELEGRAM_BOT_TOKEN"
)

// Config is the Telegram provider config.
type Config struct {
	Enabled       bool    `json:"enabled"`
	PublicBaseURL string  `json:"public_base_url"`
	DefaultChatID *string `json:"default_chat_id,omitempty"`
	APIBaseURL    string  `json:"api_base_url"`
	BotToken      *string `json:"bot_token,omitempty"`
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

// Validate checks a stored config. The bot token may live in the secret
// store instead.
func (c Config) Validate() error {
	return config.First(
		config.AbsoluteURL("public_base_url", c.PublicBaseURL),
		config.AbsoluteURL("api_base_url", c.APIBaseURL),
	)
}

var resolver = config.Resolver[Config]{
	Fields:    []string{"enabled", "public_base_url", "default_chat_id", "api_base_url", "bot_token"},
	Overrides: []string{"default_chat_id", "api_base_url", "enabled"},
	Default:   DefaultConfig,
	Fallback: func(context.Context, capability.SecretStore) (Config, error) {
		return DefaultConfig(), nil
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
		{Name: "default_chat_id", Optional: true},
		{Name: "api_base_url"},
		{Name: "bot_token", Optional: true},
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

// MaxTextLen is the sendMessage text limit.
const MaxTextLen = 4096

var maxTextLen = MaxTextLen

var caps = render.Capabilities{
	Markdown:   true,
	HTML:       true,
	Images:     true,
	MaxTextLen: &maxTextLen,
}

// Definition is the Telegram provider.
var Definition = &provider.Definition{
	ID:     ID,
	Type:   ProviderType,
	Prefix: Prefix,
	Name:   "Telegram",
	Ops: []string{
		provider.OpRun, provider.OpSend, provider.OpReply, provider.OpIngestHTTP,
		provider.OpRenderPlan, provider.OpEncode, provider.OpSendPayload,
	},
	Config: provider.NewConfig(Prefix).
		Bool("enabled", true).
		URL("public_base_url", true).
		String("default_chat_id", false).
		URL("api_base_url", true).
		Secret("bot_token", false).
		Build(),
	Setup: []qa.Def{
		{Field: "enabled", LabelKey: "telegram.qa.setup.enabled", Required: true, Kind: qa.Bool()},
		{Field: "public_base_url", LabelKey: "telegram.qa.setup.public_base_url", Required: true},
		{Field: "default_chat_id", LabelKey: "telegram.qa.setup.default_chat_id"},
		{Field: "api_base_url", LabelKey: "telegram.qa.setup.api_base_url", Required: true},
		{Field: "bot_token", LabelKey: "telegram.qa.setup.bot_token"},
	},
	DefaultKeys: []string{"public_base_url"},
	Messages: map[string]string{
		"telegram.schema.config.public_base_url.description": "Public URL for webhook callbacks",
		"telegram.schema.config.default_chat_id.description": "Chat ID used when destination is omitted",
		"telegram.schema.config.api_base_url.title":          "API base URL",
		"telegram.schema.config.api_base_url.description":    "Telegram Bot API base URL",
		"telegram.schema.config.bot_token.description":       "Bot token for Telegram API calls",
		"telegram.qa.setup.public_base_url":                  "Public base URL",
		"telegram.qa.setup.default_chat_id":                  "Default chat ID",
		"telegram.qa.setup.api_base_url":                     "API base URL",
		"telegram.qa.setup.bot_token":                        "Bot token",
	},
	Capabilities:   []string{"messaging"},
	Apply:          applier.Apply,
	ValidateConfig: validateConfig,
	Handlers: map[string]provider.Handler{
		provider.OpSend:        handleSend,
		provider.OpReply:       handleSend,
		provider.OpIngestHTTP:  ingestHTTP,
		provider.OpRenderPlan:  provider.RenderPlanHandler(render.PlanConfig{Caps: caps, DefaultSummary: "telegram message"}),
		provider.OpEncode:      encode,
		provider.OpSendPayload: sendPayload,
	},
}
