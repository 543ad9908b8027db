// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package webex sends messages as a Webex bot and normalizes Webex webhook
// notifications, fetching the full message for messages:created events.
package webex

import (
	"strings"

	"github.com/greentic/messaging-providers/internal/config"
	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/provider"
	"github.com/greentic/messaging-providers/internal/qa"
	"github.com/greentic/messaging-providers/internal/render"
)

// Provider identity.
const (
	ID           = "messaging-provider-webex"
	ProviderType = "messaging.webex.bot"
	Prefix       = "webex"
)

// Defaults and secret keys.
const (
	DefaultAPIBase = "https://webexapis.com/v1"
	TokenKey       = "WEBEX_BOT_TOKEN"
)

// Config is the Webex provider config.
type Config struct {
	Enabled              bool    `json:"enabled"`
	PublicBaseURL        string  `json:"public_base_url"`
	DefaultRoomID        *string `json:"default_room_id,omitempty"`
	DefaultToPersonEmail *string `json:"default_to_person_email,omitempty"`
	APIBaseURL           string  `json:"api_base_url"`
	BotToken             *string `json:"bot_token,omitempty"`
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

// Validate checks a stored config.
func (c Config) Validate() error {
	return config.First(
		config.AbsoluteURL("public_base_url", c.PublicBaseURL),
		config.AbsoluteURL("api_base_url", c.APIBaseURL),
	)
}

// DefaultDestination is the configured room, else the configured person
// email.
func (c Config) DefaultDestination() *core.Destination {
	if room := optional(c.DefaultRoomID); room != "" {
		return &core.Destination{ID: room, Kind: kindRoom}
	}
	if email := optional(c.DefaultToPersonEmail); email != "" {
		return &core.Destination{ID: email, Kind: kindEmail}
	}
	return nil
}

func optional(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

var resolver = config.Resolver[Config]{
	Fields: []string{
		"enabled", "public_base_url", "default_room_id", "default_to_person_email",
		"api_base_url", "bot_token",
	},
	Overrides: []string{"api_base_url", "public_base_url", "default_to_person_email"},
	Default:   DefaultConfig,
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
		{Name: "default_room_id", Optional: true},
		{Name: "default_to_person_email", Optional: true},
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

var caps = render.Capabilities{AdaptiveCards: true, Markdown: true, HTML: true, Images: true}

// Definition is the Webex provider.
var Definition = &provider.Definition{
	ID:     ID,
	Type:   ProviderType,
	Prefix: Prefix,
	Name:   "Webex",
	Ops: []string{
		provider.OpRun, provider.OpSend, provider.OpReply, provider.OpIngestHTTP,
		provider.OpRenderPlan, provider.OpEncode, provider.OpSendPayload,
	},
	Config: provider.NewConfig(Prefix).
		Bool("enabled", true).
		URL("public_base_url", true).
		String("default_room_id", false).
		String("default_to_person_email", false).
		URL("api_base_url", true).
		Secret("bot_token", false).
		Build(),
	Setup: []qa.Def{
		{Field: "enabled", LabelKey: "webex.qa.setup.enabled", Required: true, Kind: qa.Bool()},
		{Field: "public_base_url", LabelKey: "webex.qa.setup.public_base_url", Required: true},
		{Field: "default_room_id", LabelKey: "webex.qa.setup.default_room_id"},
		{Field: "default_to_person_email", LabelKey: "webex.qa.setup.default_to_person_email"},
		{Field: "api_base_url", LabelKey: "webex.qa.setup.api_base_url", Required: true},
		{Field: "bot_token", LabelKey: "webex.qa.setup.bot_token"},
	},
	DefaultKeys: []string{"public_base_url"},
	Messages: map[string]string{
		"webex.op.reply.description":                              "Reply in a Webex thread",
		"webex.schema.config.default_room_id.title":               "Default room ID",
		"webex.schema.config.default_room_id.description":         "Room used when destination is omitted",
		"webex.schema.config.default_to_person_email.title":       "Default person email",
		"webex.schema.config.default_to_person_email.description": "Email used when destination is omitted",
		"webex.schema.config.api_base_url.title":                  "API base URL",
		"webex.schema.config.api_base_url.description":            "Webex API base URL",
		"webex.schema.config.bot_token.description":               "Bot token for Webex API calls",
		"webex.qa.setup.public_base_url":                          "Public base URL",
		"webex.qa.setup.default_room_id":                          "Default room ID",
		"webex.qa.setup.default_to_person_email":                  "Default person email",
		"webex.qa.setup.api_base_url":                             "API base URL",
		"webex.qa.setup.bot_token":                                "Bot token",
	},
	Capabilities:   []string{"messaging"},
	Apply:          applier.Apply,
	ValidateConfig: validateConfig,
	Handlers: map[string]provider.Handler{
		provider.OpSend:        handleSend,
		provider.OpReply:       handleSend,
		provider.OpIngestHTTP:  ingestHTTP,
		provider.OpRenderPlan:  provider.RenderPlanHandler(render.PlanConfig{Caps: caps, DefaultSummary: "webex message"}),
		provider.OpEncode:      encode,
		provider.OpSendPayload: sendPayload,
	},
}
