// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package webchat is the provider behind the embedded web chat client.
// Outbound messages are queued in the state store under their route, and
// the client talks to the Direct Line endpoints served from ingest_http.
package webchat

import (
	"context"
	"strings"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/config"
	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/provider"
	"github.com/greentic/messaging-providers/internal/qa"
	"github.com/greentic/messaging-providers/internal/render"
)

// Provider identity.
const (
	ID           = "messaging-provider-webchat"
	ProviderType = "messaging.webchat"
	Prefix       = "webchat"
)

// OpIngest normalizes a chat event posted outside of HTTP ingress.
const OpIngest = "ingest"

// Delivery modes.
const (
	ModeLocalQueue = "local_queue"
	ModeWebsocket  = "websocket"
	ModePubSub     = "pubsub"
)

// Config is the webchat provider config.
type Config struct {
	Enabled         bool    `json:"enabled"`
	PublicBaseURL   string  `json:"public_base_url"`
	Mode            string  `json:"mode"`
	Route           *string `json:"route,omitempty"`
	TenantChannelID *string `json:"tenant_channel_id,omitempty"`
	BaseURL         *string `json:"base_url,omitempty"`
}

// DefaultConfig returns the config every decode starts from.
func DefaultConfig() Config {
	return Config{Enabled: true, Mode: ModeLocalQueue}
}

func (c *Config) normalize() {
	c.PublicBaseURL = strings.TrimSpace(c.PublicBaseURL)
	c.Mode = strings.TrimSpace(c.Mode)
}

// validateSetup is the check applied to answers and to resolved send
// configs: the route may come from the input instead.
func (c Config) validateSetup() error {
	return config.First(
		config.AbsoluteURL("public_base_url", c.PublicBaseURL),
		config.OneOf("mode", c.Mode, ModeLocalQueue, ModeWebsocket, ModePubSub),
		config.OptionalURL("base_url", c.BaseURL),
	)
}

// Validate checks a config used to deliver messages.
func (c Config) Validate() error {
	if err := c.validateSetup(); err != nil {
		return err
	}
	if config.Or(c.Route, "") == "" && config.Or(c.TenantChannelID, "") == "" {
		return core.ErrInvalidConfig("route or tenant_channel_id required")
	}
	return nil
}

var resolver = config.Resolver[Config]{
	Fields:    []string{"enabled", "public_base_url", "mode", "route", "tenant_channel_id", "base_url"},
	Overrides: []string{"route", "tenant_channel_id", "mode"},
	Default:   DefaultConfig,
	Fallback: func(context.Context, capability.SecretStore) (Config, error) {
		return Config{}, core.ErrInvalidConfig("config required")
	},
	Validate: func(c *Config) error {
		c.normalize()
		return c.validateSetup()
	},
}

var applier = qa.Applier[Config]{
	Fields: []qa.Field{
		{Name: "enabled", Kind: qa.KindBool},
		{Name: "public_base_url"},
		{Name: "mode"},
		{Name: "route", Optional: true},
		{Name: "tenant_channel_id", Optional: true},
		{Name: "base_url", Optional: true},
	},
	Default:   DefaultConfig,
	Normalize: (*Config).normalize,
	Validate:  Config.validateSetup,
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

var caps = render.Capabilities{
	AdaptiveCards: true,
	Markdown:      true,
	HTML:          true,
	Images:        true,
	Buttons:       true,
}

// Definition is the webchat provider.
var Definition = &provider.Definition{
	ID:     ID,
	Type:   ProviderType,
	Prefix: Prefix,
	Name:   "Web Chat",
	Ops: []string{
		provider.OpRun, provider.OpSend, OpIngest, provider.OpIngestHTTP,
		provider.OpRenderPlan, provider.OpEncode, provider.OpSendPayload,
	},
	Config: provider.NewConfig(Prefix).
		Bool("enabled", true).
		URL("public_base_url", true).
		String("mode", true).
		String("route", false).
		String("tenant_channel_id", false).
		URL("base_url", false).
		Build(),
	Setup: []qa.Def{
		{Field: "enabled", LabelKey: "webchat.qa.setup.enabled", Required: true, Kind: qa.Bool()},
		{Field: "public_base_url", LabelKey: "webchat.qa.setup.public_base_url", Required: true},
		{Field: "mode", LabelKey: "webchat.qa.setup.mode", Required: true},
		{Field: "route", LabelKey: "webchat.qa.setup.route"},
		{Field: "tenant_channel_id", LabelKey: "webchat.qa.setup.tenant_channel_id"},
		{Field: "base_url", LabelKey: "webchat.qa.setup.base_url"},
	},
	DefaultKeys: []string{"public_base_url"},
	Messages: map[string]string{
		"webchat.schema.config.mode.description":              "Delivery mode (local_queue, websocket, pubsub)",
		"webchat.schema.config.route.description":             "Route the queued messages are stored under",
		"webchat.schema.config.tenant_channel_id.description": "Tenant channel used when no route is set",
		"webchat.qa.setup.public_base_url":                    "Public Base URL",
		"webchat.qa.setup.tenant_channel_id":                  "Tenant Channel ID",
		"webchat.qa.setup.base_url":                           "Base URL",
	},
	Capabilities:   []string{"messaging"},
	Apply:          applier.Apply,
	ValidateConfig: validateConfig,
	Handlers: map[string]provider.Handler{
		provider.OpSend:        handleSend,
		OpIngest:               handleIngest,
		provider.OpIngestHTTP:  ingestHTTP,
		provider.OpRenderPlan:  provider.RenderPlanHandler(render.PlanConfig{Caps: caps, DefaultSummary: "webchat message"}),
		provider.OpEncode:      encode,
		provider.OpSendPayload: sendPayload,
	},
}
