// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package whatsapp sends messages through the WhatsApp Cloud API and
// normalizes its webhooks, including the Meta subscription handshake.
package whatsapp

import (
	"strings"

	"github.com/greentic/messaging-providers/internal/config"
	"github.com/greentic/messaging-providers/internal/provider"
	"github.com/greentic/messaging-providers/internal/qa"
	"github.com/greentic/messaging-providers/internal/render"
)

// Provider identity.
const (
	ID           = "messaging-provider-whatsapp"
	ProviderType = "messaging.whatsapp.cloud"
	Prefix       = "whatsapp"
)

// Defaults and secret keys.
const (
	DefaultAPIBase    = "https://graph.facebook.com"
	DefaultAPIVersion = "v19.0"
	TokenKey          = "WHATSAPP_TOKEN"
)

// Config is the WhatsApp provider config.
type Config struct {
	Enabled           bool    `json:"enabled"`
	PhoneNumberID     string  `json:"phone_number_id"`
	PublicBaseURL     string  `json:"public_base_url"`
	BusinessAccountID *string `json:"business_account_id,omitempty"`
	APIBaseURL        string  `json:"api_base_url"`
	APIVersion        string  `json:"api_version"`
	Token             *string `json:"token,omitempty"`
}

// DefaultConfig returns the config every decode starts from.
func DefaultConfig() Config {
	return Config{Enabled: true, APIBaseURL: DefaultAPIBase, APIVersion: DefaultAPIVersion}
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		c.APIBaseURL = DefaultAPIBase
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	if strings.TrimSpace(c.APIVersion) == "" {
		c.APIVersion = DefaultAPIVersion
	}
	c.PhoneNumberID = strings.TrimSpace(c.PhoneNumberID)
}

// MessagesURL is the Cloud API endpoint for the configured phone number.
func (c Config) MessagesURL() string {
	return c.APIBaseURL + "/" + c.APIVersion + "/" + c.PhoneNumberID + "/messages"
}

// Validate checks a stored config.
func (c Config) Validate() error {
	return config.First(
		config.NonEmpty("phone_number_id", c.PhoneNumberID),
		config.AbsoluteURL("public_base_url", c.PublicBaseURL),
		config.AbsoluteURL("api_base_url", c.APIBaseURL),
	)
}

var resolver = config.Resolver[Config]{
	Fields: []string{
		"enabled", "phone_number_id", "public_base_url", "business_account_id",
		"api_base_url", "api_version", "token",
	},
	Overrides: []string{"phone_number_id", "api_base_url", "api_version", "enabled"},
	Default:   DefaultConfig,
	Validate: func(c *Config) error {
		c.normalize()
		return config.First(
			config.NonEmpty("phone_number_id", c.PhoneNumberID),
			config.OptionalURL("public_base_url", &c.PublicBaseURL),
			config.AbsoluteURL("api_base_url", c.APIBaseURL),
		)
	},
}

var applier = qa.Applier[Config]{
	Fields: []qa.Field{
		{Name: "enabled", Kind: qa.KindBool},
		{Name: "phone_number_id"},
		{Name: "public_base_url"},
		{Name: "business_account_id", Optional: true},
		{Name: "api_base_url"},
		{Name: "api_version"},
		{Name: "token", Optional: true},
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

// MaxTextLen is the Cloud API text body limit.
const MaxTextLen = 4096

var maxTextLen = MaxTextLen

var caps = render.Capabilities{Images: true, MaxTextLen: &maxTextLen}

// Definition is the WhatsApp provider.
var Definition = &provider.Definition{
	ID:     ID,
	Type:   ProviderType,
	Prefix: Prefix,
	Name:   "WhatsApp",
	Ops: []string{
		provider.OpRun, provider.OpSend, provider.OpReply, provider.OpIngestHTTP,
		provider.OpRenderPlan, provider.OpEncode, provider.OpSendPayload,
	},
	Config: provider.NewConfig(Prefix).
		Bool("enabled", true).
		String("phone_number_id", true).
		URL("public_base_url", true).
		String("business_account_id", false).
		URL("api_base_url", true).
		String("api_version", true).
		Secret("token", false).
		Build(),
	Setup: []qa.Def{
		{Field: "enabled", LabelKey: "whatsapp.qa.setup.enabled", Required: true, Kind: qa.Bool()},
		{Field: "phone_number_id", LabelKey: "whatsapp.qa.setup.phone_number_id", Required: true},
		{Field: "public_base_url", LabelKey: "whatsapp.qa.setup.public_base_url", Required: true},
		{Field: "business_account_id", LabelKey: "whatsapp.qa.setup.business_account_id"},
		{Field: "api_base_url", LabelKey: "whatsapp.qa.setup.api_base_url", Required: true},
		{Field: "api_version", LabelKey: "whatsapp.qa.setup.api_version", Required: true},
		{Field: "token", LabelKey: "whatsapp.qa.setup.token"},
	},
	DefaultKeys: []string{"phone_number_id", "public_base_url"},
	Messages: map[string]string{
		"whatsapp.schema.config.phone_number_id.title":       "Phone number ID",
		"whatsapp.schema.config.phone_number_id.description": "Cloud API phone number ID messages are sent from",
		"whatsapp.schema.config.api_version.description":     "Graph API version, e.g. v19.0",
		"whatsapp.schema.config.token.description":           "Permanent or system user access token",
		"whatsapp.qa.setup.phone_number_id":                  "Phone number ID",
		"whatsapp.qa.setup.public_base_url":                  "Public base URL",
		"whatsapp.qa.setup.business_account_id":              "Business account ID",
		"whatsapp.qa.setup.api_base_url":                     "API base URL",
		"whatsapp.qa.setup.api_version":                      "API version",
		"whatsapp.qa.setup.token":                            "Access token",
	},
	Capabilities:   []string{"messaging"},
	Apply:          applier.Apply,
	ValidateConfig: validateConfig,
	Handlers: map[string]provider.Handler{
		provider.OpSend:        handleSend,
		provider.OpReply:       handleSend,
		provider.OpIngestHTTP:  ingestHTTP,
		provider.OpRenderPlan:  provider.RenderPlanHandler(render.PlanConfig{Caps: caps, DefaultSummary: "whatsapp message"}),
		provider.OpEncode:      encode,
		provider.OpSendPayload: sendPayload,
	},
}
