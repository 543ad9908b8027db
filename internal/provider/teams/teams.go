// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package teams posts to Microsoft Teams channels and chats through
// Microsoft Graph, normalizes Graph change notifications and manages the
// subscriptions that deliver them.
package teams

import (
	"context"
	"strings"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/config"
	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/graph"
	"github.com/greentic/messaging-providers/internal/provider"
	"github.com/greentic/messaging-providers/internal/qa"
	"github.com/greentic/messaging-providers/internal/render"
	"github.com/greentic/messaging-providers/internal/token"
)

// Provider identity.
const (
	ID           = "messaging-provider-teams"
	ProviderType = "messaging.teams.graph"
	Prefix       = "teams"
)

// Secret keys read when the input carries no config.
const (
	TenantIDKey     = "MS_GRAPH_TENANT_ID"
	ClientIDKey     = "MS_GRAPH_CLIENT_ID"
	ClientSecretKey = "MS_GRAPH_CLIENT_SECRET"
	RefreshTokenKey = "MS_GRAPH_REFRESH_TOKEN"
)

// Config is the Teams provider config.
type Config struct {
	Enabled       bool    `json:"enabled"`
	TenantID      string  `json:"tenant_id"`
	ClientID      string  `json:"client_id"`
	PublicBaseURL string  `json:"public_base_url"`
	TeamID        *string `json:"team_id,omitempty"`
	ChannelID     *string `json:"channel_id,omitempty"`
	GraphBaseURL  string  `json:"graph_base_url"`
	AuthBaseURL   string  `json:"auth_base_url"`
	TokenScope    string  `json:"token_scope"`
	ClientSecret  *string `json:"client_secret,omitempty"`
	RefreshToken  *string `json:"refresh_token,omitempty"`
}

// DefaultConfig returns the config every decode starts from.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		GraphBaseURL: graph.DefaultBaseURL,
		AuthBaseURL:  token.DefaultAuthority,
		TokenScope:   graph.DefaultScope,
	}
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.GraphBaseURL) == "" {
		c.GraphBaseURL = graph.DefaultBaseURL
	}
	c.GraphBaseURL = strings.TrimRight(c.GraphBaseURL, "/")
	if strings.TrimSpace(c.AuthBaseURL) == "" {
		c.AuthBaseURL = token.DefaultAuthority
	}
	c.AuthBaseURL = strings.TrimRight(c.AuthBaseURL, "/")
	if strings.TrimSpace(c.TokenScope) == "" {
		c.TokenScope = graph.DefaultScope
	}
	c.TenantID = strings.TrimSpace(c.TenantID)
	c.ClientID = strings.TrimSpace(c.ClientID)
}

// Validate checks a stored config.
func (c Config) Validate() error {
	return config.First(
		config.NonEmpty("tenant_id", c.TenantID),
		config.NonEmpty("client_id", c.ClientID),
		config.AbsoluteURL("public_base_url", c.PublicBaseURL),
		config.AbsoluteURL("graph_base_url", c.GraphBaseURL),
		config.AbsoluteURL("auth_base_url", c.AuthBaseURL),
	)
}

// DefaultDestination is the configured team channel, if any.
func (c Config) DefaultDestination() *core.Destination {
	team, channel := config.Or(c.TeamID, ""), config.Or(c.ChannelID, "")
	if team == "" || channel == "" {
		return nil
	}
	return &core.Destination{ID: team + ":" + channel, Kind: kindChannel}
}

// Credentials returns the token request for c. Config values win over
// tenant secrets.
func (c Config) Credentials(ctx context.Context, secrets capability.SecretStore) (token.Credentials, error) {
	secret, _, err := config.LookupOr(ctx, secrets, c.ClientSecret, ClientSecretKey)
	if err != nil {
		return token.Credentials{}, err
	}
	refresh, _, err := config.LookupOr(ctx, secrets, c.RefreshToken, RefreshTokenKey)
	if err != nil {
		return token.Credentials{}, err
	}
	return token.Credentials{
		Authority:              c.AuthBaseURL,
		TenantID:               c.TenantID,
		ClientID:               c.ClientID,
		ClientSecret:           secret,
		RefreshToken:           refresh,
		Scope:                  c.TokenScope,
		ClientCredentialsScope: c.TokenScope,
	}, nil
}

func fromSecrets(ctx context.Context, secrets capability.SecretStore) (Config, error) {
	cfg := DefaultConfig()
	for _, f := range []struct {
		field, key string
		dst        *string
	}{
		{"tenant_id", TenantIDKey, &cfg.TenantID},
		{"client_id", ClientIDKey, &cfg.ClientID},
	} {
		v, found, err := capability.LookupSecret(ctx, secrets, f.key)
		if err != nil {
			return Config{}, err
		}
		if !found || strings.TrimSpace(v) == "" {
			return Config{}, core.ErrInvalidConfig("%s not found in config or secrets (%s)", f.field, f.key)
		}
		*f.dst = strings.TrimSpace(v)
	}
	return cfg, nil
}

var resolver = config.Resolver[Config]{
	Fields: []string{
		"enabled", "tenant_id", "client_id", "public_base_url", "team_id", "channel_id",
		"graph_base_url", "auth_base_url", "token_scope", "client_secret", "refresh_token",
	},
	Overrides: []string{"team_id", "channel_id", "graph_base_url", "enabled"},
	Default:   DefaultConfig,
	Fallback:  fromSecrets,
	Validate: func(c *Config) error {
		c.normalize()
		return config.First(
			config.NonEmpty("tenant_id", c.TenantID),
			config.NonEmpty("client_id", c.ClientID),
			config.OptionalURL("public_base_url", &c.PublicBaseURL),
			config.AbsoluteURL("graph_base_url", c.GraphBaseURL),
			config.AbsoluteURL("auth_base_url", c.AuthBaseURL),
		)
	},
}

var applier = qa.Applier[Config]{
	Fields: []qa.Field{
		{Name: "enabled", Kind: qa.KindBool},
		{Name: "tenant_id"},
		{Name: "client_id"},
		{Name: "public_base_url"},
		{Name: "team_id", Optional: true},
		{Name: "channel_id", Optional: true},
		{Name: "graph_base_url"},
		{Name: "auth_base_url"},
		{Name: "token_scope"},
		{Name: "client_secret", Optional: true},
		{Name: "refresh_token", Optional: true},
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

// clientFor returns a Graph client holding a fresh token for cfg.
func clientFor(ctx context.Context, inv provider.Invocation, cfg Config) (graph.Client, error) {
	creds, err := cfg.Credentials(ctx, inv.Caps.Secrets)
	if err != nil {
		return graph.Client{}, err
	}
	return graph.NewClient(ctx, inv.Caps, inv.Tenant, cfg.GraphBaseURL, creds)
}

func checkProvider(name string) error {
	switch name {
	case Prefix, "msgraph", "messaging-teams", ProviderType, ID:
		return nil
	}
	return provider.Invalid("unsupported provider: %s", name)
}

var subscriptions = graph.Subscriptions{
	Policy: graph.Policy{
		CheckProvider:          checkProvider,
		DefaultExpiration:      SubscriptionLifetime,
		ReuseOnConflict:        true,
		ClientStateFromBinding: true,
		RequireRenewTarget:     true,
	},
	Connect: func(ctx context.Context, inv provider.Invocation, raw map[string]any) (graph.Client, error) {
		cfg, err := resolver.Resolve(ctx, raw, nil, inv.Caps.Secrets)
		if err != nil {
			return graph.Client{}, err
		}
		return clientFor(ctx, inv, cfg)
	},
}

// caps describes Teams rendering: Adaptive Cards are posted as
// attachments.
var caps = render.Capabilities{
	AdaptiveCards: true,
	Markdown:      true,
	HTML:          true,
	Images:        true,
	Buttons:       true,
}

// Definition is the Teams provider.
var Definition = &provider.Definition{
	ID:     ID,
	Type:   ProviderType,
	Prefix: Prefix,
	Name:   "Teams",
	Ops: []string{
		provider.OpRun, provider.OpSend, provider.OpReply, provider.OpIngestHTTP,
		provider.OpRenderPlan, provider.OpEncode, provider.OpSendPayload,
		provider.OpSubscriptionEnsure, provider.OpSubscriptionRenew, provider.OpSubscriptionDelete,
	},
	Config: provider.NewConfig(Prefix).
		Bool("enabled", true).
		String("tenant_id", true).
		String("client_id", true).
		URL("public_base_url", true).
		String("team_id", false).
		String("channel_id", false).
		URL("graph_base_url", true).
		URL("auth_base_url", true).
		String("token_scope", true).
		Secret("client_secret", false).
		Secret("refresh_token", false).
		Build(),
	Setup: []qa.Def{
		{Field: "enabled", LabelKey: "teams.qa.setup.enabled", Required: true, Kind: qa.Bool()},
		{Field: "tenant_id", LabelKey: "teams.qa.setup.tenant_id", Required: true},
		{Field: "client_id", LabelKey: "teams.qa.setup.client_id", Required: true},
		{Field: "public_base_url", LabelKey: "teams.qa.setup.public_base_url", Required: true},
		{Field: "team_id", LabelKey: "teams.qa.setup.team_id"},
		{Field: "channel_id", LabelKey: "teams.qa.setup.channel_id"},
		{Field: "graph_base_url", LabelKey: "teams.qa.setup.graph_base_url", Required: true},
		{Field: "auth_base_url", LabelKey: "teams.qa.setup.auth_base_url", Required: true},
		{Field: "token_scope", LabelKey: "teams.qa.setup.token_scope", Required: true},
		{Field: "client_secret", LabelKey: "teams.qa.setup.client_secret"},
		{Field: "refresh_token", LabelKey: "teams.qa.setup.refresh_token"},
	},
	DefaultKeys: []string{"tenant_id", "client_id", "public_base_url"},
	Messages: map[string]string{
		"teams.op.reply.description":                      "Reply in a Teams thread",
		"teams.op.send_payload.description":               "Send encoded payload to Graph API",
		"teams.op.subscription_ensure.description":        "Create or reuse a Graph subscription",
		"teams.op.subscription_renew.description":         "Renew a Graph subscription",
		"teams.op.subscription_delete.description":        "Delete a Graph subscription",
		"teams.schema.output.message_id.description":      "Graph message identifier",
		"teams.schema.config.tenant_id.description":       "Azure AD tenant identifier",
		"teams.schema.config.client_id.description":       "Azure AD application client ID",
		"teams.schema.config.public_base_url.description": "Public URL for webhook callbacks",
		"teams.schema.config.team_id.description":         "Default Team identifier",
		"teams.schema.config.channel_id.description":      "Default Channel identifier",
		"teams.schema.config.graph_base_url.description":  "Microsoft Graph API base URL",
		"teams.schema.config.auth_base_url.description":   "Azure AD auth endpoint base URL",
		"teams.schema.config.token_scope.description":     "OAuth2 token scope",
		"teams.schema.config.client_secret.description":   "Azure AD client secret",
		"teams.schema.config.refresh_token.description":   "OAuth2 refresh token",
		"teams.qa.setup.tenant_id":                        "Azure AD tenant ID",
		"teams.qa.setup.client_id":                        "Azure AD client ID",
		"teams.qa.setup.public_base_url":                  "Public base URL",
		"teams.qa.setup.team_id":                          "Default team ID",
		"teams.qa.setup.channel_id":                       "Default channel ID",
		"teams.qa.setup.graph_base_url":                   "Graph base URL",
		"teams.qa.setup.auth_base_url":                    "Auth base URL",
		"teams.qa.setup.token_scope":                      "Token scope",
		"teams.qa.setup.client_secret":                    "Client secret",
		"teams.qa.setup.refresh_token":                    "Refresh token",
	},
	Capabilities:   []string{"messaging"},
	Apply:          applier.Apply,
	ValidateConfig: validateConfig,
	Handlers: map[string]provider.Handler{
		provider.OpSend:               handleSend,
		provider.OpReply:              handleSend,
		provider.OpIngestHTTP:         ingestHTTP,
		provider.OpRenderPlan:         provider.RenderPlanHandler(render.PlanConfig{Caps: caps, DefaultSummary: "teams message"}),
		provider.OpEncode:             encode,
		provider.OpSendPayload:        sendPayload,
		provider.OpRefresh:            refresh,
		provider.OpSubscriptionEnsure: subscriptions.Ensure,
		provider.OpSubscriptionRenew:  subscriptions.Renew,
		provider.OpSubscriptionDelete: subscriptions.Delete,
	},
}
