// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package email records SMTP sends, delivers encoded payloads through the
// Microsoft Graph sendMail API and turns Graph mail notifications into
// envelopes.
package email

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

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
	ID           = "messaging-provider-email"
	ProviderType = "messaging.email.smtp"
	Prefix       = "email"
)

// Defaults.
const (
	DefaultPort    = 587
	DefaultTLSMode = "starttls"
	// DefaultScope is the delegated scope sent with refresh token grants.
	DefaultScope = token.DefaultGraphBase + "/.default offline_access openid"
)

// Secret keys.
const (
	ClientIDKey     = "MS_GRAPH_CLIENT_ID"
	ClientSecretKey = "MS_GRAPH_CLIENT_SECRET"
	RefreshTokenKey = "MS_GRAPH_REFRESH_TOKEN"
	FromAddressKey  = "from_address"
	TenantIDKey     = "graph_tenant_id"
)

// TLS modes.
const (
	TLSStartTLS = "starttls"
	TLSImplicit = "tls"
	TLSNone     = "none"
)

// Port is an SMTP port. It decodes from a JSON number or a numeric string.
type Port uint16

// UnmarshalJSON implements json.Unmarshaler.
func (p *Port) UnmarshalJSON(data []byte) error {
	var n uint16
	if err := json.Unmarshal(data, &n); err == nil {
		*p = Port(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("port must be a number")
	}
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return fmt.Errorf("invalid port %q", s)
	}
	*p = Port(v)
	return nil
}

// Config is the email provider config. The graph_* fields configure the
// Graph delivery path and are not part of the published schema.
type Config struct {
	Enabled            bool    `json:"enabled"`
	PublicBaseURL      string  `json:"public_base_url"`
	Host               string  `json:"host"`
	Port               Port    `json:"port"`
	Username           string  `json:"username"`
	FromAddress        string  `json:"from_address"`
	TLSMode            string  `json:"tls_mode"`
	DefaultToAddress   *string `json:"default_to_address,omitempty"`
	GraphTenantID      *string `json:"graph_tenant_id,omitempty"`
	GraphAuthority     *string `json:"graph_authority,omitempty"`
	GraphBaseURL       *string `json:"graph_base_url,omitempty"`
	GraphTokenEndpoint *string `json:"graph_token_endpoint,omitempty"`
	GraphScope         *string `json:"graph_scope,omitempty"`
	Password           *string `json:"password,omitempty"`
	GraphClientID      *string `json:"graph_client_id,omitempty"`
	GraphClientSecret  *string `json:"graph_client_secret,omitempty"`
	GraphRefreshToken  *string `json:"graph_refresh_token,omitempty"`
}

// DefaultConfig returns the config every decode starts from.
func DefaultConfig() Config {
	return Config{Enabled: true, Port: DefaultPort, TLSMode: DefaultTLSMode}
}

func (c *Config) normalize() {
	c.Host = strings.TrimSpace(c.Host)
	c.Username = strings.TrimSpace(c.Username)
	c.FromAddress = strings.TrimSpace(c.FromAddress)
	c.TLSMode = strings.ToLower(strings.TrimSpace(c.TLSMode))
	if c.TLSMode == "" {
		c.TLSMode = DefaultTLSMode
	}
}

// Validate checks a stored config.
func (c Config) Validate() error {
	return config.First(
		config.AbsoluteURL("public_base_url", c.PublicBaseURL),
		c.validateSMTP(),
	)
}

func (c Config) validateSMTP() error {
	if c.Port == 0 {
		return core.ErrInvalidConfig("port must be greater than zero")
	}
	return config.First(
		config.NonEmpty("host", c.Host),
		config.NonEmpty("username", c.Username),
		config.NonEmpty("from_address", c.FromAddress),
		config.OneOf("tls_mode", c.TLSMode, TLSStartTLS, TLSImplicit, TLSNone),
	)
}

// GraphBase is the configured Graph base URL without a trailing slash.
func (c Config) GraphBase() string {
	return strings.TrimRight(config.Or(c.GraphBaseURL, graph.DefaultBaseURL), "/")
}

// DefaultDestination is the configured recipient, if any.
func (c Config) DefaultDestination() *core.Destination {
	if to := config.Or(c.DefaultToAddress, ""); to != "" {
		return &core.Destination{ID: to, Kind: kindEmail}
	}
	return nil
}

func (c Config) credentials(clientID, secret, refresh string) token.Credentials {
	return token.Credentials{
		Authority:              config.Or(c.GraphAuthority, token.DefaultAuthority),
		TenantID:               config.Or(c.GraphTenantID, ""),
		Endpoint:               config.Or(c.GraphTokenEndpoint, ""),
		ClientID:               clientID,
		ClientSecret:           secret,
		RefreshToken:           refresh,
		Scope:                  config.Or(c.GraphScope, DefaultScope),
		ClientCredentialsScope: graph.DefaultScope,
	}
}

func (c Config) clientID(ctx context.Context, secrets capability.SecretStore) (string, error) {
	id, found, err := config.LookupOr(ctx, secrets, c.GraphClientID, ClientIDKey)
	if err != nil {
		return "", err
	}
	if !found {
		return "", core.ErrInvalidConfig("missing graph_client_id (seed 'ms_graph_client_id' secret)")
	}
	return id, nil
}

// Credentials returns the application token request: the configured or
// stored refresh token first, then client credentials.
func (c Config) Credentials(ctx context.Context, secrets capability.SecretStore) (token.Credentials, error) {
	id, err := c.clientID(ctx, secrets)
	if err != nil {
		return token.Credentials{}, err
	}
	if config.Or(c.GraphTenantID, "") == "" && config.Or(c.GraphTokenEndpoint, "") == "" {
		return token.Credentials{}, core.ErrInvalidConfig("missing graph_tenant_id in config")
	}
	secret, _, err := config.LookupOr(ctx, secrets, c.GraphClientSecret, ClientSecretKey)
	if err != nil {
		return token.Credentials{}, err
	}
	refresh, _, err := config.LookupOr(ctx, secrets, c.GraphRefreshToken, RefreshTokenKey)
	if err != nil {
		return token.Credentials{}, err
	}
	return c.credentials(id, secret, refresh), nil
}

// UserCredentials returns the delegated token request for user: the
// refresh token stored under user.TokenKey.
func (c Config) UserCredentials(ctx context.Context, secrets capability.SecretStore, user AuthUser) (token.Credentials, error) {
	if strings.TrimSpace(user.TokenKey) == "" {
		return token.Credentials{}, provider.Invalid("user.token_key required")
	}
	if secrets == nil {
		return token.Credentials{}, core.ErrMissingSecret(user.TokenKey)
	}
	refresh, err := capability.SecretString(ctx, secrets, user.TokenKey)
	if err != nil {
		return token.Credentials{}, err
	}
	id, err := c.clientID(ctx, secrets)
	if err != nil {
		return token.Credentials{}, err
	}
	secret, _, err := config.LookupOr(ctx, secrets, c.GraphClientSecret, ClientSecretKey)
	if err != nil {
		return token.Credentials{}, err
	}
	creds := c.credentials(id, secret, refresh)
	if tenant := strings.TrimSpace(user.TenantID); tenant != "" {
		creds.TenantID = tenant
	}
	if creds.TenantID == "" && creds.Endpoint == "" {
		return token.Credentials{}, core.ErrInvalidConfig("missing Graph tenant id")
	}
	return creds, nil
}

// hasRefreshToken reports whether a delegated token is available, which
// makes /me the mailbox.
func (c Config) hasRefreshToken(ctx context.Context, secrets capability.SecretStore) bool {
	_, found, err := config.LookupOr(ctx, secrets, c.GraphRefreshToken, RefreshTokenKey)
	return err == nil && found
}

// AuthUser is the mailbox owner a delegated token is acquired for.
type AuthUser struct {
	UserID      string `json:"user_id"`
	TokenKey    string `json:"token_key"`
	TenantID    string `json:"tenant_id,omitempty"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// BindingUser parses an ingress binding id of the form "user|token_key".
// A binding without a separator names both.
func BindingUser(binding string) (AuthUser, error) {
	binding = strings.TrimSpace(binding)
	if binding == "" {
		return AuthUser{}, provider.Invalid("binding_id required")
	}
	user, key, ok := strings.Cut(binding, "|")
	if !ok {
		key = binding
	}
	return AuthUser{UserID: user, TokenKey: key}, nil
}

// fromSecrets builds the Graph delivery config from tenant secrets. The
// SMTP fields are placeholders.
func fromSecrets(ctx context.Context, secrets capability.SecretStore) (Config, error) {
	lookup := func(keys ...string) (*string, error) {
		for _, key := range keys {
			v, found, err := capability.LookupSecret(ctx, secrets, key)
			if err != nil {
				return nil, err
			}
			if found && strings.TrimSpace(v) != "" {
				return config.Optional(v), nil
			}
		}
		return nil, nil
	}
	from, err := lookup(FromAddressKey)
	if err != nil {
		return Config{}, err
	}
	if from == nil {
		return Config{}, core.ErrInvalidConfig("from_address not found in secrets (seed 'from_address' secret)")
	}
	cfg := DefaultConfig()
	cfg.PublicBaseURL = "https://localhost"
	cfg.Host = "unused"
	cfg.Username = *from
	cfg.FromAddress = *from
	for _, f := range []struct {
		dst  **string
		keys []string
	}{
		{&cfg.GraphTenantID, []string{TenantIDKey, "ms_graph_tenant_id"}},
		{&cfg.GraphClientID, []string{ClientIDKey, "graph_client_id"}},
		{&cfg.GraphClientSecret, []string{ClientSecretKey, "graph_client_secret"}},
		{&cfg.GraphRefreshToken, []string{RefreshTokenKey, "graph_refresh_token"}},
	} {
		v, err := lookup(f.keys...)
		if err != nil {
			return Config{}, err
		}
		*f.dst = v
	}
	return cfg, nil
}

var resolver = config.Resolver[Config]{
	Fields: []string{
		"enabled", "public_base_url", "host", "port", "username", "from_address",
		"default_to_address", "tls_mode", "password", "graph_tenant_id", "graph_authority",
		"graph_base_url", "graph_token_endpoint", "graph_scope", "graph_client_id",
		"graph_client_secret", "graph_refresh_token",
	},
	Overrides: []string{"default_to_address", "graph_base_url"},
	Default:   DefaultConfig,
	Fallback:  fromSecrets,
	Validate: func(c *Config) error {
		c.normalize()
		return c.Validate()
	},
}

var applier = qa.Applier[Config]{
	Fields: []qa.Field{
		{Name: "enabled", Kind: qa.KindBool},
		{Name: "public_base_url"},
		{Name: "host"},
		{Name: "port"},
		{Name: "username"},
		{Name: "from_address"},
		{Name: "tls_mode"},
		{Name: "default_to_address", Optional: true},
		{Name: "password", Optional: true},
	},
	Default:   DefaultConfig,
	Normalize: (*Config).normalize,
	Validate:  Config.Validate,
}

// ParseConfig decodes and checks a stored config document.
func ParseConfig(raw []byte) (Config, error) {
	cfg, err := config.ParseStrictDefault(raw, DefaultConfig)
	if err != nil {
		return Config{}, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(raw []byte) (any, error) {
	cfg, err := ParseConfig(raw)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// MaxSubscriptionLifetime is the longest Graph mail subscription.
const MaxSubscriptionLifetime = 4230 * time.Minute

func checkProvider(name string) error {
	if name != ProviderType {
		return provider.Invalid("provider mismatch: expected %s, got %s", ProviderType, name)
	}
	return nil
}

// userOf decodes the "user" member of a subscription input.
func userOf(raw map[string]any) (AuthUser, error) {
	var user AuthUser
	obj, ok := raw["user"].(map[string]any)
	if !ok {
		return user, provider.Invalid("user required")
	}
	encoded, err := json.Marshal(obj)
	if err != nil {
		return user, core.ErrOther("%v", err)
	}
	if err := json.Unmarshal(encoded, &user); err != nil {
		return user, provider.Invalid("invalid user: %v", err)
	}
	return user, nil
}

var subscriptions = graph.Subscriptions{
	Policy: graph.Policy{
		CheckProvider:      checkProvider,
		DefaultChangeTypes: []string{"created"},
		DefaultExpiration:  MaxSubscriptionLifetime,
		MaxExpiration:      MaxSubscriptionLifetime,
	},
	Connect: func(ctx context.Context, inv provider.Invocation, raw map[string]any) (graph.Client, error) {
		cfg, err := resolver.Resolve(ctx, raw, nil, inv.Caps.Secrets)
		if err != nil {
			return graph.Client{}, err
		}
		user, err := userOf(raw)
		if err != nil {
			return graph.Client{}, err
		}
		creds, err := cfg.UserCredentials(ctx, inv.Caps.Secrets, user)
		if err != nil {
			return graph.Client{}, err
		}
		return graph.NewClient(ctx, inv.Caps, inv.Tenant, cfg.GraphBase(), creds)
	},
}

var caps = render.Capabilities{HTML: true, Images: true}

// Definition is the email provider.
var Definition = &provider.Definition{
	ID:     ID,
	Type:   ProviderType,
	Prefix: Prefix,
	Name:   "Email",
	Ops: []string{
		provider.OpRun, provider.OpSend, provider.OpReply, provider.OpIngestHTTP,
		provider.OpRenderPlan, provider.OpEncode, provider.OpSendPayload,
		provider.OpSubscriptionEnsure, provider.OpSubscriptionRenew, provider.OpSubscriptionDelete,
	},
	Config: provider.NewConfig(Prefix).
		Bool("enabled", true).
		URL("public_base_url", true).
		String("host", true).
		String("port", true).
		String("username", true).
		String("from_address", true).
		String("tls_mode", true).
		String("default_to_address", false).
		Secret("password", false).
		Build(),
	Setup: []qa.Def{
		{Field: "enabled", LabelKey: "email.qa.setup.enabled", Required: true, Kind: qa.Bool()},
		{Field: "public_base_url", LabelKey: "email.qa.setup.public_base_url", Required: true},
		{Field: "host", LabelKey: "email.qa.setup.host", Required: true},
		{Field: "port", LabelKey: "email.qa.setup.port", Required: true},
		{Field: "username", LabelKey: "email.qa.setup.username", Required: true},
		{Field: "from_address", LabelKey: "email.qa.setup.from_address", Required: true},
		{Field: "tls_mode", LabelKey: "email.qa.setup.tls_mode", Required: true},
		{Field: "default_to_address", LabelKey: "email.qa.setup.default_to_address"},
		{Field: "password", LabelKey: "email.qa.setup.password"},
	},
	DefaultKeys: []string{"public_base_url", "host", "username", "from_address"},
	Messages: map[string]string{
		"email.op.send.description":                          "Send an email message",
		"email.op.reply.description":                         "Reply to an email",
		"email.op.ingest_http.description":                   "Normalize email webhook payload",
		"email.op.encode.description":                        "Encode universal payload for email",
		"email.op.send_payload.description":                  "Send encoded payload via email",
		"email.op.subscription_ensure.description":           "Ensure Graph subscription exists",
		"email.op.subscription_renew.description":            "Renew Graph subscription",
		"email.op.subscription_delete.description":           "Delete Graph subscription",
		"email.schema.output.message_id.description":         "Email message identifier",
		"email.schema.config.host.title":                     "SMTP host",
		"email.schema.config.host.description":               "SMTP server hostname",
		"email.schema.config.port.title":                     "SMTP port",
		"email.schema.config.port.description":               "SMTP server port number",
		"email.schema.config.username.description":           "SMTP authentication username",
		"email.schema.config.from_address.description":       "Sender email address",
		"email.schema.config.tls_mode.title":                 "TLS mode",
		"email.schema.config.tls_mode.description":           "TLS encryption mode (starttls, tls, none)",
		"email.schema.config.default_to_address.title":       "Default to address",
		"email.schema.config.default_to_address.description": "Default recipient when destination is omitted",
		"email.schema.config.password.description":           "SMTP authentication password",
		"email.qa.setup.public_base_url":                     "Public base URL",
		"email.qa.setup.host":                                "SMTP host",
		"email.qa.setup.port":                                "SMTP port",
		"email.qa.setup.username":                            "Username",
		"email.qa.setup.from_address":                        "From address",
		"email.qa.setup.tls_mode":                            "TLS mode",
		"email.qa.setup.default_to_address":                  "Default to address",
		"email.qa.setup.password":                            "Password",
	},
	Capabilities:   []string{"messaging"},
	Apply:          applier.Apply,
	ValidateConfig: validateConfig,
	Handlers: map[string]provider.Handler{
		provider.OpSend:               handleSend,
		provider.OpReply:              handleSend,
		provider.OpIngestHTTP:         ingestHTTP,
		provider.OpRenderPlan:         provider.RenderPlanHandler(render.PlanConfig{Caps: caps, DefaultSummary: "email message"}),
		provider.OpEncode:             encode,
		provider.OpSendPayload:        sendPayload,
		provider.OpSubscriptionEnsure: subscriptions.Ensure,
		provider.OpSubscriptionRenew:  subscriptions.Renew,
		provider.OpSubscriptionDelete: subscriptions.Delete,
	},
}
