// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package token acquires Microsoft identity platform access tokens through
// the HTTP capability: a refresh_token grant first, then client
// credentials.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/core"
)

var tracer = otel.Tracer("msgprov/token")

// Defaults for the Microsoft identity platform.
const (
	DefaultAuthority = "https://login.microsoftonline.com"
	DefaultGraphBase = "https://graph.microsoft.com"
)

// Grant types.
const (
	GrantRefreshToken      = "refresh_token"
	GrantClientCredentials = "client_credentials"
)

// Credentials describe how to obtain a token for one tenant.
type Credentials struct {
	// Authority is the identity host; DefaultAuthority when empty.
	Authority string
	TenantID  string
	// Endpoint replaces the <authority>/<tenant>/oauth2/v2.0/token URL.
	Endpoint     string
	ClientID     string
	ClientSecret string
	RefreshToken string
	// Scope is sent with the refresh_token grant.
	Scope string
	// ClientCredentialsScope is sent with the client_credentials grant;
	// "<DefaultGraphBase>/.default" when empty.
	ClientCredentialsScope string
}

// TokenURL returns the token endpoint for c.
func (c Credentials) TokenURL() (string, error) {
	if c.Endpoint != "" {
		return c.Endpoint, nil
	}
	tenant := strings.Trim(strings.TrimSpace(c.TenantID), "/")
	if tenant == "" {
		return "", core.ErrValidation("missing tenant_id for token endpoint")
	}
	authority := c.Authority
	if authority == "" {
		authority = DefaultAuthority
	}
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", strings.TrimRight(authority, "/"), tenant), nil
}

// ServiceScope returns the client credentials scope for a service base URL.
func ServiceScope(service string) string {
	return strings.TrimRight(service, "/") + "/.default"
}

// Acquire obtains an access token for creds. A refresh token is tried
// first; when it is absent or rejected and a client secret is available,
// the client credentials grant follows. Tokens are never cached here.
func Acquire(ctx context.Context, http capability.HTTPClient, creds Credentials, tenant *core.TenantCtx) (tok *oauth2.Token, err error) {
	ctx, span := tracer.Start(ctx, "token.acquire",
		trace.WithAttributes(attribute.Bool("token.has_refresh", creds.RefreshToken != "")))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if strings.TrimSpace(creds.ClientID) == "" {
		return nil, core.ErrValidation("missing client_id")
	}
	endpoint, err := creds.TokenURL()
	if err != nil {
		return nil, err
	}

	var refreshErr error
	if creds.RefreshToken != "" {
		form := url.Values{
			"client_id":     {creds.ClientID},
			"grant_type":    {GrantRefreshToken},
			"refresh_token": {creds.RefreshToken},
			"scope":         {creds.Scope},
		}
		if creds.ClientSecret != "" {
			form.Set("client_secret", creds.ClientSecret)
		}
		tok, refreshErr = request(ctx, http, endpoint, form, tenant)
		if refreshErr == nil {
			span.SetAttributes(attribute.String("token.grant", GrantRefreshToken))
			return tok, nil
		}
		slog.WarnContext(ctx, "refresh token grant failed", "endpoint", endpoint, "error", refreshErr)
	}

	if creds.ClientSecret == "" {
		if refreshErr != nil {
			return nil, refreshErr
		}
		return nil, core.ErrValidation("no refresh_token or client_secret available")
	}
	scope := creds.ClientCredentialsScope
	if scope == "" {
		scope = ServiceScope(DefaultGraphBase)
	}
	form := url.Values{
		"client_id":     {creds.ClientID},
		"client_secret": {creds.ClientSecret},
		"grant_type":    {GrantClientCredentials},
		"scope":         {scope},
	}
	tok, err = request(ctx, http, endpoint, form, tenant)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("token.grant", GrantClientCredentials))
	return tok, nil
}

type tokenResponse struct {
	AccessToken  json.RawMessage `json:"access_token"`
	TokenType    string          `json:"token_type"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresIn    int64           `json:"expires_in"`
}

func request(ctx context.Context, http capability.HTTPClient, endpoint string, form url.Values, tenant *core.TenantCtx) (*oauth2.Token, error) {
	resp, err := http.Send(ctx, capability.Request{
		Method:  "POST",
		URL:     endpoint,
		Headers: []capability.Header{{Name: "Content-Type", Value: "application/x-www-form-urlencoded"}},
		Body:    []byte(form.Encode()),
	}, capability.SendOptions{Tenant: tenant})
	if err != nil {
		var httpErr *capability.HTTPError
		if errors.As(err, &httpErr) {
			return nil, core.ErrTransport(httpErr.Message)
		}
		return nil, core.ErrTransport(err.Error())
	}
	if !resp.Success() {
		return nil, oops.Code(core.CodeToken).
			With("status", resp.Status).
			Errorf("token endpoint returned status %d", resp.Status)
	}
	if !utf8.Valid(resp.Body) {
		return nil, oops.Code(core.CodeToken).Errorf("invalid token response: body is not utf-8")
	}
	var parsed tokenResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, oops.Code(core.CodeToken).Errorf("invalid token response: %v", err)
	}
	// A null or non-string access_token is reported as missing.
	var access *string
	if err := json.Unmarshal(parsed.AccessToken, &access); err != nil || access == nil {
		return nil, oops.Code(core.CodeToken).Errorf("token response missing access_token")
	}
	tok := &oauth2.Token{
		AccessToken:  *access,
		TokenType:    parsed.TokenType,
		RefreshToken: parsed.RefreshToken,
		ExpiresIn:    parsed.ExpiresIn,
	}
	if parsed.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second)
	}
	return tok, nil
}

// Source adapts Acquire to an oauth2.TokenSource bound to ctx. Wrap it in
// oauth2.ReuseTokenSource to cache tokens on the host side.
func Source(ctx context.Context, http capability.HTTPClient, creds Credentials, tenant *core.TenantCtx) oauth2.TokenSource {
	return tokenSource{ctx: ctx, http: http, creds: creds, tenant: tenant}
}

type tokenSource struct {
	ctx    context.Context //nolint:containedctx // oauth2.TokenSource has no context parameter
	http   capability.HTTPClient
	creds  Credentials
	tenant *core.TenantCtx
}

func (s tokenSource) Token() (*oauth2.Token, error) {
	return Acquire(s.ctx, s.http, s.creds, s.tenant)
}
