// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package graph calls Microsoft Graph on behalf of the Teams and email
// providers and implements the change subscription ops they share.
package graph

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/provider"
	"github.com/greentic/messaging-providers/internal/token"
)

// Service names Graph in upstream status errors.
const Service = "graph"

// DefaultBaseURL is the Graph v1.0 endpoint.
const DefaultBaseURL = token.DefaultGraphBase + "/v1.0"

// DefaultScope is the client credentials scope for Graph.
var DefaultScope = token.ServiceScope(token.DefaultGraphBase)

// Client sends authenticated requests to Graph.
type Client struct {
	Caps    capability.Set
	Tenant  *core.TenantCtx
	BaseURL string
	Token   string
}

// NewClient acquires a token for creds and returns a client bound to it.
func NewClient(ctx context.Context, caps capability.Set, tenant *core.TenantCtx, baseURL string, creds token.Credentials) (Client, error) {
	tok, err := token.Acquire(ctx, caps.WithDefaults().HTTP, creds, tenant)
	if err != nil {
		return Client{}, err
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return Client{
		Caps:    caps,
		Tenant:  tenant,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   tok.AccessToken,
	}, nil
}

// URL joins path onto the base URL.
func (c Client) URL(path string) string {
	return c.BaseURL + path
}

// Call sends one request and decodes the reply. An empty reply, as Graph
// returns for DELETE, decodes to nil.
func (c Client) Call(ctx context.Context, method, path string, body any) (map[string]any, error) {
	req := provider.Request{
		Service: Service,
		Method:  method,
		URL:     c.URL(path),
		Bearer:  c.Token,
	}
	if body != nil {
		req.JSON = body
	}
	resp, err := provider.Do(ctx, c.Caps, c.Tenant, req)
	if err != nil {
		return nil, err
	}
	return provider.DecodeBody(resp), nil
}

// Post is Call with POST.
func (c Client) Post(ctx context.Context, path string, body any) (map[string]any, error) {
	return c.Call(ctx, http.MethodPost, path, body)
}

// IsStatus reports whether err is a Graph reply with status.
func IsStatus(err error, status int) bool {
	var se *provider.StatusError
	return errors.As(err, &se) && se.Status == status
}
