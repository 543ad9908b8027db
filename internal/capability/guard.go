// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package capability

import (
	"context"

	"github.com/greentic/messaging-providers/internal/core"
)

// Guard wraps every capability in set so that calls not granted to provider
// by enforcer fail. A nil enforcer returns set unchanged.
func Guard(set Set, enforcer *Enforcer, provider string) Set {
	if enforcer == nil {
		return set
	}
	set = set.WithDefaults()
	return Set{
		HTTP:      guardedHTTP{next: set.HTTP, enforcer: enforcer, provider: provider},
		Secrets:   guardedSecrets{next: set.Secrets, enforcer: enforcer, provider: provider},
		State:     guardedState{next: set.State, enforcer: enforcer, provider: provider},
		Telemetry: guardedTelemetry{next: set.Telemetry, enforcer: enforcer, provider: provider},
	}
}

type guardedHTTP struct {
	next     HTTPClient
	enforcer *Enforcer
	provider string
}

func (g guardedHTTP) Send(ctx context.Context, req Request, opts SendOptions) (Response, error) {
	if !g.enforcer.Check(g.provider, GrantHTTPSend) {
		return Response{}, &HTTPError{Code: CodeRequestBuild, Message: "capability " + GrantHTTPSend + " not granted"}
	}
	return g.next.Send(ctx, req, opts)
}

type guardedSecrets struct {
	next     SecretStore
	enforcer *Enforcer
	provider string
}

// Get treats an ungranted key as absent so callers surface the usual
// missing-secret error.
func (g guardedSecrets) Get(ctx context.Context, key string) ([]byte, error) {
	if !g.enforcer.Check(g.provider, GrantSecretsRead+"."+key) {
		return nil, ErrNotFound
	}
	return g.next.Get(ctx, key)
}

type guardedState struct {
	next     StateStore
	enforcer *Enforcer
	provider string
}

func (g guardedState) Read(ctx context.Context, key string, tenant *core.TenantCtx) ([]byte, error) {
	if !g.enforcer.Check(g.provider, GrantStateRead) {
		return nil, &StateError{Op: "read", Message: "capability not granted"}
	}
	return g.next.Read(ctx, key, tenant)
}

func (g guardedState) Write(ctx context.Context, key string, value []byte, tenant *core.TenantCtx) error {
	if !g.enforcer.Check(g.provider, GrantStateWrite) {
		return &StateError{Op: "write", Message: "capability not granted"}
	}
	return g.next.Write(ctx, key, value, tenant)
}

func (g guardedState) Delete(ctx context.Context, key string, tenant *core.TenantCtx) error {
	if !g.enforcer.Check(g.provider, GrantStateDelete) {
		return &StateError{Op: "delete", Message: "capability not granted"}
	}
	return g.next.Delete(ctx, key, tenant)
}

type guardedTelemetry struct {
	next     Telemetry
	enforcer *Enforcer
	provider string
}

// Log drops records silently when telemetry is not granted.
func (g guardedTelemetry) Log(ctx context.Context, span SpanContext, attrs []Attr, tenant *core.TenantCtx) error {
	if !g.enforcer.Check(g.provider, GrantTelemetryLog) {
		return nil
	}
	return g.next.Log(ctx, span, attrs, tenant)
}
