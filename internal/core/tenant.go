// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package core

import (
	"regexp"
	"strings"
)

var identPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// EnvID identifies a deployment environment ("default", "dev", "prod").
type EnvID string

// TenantID identifies a tenant within an environment.
type TenantID string

// ParseEnvID validates s as an environment identifier.
func ParseEnvID(s string) (EnvID, error) {
	if !identPattern.MatchString(s) {
		return "", ErrValidation("env id %q must match [a-z0-9_-]+", s)
	}
	return EnvID(s), nil
}

// ParseTenantID validates s as a tenant identifier.
func ParseTenantID(s string) (TenantID, error) {
	if !identPattern.MatchString(s) {
		return "", ErrValidation("tenant id %q must match [a-z0-9_-]+", s)
	}
	return TenantID(s), nil
}

// TenantCtx is the per-invocation tenant context. It is created by the
// caller and never mutated during a call.
type TenantCtx struct {
	Env       EnvID    `json:"env"`
	Tenant    TenantID `json:"tenant"`
	Team      string   `json:"team,omitempty"`
	User      string   `json:"user,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
}

// NewTenantCtx builds a context for env and tenant.
func NewTenantCtx(env EnvID, tenant TenantID) TenantCtx {
	return TenantCtx{Env: env, Tenant: tenant}
}

// DefaultTenantCtx returns the "default"/"default" context used for
// envelopes normalized from webhooks.
func DefaultTenantCtx() TenantCtx {
	return NewTenantCtx("default", "default")
}

// WithTeam returns a copy of c scoped to team. A blank team clears it.
func (c TenantCtx) WithTeam(team string) TenantCtx {
	c.Team = strings.TrimSpace(team)
	return c
}

// WithUser returns a copy of c for user.
func (c TenantCtx) WithUser(user string) TenantCtx {
	c.User = strings.TrimSpace(user)
	return c
}

// Validate checks the identifier rules for env and tenant.
func (c TenantCtx) Validate() error {
	if _, err := ParseEnvID(string(c.Env)); err != nil {
		return err
	}
	if _, err := ParseTenantID(string(c.Tenant)); err != nil {
		return err
	}
	return nil
}
