// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package capability

import (
	"sort"
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// Grant names checked by Guard. Secret reads append the secret key:
// "secrets.read.SLACK_BOT_TOKEN".
const (
	GrantHTTPSend     = "http.send"
	GrantSecretsRead  = "secrets.read"
	GrantStateRead    = "state.read"
	GrantStateWrite   = "state.write"
	GrantStateDelete  = "state.delete"
	GrantTelemetryLog = "telemetry.log"
)

type compiledGrant struct {
	pattern string
	glob    glob.Glob
}

// Enforcer holds the capability grants declared by each provider package.
//
// Patterns use '.' as the segment separator: '*' matches one segment and
// '**' matches any number of segments. "secrets.read.SLACK_*" therefore
// matches "secrets.read.SLACK_BOT_TOKEN" but not "secrets.read.jwt_signing_key".
//
// Enforcer is safe for concurrent use. The zero value is ready to use.
type Enforcer struct {
	grants map[string][]compiledGrant
	mu     sync.RWMutex
}

// NewEnforcer creates an empty enforcer.
func NewEnforcer() *Enforcer {
	return &Enforcer{grants: make(map[string][]compiledGrant)}
}

// SetGrants replaces the grants for provider. Every pattern is compiled
// before any state changes, so a bad pattern leaves the enforcer untouched.
func (e *Enforcer) SetGrants(provider string, patterns []string) error {
	if provider == "" {
		return oops.Code("GRANT_INVALID").Errorf("provider name cannot be empty")
	}

	compiled := make([]compiledGrant, len(patterns))
	for i, pattern := range patterns {
		if pattern == "" {
			return oops.Code("GRANT_INVALID").
				With("provider", provider).
				With("index", i).
				Errorf("capability %d: empty capability pattern", i)
		}
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return oops.Code("GRANT_INVALID").
				With("provider", provider).
				With("pattern", pattern).
				Wrapf(err, "capability %d (%q)", i, pattern)
		}
		compiled[i] = compiledGrant{pattern: pattern, glob: g}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.grants == nil {
		e.grants = make(map[string][]compiledGrant)
	}
	e.grants[provider] = compiled
	return nil
}

// IsRegistered reports whether SetGrants has been called for provider.
func (e *Enforcer) IsRegistered(provider string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	_, ok := e.grants[provider]
	return ok
}

// RemoveGrants unregisters provider.
func (e *Enforcer) RemoveGrants(provider string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.grants, provider)
}

// GetGrants returns a copy of the patterns granted to provider, or nil.
func (e *Enforcer) GetGrants(provider string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	grants, ok := e.grants[provider]
	if !ok {
		return nil
	}
	patterns := make([]string, len(grants))
	for i, g := range grants {
		patterns[i] = g.pattern
	}
	return patterns
}

// ListProviders returns the registered provider names, sorted.
func (e *Enforcer) ListProviders() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.grants))
	for name := range e.grants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check reports whether provider holds capability. Unknown providers and
// empty capabilities are denied.
func (e *Enforcer) Check(provider, capability string) bool {
	if capability == "" {
		return false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, grant := range e.grants[provider] {
		if grant.glob.Match(capability) {
			return true
		}
	}
	return false
}
