// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package keys builds tenant-scoped state store keys for messaging
// providers and migrates values stored under older key layouts.
//
// Canonical layout:
//
//	providers:messaging:<provider>:tenants:<tenant>[:teams:<team>]:<suffix>
//
// where suffix is "config", "provenance" or "state:<name>". Inputs are
// trimmed and a blank team selects the team-less form.
package keys

import (
	"strings"
)

// Key suffixes.
const (
	SuffixConfig     = "config"
	SuffixProvenance = "provenance"
	statePrefix      = "state:"
)

// Scope identifies the owner of a key.
type Scope struct {
	Provider string
	Tenant   string
	Team     string
}

// NewScope trims its inputs.
func NewScope(provider, tenant, team string) Scope {
	return Scope{
		Provider: strings.TrimSpace(provider),
		Tenant:   strings.TrimSpace(tenant),
		Team:     strings.TrimSpace(team),
	}
}

// Base returns the canonical key prefix without a suffix.
func (s Scope) Base() string {
	s = NewScope(s.Provider, s.Tenant, s.Team)
	base := "providers:messaging:" + s.Provider + ":tenants:" + s.Tenant
	if s.Team != "" {
		base += ":teams:" + s.Team
	}
	return base
}

// Config returns the canonical config key.
func (s Scope) Config() string { return s.Base() + ":" + SuffixConfig }

// Provenance returns the canonical provenance key.
func (s Scope) Provenance() string { return s.Base() + ":" + SuffixProvenance }

// State returns the canonical key of the named provider state entry.
func (s Scope) State(name string) string {
	return s.Base() + ":" + statePrefix + strings.TrimSpace(name)
}

// StateNamespace is the prefix shared by every State key of s.
func (s Scope) StateNamespace() string { return s.Base() + ":" + statePrefix }

// LegacyConfig lists older config key layouts in probe order.
func (s Scope) LegacyConfig() []string { return s.legacy(SuffixConfig) }

// LegacyProvenance lists older provenance key layouts in probe order.
func (s Scope) LegacyProvenance() []string { return s.legacy(SuffixProvenance) }

// LegacyState lists older layouts of a state key in probe order.
func (s Scope) LegacyState(name string) []string {
	return s.legacy(statePrefix + strings.TrimSpace(name))
}

// legacy returns team-scoped layouts first when a team is set, then the
// tenant-wide layouts they were migrated from.
func (s Scope) legacy(suffix string) []string {
	s = NewScope(s.Provider, s.Tenant, s.Team)
	p, t := s.Provider, s.Tenant

	var bases []string
	if s.Team != "" {
		bases = append(bases,
			"providers:"+p+":tenants:"+t+":teams:"+s.Team,
			"messaging:"+p+":tenants:"+t+":teams:"+s.Team,
			"messaging:"+p+":tenant:"+t+":team:"+s.Team,
		)
	}
	bases = append(bases,
		"providers:"+p+":tenants:"+t,
		"messaging:"+p+":tenants:"+t,
		"messaging:"+p+":tenant:"+t,
	)

	out := make([]string, 0, len(bases))
	for _, b := range bases {
		out = append(out, b+":"+suffix)
	}
	return out
}

// ConfigKey is shorthand for NewScope(provider, tenant, team).Config().
func ConfigKey(provider, tenant, team string) string {
	return NewScope(provider, tenant, team).Config()
}

// ProvenanceKey is shorthand for NewScope(provider, tenant, team).Provenance().
func ProvenanceKey(provider, tenant, team string) string {
	return NewScope(provider, tenant, team).Provenance()
}

// StateKey is shorthand for NewScope(provider, tenant, team).State(name).
func StateKey(provider, tenant, team, name string) string {
	return NewScope(provider, tenant, team).State(name)
}

// ProvisionConfigKey is the key a provisioning plan writes config.set
// actions to.
func ProvisionConfigKey(scope, key string) string {
	return "config/" + scope + "/" + key
}

// ProvisionSecretKey is the key a provisioning plan writes secrets.put
// actions to.
func ProvisionSecretKey(scope, key string) string {
	return "secrets/" + scope + "/" + key
}
