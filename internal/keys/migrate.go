// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package keys

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/core"
)

// Lookup is the result of a probing read.
type Lookup struct {
	Value []byte
	// Key is where Value was found.
	Key string
	// Legacy reports that Key is not the canonical key.
	Legacy bool
	// Rewritten reports that Value was copied to the canonical key.
	Rewritten bool
}

// ReadOptions control Read.
type ReadOptions struct {
	// DryRun disables the canonical rewrite after a legacy hit.
	DryRun bool
	Tenant *core.TenantCtx
}

// Read probes canonical and then each legacy key in order. The first hit
// wins; a legacy hit is copied to canonical unless opts.DryRun is set.
// Legacy entries are left in place. Misses return capability.ErrNotFound.
func Read(ctx context.Context, state capability.StateStore, canonical string, legacy []string, opts ReadOptions) (Lookup, error) {
	value, err := state.Read(ctx, canonical, opts.Tenant)
	if err == nil {
		return Lookup{Value: value, Key: canonical}, nil
	}
	if !errors.Is(err, capability.ErrNotFound) {
		return Lookup{}, err
	}

	for _, key := range legacy {
		if key == canonical {
			continue
		}
		value, err := state.Read(ctx, key, opts.Tenant)
		if errors.Is(err, capability.ErrNotFound) {
			continue
		}
		if err != nil {
			return Lookup{}, err
		}

		found := Lookup{Value: value, Key: key, Legacy: true}
		if opts.DryRun {
			slog.InfoContext(ctx, "legacy key found, rewrite skipped in dry run",
				"legacy_key", key, "canonical_key", canonical)
			return found, nil
		}
		if err := state.Write(ctx, canonical, value, opts.Tenant); err != nil {
			slog.WarnContext(ctx, "legacy key rewrite failed",
				"legacy_key", key, "canonical_key", canonical, "error", err)
			return found, nil
		}
		found.Rewritten = true
		slog.InfoContext(ctx, "legacy key migrated",
			"legacy_key", key, "canonical_key", canonical)
		return found, nil
	}
	return Lookup{}, capability.ErrNotFound
}

// ReadConfig reads the scope's config, probing legacy layouts.
func ReadConfig(ctx context.Context, state capability.StateStore, s Scope, opts ReadOptions) (Lookup, error) {
	return Read(ctx, state, s.Config(), s.LegacyConfig(), opts)
}

// Provenance records which describe payload and artifact a tenant
// installed.
type Provenance struct {
	DescribeHash   string `json:"describe_hash"`
	ArtifactDigest string `json:"artifact_digest"`
	SchemaHash     string `json:"schema_hash"`
}

// WriteProvenance stores p as JSON under the scope's provenance key.
func WriteProvenance(ctx context.Context, state capability.StateStore, s Scope, p Provenance, tenant *core.TenantCtx) error {
	data, err := json.Marshal(p)
	if err != nil {
		return oops.Code("PROVENANCE_ENCODE").Wrap(err)
	}
	return state.Write(ctx, s.Provenance(), data, tenant)
}

// ReadProvenance loads the scope's provenance, probing legacy layouts.
func ReadProvenance(ctx context.Context, state capability.StateStore, s Scope, opts ReadOptions) (Provenance, error) {
	found, err := Read(ctx, state, s.Provenance(), s.LegacyProvenance(), opts)
	if err != nil {
		return Provenance{}, err
	}
	var p Provenance
	if err := json.Unmarshal(found.Value, &p); err != nil {
		return Provenance{}, oops.Code("PROVENANCE_DECODE").With("key", found.Key).Wrap(err)
	}
	return p, nil
}
