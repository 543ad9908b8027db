// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package capability

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/greentic/messaging-providers/internal/core"
)

// MapSecrets is an in-memory SecretStore, used by tests and the dry-run
// tooling.
type MapSecrets map[string][]byte

// Get returns the secret for key or ErrNotFound.
func (m MapSecrets) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

// SecretString resolves key, probing the exact key, then its uppercase form,
// then its lowercase form. A miss yields the missing-secret error for key.
func SecretString(ctx context.Context, store SecretStore, key string) (string, error) {
	value, found, err := LookupSecret(ctx, store, key)
	if err != nil {
		return "", err
	}
	if !found {
		return "", core.ErrMissingSecret(key)
	}
	return value, nil
}

// LookupSecret is SecretString without the missing-secret error: found is
// false when no candidate key exists.
func LookupSecret(ctx context.Context, store SecretStore, key string) (value string, found bool, err error) {
	for _, candidate := range secretCandidates(key) {
		raw, err := store.Get(ctx, candidate)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return "", false, core.ErrTransport("secret store error: " + err.Error())
		}
		if !utf8.Valid(raw) {
			return "", false, core.ErrOther("secret %s is not valid utf-8", candidate)
		}
		return string(raw), true, nil
	}
	return "", false, nil
}

func secretCandidates(key string) []string {
	out := []string{key}
	for _, c := range []string{strings.ToUpper(key), strings.ToLower(key)} {
		seen := false
		for _, existing := range out {
			if existing == c {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, c)
		}
	}
	return out
}
