// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package secretstore provides SecretStore backends for the gateway host:
// environment variables, an encrypted file and a chain over both.
package secretstore

import (
	"context"
	"errors"
	"os"

	"github.com/greentic/messaging-providers/internal/capability"
)

// Env reads secrets from environment variables, with an optional prefix.
type Env struct {
	Prefix string
	lookup func(string) (string, bool)
}

// NewEnv creates an environment-backed store.
func NewEnv(prefix string) *Env {
	return &Env{Prefix: prefix, lookup: os.LookupEnv}
}

// Get returns the variable Prefix+key. Empty values count as missing.
func (e *Env) Get(_ context.Context, key string) ([]byte, error) {
	lookup := e.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v, ok := lookup(e.Prefix + key)
	if !ok || v == "" {
		return nil, capability.ErrNotFound
	}
	return []byte(v), nil
}

// Chain queries stores in order. The first hit wins; errors other than
// capability.ErrNotFound stop the lookup.
type Chain struct {
	stores []capability.SecretStore
}

// NewChain creates a chain over stores.
func NewChain(stores ...capability.SecretStore) *Chain {
	return &Chain{stores: stores}
}

// Get implements capability.SecretStore.
func (c *Chain) Get(ctx context.Context, key string) ([]byte, error) {
	for _, s := range c.stores {
		v, err := s.Get(ctx, key)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, capability.ErrNotFound) {
			return nil, err
		}
	}
	return nil, capability.ErrNotFound
}
