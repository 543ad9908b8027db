// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package capability

import (
	"context"
	"strings"
	"sync"

	"github.com/greentic/messaging-providers/internal/core"
)

// MemoryState is a mutex-guarded StateStore. Values live only as long as
// the MemoryState itself, so it serves tests and single-process dry runs;
// durable state comes from the postgres or sqlite stores. Tenant context
// does not partition keys because namespaced keys already embed the tenant.
type MemoryState struct {
	mu     sync.Mutex
	values map[string][]byte
	writes int
}

// NewMemoryState creates an empty store.
func NewMemoryState() *MemoryState {
	return &MemoryState{values: make(map[string][]byte)}
}

// Read returns a copy of the stored value or ErrNotFound.
func (m *MemoryState) Read(_ context.Context, key string, _ *core.TenantCtx) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Write stores a copy of value.
func (m *MemoryState) Write(_ context.Context, key string, value []byte, _ *core.TenantCtx) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.values == nil {
		m.values = make(map[string][]byte)
	}
	m.values[key] = append([]byte(nil), value...)
	m.writes++
	return nil
}

// Delete removes key. Missing keys are not an error.
func (m *MemoryState) Delete(_ context.Context, key string, _ *core.TenantCtx) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}

// DeletePrefix removes every key starting with prefix and reports how many
// were removed.
func (m *MemoryState) DeletePrefix(_ context.Context, prefix string, _ *core.TenantCtx) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k := range m.values {
		if strings.HasPrefix(k, prefix) {
			delete(m.values, k)
			removed++
		}
	}
	return removed, nil
}

// Keys returns the stored keys in no particular order.
func (m *MemoryState) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	return keys
}

// Writes returns the number of successful writes.
func (m *MemoryState) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
