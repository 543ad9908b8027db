// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package provider

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// Registry maps provider names to definitions. A definition is reachable
// by its id, provider type and prefix. It is safe for concurrent use.
type Registry struct {
	byName map[string]*Definition
	defs   []*Definition
	mu     sync.RWMutex
}

// NewRegistry creates a registry holding defs.
func NewRegistry(defs ...*Definition) *Registry {
	r := &Registry{byName: make(map[string]*Definition)}
	for _, d := range defs {
		r.Register(d)
	}
	return r
}

// Register adds d. A name already taken by another definition is
// overwritten with a warning.
func (r *Registry) Register(d *Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range d.Aliases() {
		if existing, ok := r.byName[name]; ok && existing != d {
			slog.Warn("provider conflict: overwriting existing provider",
				"name", name,
				"previous", existing.ID,
				"new", d.ID)
		}
		r.byName[name] = d
	}
	r.defs = slices.DeleteFunc(r.defs, func(e *Definition) bool { return e.ID == d.ID })
	r.defs = append(r.defs, d)
}

// Get looks up a definition by id, type or prefix, case-insensitively.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// All returns the registered definitions sorted by id.
func (r *Registry) All() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := append([]*Definition(nil), r.defs...)
	slices.SortFunc(out, func(a, b *Definition) int { return strings.Compare(a.ID, b.ID) })
	return out
}
