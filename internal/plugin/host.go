// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package plugin discovers provider plugin manifests and binds them to the
// provider registry, either to a built-in provider or to a binary plugin
// launched through a Host.
package plugin

import (
	"context"

	"github.com/greentic/messaging-providers/internal/provider"
)

// Host manages a specific plugin runtime type.
type Host interface {
	// Load starts a plugin and returns the definition that forwards ops
	// to it.
	Load(ctx context.Context, manifest *Manifest, dir string) (*provider.Definition, error)

	// Unload tears down a plugin.
	Unload(ctx context.Context, name string) error

	// Plugins returns names of all loaded plugins.
	Plugins() []string

	// Close shuts down the host and all plugins.
	Close(ctx context.Context) error
}
