// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package plugin

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/keys"
	"github.com/greentic/messaging-providers/internal/provider"
)

// ErrPluginNotLoaded is returned when operating on a plugin that isn't loaded.
var ErrPluginNotLoaded = errors.New("plugin not loaded")

// Manager discovers plugin manifests and binds them to a provider
// registry.
type Manager struct {
	pluginsDir  string
	registry    *provider.Registry
	enforcer    *capability.Enforcer
	binaryHost  Host
	hostVersion string
	loaded      map[string]*Loaded
	mu          sync.RWMutex
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithBinaryHost sets the host that runs binary plugins.
func WithBinaryHost(h Host) ManagerOption {
	return func(m *Manager) {
		m.binaryHost = h
	}
}

// WithEnforcer records the capability grants of built-in plugins in e.
// Binary hosts manage their own grants.
func WithEnforcer(e *capability.Enforcer) ManagerOption {
	return func(m *Manager) {
		m.enforcer = e
	}
}

// WithHostVersion sets the version checked against manifest requires.
func WithHostVersion(v string) ManagerOption {
	return func(m *Manager) {
		m.hostVersion = v
	}
}

// NewManager creates a plugin manager binding plugins into registry.
func NewManager(pluginsDir string, registry *provider.Registry, opts ...ManagerOption) *Manager {
	m := &Manager{
		pluginsDir:  pluginsDir,
		registry:    registry,
		hostVersion: "0.0.0",
		loaded:      make(map[string]*Loaded),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DiscoveredPlugin contains a manifest and its directory.
type DiscoveredPlugin struct {
	Manifest *Manifest
	Dir      string
}

// ArtifactPath is the file whose digest identifies the plugin: the
// executable of a binary plugin, the manifest otherwise.
func (dp *DiscoveredPlugin) ArtifactPath() string {
	if dp.Manifest.BinaryPlugin != nil {
		return filepath.Join(dp.Dir, dp.Manifest.BinaryPlugin.Executable)
	}
	return filepath.Join(dp.Dir, ManifestFile)
}

// Loaded is a plugin bound to a provider definition.
type Loaded struct {
	*DiscoveredPlugin
	Definition *provider.Definition
}

// Discover finds all valid plugins in the plugins directory.
// Invalid plugins are logged and skipped.
func (m *Manager) Discover(_ context.Context) ([]*DiscoveredPlugin, error) {
	entries, err := os.ReadDir(m.pluginsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No plugins directory
		}
		return nil, fmt.Errorf("failed to read plugins directory: %w", err)
	}

	var plugins []*DiscoveredPlugin
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		pluginDir := filepath.Join(m.pluginsDir, entry.Name())
		data, err := os.ReadFile(filepath.Join(pluginDir, ManifestFile)) //nolint:gosec // path is constructed from ReadDir entries
		if err != nil {
			slog.Warn("skipping plugin without manifest",
				"dir", entry.Name(),
				"error", err)
			continue
		}

		manifest, err := ParseManifest(data)
		if err != nil {
			slog.Warn("skipping plugin with invalid manifest",
				"dir", entry.Name(),
				"error", err)
			continue
		}

		plugins = append(plugins, &DiscoveredPlugin{
			Manifest: manifest,
			Dir:      pluginDir,
		})
	}

	return plugins, nil
}

// LoadAll discovers and loads all plugins in the plugins directory.
// A plugin that fails to load is logged and skipped.
func (m *Manager) LoadAll(ctx context.Context) error {
	discovered, err := m.Discover(ctx)
	if err != nil {
		return err
	}

	for _, dp := range discovered {
		if _, err := m.Load(ctx, dp); err != nil {
			slog.ErrorContext(ctx, "failed to load plugin",
				"plugin", dp.Manifest.Name,
				"error", err)
		}
	}
	return nil
}

// Load binds one discovered plugin. A binary plugin without a configured
// binary host is skipped with a warning and yields a nil definition.
func (m *Manager) Load(ctx context.Context, dp *DiscoveredPlugin) (*provider.Definition, error) {
	name := dp.Manifest.Name
	if err := dp.Manifest.CheckHost(m.hostVersion); err != nil {
		return nil, fmt.Errorf("plugin %s: %w", name, err)
	}

	var def *provider.Definition
	switch dp.Manifest.Kind() {
	case KindBuiltin:
		d, ok := m.registry.Get(dp.Manifest.ProviderType)
		if !ok {
			return nil, fmt.Errorf("plugin %s: no built-in provider for provider_type %s", name, dp.Manifest.ProviderType)
		}
		if missing := dp.Manifest.UnsupportedOps(d.Supports); len(missing) > 0 {
			return nil, fmt.Errorf("plugin %s: ops not supported by %s: %s", name, d.ID, strings.Join(missing, ", "))
		}
		if m.enforcer != nil {
			if err := m.enforcer.SetGrants(d.ID, dp.Manifest.Capabilities); err != nil {
				return nil, fmt.Errorf("plugin %s: %w", name, err)
			}
		}
		def = d
	case KindBinary:
		if m.binaryHost == nil {
			slog.WarnContext(ctx, "no binary host configured, skipping binary plugin",
				"plugin", name)
			return nil, nil
		}
		d, err := m.binaryHost.Load(ctx, dp.Manifest, dp.Dir)
		if err != nil {
			return nil, fmt.Errorf("load plugin %s: %w", name, err)
		}
		m.registry.Register(d)
		def = d
	}

	m.mu.Lock()
	m.loaded[name] = &Loaded{DiscoveredPlugin: dp, Definition: def}
	m.mu.Unlock()

	slog.InfoContext(ctx, "loaded plugin",
		"plugin", name,
		"kind", string(dp.Manifest.Kind()),
		"provider", def.ID,
		"version", dp.Manifest.Version)
	return def, nil
}

// Get returns a loaded plugin by name.
func (m *Manager) Get(name string) (*Loaded, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.loaded[name]
	return l, ok
}

// ListPlugins returns names of all loaded plugins.
func (m *Manager) ListPlugins() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.loaded))
	for name := range m.loaded {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// Install records the provenance of a loaded plugin for tenant. The
// describe payload is fetched through disp so binary plugins report their
// own.
func (m *Manager) Install(ctx context.Context, disp *provider.Dispatcher, state capability.StateStore, name string, tenant core.TenantCtx) (keys.Provenance, error) {
	l, ok := m.Get(name)
	if !ok {
		return keys.Provenance{}, fmt.Errorf("%w: %s", ErrPluginNotLoaded, name)
	}

	describe, err := disp.Invoke(ctx, provider.Call{Provider: l.Definition.ID, Op: provider.OpDescribe, Tenant: &tenant})
	if err != nil {
		return keys.Provenance{}, fmt.Errorf("describe %s: %w", name, err)
	}
	var payload struct {
		SchemaHash string `json:"schema_hash"`
	}
	if err := json.Unmarshal(describe, &payload); err != nil {
		return keys.Provenance{}, fmt.Errorf("describe %s: %w", name, err)
	}
	artifact, err := ArtifactDigest(l.ArtifactPath())
	if err != nil {
		return keys.Provenance{}, err
	}

	p := keys.Provenance{
		DescribeHash:   Digest(describe),
		ArtifactDigest: artifact,
		SchemaHash:     payload.SchemaHash,
	}
	scope := keys.NewScope(l.Definition.Prefix, string(tenant.Tenant), tenant.Team)
	if err := keys.WriteProvenance(ctx, state, scope, p, &tenant); err != nil {
		return keys.Provenance{}, fmt.Errorf("write provenance for %s: %w", name, err)
	}
	slog.InfoContext(ctx, "plugin installed",
		"plugin", name,
		"tenant", string(tenant.Tenant),
		"artifact_digest", artifact)
	return p, nil
}

// Digest returns "blake3:<hex>" of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return "blake3:" + hex.EncodeToString(sum[:])
}

// ArtifactDigest returns "blake3:<hex>" of the file at path.
func ArtifactDigest(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from a validated manifest
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read artifact: %w", err)
	}
	return "blake3:" + hex.EncodeToString(h.Sum(nil)), nil
}

// Close shuts down the manager and the binary host.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Clear loaded map first to ensure consistent state even if close fails.
	m.loaded = make(map[string]*Loaded)

	if m.binaryHost != nil {
		if err := m.binaryHost.Close(ctx); err != nil {
			return fmt.Errorf("close binary host: %w", err)
		}
	}
	return nil
}
