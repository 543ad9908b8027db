// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package goplugin provides a Host implementation for binary provider
// plugins using HashiCorp's go-plugin system over gRPC.
package goplugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"time"

	hashiplug "github.com/hashicorp/go-plugin"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/plugin"
	"github.com/greentic/messaging-providers/internal/provider"
	"github.com/greentic/messaging-providers/pkg/pluginsdk"
)

// DefaultInvokeTimeout bounds a single op call into a plugin.
const DefaultInvokeTimeout = 30 * time.Second

// Sentinel errors for programmatic error checking.
var (
	// ErrHostClosed is returned when operations are attempted on a closed host.
	ErrHostClosed = errors.New("host is closed")
	// ErrPluginNotLoaded is returned when operating on a plugin that isn't loaded.
	ErrPluginNotLoaded = errors.New("plugin not loaded")
	// ErrPluginAlreadyLoaded is returned when loading a plugin that's already loaded.
	ErrPluginAlreadyLoaded = errors.New("plugin already loaded")
)

// Compile-time interface check.
var _ plugin.Host = (*Host)(nil)

// PluginClient wraps go-plugin client for testability.
type PluginClient interface {
	// Client returns the gRPC client protocol.
	Client() (hashiplug.ClientProtocol, error)
	// Kill terminates the plugin process.
	Kill()
}

// ClientFactory creates plugin clients.
type ClientFactory interface {
	// NewClient creates a client for the given executable path.
	NewClient(execPath string) PluginClient
}

// DefaultClientFactory creates real go-plugin clients.
type DefaultClientFactory struct{}

// NewClient creates a real go-plugin client.
func (f *DefaultClientFactory) NewClient(execPath string) PluginClient {
	return hashiplug.NewClient(&hashiplug.ClientConfig{
		HandshakeConfig:  HandshakeConfig,
		Plugins:          PluginMap,
		Cmd:              exec.Command(execPath), // #nosec G204 -- execPath resolved from plugin manifest; manifests validated during discovery
		AllowedProtocols: []hashiplug.Protocol{hashiplug.ProtocolGRPC},
	})
}

// Host manages binary plugins via HashiCorp go-plugin.
type Host struct {
	enforcer      *capability.Enforcer
	clientFactory ClientFactory
	timeout       time.Duration
	plugins       map[string]*loadedPlugin
	mu            sync.RWMutex
	closed        bool
}

// loadedPlugin holds state for a single loaded binary plugin.
type loadedPlugin struct {
	manifest   *plugin.Manifest
	client     PluginClient
	provider   pluginsdk.Provider
	providerID string
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithClientFactory replaces the go-plugin client factory.
func WithClientFactory(f ClientFactory) HostOption {
	return func(h *Host) {
		h.clientFactory = f
	}
}

// WithInvokeTimeout overrides DefaultInvokeTimeout.
func WithInvokeTimeout(d time.Duration) HostOption {
	return func(h *Host) {
		h.timeout = d
	}
}

// NewHost creates a new binary plugin host.
// Panics if enforcer is nil.
func NewHost(enforcer *capability.Enforcer, opts ...HostOption) *Host {
	if enforcer == nil {
		panic("goplugin: enforcer cannot be nil")
	}
	h := &Host{
		enforcer:      enforcer,
		clientFactory: &DefaultClientFactory{},
		timeout:       DefaultInvokeTimeout,
		plugins:       make(map[string]*loadedPlugin),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.clientFactory == nil {
		panic("goplugin: factory cannot be nil")
	}
	return h
}

// Load launches a plugin, asks it to describe itself and returns a
// definition that forwards every op to the plugin process.
func (h *Host) Load(ctx context.Context, manifest *plugin.Manifest, dir string) (*provider.Definition, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHostClosed
	}

	if _, ok := h.plugins[manifest.Name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginAlreadyLoaded, manifest.Name)
	}

	if manifest.BinaryPlugin == nil {
		return nil, fmt.Errorf("plugin %s is not a binary plugin", manifest.Name)
	}

	execPath := filepath.Join(dir, manifest.BinaryPlugin.Executable)
	if _, err := os.Stat(execPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("plugin executable not found: %s: %w", execPath, err)
		}
		return nil, fmt.Errorf("cannot access plugin executable %s: %w", execPath, err)
	}

	client := h.clientFactory.NewClient(execPath)

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to connect to plugin %s: %w", manifest.Name, err)
	}

	raw, err := rpcClient.Dispense(pluginsdk.PluginName)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to dispense plugin %s: %w", manifest.Name, err)
	}

	remote, ok := raw.(pluginsdk.Provider)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("plugin %s does not implement Provider", manifest.Name)
	}

	describeCtx, cancel := context.WithTimeout(ctx, h.timeout)
	describe, err := remote.Describe(describeCtx)
	cancel()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("describe plugin %s: %w", manifest.Name, err)
	}
	var payload provider.DescribePayload
	if err := json.Unmarshal(describe, &payload); err != nil {
		client.Kill()
		return nil, fmt.Errorf("plugin %s returned invalid describe payload: %w", manifest.Name, err)
	}
	id := payload.Provider
	if id == "" {
		id = "messaging-provider-" + manifest.Name
	}

	if err := h.enforcer.SetGrants(id, manifest.Capabilities); err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to set capabilities for plugin %s: %w", manifest.Name, err)
	}

	h.plugins[manifest.Name] = &loadedPlugin{
		manifest:   manifest,
		client:     client,
		provider:   remote,
		providerID: id,
	}

	slog.DebugContext(ctx, "binary plugin started",
		"plugin", manifest.Name,
		"provider", id,
		"executable", execPath)

	return &provider.Definition{
		ID:              id,
		Type:            manifest.ProviderType,
		Prefix:          manifest.Name,
		Name:            manifest.Name,
		Ops:             manifest.Ops,
		Capabilities:    manifest.Capabilities,
		ConfigSchemaRef: manifest.ConfigSchemaRef,
		StateSchemaRef:  manifest.StateSchemaRef,
		Remote:          h.remote(manifest.Name),
	}, nil
}

// remote forwards ops to the named plugin.
//
// The RLock is released before making the gRPC call to avoid serializing
// all plugin calls. If Close() or Unload() runs concurrently, the call
// fails once the plugin process is killed.
func (h *Host) remote(name string) provider.RemoteFunc {
	return func(ctx context.Context, op string, input []byte, tenant *core.TenantCtx) ([]byte, error) {
		h.mu.RLock()
		if h.closed {
			h.mu.RUnlock()
			return nil, ErrHostClosed
		}
		p, ok := h.plugins[name]
		h.mu.RUnlock()

		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrPluginNotLoaded, name)
		}

		req := pluginsdk.Request{Op: op, Tenant: toSDKTenant(tenant)}
		if len(input) > 0 {
			if !json.Valid(input) {
				return nil, fmt.Errorf("plugin %s: input for %s is not JSON", name, op)
			}
			req.Input = input
		}

		callCtx, cancel := context.WithTimeout(ctx, h.timeout)
		defer cancel()

		out, err := p.provider.Invoke(callCtx, req)
		if err != nil {
			return nil, fmt.Errorf("plugin %s %s failed: %w", name, op, err)
		}
		return out, nil
	}
}

// Unload tears down a plugin.
func (h *Host) Unload(_ context.Context, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHostClosed
	}

	p, ok := h.plugins[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPluginNotLoaded, name)
	}

	if p.client != nil {
		p.client.Kill()
	}
	h.enforcer.RemoveGrants(p.providerID)

	delete(h.plugins, name)
	return nil
}

// Plugins returns names of all loaded plugins.
func (h *Host) Plugins() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return nil
	}

	names := make([]string, 0, len(h.plugins))
	for name := range h.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close shuts down the host and all plugins.
func (h *Host) Close(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, p := range h.plugins {
		if p.client != nil {
			p.client.Kill()
		}
		h.enforcer.RemoveGrants(p.providerID)
	}

	h.closed = true
	clear(h.plugins)
	return nil
}
