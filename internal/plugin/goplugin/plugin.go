// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package goplugin

import (
	"context"

	hashiplug "github.com/hashicorp/go-plugin"

	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/provider"
	"github.com/greentic/messaging-providers/pkg/pluginsdk"
)

// HandshakeConfig is imported from pluginsdk to ensure host and plugins
// use identical configuration. Do not define locally to prevent drift.
var HandshakeConfig = pluginsdk.HandshakeConfig

// PluginMap is the map of plugins we can dispense.
var PluginMap = map[string]hashiplug.Plugin{
	pluginsdk.PluginName: &pluginsdk.GRPCPlugin{},
}

// DefinitionProvider serves a provider definition as a binary plugin. It
// runs every op through a local dispatcher, so plugin and in-process
// behavior match.
type DefinitionProvider struct {
	id   string
	disp *provider.Dispatcher
}

var _ pluginsdk.Provider = (*DefinitionProvider)(nil)

// NewDefinitionProvider wraps def. Options configure the dispatcher, for
// example its capabilities.
func NewDefinitionProvider(def *provider.Definition, opts ...provider.DispatcherOption) (*DefinitionProvider, error) {
	disp, err := provider.NewDispatcher(provider.NewRegistry(def), opts...)
	if err != nil {
		return nil, err
	}
	return &DefinitionProvider{id: def.ID, disp: disp}, nil
}

// Describe implements pluginsdk.Provider.
func (p *DefinitionProvider) Describe(ctx context.Context) ([]byte, error) {
	return p.disp.Invoke(ctx, provider.Call{Provider: p.id, Op: provider.OpDescribe})
}

// Invoke implements pluginsdk.Provider.
func (p *DefinitionProvider) Invoke(ctx context.Context, req pluginsdk.Request) ([]byte, error) {
	return p.disp.Invoke(ctx, provider.Call{
		Provider: p.id,
		Op:       req.Op,
		Input:    req.Input,
		Tenant:   fromSDKTenant(req.Tenant),
	})
}

func toSDKTenant(t *core.TenantCtx) *pluginsdk.Tenant {
	if t == nil {
		return nil
	}
	return &pluginsdk.Tenant{
		Env:       string(t.Env),
		Tenant:    string(t.Tenant),
		Team:      t.Team,
		User:      t.User,
		SessionID: t.SessionID,
	}
}

func fromSDKTenant(t *pluginsdk.Tenant) *core.TenantCtx {
	if t == nil {
		return nil
	}
	return &core.TenantCtx{
		Env:       core.EnvID(t.Env),
		Tenant:    core.TenantID(t.Tenant),
		Team:      t.Team,
		User:      t.User,
		SessionID: t.SessionID,
	}
}
