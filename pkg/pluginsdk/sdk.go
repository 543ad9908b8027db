// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package pluginsdk provides the SDK for building out-of-process messaging
// provider plugins.
//
// Binary plugins talk to the host over gRPC using the HashiCorp go-plugin
// framework. A plugin implements Provider and calls Serve from main:
//
//	type EchoProvider struct{}
//
//	func (EchoProvider) Describe(ctx context.Context) ([]byte, error) {
//		return []byte(`{"provider":"messaging-provider-echo"}`), nil
//	}
//
//	func (EchoProvider) Invoke(ctx context.Context, req pluginsdk.Request) ([]byte, error) {
//		return req.Input, nil
//	}
//
//	func main() {
//		pluginsdk.Serve(&pluginsdk.ServeConfig{Provider: EchoProvider{}})
//	}
package pluginsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	hashiplug "github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// PluginName is the name the provider is dispensed under.
const PluginName = "provider"

// HandshakeConfig is the go-plugin handshake configuration.
// Both host and plugins must use the same values.
var HandshakeConfig = hashiplug.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "GREENTIC_MESSAGING_PLUGIN",
	MagicCookieValue: "messaging-provider-v1",
}

// Tenant is the tenant context of an invocation.
type Tenant struct {
	Env       string `json:"env"`
	Tenant    string `json:"tenant"`
	Team      string `json:"team,omitempty"`
	User      string `json:"user,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Request is one op invocation.
type Request struct {
	// Op is the op name as the caller sent it; aliases are not resolved.
	Op string `json:"op"`
	// Input is the op input, JSON for every op.
	Input json.RawMessage `json:"input,omitempty"`
	// Tenant is nil when the caller gave no tenant.
	Tenant *Tenant `json:"tenant,omitempty"`
}

// Provider is the interface binary plugins implement.
type Provider interface {
	// Describe returns the describe payload as JSON.
	Describe(ctx context.Context) ([]byte, error)
	// Invoke runs an op and returns its output bytes. Op failures belong
	// in the output as {ok:false,error}; a returned error means the op
	// could not run at all.
	Invoke(ctx context.Context, req Request) ([]byte, error)
}

// ServeConfig configures the plugin server.
type ServeConfig struct {
	// Provider is the provider implementation.
	// Required; Serve will panic if nil.
	Provider Provider
}

// Serve starts the plugin server. This should be called from main().
// It blocks and never returns under normal operation.
func Serve(config *ServeConfig) {
	if config == nil {
		panic("pluginsdk: config cannot be nil")
	}
	if config.Provider == nil {
		panic("pluginsdk: config.Provider cannot be nil")
	}
	hashiplug.Serve(&hashiplug.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins: map[string]hashiplug.Plugin{
			PluginName: &GRPCPlugin{Impl: config.Provider},
		},
		GRPCServer: hashiplug.DefaultGRPCServer,
	})
}

// GRPCPlugin implements go-plugin's Plugin interface for gRPC. Impl is
// only used on the plugin side.
type GRPCPlugin struct {
	hashiplug.NetRPCUnsupportedPlugin
	Impl Provider
}

// GRPCServer registers the provider service (called by plugin process).
func (p *GRPCPlugin) GRPCServer(_ *hashiplug.GRPCBroker, s *grpc.Server) error {
	if p.Impl == nil {
		return errors.New("pluginsdk: provider implementation is nil")
	}
	RegisterProviderServer(s, p.Impl)
	return nil
}

// GRPCClient returns a provider client (called by host process).
func (p *GRPCPlugin) GRPCClient(_ context.Context, _ *hashiplug.GRPCBroker, c *grpc.ClientConn) (interface{}, error) {
	return NewClient(c), nil
}

// Service and method names of the provider gRPC service.
const (
	ServiceName    = "greentic.messaging.plugin.v1.Provider"
	describeMethod = "/" + ServiceName + "/Describe"
	invokeMethod   = "/" + ServiceName + "/Invoke"
)

// The service carries JSON documents inside protobuf well-known wrapper
// messages, so no generated code is involved.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Provider)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Describe", Handler: describeHandler},
		{MethodName: "Invoke", Handler: invokeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "greentic/messaging/plugin/v1/provider",
}

// RegisterProviderServer registers impl on s.
func RegisterProviderServer(s grpc.ServiceRegistrar, impl Provider) {
	s.RegisterService(&serviceDesc, impl)
}

func describeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) { //nolint:revive // grpc.MethodHandler signature
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, _ any) (any, error) {
		out, err := srv.(Provider).Describe(ctx)
		if err != nil {
			return nil, err
		}
		return wrapperspb.Bytes(out), nil
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: describeMethod}, call)
}

func invokeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) { //nolint:revive // grpc.MethodHandler signature
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		var r Request
		if err := json.Unmarshal(req.(*wrapperspb.BytesValue).GetValue(), &r); err != nil {
			return nil, fmt.Errorf("decode request: %w", err)
		}
		out, err := srv.(Provider).Invoke(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("invoke %s: %w", r.Op, err)
		}
		return wrapperspb.Bytes(out), nil
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: invokeMethod}, call)
}

// Client calls a provider over a gRPC connection. It implements Provider.
type Client struct {
	conn grpc.ClientConnInterface
}

var _ Provider = (*Client)(nil)

// NewClient returns a client using conn.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Describe implements Provider.
func (c *Client) Describe(ctx context.Context) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.conn.Invoke(ctx, describeMethod, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}

// Invoke implements Provider.
func (c *Client) Invoke(ctx context.Context, req Request) ([]byte, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	out := new(wrapperspb.BytesValue)
	if err := c.conn.Invoke(ctx, invokeMethod, wrapperspb.Bytes(raw), out); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}
