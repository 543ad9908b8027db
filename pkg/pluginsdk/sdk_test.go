// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package pluginsdk_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/greentic/messaging-providers/pkg/pluginsdk"
)

type echoProvider struct {
	last pluginsdk.Request
	err  error
}

func (p *echoProvider) Describe(_ context.Context) ([]byte, error) {
	return []byte(`{"provider":"messaging-provider-echo"}`), nil
}

func (p *echoProvider) Invoke(_ context.Context, req pluginsdk.Request) ([]byte, error) {
	p.last = req
	if p.err != nil {
		return nil, p.err
	}
	return req.Input, nil
}

// dial serves impl on an in-memory listener and returns a client for it.
func dial(t *testing.T, impl pluginsdk.Provider) *pluginsdk.Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	pluginsdk.RegisterProviderServer(s, impl)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return pluginsdk.NewClient(conn)
}

func TestClient_RoundTrip(t *testing.T) {
	impl := &echoProvider{}
	client := dial(t, impl)
	ctx := context.Background()

	desc, err := client.Describe(ctx)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if string(desc) != `{"provider":"messaging-provider-echo"}` {
		t.Errorf("unexpected describe payload: %s", desc)
	}

	out, err := client.Invoke(ctx, pluginsdk.Request{
		Op:     "send",
		Input:  json.RawMessage(`{"text":"hi"}`),
		Tenant: &pluginsdk.Tenant{Env: "dev", Tenant: "acme"},
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if string(out) != `{"text":"hi"}` {
		t.Errorf("unexpected output: %s", out)
	}
	if impl.last.Op != "send" || impl.last.Tenant == nil || impl.last.Tenant.Tenant != "acme" {
		t.Errorf("request not delivered intact: %+v", impl.last)
	}
}

func TestClient_InvokeError(t *testing.T) {
	client := dial(t, &echoProvider{err: errors.New("boom")})

	_, err := client.Invoke(context.Background(), pluginsdk.Request{Op: "send"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "invoke send: boom") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestGRPCPlugin_GRPCServer_NilProvider(t *testing.T) {
	p := &pluginsdk.GRPCPlugin{}
	s := grpc.NewServer()
	defer s.Stop()

	err := p.GRPCServer(nil, s)
	if err == nil || err.Error() != "pluginsdk: provider implementation is nil" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestGRPCPlugin_GRPCServer_RegistersService(t *testing.T) {
	p := &pluginsdk.GRPCPlugin{Impl: &echoProvider{}}
	s := grpc.NewServer()
	defer s.Stop()

	if err := p.GRPCServer(nil, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	info, ok := s.GetServiceInfo()[pluginsdk.ServiceName]
	if !ok {
		t.Fatal("expected Provider service to be registered")
	}
	if len(info.Methods) != 2 {
		t.Errorf("expected 2 methods, got %d", len(info.Methods))
	}
}

func TestServeConfig_ProviderRequired(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Serve should panic with nil Provider")
		}
	}()

	pluginsdk.Serve(&pluginsdk.ServeConfig{Provider: nil})
}

func TestServeConfig_ConfigRequired(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Serve should panic with nil config")
		}
	}()

	pluginsdk.Serve(nil)
}

func TestHandshakeConfig(t *testing.T) {
	if pluginsdk.HandshakeConfig.ProtocolVersion != 1 {
		t.Error("HandshakeConfig protocol version should be 1")
	}
	if pluginsdk.HandshakeConfig.MagicCookieKey != "GREENTIC_MESSAGING_PLUGIN" {
		t.Error("HandshakeConfig magic cookie key mismatch")
	}
}
