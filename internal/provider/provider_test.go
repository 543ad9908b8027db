// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package provider_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/capability/capabilitytest"
	"github.com/greentic/messaging-providers/internal/codec"
	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/provider"
	"github.com/greentic/messaging-providers/internal/provider/dummy"
	"github.com/greentic/messaging-providers/internal/provider/providertest"
	"github.com/greentic/messaging-providers/internal/runtimeconfig"
	"github.com/greentic/messaging-providers/pkg/errutil"
)

func newEchoDefinition(id string, handler provider.Handler) *provider.Definition {
	return &provider.Definition{
		ID:     "messaging-provider-" + id,
		Type:   "messaging." + id,
		Prefix: id,
		Name:   "Echo",
		Ops:    []string{provider.OpSend},
		Config: provider.NewConfig(id).Bool("enabled", true).Build(),
		Handlers: map[string]provider.Handler{
			provider.OpSend: handler,
		},
	}
}

func TestMessageID_StableAcrossKeyOrder(t *testing.T) {
	a, da := provider.MessageID([]byte(`{"a":1,"b":{"y":2,"x":1}}`))
	b, db := provider.MessageID([]byte(`{"b":{"x":1,"y":2},"a":1}`))

	assert.Equal(t, a, b)
	assert.Equal(t, da, db)
	assert.Len(t, da, 64)
	assert.Len(t, a, 36)
}

func TestMessageID_NonJSONIsHashedAsIs(t *testing.T) {
	a, _ := provider.MessageID([]byte("raw bytes"))
	b, _ := provider.MessageID([]byte("raw bytes"))
	c, _ := provider.MessageID([]byte("other bytes"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestCanonicalOp(t *testing.T) {
	tests := []struct {
		op   string
		want string
	}{
		{"run", "send"},
		{"send-message", "send"},
		{"handle-webhook", "ingest_http"},
		{"render-plan", "render_plan"},
		{"format-message", "encode"},
		{"send", "send"},
		{"unknown", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			assert.Equal(t, tt.want, provider.CanonicalOp(tt.op))
		})
	}
}

func TestRegistry_LookupByAnyName(t *testing.T) {
	r := provider.NewRegistry(dummy.Definition)

	for _, name := range []string{dummy.ID, dummy.ProviderType, dummy.Prefix, "  DUMMY "} {
		d, ok := r.Get(name)
		require.True(t, ok, name)
		assert.Same(t, dummy.Definition, d)
	}
	_, ok := r.Get("slack")
	assert.False(t, ok)
}

func TestRegistry_AllSortedAndReplaced(t *testing.T) {
	first := newEchoDefinition("zeta", nil)
	second := newEchoDefinition("alpha", nil)
	replacement := newEchoDefinition("zeta", nil)

	r := provider.NewRegistry(first, second)
	r.Register(replacement)

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "messaging-provider-alpha", all[0].ID)
	assert.Same(t, replacement, all[1])
	got, _ := r.Get("zeta")
	assert.Same(t, replacement, got)
}

func TestNewDispatcher_RequiresRegistry(t *testing.T) {
	_, err := provider.NewDispatcher(nil)
	errutil.AssertErrorCode(t, err, provider.CodeNilRegistry)
}

func TestInvoke_UnknownProvider(t *testing.T) {
	d, err := provider.NewDispatcher(provider.NewRegistry())
	require.NoError(t, err)

	_, err = d.Invoke(context.Background(), provider.Call{Provider: "nope", Op: "send"})
	errutil.AssertErrorCode(t, err, provider.CodeUnknownProvider)
}

func TestInvoke_LifecycleOps(t *testing.T) {
	h := providertest.New(t, dummy.Definition, capability.Set{})

	assert.Equal(t, map[string]any{"status": "ok"}, h.Object(provider.OpHealthcheck, nil))

	first := h.Raw(provider.OpDescribe, nil)
	second := h.Raw(provider.OpDescribe, nil)
	assert.Equal(t, first, second)
	var describe provider.DescribePayload
	require.NoError(t, json.Unmarshal(first, &describe))
	assert.Equal(t, provider.WorldID, describe.World)
	assert.Len(t, describe.SchemaHash, 64)

	assert.Equal(t, "unsupported op: teleport", h.Error("teleport", nil))
}

func TestInvoke_ValidateConfig(t *testing.T) {
	h := providertest.New(t, dummy.Definition, capability.Set{})

	out := h.Object(provider.OpValidateConfig, map[string]any{"config": map[string]any{"enabled": false}})

	assert.Equal(t, true, out["ok"])
	assert.Equal(t, map[string]any{"enabled": false}, out["config"])
}

func TestInvoke_I18nBundleIsCBOR(t *testing.T) {
	h := providertest.New(t, dummy.Definition, capability.Set{})

	bundle := h.Bundle("")

	assert.Equal(t, "en", bundle["locale"])
	messages, _ := bundle["messages"].(map[string]any)
	for _, key := range dummy.Definition.I18nKeys() {
		assert.Contains(t, messages, key)
	}
}

func TestInvoke_ApplyRemove(t *testing.T) {
	h := providertest.New(t, dummy.Definition, capability.Set{})

	out := h.Apply("remove", map[string]any{})

	assert.Equal(t, true, out["ok"])
	remove, _ := out["remove"].(map[string]any)
	assert.Equal(t, true, remove["remove_all"])
	assert.Len(t, remove["cleanup"], 6)
}

func TestInvoke_InitRuntimeConfig(t *testing.T) {
	reg := provider.NewRegistry(dummy.Definition)
	d, err := provider.NewDispatcher(reg)
	require.NoError(t, err)
	ctx := context.Background()

	out, err := d.Invoke(ctx, provider.Call{
		Provider: dummy.ID,
		Op:       provider.OpInitRuntimeConfig,
		Input:    []byte(`{"schema_version":1,"runtime":{"max_concurrency":2}}`),
	})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"ok":true`)
	cfg := d.RuntimeConfig(dummy.ID)
	require.NotNil(t, cfg.Runtime.MaxConcurrency)
	assert.Equal(t, 2, *cfg.Runtime.MaxConcurrency)

	out, err = d.Invoke(ctx, provider.Call{Provider: dummy.ID, Op: provider.OpInitRuntimeConfig, Input: []byte(`{"schema_version":9}`)})
	require.NoError(t, err)
	assert.Contains(t, string(out), "unsupported schema version")
}

func TestInvoke_HandlerErrorBecomesErrorResult(t *testing.T) {
	def := newEchoDefinition("failing", func(context.Context, provider.Invocation) (any, error) {
		return nil, core.ErrValidation("bad input")
	})
	h := providertest.New(t, def, capability.Set{})

	assert.Equal(t, "validation error: bad input", h.Error(provider.OpSend, map[string]any{}))
}

func TestInvoke_RawResultsPassThrough(t *testing.T) {
	def := newEchoDefinition("raw", func(context.Context, provider.Invocation) (any, error) {
		return json.RawMessage(`{"ok":true,"raw":1}`), nil
	})
	h := providertest.New(t, def, capability.Set{})

	assert.JSONEq(t, `{"ok":true,"raw":1}`, string(h.Raw(provider.OpSend, nil)))
}

func TestInvoke_RecordsMetrics(t *testing.T) {
	h := providertest.New(t, dummy.Definition, capability.Set{})
	okBefore := testutil.ToFloat64(provider.Invocations.WithLabelValues(dummy.ID, "send", provider.StatusOK))
	unsupportedBefore := testutil.ToFloat64(provider.Invocations.WithLabelValues(dummy.ID, "bogus", provider.StatusUnsupported))

	h.Raw(provider.OpSend, `{"text":"x"}`)
	h.Raw("bogus", nil)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(provider.Invocations.WithLabelValues(dummy.ID, "send", provider.StatusOK)))
	assert.Equal(t, unsupportedBefore+1, testutil.ToFloat64(provider.Invocations.WithLabelValues(dummy.ID, "bogus", provider.StatusUnsupported)))
}

func TestInvoke_ConcurrencyLimit(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	def := newEchoDefinition("blocking", func(context.Context, provider.Invocation) (any, error) {
		close(started)
		<-release
		return map[string]any{"ok": true}, nil
	})
	one := 1
	rc := runtimeconfig.Default()
	rc.Runtime.MaxConcurrency = &one
	d, err := provider.NewDispatcher(provider.NewRegistry(def), provider.WithRuntimeConfig(rc))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := d.Invoke(context.Background(), provider.Call{Provider: def.ID, Op: provider.OpSend})
		done <- err
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = d.Invoke(ctx, provider.Call{Provider: def.ID, Op: provider.OpHealthcheck})
	require.Error(t, err)
	assert.Equal(t, core.CodeTransport, core.ErrorCode(err))

	close(release)
	require.NoError(t, <-done)
}

func TestInvoke_EnforcerBlocksUngrantedHTTP(t *testing.T) {
	def := newEchoDefinition("guarded", func(ctx context.Context, inv provider.Invocation) (any, error) {
		_, err := provider.Do(ctx, inv.Caps, inv.Tenant, provider.Request{Service: "guarded", URL: "https://example.com"})
		return nil, err
	})
	fake := capabilitytest.NewFakeHTTP()
	enforcer := capability.NewEnforcer()
	require.NoError(t, enforcer.SetGrants(def.ID, []string{capability.GrantSecretsRead}))
	d, err := provider.NewDispatcher(provider.NewRegistry(def),
		provider.WithCapabilities(fake.Set(nil)),
		provider.WithEnforcer(enforcer),
	)
	require.NoError(t, err)

	out, err := d.Invoke(context.Background(), provider.Call{Provider: def.ID, Op: provider.OpSend})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"ok":false`)
	assert.Empty(t, fake.Requests())
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server error", provider.ErrStatus("svc", capability.Response{Status: 502}), true},
		{"client error", provider.ErrStatus("svc", capability.Response{Status: 404}), false},
		{"transport", core.ErrTransport("dial failed"), true},
		{"validation", core.ErrValidation("nope"), false},
		{"plain", errors.New("x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, provider.Retryable(tt.err))
		})
	}
}

func TestStatusErrorMessage(t *testing.T) {
	err := provider.ErrStatus("graph", capability.Response{Status: 401})

	assert.Equal(t, "graph returned status 401", err.Error())
	errutil.AssertErrorCode(t, err, provider.CodeUpstreamStatus)
}

func TestBundleDecodesWithCodec(t *testing.T) {
	raw, err := dummy.Definition.Bundle("de").CBOR()
	require.NoError(t, err)
	js, err := codec.ToJSON(raw)
	require.NoError(t, err)
	assert.Contains(t, string(js), `"locale":"de"`)
}
