// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package provider

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/logging"
	"github.com/greentic/messaging-providers/internal/qa"
	"github.com/greentic/messaging-providers/internal/runtimeconfig"
)

var tracer = otel.Tracer("msgprov/provider")

// Error codes for dispatch failures.
const (
	CodeUnknownProvider = "UNKNOWN_PROVIDER"
	CodeNilRegistry     = "NIL_REGISTRY"
)

// ErrUnknownProvider is returned by Invoke for a provider name that is not
// registered.
func ErrUnknownProvider(name string) error {
	return oops.Code(CodeUnknownProvider).
		With("provider", name).
		Errorf("unknown provider: %s", name)
}

// Dispatcher routes invoke calls to provider definitions. Lifecycle and QA
// ops are answered here; everything else goes to the provider's handlers.
type Dispatcher struct {
	registry *Registry
	caps     capability.Set
	enforcer *capability.Enforcer // optional
	runtime  runtimeconfig.Config

	mu        sync.Mutex
	perRun    map[string]runtimeconfig.Config
	limiters  map[string]*semaphore.Weighted
	limitSize map[string]int
}

// DispatcherOption configures a Dispatcher during construction.
type DispatcherOption func(*Dispatcher)

// WithCapabilities sets the host capabilities handed to providers.
func WithCapabilities(caps capability.Set) DispatcherOption {
	return func(d *Dispatcher) {
		d.caps = caps
	}
}

// WithEnforcer restricts every provider to its granted capabilities.
// Without one, providers get the full capability set.
func WithEnforcer(e *capability.Enforcer) DispatcherOption {
	return func(d *Dispatcher) {
		d.enforcer = e
	}
}

// WithRuntimeConfig sets the runtime config used until a provider receives
// init-runtime-config.
func WithRuntimeConfig(cfg runtimeconfig.Config) DispatcherOption {
	return func(d *Dispatcher) {
		d.runtime = cfg
	}
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) (*Dispatcher, error) {
	if registry == nil {
		return nil, oops.Code(CodeNilRegistry).Errorf("provider registry is required")
	}
	d := &Dispatcher{
		registry:  registry,
		runtime:   runtimeconfig.Default(),
		perRun:    make(map[string]runtimeconfig.Config),
		limiters:  make(map[string]*semaphore.Weighted),
		limitSize: make(map[string]int),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Registry returns the dispatcher's registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Call is one invoke request.
type Call struct {
	Provider string
	Op       string
	Input    []byte
	Tenant   *core.TenantCtx
}

// Invoke runs call and returns the op's output: JSON for every op except
// i18n-bundle, which is canonical CBOR. Op failures are reported inside
// the output as {ok:false,error}; the error result is reserved for an
// unknown provider or a cancelled context.
func (d *Dispatcher) Invoke(ctx context.Context, call Call) (out []byte, err error) {
	def, ok := d.registry.Get(call.Provider)
	if !ok {
		return nil, ErrUnknownProvider(call.Provider)
	}

	ctx, span := tracer.Start(ctx, "provider.invoke",
		trace.WithAttributes(
			attribute.String("provider.id", def.ID),
			attribute.String("provider.op", call.Op),
		),
	)
	start := time.Now()
	status := StatusOK
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			status = StatusError
		}
		span.SetAttributes(attribute.String("provider.status", status))
		span.End()
		RecordInvocation(def.ID, call.Op, status, time.Since(start))
	}()
	ctx = logging.WithAttrs(ctx, slog.String("provider", def.ID), slog.String("op", call.Op))

	runtime := d.RuntimeConfig(def.ID)
	release, err := d.acquire(ctx, def.ID, runtime)
	if err != nil {
		return nil, err
	}
	defer release()

	caps := capability.Guard(d.caps, d.enforcer, def.ID).WithDefaults()
	out, status = d.route(ctx, def, call, caps, runtime)

	if runtime.Telemetry.EmitEnabled {
		attrs := []capability.Attr{{Key: "status", Value: status}}
		if logErr := caps.Telemetry.Log(ctx, capability.SpanContext{Name: "provider.invoke", Provider: def.ID, Op: call.Op}, attrs, call.Tenant); logErr != nil {
			slog.DebugContext(ctx, "telemetry log failed", "error", logErr)
		}
	}
	return out, nil
}

func (d *Dispatcher) route(ctx context.Context, def *Definition, call Call, caps capability.Set, runtime runtimeconfig.Config) ([]byte, string) {
	if def.Remote != nil {
		out, err := def.Remote(ctx, call.Op, call.Input, call.Tenant)
		if err != nil {
			slog.WarnContext(ctx, "remote provider op failed", "error", err)
			return errorJSON(core.ErrTransport(err.Error()).Error()), StatusError
		}
		return out, outcome(out)
	}
	if qa.IsBridgeOp(call.Op) {
		out, _ := def.Bridge().Dispatch(call.Op, call.Input)
		return out, outcome(out)
	}

	switch call.Op {
	case OpDescribe:
		return mustJSON(def.Describe()), StatusOK
	case OpHealthcheck:
		return mustJSON(map[string]string{"status": "ok"}), StatusOK
	case OpValidateConfig:
		out := validateConfig(def, call.Input)
		return out, outcome(out)
	case OpI18nBundle:
		out, err := def.Bundle(bundleLocale(call.Input)).CBOR()
		if err != nil {
			return errorJSON("cbor encode error: " + err.Error()), StatusError
		}
		return out, StatusOK
	case OpInitRuntimeConfig:
		out := d.initRuntimeConfig(ctx, def.ID, call.Input)
		return out, outcome(out)
	}

	h, op, ok := def.Handler(call.Op)
	if !ok {
		slog.DebugContext(ctx, "unsupported provider op")
		return errorJSON("unsupported op: " + call.Op), StatusUnsupported
	}
	result, err := h(ctx, Invocation{Op: op, Input: call.Input, Tenant: call.Tenant, Caps: caps, Runtime: runtime})
	if err != nil {
		slog.WarnContext(ctx, "provider op failed",
			"code", core.ErrorCode(err),
			"error", err,
		)
		return errorJSON(err.Error()), StatusError
	}
	var out []byte
	switch v := result.(type) {
	case []byte:
		out = v
	case json.RawMessage:
		out = v
	default:
		out = mustJSON(v)
	}
	return out, outcome(out)
}

// RuntimeConfig returns the runtime config in force for provider.
func (d *Dispatcher) RuntimeConfig(provider string) runtimeconfig.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cfg, ok := d.perRun[provider]; ok {
		return cfg
	}
	return d.runtime
}

func (d *Dispatcher) initRuntimeConfig(ctx context.Context, provider string, input []byte) []byte {
	cfg, err := runtimeconfig.Decode(input)
	if err != nil {
		return errorJSON(err.Error())
	}
	d.mu.Lock()
	d.perRun[provider] = cfg
	d.mu.Unlock()
	slog.InfoContext(ctx, "runtime config initialized", "config", cfg.String())
	return mustJSON(map[string]any{"ok": true, "config": cfg})
}

// acquire takes a concurrency slot when the runtime config bounds
// concurrency. The limiter is rebuilt when the bound changes.
func (d *Dispatcher) acquire(ctx context.Context, provider string, cfg runtimeconfig.Config) (func(), error) {
	if cfg.Runtime.MaxConcurrency == nil {
		return func() {}, nil
	}
	size := *cfg.Runtime.MaxConcurrency
	d.mu.Lock()
	sem, ok := d.limiters[provider]
	if !ok || d.limitSize[provider] != size {
		sem = semaphore.NewWeighted(int64(size))
		d.limiters[provider] = sem
		d.limitSize[provider] = size
	}
	d.mu.Unlock()

	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, oops.With("provider", provider).Wrap(core.ErrTransport("concurrency limit: " + err.Error()))
	}
	return func() { sem.Release(1) }, nil
}

func validateConfig(def *Definition, input []byte) []byte {
	if def.ValidateConfig == nil {
		return mustJSON(map[string]any{"ok": true})
	}
	raw := input
	var wrapper struct {
		Config json.RawMessage `json:"config"`
	}
	if err := json.Unmarshal(input, &wrapper); err == nil && len(wrapper.Config) > 0 {
		raw = wrapper.Config
	}
	cfg, err := def.ValidateConfig(raw)
	if err != nil {
		return errorJSON(err.Error())
	}
	return mustJSON(map[string]any{"ok": true, "config": cfg})
}

func bundleLocale(input []byte) string {
	var req struct {
		Locale string `json:"locale"`
	}
	if len(input) > 0 {
		_ = json.Unmarshal(input, &req)
	}
	return req.Locale
}

// ErrorResult is the {ok:false,error} shape returned for failed ops.
type ErrorResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func errorJSON(msg string) []byte {
	return mustJSON(ErrorResult{Error: msg})
}

func mustJSON(v any) []byte {
	out, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"ok":false,"error":"other error: json encode failed"}`)
	}
	return out
}
