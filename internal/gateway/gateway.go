// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package gateway exposes the provider dispatcher over HTTP: provider
// listing and describe, direct op invocation, webhook ingress and the
// webchat Direct Line endpoints.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/ingress"
	"github.com/greentic/messaging-providers/internal/observability"
	"github.com/greentic/messaging-providers/internal/provider"
	"github.com/greentic/messaging-providers/internal/provider/webchat/directline"
)

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes = 1 << 20

// directLineProvider is the provider Direct Line requests are routed to.
const directLineProvider = "webchat"

// EventSink receives the envelopes produced by webhook ingress.
type EventSink func(ctx context.Context, provider string, events []core.ChannelMessageEnvelope)

// Server routes HTTP requests to a provider dispatcher.
type Server struct {
	disp     *provider.Dispatcher
	metrics  *observability.Metrics
	sink     EventSink
	maxBody  int64
	mounts   map[string]http.Handler
	shutdown time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records request metrics in m.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithEventSink forwards ingress envelopes to sink. Without one they are
// logged and dropped.
func WithEventSink(sink EventSink) Option {
	return func(s *Server) {
		s.sink = sink
	}
}

// WithMaxBodyBytes overrides DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		s.maxBody = n
	}
}

// WithMount serves h under pattern, e.g. the observability handler.
func WithMount(pattern string, h http.Handler) Option {
	return func(s *Server) {
		s.mounts[pattern] = h
	}
}

// New creates a gateway over disp.
func New(disp *provider.Dispatcher, opts ...Option) *Server {
	s := &Server{
		disp:     disp,
		sink:     logEvents,
		maxBody:  DefaultMaxBodyBytes,
		mounts:   make(map[string]http.Handler),
		shutdown: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the gateway router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Route("/v1/providers", func(r chi.Router) {
		r.Get("/", s.listProviders)
		r.Get("/{provider}/describe", s.describe)
		r.Post("/{provider}/invoke/{op}", s.invoke)
		r.HandleFunc("/{provider}/webhook", s.webhook)
		r.HandleFunc("/{provider}/webhook/*", s.webhook)
	})
	r.HandleFunc(directline.PathPrefix+"/*", s.directLine)

	for pattern, h := range s.mounts {
		r.Mount(pattern, h)
	}
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return oops.With("addr", addr).Wrap(err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	slog.InfoContext(ctx, "gateway listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return oops.With("operation", "serve_gateway").Wrap(err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdown)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return oops.With("operation", "shutdown_gateway").Wrap(err)
	}
	<-errCh
	slog.InfoContext(ctx, "gateway stopped")
	return nil
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveRequest(route, ww.Status(), time.Since(start))
		slog.DebugContext(r.Context(), "gateway request",
			"method", r.Method,
			"route", route,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start))
	})
}

// ProviderEntry is one item of the provider listing.
type ProviderEntry struct {
	ID       string            `json:"id"`
	Aliases  []string          `json:"aliases"`
	Manifest provider.Manifest `json:"manifest"`
}

func (s *Server) listProviders(w http.ResponseWriter, _ *http.Request) {
	defs := s.disp.Registry().All()
	out := make([]ProviderEntry, 0, len(defs))
	for _, def := range defs {
		out = append(out, ProviderEntry{ID: def.ID, Aliases: def.Aliases(), Manifest: def.Manifest()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": out})
}

func (s *Server) describe(w http.ResponseWriter, r *http.Request) {
	out, err := s.disp.Invoke(r.Context(), provider.Call{
		Provider: chi.URLParam(r, "provider"),
		Op:       provider.OpDescribe,
	})
	if err != nil {
		writeDispatchError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, "application/json", out)
}

func (s *Server) invoke(w http.ResponseWriter, r *http.Request) {
	tenant, err := tenantFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	op := chi.URLParam(r, "op")
	out, err := s.disp.Invoke(r.Context(), provider.Call{
		Provider: chi.URLParam(r, "provider"),
		Op:       op,
		Input:    body,
		Tenant:   tenant,
	})
	if err != nil {
		writeDispatchError(w, err)
		return
	}
	if op == provider.OpI18nBundle && !json.Valid(out) {
		writeRaw(w, http.StatusOK, "application/cbor", out)
		return
	}
	writeRaw(w, http.StatusOK, "application/json", out)
}

func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	s.ingest(w, r, chi.URLParam(r, "provider"))
}

func (s *Server) directLine(w http.ResponseWriter, r *http.Request) {
	s.ingest(w, r, directLineProvider)
}

// ingest wraps r as an HTTPIn, runs ingest_http and replays the
// provider's HTTP response.
func (s *Server) ingest(w http.ResponseWriter, r *http.Request, name string) {
	tenant, err := tenantFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	in, err := json.Marshal(ingress.FromRequest(r, body))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out, err := s.disp.Invoke(r.Context(), provider.Call{
		Provider: name,
		Op:       provider.OpIngestHTTP,
		Input:    in,
		Tenant:   tenant,
	})
	if err != nil {
		writeDispatchError(w, err)
		return
	}

	var resp ingress.HTTPOut
	if err := json.Unmarshal(out, &resp); err != nil || resp.Status == 0 {
		// Not an HttpOutV1: an {ok:false,error} result from the provider.
		writeRaw(w, http.StatusBadRequest, "application/json", out)
		return
	}
	if len(resp.Events) > 0 {
		s.sink(r.Context(), name, resp.Events)
	}

	payload, err := resp.Body()
	if err != nil {
		writeError(w, http.StatusBadGateway, "provider returned an invalid body")
		return
	}
	for _, h := range resp.Headers {
		w.Header().Add(h.Name, h.Value)
	}
	w.WriteHeader(resp.Status)
	//nolint:errcheck // client may disconnect
	w.Write(payload)
}

// tenantFromQuery reads env, tenant and team. It returns nil when neither
// env nor tenant is given.
func tenantFromQuery(r *http.Request) (*core.TenantCtx, error) {
	q := r.URL.Query()
	env, tenant := strings.TrimSpace(q.Get("env")), strings.TrimSpace(q.Get("tenant"))
	if env == "" && tenant == "" {
		return nil, nil
	}
	t := core.DefaultTenantCtx()
	if env != "" {
		id, err := core.ParseEnvID(env)
		if err != nil {
			return nil, err
		}
		t.Env = id
	}
	if tenant != "" {
		id, err := core.ParseTenantID(tenant)
		if err != nil {
			return nil, err
		}
		t.Tenant = id
	}
	t = t.WithTeam(q.Get("team"))
	return &t, nil
}

func logEvents(ctx context.Context, name string, events []core.ChannelMessageEnvelope) {
	slog.InfoContext(ctx, "ingress events received",
		"provider", name,
		"count", len(events))
}

func writeDispatchError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if core.ErrorCode(err) == provider.CodeUnknownProvider {
		status = http.StatusNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	w.Write(body)
}
