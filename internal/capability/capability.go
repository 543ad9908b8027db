// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package capability defines the host capabilities a provider may call
// during an invocation: HTTP, secrets, state and telemetry.
//
// Providers receive a Set per call and never hold capabilities across
// invocations. Every method that may block takes a context.
package capability

import (
	"context"
	"errors"
	"time"

	"github.com/greentic/messaging-providers/internal/core"
)

// HTTP capability error codes.
const (
	CodeRequestBuild     = "http_request_build"
	CodeTransportError   = "http_transport_error"
	CodeReadError        = "http_read_error"
	CodeResponseTooLarge = "http_response_too_large"
)

// ErrNotFound is returned by SecretStore.Get and StateStore.Read when the key
// does not exist.
var ErrNotFound = errors.New("not found")

// Header is a single HTTP header. Order and duplicates are preserved.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Request is an outbound HTTP request.
type Request struct {
	Method  string
	URL     string
	Headers []Header
	Body    []byte
}

// Response is the result of an HTTP request.
type Response struct {
	Status  int
	Headers []Header
	Body    []byte
}

// Success reports whether the status is 2xx.
func (r Response) Success() bool {
	return r.Status >= 200 && r.Status < 300
}

// Header returns the first header named name, compared ASCII
// case-insensitively.
func (r Response) Header(name string) (string, bool) {
	return LookupHeader(r.Headers, name)
}

// HTTPError is the structured error returned by HTTPClient.Send.
type HTTPError struct {
	Code    string
	Message string
}

func (e *HTTPError) Error() string {
	return e.Code + ": " + e.Message
}

// SendOptions carries the optional tenant context and per-call timeout.
type SendOptions struct {
	Tenant  *core.TenantCtx
	Timeout time.Duration
}

// HTTPClient sends HTTP requests on behalf of a provider.
type HTTPClient interface {
	Send(ctx context.Context, req Request, opts SendOptions) (Response, error)
}

// SecretStore resolves secrets by exact key.
type SecretStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// StateStore persists namespaced values, optionally scoped by tenant.
type StateStore interface {
	Read(ctx context.Context, key string, tenant *core.TenantCtx) ([]byte, error)
	Write(ctx context.Context, key string, value []byte, tenant *core.TenantCtx) error
	Delete(ctx context.Context, key string, tenant *core.TenantCtx) error
}

// SpanContext identifies the span a telemetry record belongs to.
type SpanContext struct {
	Name     string
	Provider string
	Op       string
}

// Attr is a telemetry key/value pair.
type Attr struct {
	Key   string
	Value string
}

// Telemetry records structured span logs.
type Telemetry interface {
	Log(ctx context.Context, span SpanContext, attrs []Attr, tenant *core.TenantCtx) error
}

// Set bundles the capabilities handed to a provider for one invocation.
// Nil members are replaced by implementations that deny every call.
type Set struct {
	HTTP      HTTPClient
	Secrets   SecretStore
	State     StateStore
	Telemetry Telemetry
}

// WithDefaults returns a copy of s with nil members replaced.
func (s Set) WithDefaults() Set {
	if s.HTTP == nil {
		s.HTTP = unavailableHTTP{}
	}
	if s.Secrets == nil {
		s.Secrets = MapSecrets{}
	}
	if s.State == nil {
		s.State = unavailableState{}
	}
	if s.Telemetry == nil {
		s.Telemetry = NopTelemetry{}
	}
	return s
}

type unavailableHTTP struct{}

func (unavailableHTTP) Send(context.Context, Request, SendOptions) (Response, error) {
	return Response{}, &HTTPError{Code: CodeTransportError, Message: "http capability not available"}
}

type unavailableState struct{}

func (unavailableState) Read(context.Context, string, *core.TenantCtx) ([]byte, error) {
	return nil, &StateError{Op: "read", Message: "state capability not available"}
}

func (unavailableState) Write(context.Context, string, []byte, *core.TenantCtx) error {
	return &StateError{Op: "write", Message: "state capability not available"}
}

func (unavailableState) Delete(context.Context, string, *core.TenantCtx) error {
	return &StateError{Op: "delete", Message: "state capability not available"}
}

// PrefixDeleter is implemented by state stores that can drop every key
// under a namespace prefix in one call. The remove cleanup uses it for
// delete_provider_state_namespace when available.
type PrefixDeleter interface {
	DeletePrefix(ctx context.Context, prefix string, tenant *core.TenantCtx) (int, error)
}

// StateError is a structured state store failure. Its message reads
// "state <op> error: <message>".
type StateError struct {
	Op      string
	Message string
}

func (e *StateError) Error() string {
	return "state " + e.Op + " error: " + e.Message
}
