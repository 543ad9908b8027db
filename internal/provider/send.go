// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/samber/oops"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/core"
)

// CodeUpstreamStatus marks a non-2xx response from a provider API.
const CodeUpstreamStatus = "UPSTREAM_STATUS"

// StatusError is a non-2xx response from a provider API.
type StatusError struct {
	Service string
	Status  int
	Body    []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Service, e.Status)
}

// ErrStatus wraps a non-2xx response.
func ErrStatus(service string, resp capability.Response) error {
	return oops.Code(CodeUpstreamStatus).
		With("service", service).
		With("status", resp.Status).
		Wrap(&StatusError{Service: service, Status: resp.Status, Body: resp.Body})
}

// Retryable reports whether a send failure may succeed on retry: transport
// failures and 5xx responses.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Status >= 500
	}
	return core.ErrorCode(err) == core.CodeTransport
}

// Request is an outbound API call made by a provider.
type Request struct {
	// Service names the API in status errors, e.g. "slack".
	Service string
	Method  string
	URL     string
	// Bearer, when set, becomes the Authorization header.
	Bearer  string
	Headers []capability.Header
	// JSON is marshaled as the body when Body is nil.
	JSON any
	Body []byte
}

// Do sends req through the HTTP capability. Transport failures become
// transport errors and non-2xx responses become status errors.
func Do(ctx context.Context, caps capability.Set, tenant *core.TenantCtx, req Request) (capability.Response, error) {
	body := req.Body
	headers := append([]capability.Header(nil), req.Headers...)
	if body == nil && req.JSON != nil {
		raw, err := json.Marshal(req.JSON)
		if err != nil {
			return capability.Response{}, core.ErrOther("%v", err)
		}
		body = raw
		headers = append(headers, capability.Header{Name: "Content-Type", Value: ContentTypeJSON})
	}
	if req.Bearer != "" {
		headers = append(headers, capability.Header{Name: "Authorization", Value: "Bearer " + req.Bearer})
	}
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	client := caps.WithDefaults().HTTP
	resp, err := client.Send(ctx, capability.Request{
		Method:  method,
		URL:     req.URL,
		Headers: headers,
		Body:    body,
	}, capability.SendOptions{Tenant: tenant})
	if err != nil {
		var httpErr *capability.HTTPError
		if errors.As(err, &httpErr) {
			return capability.Response{}, oops.With("code", httpErr.Code).Wrap(core.ErrTransport(httpErr.Message))
		}
		return capability.Response{}, core.ErrTransport(err.Error())
	}
	if !resp.Success() {
		return resp, ErrStatus(req.Service, resp)
	}
	return resp, nil
}

// DecodeBody parses a JSON response body. An empty or non-JSON body yields
// nil.
func DecodeBody(resp capability.Response) map[string]any {
	var out map[string]any
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil
	}
	return out
}
