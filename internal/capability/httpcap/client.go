// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package httpcap implements the HTTP capability on top of net/http, with
// retries driven by the runtime config.
package httpcap

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/runtimeconfig"
)

// Default limits.
const (
	DefaultTimeout          = 30 * time.Second
	DefaultBackoffBase      = 200 * time.Millisecond
	DefaultMaxResponseBytes = 8 << 20
)

var errRetryableStatus = errors.New("retryable status")

// Client is a capability.HTTPClient backed by net/http.
type Client struct {
	httpClient  *http.Client
	maxAttempts int
	backoffBase time.Duration
	timeout     time.Duration
	maxBody     int64
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. The runtime config's
// proxy and TLS settings are not applied to a replaced client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithBackoffBase sets the base delay of the exponential backoff.
func WithBackoffBase(d time.Duration) Option {
	return func(cl *Client) {
		cl.backoffBase = d
	}
}

// WithTimeout sets the default per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.timeout = d
	}
}

// WithMaxResponseBytes caps response bodies. A larger body fails the
// request with CodeResponseTooLarge.
func WithMaxResponseBytes(n int64) Option {
	return func(cl *Client) {
		cl.maxBody = n
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

// New creates a Client for cfg.
func New(cfg runtimeconfig.Config, opts ...Option) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Network.Proxy == runtimeconfig.ProxyDisabled {
		transport.Proxy = nil
	}
	if cfg.Network.TLS == runtimeconfig.TLSInsecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opted into tls=insecure
	}

	c := &Client{
		httpClient:  &http.Client{Transport: transport},
		maxAttempts: cfg.Network.MaxAttempts,
		backoffBase: DefaultBackoffBase,
		timeout:     DefaultTimeout,
		maxBody:     DefaultMaxResponseBytes,
		logger:      slog.Default(),
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 1
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send performs req, retrying transport failures, 429 and 5xx responses up
// to the configured attempt count. The final 5xx response is returned as a
// response, not an error.
func (c *Client) Send(ctx context.Context, req capability.Request, opts capability.SendOptions) (capability.Response, error) {
	timeout := c.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Validate the request once so build errors are not retried.
	if _, err := c.build(ctx, req); err != nil {
		return capability.Response{}, err
	}

	var last capability.Response
	backoff := retry.WithMaxRetries(uint64(c.maxAttempts-1), retry.NewExponential(c.backoffBase))
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		httpReq, err := c.build(ctx, req)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			c.logger.DebugContext(ctx, "http capability attempt failed",
				"url", req.URL, "attempt", attempt, "error", err)
			return retry.RetryableError(&capability.HTTPError{Code: capability.CodeTransportError, Message: err.Error()})
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
		if err != nil {
			return retry.RetryableError(&capability.HTTPError{Code: capability.CodeReadError, Message: err.Error()})
		}
		if int64(len(body)) > c.maxBody {
			return &capability.HTTPError{
				Code:    capability.CodeResponseTooLarge,
				Message: fmt.Sprintf("response body exceeds %d bytes", c.maxBody),
			}
		}
		last = capability.Response{
			Status:  resp.StatusCode,
			Headers: fromHTTPHeader(resp.Header),
			Body:    body,
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			c.logger.DebugContext(ctx, "http capability retryable status",
				"url", req.URL, "attempt", attempt, "status", resp.StatusCode)
			return retry.RetryableError(errRetryableStatus)
		}
		return nil
	})
	switch {
	case err == nil, errors.Is(err, errRetryableStatus):
		return last, nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return capability.Response{}, &capability.HTTPError{Code: capability.CodeTransportError, Message: err.Error()}
	default:
		var httpErr *capability.HTTPError
		if errors.As(err, &httpErr) {
			return capability.Response{}, httpErr
		}
		return capability.Response{}, &capability.HTTPError{Code: capability.CodeTransportError, Message: err.Error()}
	}
}

func (c *Client) build(ctx context.Context, req capability.Request) (*http.Request, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, &capability.HTTPError{Code: capability.CodeRequestBuild, Message: err.Error()}
	}
	for _, h := range req.Headers {
		httpReq.Header.Add(h.Name, h.Value)
	}
	return httpReq, nil
}

func fromHTTPHeader(h http.Header) []capability.Header {
	out := make([]capability.Header, 0, len(h))
	for name, values := range h {
		for _, v := range values {
			out = append(out, capability.Header{Name: name, Value: v})
		}
	}
	return out
}
