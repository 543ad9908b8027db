// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package capability

import (
	"context"
	"log/slog"

	"github.com/greentic/messaging-providers/internal/core"
)

// NopTelemetry discards every record.
type NopTelemetry struct{}

// Log implements Telemetry.
func (NopTelemetry) Log(context.Context, SpanContext, []Attr, *core.TenantCtx) error {
	return nil
}

// SlogTelemetry writes span records through a slog.Logger.
type SlogTelemetry struct {
	Logger *slog.Logger
}

// Log implements Telemetry.
func (t SlogTelemetry) Log(ctx context.Context, span SpanContext, attrs []Attr, tenant *core.TenantCtx) error {
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	args := make([]any, 0, 2*len(attrs)+8)
	args = append(args, "span", span.Name, "provider", span.Provider, "op", span.Op)
	if tenant != nil {
		args = append(args, "env", string(tenant.Env), "tenant", string(tenant.Tenant))
	}
	for _, a := range attrs {
		args = append(args, a.Key, a.Value)
	}
	logger.InfoContext(ctx, "provider telemetry", args...)
	return nil
}
