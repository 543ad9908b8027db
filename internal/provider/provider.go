// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package provider holds what every messaging provider shares: the static
// Definition behind describe and the QA ops, the Registry, the Dispatcher
// that routes invoke calls, and the universal send/encode DTOs.
//
// A provider package declares a Definition with its config schema, setup
// questions and op handlers. Everything that is not provider specific
// (lifecycle ops, QA bridge, aliases, unsupported ops, metrics, tracing)
// lives here.
package provider

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/samber/oops"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/runtimeconfig"
)

// WorldID names the component world every provider implements.
const WorldID = "component-v0-v6-v0"

// Lifecycle ops served by the dispatcher for every provider.
const (
	OpDescribe          = "describe"
	OpHealthcheck       = "healthcheck"
	OpValidateConfig    = "validate-config"
	OpI18nBundle        = "i18n-bundle"
	OpInitRuntimeConfig = "init-runtime-config"
)

// Invoke ops implemented by provider handlers.
const (
	OpRun         = "run"
	OpSend        = "send"
	OpReply       = "reply"
	OpIngestHTTP  = "ingest_http"
	OpRenderPlan  = "render_plan"
	OpEncode      = "encode"
	OpSendPayload = "send_payload"
	OpRefresh     = "refresh"
)

// Subscription ops of providers whose upstream pushes change
// notifications to a registered URL.
const (
	OpSubscriptionEnsure = "subscription_ensure"
	OpSubscriptionRenew  = "subscription_renew"
	OpSubscriptionDelete = "subscription_delete"
)

var aliases = map[string]string{
	OpRun:            OpSend,
	"send-message":   OpSend,
	"handle-webhook": OpIngestHTTP,
	"render-plan":    OpRenderPlan,
	"format-message": OpEncode,
}

// CanonicalOp maps an op alias to the op it stands for. Unknown names are
// returned unchanged.
func CanonicalOp(op string) string {
	if canonical, ok := aliases[op]; ok {
		return canonical
	}
	return op
}

// Invocation is the request handed to a Handler.
type Invocation struct {
	// Op is the op the handler was registered for, after alias resolution.
	Op      string
	Input   []byte
	Tenant  *core.TenantCtx
	Caps    capability.Set
	Runtime runtimeconfig.Config
}

// Object decodes Input as a JSON object. An empty input yields an empty
// object.
func (inv Invocation) Object() (map[string]any, error) {
	if len(strings.TrimSpace(string(inv.Input))) == 0 {
		return map[string]any{}, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(inv.Input, &obj); err != nil {
		return nil, oops.Code(core.CodeValidation).Errorf("invalid json: %v", err)
	}
	if obj == nil {
		obj = map[string]any{}
	}
	return obj, nil
}

// TenantOrDefault returns the invocation tenant, or the default tenant.
func (inv Invocation) TenantOrDefault() core.TenantCtx {
	if inv.Tenant != nil {
		return *inv.Tenant
	}
	return core.DefaultTenantCtx()
}

// Handler runs one op. A returned error becomes {ok:false,error:<msg>};
// ops with their own failure shape return it as the result instead.
type Handler func(ctx context.Context, inv Invocation) (any, error)
