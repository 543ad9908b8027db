// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package dummy is an echo provider that talks to no external service. It
// derives stable message ids from its input and is used to exercise hosts
// and pipelines end to end.
package dummy

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/ingress"
	"github.com/greentic/messaging-providers/internal/provider"
	"github.com/greentic/messaging-providers/internal/qa"
	"github.com/greentic/messaging-providers/internal/render"
)

// Provider identity.
const (
	ID              = "messaging-provider-dummy"
	ProviderType    = "messaging.dummy"
	Prefix          = "dummy"
	ConfigSchemaRef = "schemas/messaging/dummy/public.config.schema.json"
)

// Config is the dummy provider config. Any JSON object is accepted by
// validate-config; only enabled is interpreted.
type Config struct {
	Enabled bool `json:"enabled"`
}

var applier = qa.Applier[Config]{
	Fields:  []qa.Field{{Name: "enabled", Kind: qa.KindBool}},
	Default: func() Config { return Config{Enabled: true} },
}

// Definition is the dummy provider.
var Definition = &provider.Definition{
	ID:              ID,
	Type:            ProviderType,
	Prefix:          Prefix,
	Name:            "Dummy",
	Ops:             []string{provider.OpSend, provider.OpReply, provider.OpIngestHTTP, provider.OpRenderPlan, provider.OpEncode, provider.OpSendPayload},
	Config:          provider.NewConfig(Prefix).Bool("enabled", false).Build(),
	Setup:           []qa.Def{{Field: "enabled", LabelKey: Prefix + ".qa.setup.enabled", Kind: qa.Bool()}},
	DefaultKeys:     []string{},
	ConfigSchemaRef: ConfigSchemaRef,
	Apply:           applier.Apply,
	ValidateConfig:  validateConfig,
	Handlers: map[string]provider.Handler{
		provider.OpSend:        send,
		provider.OpReply:       send,
		provider.OpIngestHTTP:  ingestHTTP,
		provider.OpRenderPlan:  renderPlan,
		provider.OpEncode:      encode,
		provider.OpSendPayload: sendPayload,
	},
}

func validateConfig(raw []byte) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, provider.Invalid("%v", err)
	}
	return v, nil
}

// SendResult is the dummy send/reply result. Invalid JSON input still
// yields ids, derived from the raw bytes, with ok false.
type SendResult struct {
	OK                bool   `json:"ok"`
	ProviderType      string `json:"provider_type"`
	Op                string `json:"op"`
	MessageID         string `json:"message_id"`
	ProviderMessageID string `json:"provider_message_id"`
	Status            string `json:"status"`
	Input             any    `json:"input,omitempty"`
	Error             string `json:"error,omitempty"`
}

func send(_ context.Context, inv provider.Invocation) (any, error) {
	id, digest := provider.MessageID(inv.Input)
	out := SendResult{
		OK:                true,
		ProviderType:      ProviderType,
		Op:                inv.Op,
		MessageID:         id,
		ProviderMessageID: "dummy:" + digest,
		Status:            provider.SendStatus(inv.Op),
	}
	var input any
	if err := json.Unmarshal(inv.Input, &input); err != nil {
		out.OK = false
		out.Error = err.Error()
		return out, nil
	}
	out.Input = input
	return out, nil
}

func ingestHTTP(_ context.Context, inv provider.Invocation) (any, error) {
	req, failed := provider.DecodeIngest(inv)
	if failed != nil {
		return *failed, nil
	}
	text := string(req.Body)
	session := req.In.Path
	env := core.IngressEnvelope("dummy-"+session, session, session, nil, nil, text, core.MessageMetadata{"universal": "true"})
	out := ingress.HTTPOut{
		Status:  http.StatusOK,
		BodyB64: req.In.BodyB64,
		Events:  []core.ChannelMessageEnvelope{env},
	}
	return out, nil
}

func renderPlan(_ context.Context, inv provider.Invocation) (any, error) {
	var in render.PlanInput
	if err := json.Unmarshal(inv.Input, &in); err != nil {
		return nil, provider.Invalid("invalid render input: %v", err)
	}
	summary := in.Message.TrimmedText()
	if summary == "" {
		summary = "dummy message"
	}
	plan := render.ProviderPlan{
		Tier:        render.TierD.Label(),
		SummaryText: summary,
		Actions:     []any{},
		Attachments: []any{},
		Warnings:    []render.Warning{},
		Debug:       in.Metadata,
	}
	return provider.RenderPlanResult{OK: true, Plan: map[string]any{"plan_json": plan.PlanJSON()}}, nil
}

func encode(_ context.Context, inv provider.Invocation) (any, error) {
	in, err := provider.DecodeEncodeInput(inv.Input)
	if err != nil {
		return nil, err
	}
	text := in.Message.TrimmedText()
	if text == "" {
		text = "dummy payload"
	}
	payload, err := provider.JSONPayload(map[string]string{"body": text}, map[string]any{
		"text":   text,
		"method": http.MethodPost,
	})
	if err != nil {
		return nil, err
	}
	return provider.EncodeResult{OK: true, Payload: payload}, nil
}

func sendPayload(_ context.Context, inv provider.Invocation) (any, error) {
	_, body, failed := provider.DecodeSendPayload(inv.Input, ProviderType)
	if failed != nil {
		return *failed, nil
	}
	if len(body) == 0 {
		return provider.PayloadFailed("payload empty", false), nil
	}
	return provider.PayloadSent(), nil
}
