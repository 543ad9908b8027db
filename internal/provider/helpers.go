// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/samber/oops"

	"github.com/greentic/messaging-providers/internal/core"
	"github.com/greentic/messaging-providers/internal/ingress"
	"github.com/greentic/messaging-providers/internal/render"
)

// Invalid reports bad op input. The message is returned verbatim.
func Invalid(format string, args ...any) error {
	return oops.Code(core.CodeValidation).Errorf(format, args...)
}

// ErrDisabled is returned by send paths when the config disables the
// provider.
func ErrDisabled() error {
	return Invalid("provider disabled by config")
}

// SendInput is the decoded input of send and reply: either a full
// envelope or a shorthand such as {"to":"C1","text":"hi"}.
type SendInput struct {
	Raw      map[string]any
	Envelope *core.ChannelMessageEnvelope
}

// DecodeSendInput parses the invocation input.
func DecodeSendInput(inv Invocation) (SendInput, error) {
	obj, err := inv.Object()
	if err != nil {
		return SendInput{}, err
	}
	in := SendInput{Raw: obj}
	if core.LooksLikeEnvelope(obj) {
		env, err := core.DecodeEnvelope(inv.Input)
		if err != nil {
			return SendInput{}, err
		}
		in.Envelope = &env
	}
	return in, nil
}

// Metadata returns the envelope metadata used for config overrides.
func (in SendInput) Metadata() core.MessageMetadata {
	if in.Envelope == nil {
		return nil
	}
	return in.Envelope.Metadata
}

// EnvelopeOptions parameterizes SendInput.Resolve for shorthand input.
type EnvelopeOptions struct {
	// Channel names the synthetic envelope id, e.g. "slack".
	Channel string
	// Keys are the input keys probed for the destination, in order.
	Keys []string
	// Kind is the destination kind given to string destinations.
	Kind string
	// Fallback is used when no key yields a destination.
	Fallback *core.Destination
	// Missing is the error message when no destination is found.
	Missing string
}

// Resolve returns the full envelope, or builds a synthetic one from the
// shorthand input.
func (in SendInput) Resolve(opts EnvelopeOptions) (core.ChannelMessageEnvelope, error) {
	if in.Envelope != nil {
		return *in.Envelope, nil
	}
	dest, ok := in.destination(opts)
	if !ok {
		missing := opts.Missing
		if missing == "" {
			missing = "destination required"
		}
		return core.ChannelMessageEnvelope{}, Invalid("%s", missing)
	}
	var text *string
	if s, isString := in.Raw["text"].(string); isString {
		text = &s
	}
	return core.SyntheticEnvelope(opts.Channel, dest, text), nil
}

func (in SendInput) destination(opts EnvelopeOptions) (core.Destination, bool) {
	keys := opts.Keys
	if len(keys) == 0 {
		keys = []string{"to"}
	}
	for _, key := range keys {
		if dest, ok := core.ParseDestination(in.Raw[key], opts.Kind); ok {
			return dest, true
		}
	}
	if opts.Fallback != nil && strings.TrimSpace(opts.Fallback.ID) != "" {
		return *opts.Fallback, true
	}
	return core.Destination{}, false
}

// String returns the trimmed string at key of the raw input.
func (in SendInput) String(key string) string {
	s, _ := in.Raw[key].(string)
	return strings.TrimSpace(s)
}

// ReplyTarget returns the message a reply answers: thread_id or
// reply_to_id from the input, then the envelope reply scope.
func (in SendInput) ReplyTarget() (string, bool) {
	for _, key := range []string{"thread_id", "reply_to_id"} {
		if s := in.String(key); s != "" {
			return s, true
		}
	}
	if in.Envelope != nil && in.Envelope.ReplyScope != nil {
		for _, s := range []string{in.Envelope.ReplyScope.Thread, in.Envelope.ReplyScope.ReplyTo} {
			if s = strings.TrimSpace(s); s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// RequireText rejects envelopes with attachments or without text.
func RequireText(env *core.ChannelMessageEnvelope) (string, error) {
	if len(env.Attachments) > 0 {
		return "", Invalid("attachments not supported")
	}
	text := env.TrimmedText()
	if text == "" {
		return "", Invalid("text required")
	}
	return text, nil
}

// RenderPlanResult is the render_plan output.
type RenderPlanResult struct {
	OK   bool           `json:"ok"`
	Plan map[string]any `json:"plan"`
}

// RenderPlanHandler returns a render_plan handler planning with cfg.
func RenderPlanHandler(cfg render.PlanConfig) Handler {
	return func(_ context.Context, inv Invocation) (any, error) {
		var in render.PlanInput
		if err := json.Unmarshal(inv.Input, &in); err != nil {
			return nil, Invalid("invalid render input: %v", err)
		}
		plan := render.PlanForProvider(in, cfg)
		return RenderPlanResult{OK: true, Plan: map[string]any{"plan_json": plan.PlanJSON()}}, nil
	}
}

// Ingest is a decoded ingest_http request.
type Ingest struct {
	In   ingress.HTTPIn
	Body []byte
}

// DecodeIngest parses the ingest_http input. On failure the returned
// HTTPOut is the 400 response.
func DecodeIngest(inv Invocation) (Ingest, *ingress.HTTPOut) {
	in, err := ingress.ParseHTTPIn(inv.Input)
	if err != nil {
		out := ingress.ErrorOut(http.StatusBadRequest, "invalid http input: "+err.Error())
		return Ingest{}, &out
	}
	body, err := in.Body()
	if err != nil {
		out := ingress.ErrorOut(http.StatusBadRequest, "invalid body encoding: "+err.Error())
		return Ingest{}, &out
	}
	return Ingest{In: in, Body: body}, nil
}

// JSON decodes the request body. A body that is not JSON yields nil.
func (i Ingest) JSON() any {
	var v any
	if err := json.Unmarshal(i.Body, &v); err != nil {
		return nil
	}
	return v
}

// Lookup walks nested objects along path and returns the value found.
func Lookup(v any, path ...string) any {
	for _, key := range path {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = obj[key]
	}
	return v
}

// LookupString is Lookup for a string value.
func LookupString(v any, path ...string) string {
	s, _ := Lookup(v, path...).(string)
	return s
}
