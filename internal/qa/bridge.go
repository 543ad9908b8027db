// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package qa

import (
	"encoding/json"
	"log/slog"

	"github.com/greentic/messaging-providers/internal/codec"
)

// Bridge op names.
const (
	OpQASpec       = "qa-spec"
	OpApplyAnswers = "apply-answers"
	OpI18nKeys     = "i18n-keys"
)

// ApplyFunc is a provider's native apply-answers entry point. It takes
// canonical CBOR answers and returns a CBOR-encoded Result.
type ApplyFunc func(mode Mode, answers []byte) []byte

// SpecFunc builds the spec for mode.
type SpecFunc func(mode Mode) Spec

// Bridge serves the QA ops over JSON for a provider whose apply pipeline
// speaks CBOR.
type Bridge struct {
	Spec     SpecFunc
	Apply    ApplyFunc
	I18nKeys []string
}

// IsBridgeOp reports whether op is served by the bridge.
func IsBridgeOp(op string) bool {
	switch op {
	case OpQASpec, OpApplyAnswers, OpI18nKeys:
		return true
	default:
		return false
	}
}

// Dispatch serves op with JSON input. handled is false for ops the bridge
// does not own.
func (b Bridge) Dispatch(op string, input []byte) (out []byte, handled bool) {
	switch op {
	case OpQASpec:
		return b.qaSpec(input), true
	case OpApplyAnswers:
		return b.applyAnswers(input), true
	case OpI18nKeys:
		keys := b.I18nKeys
		if keys == nil {
			keys = []string{}
		}
		return mustJSON(keys), true
	default:
		return nil, false
	}
}

type specRequest struct {
	Mode string `json:"mode"`
}

func (b Bridge) qaSpec(input []byte) []byte {
	var req specRequest
	if len(input) > 0 {
		if err := json.Unmarshal(input, &req); err != nil {
			slog.Debug("qa-spec input is not json, using setup mode", "error", err)
			req = specRequest{}
		}
	}
	mode, err := ParseMode(req.Mode)
	if err != nil {
		return errorJSON(err.Error())
	}
	return mustJSON(b.Spec(mode))
}

type applyRequest struct {
	Mode          string          `json:"mode"`
	CurrentConfig json.RawMessage `json:"current_config"`
	Answers       json.RawMessage `json:"answers"`
}

func (b Bridge) applyAnswers(input []byte) []byte {
	var req applyRequest
	if err := json.Unmarshal(input, &req); err != nil {
		return errorJSON("invalid input json: " + err.Error())
	}
	mode, err := ParseMode(req.Mode)
	if err != nil {
		return errorJSON(err.Error())
	}

	var payload any = map[string]any{}
	if len(req.Answers) > 0 && string(req.Answers) != "null" {
		tree, err := codec.DecodeJSON(req.Answers)
		if err != nil {
			return errorJSON("invalid input json: " + err.Error())
		}
		payload = tree
	}
	if obj, ok := payload.(map[string]any); ok && len(req.CurrentConfig) > 0 && string(req.CurrentConfig) != "null" {
		current, err := codec.DecodeJSON(req.CurrentConfig)
		if err != nil {
			return errorJSON("invalid input json: " + err.Error())
		}
		obj["existing_config"] = current
	}

	answers, err := codec.Canonical(payload)
	if err != nil {
		return errorJSON("cbor encode error: " + err.Error())
	}
	out, err := codec.ToJSON(b.Apply(mode, answers))
	if err != nil {
		return errorJSON("cbor decode error: " + err.Error())
	}
	return out
}

func errorJSON(msg string) []byte {
	return mustJSON(map[string]any{"ok": false, "error": msg})
}

func mustJSON(v any) []byte {
	out, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"ok":false,"error":"other error: json encode failed"}`)
	}
	return out
}
