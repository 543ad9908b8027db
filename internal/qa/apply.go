// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package qa

import (
	"encoding/json"
	"strings"

	"github.com/greentic/messaging-providers/internal/codec"
)

// DefaultRemoveCleanup lists the cleanup steps of a remove plan in order.
var DefaultRemoveCleanup = []string{
	"delete_config_key",
	"delete_provenance_key",
	"delete_provider_state_namespace",
	"best_effort_revoke_webhooks",
	"best_effort_revoke_tokens",
	"best_effort_delete_provider_owned_secrets",
}

// RemovePlan tells the host what to clean up on remove.
type RemovePlan struct {
	RemoveAll bool     `json:"remove_all"`
	Cleanup   []string `json:"cleanup"`
}

// Result is the outcome of apply-answers.
type Result struct {
	OK          bool        `json:"ok"`
	Config      any         `json:"config"`
	Remove      *RemovePlan `json:"remove"`
	Diagnostics []string    `json:"diagnostics"`
	Error       *string     `json:"error"`
}

// Success returns an ok result carrying cfg.
func Success(cfg any) Result {
	return Result{OK: true, Config: cfg, Diagnostics: []string{}}
}

// Removal returns the standard remove-everything result.
func Removal() Result {
	return Result{
		OK:          true,
		Remove:      &RemovePlan{RemoveAll: true, Cleanup: append([]string(nil), DefaultRemoveCleanup...)},
		Diagnostics: []string{},
	}
}

// Failure returns a failed result with msg.
func Failure(msg string) Result {
	return Result{Diagnostics: []string{}, Error: &msg}
}

// Bytes encodes r as canonical CBOR.
func (r Result) Bytes() []byte {
	out, err := codec.Canonical(r)
	if err != nil {
		out, _ = codec.Canonical(Failure("other error: " + err.Error()))
	}
	return out
}

// Answers is a decoded apply-answers payload.
type Answers map[string]any

// DecodeAnswers decodes a CBOR answers payload. A non-map payload yields
// empty answers.
func DecodeAnswers(data []byte) (Answers, error) {
	js, err := codec.ToJSON(data)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(js, &v); err != nil {
		return nil, err
	}
	m, _ := v.(map[string]any)
	if m == nil {
		m = map[string]any{}
	}
	return Answers(m), nil
}

// Has reports whether key is present.
func (a Answers) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// String returns the trimmed string at key when it is non-empty.
func (a Answers) String(key string) (string, bool) {
	s, ok := a[key].(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// Bool returns the bool at key.
func (a Answers) Bool(key string) (bool, bool) {
	b, ok := a[key].(bool)
	return b, ok
}

// Number returns the number at key.
func (a Answers) Number(key string) (float64, bool) {
	return asNumber(a[key])
}

// Existing returns the config the host passed along with the answers,
// from existing_config or config.
func (a Answers) Existing() (map[string]any, bool) {
	for _, key := range []string{"existing_config", "config"} {
		if m, ok := a[key].(map[string]any); ok {
			return m, true
		}
	}
	return nil, false
}

// Field describes how one config field takes its value from answers.
// Optional string fields may be cleared by an upgrade.
type Field struct {
	Name     string
	Kind     string
	Optional bool
}

// Applier merges answers into a provider config of type C.
type Applier[C any] struct {
	Fields []Field
	// Default returns the config used when no existing config is given.
	Default func() C
	// Normalize fills derived defaults after the merge.
	Normalize func(*C)
	// Validate rejects a merged config with an operator-facing message.
	Validate func(C) error
}

// Apply runs the apply-answers pipeline for mode over a CBOR payload and
// returns the CBOR-encoded Result. Setup and default modes take every
// usable answer. Upgrade takes only the answers present and returns the
// full merged config.
func (ap Applier[C]) Apply(mode Mode, answersCBOR []byte) []byte {
	return ap.ApplyResult(mode, answersCBOR).Bytes()
}

// ApplyResult is Apply without the final encoding.
func (ap Applier[C]) ApplyResult(mode Mode, answersCBOR []byte) Result {
	answers, err := DecodeAnswers(answersCBOR)
	if err != nil {
		return Failure("invalid answers cbor: " + err.Error())
	}
	if mode == ModeRemove {
		return Removal()
	}

	merged, err := ap.base(answers)
	if err != nil {
		return Failure("invalid config: " + err.Error())
	}
	for _, f := range ap.Fields {
		if mode == ModeUpgrade && !answers.Has(f.Name) {
			continue
		}
		ap.merge(mode, merged, answers, f)
	}

	raw, err := json.Marshal(merged)
	if err != nil {
		return Failure("other error: " + err.Error())
	}
	var cfg C
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Failure("invalid config: " + err.Error())
	}
	if ap.Normalize != nil {
		ap.Normalize(&cfg)
	}
	if ap.Validate != nil {
		if err := ap.Validate(cfg); err != nil {
			return Failure(err.Error())
		}
	}
	return Success(cfg)
}

func (ap Applier[C]) base(answers Answers) (map[string]any, error) {
	start := ap.defaults()
	if existing, ok := answers.Existing(); ok {
		raw, err := json.Marshal(existing)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &start); err != nil {
			start = ap.defaults()
		}
	}
	raw, err := json.Marshal(start)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (ap Applier[C]) defaults() C {
	if ap.Default != nil {
		return ap.Default()
	}
	var zero C
	return zero
}

func (ap Applier[C]) merge(mode Mode, merged map[string]any, answers Answers, f Field) {
	switch f.Kind {
	case KindBool:
		if b, ok := answers.Bool(f.Name); ok {
			merged[f.Name] = b
		}
	case KindNumber:
		if n, ok := answers.Number(f.Name); ok {
			merged[f.Name] = n
		}
	default:
		s, ok := answers.String(f.Name)
		switch {
		case ok:
			merged[f.Name] = s
		case mode == ModeUpgrade && f.Optional:
			delete(merged, f.Name)
		}
	}
}
