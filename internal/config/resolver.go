// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package config resolves a provider's configuration from invoke input,
// tenant secrets and envelope metadata overrides.
package config

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/samber/oops"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/core"
)

// MetadataPrefix marks envelope metadata entries that override config.
const MetadataPrefix = "config."

// FallbackFunc builds a config from tenant secrets when the input carries
// none.
type FallbackFunc[C any] func(ctx context.Context, secrets capability.SecretStore) (C, error)

// Resolver loads configs of type C. Fields lists the top-level input keys
// that belong to the config; Overrides lists the fields that envelope
// metadata may override. Default, when set, seeds every decode so that
// absent fields keep their default values.
type Resolver[C any] struct {
	Fields    []string
	Overrides []string
	Default   func() C
	Fallback  FallbackFunc[C]
	Validate  func(*C) error
}

// Source records where a resolved config came from.
type Source string

// Config sources.
const (
	SourceConfig   Source = "config"
	SourceTopLevel Source = "top_level"
	SourceSecrets  Source = "secrets"
)

// Resolve runs the resolution steps over input: the config object, then
// top-level fields, then the secrets fallback. Metadata overrides apply to
// whichever config was found and the result is validated.
func (r Resolver[C]) Resolve(ctx context.Context, input map[string]any, meta core.MessageMetadata, secrets capability.SecretStore) (C, error) {
	cfg, _, err := r.ResolveSource(ctx, input, meta, secrets)
	return cfg, err
}

// ResolveSource is Resolve that also reports the source.
func (r Resolver[C]) ResolveSource(ctx context.Context, input map[string]any, meta core.MessageMetadata, secrets capability.SecretStore) (C, Source, error) {
	var zero C
	cfg, source, err := r.load(ctx, input, secrets)
	if err != nil {
		return zero, "", err
	}
	if len(meta) > 0 {
		if cfg, err = r.applyOverrides(cfg, meta); err != nil {
			return zero, "", err
		}
	}
	if r.Validate != nil {
		if err := r.Validate(&cfg); err != nil {
			return zero, "", err
		}
	}
	slog.DebugContext(ctx, "provider config resolved", "source", string(source))
	return cfg, source, nil
}

func (r Resolver[C]) load(ctx context.Context, input map[string]any, secrets capability.SecretStore) (C, Source, error) {
	var zero C
	if raw, ok := input["config"]; ok {
		obj, isObj := raw.(map[string]any)
		if !isObj {
			return zero, "", core.ErrInvalidConfig("config must be an object")
		}
		cfg, err := r.decode(obj)
		return cfg, SourceConfig, err
	}

	partial := map[string]any{}
	for _, key := range r.Fields {
		if v, ok := input[key]; ok {
			partial[key] = v
		}
	}
	if len(partial) > 0 {
		cfg, err := r.decode(partial)
		return cfg, SourceTopLevel, err
	}

	if r.Fallback == nil {
		return zero, "", core.ErrInvalidConfig("expected `config` or top-level config fields")
	}
	if secrets == nil {
		secrets = capability.MapSecrets{}
	}
	cfg, err := r.Fallback(ctx, secrets)
	return cfg, SourceSecrets, err
}

func (r Resolver[C]) decode(v any) (C, error) {
	var cfg C
	if r.Default != nil {
		cfg = r.Default()
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return cfg, core.ErrInvalidConfig("%s", err.Error())
	}
	err = decodeStrictBytes(raw, &cfg)
	return cfg, err
}

// DecodeStrict decodes v into C, rejecting unknown fields.
func DecodeStrict[C any](v any) (C, error) {
	var cfg C
	raw, err := json.Marshal(v)
	if err != nil {
		return cfg, core.ErrInvalidConfig("%s", err.Error())
	}
	if err := decodeStrictBytes(raw, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ParseStrict decodes config JSON bytes, rejecting unknown fields.
func ParseStrict[C any](data []byte) (C, error) {
	var cfg C
	err := decodeStrictBytes(data, &cfg)
	return cfg, err
}

// ParseStrictDefault is ParseStrict starting from def(), so that absent
// fields keep their defaults.
func ParseStrictDefault[C any](data []byte, def func() C) (C, error) {
	cfg := def()
	err := decodeStrictBytes(data, &cfg)
	return cfg, err
}

func decodeStrictBytes(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return core.ErrInvalidConfig("%s", strings.TrimPrefix(err.Error(), "json: "))
	}
	return nil
}

// applyOverrides sets every allowed "config.<field>" metadata value on cfg.
// A value that does not decode as a string is retried as a JSON literal,
// so "false" can override a bool field.
func (r Resolver[C]) applyOverrides(cfg C, meta core.MessageMetadata) (C, error) {
	var applied []string
	for _, field := range r.Overrides {
		value, ok := meta[MetadataPrefix+field]
		if !ok {
			continue
		}
		next, err := setField(cfg, field, value)
		if err != nil {
			return cfg, err
		}
		cfg = next
		applied = append(applied, field)
	}
	if len(applied) > 0 {
		slog.Debug("config overridden from metadata", "fields", applied)
	}
	return cfg, nil
}

func setField[C any](cfg C, field, value string) (C, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return cfg, core.ErrInvalidConfig("%s", err.Error())
	}
	obj := map[string]any{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return cfg, core.ErrInvalidConfig("%s", err.Error())
	}

	obj[field] = value
	out, err := DecodeStrict[C](obj)
	if err == nil {
		return out, nil
	}
	var literal any
	if jsonErr := json.Unmarshal([]byte(value), &literal); jsonErr != nil {
		return cfg, oops.With("field", field).Wrap(core.ErrInvalidConfig("metadata override %s%s: %s", MetadataPrefix, field, value))
	}
	obj[field] = literal
	return DecodeStrict[C](obj)
}
