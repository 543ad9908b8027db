// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package runtimeconfig defines the schema-versioned operational knobs
// shared by every provider: retries, proxy and TLS behavior, telemetry and
// concurrency.
package runtimeconfig

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/samber/oops"
)

// SchemaVersion is the only supported schema_version.
const SchemaVersion = 1

// Error codes.
const (
	CodeDecode             = "RUNTIME_CONFIG_DECODE"
	CodeUnsupportedVersion = "RUNTIME_CONFIG_VERSION"
	CodeInvalid            = "RUNTIME_CONFIG_INVALID"
	CodeLoad               = "RUNTIME_CONFIG_LOAD"
)

// ProxyMode selects whether outbound HTTP honors proxy environment variables.
type ProxyMode string

// Proxy modes.
const (
	ProxyInherit  ProxyMode = "inherit"
	ProxyDisabled ProxyMode = "disabled"
)

// TLSMode selects certificate verification for outbound HTTP.
type TLSMode string

// TLS modes.
const (
	TLSStrict   TLSMode = "strict"
	TLSInsecure TLSMode = "insecure"
)

// Config is the provider runtime configuration. Unknown fields are rejected
// at every level when decoding.
type Config struct {
	SchemaVersion int       `json:"schema_version" jsonschema:"enum=1"`
	Telemetry     Telemetry `json:"telemetry"`
	Network       Network   `json:"network"`
	Runtime       Runtime   `json:"runtime"`
}

// Telemetry controls provider telemetry emission.
type Telemetry struct {
	EmitEnabled bool   `json:"emit_enabled"`
	ServiceName string `json:"service_name,omitempty"`
}

// Network controls outbound HTTP behavior.
type Network struct {
	MaxAttempts int       `json:"max_attempts" jsonschema:"minimum=1"`
	Proxy       ProxyMode `json:"proxy" jsonschema:"enum=inherit,enum=disabled"`
	TLS         TLSMode   `json:"tls" jsonschema:"enum=strict,enum=insecure"`
}

// Runtime holds execution limits.
type Runtime struct {
	MaxConcurrency *int `json:"max_concurrency,omitempty" jsonschema:"minimum=1"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		SchemaVersion: SchemaVersion,
		Network: Network{
			MaxAttempts: 1,
			Proxy:       ProxyInherit,
			TLS:         TLSStrict,
		},
	}
}

// Validate checks schema version and value ranges.
func (c Config) Validate() error {
	if c.SchemaVersion != SchemaVersion {
		return oops.Code(CodeUnsupportedVersion).
			With("expected", SchemaVersion).
			With("got", c.SchemaVersion).
			Errorf("unsupported schema version: expected %d, got %d", SchemaVersion, c.SchemaVersion)
	}
	if c.Network.MaxAttempts < 1 {
		return oops.Code(CodeInvalid).
			With("field", "network.max_attempts").
			Errorf("network.max_attempts must be at least 1, got %d", c.Network.MaxAttempts)
	}
	switch c.Network.Proxy {
	case ProxyInherit, ProxyDisabled:
	default:
		return oops.Code(CodeInvalid).
			With("field", "network.proxy").
			Errorf("network.proxy must be inherit or disabled, got %q", c.Network.Proxy)
	}
	switch c.Network.TLS {
	case TLSStrict, TLSInsecure:
	default:
		return oops.Code(CodeInvalid).
			With("field", "network.tls").
			Errorf("network.tls must be strict or insecure, got %q", c.Network.TLS)
	}
	if c.Runtime.MaxConcurrency != nil && *c.Runtime.MaxConcurrency < 1 {
		return oops.Code(CodeInvalid).
			With("field", "runtime.max_concurrency").
			Errorf("runtime.max_concurrency must be at least 1")
	}
	return nil
}

// Decode parses JSON into a Config starting from Default, rejecting unknown
// fields, and validates the result.
func Decode(data []byte) (Config, error) {
	cfg := Default()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, oops.Code(CodeDecode).Errorf("invalid runtime config: %s", err.Error())
	}
	if dec.More() {
		return Config{}, oops.Code(CodeDecode).Errorf("invalid runtime config: trailing data")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// String renders the config for logs.
func (c Config) String() string {
	concurrency := "unbounded"
	if c.Runtime.MaxConcurrency != nil {
		concurrency = fmt.Sprint(*c.Runtime.MaxConcurrency)
	}
	return fmt.Sprintf("schema_version=%d max_attempts=%d proxy=%s tls=%s telemetry=%t concurrency=%s",
		c.SchemaVersion, c.Network.MaxAttempts, c.Network.Proxy, c.Network.TLS, c.Telemetry.EmitEnabled, concurrency)
}
