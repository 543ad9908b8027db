// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package runtimeconfig

import (
	"encoding/json"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Flag names bound by BindFlags. Each maps onto the dotted config path of the
// same name.
const (
	FlagMaxAttempts    = "network.max_attempts"
	FlagProxy          = "network.proxy"
	FlagTLS            = "network.tls"
	FlagTelemetry      = "telemetry.emit_enabled"
	FlagServiceName    = "telemetry.service_name"
	FlagMaxConcurrency = "runtime.max_concurrency"
)

// BindFlags registers runtime config overrides on fs.
func BindFlags(fs *pflag.FlagSet) {
	def := Default()
	fs.Int(FlagMaxAttempts, def.Network.MaxAttempts, "outbound HTTP attempts per request")
	fs.String(FlagProxy, string(def.Network.Proxy), "proxy mode (inherit, disabled)")
	fs.String(FlagTLS, string(def.Network.TLS), "TLS verification (strict, insecure)")
	fs.Bool(FlagTelemetry, def.Telemetry.EmitEnabled, "emit provider telemetry")
	fs.String(FlagServiceName, "", "telemetry service name")
	fs.Int(FlagMaxConcurrency, 0, "maximum concurrent invocations (0 = unbounded)")
}

var flagNames = []string{FlagMaxAttempts, FlagProxy, FlagTLS, FlagTelemetry, FlagServiceName, FlagMaxConcurrency}

// runtimeFlags returns the flags of fs bound by BindFlags, so that a
// command's other flags never reach the strict decode.
func runtimeFlags(fs *pflag.FlagSet) *pflag.FlagSet {
	out := pflag.NewFlagSet("runtime", pflag.ContinueOnError)
	for _, name := range flagNames {
		if f := fs.Lookup(name); f != nil {
			out.AddFlag(f)
		}
	}
	return out
}

// Load reads path (YAML or JSON; empty means defaults only), then applies
// any flags in fs that were explicitly set, then strictly decodes and
// validates the merged tree.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code(CodeLoad).With("path", path).Wrapf(err, "load runtime config")
		}
	}
	if fs != nil {
		if err := k.Load(posflag.Provider(runtimeFlags(fs), ".", k), nil); err != nil {
			return Config{}, oops.Code(CodeLoad).Wrapf(err, "load runtime config flags")
		}
		if v, ok := k.Get(FlagMaxConcurrency).(int); ok && v == 0 {
			k.Delete(FlagMaxConcurrency)
		}
		if v, ok := k.Get(FlagServiceName).(string); ok && v == "" {
			k.Delete(FlagServiceName)
		}
	}

	raw, err := json.Marshal(k.Raw())
	if err != nil {
		return Config{}, oops.Code(CodeLoad).Wrapf(err, "encode runtime config")
	}
	return Decode(raw)
}
