// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package core

import (
	"fmt"

	"github.com/samber/oops"
)

// Error codes for the operation error taxonomy. Each code has a stable
// message prefix that appears verbatim in {ok:false,error} results.
const (
	CodeValidation    = "VALIDATION"
	CodeTransport     = "TRANSPORT"
	CodeMissingSecret = "MISSING_SECRET"
	CodeConfig        = "CONFIG"
	CodeToken         = "TOKEN"
	CodeOther         = "OTHER"
)

// Message prefixes.
const (
	PrefixValidation       = "validation error: "
	PrefixTransport        = "transport error: "
	PrefixInvalidConfig    = "invalid config: "
	PrefixConfigValidation = "config validation failed: "
	PrefixOther            = "other error: "
)

// ErrValidation creates a "validation error: ..." error.
func ErrValidation(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return oops.Code(CodeValidation).Errorf("%s%s", PrefixValidation, msg)
}

// ErrTransport creates a "transport error: <reason>" error.
func ErrTransport(reason string) error {
	return oops.Code(CodeTransport).Errorf("%s%s", PrefixTransport, reason)
}

// ErrMissingSecret creates the missing-secret error for name.
func ErrMissingSecret(name string) error {
	return oops.Code(CodeMissingSecret).
		With("secret", name).
		Errorf("missing secret: %s (scope: tenant)", name)
}

// ErrInvalidConfig creates an "invalid config: ..." error.
func ErrInvalidConfig(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return oops.Code(CodeConfig).Errorf("%s%s", PrefixInvalidConfig, msg)
}

// ErrConfigValidation creates a "config validation failed: ..." error.
func ErrConfigValidation(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return oops.Code(CodeConfig).Errorf("%s%s", PrefixConfigValidation, msg)
}

// ErrOther creates an "other error: ..." error.
func ErrOther(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return oops.Code(CodeOther).Errorf("%s%s", PrefixOther, msg)
}

// ErrorCode returns the taxonomy code of err, or CodeOther when err carries
// no code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		if code, ok := oopsErr.Code().(string); ok && code != "" {
			return code
		}
	}
	return CodeOther
}
