// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package config

import (
	"context"
	"slices"
	"strings"

	"github.com/samber/oops"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/core"
)

func ruleError(field, format string, args ...any) error {
	return oops.With("field", field).Wrap(core.ErrInvalidConfig(format, args...))
}

// NonEmpty requires value to be non-blank.
func NonEmpty(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return ruleError(field, "%s cannot be empty", field)
	}
	return nil
}

// IsHTTPURL reports whether value starts with http:// or https://.
func IsHTTPURL(value string) bool {
	return strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://")
}

// AbsoluteURL requires value to be a non-empty http(s) URL.
func AbsoluteURL(field, value string) error {
	if err := NonEmpty(field, value); err != nil {
		return err
	}
	if !IsHTTPURL(value) {
		return ruleError(field, "%s must be an absolute URL", field)
	}
	return nil
}

// OptionalURL checks value only when it is set.
func OptionalURL(field string, value *string) error {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil
	}
	return AbsoluteURL(field, *value)
}

// OneOf requires value to be one of allowed.
func OneOf(field, value string, allowed ...string) error {
	if !slices.Contains(allowed, value) {
		return ruleError(field, "%s must be one of %s", field, strings.Join(allowed, ", "))
	}
	return nil
}

// InRange requires minVal <= value <= maxVal.
func InRange(field string, value, minVal, maxVal int) error {
	if value < minVal || value > maxVal {
		return ruleError(field, "%s must be between %d and %d", field, minVal, maxVal)
	}
	return nil
}

// First returns the first rule error.
func First(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Or returns the trimmed *value when set, else def.
func Or(value *string, def string) string {
	if value != nil {
		if v := strings.TrimSpace(*value); v != "" {
			return v
		}
	}
	return def
}

// Optional returns nil for a blank value and a trimmed copy otherwise.
func Optional(value string) *string {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	return &v
}

// SecretOr returns the configured value when set, else the secret under
// key. A miss is the missing-secret error.
func SecretOr(ctx context.Context, secrets capability.SecretStore, value *string, key string) (string, error) {
	if v := Or(value, ""); v != "" {
		return v, nil
	}
	if secrets == nil {
		return "", core.ErrMissingSecret(key)
	}
	return capability.SecretString(ctx, secrets, key)
}

// LookupOr is SecretOr without the missing-secret error.
func LookupOr(ctx context.Context, secrets capability.SecretStore, value *string, key string) (string, bool, error) {
	if v := Or(value, ""); v != "" {
		return v, true, nil
	}
	if secrets == nil {
		return "", false, nil
	}
	s, found, err := capability.LookupSecret(ctx, secrets, key)
	if err != nil {
		return "", false, err
	}
	s = strings.TrimSpace(s)
	return s, found && s != "", nil
}
