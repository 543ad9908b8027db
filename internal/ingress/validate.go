// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package ingress verifies inbound webhooks and normalizes them into
// {ok, event} records and canonical envelopes.
package ingress

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/samber/oops"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/internal/core"
)

// Secret keys read by the validators.
const (
	SlackSigningSecretKey = "SLACK_SIGNING_SECRET"
	WhatsAppVerifyKey     = "WHATSAPP_VERIFY_TOKEN"
	WebexWebhookSecretKey = "WEBEX_WEBHOOK_SECRET"
)

// Slack signature headers.
const (
	HeaderSlackSignature = "X-Slack-Signature"
	HeaderSlackTimestamp = "X-Slack-Request-Timestamp"
	HeaderWebexSignature = "X-Spark-Signature"
)

// Event is a verified webhook body.
type Event struct {
	OK    bool `json:"ok"`
	Event any  `json:"event"`
}

// Validator verifies a webhook and returns its parsed body.
type Validator interface {
	Validate(ctx context.Context, headers []capability.Header, body []byte, secrets capability.SecretStore) (Event, error)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, headers []capability.Header, body []byte, secrets capability.SecretStore) (Event, error)

// Validate calls f.
func (f ValidatorFunc) Validate(ctx context.Context, headers []capability.Header, body []byte, secrets capability.SecretStore) (Event, error) {
	return f(ctx, headers, body, secrets)
}

// Slack verifies the v0 request signature when a signing secret is
// configured. With RequireSecret set, a missing secret is an error
// instead of skipping verification.
type Slack struct {
	RequireSecret bool
}

// Validate implements Validator.
func (s Slack) Validate(ctx context.Context, headers []capability.Header, body []byte, secrets capability.SecretStore) (Event, error) {
	secret, found, err := lookup(ctx, secrets, SlackSigningSecretKey)
	if err != nil {
		return Event{}, err
	}
	switch {
	case found:
		if err := VerifySlackSignature(headers, body, secret); err != nil {
			return Event{}, err
		}
	case s.RequireSecret:
		return Event{}, core.ErrMissingSecret(SlackSigningSecretKey)
	}
	parsed, err := parseBody(body, "invalid body json")
	if err != nil {
		return Event{}, err
	}
	return Event{OK: true, Event: parsed}, nil
}

// SlackSignature returns "v0=" + hex(HMAC-SHA256(secret, "v0:<ts>:<body>")).
func SlackSignature(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + timestamp + ":"))
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySlackSignature checks the signature headers against secret.
func VerifySlackSignature(headers []capability.Header, body []byte, secret string) error {
	signature, ok := capability.LookupHeader(headers, HeaderSlackSignature)
	if !ok {
		return core.ErrValidation("missing signature")
	}
	timestamp, ok := capability.LookupHeader(headers, HeaderSlackTimestamp)
	if !ok {
		return core.ErrValidation("missing timestamp")
	}
	expected := SlackSignature(secret, timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return oops.With("timestamp", timestamp).Wrap(core.ErrValidation("invalid signature"))
	}
	return nil
}

// WhatsApp checks a verify token carried in the body against the
// configured secret. Bodies without a token are accepted.
type WhatsApp struct{}

// Validate implements Validator.
func (WhatsApp) Validate(ctx context.Context, _ []capability.Header, body []byte, secrets capability.SecretStore) (Event, error) {
	parsed, err := parseBody(body, "invalid body")
	if err != nil {
		return Event{}, err
	}
	if obj, ok := parsed.(map[string]any); ok {
		token, has := obj["hub.verify_token"].(string)
		if !has {
			token, has = obj["verify_token"].(string)
		}
		if has {
			if err := CheckVerifyToken(ctx, secrets, token); err != nil {
				return Event{}, err
			}
		}
	}
	return Event{OK: true, Event: parsed}, nil
}

// CheckVerifyToken compares token with the WhatsApp verify token secret.
func CheckVerifyToken(ctx context.Context, secrets capability.SecretStore, token string) error {
	if secrets == nil {
		return core.ErrMissingSecret(WhatsAppVerifyKey)
	}
	expected, err := capability.SecretString(ctx, secrets, WhatsAppVerifyKey)
	if err != nil {
		return err
	}
	if token != expected {
		return core.ErrValidation("verify token mismatch")
	}
	return nil
}

// Webex verifies the X-Spark-Signature HMAC-SHA1 of the body when the
// webhook was registered with a secret.
type Webex struct{}

// Validate implements Validator.
func (Webex) Validate(ctx context.Context, headers []capability.Header, body []byte, secrets capability.SecretStore) (Event, error) {
	secret, found, err := lookup(ctx, secrets, WebexWebhookSecretKey)
	if err != nil {
		return Event{}, err
	}
	if found {
		signature, ok := capability.LookupHeader(headers, HeaderWebexSignature)
		if !ok {
			return Event{}, core.ErrValidation("missing signature")
		}
		if !hmac.Equal([]byte(WebexSignature(secret, body)), []byte(strings.ToLower(signature))) {
			return Event{}, core.ErrValidation("invalid signature")
		}
	}
	parsed, err := parseBody(body, "invalid body")
	if err != nil {
		return Event{}, err
	}
	return Event{OK: true, Event: parsed}, nil
}

// WebexSignature returns hex(HMAC-SHA1(secret, body)).
func WebexSignature(secret string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Passthrough accepts any JSON body. Telegram and Teams webhooks use it.
type Passthrough struct{}

// Validate implements Validator.
func (Passthrough) Validate(_ context.Context, _ []capability.Header, body []byte, _ capability.SecretStore) (Event, error) {
	parsed, err := parseBody(body, "invalid body")
	if err != nil {
		return Event{}, err
	}
	return Event{OK: true, Event: parsed}, nil
}

func parseBody(body []byte, msg string) (any, error) {
	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, core.ErrValidation("%s", msg)
	}
	return parsed, nil
}

func lookup(ctx context.Context, secrets capability.SecretStore, key string) (string, bool, error) {
	if secrets == nil {
		return "", false, nil
	}
	return capability.LookupSecret(ctx, secrets, key)
}
