// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package provider

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/greentic/messaging-providers/internal/core"
)

// ContentTypeJSON is the content type of every encoded payload.
const ContentTypeJSON = "application/json"

// Payload is the universal provider payload produced by encode and
// consumed by send_payload.
type Payload struct {
	ContentType string         `json:"content_type"`
	BodyB64     string         `json:"body_b64"`
	Metadata    map[string]any `json:"metadata"`
}

// JSONPayload encodes body as a JSON payload.
func JSONPayload(body any, meta map[string]any) (Payload, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Payload{}, core.ErrOther("%v", err)
	}
	if meta == nil {
		meta = map[string]any{}
	}
	return Payload{
		ContentType: ContentTypeJSON,
		BodyB64:     base64.StdEncoding.EncodeToString(raw),
		Metadata:    meta,
	}, nil
}

// Body decodes the base64 body.
func (p Payload) Body() ([]byte, error) {
	return base64.StdEncoding.DecodeString(p.BodyB64)
}

// MetaString returns the string metadata value at key.
func (p Payload) MetaString(key string) string {
	s, _ := p.Metadata[key].(string)
	return strings.TrimSpace(s)
}

// EncodeInput is the input of encode.
type EncodeInput struct {
	Message core.ChannelMessageEnvelope `json:"message"`
}

// EncodeResult is the output of encode.
type EncodeResult struct {
	OK      bool    `json:"ok"`
	Payload Payload `json:"payload"`
}

// DecodeEncodeInput parses encode input. Failures read
// "invalid encode input: <reason>".
func DecodeEncodeInput(raw []byte) (EncodeInput, error) {
	var in EncodeInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return EncodeInput{}, Invalid("invalid encode input: %v", err)
	}
	if in.Message.Metadata == nil {
		in.Message.Metadata = core.MessageMetadata{}
	}
	return in, nil
}

// SendPayloadInput is the input of send_payload.
type SendPayloadInput struct {
	ProviderType string          `json:"provider_type"`
	Payload      Payload         `json:"payload"`
	Tenant       *core.TenantCtx `json:"tenant,omitempty"`
}

// SendPayloadResult is the output of send_payload. It never travels as an
// error envelope.
type SendPayloadResult struct {
	OK        bool    `json:"ok"`
	Message   *string `json:"message"`
	Retryable bool    `json:"retryable"`
}

// PayloadSent is the success result.
func PayloadSent() SendPayloadResult {
	return SendPayloadResult{OK: true}
}

// PayloadFailed is a failure result.
func PayloadFailed(msg string, retryable bool) SendPayloadResult {
	return SendPayloadResult{Message: &msg, Retryable: retryable}
}

// PayloadResult maps a send error to a result. Transport failures and 5xx
// statuses are retryable.
func PayloadResult(err error) SendPayloadResult {
	if err == nil {
		return PayloadSent()
	}
	return PayloadFailed(err.Error(), Retryable(err))
}

// DecodeSendPayload checks send_payload input for providerType and returns
// the decoded body. On failure the returned result is the response.
func DecodeSendPayload(raw []byte, providerType string) (SendPayloadInput, []byte, *SendPayloadResult) {
	var in SendPayloadInput
	if err := json.Unmarshal(raw, &in); err != nil {
		r := PayloadFailed("invalid send_payload input: "+err.Error(), false)
		return in, nil, &r
	}
	if in.ProviderType != providerType {
		r := PayloadFailed("provider type mismatch", false)
		return in, nil, &r
	}
	body, err := in.Payload.Body()
	if err != nil {
		r := PayloadFailed("payload decode failed: "+err.Error(), false)
		return in, nil, &r
	}
	return in, body, nil
}

// SendResult is the result of send and reply.
type SendResult struct {
	OK                bool   `json:"ok"`
	ProviderType      string `json:"provider_type"`
	Op                string `json:"op,omitempty"`
	Status            string `json:"status"`
	MessageID         string `json:"message_id"`
	ProviderMessageID string `json:"provider_message_id"`
	PublicBaseURL     string `json:"public_base_url,omitempty"`
	Response          any    `json:"response,omitempty"`
	Input             any    `json:"input,omitempty"`
}

// Send statuses.
const (
	StatusSent    = "sent"
	StatusReplied = "replied"
)

// SendStatus returns the status reported for op.
func SendStatus(op string) string {
	if op == OpReply {
		return StatusReplied
	}
	return StatusSent
}
