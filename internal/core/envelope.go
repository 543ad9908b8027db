// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package core

import (
	"encoding/json"
	"strings"
)

// MetadataAdaptiveCard is the metadata key carrying a serialized Adaptive
// Card.
const MetadataAdaptiveCard = "adaptive_card"

// MessageMetadata is the string map attached to every envelope.
type MessageMetadata map[string]string

// Actor identifies the sender of a message.
type Actor struct {
	ID   string `json:"id"`
	Kind string `json:"kind,omitempty"`
}

// Attachment references binary content carried alongside a message.
type Attachment struct {
	MimeType  string `json:"mime_type"`
	URL       string `json:"url"`
	Name      string `json:"name,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// ReplyScope ties a message to an existing conversation or thread.
type ReplyScope struct {
	Conversation string `json:"conversation"`
	Thread       string `json:"thread,omitempty"`
	ReplyTo      string `json:"reply_to,omitempty"`
	Correlation  string `json:"correlation,omitempty"`
}

// ChannelMessageEnvelope is the canonical message record carried through
// send, reply and render paths.
type ChannelMessageEnvelope struct {
	ID            string          `json:"id"`
	Tenant        TenantCtx       `json:"tenant"`
	Channel       string          `json:"channel"`
	SessionID     string          `json:"session_id"`
	ReplyScope    *ReplyScope     `json:"reply_scope,omitempty"`
	From          *Actor          `json:"from,omitempty"`
	To            []Destination   `json:"to"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Text          *string         `json:"text,omitempty"`
	Attachments   []Attachment    `json:"attachments"`
	Metadata      MessageMetadata `json:"metadata"`
}

// TrimmedText returns the trimmed text, or "" when absent.
func (e *ChannelMessageEnvelope) TrimmedText() string {
	if e.Text == nil {
		return ""
	}
	return strings.TrimSpace(*e.Text)
}

// AdaptiveCard returns the parsed metadata["adaptive_card"] value. ok is
// false when the key is absent; err is set when it is present but is not
// valid JSON.
func (e *ChannelMessageEnvelope) AdaptiveCard() (card any, ok bool, err error) {
	raw, present := e.Metadata[MetadataAdaptiveCard]
	if !present || strings.TrimSpace(raw) == "" {
		return nil, false, nil
	}
	if err := json.Unmarshal([]byte(raw), &card); err != nil {
		return nil, true, err
	}
	return card, true, nil
}

// Validate checks the send-path invariant: text or a parseable Adaptive
// Card must be present.
func (e *ChannelMessageEnvelope) Validate() error {
	if e.TrimmedText() != "" {
		return nil
	}
	if _, ok, err := e.AdaptiveCard(); ok && err == nil {
		return nil
	}
	return ErrValidation("envelope requires text or metadata.adaptive_card")
}

// FirstDestination returns the first entry of To.
func (e *ChannelMessageEnvelope) FirstDestination() (Destination, bool) {
	if len(e.To) == 0 {
		return Destination{}, false
	}
	return e.To[0], true
}

var envelopeKeys = []string{"id", "tenant", "channel", "session_id"}

// LooksLikeEnvelope reports whether a decoded JSON object carries the keys
// that identify a full envelope rather than a shorthand send input.
func LooksLikeEnvelope(obj map[string]any) bool {
	for _, key := range envelopeKeys {
		if _, ok := obj[key]; !ok {
			return false
		}
	}
	_, isObject := obj["tenant"].(map[string]any)
	return isObject
}

// DecodeEnvelope decodes raw as an envelope, filling nil collections.
func DecodeEnvelope(raw []byte) (ChannelMessageEnvelope, error) {
	var env ChannelMessageEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ChannelMessageEnvelope{}, ErrValidation("invalid envelope: %v", err)
	}
	env.normalize()
	return env, nil
}

func (e *ChannelMessageEnvelope) normalize() {
	if e.To == nil {
		e.To = []Destination{}
	}
	if e.Attachments == nil {
		e.Attachments = []Attachment{}
	}
	if e.Metadata == nil {
		e.Metadata = MessageMetadata{}
	}
}

// SyntheticEnvelope builds an envelope for shorthand send inputs such as
// {"to":"C1","text":"hi"}. The tenant is "manual"/"manual" and the id is a
// fresh ULID.
func SyntheticEnvelope(channel string, dest Destination, text *string) ChannelMessageEnvelope {
	meta := MessageMetadata{"channel": dest.ID}
	if dest.Kind != "" {
		meta["destination_kind"] = dest.Kind
	}
	env := ChannelMessageEnvelope{
		ID:        NewID("synthetic-" + channel),
		Tenant:    NewTenantCtx("manual", "manual"),
		Channel:   dest.ID,
		SessionID: dest.ID,
		To:        []Destination{dest},
		Text:      text,
		Metadata:  meta,
	}
	env.normalize()
	return env
}

// IngressEnvelope builds the envelope produced by webhook normalization.
// The tenant is "default"/"default".
func IngressEnvelope(id, channel, sessionID string, from *Actor, to []Destination, text string, meta MessageMetadata) ChannelMessageEnvelope {
	env := ChannelMessageEnvelope{
		ID:        id,
		Tenant:    DefaultTenantCtx(),
		Channel:   channel,
		SessionID: sessionID,
		From:      from,
		To:        to,
		Text:      &text,
		Metadata:  meta,
	}
	env.normalize()
	return env
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
