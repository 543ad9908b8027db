// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package qa

import (
	"strings"

	"github.com/greentic/messaging-providers/internal/codec"
)

// DefaultLocale is used when a bundle is requested without a locale.
const DefaultLocale = "en"

var acronyms = map[string]string{
	"id":   "ID",
	"url":  "URL",
	"http": "HTTP",
	"api":  "API",
	"ui":   "UI",
	"i18n": "I18N",
}

var lowerWords = map[string]bool{
	"qa":     true,
	"op":     true,
	"schema": true,
	"config": true,
	"input":  true,
	"output": true,
}

// DefaultENMessage derives an English message from the last segment of a
// dotted key, e.g. "slack.qa.setup.public_base_url" -> "Public Base URL".
func DefaultENMessage(key string) string {
	key = strings.TrimSpace(key)
	segment := key
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		segment = key[i+1:]
	}
	words := make([]string, 0, 4)
	for _, w := range strings.Split(segment, "_") {
		w = strings.ToLower(strings.TrimSpace(w))
		switch {
		case w == "":
			continue
		case lowerWords[w]:
			words = append(words, w)
		case acronyms[w] != "":
			words = append(words, acronyms[w])
		default:
			words = append(words, strings.ToUpper(w[:1])+w[1:])
		}
	}
	if len(words) == 0 {
		return "Message"
	}
	return strings.Join(words, " ")
}

// Bundle is a locale's message table.
type Bundle struct {
	Locale   string            `json:"locale"`
	Messages map[string]string `json:"messages"`
}

// NewBundle builds the bundle for locale from explicit messages, falling
// back to DefaultENMessage for every key without one.
func NewBundle(locale string, keys []string, messages map[string]string) Bundle {
	if strings.TrimSpace(locale) == "" {
		locale = DefaultLocale
	}
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		if msg, ok := messages[key]; ok {
			out[key] = msg
			continue
		}
		out[key] = DefaultENMessage(key)
	}
	return Bundle{Locale: locale, Messages: out}
}

// CBOR encodes the bundle as canonical CBOR.
func (b Bundle) CBOR() ([]byte, error) {
	return codec.Canonical(b)
}
