// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package qa_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greentic/messaging-providers/internal/codec"
	"github.com/greentic/messaging-providers/internal/qa"
)

func TestDefaultENMessage(t *testing.T) {
	tests := map[string]string{
		"slack.qa.setup.public_base_url":   "Public Base URL",
		"webex.qa.setup.default_room_id":   "Default Room ID",
		"slack.op.ingest_http.title":       "Title",
		"teams.schema.config.api_base_url": "API Base URL",
		"x.ui_i18n_config":                 "UI I18N config",
		"qa_op_schema_input_output":        "qa op schema input output",
		"plain":                            "Plain",
		"":                                 "Message",
		"demo.__":                          "Message",
	}
	for key, want := range tests {
		t.Run(key, func(t *testing.T) {
			assert.Equal(t, want, qa.DefaultENMessage(key))
		})
	}
}

func TestBundle(t *testing.T) {
	b := qa.NewBundle("", []string{"demo.qa.setup.title", "demo.qa.setup.bot_token"},
		map[string]string{"demo.qa.setup.title": "Demo setup"})
	assert.Equal(t, "en", b.Locale)
	assert.Equal(t, map[string]string{
		"demo.qa.setup.title":     "Demo setup",
		"demo.qa.setup.bot_token": "Bot Token",
	}, b.Messages)

	raw, err := b.CBOR()
	require.NoError(t, err)
	js, err := codec.ToJSON(raw)
	require.NoError(t, err)
	var decoded qa.Bundle
	require.NoError(t, json.Unmarshal(js, &decoded))
	assert.Equal(t, b, decoded)

	again, err := qa.NewBundle("en", []string{"demo.qa.setup.bot_token", "demo.qa.setup.title"},
		map[string]string{"demo.qa.setup.title": "Demo setup"}).CBOR()
	require.NoError(t, err)
	assert.Equal(t, raw, again)
}
