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

func newTestBridge(seen *[]byte, seenMode *qa.Mode) qa.Bridge {
	return qa.Bridge{
		Spec: func(mode qa.Mode) qa.Spec {
			return qa.SpecForMode(mode, "demo", testDefs, []string{"public_base_url"})
		},
		Apply: func(mode qa.Mode, answers []byte) []byte {
			if seen != nil {
				*seen = answers
			}
			if seenMode != nil {
				*seenMode = mode
			}
			return demoApplier.Apply(mode, answers)
		},
		I18nKeys: []string{"demo.qa.setup.title"},
	}
}

func decodeObject(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestBridgeQASpec(t *testing.T) {
	b := newTestBridge(nil, nil)

	tests := []struct {
		name      string
		input     string
		wantMode  string
		wantCount int
	}{
		{name: "explicit mode", input: `{"mode":"default"}`, wantMode: "default", wantCount: 1},
		{name: "missing mode", input: `{}`, wantMode: "setup", wantCount: len(testDefs)},
		{name: "invalid json falls back to setup", input: `not json`, wantMode: "setup", wantCount: len(testDefs)},
		{name: "empty input", input: ``, wantMode: "setup", wantCount: len(testDefs)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, handled := b.Dispatch(qa.OpQASpec, []byte(tt.input))
			require.True(t, handled)
			got := decodeObject(t, out)
			assert.Equal(t, tt.wantMode, got["mode"])
			assert.Len(t, got["questions"], tt.wantCount)
		})
	}

	t.Run("unknown mode is an error envelope", func(t *testing.T) {
		out, handled := b.Dispatch(qa.OpQASpec, []byte(`{"mode":"wipe"}`))
		require.True(t, handled)
		got := decodeObject(t, out)
		assert.Equal(t, false, got["ok"])
		assert.Equal(t, "validation error: unsupported qa mode: wipe", got["error"])
	})
}

func TestBridgeApplyAnswersPacksCurrentConfig(t *testing.T) {
	var seen []byte
	var mode qa.Mode
	b := newTestBridge(&seen, &mode)

	out, handled := b.Dispatch(qa.OpApplyAnswers, []byte(`{
		"mode": "upgrade",
		"current_config": {"public_base_url": "https://old.example.com", "bot_token": "t"},
		"answers": {"public_base_url": "https://new.example.com"}
	}`))
	require.True(t, handled)
	assert.Equal(t, qa.ModeUpgrade, mode)

	want, err := codec.Canonical(map[string]any{
		"public_base_url": "https://new.example.com",
		"existing_config": map[string]any{"public_base_url": "https://old.example.com", "bot_token": "t"},
	})
	require.NoError(t, err)
	assert.Equal(t, want, seen)

	got := decodeObject(t, out)
	require.Equal(t, true, got["ok"])
	cfg := got["config"].(map[string]any)
	assert.Equal(t, "https://new.example.com", cfg["public_base_url"])
	assert.Equal(t, "t", cfg["bot_token"])
}

func TestBridgeApplyAnswersDefaults(t *testing.T) {
	var seen []byte
	var mode qa.Mode
	b := newTestBridge(&seen, &mode)

	out, handled := b.Dispatch(qa.OpApplyAnswers, []byte(`{"mode":"remove"}`))
	require.True(t, handled)
	assert.Equal(t, qa.ModeRemove, mode)

	empty, err := codec.Canonical(map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, empty, seen)

	got := decodeObject(t, out)
	assert.Equal(t, true, got["ok"])
	assert.Nil(t, got["config"])
	assert.Len(t, got["remove"].(map[string]any)["cleanup"], 6)
}

func TestBridgeApplyAnswersErrors(t *testing.T) {
	t.Run("invalid json", func(t *testing.T) {
		out, _ := newTestBridge(nil, nil).Dispatch(qa.OpApplyAnswers, []byte(`{`))
		got := decodeObject(t, out)
		assert.Equal(t, false, got["ok"])
		assert.Contains(t, got["error"], "invalid input json: ")
	})

	t.Run("undecodable plugin output", func(t *testing.T) {
		b := qa.Bridge{Apply: func(qa.Mode, []byte) []byte { return []byte{0xff} }}
		out, _ := b.Dispatch(qa.OpApplyAnswers, []byte(`{"answers":{}}`))
		got := decodeObject(t, out)
		assert.Equal(t, false, got["ok"])
		assert.Contains(t, got["error"], "cbor decode error: ")
	})
}

func TestBridgeI18nKeysAndUnknownOps(t *testing.T) {
	b := newTestBridge(nil, nil)

	out, handled := b.Dispatch(qa.OpI18nKeys, nil)
	require.True(t, handled)
	assert.JSONEq(t, `["demo.qa.setup.title"]`, string(out))

	_, handled = b.Dispatch("send", []byte(`{}`))
	assert.False(t, handled)
	assert.True(t, qa.IsBridgeOp("apply-answers"))
	assert.False(t, qa.IsBridgeOp("send"))
}
