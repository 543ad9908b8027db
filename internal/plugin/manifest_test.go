// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package plugin_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greentic/messaging-providers/internal/plugin"
)

func TestParseManifest_BuiltinPlugin(t *testing.T) {
	yaml := `
name: slack
version: 1.0.0
provider_type: messaging.slack.api
capabilities:
  - http.send
  - secrets.read.*
ops:
  - send
  - reply
`
	m, err := plugin.ParseManifest([]byte(yaml))
	require.NoError(t, err)

	assert.Equal(t, "slack", m.Name)
	assert.Equal(t, "1.0.0", m.Version)
	assert.Equal(t, "messaging.slack.api", m.ProviderType)
	assert.Equal(t, plugin.KindBuiltin, m.Kind())
	assert.Len(t, m.Capabilities, 2)
	assert.Equal(t, []string{"send", "reply"}, m.Ops)
	assert.Nil(t, m.BinaryPlugin)
}

func TestParseManifest_BinaryPlugin(t *testing.T) {
	yaml := `
name: dummy-binary
version: 0.4.0
provider_type: messaging.dummy
requires: ">= 0.4.0"
ops:
  - send
binary-plugin:
  executable: provider
`
	m, err := plugin.ParseManifest([]byte(yaml))
	require.NoError(t, err)

	assert.Equal(t, plugin.KindBinary, m.Kind())
	require.NotNil(t, m.BinaryPlugin)
	assert.Equal(t, "provider", m.BinaryPlugin.Executable)
	assert.Equal(t, ">= 0.4.0", m.Requires)
}

func TestParseManifest_InvalidName(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{"uppercase", "Slack"},
		{"leading digit", "1slack"},
		{"trailing hyphen", "slack-"},
		{"underscore", "slack_api"},
		{"empty", `""`},
		{"too long", strings.Repeat("a", 65)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			yaml := "name: " + tt.manifest + "\nversion: 1.0.0\nprovider_type: messaging.slack.api\n"
			_, err := plugin.ParseManifest([]byte(yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "name")
		})
	}
}

func TestParseManifest_ValidNames(t *testing.T) {
	for _, name := range []string{"a", "slack", "teams-bot", "webex2", strings.Repeat("a", 64)} {
		t.Run(name, func(t *testing.T) {
			yaml := "name: " + name + "\nversion: 1.0.0\nprovider_type: messaging.slack.api\n"
			_, err := plugin.ParseManifest([]byte(yaml))
			assert.NoError(t, err)
		})
	}
}

func TestParseManifest_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing version",
			yaml:    "name: slack\nprovider_type: messaging.slack.api\n",
			wantErr: "version is required",
		},
		{
			name:    "non semantic version",
			yaml:    "name: slack\nversion: v1\nprovider_type: messaging.slack.api\n",
			wantErr: "not a semantic version",
		},
		{
			name:    "bad requires",
			yaml:    "name: slack\nversion: 1.0.0\nrequires: \"~> what\"\nprovider_type: messaging.slack.api\n",
			wantErr: "not a version constraint",
		},
		{
			name:    "undotted provider type",
			yaml:    "name: slack\nversion: 1.0.0\nprovider_type: slack\n",
			wantErr: "provider_type",
		},
		{
			name:    "empty capability",
			yaml:    "name: slack\nversion: 1.0.0\nprovider_type: messaging.slack.api\ncapabilities:\n  - \" \"\n",
			wantErr: "capability 0 is empty",
		},
		{
			name:    "malformed capability glob",
			yaml:    "name: slack\nversion: 1.0.0\nprovider_type: messaging.slack.api\ncapabilities:\n  - \"state.[\"\n",
			wantErr: "capability 0",
		},
		{
			name:    "duplicate op",
			yaml:    "name: slack\nversion: 1.0.0\nprovider_type: messaging.slack.api\nops: [send, send]\n",
			wantErr: `op "send" is listed twice`,
		},
		{
			name:    "binary without executable",
			yaml:    "name: slack\nversion: 1.0.0\nprovider_type: messaging.slack.api\nops: [send]\nbinary-plugin:\n  executable: \"\"\n",
			wantErr: "binary-plugin.executable is required",
		},
		{
			name:    "binary without ops",
			yaml:    "name: slack\nversion: 1.0.0\nprovider_type: messaging.slack.api\nbinary-plugin:\n  executable: provider\n",
			wantErr: "ops are required for binary plugins",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := plugin.ParseManifest([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseManifest_InvalidYAML(t *testing.T) {
	_, err := plugin.ParseManifest([]byte("name: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid YAML")
}

func TestParseManifest_EmptyInput(t *testing.T) {
	_, err := plugin.ParseManifest(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestManifest_CheckHost(t *testing.T) {
	tests := []struct {
		name     string
		requires string
		host     string
		wantErr  string
	}{
		{"no constraint", "", "0.0.1", ""},
		{"satisfied", ">= 0.4.0", "0.5.2", ""},
		{"caret", "^1.2.0", "1.9.0", ""},
		{"too old", ">= 0.4.0", "0.3.9", "does not satisfy"},
		{"bad host version", ">= 0.4.0", "latest", "invalid host version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &plugin.Manifest{Requires: tt.requires}
			err := m.CheckHost(tt.host)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestManifest_UnsupportedOps(t *testing.T) {
	m := &plugin.Manifest{Ops: []string{"send", "teleport", "reply", "fly"}}
	supported := map[string]bool{"send": true, "reply": true}

	missing := m.UnsupportedOps(func(op string) bool { return supported[op] })
	assert.Equal(t, []string{"teleport", "fly"}, missing)

	assert.Empty(t, (&plugin.Manifest{}).UnsupportedOps(func(string) bool { return false }))
}
