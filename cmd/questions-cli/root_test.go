// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greentic/messaging-providers/internal/qa"
	"github.com/greentic/messaging-providers/pkg/errutil"
)

const specJSON = `{
  // comments are accepted
  "id": "messaging-provider-dummy",
  "title": "Dummy",
  "questions": [
    {"name": "enabled", "title": "Enabled", "kind": "bool", "default": true},
    {"name": "label", "title": "Label", "kind": "string", "required": true},
  ]
}`

const setupYAML = `provider_id: messaging-provider-webex
version: 1
title: Webex
questions:
  - name: public_base_url
    title: Public URL
    kind: string
    required: true
  - name: bot_token
    title: Bot token
    kind: string
    secret: true
`

func runCLI(t *testing.T, stdin string, args ...string) (map[string]any, error) {
	t.Helper()
	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		return nil, err
	}
	var answers map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &answers), out.String())
	return answers, nil
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRun_SpecFile(t *testing.T) {
	path := writeTemp(t, "spec.jsonc", specJSON)

	answers, err := runCLI(t, "\nprimary\n", "--spec", path)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"enabled": true, "label": "primary"}, answers)
}

func TestRun_SetupYAML(t *testing.T) {
	path := writeTemp(t, "setup.yaml", setupYAML)

	answers, err := runCLI(t, "https://example.com\nsecret-token\n", "--setup", path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com", answers["public_base_url"])
	assert.Equal(t, "secret-token", answers["bot_token"])
}

func TestRun_Example(t *testing.T) {
	answers, err := runCLI(t, specJSON, "--example")
	require.NoError(t, err)

	assert.Equal(t, true, answers["enabled"])
	assert.Contains(t, answers, "label")
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name  string
		stdin string
		args  []string
	}{
		{"empty stdin", "  \n", nil},
		{"invalid json", "{nope", []string{"--example"}},
		{"invalid regex", `{"questions":[{"name":"x","kind":"string","validate":{"regex":"(["}}]}`, []string{"--example"}},
		{"unknown kind", `{"questions":[{"name":"x","kind":"date"}]}`, []string{"--example"}},
		{"missing file", "", []string{"--spec", "/does/not/exist.json"}},
		{"bad setup", "", []string{"--setup", "/does/not/exist.yaml"}},
		{"unknown argument", "", []string{"extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, tt.stdin, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestRun_InvalidRegexRejectsSpec(t *testing.T) {
	const spec = `{"questions":[{"name":"x","kind":"string","validate":{"regex":"(["}}]}`

	t.Run("stdin", func(t *testing.T) {
		_, err := runCLI(t, spec, "--example")
		errutil.AssertErrorCode(t, err, qa.CodeInvalidRegex)
	})

	t.Run("file", func(t *testing.T) {
		_, err := runCLI(t, "", "--spec", writeTemp(t, "spec.json", spec))
		errutil.AssertErrorCode(t, err, qa.CodeInvalidRegex)
	})
}
