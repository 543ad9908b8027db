// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package capability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greentic/messaging-providers/internal/capability"
	"github.com/greentic/messaging-providers/pkg/errutil"
)

func TestEnforcer_Check(t *testing.T) {
	tests := []struct {
		name       string
		grants     []string
		capability string
		want       bool
	}{
		{"exact match", []string{"http.send"}, "http.send", true},
		{"single segment wildcard", []string{"secrets.read.*"}, "secrets.read.SLACK_BOT_TOKEN", true},
		{"prefix wildcard inside segment", []string{"secrets.read.SLACK_*"}, "secrets.read.SLACK_SIGNING_SECRET", true},
		{"prefix wildcard rejects other secrets", []string{"secrets.read.SLACK_*"}, "secrets.read.jwt_signing_key", false},
		{"double star crosses segments", []string{"state.**"}, "state.write", true},
		{"partial match not allowed", []string{"state"}, "state.read", false},
		{"no grants", []string{}, "http.send", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := capability.NewEnforcer()
			require.NoError(t, e.SetGrants("messaging.slack.api", tt.grants))
			assert.Equal(t, tt.want, e.Check("messaging.slack.api", tt.capability))
		})
	}
}

func TestEnforcer_UnknownProviderDenied(t *testing.T) {
	e := capability.NewEnforcer()
	assert.False(t, e.Check("unknown", "http.send"))
	assert.False(t, e.IsRegistered("unknown"))
}

func TestEnforcer_ZeroValue(t *testing.T) {
	var e capability.Enforcer
	assert.False(t, e.Check("p", "http.send"))
	require.NoError(t, e.SetGrants("p", []string{"http.send"}))
	assert.True(t, e.Check("p", "http.send"))
}

func TestEnforcer_SetGrantsIsAtomic(t *testing.T) {
	e := capability.NewEnforcer()
	require.NoError(t, e.SetGrants("p", []string{"http.send"}))

	err := e.SetGrants("p", []string{"state.read", "[unclosed"})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "GRANT_INVALID")
	assert.Equal(t, []string{"http.send"}, e.GetGrants("p"))

	err = e.SetGrants("p", []string{""})
	require.Error(t, err)
	err = e.SetGrants("", []string{"http.send"})
	require.Error(t, err)
}

func TestEnforcer_RemoveAndList(t *testing.T) {
	e := capability.NewEnforcer()
	require.NoError(t, e.SetGrants("b", []string{"http.send"}))
	require.NoError(t, e.SetGrants("a", []string{"http.send"}))
	assert.Equal(t, []string{"a", "b"}, e.ListProviders())

	e.RemoveGrants("a")
	assert.Equal(t, []string{"b"}, e.ListProviders())
	assert.Nil(t, e.GetGrants("a"))
}
