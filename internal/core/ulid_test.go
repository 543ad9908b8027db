// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package core_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greentic/messaging-providers/internal/core"
)

func TestNewULID(t *testing.T) {
	id1 := core.NewULID()
	id2 := core.NewULID()

	assert.NotEmpty(t, id1.String())
	assert.NotEqual(t, id1.String(), id2.String())
	assert.LessOrEqual(t, id1.String(), id2.String(), "later ULID should sort after earlier ULID")
}

func TestNewID(t *testing.T) {
	id := core.NewID("conv")
	require.True(t, strings.HasPrefix(id, "conv-"))

	_, err := core.ParseULID(strings.TrimPrefix(id, "conv-"))
	require.NoError(t, err)

	assert.Len(t, core.NewID(""), 26)
}

func TestParseULID_Invalid(t *testing.T) {
	_, err := core.ParseULID("invalid")
	assert.Error(t, err)
}
