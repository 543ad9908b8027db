// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package schema

import (
	"github.com/greentic/messaging-providers/internal/codec"
)

// Hash returns the schema_hash of a describe payload: the lowercase hex
// SHA-256 of the canonical CBOR encoding of {"input","output","config"}.
func Hash(input, output, config IR) (string, error) {
	return codec.HashHex(map[string]any{
		"input":  input,
		"output": output,
		"config": config,
	})
}

// MustHash is Hash for statically declared schemas.
func MustHash(input, output, config IR) string {
	h, err := Hash(input, output, config)
	if err != nil {
		panic(err)
	}
	return h
}
