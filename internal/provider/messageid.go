// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package provider

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/greentic/messaging-providers/internal/codec"
)

// MessageID derives a stable message id from raw JSON input: the first 16
// bytes of sha256 over the canonical JSON form, rendered 8-4-4-4-12.
// Input that is not JSON is hashed as is. The second result is the full
// hex digest.
func MessageID(input []byte) (id, digest string) {
	sum := sha256.Sum256(canonicalJSON(input))
	u, err := uuid.FromBytes(sum[:16])
	if err != nil {
		// FromBytes only fails on a length other than 16.
		panic(err)
	}
	return u.String(), hex.EncodeToString(sum[:])
}

// canonicalJSON re-encodes input with sorted object keys so that key order
// does not change the id.
func canonicalJSON(input []byte) []byte {
	tree, err := codec.DecodeJSON(input)
	if err != nil {
		return input
	}
	out, err := json.Marshal(tree)
	if err != nil {
		return input
	}
	return out
}
