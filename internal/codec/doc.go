// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package codec implements the canonical CBOR encoding used for schema
// hashes, i18n bundles and the apply-answers bridge, plus the JSON<->CBOR
// conversions around it.
//
// Canonical CBOR converts every JSON object into a map whose keys are
// sorted lexicographically by their UTF-8 bytes, at every depth. Arrays
// keep their order. RFC 8949 core deterministic encoding sorts by encoded
// key bytes (which puts short keys first), so object keys are sorted here
// before encoding instead of relying on the encoder's sort mode.
package codec
