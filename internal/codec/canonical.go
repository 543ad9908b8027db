// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/samber/oops"
)

// Error codes for codec failures.
const (
	CodeEncode        = "CBOR_ENCODE"
	CodeDecode        = "CBOR_DECODE"
	CodeJSON          = "JSON_DECODE"
	CodeFloatInHashed = "FLOAT_IN_HASH_MATERIAL"
)

// Canonical encodes v as canonical CBOR. v may be a Go value (converted
// through its JSON form first) or an already-generic JSON tree. Floats are
// encoded in their shortest exact form.
func Canonical(v any) ([]byte, error) {
	return canonical(v, true)
}

// HashMaterial encodes v as canonical CBOR and rejects non-integral
// numbers. Schema hashes are computed over this encoding.
func HashMaterial(v any) ([]byte, error) {
	return canonical(v, false)
}

// SHA256Hex returns the lowercase hex SHA-256 of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashHex returns sha256_hex(HashMaterial(v)).
func HashHex(v any) (string, error) {
	b, err := HashMaterial(v)
	if err != nil {
		return "", err
	}
	return SHA256Hex(b), nil
}

func canonical(v any, allowFloats bool) ([]byte, error) {
	tree, err := ToTree(v)
	if err != nil {
		return nil, err
	}
	c := canonicalizer{allowFloats: allowFloats}
	converted, err := c.convert(tree)
	if err != nil {
		return nil, err
	}
	out, err := encMode.Marshal(converted)
	if err != nil {
		return nil, oops.Code(CodeEncode).Wrap(err)
	}
	return out, nil
}

// ToTree converts v into a generic JSON tree (map[string]any, []any,
// string, bool, nil, json.Number). Values that already are trees pass
// through a JSON round trip so numbers are normalized to json.Number.
func ToTree(v any) (any, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return DecodeJSON(raw)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, oops.Code(CodeJSON).Wrap(err)
	}
	return DecodeJSON(b)
}

// DecodeJSON parses data into a generic tree keeping numbers as json.Number.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, oops.Code(CodeJSON).Wrap(err)
	}
	if dec.More() {
		return nil, oops.Code(CodeJSON).Errorf("unexpected trailing data after JSON value")
	}
	return out, nil
}

type canonicalizer struct {
	allowFloats bool
}

func (c canonicalizer) convert(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		return sortedMap(val, c.convert)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			converted, err := c.convert(item)
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	case json.Number:
		return c.number(val)
	case float64:
		return c.number(json.Number(fmt.Sprint(val)))
	default:
		return val, nil
	}
}

func (c canonicalizer) number(n json.Number) (any, error) {
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, oops.Code(CodeJSON).With("number", n.String()).Wrap(err)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
		return int64(f), nil
	}
	if !c.allowFloats {
		return nil, oops.Code(CodeFloatInHashed).
			With("number", n.String()).
			Errorf("floats are not allowed in hash material: %s", n.String())
	}
	return f, nil
}

// ToJSON decodes CBOR bytes and re-encodes the value as JSON.
func ToJSON(data []byte) ([]byte, error) {
	var v any
	if err := decMode.Unmarshal(data, &v); err != nil {
		return nil, oops.Code(CodeDecode).Wrapf(err, "cbor decode error")
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, oops.Code(CodeEncode).Wrap(err)
	}
	return out, nil
}

// DecodeInto decodes CBOR bytes into a Go value through its JSON form, so
// struct json tags apply to CBOR payloads as well.
func DecodeInto(data []byte, v any) error {
	js, err := ToJSON(data)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(js, v); err != nil {
		return oops.Code(CodeDecode).Wrapf(err, "cbor decode error")
	}
	return nil
}
