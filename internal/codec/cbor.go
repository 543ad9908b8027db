// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package codec

import (
	"encoding/binary"
	"reflect"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/samber/oops"
)

// encMode encodes scalars with the smallest integer and float forms and no
// indefinite-length items. Map ordering is handled by Map.
var encMode cbor.EncMode

// decMode decodes any-typed maps as map[string]any so decoded trees can be
// re-encoded as JSON directly.
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		IntDec:         cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR without key canonicalization. Use Canonical
// for anything that is hashed or exchanged with plugins.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Pair is one key/value entry of a Map.
type Pair struct {
	Key   string
	Value any
}

// Map is a CBOR map that encodes its entries in slice order. Build it with
// sortedMap so the order is lexicographic.
type Map []Pair

// MarshalCBOR writes the map header followed by each key and value.
func (m Map) MarshalCBOR() ([]byte, error) {
	out := appendHead(nil, majorMap, uint64(len(m)))
	for _, p := range m {
		kb, err := encMode.Marshal(p.Key)
		if err != nil {
			return nil, oops.Code(CodeEncode).With("key", p.Key).Wrap(err)
		}
		vb, err := encMode.Marshal(p.Value)
		if err != nil {
			return nil, oops.Code(CodeEncode).With("key", p.Key).Wrap(err)
		}
		out = append(out, kb...)
		out = append(out, vb...)
	}
	return out, nil
}

func sortedMap(src map[string]any, convert func(any) (any, error)) (Map, error) {
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	m := make(Map, 0, len(keys))
	for _, k := range keys {
		v, err := convert(src[k])
		if err != nil {
			return nil, err
		}
		m = append(m, Pair{Key: k, Value: v})
	}
	return m, nil
}

const majorMap = 5

func appendHead(b []byte, major byte, n uint64) []byte {
	prefix := major << 5
	switch {
	case n < 24:
		return append(b, prefix|byte(n))
	case n <= 0xff:
		return append(b, prefix|24, byte(n))
	case n <= 0xffff:
		return binary.BigEndian.AppendUint16(append(b, prefix|25), uint16(n))
	case n <= 0xffffffff:
		return binary.BigEndian.AppendUint32(append(b, prefix|26), uint32(n))
	default:
		return binary.BigEndian.AppendUint64(append(b, prefix|27), n)
	}
}
