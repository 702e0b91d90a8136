// Copyright (c) 2026 VirtKey Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package cbor

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// Encode serializes a value tree produced by Decode back to CBOR. It accepts
// exactly the types Decode emits (uint64, int64, int, []byte, string,
// []interface{}, map[interface{}]interface{}, bool, nil). Map entries are
// emitted in deterministic key order so output is stable across runs.
func Encode(v interface{}) ([]byte, error) {
	var buf []byte
	return appendValue(buf, v)
}

func appendHead(buf []byte, major byte, arg uint64) []byte {
	mt := major << 5
	switch {
	case arg < 24:
		return append(buf, mt|byte(arg))
	case arg <= 0xff:
		return append(buf, mt|24, byte(arg))
	case arg <= 0xffff:
		buf = append(buf, mt|25)
		return binary.BigEndian.AppendUint16(buf, uint16(arg))
	case arg <= 0xffffffff:
		buf = append(buf, mt|26)
		return binary.BigEndian.AppendUint32(buf, uint32(arg))
	default:
		buf = append(buf, mt|27)
		return binary.BigEndian.AppendUint64(buf, arg)
	}
}

func appendValue(buf []byte, v interface{}) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return append(buf, majorSimple<<5|simpleNull), nil
	case bool:
		if x {
			return append(buf, majorSimple<<5|simpleTrue), nil
		}
		return append(buf, majorSimple<<5|simpleFalse), nil
	case uint64:
		return appendHead(buf, majorUnsigned, x), nil
	case int64:
		if x >= 0 {
			return appendHead(buf, majorUnsigned, uint64(x)), nil
		}
		return appendHead(buf, majorNegative, uint64(-1-x)), nil
	case int:
		return appendValue(buf, int64(x))
	case []byte:
		buf = appendHead(buf, majorBytes, uint64(len(x)))
		return append(buf, x...), nil
	case string:
		buf = appendHead(buf, majorText, uint64(len(x)))
		return append(buf, x...), nil
	case []interface{}:
		buf = appendHead(buf, majorArray, uint64(len(x)))
		var err error
		for _, elem := range x {
			if buf, err = appendValue(buf, elem); err != nil {
				return nil, err
			}
		}
		return buf, nil
	case map[interface{}]interface{}:
		return appendMap(buf, x)
	default:
		return nil, fmt.Errorf("cbor: cannot encode value of type %T", v)
	}
}

func appendMap(buf []byte, m map[interface{}]interface{}) ([]byte, error) {
	type entry struct {
		key interface{}
		enc []byte
	}
	entries := make([]entry, 0, len(m))
	for k := range m {
		enc, err := appendValue(nil, k)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry{key: k, enc: enc})
	}
	// Canonical order: sort by encoded key bytes (length-first ordering is
	// implied because shorter heads encode smaller arguments).
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].enc, entries[j].enc
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return string(a) < string(b)
	})

	buf = appendHead(buf, majorMap, uint64(len(m)))
	var err error
	for _, e := range entries {
		buf = append(buf, e.enc...)
		if buf, err = appendValue(buf, m[e.key]); err != nil {
			return nil, err
		}
	}
	return buf, nil
}
