// Copyright (c) 2026 VirtKey Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

/*
Package cbor implements the small CBOR subset used by WebAuthn and CTAP2:
definite-length unsigned/negative integers, byte strings, text strings,
arrays, maps, booleans, and null.

Decoding produces a dynamically-typed tree so callers can walk attestation
objects and COSE keys without committing to a schema up front. Map keys that
are not text strings or integers are skipped together with their values,
tolerating COSE/CBOR extensions this package doesn't know about.
*/
package cbor

import (
	"encoding/binary"
	"fmt"
	"math"
)

// CBOR major types, per RFC 8949 §3.1.
const (
	majorUnsigned = 0
	majorNegative = 1
	majorBytes    = 2
	majorText     = 3
	majorArray    = 4
	majorMap      = 5
	majorTag      = 6
	majorSimple   = 7
)

// Simple values of major type 7.
const (
	simpleFalse = 20
	simpleTrue  = 21
	simpleNull  = 22
)

// SyntaxError reports malformed or truncated CBOR input.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("cbor: %s at byte %d", e.Msg, e.Offset)
}

// Decoder reads CBOR values from a byte buffer, advancing a cursor past each
// decoded value.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder returns a decoder positioned at the start of buf.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// NumBytesRead returns how many bytes have been consumed so far.
func (d *Decoder) NumBytesRead() int {
	return d.pos
}

// Rest returns the unconsumed remainder of the buffer.
func (d *Decoder) Rest() []byte {
	return d.buf[d.pos:]
}

// Done reports whether the whole buffer has been consumed.
func (d *Decoder) Done() bool {
	return d.pos == len(d.buf)
}

func (d *Decoder) remaining() int {
	return len(d.buf) - d.pos
}

func (d *Decoder) syntaxErr(msg string) error {
	return &SyntaxError{Offset: d.pos, Msg: msg}
}

func (d *Decoder) readByte() (byte, error) {
	if d.remaining() < 1 {
		return 0, d.syntaxErr("unexpected end of input")
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *Decoder) readBytes(n int) ([]byte, error) {
	if n < 0 || d.remaining() < n {
		return nil, d.syntaxErr("unexpected end of input")
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// head reads the initial byte of a data item and its argument. Arguments use
// the short form (<24 inline) or the 1/2/4/8-byte extended forms; indefinite
// lengths (additional info 31) are not used by WebAuthn and are rejected.
func (d *Decoder) head() (major byte, arg uint64, err error) {
	b, err := d.readByte()
	if err != nil {
		return 0, 0, err
	}
	major = b >> 5
	info := b & 0x1f

	if info < 24 {
		return major, uint64(info), nil
	}
	switch info {
	case 24:
		v, err := d.readByte()
		if err != nil {
			return 0, 0, err
		}
		return major, uint64(v), nil
	case 25:
		v, err := d.readBytes(2)
		if err != nil {
			return 0, 0, err
		}
		return major, uint64(binary.BigEndian.Uint16(v)), nil
	case 26:
		v, err := d.readBytes(4)
		if err != nil {
			return 0, 0, err
		}
		return major, uint64(binary.BigEndian.Uint32(v)), nil
	case 27:
		v, err := d.readBytes(8)
		if err != nil {
			return 0, 0, err
		}
		return major, binary.BigEndian.Uint64(v), nil
	default:
		return 0, 0, d.syntaxErr(fmt.Sprintf("unsupported additional info %d", info))
	}
}

// Decode decodes exactly one CBOR value and advances the cursor past it.
//
// The returned tree uses these Go types:
//
//	uint    -> uint64
//	negint  -> int64
//	bytes   -> []byte
//	text    -> string
//	array   -> []interface{}
//	map     -> map[interface{}]interface{} (string or int64 keys)
//	bool    -> bool
//	null    -> nil
func (d *Decoder) Decode() (interface{}, error) {
	major, arg, err := d.head()
	if err != nil {
		return nil, err
	}

	switch major {
	case majorUnsigned:
		return arg, nil

	case majorNegative:
		if arg > math.MaxInt64 {
			return nil, d.syntaxErr("negative integer overflows int64")
		}
		return -1 - int64(arg), nil

	case majorBytes:
		if arg > uint64(d.remaining()) {
			return nil, d.syntaxErr("byte string length exceeds input")
		}
		b, err := d.readBytes(int(arg))
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil

	case majorText:
		if arg > uint64(d.remaining()) {
			return nil, d.syntaxErr("text string length exceeds input")
		}
		b, err := d.readBytes(int(arg))
		if err != nil {
			return nil, err
		}
		return string(b), nil

	case majorArray:
		if arg > uint64(d.remaining()) {
			return nil, d.syntaxErr("array length exceeds input")
		}
		arr := make([]interface{}, 0, int(arg))
		for i := uint64(0); i < arg; i++ {
			v, err := d.Decode()
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil

	case majorMap:
		if arg > uint64(d.remaining()) {
			return nil, d.syntaxErr("map length exceeds input")
		}
		m := make(map[interface{}]interface{}, int(arg))
		for i := uint64(0); i < arg; i++ {
			key, err := d.Decode()
			if err != nil {
				return nil, err
			}
			val, err := d.Decode()
			if err != nil {
				return nil, err
			}
			switch k := key.(type) {
			case string:
				m[k] = val
			case int64:
				m[k] = val
			case uint64:
				if k > math.MaxInt64 {
					continue
				}
				m[int64(k)] = val
			default:
				// Keys that aren't strings or integers are skipped rather
				// than failing the whole decode.
			}
		}
		return m, nil

	case majorSimple:
		switch arg {
		case simpleFalse:
			return false, nil
		case simpleTrue:
			return true, nil
		case simpleNull:
			return nil, nil
		default:
			return nil, d.syntaxErr(fmt.Sprintf("unsupported simple value %d", arg))
		}

	default:
		return nil, d.syntaxErr(fmt.Sprintf("unsupported major type %d", major))
	}
}

// Unmarshal decodes a single CBOR value from data. Trailing bytes after the
// first value are tolerated; callers that need them use Decoder directly.
func Unmarshal(data []byte) (interface{}, error) {
	return NewDecoder(data).Decode()
}
