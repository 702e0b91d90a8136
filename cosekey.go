// Copyright (c) 2026 VirtKey Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package fidobridge

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/virtkey/fidobridge/internal/cbor"
)

// COSE algorithm identifiers registered in the IANA COSE Algorithm registry.
const (
	COSEAlgES256 = -7   // ECDSA with SHA-256
	COSEAlgES384 = -35  // ECDSA with SHA-384
	COSEAlgES512 = -36  // ECDSA with SHA-512
	COSEAlgRS256 = -257 // RSASSA-PKCS1-v1_5 with SHA-256
)

// COSE key types and elliptic curves.
const (
	coseKeyTypeEC2 = 2
	coseKeyTypeRSA = 3

	coseCurveP256 = 1
)

// COSE_Key map labels, per RFC 8152 §7.
const (
	coseLabelKty    = 1
	coseLabelAlg    = 3
	coseLabelCrvOrN = -1
	coseLabelXOrE   = -2
	coseLabelY      = -3
)

// PublicKey is the normalized form of an attested credential public key.
// For EC2 keys it carries the 65-byte uncompressed SEC1 point; for RSA keys
// the raw modulus and exponent bytes.
type PublicKey struct {
	COSEAlg int    // signing algorithm, immutable after registration
	KeyType int    // coseKeyTypeEC2 or coseKeyTypeRSA
	Point   []byte // 0x04 || x || y, EC2 only
	N       []byte // modulus, RSA only
	E       []byte // public exponent, RSA only
}

// rsaKeyJSON is the stored serialization of an RSA public key. Any encoding
// that round-trips modulus and exponent bytes losslessly would do; JSON keeps
// stored records inspectable.
type rsaKeyJSON struct {
	N []byte `json:"n"`
	E []byte `json:"e"`
}

// ParseCOSEKey decodes a CBOR-encoded COSE_Key map at the start of data and
// returns the normalized public key and the number of bytes consumed.
func ParseCOSEKey(data []byte) (*PublicKey, int, error) {
	dec := cbor.NewDecoder(data)
	v, err := dec.Decode()
	if err != nil {
		return nil, 0, wrapError(KindMalformedInput, "credential key", err)
	}
	m, ok := v.(map[interface{}]interface{})
	if !ok {
		return nil, 0, newError(KindMalformedInput, "credential key", "", "COSE key is not a map")
	}

	kty, ok := coseInt(m, coseLabelKty)
	if !ok {
		return nil, 0, newError(KindMalformedInput, "credential key", "kty", "missing")
	}
	alg, ok := coseInt(m, coseLabelAlg)
	if !ok {
		return nil, 0, newError(KindMalformedInput, "credential key", "alg", "missing")
	}

	switch kty {
	case coseKeyTypeEC2:
		if alg != COSEAlgES256 {
			return nil, 0, newError(KindUnsupportedKey, "credential key", "alg",
				"EC2 key requires ES256, got "+strconv.FormatInt(alg, 10))
		}
		crv, ok := coseInt(m, coseLabelCrvOrN)
		if !ok || crv != coseCurveP256 {
			return nil, 0, newError(KindUnsupportedKey, "credential key", "crv",
				"EC2 key requires curve P-256")
		}
		x, ok := coseBytes(m, coseLabelXOrE)
		if !ok || len(x) == 0 || len(x) > 32 {
			return nil, 0, newError(KindUnsupportedKey, "credential key", "x", "invalid coordinate")
		}
		y, ok := coseBytes(m, coseLabelY)
		if !ok || len(y) == 0 || len(y) > 32 {
			return nil, 0, newError(KindUnsupportedKey, "credential key", "y", "invalid coordinate")
		}
		point := make([]byte, 65)
		point[0] = 0x04
		copy(point[1+32-len(x):33], x)
		copy(point[33+32-len(y):], y)
		return &PublicKey{COSEAlg: COSEAlgES256, KeyType: coseKeyTypeEC2, Point: point}, dec.NumBytesRead(), nil

	case coseKeyTypeRSA:
		if alg != COSEAlgRS256 {
			return nil, 0, newError(KindUnsupportedKey, "credential key", "alg",
				"RSA key requires RS256, got "+strconv.FormatInt(alg, 10))
		}
		n, ok := coseBytes(m, coseLabelCrvOrN)
		if !ok || len(n) == 0 {
			return nil, 0, newError(KindUnsupportedKey, "credential key", "n", "missing modulus")
		}
		e, ok := coseBytes(m, coseLabelXOrE)
		if !ok || len(e) == 0 {
			return nil, 0, newError(KindUnsupportedKey, "credential key", "e", "missing exponent")
		}
		return &PublicKey{COSEAlg: COSEAlgRS256, KeyType: coseKeyTypeRSA, N: n, E: e}, dec.NumBytesRead(), nil

	default:
		return nil, 0, newError(KindUnsupportedKey, "credential key", "kty",
			"unsupported COSE key type "+strconv.FormatInt(kty, 10))
	}
}

// MarshalBytes serializes the key for storage: the raw SEC1 point for EC2, a
// JSON modulus/exponent object for RSA.
func (k *PublicKey) MarshalBytes() ([]byte, error) {
	switch k.KeyType {
	case coseKeyTypeEC2:
		out := make([]byte, len(k.Point))
		copy(out, k.Point)
		return out, nil
	case coseKeyTypeRSA:
		return json.Marshal(rsaKeyJSON{N: k.N, E: k.E})
	default:
		return nil, newError(KindUnsupportedKey, "credential key", "kty", "unsupported key type")
	}
}

// UnmarshalStoredKey reverses MarshalBytes given the stored algorithm id.
func UnmarshalStoredKey(coseAlg int, data []byte) (*PublicKey, error) {
	switch coseAlg {
	case COSEAlgES256:
		if len(data) != 65 || data[0] != 0x04 {
			return nil, newError(KindUnsupportedKey, "credential key", "point",
				"expected 65-byte uncompressed P-256 point")
		}
		point := make([]byte, 65)
		copy(point, data)
		return &PublicKey{COSEAlg: COSEAlgES256, KeyType: coseKeyTypeEC2, Point: point}, nil
	case COSEAlgRS256:
		var raw rsaKeyJSON
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, wrapError(KindUnsupportedKey, "credential key", err)
		}
		if len(raw.N) == 0 || len(raw.E) == 0 {
			return nil, newError(KindUnsupportedKey, "credential key", "n/e", "missing key material")
		}
		return &PublicKey{COSEAlg: COSEAlgRS256, KeyType: coseKeyTypeRSA, N: raw.N, E: raw.E}, nil
	default:
		return nil, newError(KindUnsupportedKey, "credential key", "alg",
			"unsupported COSE algorithm "+strconv.Itoa(coseAlg))
	}
}

// FormatAAGUID formats 16 AAGUID bytes as canonical hyphenated uppercase UUID
// text, the form used for storage and allowlist comparison.
func FormatAAGUID(b []byte) (string, error) {
	u, err := uuid.FromBytes(b)
	if err != nil {
		return "", wrapError(KindMalformedInput, "aaguid", err)
	}
	return strings.ToUpper(u.String()), nil
}

func coseInt(m map[interface{}]interface{}, label int64) (int64, bool) {
	v, ok := m[label]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}

func coseBytes(m map[interface{}]interface{}, label int64) ([]byte, bool) {
	v, ok := m[label]
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}
