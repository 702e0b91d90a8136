// Copyright (c) 2026 VirtKey Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package fidobridge

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/binary"
	"math/big"
)

// Verify verifies sig over message using the credential's algorithm and
// public key. The message is the raw signed buffer supplied by the caller
// (for WebAuthn assertions, authenticatorData || SHA-256(clientDataJSON)).
func (k *PublicKey) Verify(message, sig []byte) error {
	switch k.KeyType {
	case coseKeyTypeEC2:
		return verifyES256(k.Point, message, sig)
	case coseKeyTypeRSA:
		return verifyRS256(k.N, k.E, message, sig)
	default:
		return newError(KindUnsupportedKey, "signature", "key type", "unsupported key type")
	}
}

// verifyES256 verifies an ECDSA P-256/SHA-256 signature. The public key must
// be a 65-byte uncompressed point. Signatures arrive either as raw 64-byte
// r||s or as ASN.1 DER; the raw form is attempted first when the length is
// exactly 64 bytes.
func verifyES256(point, message, sig []byte) error {
	if len(point) != 65 || point[0] != 0x04 {
		return newError(KindUnsupportedKey, "signature", "public key",
			"expected 65-byte uncompressed P-256 point")
	}
	x, y := elliptic.Unmarshal(elliptic.P256(), point)
	if x == nil {
		return newError(KindUnsupportedKey, "signature", "public key", "point is not on P-256")
	}
	pub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}

	digest := sha256.Sum256(message)

	if len(sig) == 64 {
		r := new(big.Int).SetBytes(sig[:32])
		s := new(big.Int).SetBytes(sig[32:])
		if r.Sign() > 0 && s.Sign() > 0 && ecdsa.Verify(pub, digest[:], r, s) {
			return nil
		}
		// Fall through to a DER parse; 64 bytes is short for DER but the
		// decision belongs to the parser, not a length heuristic.
	}

	r, s, err := parseDERSignature(sig)
	if err != nil {
		return newError(KindVerificationFailed, "signature", "encoding",
			"signature is neither raw r||s nor valid DER")
	}
	if !ecdsa.Verify(pub, digest[:], r, s) {
		return newError(KindVerificationFailed, "signature", "", "ECDSA signature verification failed")
	}
	return nil
}

func parseDERSignature(sig []byte) (r, s *big.Int, err error) {
	type ecdsaSignature struct {
		R, S *big.Int
	}
	var parsed ecdsaSignature
	rest, err := asn1.Unmarshal(sig, &parsed)
	if err != nil {
		return nil, nil, err
	}
	if len(rest) != 0 {
		return nil, nil, newError(KindVerificationFailed, "signature", "", "trailing data after DER signature")
	}
	if parsed.R.Sign() <= 0 || parsed.S.Sign() <= 0 {
		return nil, nil, newError(KindVerificationFailed, "signature", "", "zero or negative DER integer")
	}
	return parsed.R, parsed.S, nil
}

// verifyRS256 verifies an RSASSA-PKCS1-v1_5/SHA-256 signature. The public
// key is synthesized from raw modulus/exponent bytes via a hand-built
// SubjectPublicKeyInfo, then round-tripped through the platform parser so a
// malformed construction fails loudly rather than verifying garbage.
func verifyRS256(n, e, message, sig []byte) error {
	spki, err := marshalRSAPublicKeyInfo(n, e)
	if err != nil {
		return err
	}
	parsed, err := x509.ParsePKIXPublicKey(spki)
	if err != nil {
		return wrapError(KindUnsupportedKey, "signature", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return newError(KindUnsupportedKey, "signature", "public key", "not an RSA key")
	}

	digest := sha256.Sum256(message)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return newError(KindVerificationFailed, "signature", "", "RSA signature verification failed")
	}
	return nil
}

// marshalRSAPublicKeyInfo builds a DER SubjectPublicKeyInfo for an RSA key:
// SEQUENCE { AlgorithmIdentifier { OID rsaEncryption, NULL }, BIT STRING
// { SEQUENCE { INTEGER n, INTEGER e } } }. Integers are DER-encoded with
// leading zeros stripped and a 0x00 prepended when the high bit is set.
func marshalRSAPublicKeyInfo(n, e []byte) ([]byte, error) {
	if len(trimLeadingZeros(n)) == 0 {
		return nil, newError(KindUnsupportedKey, "signature", "modulus", "empty RSA modulus")
	}
	if len(trimLeadingZeros(e)) == 0 {
		return nil, newError(KindUnsupportedKey, "signature", "exponent", "empty RSA exponent")
	}

	keySeq := derSequence(append(derInteger(n), derInteger(e)...))
	bitString := derBitString(keySeq)

	// AlgorithmIdentifier for rsaEncryption (1.2.840.113549.1.1.1) with NULL
	// parameters.
	algID := derSequence([]byte{
		0x06, 0x09, 0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x01, 0x01, 0x01,
		0x05, 0x00,
	})

	return derSequence(append(algID, bitString...)), nil
}

func trimLeadingZeros(b []byte) []byte {
	i := 0
	for i < len(b) && b[i] == 0 {
		i++
	}
	return b[i:]
}

func derInteger(b []byte) []byte {
	v := trimLeadingZeros(b)
	if len(v) == 0 {
		v = []byte{0x00}
	} else if v[0]&0x80 != 0 {
		v = append([]byte{0x00}, v...)
	}
	out := []byte{0x02}
	out = appendDERLength(out, len(v))
	return append(out, v...)
}

func derSequence(content []byte) []byte {
	out := []byte{0x30}
	out = appendDERLength(out, len(content))
	return append(out, content...)
}

func derBitString(content []byte) []byte {
	out := []byte{0x03}
	out = appendDERLength(out, len(content)+1)
	out = append(out, 0x00) // no unused bits
	return append(out, content...)
}

func appendDERLength(out []byte, n int) []byte {
	switch {
	case n < 0x80:
		return append(out, byte(n))
	case n <= 0xff:
		return append(out, 0x81, byte(n))
	default:
		return append(out, 0x82, byte(n>>8), byte(n))
	}
}

// u2fSignatureBase builds the legacy U2F signing base:
// SHA-256(rpId) || userPresence || 4-byte counter || SHA-256(clientData).
func u2fSignatureBase(rpIDHash []byte, userPresence byte, counter uint32, clientDataHash []byte) []byte {
	base := make([]byte, 0, len(rpIDHash)+5+len(clientDataHash))
	base = append(base, rpIDHash...)
	base = append(base, userPresence)
	base = binary.BigEndian.AppendUint32(base, counter)
	return append(base, clientDataHash...)
}

// VerifyU2F verifies a legacy U2F assertion signature with the 65-byte raw
// EC point captured at registration. Signature encoding rules match ES256.
func VerifyU2F(point, signatureBase, sig []byte) error {
	return verifyES256(point, signatureBase, sig)
}
