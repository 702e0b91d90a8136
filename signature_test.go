// Copyright (c) 2026 VirtKey Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package fidobridge

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"testing"
)

func es256TestKey(t *testing.T) (*ecdsa.PrivateKey, *PublicKey) {
	t.Helper()
	priv := genES256Key(t)
	point := elliptic.Marshal(elliptic.P256(), priv.PublicKey.X, priv.PublicKey.Y)
	return priv, &PublicKey{COSEAlg: COSEAlgES256, KeyType: 2, Point: point}
}

func TestVerifyES256DER(t *testing.T) {
	priv, key := es256TestKey(t)
	message := []byte("authenticator data || client data hash")
	digest := sha256.Sum256(message)

	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	if err != nil {
		t.Fatal(err)
	}
	if err := key.Verify(message, sig); err != nil {
		t.Errorf("Verify rejected a valid DER signature: %v", err)
	}
}

func TestVerifyES256Raw(t *testing.T) {
	priv, key := es256TestKey(t)
	message := []byte("raw signature message")
	digest := sha256.Sum256(message)

	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		t.Fatal(err)
	}
	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])

	if err := key.Verify(message, sig); err != nil {
		t.Errorf("Verify rejected a valid raw r||s signature: %v", err)
	}
}

func TestVerifyES256BitFlip(t *testing.T) {
	priv, key := es256TestKey(t)
	message := []byte("tamper detection")
	digest := sha256.Sum256(message)

	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	if err != nil {
		t.Fatal(err)
	}

	// Flipping any single bit of the signature must fail verification.
	flipped := append([]byte{}, sig...)
	flipped[len(flipped)-1] ^= 0x01
	if err := key.Verify(message, flipped); err == nil {
		t.Error("Verify accepted a bit-flipped signature")
	} else if !IsKind(err, KindVerificationFailed) {
		t.Errorf("error kind = %s, want verification failed", KindOf(err))
	}

	// A bit flip in the message fails too.
	tampered := append([]byte{}, message...)
	tampered[0] ^= 0x80
	if err := key.Verify(tampered, sig); err == nil {
		t.Error("Verify accepted a signature over a tampered message")
	}
}

func TestVerifyES256BadKey(t *testing.T) {
	message := []byte("m")
	sig := make([]byte, 64)

	short := &PublicKey{COSEAlg: COSEAlgES256, KeyType: 2, Point: []byte{0x04, 0x01}}
	if err := short.Verify(message, sig); !IsKind(err, KindUnsupportedKey) {
		t.Errorf("short point: kind = %s, want unsupported key", KindOf(err))
	}

	offCurve := &PublicKey{COSEAlg: COSEAlgES256, KeyType: 2, Point: make([]byte, 65)}
	offCurve.Point[0] = 0x04
	offCurve.Point[64] = 0x01 // (0, 1) is not on P-256
	if err := offCurve.Verify(message, sig); !IsKind(err, KindUnsupportedKey) {
		t.Errorf("off-curve point: kind = %s, want unsupported key", KindOf(err))
	}
}

func TestVerifyRS256(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	message := []byte("rsa signed message")
	digest := sha256.Sum256(message)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	if err != nil {
		t.Fatal(err)
	}

	n := priv.PublicKey.N.Bytes()
	e := []byte{0x01, 0x00, 0x01}

	key := &PublicKey{COSEAlg: COSEAlgRS256, KeyType: 3, N: n, E: e}
	if err := key.Verify(message, sig); err != nil {
		t.Errorf("Verify rejected a valid RS256 signature: %v", err)
	}

	// Exponent bytes may arrive with or without leading zeros; both must
	// verify identically.
	padded := &PublicKey{COSEAlg: COSEAlgRS256, KeyType: 3, N: n, E: []byte{0x00, 0x01, 0x00, 0x01}}
	if err := padded.Verify(message, sig); err != nil {
		t.Errorf("Verify rejected with zero-padded exponent: %v", err)
	}

	flipped := append([]byte{}, sig...)
	flipped[0] ^= 0x40
	if err := key.Verify(message, flipped); err == nil {
		t.Error("Verify accepted a corrupted RS256 signature")
	} else if !IsKind(err, KindVerificationFailed) {
		t.Errorf("error kind = %s, want verification failed", KindOf(err))
	}

	// A truncated exponent yields a different key; verification fails cleanly
	// rather than crashing.
	truncated := &PublicKey{COSEAlg: COSEAlgRS256, KeyType: 3, N: n, E: []byte{0x01, 0x00}}
	err = truncated.Verify(message, sig)
	if err == nil {
		t.Error("Verify accepted a signature under a truncated exponent")
	} else if kind := KindOf(err); kind != KindVerificationFailed && kind != KindUnsupportedKey {
		t.Errorf("error kind = %s, want verification failed or unsupported key", kind)
	}
}

func TestVerifyRS256BadKey(t *testing.T) {
	key := &PublicKey{COSEAlg: COSEAlgRS256, KeyType: 3, N: []byte{0x00, 0x00}, E: []byte{0x01, 0x00, 0x01}}
	if err := key.Verify([]byte("m"), []byte("sig")); !IsKind(err, KindUnsupportedKey) {
		t.Errorf("zero modulus: kind = %s, want unsupported key", KindOf(err))
	}

	key = &PublicKey{COSEAlg: COSEAlgRS256, KeyType: 3, N: []byte{0xc3}, E: nil}
	if err := key.Verify([]byte("m"), []byte("sig")); !IsKind(err, KindUnsupportedKey) {
		t.Errorf("empty exponent: kind = %s, want unsupported key", KindOf(err))
	}
}

func TestU2FSignatureBase(t *testing.T) {
	rpIDHash := sha256.Sum256([]byte("example.com"))
	clientDataHash := sha256.Sum256([]byte("{}"))
	base := u2fSignatureBase(rpIDHash[:], 0x01, 0x01020304, clientDataHash[:])

	if len(base) != 32+1+4+32 {
		t.Fatalf("base length = %d, want 69", len(base))
	}
	if base[32] != 0x01 {
		t.Errorf("presence byte = %02x", base[32])
	}
	if base[33] != 0x01 || base[34] != 0x02 || base[35] != 0x03 || base[36] != 0x04 {
		t.Errorf("counter bytes = %02x", base[33:37])
	}
}

func TestVerifyU2F(t *testing.T) {
	priv, key := es256TestKey(t)
	rpIDHash := sha256.Sum256([]byte("example.com"))
	clientDataHash := sha256.Sum256([]byte(`{"typ":"navigator.id.getAssertion"}`))
	base := u2fSignatureBase(rpIDHash[:], 0x01, 42, clientDataHash[:])

	digest := sha256.Sum256(base)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifyU2F(key.Point, base, sig); err != nil {
		t.Errorf("VerifyU2F rejected a valid signature: %v", err)
	}

	wrongBase := u2fSignatureBase(rpIDHash[:], 0x01, 43, clientDataHash[:])
	if err := VerifyU2F(key.Point, wrongBase, sig); err == nil {
		t.Error("VerifyU2F accepted a signature over a different counter")
	}
}
