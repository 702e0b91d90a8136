// Copyright (c) 2026 VirtKey Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package fidobridge

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/virtkey/fidobridge/internal/cbor"
)

// Shared fixture builders. Authenticator data, COSE keys, and ceremony
// responses are assembled from real key material so signature checks exercise
// the same code paths production traffic does.

func b64u(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func genES256Key(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate P-256 key: %v", err)
	}
	return priv
}

func coseKeyES256(t *testing.T, pub *ecdsa.PublicKey) []byte {
	t.Helper()
	enc, err := cbor.Encode(map[interface{}]interface{}{
		int64(1):  int64(2),
		int64(3):  int64(-7),
		int64(-1): int64(1),
		int64(-2): pub.X.FillBytes(make([]byte, 32)),
		int64(-3): pub.Y.FillBytes(make([]byte, 32)),
	})
	if err != nil {
		t.Fatalf("encode COSE key: %v", err)
	}
	return enc
}

func coseKeyRS256(t *testing.T, n, e []byte) []byte {
	t.Helper()
	enc, err := cbor.Encode(map[interface{}]interface{}{
		int64(1):  int64(3),
		int64(3):  int64(-257),
		int64(-1): n,
		int64(-2): e,
	})
	if err != nil {
		t.Fatalf("encode COSE key: %v", err)
	}
	return enc
}

// testAuthData assembles authenticator data bytes: rp id hash, flags, counter,
// and with the 0x40 flag bit the attested credential block.
func testAuthData(rpID string, flags byte, counter uint32, aaguid, credentialID, coseKey []byte) []byte {
	rpIDHash := sha256.Sum256([]byte(rpID))
	out := append([]byte{}, rpIDHash[:]...)
	out = append(out, flags)
	out = binary.BigEndian.AppendUint32(out, counter)
	if flags&0x40 != 0 {
		if len(aaguid) == 0 {
			aaguid = make([]byte, 16)
		}
		out = append(out, aaguid...)
		out = append(out, byte(len(credentialID)>>8), byte(len(credentialID)))
		out = append(out, credentialID...)
		out = append(out, coseKey...)
	}
	return out
}

func testAttestationObject(t *testing.T, format string, stmt map[interface{}]interface{}, authData []byte) []byte {
	t.Helper()
	if stmt == nil {
		stmt = map[interface{}]interface{}{}
	}
	enc, err := cbor.Encode(map[interface{}]interface{}{
		"fmt":      format,
		"attStmt":  stmt,
		"authData": authData,
	})
	if err != nil {
		t.Fatalf("encode attestation object: %v", err)
	}
	return enc
}

func testClientDataJSON(t *testing.T, typ string, challenge []byte, origin string) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]interface{}{
		"type":      typ,
		"challenge": b64u(challenge),
		"origin":    origin,
	})
	if err != nil {
		t.Fatalf("encode client data: %v", err)
	}
	return data
}

func testRegistrationJSON(t *testing.T, credentialID, clientData, payload []byte) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]interface{}{
		"id":    b64u(credentialID),
		"rawId": b64u(credentialID),
		"type":  "public-key",
		"response": map[string]string{
			"clientDataJSON":    b64u(clientData),
			"attestationObject": b64u(payload),
		},
	})
	if err != nil {
		t.Fatalf("encode registration response: %v", err)
	}
	return data
}

func testAssertionJSON(t *testing.T, credentialID, clientData, authData, sig []byte) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]interface{}{
		"id":    b64u(credentialID),
		"rawId": b64u(credentialID),
		"type":  "public-key",
		"response": map[string]string{
			"clientDataJSON":    b64u(clientData),
			"authenticatorData": b64u(authData),
			"signature":         b64u(sig),
		},
	})
	if err != nil {
		t.Fatalf("encode assertion response: %v", err)
	}
	return data
}
