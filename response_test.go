// Copyright (c) 2026 VirtKey Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package fidobridge

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestRegistrationResponseUnmarshal(t *testing.T) {
	credID := []byte{0x01, 0x02, 0x03, 0x04}
	clientData := testClientDataJSON(t, "webauthn.create", []byte("exactly-32-byte-challenge-value!"), "https://example.com")
	payload := []byte{0xa3, 0x01, 0x02} // opaque; kept undecoded

	var response RegistrationResponse
	if err := json.Unmarshal(testRegistrationJSON(t, credID, clientData, payload), &response); err != nil {
		t.Fatalf("Unmarshal returned error %q", err)
	}
	if !bytes.Equal(response.RawID, credID) {
		t.Error("raw id mismatch")
	}
	if response.ClientData.Type != "webauthn.create" {
		t.Errorf("client data type = %q", response.ClientData.Type)
	}
	if !bytes.Equal(response.RawPayload, payload) {
		t.Error("payload was not preserved undecoded")
	}
}

func TestRegistrationResponseIDReconciliation(t *testing.T) {
	clientData := testClientDataJSON(t, "webauthn.create", []byte("exactly-32-byte-challenge-value!"), "https://example.com")
	credID := []byte{0xfb, 0xef, 0xff, 0x01}

	// Only rawId present: id is derived from it.
	raw := `{"rawId":"` + b64u(credID) + `","type":"public-key","response":{"clientDataJSON":"` +
		b64u(clientData) + `","attestationObject":"oQ"}}`
	var response RegistrationResponse
	if err := json.Unmarshal([]byte(raw), &response); err != nil {
		t.Fatalf("Unmarshal returned error %q", err)
	}
	if response.ID != b64u(credID) {
		t.Errorf("derived ID = %q, want %q", response.ID, b64u(credID))
	}

	// Only id present, in standard base64: rawId is derived from it.
	raw = `{"id":"++//AQ==","type":"public-key","response":{"clientDataJSON":"` +
		b64u(clientData) + `","attestationObject":"oQ"}}`
	response = RegistrationResponse{}
	if err := json.Unmarshal([]byte(raw), &response); err != nil {
		t.Fatalf("Unmarshal returned error %q", err)
	}
	if !bytes.Equal(response.RawID, credID) {
		t.Errorf("derived RawID = %02x, want %02x", response.RawID, credID)
	}
}

func TestRegistrationResponseUnmarshalError(t *testing.T) {
	clientData := b64u(testClientDataJSON(t, "webauthn.create", []byte("exactly-32-byte-challenge-value!"), "https://example.com"))

	testCases := []struct {
		name string
		data string
	}{
		{"not json", `{{{`},
		{"missing ids", `{"type":"public-key","response":{"clientDataJSON":"` + clientData + `","attestationObject":"oQ"}}`},
		{"missing client data", `{"id":"AQID","type":"public-key","response":{"attestationObject":"oQ"}}`},
		{"missing attestation object", `{"id":"AQID","type":"public-key","response":{"clientDataJSON":"` + clientData + `"}}`},
		{"wrong type", `{"id":"AQID","type":"password","response":{"clientDataJSON":"` + clientData + `","attestationObject":"oQ"}}`},
		{"bad raw id base64", `{"rawId":"!!!","type":"public-key","response":{"clientDataJSON":"` + clientData + `","attestationObject":"oQ"}}`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var response RegistrationResponse
			err := json.Unmarshal([]byte(tc.data), &response)
			if err == nil {
				t.Fatal("Unmarshal succeeded, want error")
			}
			if !IsKind(err, KindMalformedInput) {
				t.Errorf("error kind = %s, want malformed input", KindOf(err))
			}
		})
	}
}

func TestAssertionResponseUnmarshal(t *testing.T) {
	credID := []byte{0x0a, 0x0b}
	clientData := testClientDataJSON(t, "webauthn.get", []byte("exactly-32-byte-challenge-value!"), "https://example.com")
	authData := testAuthData("example.com", 0x01, 9, nil, nil, nil)
	sig := []byte{0x30, 0x06, 0x02, 0x01, 0x01, 0x02, 0x01, 0x01}

	var response AssertionResponse
	if err := json.Unmarshal(testAssertionJSON(t, credID, clientData, authData, sig), &response); err != nil {
		t.Fatalf("Unmarshal returned error %q", err)
	}
	if !bytes.Equal(response.RawID, credID) {
		t.Error("raw id mismatch")
	}
	if response.AuthnData == nil || response.AuthnData.Counter != 9 {
		t.Error("authenticator data not parsed")
	}
	if !bytes.Equal(response.Signature, sig) {
		t.Error("signature mismatch")
	}
	if response.UserHandle != nil {
		t.Error("user handle populated without input")
	}
}
