// Copyright (c) 2026 VirtKey Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package fidobridge

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"
)

// CollectedClientData represents the Web Authentication structure of the same
// name, as defined in http://w3c.github.io/webauthn/#dictionary-client-data
type CollectedClientData struct {
	Raw         []byte `json:"-"`         // complete raw client data content
	Type        string `json:"type"`      // "webauthn.create" or "webauthn.get"
	Challenge   string `json:"challenge"` // base64 url encoded challenge provided by the Relying Party
	Origin      string `json:"origin"`    // fully qualified origin of the requester
	CrossOrigin bool   `json:"crossOrigin,omitempty"`
}

func parseClientData(data []byte) (*CollectedClientData, error) {
	clientData := &CollectedClientData{Raw: data}
	if err := json.Unmarshal(data, clientData); err != nil {
		return nil, wrapError(KindMalformedInput, "client data", err)
	}
	if len(clientData.Type) == 0 {
		return nil, newError(KindMalformedInput, "client data", "type", "missing")
	}
	if len(clientData.Challenge) == 0 {
		return nil, newError(KindMalformedInput, "client data", "challenge", "missing")
	}
	if len(clientData.Origin) == 0 {
		return nil, newError(KindMalformedInput, "client data", "origin", "missing")
	}
	return clientData, nil
}

// ValidOrigin reports whether origin is acceptable for the given RP ID. The
// origin's hostname must equal the RP ID exactly; ports are not compared.
// The scheme must be https, except for the literal host "localhost", which
// accepts any scheme and port. That exception exists solely to support local
// development.
func ValidOrigin(origin, rpID string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "" || host != rpID {
		return false
	}
	if host == "localhost" {
		return true
	}
	return u.Scheme == "https"
}

// base64DecodeString decodes both base64url and standard base64, padded or
// not. Credential identifiers travel in base64url on the wire but may be
// stored in standard base64.
func base64DecodeString(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	s = strings.Replace(s, "-", "+", -1)
	s = strings.Replace(s, "_", "/", -1)
	return base64.RawStdEncoding.DecodeString(s)
}

// NormalizeCredentialID converts a credential id from any base64 variant to
// padded standard base64 ('-'->'+', '_'->'/', '=' padding to a multiple of
// four), the canonical form used for storage and comparison.
func NormalizeCredentialID(s string) string {
	s = strings.TrimRight(s, "=")
	s = strings.Replace(s, "-", "+", -1)
	s = strings.Replace(s, "_", "/", -1)
	if pad := len(s) % 4; pad != 0 {
		s += strings.Repeat("=", 4-pad)
	}
	return s
}

func encodeCredentialID(id []byte) string {
	return base64.StdEncoding.EncodeToString(id)
}

// challengeEqual compares a client-reported challenge (base64url, unpadded by
// convention but tolerated padded) against the issued challenge bytes.
func challengeEqual(reported string, issued []byte) bool {
	decoded, err := base64DecodeString(reported)
	if err != nil {
		return false
	}
	if len(decoded) != len(issued) {
		return false
	}
	for i := range decoded {
		if decoded[i] != issued[i] {
			return false
		}
	}
	return true
}
