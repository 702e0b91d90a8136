// Copyright (c) 2026 VirtKey Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package fidobridge

import (
	"encoding/binary"
)

// Authenticator data flag bits, as defined in
// http://w3c.github.io/webauthn/#sctn-authenticator-data
const (
	flagUserPresent    = 0x01 // UP: flags bit 0
	flagUserVerified   = 0x04 // UV: flags bit 2
	flagBackupEligible = 0x08 // BE: flags bit 3
	flagBackupState    = 0x10 // BS: flags bit 4
	flagAttestedData   = 0x40 // AT: flags bit 6
	flagExtensionData  = 0x80 // ED: flags bit 7
)

// AuthenticatorData represents the fixed-layout authenticator data structure:
// a 32-byte RP ID hash, one flag byte, a 4-byte big-endian signature counter,
// and an optional attested credential data block.
type AuthenticatorData struct {
	Raw            []byte // complete raw authenticator data content
	RPIDHash       []byte // SHA-256 hash of the RP ID the credential is scoped to
	UserPresent    bool
	UserVerified   bool
	BackupEligible bool
	BackupState    bool
	Counter        uint32 // signature counter reported by the authenticator

	// Attested credential data, present only when the AT flag is set.
	AAGUID       []byte     // authenticator model identifier, 16 bytes
	CredentialID []byte     // identifier of the public key credential source
	Key          *PublicKey // attested credential public key

	// Raw extension data trailing the attested block (ED flag). Retained
	// undecoded; unknown authenticator extensions are tolerated, not parsed.
	RawExtensions []byte
}

// ParseAuthenticatorData parses raw authenticator data bytes. Buffers shorter
// than the 37-byte fixed prefix, or shorter than the attested credential data
// block announced by the AT flag, fail with a malformed-input error.
func ParseAuthenticatorData(data []byte) (*AuthenticatorData, error) {
	if len(data) < 37 {
		return nil, newError(KindMalformedInput, "authenticator data", "", "unexpected EOF")
	}

	authnData := &AuthenticatorData{Raw: data}

	authnData.RPIDHash = make([]byte, 32)
	copy(authnData.RPIDHash, data)

	flags := data[32]
	authnData.UserPresent = flags&flagUserPresent > 0
	authnData.UserVerified = flags&flagUserVerified > 0
	authnData.BackupEligible = flags&flagBackupEligible > 0
	authnData.BackupState = flags&flagBackupState > 0
	credentialDataIncluded := flags&flagAttestedData > 0
	extensionDataIncluded := flags&flagExtensionData > 0

	authnData.Counter = binary.BigEndian.Uint32(data[33:37])

	rest := data[37:]

	if credentialDataIncluded {
		if len(rest) < 18 {
			return nil, newError(KindMalformedInput, "authenticator data", "attested credential data", "unexpected EOF")
		}

		authnData.AAGUID = make([]byte, 16)
		copy(authnData.AAGUID, rest)

		// idLength must widen to int before any index arithmetic; 16-bit
		// offsets wrap for lengths near 65535.
		idLength := int(binary.BigEndian.Uint16(rest[16:18]))
		if len(rest[18:]) < idLength {
			return nil, newError(KindMalformedInput, "authenticator data", "credential id", "unexpected EOF")
		}
		authnData.CredentialID = make([]byte, idLength)
		copy(authnData.CredentialID, rest[18:])

		key, n, err := ParseCOSEKey(rest[18+idLength:])
		if err != nil {
			return nil, err
		}
		authnData.Key = key
		rest = rest[18+idLength+n:]
	}

	if extensionDataIncluded {
		authnData.RawExtensions = rest
	}

	return authnData, nil
}
