// Copyright (c) 2026 VirtKey Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package fidobridge

import (
	"encoding/base64"
	"time"
)

// Protocol identifies the credential's wire protocol variant.
type Protocol string

// Protocol variants.
const (
	ProtocolFIDO2 Protocol = "fido2"
	ProtocolU2F   Protocol = "u2f"
)

// ServerCredential is the relying-party record for a registered credential.
// The identifier is unique across all server credentials; identifier, public
// key, and signing algorithm are immutable after creation. The private key is
// never present in this record.
type ServerCredential struct {
	ID             string   `json:"id"`      // credential id, padded standard base64
	KeyBytes       []byte   `json:"key"`     // normalized public key material (see PublicKey.MarshalBytes)
	COSEAlg        int      `json:"alg"`     // signing algorithm, immutable
	SignCount      uint32   `json:"signCount"`
	Username       string   `json:"username"` // owning principal name
	Protocol       Protocol `json:"protocol"`
	AttestationFmt string   `json:"attestationFmt,omitempty"`
	AAGUID         string   `json:"aaguid,omitempty"` // hyphenated uppercase UUID text
	Discoverable   bool     `json:"discoverable,omitempty"`
	BackupEligible bool     `json:"backupEligible,omitempty"`
	BackupState    bool     `json:"backupState,omitempty"`

	// Presentation metadata, mutated on use.
	Glyph    string    `json:"glyph,omitempty"`
	LastIP   string    `json:"lastIP,omitempty"`
	LastSeen time.Time `json:"lastSeen"`

	CreatedAt time.Time `json:"createdAt"`
	Enabled   bool      `json:"enabled"`
	Admin     bool      `json:"admin,omitempty"`
	Ordinal   uint64    `json:"ordinal"` // monotonically-assigned registration ordinal
}

// RawID decodes the credential id back to raw bytes.
func (c *ServerCredential) RawID() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(c.ID)
	if err != nil {
		return nil, wrapError(KindInvalidCredential, "server credential", err)
	}
	return b, nil
}

// Key reconstructs the normalized public key from the stored material.
func (c *ServerCredential) Key() (*PublicKey, error) {
	return UnmarshalStoredKey(c.COSEAlg, c.KeyBytes)
}
