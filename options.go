// Copyright (c) 2026 VirtKey Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package fidobridge

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
)

type bufferString []byte

// MarshalJSON returns a quoted base64 URL encoding of the buffer.
func (b bufferString) MarshalJSON() ([]byte, error) {
	s := base64.RawURLEncoding.EncodeToString(b)
	return []byte("\"" + s + "\""), nil
}

// UnmarshalJSON expects a quoted base64 URL encoded string.
func (b *bufferString) UnmarshalJSON(data []byte) (err error) {
	if len(data) < 2 {
		return errors.New("json: illegal data " + string(data))
	}
	if data[0] != '"' {
		return errors.New("json: illegal data at input byte 0")
	}
	if data[len(data)-1] != '"' {
		return errors.New("json: illegal data at input byte " + strconv.Itoa(len(data)-1))
	}
	*b, err = base64.RawURLEncoding.DecodeString(string(data[1 : len(data)-1]))
	return err
}

// PublicKeyCredentialRpEntity identifies the Relying Party.
type PublicKeyCredentialRpEntity struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
}

// PublicKeyCredentialUserEntity identifies the user account a credential is
// created for. The ID is the user handle and should not include personally
// identifying information.
type PublicKeyCredentialUserEntity struct {
	Name        string       `json:"name"`
	ID          bufferString `json:"id"`
	DisplayName string       `json:"displayName"`
}

// AuthenticatorAttachment enumeration.
type AuthenticatorAttachment string

const (
	AuthenticatorPlatform      AuthenticatorAttachment = "platform"
	AuthenticatorCrossPlatform AuthenticatorAttachment = "cross-platform"
)

// UserVerificationRequirement enumeration.
type UserVerificationRequirement string

const (
	UserVerificationRequired    UserVerificationRequirement = "required"
	UserVerificationPreferred   UserVerificationRequirement = "preferred"
	UserVerificationDiscouraged UserVerificationRequirement = "discouraged"
)

// ResidentKeyRequirement enumeration.
type ResidentKeyRequirement string

const (
	ResidentKeyDiscouraged ResidentKeyRequirement = "discouraged"
	ResidentKeyPreferred   ResidentKeyRequirement = "preferred"
	ResidentKeyRequired    ResidentKeyRequirement = "required"
)

// AuthenticatorSelectionCriteria narrows acceptable authenticators for a
// registration.
type AuthenticatorSelectionCriteria struct {
	AuthenticatorAttachment AuthenticatorAttachment     `json:"authenticatorAttachment,omitempty"`
	RequireResidentKey      bool                        `json:"requireResidentKey,omitempty"`
	ResidentKey             ResidentKeyRequirement      `json:"residentKey,omitempty"`
	UserVerification        UserVerificationRequirement `json:"userVerification,omitempty"`
}

// PublicKeyCredentialType enumeration.
type PublicKeyCredentialType string

// PublicKeyCredentialTypePublicKey is the only defined credential type.
const PublicKeyCredentialTypePublicKey PublicKeyCredentialType = "public-key"

// PublicKeyCredentialParameters names an acceptable credential algorithm.
type PublicKeyCredentialParameters struct {
	Type PublicKeyCredentialType `json:"type"`
	Alg  int                     `json:"alg"` // COSE algorithm identifier
}

// AuthenticatorTransport enumeration.
type AuthenticatorTransport string

const (
	AuthenticatorUSB      AuthenticatorTransport = "usb"
	AuthenticatorNFC      AuthenticatorTransport = "nfc"
	AuthenticatorBLE      AuthenticatorTransport = "ble"
	AuthenticatorHybrid   AuthenticatorTransport = "hybrid"
	AuthenticatorInternal AuthenticatorTransport = "internal"
)

// PublicKeyCredentialDescriptor identifies a specific credential.
type PublicKeyCredentialDescriptor struct {
	Type       PublicKeyCredentialType  `json:"type"`
	ID         bufferString             `json:"id"`
	Transports []AuthenticatorTransport `json:"transports,omitempty"`
}

// AttestationConveyancePreference enumeration.
type AttestationConveyancePreference string

const (
	AttestationNone     AttestationConveyancePreference = "none"
	AttestationIndirect AttestationConveyancePreference = "indirect"
	AttestationDirect   AttestationConveyancePreference = "direct"
)

// PublicKeyCredentialHint enumeration, ordered guidance to the client about
// which authenticator class the Relying Party prefers.
type PublicKeyCredentialHint string

const (
	HintSecurityKey  PublicKeyCredentialHint = "security-key"
	HintClientDevice PublicKeyCredentialHint = "client-device"
	HintHybrid       PublicKeyCredentialHint = "hybrid"
)

// CredentialProtectionPolicy values for the credProtect extension.
type CredentialProtectionPolicy string

const (
	CredProtectUVOptional             CredentialProtectionPolicy = "userVerificationOptional"
	CredProtectUVOptionalWithCredList CredentialProtectionPolicy = "userVerificationOptionalWithCredentialIDList"
	CredProtectUVRequired             CredentialProtectionPolicy = "userVerificationRequired"
)

// CredentialExtensions is the closed set of extension inputs this package
// understands, with named typed fields. Extensions outside the closed set are
// preserved as opaque key/value pairs rather than silently dropped.
type CredentialExtensions struct {
	CredProps        bool                       // request discoverability info from the client
	CredProtect      CredentialProtectionPolicy // credential protection policy, if any
	LargeBlobSupport string                     // "preferred" or "required", empty to omit

	Unknown map[string]json.RawMessage // preserved unrecognized extensions
}

// IsZero reports whether no extension input is set.
func (e *CredentialExtensions) IsZero() bool {
	return e == nil || (!e.CredProps && e.CredProtect == "" && e.LargeBlobSupport == "" && len(e.Unknown) == 0)
}

// MarshalJSON flattens known fields and opaque pairs into one extensions map.
// Known fields win over same-named opaque pairs.
func (e CredentialExtensions) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, 3+len(e.Unknown))
	for k, v := range e.Unknown {
		m[k] = v
	}
	if e.CredProps {
		m["credProps"] = true
	}
	if e.CredProtect != "" {
		m["credentialProtectionPolicy"] = e.CredProtect
	}
	if e.LargeBlobSupport != "" {
		m["largeBlob"] = map[string]string{"support": e.LargeBlobSupport}
	}
	return json.Marshal(m)
}

// UnmarshalJSON splits a wire extensions map into known fields and preserved
// opaque pairs.
func (e *CredentialExtensions) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*e = CredentialExtensions{}
	for k, v := range m {
		switch k {
		case "credProps":
			if err := json.Unmarshal(v, &e.CredProps); err != nil {
				return err
			}
		case "credentialProtectionPolicy":
			if err := json.Unmarshal(v, &e.CredProtect); err != nil {
				return err
			}
		case "largeBlob":
			var lb struct {
				Support string `json:"support"`
			}
			if err := json.Unmarshal(v, &lb); err != nil {
				return err
			}
			e.LargeBlobSupport = lb.Support
		default:
			if e.Unknown == nil {
				e.Unknown = make(map[string]json.RawMessage)
			}
			e.Unknown[k] = v
		}
	}
	return nil
}

// PublicKeyCredentialCreationOptions is the registration options object sent
// to the client.
type PublicKeyCredentialCreationOptions struct {
	RP                     PublicKeyCredentialRpEntity     `json:"rp"`
	User                   PublicKeyCredentialUserEntity   `json:"user"`
	Challenge              bufferString                    `json:"challenge"`
	PubKeyCredParams       []PublicKeyCredentialParameters `json:"pubKeyCredParams"`
	Timeout                uint64                          `json:"timeout,omitempty"`
	ExcludeCredentials     []PublicKeyCredentialDescriptor `json:"excludeCredentials,omitempty"`
	AuthenticatorSelection AuthenticatorSelectionCriteria  `json:"authenticatorSelection,omitempty"`
	Hints                  []PublicKeyCredentialHint       `json:"hints,omitempty"`
	Attestation            AttestationConveyancePreference `json:"attestation,omitempty"`
	Extensions             *CredentialExtensions           `json:"extensions,omitempty"`
}

// PublicKeyCredentialRequestOptions is the authentication options object sent
// to the client.
type PublicKeyCredentialRequestOptions struct {
	Challenge        bufferString                    `json:"challenge"`
	Timeout          uint64                          `json:"timeout,omitempty"`
	RPID             string                          `json:"rpId,omitempty"`
	AllowCredentials []PublicKeyCredentialDescriptor `json:"allowCredentials,omitempty"`
	UserVerification UserVerificationRequirement     `json:"userVerification,omitempty"`
	Hints            []PublicKeyCredentialHint       `json:"hints,omitempty"`
	Extensions       *CredentialExtensions           `json:"extensions,omitempty"`
}
