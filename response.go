// Copyright (c) 2026 VirtKey Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package fidobridge

import (
	"encoding/base64"
	"encoding/json"
)

// RegistrationResponse is the client's reply to a registration ceremony:
// {id, rawId, response:{clientDataJSON, attestationObject}, type}, every
// binary field base64 encoded. The attestation payload is kept undecoded here
// because it may be either a FIDO2/CBOR attestation object or a legacy U2F
// registration message; the orchestrator decides which.
type RegistrationResponse struct {
	ID         string
	RawID      []byte
	ClientData *CollectedClientData
	RawPayload []byte // undecoded attestationObject bytes
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *RegistrationResponse) UnmarshalJSON(data []byte) error {
	type rawAttestationResponse struct {
		ClientDataJSON    string `json:"clientDataJSON"`
		AttestationObject string `json:"attestationObject"`
	}
	type rawPublicKeyCredential struct {
		ID       string                 `json:"id,omitempty"`
		RawID    string                 `json:"rawId,omitempty"`
		Response rawAttestationResponse `json:"response"`
		Type     string                 `json:"type"`
	}
	var raw rawPublicKeyCredential
	if err := json.Unmarshal(data, &raw); err != nil {
		return wrapError(KindMalformedInput, "registration response", err)
	}

	if len(raw.ID) == 0 && len(raw.RawID) == 0 {
		return newError(KindMalformedInput, "registration response", "credential id and raw id", "missing")
	}
	if len(raw.Response.ClientDataJSON) == 0 {
		return newError(KindMalformedInput, "registration response", "client data", "missing")
	}
	if len(raw.Response.AttestationObject) == 0 {
		return newError(KindMalformedInput, "registration response", "attestation object", "missing")
	}
	if raw.Type != "public-key" {
		return newError(KindMalformedInput, "registration response", "type",
			"expected \"public-key\", got \""+raw.Type+"\"")
	}

	id, rawID, err := reconcileCredentialID(raw.ID, raw.RawID, "registration response")
	if err != nil {
		return err
	}
	r.ID = id
	r.RawID = rawID

	rawClientData, err := base64DecodeString(raw.Response.ClientDataJSON)
	if err != nil || len(rawClientData) == 0 {
		return newError(KindMalformedInput, "registration response", "client data", "invalid base64")
	}
	if r.ClientData, err = parseClientData(rawClientData); err != nil {
		return err
	}

	if r.RawPayload, err = base64DecodeString(raw.Response.AttestationObject); err != nil || len(r.RawPayload) == 0 {
		return newError(KindMalformedInput, "registration response", "attestation object", "invalid base64")
	}
	return nil
}

// AssertionResponse is the client's reply to an authentication ceremony:
// {id, rawId, response:{clientDataJSON, authenticatorData, signature,
// userHandle?}, type}.
type AssertionResponse struct {
	ID         string
	RawID      []byte
	ClientData *CollectedClientData
	AuthnData  *AuthenticatorData
	Signature  []byte
	UserHandle []byte
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *AssertionResponse) UnmarshalJSON(data []byte) error {
	type rawAssertionResponse struct {
		ClientDataJSON    string `json:"clientDataJSON"`
		AuthenticatorData string `json:"authenticatorData"`
		Signature         string `json:"signature"`
		UserHandle        string `json:"userHandle"`
	}
	type rawPublicKeyCredential struct {
		ID       string               `json:"id,omitempty"`
		RawID    string               `json:"rawId,omitempty"`
		Response rawAssertionResponse `json:"response"`
		Type     string               `json:"type"`
	}
	var raw rawPublicKeyCredential
	if err := json.Unmarshal(data, &raw); err != nil {
		return wrapError(KindMalformedInput, "assertion response", err)
	}

	if len(raw.ID) == 0 && len(raw.RawID) == 0 {
		return newError(KindMalformedInput, "assertion response", "credential id and raw id", "missing")
	}
	if len(raw.Response.ClientDataJSON) == 0 {
		return newError(KindMalformedInput, "assertion response", "client data", "missing")
	}
	if len(raw.Response.AuthenticatorData) == 0 {
		return newError(KindMalformedInput, "assertion response", "authenticator data", "missing")
	}
	if len(raw.Response.Signature) == 0 {
		return newError(KindMalformedInput, "assertion response", "signature", "missing")
	}
	if raw.Type != "public-key" {
		return newError(KindMalformedInput, "assertion response", "type",
			"expected \"public-key\", got \""+raw.Type+"\"")
	}

	id, rawID, err := reconcileCredentialID(raw.ID, raw.RawID, "assertion response")
	if err != nil {
		return err
	}
	r.ID = id
	r.RawID = rawID

	rawClientData, err := base64DecodeString(raw.Response.ClientDataJSON)
	if err != nil || len(rawClientData) == 0 {
		return newError(KindMalformedInput, "assertion response", "client data", "invalid base64")
	}
	if r.ClientData, err = parseClientData(rawClientData); err != nil {
		return err
	}

	rawAuthnData, err := base64DecodeString(raw.Response.AuthenticatorData)
	if err != nil || len(rawAuthnData) == 0 {
		return newError(KindMalformedInput, "assertion response", "authenticator data", "invalid base64")
	}
	if r.AuthnData, err = ParseAuthenticatorData(rawAuthnData); err != nil {
		return err
	}

	if r.Signature, err = base64DecodeString(raw.Response.Signature); err != nil || len(r.Signature) == 0 {
		return newError(KindMalformedInput, "assertion response", "signature", "invalid base64")
	}
	if len(raw.Response.UserHandle) > 0 {
		if r.UserHandle, err = base64DecodeString(raw.Response.UserHandle); err != nil {
			return newError(KindMalformedInput, "assertion response", "user handle", "invalid base64")
		}
	}
	return nil
}

// reconcileCredentialID fills whichever of id/rawId is absent from the other.
// Both base64url and standard base64 inputs are accepted.
func reconcileCredentialID(id, rawID, typ string) (string, []byte, error) {
	var rawBytes []byte
	var err error
	if len(rawID) > 0 {
		if rawBytes, err = base64DecodeString(rawID); err != nil || len(rawBytes) == 0 {
			return "", nil, newError(KindMalformedInput, typ, "raw id", "invalid base64")
		}
	} else {
		if rawBytes, err = base64DecodeString(id); err != nil || len(rawBytes) == 0 {
			return "", nil, newError(KindMalformedInput, typ, "credential id", "invalid base64")
		}
	}
	if len(id) == 0 {
		id = base64.RawURLEncoding.EncodeToString(rawBytes)
	}
	return id, rawBytes, nil
}
