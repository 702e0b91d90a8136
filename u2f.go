// Copyright (c) 2026 VirtKey Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package fidobridge

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
)

// U2FRegistration is a parsed legacy U2F registration data message:
// 0x05 || 65-byte public key || key handle length || key handle ||
// DER attestation certificate || signature.
//
// https://fidoalliance.org/specs/fido-u2f-v1.2-ps-20170411/fido-u2f-raw-message-formats-v1.2-ps-20170411.html
type U2FRegistration struct {
	PublicKey       []byte // 65-byte uncompressed P-256 point
	KeyHandle       []byte // credential id in U2F terms
	AttestationCert *x509.Certificate
	Signature       []byte
}

// ParseU2FRegistration parses raw U2F registration data. The certificate
// length is discovered by an ASN.1 skeleton parse of the trailing bytes.
func ParseU2FRegistration(data []byte) (*U2FRegistration, error) {
	// 1 reserved + 65 pubkey + 1 handle length + at least one byte each of
	// handle, certificate, and signature.
	if len(data) < 1+65+1+3 {
		return nil, newError(KindMalformedInput, "u2f registration", "", "unexpected EOF")
	}
	if data[0] != 0x05 {
		return nil, newError(KindMalformedInput, "u2f registration", "reserved byte", "expected 0x05")
	}
	buf := data[1:]

	pubKey := make([]byte, 65)
	copy(pubKey, buf)
	if pubKey[0] != 0x04 {
		return nil, newError(KindMalformedInput, "u2f registration", "public key",
			"expected uncompressed point")
	}
	buf = buf[65:]

	handleLen := int(buf[0])
	buf = buf[1:]
	if len(buf) < handleLen {
		return nil, newError(KindMalformedInput, "u2f registration", "key handle", "unexpected EOF")
	}
	keyHandle := make([]byte, handleLen)
	copy(keyHandle, buf)
	buf = buf[handleLen:]

	// The certificate and the signature are not length-prefixed; parse an
	// ASN.1 value to find where the certificate ends.
	sig, err := asn1.Unmarshal(buf, &asn1.RawValue{})
	if err != nil {
		return nil, wrapError(KindMalformedInput, "u2f registration", err)
	}
	certBytes := buf[:len(buf)-len(sig)]
	cert, err := x509.ParseCertificate(certBytes)
	if err != nil {
		return nil, wrapError(KindMalformedInput, "u2f registration", err)
	}
	if len(sig) == 0 {
		return nil, newError(KindMalformedInput, "u2f registration", "signature", "missing")
	}

	return &U2FRegistration{
		PublicKey:       pubKey,
		KeyHandle:       keyHandle,
		AttestationCert: cert,
		Signature:       append([]byte(nil), sig...),
	}, nil
}

// VerifyRegistration checks the registration signature over
// 0x00 || SHA-256(appId) || SHA-256(clientData) || keyHandle || publicKey
// against the attestation certificate.
func (r *U2FRegistration) VerifyRegistration(appID string, clientData []byte) error {
	appIDHash := sha256.Sum256([]byte(appID))
	clientDataHash := sha256.Sum256(clientData)

	base := make([]byte, 0, 1+32+32+len(r.KeyHandle)+65)
	base = append(base, 0x00)
	base = append(base, appIDHash[:]...)
	base = append(base, clientDataHash[:]...)
	base = append(base, r.KeyHandle...)
	base = append(base, r.PublicKey...)

	if err := r.AttestationCert.CheckSignature(x509.ECDSAWithSHA256, base, r.Signature); err != nil {
		return wrapError(KindVerificationFailed, "u2f registration", err)
	}
	return nil
}
