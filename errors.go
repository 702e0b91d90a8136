// Copyright (c) 2026 VirtKey Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package fidobridge

import (
	"errors"
	"strings"

	"github.com/virtkey/fidobridge/internal/cbor"
)

// Kind classifies every error surfaced by this package's public entry points.
// Callers map each kind to an appropriate protocol-level rejection without
// needing to inspect internal parse details.
type Kind int

// Error kinds.
const (
	KindUnknown            Kind = iota
	KindMalformedInput          // truncated or invalid CBOR / authenticator-data bytes
	KindUnsupportedKey          // unrecognized COSE key type, curve, or algorithm
	KindInvalidAttestation      // attestation statement fails format-specific checks
	KindVerificationFailed      // cryptographic signature does not validate
	KindSignCountInvalid        // strict-mode counter replay detected
	KindDuplicateUsername       // registration for an already-registered principal
	KindCredentialNotFound      // credential or principal lookup miss
	KindAccessDenied            // principal exists but is disabled
	KindInvalidCredential       // structural or semantic mismatch (client data type, origin, credential id)
)

func (k Kind) String() string {
	switch k {
	case KindMalformedInput:
		return "malformed input"
	case KindUnsupportedKey:
		return "unsupported key"
	case KindInvalidAttestation:
		return "invalid attestation"
	case KindVerificationFailed:
		return "verification failed"
	case KindSignCountInvalid:
		return "sign count invalid"
	case KindDuplicateUsername:
		return "duplicate username"
	case KindCredentialNotFound:
		return "credential not found"
	case KindAccessDenied:
		return "access denied"
	case KindInvalidCredential:
		return "invalid credential"
	default:
		return "unknown"
	}
}

// Error carries an error kind plus the data type and field being processed
// when the failure occurred.
type Error struct {
	Kind  Kind
	Type  string // data being processed, e.g. "authenticator data"
	Field string // offending field, if any
	Msg   string
	cause error
}

func (e *Error) Error() string {
	s := "fidobridge"
	if e.Type != "" {
		s += "/" + transformType(e.Type)
	}
	s += ": " + e.Kind.String()
	if e.Field != "" {
		s += ": " + e.Field
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.cause
}

func transformType(typ string) string {
	return strings.Replace(strings.ToLower(typ), " ", "_", -1)
}

func newError(kind Kind, typ, field, msg string) *Error {
	return &Error{Kind: kind, Type: typ, Field: field, Msg: msg}
}

func wrapError(kind Kind, typ string, err error) *Error {
	return &Error{Kind: kind, Type: typ, Msg: err.Error(), cause: err}
}

// KindOf classifies err. Raw CBOR syntax errors that escaped without being
// wrapped classify as KindMalformedInput.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var se *cbor.SyntaxError
	if errors.As(err, &se) {
		return KindMalformedInput
	}
	return KindUnknown
}

// IsKind reports whether err classifies as kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
