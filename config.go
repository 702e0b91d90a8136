// Copyright (c) 2026 VirtKey Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package fidobridge

import (
	"errors"
	"strconv"
)

// Config holds the Relying Party settings used by the ceremony orchestrator.
// Zero value Config is not valid; use Valid before constructing a Server.
type Config struct {
	RPID   string // effective domain the credentials are scoped to
	RPName string

	ChallengeLength         int    // bytes, defaults to 32 via DefaultConfig
	Timeout                 uint64 // milliseconds, forwarded to clients
	AuthenticatorAttachment AuthenticatorAttachment
	ResidentKey             ResidentKeyRequirement
	UserVerification        UserVerificationRequirement
	Attestation             AttestationConveyancePreference
	CredentialAlgs          []int // acceptable COSE algorithms, most preferred first
	Hints                   []PublicKeyCredentialHint
	Extensions              *CredentialExtensions

	// CounterMode selects the signature-counter replay policy. The zero
	// value is CounterServerManaged.
	CounterMode CounterMode
}

const (
	challengeMinLength = 16
	challengeMaxLength = 64

	// DefaultChallengeLength matches the 32-byte single-use challenge each
	// ceremony issues.
	DefaultChallengeLength = 32
)

// DefaultConfig returns a Config with sensible defaults for the given RP.
func DefaultConfig(rpID, rpName string) *Config {
	return &Config{
		RPID:             rpID,
		RPName:           rpName,
		ChallengeLength:  DefaultChallengeLength,
		Timeout:          60000,
		ResidentKey:      ResidentKeyPreferred,
		UserVerification: UserVerificationPreferred,
		Attestation:      AttestationNone,
		CredentialAlgs:   []int{COSEAlgES256, COSEAlgRS256},
	}
}

// Valid checks Config settings and returns an error if they are unusable.
func (c *Config) Valid() error {
	if c.RPName == "" {
		return errors.New("rp name is required")
	}
	if c.RPID == "" {
		return errors.New("rp id is required")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be a positive number")
	}
	if c.ChallengeLength < challengeMinLength {
		return errors.New("challenge must be at least " + strconv.Itoa(challengeMinLength) + " bytes long")
	}
	if c.ChallengeLength > challengeMaxLength {
		return errors.New("challenge must be no more than " + strconv.Itoa(challengeMaxLength) + " bytes long")
	}
	if c.AuthenticatorAttachment != "" &&
		c.AuthenticatorAttachment != AuthenticatorPlatform &&
		c.AuthenticatorAttachment != AuthenticatorCrossPlatform {
		return errors.New("authenticator attachment must be \"\", \"platform\", or \"cross-platform\"")
	}
	if c.ResidentKey != ResidentKeyRequired &&
		c.ResidentKey != ResidentKeyPreferred &&
		c.ResidentKey != ResidentKeyDiscouraged {
		return errors.New("resident key must be \"required\", \"preferred\", or \"discouraged\"")
	}
	if c.UserVerification != UserVerificationRequired &&
		c.UserVerification != UserVerificationPreferred &&
		c.UserVerification != UserVerificationDiscouraged {
		return errors.New("user verification must be \"required\", \"preferred\", or \"discouraged\"")
	}
	if c.Attestation != AttestationNone &&
		c.Attestation != AttestationIndirect &&
		c.Attestation != AttestationDirect {
		return errors.New("attestation must be \"none\", \"indirect\", or \"direct\"")
	}
	if len(c.CredentialAlgs) == 0 {
		return errors.New("there must be at least one credential algorithm")
	}
	for _, alg := range c.CredentialAlgs {
		if alg != COSEAlgES256 && alg != COSEAlgRS256 {
			return errors.New("credential algorithm " + strconv.Itoa(alg) + " is not supported")
		}
	}
	switch c.CounterMode {
	case CounterServerManaged, CounterStrict, CounterDisabled:
	default:
		return errors.New("unknown counter mode")
	}
	return nil
}
