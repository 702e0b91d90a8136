// Copyright (c) 2026 VirtKey Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

/*
Package fidobridge is the verification core of a WebAuthn/FIDO2 relying-party
and authenticator bridge. It decodes the binary and JSON artifacts produced
during credential registration (attestation) and use (assertion), verifies
ES256, RS256, and legacy U2F signatures, and enforces the anti-replay and
identity invariants a credential must satisfy before it is trusted or
updated.

The package is decoupled from net/http; embedding applications own transport,
sessions, and challenge custody. Persistence is abstracted behind
CredentialStore, with an in-memory reference implementation here and an
embedded-database backend in the ldbstore subpackage. The client-side
authenticator role lives in the softauthn subpackage.
*/
package fidobridge

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// User is the account a ceremony runs for.
type User struct {
	ID            []byte // user handle
	Name          string
	DisplayName   string
	CredentialIDs [][]byte // already-registered credential ids, if any
}

// Server orchestrates registration and authentication ceremonies. All
// dependencies are injected; Server holds no process-wide mutable state and
// is safe for concurrent use across independent ceremonies.
type Server struct {
	config *Config
	store  CredentialStore
	log    zerolog.Logger
	rand   io.Reader
	now    func() time.Time
}

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(log zerolog.Logger) ServerOption {
	return func(s *Server) { s.log = log }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ServerOption {
	return func(s *Server) { s.now = now }
}

// WithRandom overrides the challenge entropy source, for tests.
func WithRandom(r io.Reader) ServerOption {
	return func(s *Server) { s.rand = r }
}

// NewServer validates config and returns a ceremony orchestrator bound to the
// given credential store.
func NewServer(config *Config, store CredentialStore, opts ...ServerOption) (*Server, error) {
	if err := config.Valid(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, newError(KindUnknown, "server", "store", "credential store is required")
	}
	s := &Server{
		config: config,
		store:  store,
		log:    zerolog.Nop(),
		rand:   rand.Reader,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Server) newChallenge() ([]byte, error) {
	challenge := make([]byte, s.config.ChallengeLength)
	if _, err := io.ReadFull(s.rand, challenge); err != nil {
		return nil, wrapError(KindUnknown, "challenge", err)
	}
	return challenge, nil
}

// BeginRegistration issues a fresh challenge and builds the credential
// creation options for user. The returned challenge bytes must be retained by
// the caller (typically in the session) and passed to FinishRegistration;
// challenges are single-use and never persisted by this package.
func (s *Server) BeginRegistration(user *User) (*PublicKeyCredentialCreationOptions, []byte, error) {
	if user == nil || user.Name == "" || len(user.ID) == 0 || user.DisplayName == "" {
		return nil, nil, newError(KindInvalidCredential, "registration", "user", "id, name, and display name are required")
	}

	challenge, err := s.newChallenge()
	if err != nil {
		return nil, nil, err
	}

	var excludeCredentials []PublicKeyCredentialDescriptor
	for _, id := range user.CredentialIDs {
		excludeCredentials = append(excludeCredentials, PublicKeyCredentialDescriptor{Type: PublicKeyCredentialTypePublicKey, ID: id})
	}

	var credentialParams []PublicKeyCredentialParameters
	for _, alg := range s.config.CredentialAlgs {
		credentialParams = append(credentialParams, PublicKeyCredentialParameters{Type: PublicKeyCredentialTypePublicKey, Alg: alg})
	}

	options := &PublicKeyCredentialCreationOptions{
		RP: PublicKeyCredentialRpEntity{
			Name: s.config.RPName,
			ID:   s.config.RPID,
		},
		User: PublicKeyCredentialUserEntity{
			Name:        user.Name,
			ID:          user.ID,
			DisplayName: user.DisplayName,
		},
		Challenge:          challenge,
		PubKeyCredParams:   credentialParams,
		Timeout:            s.config.Timeout,
		ExcludeCredentials: excludeCredentials,
		AuthenticatorSelection: AuthenticatorSelectionCriteria{
			AuthenticatorAttachment: s.config.AuthenticatorAttachment,
			RequireResidentKey:      s.config.ResidentKey == ResidentKeyRequired,
			ResidentKey:             s.config.ResidentKey,
			UserVerification:        s.config.UserVerification,
		},
		Hints:       s.config.Hints,
		Attestation: s.config.Attestation,
	}
	if !s.config.Extensions.IsZero() {
		options.Extensions = s.config.Extensions
	}
	return options, challenge, nil
}

// registrationAttempt is the explicit two-branch result of parsing the
// registration payload: a FIDO2 attestation object, a legacy U2F
// registration, or both parse errors when neither form applies.
type registrationAttempt struct {
	fido2    *AttestationObject
	u2f      *U2FRegistration
	fido2Err error
	u2fErr   error
}

func parseRegistrationPayload(data []byte) registrationAttempt {
	obj, err := ParseAttestationObject(data)
	if err == nil {
		return registrationAttempt{fido2: obj}
	}
	reg, u2fErr := ParseU2FRegistration(data)
	if u2fErr == nil {
		return registrationAttempt{u2f: reg, fido2Err: err}
	}
	return registrationAttempt{fido2Err: err, u2fErr: u2fErr}
}

// FinishRegistration completes a registration ceremony for the given
// principal: it verifies client data against the issued challenge and the
// origin policy, parses the payload as FIDO2 with a legacy U2F fallback,
// verifies the attestation statement, and stores the new credential. The
// returned credential has SignCount 0 and Enabled true.
func (s *Server) FinishRegistration(principal, clientIP string, challenge []byte, responseJSON []byte) (*ServerCredential, error) {
	if principal == "" {
		return nil, newError(KindInvalidCredential, "registration", "principal", "missing")
	}

	// Best-effort duplicate check; the existence check and the insert are
	// separate store calls, so a store-level unique constraint is the only
	// complete guard against concurrent double-registration.
	if existing, err := s.store.FindByPrincipal(principal); err != nil {
		return nil, wrapError(KindUnknown, "registration", err)
	} else if existing != nil {
		return nil, newError(KindDuplicateUsername, "registration", "principal",
			"principal "+principal+" already has a credential")
	}

	var response RegistrationResponse
	if err := json.Unmarshal(responseJSON, &response); err != nil {
		return nil, err
	}

	if response.ClientData.Type != "webauthn.create" {
		return nil, newError(KindInvalidCredential, "registration", "client data type",
			"expected \"webauthn.create\", got \""+response.ClientData.Type+"\"")
	}
	if !challengeEqual(response.ClientData.Challenge, challenge) {
		return nil, newError(KindInvalidCredential, "registration", "challenge", "challenge mismatch")
	}
	if !ValidOrigin(response.ClientData.Origin, s.config.RPID) {
		return nil, newError(KindInvalidCredential, "registration", "origin",
			"origin "+response.ClientData.Origin+" is not valid for rp id "+s.config.RPID)
	}

	attempt := parseRegistrationPayload(response.RawPayload)

	var cred *ServerCredential
	switch {
	case attempt.fido2 != nil:
		c, err := s.finishFIDO2Registration(principal, &response, attempt.fido2)
		if err != nil {
			return nil, err
		}
		cred = c
	case attempt.u2f != nil:
		c, err := s.finishU2FRegistration(principal, &response, attempt.u2f)
		if err != nil {
			return nil, err
		}
		cred = c
	default:
		// A payload that decoded far enough to fail on key type or
		// attestation content keeps that more precise classification.
		kind := KindOf(attempt.fido2Err)
		if kind == KindUnknown {
			kind = KindMalformedInput
		}
		return nil, &Error{
			Kind:  kind,
			Type:  "registration",
			Msg:   "payload is neither a FIDO2 attestation object (" + attempt.fido2Err.Error() + ") nor U2F registration data (" + attempt.u2fErr.Error() + ")",
			cause: attempt.fido2Err,
		}
	}

	ordinal, err := s.nextOrdinal()
	if err != nil {
		return nil, err
	}
	now := s.now()
	cred.Ordinal = ordinal
	cred.CreatedAt = now
	cred.LastSeen = now
	cred.LastIP = clientIP
	cred.Enabled = true

	if err := s.store.InsertOrReplace(cred); err != nil {
		return nil, wrapError(KindUnknown, "registration", err)
	}
	s.log.Info().Str("principal", principal).Str("protocol", string(cred.Protocol)).
		Str("format", cred.AttestationFmt).Uint64("ordinal", cred.Ordinal).
		Msg("credential registered")
	return cred, nil
}

func (s *Server) finishFIDO2Registration(principal string, response *RegistrationResponse, obj *AttestationObject) (*ServerCredential, error) {
	authnData := obj.AuthnData

	if !bytes.Equal(response.RawID, authnData.CredentialID) {
		return nil, newError(KindInvalidCredential, "registration", "credential id",
			"response raw id does not match attested credential id")
	}

	rpIDHash := sha256.Sum256([]byte(s.config.RPID))
	if !bytes.Equal(authnData.RPIDHash, rpIDHash[:]) {
		return nil, newError(KindInvalidCredential, "registration", "rp id",
			"authenticator data rp id hash does not match")
	}
	if !authnData.UserPresent {
		return nil, newError(KindInvalidCredential, "registration", "user present", "user wasn't present")
	}
	if s.config.UserVerification == UserVerificationRequired && !authnData.UserVerified {
		return nil, newError(KindInvalidCredential, "registration", "user verification", "user didn't verify")
	}

	algAllowed := false
	for _, alg := range s.config.CredentialAlgs {
		if alg == authnData.Key.COSEAlg {
			algAllowed = true
			break
		}
	}
	if !algAllowed {
		return nil, newError(KindUnsupportedKey, "registration", "credential algorithm",
			"attested algorithm is not among the requested parameters")
	}

	clientDataHash := sha256.Sum256(response.ClientData.Raw)
	if err := obj.VerifyStatement(clientDataHash[:], s.log); err != nil {
		return nil, err
	}

	keyBytes, err := authnData.Key.MarshalBytes()
	if err != nil {
		return nil, err
	}

	var aaguid string
	if len(authnData.AAGUID) == 16 && !bytes.Equal(authnData.AAGUID, make([]byte, 16)) {
		if aaguid, err = FormatAAGUID(authnData.AAGUID); err != nil {
			return nil, err
		}
	}

	return &ServerCredential{
		ID:             encodeCredentialID(authnData.CredentialID),
		KeyBytes:       keyBytes,
		COSEAlg:        authnData.Key.COSEAlg,
		SignCount:      authnData.Counter,
		Username:       principal,
		Protocol:       ProtocolFIDO2,
		AttestationFmt: obj.Format,
		AAGUID:         aaguid,
		Discoverable:   s.config.ResidentKey == ResidentKeyRequired,
		BackupEligible: authnData.BackupEligible,
		BackupState:    authnData.BackupState,
	}, nil
}

func (s *Server) finishU2FRegistration(principal string, response *RegistrationResponse, reg *U2FRegistration) (*ServerCredential, error) {
	if err := reg.VerifyRegistration(s.config.RPID, response.ClientData.Raw); err != nil {
		return nil, err
	}
	if len(response.RawID) > 0 && !bytes.Equal(response.RawID, reg.KeyHandle) {
		return nil, newError(KindInvalidCredential, "registration", "credential id",
			"response raw id does not match key handle")
	}
	return &ServerCredential{
		ID:        encodeCredentialID(reg.KeyHandle),
		KeyBytes:  append([]byte(nil), reg.PublicKey...),
		COSEAlg:   COSEAlgES256,
		SignCount: 0,
		Username:  principal,
		Protocol:  ProtocolU2F,
	}, nil
}

func (s *Server) nextOrdinal() (uint64, error) {
	all, err := s.store.ListAll()
	if err != nil {
		return 0, wrapError(KindUnknown, "registration", err)
	}
	var max uint64
	for _, c := range all {
		if c.Ordinal > max {
			max = c.Ordinal
		}
	}
	return max + 1, nil
}

// BeginAuthentication issues a fresh challenge and builds the credential
// request options. With an empty username the options carry no
// allowCredentials, the discoverable-credential ("passkey") flow.
func (s *Server) BeginAuthentication(username string) (*PublicKeyCredentialRequestOptions, []byte, error) {
	challenge, err := s.newChallenge()
	if err != nil {
		return nil, nil, err
	}

	var allowCredentials []PublicKeyCredentialDescriptor
	if username != "" {
		cred, err := s.store.FindByPrincipal(username)
		if err != nil {
			return nil, nil, wrapError(KindUnknown, "authentication", err)
		}
		if cred == nil {
			return nil, nil, newError(KindCredentialNotFound, "authentication", "principal",
				"no credential for principal "+username)
		}
		rawID, err := cred.RawID()
		if err != nil {
			return nil, nil, err
		}
		allowCredentials = append(allowCredentials, PublicKeyCredentialDescriptor{
			Type: PublicKeyCredentialTypePublicKey,
			ID:   rawID,
		})
	}

	options := &PublicKeyCredentialRequestOptions{
		Challenge:        challenge,
		Timeout:          s.config.Timeout,
		RPID:             s.config.RPID,
		AllowCredentials: allowCredentials,
		UserVerification: s.config.UserVerification,
		Hints:            s.config.Hints,
	}
	return options, challenge, nil
}

// AuthenticationResult reports a completed authentication ceremony.
type AuthenticationResult struct {
	Credential *ServerCredential
	// DiscoveredUsername carries the resolved principal name, set only when
	// the credential was looked up by id (no username supplied).
	DiscoveredUsername string
}

// FinishAuthentication completes an authentication ceremony. With an empty
// username the credential is looked up by the response's credential id and
// the resolved principal is reported in the result. On success the stored
// record is rewritten with the policy-resolved counter and last-seen
// metadata.
func (s *Server) FinishAuthentication(username, clientIP string, challenge []byte, responseJSON []byte) (*AuthenticationResult, error) {
	var response AssertionResponse
	if err := json.Unmarshal(responseJSON, &response); err != nil {
		return nil, err
	}

	var cred *ServerCredential
	var err error
	discoverable := username == ""
	if discoverable {
		cred, err = s.store.FindByID(NormalizeCredentialID(response.ID))
	} else {
		cred, err = s.store.FindByPrincipal(username)
	}
	if err != nil {
		return nil, wrapError(KindUnknown, "authentication", err)
	}
	if cred == nil {
		return nil, newError(KindCredentialNotFound, "authentication", "credential", "no matching credential")
	}
	if !cred.Enabled {
		return nil, newError(KindAccessDenied, "authentication", "principal",
			"principal "+cred.Username+" is disabled")
	}

	if response.ClientData.Type != "webauthn.get" {
		return nil, newError(KindInvalidCredential, "authentication", "client data type",
			"expected \"webauthn.get\", got \""+response.ClientData.Type+"\"")
	}
	if !challengeEqual(response.ClientData.Challenge, challenge) {
		return nil, newError(KindInvalidCredential, "authentication", "challenge", "challenge mismatch")
	}
	if !ValidOrigin(response.ClientData.Origin, s.config.RPID) {
		return nil, newError(KindInvalidCredential, "authentication", "origin",
			"origin "+response.ClientData.Origin+" is not valid for rp id "+s.config.RPID)
	}

	storedRawID, err := cred.RawID()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(response.RawID, storedRawID) {
		return nil, newError(KindInvalidCredential, "authentication", "credential id",
			"response credential id does not match stored credential")
	}

	// The reported rp id hash is client-controlled; compare against the
	// configured RP and use the server-side hash in any signature base.
	rpIDHash := sha256.Sum256([]byte(s.config.RPID))
	if !bytes.Equal(response.AuthnData.RPIDHash, rpIDHash[:]) {
		return nil, newError(KindInvalidCredential, "authentication", "rp id",
			"authenticator data rp id hash does not match")
	}

	if !response.AuthnData.UserPresent {
		return nil, newError(KindInvalidCredential, "authentication", "user present", "user wasn't present")
	}
	if s.config.UserVerification == UserVerificationRequired && !response.AuthnData.UserVerified {
		return nil, newError(KindInvalidCredential, "authentication", "user verification", "user didn't verify")
	}

	key, err := cred.Key()
	if err != nil {
		return nil, err
	}
	clientDataHash := sha256.Sum256(response.ClientData.Raw)

	switch cred.Protocol {
	case ProtocolU2F:
		base := u2fSignatureBase(rpIDHash[:], response.AuthnData.Raw[32],
			response.AuthnData.Counter, clientDataHash[:])
		if err := VerifyU2F(key.Point, base, response.Signature); err != nil {
			return nil, err
		}
	default:
		message := make([]byte, 0, len(response.AuthnData.Raw)+len(clientDataHash))
		message = append(message, response.AuthnData.Raw...)
		message = append(message, clientDataHash[:]...)
		if err := key.Verify(message, response.Signature); err != nil {
			return nil, err
		}
	}

	newCount, err := ResolveCounter(cred.SignCount, response.AuthnData.Counter, s.config.CounterMode)
	if err != nil {
		return nil, err
	}

	now := s.now()
	cred.SignCount = newCount
	cred.LastIP = clientIP
	cred.LastSeen = now
	cred.BackupState = response.AuthnData.BackupState
	if err := s.store.InsertOrReplace(cred); err != nil {
		return nil, wrapError(KindUnknown, "authentication", err)
	}

	result := &AuthenticationResult{Credential: cred}
	if discoverable {
		result.DiscoveredUsername = cred.Username
	}
	s.log.Info().Str("principal", cred.Username).Uint32("signCount", newCount).
		Bool("discoverable", discoverable).Msg("authentication verified")
	return result, nil
}
