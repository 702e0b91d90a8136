// Copyright (c) 2026 VirtKey Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

/*
Package softauthn implements the authenticator side of the bridge: a software
authenticator holding discoverable P-256 credentials whose private keys are
sealed with a symmetric secret and only ever decrypted transiently for a
single signing operation.

Signing is gated behind a PresenceProber, the boundary to the platform's
biometric or user-presence prompt; its presentation is out of scope here.
*/
package softauthn

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/virtkey/fidobridge/internal/cbor"
)

// ClientCredential is the authenticator-side record of a credential. The
// private key is present only in sealed form.
type ClientCredential struct {
	ID              []byte
	RPID            string
	UserName        string
	UserDisplayName string
	UserHandle      []byte // opaque owner id
	PublicKey       []byte // 65-byte uncompressed P-256 point
	CreatedAt       time.Time

	sealedKey []byte // secretbox-sealed private scalar, never persisted unsealed
}

// PresenceProber confirms user presence before a private key operation. The
// bridge's UI presents the platform biometric prompt behind this interface.
type PresenceProber interface {
	ProbePresence(rpID string, credentialID []byte) (bool, error)
}

// AlwaysPresent approves every presence probe, for tests and headless use.
type AlwaysPresent struct{}

// ProbePresence implements PresenceProber.
func (AlwaysPresent) ProbePresence(string, []byte) (bool, error) { return true, nil }

// Authenticator is a software authenticator with sealed key storage.
type Authenticator struct {
	mu     sync.Mutex
	secret [32]byte
	aaguid [16]byte
	prober PresenceProber
	creds  map[string]*ClientCredential // keyed by base64 id
	rand   io.Reader
	now    func() time.Time
}

// Option customizes an Authenticator.
type Option func(*Authenticator)

// WithAAGUID sets the authenticator model identifier reported in attested
// credential data.
func WithAAGUID(aaguid [16]byte) Option {
	return func(a *Authenticator) { a.aaguid = aaguid }
}

// WithPresenceProber sets the user-presence gate. The default approves every
// probe.
func WithPresenceProber(p PresenceProber) Option {
	return func(a *Authenticator) { a.prober = p }
}

// WithRandom overrides the entropy source, for tests.
func WithRandom(r io.Reader) Option {
	return func(a *Authenticator) { a.rand = r }
}

// New returns an authenticator sealing private keys under secret.
func New(secret [32]byte, opts ...Option) *Authenticator {
	a := &Authenticator{
		secret: secret,
		prober: AlwaysPresent{},
		creds:  make(map[string]*ClientCredential),
		rand:   rand.Reader,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func credKey(id []byte) string {
	return base64.StdEncoding.EncodeToString(id)
}

func (a *Authenticator) seal(plaintext []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(a.rand, nonce[:]); err != nil {
		return nil, errors.Wrap(err, "softauthn: nonce")
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &a.secret), nil
}

func (a *Authenticator) unseal(box []byte) ([]byte, error) {
	if len(box) < 24 {
		return nil, errors.New("softauthn: sealed key too short")
	}
	var nonce [24]byte
	copy(nonce[:], box[:24])
	plaintext, ok := secretbox.Open(nil, box[24:], &nonce, &a.secret)
	if !ok {
		return nil, errors.New("softauthn: failed to unseal private key")
	}
	return plaintext, nil
}

// MakeCredential generates a new P-256 credential scoped to rpID and returns
// the stored record plus a CBOR attestation object with format "none",
// suitable for a relying party's registration ceremony.
func (a *Authenticator) MakeCredential(rpID string, userHandle []byte, userName, displayName string) (*ClientCredential, []byte, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), a.rand)
	if err != nil {
		return nil, nil, errors.Wrap(err, "softauthn: generate key")
	}

	id := make([]byte, 32)
	if _, err := io.ReadFull(a.rand, id); err != nil {
		return nil, nil, errors.Wrap(err, "softauthn: credential id")
	}

	scalar := priv.D.FillBytes(make([]byte, 32))
	sealed, err := a.seal(scalar)
	for i := range scalar {
		scalar[i] = 0
	}
	if err != nil {
		return nil, nil, err
	}

	point := elliptic.Marshal(elliptic.P256(), priv.X, priv.Y)

	cred := &ClientCredential{
		ID:              id,
		RPID:            rpID,
		UserName:        userName,
		UserDisplayName: displayName,
		UserHandle:      append([]byte(nil), userHandle...),
		PublicKey:       point,
		CreatedAt:       a.now(),
		sealedKey:       sealed,
	}

	attObj, err := a.buildAttestationObject(rpID, id, priv.X, priv.Y)
	if err != nil {
		return nil, nil, err
	}

	a.mu.Lock()
	a.creds[credKey(id)] = cred
	a.mu.Unlock()

	return cred, attObj, nil
}

func (a *Authenticator) buildAttestationObject(rpID string, credentialID []byte, x, y *big.Int) ([]byte, error) {
	coseKey := map[interface{}]interface{}{
		int64(1):  int64(2),  // kty: EC2
		int64(3):  int64(-7), // alg: ES256
		int64(-1): int64(1),  // crv: P-256
		int64(-2): x.FillBytes(make([]byte, 32)),
		int64(-3): y.FillBytes(make([]byte, 32)),
	}
	coseKeyBytes, err := cbor.Encode(coseKey)
	if err != nil {
		return nil, errors.Wrap(err, "softauthn: encode cose key")
	}

	authData := buildAuthData(rpID, 0x45, 0, a.aaguid[:], credentialID, coseKeyBytes)

	attObj, err := cbor.Encode(map[interface{}]interface{}{
		"fmt":      "none",
		"attStmt":  map[interface{}]interface{}{},
		"authData": authData,
	})
	if err != nil {
		return nil, errors.Wrap(err, "softauthn: encode attestation object")
	}
	return attObj, nil
}

// buildAuthData assembles the fixed authenticator-data layout. With flag bit
// 0x40 set, the attested credential block (aaguid, id length, id, COSE key)
// is appended.
func buildAuthData(rpID string, flags byte, counter uint32, aaguid, credentialID, coseKey []byte) []byte {
	rpIDHash := sha256.Sum256([]byte(rpID))
	out := make([]byte, 0, 37+18+len(credentialID)+len(coseKey))
	out = append(out, rpIDHash[:]...)
	out = append(out, flags)
	out = append(out, byte(counter>>24), byte(counter>>16), byte(counter>>8), byte(counter))
	if flags&0x40 != 0 {
		out = append(out, aaguid...)
		out = append(out, byte(len(credentialID)>>8), byte(len(credentialID)))
		out = append(out, credentialID...)
		out = append(out, coseKey...)
	}
	return out
}

func (a *Authenticator) lookup(credentialID []byte) (*ClientCredential, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cred, ok := a.creds[credKey(credentialID)]
	if !ok {
		return nil, errors.New("softauthn: unknown credential id")
	}
	return cred, nil
}

// Sign signs payload with the credential's private key, gated behind the
// presence prober. The sealed key is decrypted only for the duration of the
// operation. The signature is ASN.1 DER.
func (a *Authenticator) Sign(credentialID, payload []byte) ([]byte, error) {
	cred, err := a.lookup(credentialID)
	if err != nil {
		return nil, err
	}

	present, err := a.prober.ProbePresence(cred.RPID, credentialID)
	if err != nil {
		return nil, errors.Wrap(err, "softauthn: presence probe")
	}
	if !present {
		return nil, errors.New("softauthn: user presence denied")
	}

	scalar, err := a.unseal(cred.sealedKey)
	if err != nil {
		return nil, err
	}
	defer func() {
		for i := range scalar {
			scalar[i] = 0
		}
	}()

	priv := new(ecdsa.PrivateKey)
	priv.Curve = elliptic.P256()
	priv.D = new(big.Int).SetBytes(scalar)
	priv.X, priv.Y = priv.Curve.ScalarBaseMult(scalar)

	digest := sha256.Sum256(payload)
	return ecdsa.SignASN1(a.rand, priv, digest[:])
}

// GetAssertion produces authenticator data and a signature over
// authData || clientDataHash for an authentication ceremony. Per platform-
// authenticator convention the reported signature counter is always zero.
func (a *Authenticator) GetAssertion(rpID string, credentialID, clientDataHash []byte) (authData, signature []byte, err error) {
	cred, err := a.lookup(credentialID)
	if err != nil {
		return nil, nil, err
	}
	if cred.RPID != rpID {
		return nil, nil, errors.New("softauthn: credential is scoped to a different rp")
	}

	authData = buildAuthData(rpID, 0x05, 0, nil, nil, nil) // UP|UV, no attested data

	payload := make([]byte, 0, len(authData)+len(clientDataHash))
	payload = append(payload, authData...)
	payload = append(payload, clientDataHash...)

	signature, err = a.Sign(credentialID, payload)
	if err != nil {
		return nil, nil, err
	}
	return authData, signature, nil
}

// Credentials returns the authenticator's credential records for rpID, the
// discoverable-credential enumeration used when no allowCredentials filter
// is supplied.
func (a *Authenticator) Credentials(rpID string) []*ClientCredential {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*ClientCredential
	for _, c := range a.creds {
		if c.RPID == rpID {
			out = append(out, c)
		}
	}
	return out
}
