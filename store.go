// Copyright (c) 2026 VirtKey Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package fidobridge

import "sync"

// CredentialStore is the persistence boundary consumed by the ceremony
// orchestrator. Implementations must provide read-your-writes consistency: a
// credential stored by a registration is visible to the very next lookup on
// the same store. A miss returns (nil, nil); errors are reserved for backend
// failures.
//
// The duplicate-principal check and the insert are performed as two calls;
// stores that can enforce a unique principal constraint should do so, the
// orchestrator's check is best-effort.
type CredentialStore interface {
	FindByPrincipal(name string) (*ServerCredential, error)
	FindByID(id string) (*ServerCredential, error)
	InsertOrReplace(cred *ServerCredential) error
	Delete(id string) error
	ListAll() ([]*ServerCredential, error)
}

// MemoryStore is a mutex-guarded in-memory CredentialStore, the reference
// semantics for other backends and the store used throughout the tests.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]*ServerCredential // keyed by normalized credential id
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]*ServerCredential)}
}

// FindByPrincipal returns the credential owned by name, or (nil, nil).
func (s *MemoryStore) FindByPrincipal(name string) (*ServerCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.creds {
		if c.Username == name {
			out := *c
			return &out, nil
		}
	}
	return nil, nil
}

// FindByID returns the credential with the given normalized id, or (nil, nil).
func (s *MemoryStore) FindByID(id string) (*ServerCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[id]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

// InsertOrReplace stores cred, replacing any record with the same id.
func (s *MemoryStore) InsertOrReplace(cred *ServerCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *cred
	s.creds[cred.ID] = &c
	return nil
}

// Delete removes the credential with the given id. Deleting an unknown id is
// a no-op; deleted records are no longer lookup-able.
func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, id)
	return nil
}

// ListAll returns copies of every stored credential.
func (s *MemoryStore) ListAll() ([]*ServerCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ServerCredential, 0, len(s.creds))
	for _, c := range s.creds {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}
