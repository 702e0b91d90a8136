// Copyright (c) 2026 VirtKey Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

// Package ldbstore provides a goleveldb-backed CredentialStore. Records are
// stored as JSON under their credential id with a secondary principal-name
// index, giving read-your-writes consistency on a single store instance.
package ldbstore

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/virtkey/fidobridge"
)

const (
	credPrefix = "cred:"
	userPrefix = "user:"
)

// Store is an embedded-database credential store.
type Store struct {
	db *leveldb.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "ldbstore: open")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return errors.Wrap(s.db.Close(), "ldbstore: close")
}

// FindByID returns the credential with the given normalized id, or (nil, nil).
func (s *Store) FindByID(id string) (*fidobridge.ServerCredential, error) {
	data, err := s.db.Get([]byte(credPrefix+id), nil)
	if err == ldberrors.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "ldbstore: get credential")
	}
	var cred fidobridge.ServerCredential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, errors.Wrap(err, "ldbstore: decode credential")
	}
	return &cred, nil
}

// FindByPrincipal resolves the principal-name index, then the record.
func (s *Store) FindByPrincipal(name string) (*fidobridge.ServerCredential, error) {
	id, err := s.db.Get([]byte(userPrefix+name), nil)
	if err == ldberrors.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "ldbstore: get principal index")
	}
	return s.FindByID(string(id))
}

// InsertOrReplace writes the record and its principal index atomically.
func (s *Store) InsertOrReplace(cred *fidobridge.ServerCredential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return errors.Wrap(err, "ldbstore: encode credential")
	}
	batch := new(leveldb.Batch)
	batch.Put([]byte(credPrefix+cred.ID), data)
	batch.Put([]byte(userPrefix+cred.Username), []byte(cred.ID))
	return errors.Wrap(s.db.Write(batch, nil), "ldbstore: put credential")
}

// Delete removes the record and its principal index. Deleting an unknown id
// is a no-op.
func (s *Store) Delete(id string) error {
	cred, err := s.FindByID(id)
	if err != nil {
		return err
	}
	if cred == nil {
		return nil
	}
	batch := new(leveldb.Batch)
	batch.Delete([]byte(credPrefix + id))
	batch.Delete([]byte(userPrefix + cred.Username))
	return errors.Wrap(s.db.Write(batch, nil), "ldbstore: delete credential")
}

// ListAll returns every stored credential.
func (s *Store) ListAll() ([]*fidobridge.ServerCredential, error) {
	var out []*fidobridge.ServerCredential
	iter := s.db.NewIterator(util.BytesPrefix([]byte(credPrefix)), nil)
	defer iter.Release()
	for iter.Next() {
		var cred fidobridge.ServerCredential
		if err := json.Unmarshal(iter.Value(), &cred); err != nil {
			return nil, errors.Wrap(err, "ldbstore: decode credential")
		}
		out = append(out, &cred)
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "ldbstore: iterate")
	}
	return out, nil
}
