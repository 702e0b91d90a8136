// Copyright (c) 2026 VirtKey Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package ldbstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/virtkey/fidobridge"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "creds.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)

	// Misses are (nil, nil).
	cred, err := store.FindByID("bm9wZQ==")
	require.NoError(t, err)
	require.Nil(t, cred)
	cred, err = store.FindByPrincipal("nobody")
	require.NoError(t, err)
	require.Nil(t, cred)

	alice := &fidobridge.ServerCredential{
		ID:        "QUJDRA==",
		KeyBytes:  []byte{0x04, 0x01, 0x02},
		COSEAlg:   fidobridge.COSEAlgES256,
		SignCount: 7,
		Username:  "alice",
		Protocol:  fidobridge.ProtocolFIDO2,
		Enabled:   true,
		Ordinal:   1,
	}
	require.NoError(t, store.InsertOrReplace(alice))

	// Read-your-writes through both access paths.
	got, err := store.FindByID("QUJDRA==")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "alice", got.Username)
	require.Equal(t, uint32(7), got.SignCount)
	require.Equal(t, []byte{0x04, 0x01, 0x02}, got.KeyBytes)

	got, err = store.FindByPrincipal("alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "QUJDRA==", got.ID)
}

func TestStoreReplace(t *testing.T) {
	store := openTestStore(t)

	cred := &fidobridge.ServerCredential{ID: "QQ==", Username: "alice", SignCount: 1, Enabled: true}
	require.NoError(t, store.InsertOrReplace(cred))

	cred.SignCount = 2
	require.NoError(t, store.InsertOrReplace(cred))

	got, err := store.FindByID("QQ==")
	require.NoError(t, err)
	require.Equal(t, uint32(2), got.SignCount)
}

func TestStoreDelete(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.InsertOrReplace(&fidobridge.ServerCredential{ID: "QQ==", Username: "alice"}))
	require.NoError(t, store.Delete("QQ=="))

	got, err := store.FindByID("QQ==")
	require.NoError(t, err)
	require.Nil(t, got)

	// The principal index is removed along with the record.
	got, err = store.FindByPrincipal("alice")
	require.NoError(t, err)
	require.Nil(t, got)

	// Deleting an unknown id is a no-op.
	require.NoError(t, store.Delete("QQ=="))
}

func TestStoreListAll(t *testing.T) {
	store := openTestStore(t)

	all, err := store.ListAll()
	require.NoError(t, err)
	require.Empty(t, all)

	require.NoError(t, store.InsertOrReplace(&fidobridge.ServerCredential{ID: "QQ==", Username: "alice", Ordinal: 1}))
	require.NoError(t, store.InsertOrReplace(&fidobridge.ServerCredential{ID: "Qg==", Username: "bob", Ordinal: 2}))

	all, err = store.ListAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "creds.db")

	store, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, store.InsertOrReplace(&fidobridge.ServerCredential{ID: "QQ==", Username: "alice", SignCount: 9}))
	require.NoError(t, store.Close())

	store, err = Open(dir)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.FindByPrincipal("alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, uint32(9), got.SignCount)
}
