// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package muxdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vechain/bonsai/kv"
)

func TestMuxdb(t *testing.T) {
	db := NewMem()
	assert.Nil(t, db.Close())

	opts := Options{
		OpenFilesCacheCapacity: 64,
		ReadCacheMB:            16,
		WriteBufferMB:          4,
	}
	path := filepath.Join(t.TempDir(), "main.db")
	db, err := Open(path, &opts)
	require.NoError(t, err)

	store := db.NewStore("s")
	require.NoError(t, store.Put([]byte("k"), []byte("v")))
	require.NoError(t, db.Close())

	// reopen and read back
	db, err = Open(path, &opts)
	require.NoError(t, err)
	defer db.Close()

	v, err := db.NewStore("s").Get([]byte("k"))
	assert.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}

func TestConfigLoadSave(t *testing.T) {
	db := NewMem()
	defer db.Close()

	store := db.NewStore(propStoreName)

	cfg := config{Version: 7}
	assert.Nil(t, cfg.LoadOrSave(store))

	cfg2 := config{Version: schemaVersion}
	assert.Nil(t, cfg2.LoadOrSave(store))
	assert.Equal(t, uint32(7), cfg2.Version)
}

func TestStoreNotFound(t *testing.T) {
	db := NewMem()
	defer db.Close()

	store := db.NewStore("a")
	_, err := store.Get([]byte("missing"))
	assert.True(t, store.IsNotFound(err))
	assert.True(t, db.IsNotFound(err))

	has, err := store.Has([]byte("missing"))
	assert.NoError(t, err)
	assert.False(t, has)
}

func TestTxCommitRollback(t *testing.T) {
	db := NewMem()
	defer db.Close()

	store := db.NewStore("tx")

	tx := store.Begin()
	require.NoError(t, tx.Put([]byte("a"), []byte("1")))
	require.NoError(t, tx.Put([]byte("b"), []byte("2")))

	_, err := store.Get([]byte("a"))
	assert.True(t, store.IsNotFound(err), "uncommitted writes must be invisible")

	require.NoError(t, tx.Commit())
	tx.Rollback() // no-op after commit
	assert.Error(t, tx.Put([]byte("c"), []byte("3")))

	v, err := store.Get([]byte("b"))
	assert.NoError(t, err)
	assert.Equal(t, []byte("2"), v)

	tx = store.Begin()
	require.NoError(t, tx.Put([]byte("c"), []byte("3")))
	tx.Rollback()
	assert.NoError(t, tx.Commit()) // no-op after rollback

	_, err = store.Get([]byte("c"))
	assert.True(t, store.IsNotFound(err))
}

func TestSnapshotIsolation(t *testing.T) {
	db := NewMem()
	defer db.Close()

	store := db.NewStore("snap")
	require.NoError(t, store.Put([]byte("k"), []byte("old")))

	snap := store.Snapshot()
	defer snap.Release()

	require.NoError(t, store.Put([]byte("k"), []byte("new")))
	require.NoError(t, store.Put([]byte("k2"), []byte("x")))

	v, err := snap.Get([]byte("k"))
	assert.NoError(t, err)
	assert.Equal(t, []byte("old"), v)

	_, err = snap.Get([]byte("k2"))
	assert.True(t, snap.IsNotFound(err))
}

func TestIterateBucket(t *testing.T) {
	db := NewMem()
	defer db.Close()

	a := db.NewStore("a")
	b := db.NewStore("b")
	for _, k := range []string{"1", "2", "3"} {
		require.NoError(t, a.Put([]byte(k), []byte("a"+k)))
	}
	require.NoError(t, b.Put([]byte("1"), []byte("b1")))

	var keys []string
	it := a.Iterate(kv.Range{})
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	it.Release()
	assert.NoError(t, it.Error())
	assert.Equal(t, []string{"1", "2", "3"}, keys)
}
