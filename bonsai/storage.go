// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bonsai

import (
	"slices"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
	"github.com/qianbin/directcache"
	"github.com/vechain/bonsai/kv"
	"github.com/vechain/bonsai/thor"
	"github.com/vechain/bonsai/trielog"
)

const (
	accountStoreName = "b.acct" // flat accounts of the head state
	storageStoreName = "b.slot" // flat storage slots of the head state
	trieLogStoreName = "b.tlog" // encoded trie logs keyed by block id
	propStoreName    = "b.prop" // head sentinels
)

var (
	worldRootKey  = []byte("world-root-hash")
	worldBlockKey = []byte("world-block-hash")
)

// Storage is the persisted store of the flat head state and the trie logs.
type Storage struct {
	root     kv.Store
	accounts kv.Store
	slots    kv.Store
	trieLogs kv.Store
	props    kv.Store

	blobs *directcache.Cache // caches encoded trie logs
}

// NewStorage creates the storage over the given root store.
// cacheSizeMB sizes the trie log blob cache.
func NewStorage(root kv.Store, cacheSizeMB int) *Storage {
	return &Storage{
		root:     root,
		accounts: kv.Bucket(accountStoreName).NewStore(root),
		slots:    kv.Bucket(storageStoreName).NewStore(root),
		trieLogs: kv.Bucket(trieLogStoreName).NewStore(root),
		props:    kv.Bucket(propStoreName).NewStore(root),
		blobs:    directcache.New(cacheSizeMB * 1024 * 1024),
	}
}

func slotStoreKey(addr thor.Address, key thor.Bytes32) []byte {
	return append(addr.Bytes(), key[:]...)
}

func readAccount(g kv.Getter, addr thor.Address) (*trielog.Account, error) {
	data, err := g.Get(addr[:])
	if err != nil {
		if g.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var acc trielog.Account
	if err := rlp.DecodeBytes(data, &acc); err != nil {
		return nil, errors.Wrap(err, "decode account")
	}
	return &acc, nil
}

func readStorage(g kv.Getter, addr thor.Address, key thor.Bytes32) (*thor.Bytes32, error) {
	data, err := g.Get(slotStoreKey(addr, key))
	if err != nil {
		if g.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	v := thor.BytesToBytes32(data)
	return &v, nil
}

func readHead(g kv.Getter) (root, blockID thor.Bytes32, err error) {
	for _, p := range []struct {
		key []byte
		val *thor.Bytes32
	}{{worldRootKey, &root}, {worldBlockKey, &blockID}} {
		data, err := g.Get(p.key)
		if err != nil {
			if g.IsNotFound(err) {
				continue
			}
			return thor.Bytes32{}, thor.Bytes32{}, err
		}
		*p.val = thor.BytesToBytes32(data)
	}
	return
}

// Account reads an account of the head state. It returns nil if absent.
func (s *Storage) Account(addr thor.Address) (*trielog.Account, error) {
	return readAccount(s.accounts, addr)
}

// Storage reads a storage slot of the head state. It returns nil if absent.
func (s *Storage) Storage(addr thor.Address, key thor.Bytes32) (*thor.Bytes32, error) {
	return readStorage(s.slots, addr, key)
}

// WorldHead returns the state root and block id of the head state.
// Zero values are returned for an empty storage.
func (s *Storage) WorldHead() (root, blockID thor.Bytes32, err error) {
	return readHead(s.props)
}

// HasTrieLog returns whether a trie log of the given block is persisted.
func (s *Storage) HasTrieLog(blockID thor.Bytes32) (bool, error) {
	if s.blobs.AdvGet(blockID[:], func([]byte) {}, true) {
		return true, nil
	}
	return s.trieLogs.Has(blockID[:])
}

// TrieLog reads the encoded trie log of the given block.
func (s *Storage) TrieLog(blockID thor.Bytes32) ([]byte, bool, error) {
	var blob []byte
	if s.blobs.AdvGet(blockID[:], func(val []byte) {
		blob = slices.Clone(val)
	}, false) {
		metricTrieLogCache().AddWithLabel(1, map[string]string{"event": "hit"})
		return blob, true, nil
	}
	metricTrieLogCache().AddWithLabel(1, map[string]string{"event": "miss"})

	blob, err := s.trieLogs.Get(blockID[:])
	if err != nil {
		if s.trieLogs.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	_ = s.blobs.Set(blockID[:], blob)
	return blob, true, nil
}

// Begin starts a transaction spanning all stores.
func (s *Storage) Begin() *StorageTx {
	tx := s.root.Begin()
	return &StorageTx{
		tx:       tx,
		storage:  s,
		accounts: kv.Bucket(accountStoreName).NewPutter(tx),
		slots:    kv.Bucket(storageStoreName).NewPutter(tx),
		trieLogs: kv.Bucket(trieLogStoreName).NewPutter(tx),
		props:    kv.Bucket(propStoreName).NewPutter(tx),
	}
}

// Snapshot pins the current flat state.
func (s *Storage) Snapshot() *Snapshot {
	snap := s.root.Snapshot()
	return &Snapshot{
		snap:     snap,
		accounts: kv.Bucket(accountStoreName).NewGetter(snap),
		slots:    kv.Bucket(storageStoreName).NewGetter(snap),
		props:    kv.Bucket(propStoreName).NewGetter(snap),
	}
}

// StorageTx buffers writes to the storage until Commit.
// It's safe to defer Rollback right after Begin.
type StorageTx struct {
	tx       kv.Tx
	storage  *Storage
	accounts kv.Putter
	slots    kv.Putter
	trieLogs kv.Putter
	props    kv.Putter

	blobs map[thor.Bytes32][]byte
}

// PutAccount writes an account. A nil account deletes it.
func (tx *StorageTx) PutAccount(addr thor.Address, acc *trielog.Account) error {
	if acc == nil {
		return tx.accounts.Delete(addr[:])
	}
	data, err := rlp.EncodeToBytes(acc)
	if err != nil {
		return err
	}
	return tx.accounts.Put(addr[:], data)
}

// PutStorage writes a storage slot. A nil value deletes it.
func (tx *StorageTx) PutStorage(addr thor.Address, key thor.Bytes32, val *thor.Bytes32) error {
	if val == nil {
		return tx.slots.Delete(slotStoreKey(addr, key))
	}
	return tx.slots.Put(slotStoreKey(addr, key), val[:])
}

// PutTrieLog writes the encoded trie log of a block.
func (tx *StorageTx) PutTrieLog(blockID thor.Bytes32, blob []byte) error {
	if err := tx.trieLogs.Put(blockID[:], blob); err != nil {
		return err
	}
	if tx.blobs == nil {
		tx.blobs = make(map[thor.Bytes32][]byte)
	}
	tx.blobs[blockID] = blob
	return nil
}

// PutWorldHead writes the head sentinels.
func (tx *StorageTx) PutWorldHead(root, blockID thor.Bytes32) error {
	if err := tx.props.Put(worldRootKey, root[:]); err != nil {
		return err
	}
	return tx.props.Put(worldBlockKey, blockID[:])
}

// Commit applies all writes atomically.
func (tx *StorageTx) Commit() error {
	if err := tx.tx.Commit(); err != nil {
		return err
	}
	for id, blob := range tx.blobs {
		_ = tx.storage.blobs.Set(id[:], blob)
	}
	tx.blobs = nil
	return nil
}

// Rollback discards all writes. It's a no-op after Commit.
func (tx *StorageTx) Rollback() {
	tx.tx.Rollback()
	tx.blobs = nil
}

// Snapshot is a read view of the flat state pinned at a point in time.
type Snapshot struct {
	snap     kv.Snapshot
	accounts kv.Getter
	slots    kv.Getter
	props    kv.Getter
}

// Account reads an account. It returns nil if absent.
func (s *Snapshot) Account(addr thor.Address) (*trielog.Account, error) {
	return readAccount(s.accounts, addr)
}

// Storage reads a storage slot. It returns nil if absent.
func (s *Snapshot) Storage(addr thor.Address, key thor.Bytes32) (*thor.Bytes32, error) {
	return readStorage(s.slots, addr, key)
}

// WorldHead returns the state root and block id the snapshot is pinned at.
func (s *Snapshot) WorldHead() (root, blockID thor.Bytes32, err error) {
	return readHead(s.props)
}

// Release releases the snapshot.
func (s *Snapshot) Release() {
	s.snap.Release()
}
