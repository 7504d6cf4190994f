// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bonsai

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"github.com/vechain/bonsai/block"
	"github.com/vechain/bonsai/chain"
	"github.com/vechain/bonsai/kv"
	"github.com/vechain/bonsai/muxdb"
	"github.com/vechain/bonsai/thor"
	"github.com/vechain/bonsai/trielog"
)

var errCommit = errors.New("commit failure")

// countingStore counts committed puts and trie log reads, and can fail commits.
type countingStore struct {
	kv.Store

	lock       sync.Mutex
	puts       map[string]int
	gets       atomic.Int64
	failCommit atomic.Bool
	// fails only commits that write a trie log
	failTrieLogCommit atomic.Bool
}

func newCountingStore(src kv.Store) *countingStore {
	return &countingStore{Store: src, puts: make(map[string]int)}
}

func (s *countingStore) Get(key []byte) ([]byte, error) {
	if bytes.HasPrefix(key, []byte(trieLogStoreName)) {
		s.gets.Add(1)
	}
	return s.Store.Get(key)
}

func (s *countingStore) Begin() kv.Tx {
	return &countingTx{Tx: s.Store.Begin(), store: s}
}

func (s *countingStore) putCount(key []byte) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.puts[string(key)]
}

type countingTx struct {
	kv.Tx
	store *countingStore
	keys  []string
}

func (tx *countingTx) Put(key, val []byte) error {
	tx.keys = append(tx.keys, string(key))
	return tx.Tx.Put(key, val)
}

func (tx *countingTx) Commit() error {
	if tx.store.failCommit.Load() || (tx.store.failTrieLogCommit.Load() && tx.hasTrieLog()) {
		tx.Tx.Rollback()
		return errCommit
	}
	if err := tx.Tx.Commit(); err != nil {
		return err
	}
	tx.store.lock.Lock()
	defer tx.store.lock.Unlock()
	for _, k := range tx.keys {
		tx.store.puts[k]++
	}
	tx.keys = nil
	return nil
}

func (tx *countingTx) hasTrieLog() bool {
	for _, k := range tx.keys {
		if strings.HasPrefix(k, trieLogStoreName) {
			return true
		}
	}
	return false
}

// fakeState is a world state handle which counts closes.
type fakeState struct {
	blockID  thor.Bytes32
	closes   atomic.Int32
	closeErr error
}

func (s *fakeState) BlockID() thor.Bytes32   { return s.blockID }
func (s *fakeState) StateRoot() thor.Bytes32 { return thor.Bytes32{} }
func (s *fakeState) Account(thor.Address) (*trielog.Account, error) {
	return nil, nil
}
func (s *fakeState) Storage(thor.Address, thor.Bytes32) (*thor.Bytes32, error) {
	return nil, nil
}
func (s *fakeState) Updater() *Updater         { return nil }
func (s *fakeState) Fork() (WorldState, error) { return nil, ErrClosed }
func (s *fakeState) Close() error {
	s.closes.Add(1)
	return s.closeErr
}

func account(balance uint64) *trielog.Account {
	return &trielog.Account{Balance: uint256.NewInt(balance)}
}

func value(b byte) *thor.Bytes32 {
	v := thor.BytesToBytes32([]byte{b})
	return &v
}

func rootOf(n uint32) thor.Bytes32 {
	return thor.Blake2b([]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)})
}

var (
	alice = thor.BytesToAddress([]byte("alice"))
	bob   = thor.BytesToAddress([]byte("bob"))
	slot1 = thor.Bytes32{1}
)

// testEnv is a chain with its world state archive.
type testEnv struct {
	db      *muxdb.MuxDB
	store   *countingStore
	storage *Storage
	repo    *chain.Repository
	manager *Manager
	archive *Archive
}

func newTestEnv(t *testing.T, maxLayers uint32) *testEnv {
	db := muxdb.NewMem()
	store := newCountingStore(db.NewStore(""))

	repo, err := chain.NewRepository(db, block.NewHeader(block.GenesisParentID(), 0, rootOf(0)))
	require.NoError(t, err)

	env := &testEnv{db: db, store: store, repo: repo}
	env.reset(t, maxLayers)

	// genesis state
	u := env.archive.Persisted().Updater()
	u.SetAccount(alice, account(0))
	require.NoError(t, env.archive.Persisted().Persist(u, repo.GenesisBlockHeader()))
	return env
}

// reset drops all cached layers and the trie log blob cache, keeping the persisted data.
// Trie log reads are counted from zero again.
func (env *testEnv) reset(t *testing.T, maxLayers uint32) {
	if env.manager != nil {
		env.manager.Close()
	}
	env.storage = NewStorage(env.store, 1)
	env.store.gets.Store(0)
	env.manager = NewManager(env.storage, maxLayers)
	archive, err := NewArchive(env.storage, env.repo, env.manager)
	require.NoError(t, err)
	env.archive = archive
}

// newHeader creates the next header on parent. The state root is derived from number and ts.
func newHeader(parent *block.Header, ts uint64) *block.Header {
	num := parent.Number() + 1
	return block.NewHeader(parent.ID(), ts, thor.Blake2b(rootOf(num).Bytes(), []byte{byte(ts)}))
}

// persistBlocks imports n blocks on the persisted head, setting alice's balance
// and slot1 of bob to the block number.
func (env *testEnv) persistBlocks(t *testing.T, n int) []*block.Header {
	var headers []*block.Header
	parent := env.repo.BestBlockHeader()
	for i := 0; i < n; i++ {
		h := newHeader(parent, parent.Timestamp()+10)
		u := env.archive.Persisted().Updater()
		u.SetAccount(alice, account(uint64(h.Number())))
		u.SetStorage(bob, slot1, value(byte(h.Number())))
		require.NoError(t, env.archive.Persisted().Persist(u, h))
		require.NoError(t, env.repo.AddHeader(h, true))
		headers = append(headers, h)
		parent = h
	}
	return headers
}

// sideBlocks imports n blocks on a side branch of parent, which must be resolvable
// by the archive. The blocks are saved without touching the flat state.
// Alice's balance on the side branch is 1000 + block number.
func (env *testEnv) sideBlocks(t *testing.T, parent *block.Header, n int) []*block.Header {
	var headers []*block.Header
	for i := 0; i < n; i++ {
		state, ok, err := env.archive.Mutable(parent, parent.ID(), false)
		require.NoError(t, err)
		require.True(t, ok)

		h := newHeader(parent, parent.Timestamp()+7)
		u := state.Updater()
		u.SetAccount(alice, account(1000+uint64(h.Number())))
		u.SetStorage(bob, slot1, nil)
		require.NoError(t, env.manager.SaveTrieLog(u, h.StateRoot(), h))
		require.NoError(t, env.repo.AddHeader(h, false))
		require.NoError(t, state.Close())

		headers = append(headers, h)
		parent = h
	}
	return headers
}

func balanceOf(t *testing.T, s WorldState, addr thor.Address) uint64 {
	acc, err := s.Account(addr)
	require.NoError(t, err)
	if acc == nil {
		return 0
	}
	return acc.Balance.Uint64()
}
