// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bonsai

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/vechain/bonsai/block"
	"github.com/vechain/bonsai/thor"
	"github.com/vechain/bonsai/trielog"
)

// ErrClosed is returned when using a closed world state.
var ErrClosed = errors.New("world state closed")

// WorldState is a handle to the world state at one block.
type WorldState interface {
	// BlockID returns the id of the block the state is positioned at.
	BlockID() thor.Bytes32
	// StateRoot returns the state root of the block.
	StateRoot() thor.Bytes32
	// Account returns the account, or nil if absent.
	Account(addr thor.Address) (*trielog.Account, error)
	// Storage returns the storage slot value, or nil if absent.
	Storage(addr thor.Address, key thor.Bytes32) (*thor.Bytes32, error)
	// Updater returns a new updater recording changes on top of the state.
	Updater() *Updater
	// Fork returns an independent handle to the same state, which must be closed by the caller.
	Fork() (WorldState, error)
	// Close releases the resources held by the handle.
	Close() error
}

// reader reads flat values.
type reader interface {
	Account(addr thor.Address) (*trielog.Account, error)
	Storage(addr thor.Address, key thor.Bytes32) (*thor.Bytes32, error)
}

// deriver derives a new layered state, with changes applied on top of the current state.
type deriver interface {
	derive(blockID, root thor.Bytes32, apply func(w trielog.Writer)) (*LayeredState, error)
}

// pinnedSnapshot is a ref-counted storage snapshot.
type pinnedSnapshot struct {
	*Snapshot
	refs atomic.Int32
}

func pin(s *Snapshot) *pinnedSnapshot {
	p := &pinnedSnapshot{Snapshot: s}
	p.refs.Store(1)
	return p
}

// retain adds a reference. It fails once the last reference is released.
func (p *pinnedSnapshot) retain() bool {
	for {
		n := p.refs.Load()
		if n <= 0 {
			return false
		}
		if p.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (p *pinnedSnapshot) release() {
	if p.refs.Add(-1) == 0 {
		p.Snapshot.Release()
	}
}

// overlay holds the values that differ from the pinned snapshot.
// A nil value marks the entry deleted. It's read-only once sealed.
type overlay struct {
	accounts map[thor.Address]*trielog.Account
	slots    map[slotKey]*thor.Bytes32
}

type slotKey struct {
	addr thor.Address
	key  thor.Bytes32
}

func newOverlay() *overlay {
	return &overlay{
		accounts: make(map[thor.Address]*trielog.Account),
		slots:    make(map[slotKey]*thor.Bytes32),
	}
}

func (o *overlay) copy() *overlay {
	cpy := &overlay{
		accounts: make(map[thor.Address]*trielog.Account, len(o.accounts)),
		slots:    make(map[slotKey]*thor.Bytes32, len(o.slots)),
	}
	for k, v := range o.accounts {
		cpy.accounts[k] = v
	}
	for k, v := range o.slots {
		cpy.slots[k] = v
	}
	return cpy
}

// SetAccount implements trielog.Writer.
func (o *overlay) SetAccount(addr thor.Address, acc *trielog.Account) {
	o.accounts[addr] = acc.Copy()
}

// SetStorage implements trielog.Writer.
func (o *overlay) SetStorage(addr thor.Address, key thor.Bytes32, val *thor.Bytes32) {
	if val != nil {
		cpy := *val
		val = &cpy
	}
	o.slots[slotKey{addr, key}] = val
}

// LayeredState is a world state made of an overlay on top of a pinned snapshot.
// It's immutable, and safe for concurrent use.
type LayeredState struct {
	blockID thor.Bytes32
	root    thor.Bytes32
	snap    *pinnedSnapshot
	overlay *overlay

	closed atomic.Bool
}

var _ WorldState = (*LayeredState)(nil)

func newLayeredState(blockID, root thor.Bytes32, snap *pinnedSnapshot, o *overlay) *LayeredState {
	return &LayeredState{
		blockID: blockID,
		root:    root,
		snap:    snap,
		overlay: o,
	}
}

// BlockID implements WorldState.
func (s *LayeredState) BlockID() thor.Bytes32 { return s.blockID }

// StateRoot implements WorldState.
func (s *LayeredState) StateRoot() thor.Bytes32 { return s.root }

// Account implements WorldState.
func (s *LayeredState) Account(addr thor.Address) (*trielog.Account, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if acc, ok := s.overlay.accounts[addr]; ok {
		return acc.Copy(), nil
	}
	return s.snap.Account(addr)
}

// Storage implements WorldState.
func (s *LayeredState) Storage(addr thor.Address, key thor.Bytes32) (*thor.Bytes32, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if val, ok := s.overlay.slots[slotKey{addr, key}]; ok {
		return copyBytes32(val), nil
	}
	return s.snap.Storage(addr, key)
}

// Updater implements WorldState.
func (s *LayeredState) Updater() *Updater {
	return newUpdater(s)
}

// Fork implements WorldState. The fork shares the overlay and pins the same snapshot.
func (s *LayeredState) Fork() (WorldState, error) {
	return s.derive(s.blockID, s.root, nil)
}

func (s *LayeredState) derive(blockID, root thor.Bytes32, apply func(w trielog.Writer)) (*LayeredState, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	// Close may race with the check above
	if !s.snap.retain() {
		return nil, ErrClosed
	}
	o := s.overlay
	if apply != nil {
		o = o.copy()
		apply(o)
	}
	return newLayeredState(blockID, root, s.snap, o), nil
}

// Close implements WorldState. It releases the pinned snapshot exactly once.
func (s *LayeredState) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	s.snap.release()
	return nil
}

// PersistedState is the world state over the flat store, positioned at the persisted head.
// It moves forward by Persist. It's owned by the archive, so Close is a no-op.
type PersistedState struct {
	storage *Storage
	manager *Manager

	lock    sync.RWMutex
	blockID thor.Bytes32
	root    thor.Bytes32
}

var _ WorldState = (*PersistedState)(nil)

// NewPersistedState creates the head world state.
func NewPersistedState(storage *Storage, manager *Manager) (*PersistedState, error) {
	root, blockID, err := storage.WorldHead()
	if err != nil {
		return nil, errors.Wrap(err, "load world head")
	}
	return &PersistedState{
		storage: storage,
		manager: manager,
		blockID: blockID,
		root:    root,
	}, nil
}

// BlockID implements WorldState.
func (s *PersistedState) BlockID() thor.Bytes32 {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.blockID
}

// StateRoot implements WorldState.
func (s *PersistedState) StateRoot() thor.Bytes32 {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.root
}

// Account implements WorldState.
func (s *PersistedState) Account(addr thor.Address) (*trielog.Account, error) {
	return s.storage.Account(addr)
}

// Storage implements WorldState.
func (s *PersistedState) Storage(addr thor.Address, key thor.Bytes32) (*thor.Bytes32, error) {
	return s.storage.Storage(addr, key)
}

// Updater implements WorldState.
func (s *PersistedState) Updater() *Updater {
	return newUpdater(s)
}

// Fork implements WorldState. The fork pins the current flat state.
func (s *PersistedState) Fork() (WorldState, error) {
	return s.derive(thor.Bytes32{}, thor.Bytes32{}, nil)
}

// derive pins the current flat state. Zero ids are taken from the pinned head.
func (s *PersistedState) derive(blockID, root thor.Bytes32, apply func(w trielog.Writer)) (*LayeredState, error) {
	p := pin(s.storage.Snapshot())
	if blockID.IsZero() {
		var err error
		if root, blockID, err = p.WorldHead(); err != nil {
			p.release()
			return nil, err
		}
	}
	o := newOverlay()
	if apply != nil {
		apply(o)
	}
	return newLayeredState(blockID, root, p, o), nil
}

// Persist writes the changes recorded by the updater, the trie log and the head of the
// given block in one transaction, then caches the layer of the block. On a commit failure
// nothing is written and the head stays.
func (s *PersistedState) Persist(u *Updater, header *block.Header) error {
	if u.base != s {
		return errors.New("updater not based on the persisted state")
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if !s.blockID.IsZero() && header.ParentID() != s.blockID {
		return errors.Errorf("block %v is not a child of the persisted head %v", header.ID(), s.blockID)
	}

	// priors must be read before the flat state is overwritten
	tlog, err := u.GenerateTrieLog(header.ID(), header.Number())
	if err != nil {
		return errors.WithMessage(err, "generate trie log")
	}
	blob, err := tlog.Encode()
	if err != nil {
		return errors.WithMessage(err, "encode trie log")
	}

	tx := s.storage.Begin()
	defer tx.Rollback()

	if err := tx.PutTrieLog(header.ID(), blob); err != nil {
		return err
	}
	if err := u.commitTo(tx); err != nil {
		return errors.WithMessage(err, "write flat state")
	}
	if err := tx.PutWorldHead(header.StateRoot(), header.ID()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.WithMessage(err, "commit block state")
	}
	s.blockID, s.root = header.ID(), header.StateRoot()

	// the log is on disk already, so this only caches the layer
	if err := s.manager.SaveTrieLog(u, header.StateRoot(), header); err != nil {
		return errors.WithMessage(err, "cache layer")
	}
	return nil
}

// Close implements WorldState.
func (s *PersistedState) Close() error {
	return nil
}

func copyBytes32(v *thor.Bytes32) *thor.Bytes32 {
	if v == nil {
		return nil
	}
	cpy := *v
	return &cpy
}
