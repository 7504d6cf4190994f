// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package trielog implements the per-block diff of world state.
//
// A TrieLog records, for one block, the prior and updated value of every account
// and storage slot the block touched. Once frozen it's immutable, and can be applied
// to a state in either direction.
package trielog

import (
	"bytes"
	"slices"

	"github.com/pkg/errors"
	"github.com/vechain/bonsai/thor"
)

// ErrFrozen is the panic value when mutating a frozen trie log.
var ErrFrozen = errors.New("trie log is frozen")

type slotKey struct {
	addr thor.Address
	key  thor.Bytes32
}

// TrieLog is the state diff of one block.
type TrieLog struct {
	blockID     thor.Bytes32
	blockNumber uint32
	accounts    map[thor.Address]*AccountChange
	storage     map[slotKey]*StorageChange
	frozen      bool
}

// New creates an empty, mutable trie log for the given block.
func New(blockID thor.Bytes32, blockNumber uint32) *TrieLog {
	return &TrieLog{
		blockID:     blockID,
		blockNumber: blockNumber,
		accounts:    make(map[thor.Address]*AccountChange),
		storage:     make(map[slotKey]*StorageChange),
	}
}

// BlockID returns the id of the block the log belongs to.
func (l *TrieLog) BlockID() thor.Bytes32 { return l.blockID }

// BlockNumber returns the number of the block the log belongs to.
func (l *TrieLog) BlockNumber() uint32 { return l.blockNumber }

// Frozen returns whether the log is frozen.
func (l *TrieLog) Frozen() bool { return l.frozen }

// Freeze makes the log immutable. It's idempotent.
func (l *TrieLog) Freeze() { l.frozen = true }

// IsEmpty returns whether the log records no change.
func (l *TrieLog) IsEmpty() bool {
	return len(l.accounts) == 0 && len(l.storage) == 0
}

// AddAccountChange records an account change.
// For a repeated change of the same account, the first prior and the last updated value are kept.
// It panics if the log is frozen.
func (l *TrieLog) AddAccountChange(addr thor.Address, prior, updated *Account) {
	if l.frozen {
		panic(ErrFrozen)
	}
	if c, ok := l.accounts[addr]; ok {
		c.Updated = updated.Copy()
		return
	}
	l.accounts[addr] = &AccountChange{
		Address: addr,
		Prior:   prior.Copy(),
		Updated: updated.Copy(),
	}
}

// AddStorageChange records a storage slot change, merged the same way as AddAccountChange.
// It panics if the log is frozen.
func (l *TrieLog) AddStorageChange(addr thor.Address, key thor.Bytes32, prior, updated *thor.Bytes32) {
	if l.frozen {
		panic(ErrFrozen)
	}
	sk := slotKey{addr, key}
	if c, ok := l.storage[sk]; ok {
		c.Updated = copyBytes32(updated)
		return
	}
	l.storage[sk] = &StorageChange{
		Address: addr,
		Key:     key,
		Prior:   copyBytes32(prior),
		Updated: copyBytes32(updated),
	}
}

// Account returns the recorded change of the given account.
func (l *TrieLog) Account(addr thor.Address) (AccountChange, bool) {
	c, ok := l.accounts[addr]
	if !ok {
		return AccountChange{}, false
	}
	return AccountChange{c.Address, c.Prior.Copy(), c.Updated.Copy()}, true
}

// Slot returns the recorded change of the given storage slot.
func (l *TrieLog) Slot(addr thor.Address, key thor.Bytes32) (StorageChange, bool) {
	c, ok := l.storage[slotKey{addr, key}]
	if !ok {
		return StorageChange{}, false
	}
	return StorageChange{c.Address, c.Key, copyBytes32(c.Prior), copyBytes32(c.Updated)}, true
}

// Accounts returns all account changes ordered by address.
func (l *TrieLog) Accounts() []AccountChange {
	changes := make([]AccountChange, 0, len(l.accounts))
	for _, c := range l.accounts {
		changes = append(changes, AccountChange{c.Address, c.Prior.Copy(), c.Updated.Copy()})
	}
	slices.SortFunc(changes, func(a, b AccountChange) int {
		return a.Address.Compare(b.Address)
	})
	return changes
}

// Storage returns all storage changes ordered by address then key.
func (l *TrieLog) Storage() []StorageChange {
	changes := make([]StorageChange, 0, len(l.storage))
	for _, c := range l.storage {
		changes = append(changes, StorageChange{c.Address, c.Key, copyBytes32(c.Prior), copyBytes32(c.Updated)})
	}
	slices.SortFunc(changes, func(a, b StorageChange) int {
		if n := a.Address.Compare(b.Address); n != 0 {
			return n
		}
		return bytes.Compare(a.Key[:], b.Key[:])
	})
	return changes
}

// Writer receives values when applying a trie log.
// A nil value deletes the entry.
type Writer interface {
	SetAccount(addr thor.Address, acc *Account)
	SetStorage(addr thor.Address, key thor.Bytes32, val *thor.Bytes32)
}

// Apply writes the log into w. Forward writes the updated values, which moves a
// state from the parent block to this block. Backward writes the prior values.
func (l *TrieLog) Apply(w Writer, forward bool) {
	for _, c := range l.Accounts() {
		if forward {
			w.SetAccount(c.Address, c.Updated)
		} else {
			w.SetAccount(c.Address, c.Prior)
		}
	}
	for _, c := range l.Storage() {
		if forward {
			w.SetStorage(c.Address, c.Key, c.Updated)
		} else {
			w.SetStorage(c.Address, c.Key, c.Prior)
		}
	}
}
