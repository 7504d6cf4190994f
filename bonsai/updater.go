// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bonsai

import (
	"github.com/vechain/bonsai/stackedmap"
	"github.com/vechain/bonsai/thor"
	"github.com/vechain/bonsai/trielog"
)

type baseState interface {
	reader
	deriver
}

type changeKey struct {
	addr thor.Address
	key  thor.Bytes32
	slot bool
}

type changeValue struct {
	account *trielog.Account
	slot    *thor.Bytes32
}

// Updater records account and storage changes on top of a world state.
// Deleting an account doesn't clear its storage, slots must be cleared explicitly.
// It's not thread-safe.
type Updater struct {
	base baseState
	sm   *stackedmap.StackedMap[changeKey, changeValue]
	log  *trielog.TrieLog // memoized by GenerateTrieLog
}

func newUpdater(base baseState) *Updater {
	u := &Updater{base: base}
	u.sm = stackedmap.New(u.read)
	return u
}

func (u *Updater) read(k changeKey) (changeValue, bool, error) {
	if k.slot {
		v, err := u.base.Storage(k.addr, k.key)
		if err != nil {
			return changeValue{}, false, err
		}
		return changeValue{slot: v}, true, nil
	}
	acc, err := u.base.Account(k.addr)
	if err != nil {
		return changeValue{}, false, err
	}
	return changeValue{account: acc}, true, nil
}

// Account returns the account, or nil if absent.
func (u *Updater) Account(addr thor.Address) (*trielog.Account, error) {
	v, _, err := u.sm.Get(changeKey{addr: addr})
	if err != nil {
		return nil, err
	}
	return v.account.Copy(), nil
}

// SetAccount sets the account. A nil account deletes it.
func (u *Updater) SetAccount(addr thor.Address, acc *trielog.Account) {
	u.log = nil
	u.sm.Put(changeKey{addr: addr}, changeValue{account: acc.Copy()})
}

// Storage returns the storage slot value, or nil if absent.
func (u *Updater) Storage(addr thor.Address, key thor.Bytes32) (*thor.Bytes32, error) {
	v, _, err := u.sm.Get(changeKey{addr, key, true})
	if err != nil {
		return nil, err
	}
	return copyBytes32(v.slot), nil
}

// SetStorage sets the storage slot value. A nil value deletes it.
func (u *Updater) SetStorage(addr thor.Address, key thor.Bytes32, val *thor.Bytes32) {
	u.log = nil
	u.sm.Put(changeKey{addr, key, true}, changeValue{slot: copyBytes32(val)})
}

// Checkpoint returns a revision to revert to.
func (u *Updater) Checkpoint() int {
	return u.sm.Push()
}

// RevertTo reverts all changes made since the given checkpoint.
func (u *Updater) RevertTo(revision int) {
	u.log = nil
	u.sm.PopTo(revision)
}

// changes returns the final value of every touched entry.
func (u *Updater) changes() map[changeKey]changeValue {
	changes := make(map[changeKey]changeValue)
	u.sm.Journal(func(k changeKey, v changeValue) bool {
		changes[k] = v
		return true
	})
	return changes
}

// GenerateTrieLog diffs the changes against the base state, and returns the frozen trie log.
// Entries touched without an actual change are omitted.
func (u *Updater) GenerateTrieLog(blockID thor.Bytes32, blockNumber uint32) (*trielog.TrieLog, error) {
	if u.log != nil && u.log.BlockID() == blockID && u.log.BlockNumber() == blockNumber {
		return u.log, nil
	}

	log := trielog.New(blockID, blockNumber)
	for k, v := range u.changes() {
		prior, _, err := u.read(k)
		if err != nil {
			return nil, err
		}
		if k.slot {
			if !equalBytes32(prior.slot, v.slot) {
				log.AddStorageChange(k.addr, k.key, prior.slot, v.slot)
			}
		} else if !prior.account.Equal(v.account) {
			log.AddAccountChange(k.addr, prior.account, v.account)
		}
	}
	log.Freeze()
	u.log = log
	return log, nil
}

// commitTo writes the changes into the storage transaction.
func (u *Updater) commitTo(tx *StorageTx) error {
	for k, v := range u.changes() {
		if k.slot {
			if err := tx.PutStorage(k.addr, k.key, v.slot); err != nil {
				return err
			}
		} else if err := tx.PutAccount(k.addr, v.account); err != nil {
			return err
		}
	}
	return nil
}

// materialize derives the state of the given block, which is the base state with the changes applied.
func (u *Updater) materialize(blockID, root thor.Bytes32) (*LayeredState, error) {
	changes := u.changes()
	return u.base.derive(blockID, root, func(w trielog.Writer) {
		for k, v := range changes {
			if k.slot {
				w.SetStorage(k.addr, k.key, v.slot)
			} else {
				w.SetAccount(k.addr, v.account)
			}
		}
	})
}

func equalBytes32(a, b *thor.Bytes32) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
