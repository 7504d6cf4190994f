// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package trielog

import (
	"github.com/holiman/uint256"
	"github.com/vechain/bonsai/thor"
)

// Account is the flat representation of an account in world state.
type Account struct {
	Nonce       uint64
	Balance     *uint256.Int
	CodeHash    thor.Bytes32
	StorageRoot thor.Bytes32
}

// Copy returns a deep copy, with a nil balance normalized to zero.
func (a *Account) Copy() *Account {
	if a == nil {
		return nil
	}
	cpy := *a
	if a.Balance == nil {
		cpy.Balance = new(uint256.Int)
	} else {
		cpy.Balance = new(uint256.Int).Set(a.Balance)
	}
	return &cpy
}

// Equal returns whether two accounts hold the same values.
// Two nil accounts are equal.
func (a *Account) Equal(other *Account) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.Nonce == other.Nonce &&
		a.CodeHash == other.CodeHash &&
		a.StorageRoot == other.StorageRoot &&
		balanceOf(a).Eq(balanceOf(other))
}

func balanceOf(a *Account) *uint256.Int {
	if a.Balance == nil {
		return new(uint256.Int)
	}
	return a.Balance
}

// AccountChange records the value of an account before and after a block.
// A nil value means the account is absent.
type AccountChange struct {
	Address thor.Address
	Prior   *Account `rlp:"nil"`
	Updated *Account `rlp:"nil"`
}

// StorageChange records the value of a storage slot before and after a block.
// A nil value means the slot is absent.
type StorageChange struct {
	Address thor.Address
	Key     thor.Bytes32
	Prior   *thor.Bytes32 `rlp:"nil"`
	Updated *thor.Bytes32 `rlp:"nil"`
}

func copyBytes32(v *thor.Bytes32) *thor.Bytes32 {
	if v == nil {
		return nil
	}
	cpy := *v
	return &cpy
}
