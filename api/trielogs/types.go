// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package trielogs

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/vechain/bonsai/thor"
	"github.com/vechain/bonsai/trielog"
)

// Account for marshal account
type Account struct {
	Nonce       uint64                `json:"nonce"`
	Balance     *math.HexOrDecimal256 `json:"balance"`
	CodeHash    thor.Bytes32          `json:"codeHash"`
	StorageRoot thor.Bytes32          `json:"storageRoot"`
}

type AccountChange struct {
	Address thor.Address `json:"address"`
	Prior   *Account     `json:"prior"`
	Updated *Account     `json:"updated"`
}

type StorageChange struct {
	Address thor.Address  `json:"address"`
	Key     thor.Bytes32  `json:"key"`
	Prior   *thor.Bytes32 `json:"prior"`
	Updated *thor.Bytes32 `json:"updated"`
}

// TrieLog for marshal trie log. A nil prior or updated value means absent.
type TrieLog struct {
	BlockID     thor.Bytes32    `json:"blockID"`
	BlockNumber uint32          `json:"blockNumber"`
	Accounts    []AccountChange `json:"accounts"`
	Storage     []StorageChange `json:"storage"`
}

// ConvertAccount converts an account into its JSON form. It returns nil for an absent account.
func ConvertAccount(acc *trielog.Account) *Account {
	if acc == nil {
		return nil
	}
	balance := new(big.Int)
	if acc.Balance != nil {
		balance = acc.Balance.ToBig()
	}
	return &Account{
		Nonce:       acc.Nonce,
		Balance:     (*math.HexOrDecimal256)(balance),
		CodeHash:    acc.CodeHash,
		StorageRoot: acc.StorageRoot,
	}
}

// ConvertTrieLog converts a trie log into its JSON form.
func ConvertTrieLog(l *trielog.TrieLog) *TrieLog {
	accounts := l.Accounts()
	storage := l.Storage()

	tl := &TrieLog{
		BlockID:     l.BlockID(),
		BlockNumber: l.BlockNumber(),
		Accounts:    make([]AccountChange, 0, len(accounts)),
		Storage:     make([]StorageChange, 0, len(storage)),
	}
	for _, c := range accounts {
		tl.Accounts = append(tl.Accounts, AccountChange{
			Address: c.Address,
			Prior:   ConvertAccount(c.Prior),
			Updated: ConvertAccount(c.Updated),
		})
	}
	for _, c := range storage {
		tl.Storage = append(tl.Storage, StorageChange{
			Address: c.Address,
			Key:     c.Key,
			Prior:   c.Prior,
			Updated: c.Updated,
		})
	}
	return tl
}
