// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package accounts

import (
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/vechain/bonsai/thor"
)

// Account for marshal account
type Account struct {
	Balance     *math.HexOrDecimal256 `json:"balance"`
	Nonce       uint64                `json:"nonce"`
	CodeHash    thor.Bytes32          `json:"codeHash"`
	StorageRoot thor.Bytes32          `json:"storageRoot"`
}

// Storage for marshal storage slot
type Storage struct {
	Value thor.Bytes32 `json:"value"`
}
