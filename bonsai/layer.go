// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bonsai

import (
	"github.com/vechain/bonsai/thor"
	"github.com/vechain/bonsai/trielog"
)

// CachedLayer pairs the trie log of a block with the materialized state at the block.
// The state is owned by the layer cache and closed at eviction.
type CachedLayer struct {
	BlockID thor.Bytes32
	Height  uint32
	TrieLog *trielog.TrieLog
	State   WorldState
}
