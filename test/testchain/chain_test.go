// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package testchain

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vechain/bonsai/bonsai"
	"github.com/vechain/bonsai/thor"
	"github.com/vechain/bonsai/trielog"
)

func TestMintBlocks(t *testing.T) {
	c, err := NewIntegrationTestChain(bonsai.Options{})
	require.NoError(t, err)

	addr := thor.BytesToAddress([]byte("acc"))
	headers, err := c.MintBlocks(3, func(u *bonsai.Updater, num uint32) {
		u.SetAccount(addr, &trielog.Account{Balance: uint256.NewInt(uint64(num))})
	})
	require.NoError(t, err)
	require.Len(t, headers, 3)

	best := c.Repo().BestBlockHeader()
	assert.Equal(t, headers[2].ID(), best.ID())
	assert.Equal(t, best.ID(), c.Archive().Persisted().BlockID())

	acc, err := c.Archive().Persisted().Account(addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), acc.Balance.Uint64())
}

func TestMintSideBlock(t *testing.T) {
	c, err := NewIntegrationTestChain(bonsai.Options{})
	require.NoError(t, err)

	addr := thor.BytesToAddress([]byte("acc"))
	headers, err := c.MintBlocks(2, nil)
	require.NoError(t, err)

	side, err := c.MintSideBlock(headers[0], func(u *bonsai.Updater) {
		u.SetAccount(addr, &trielog.Account{Balance: uint256.NewInt(7)})
	})
	require.NoError(t, err)
	assert.Equal(t, headers[1].Number(), side.Number())
	assert.NotEqual(t, headers[1].ID(), side.ID())

	// persisted head unchanged
	assert.Equal(t, headers[1].ID(), c.Archive().Persisted().BlockID())

	state, ok, err := c.Archive().Mutable(side, side.ID(), false)
	require.NoError(t, err)
	require.True(t, ok)
	defer state.Close()

	acc, err := state.Account(addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), acc.Balance.Uint64())
}
