// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bonsai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vechain/bonsai/thor"
)

func TestUpdaterCheckpoint(t *testing.T) {
	_, _, persisted := newTestManager(DefaultMaxLayersToLoad)
	u := persisted.Updater()

	u.SetAccount(alice, account(1))
	cp := u.Checkpoint()
	u.SetAccount(alice, account(2))
	u.SetStorage(bob, slot1, value(1))

	assert.Equal(t, uint64(0), balanceOf(t, persisted, alice), "base untouched")
	acc, err := u.Account(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), acc.Balance.Uint64())

	u.RevertTo(cp)
	acc, err = u.Account(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), acc.Balance.Uint64())
	v, err := u.Storage(bob, slot1)
	require.NoError(t, err)
	assert.Nil(t, v)

	tlog, err := u.GenerateTrieLog(thor.Bytes32{1}, 1)
	require.NoError(t, err)
	assert.Len(t, tlog.Accounts(), 1)
	assert.Empty(t, tlog.Storage())
	assert.True(t, tlog.Frozen())
}

func TestUpdaterOmitsNoopChanges(t *testing.T) {
	_, _, persisted := newTestManager(DefaultMaxLayersToLoad)
	u := persisted.Updater()

	// absent stays absent
	u.SetAccount(alice, nil)
	u.SetStorage(bob, slot1, value(1))
	u.SetStorage(bob, slot1, nil)

	tlog, err := u.GenerateTrieLog(thor.Bytes32{1}, 1)
	require.NoError(t, err)
	assert.True(t, tlog.IsEmpty())
}

func TestUpdaterMemoizesTrieLog(t *testing.T) {
	_, _, persisted := newTestManager(DefaultMaxLayersToLoad)
	u := persisted.Updater()
	u.SetAccount(alice, account(1))

	a, err := u.GenerateTrieLog(thor.Bytes32{1}, 1)
	require.NoError(t, err)
	b, err := u.GenerateTrieLog(thor.Bytes32{1}, 1)
	require.NoError(t, err)
	assert.Same(t, a, b)

	u.SetAccount(alice, account(2))
	c, err := u.GenerateTrieLog(thor.Bytes32{1}, 1)
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	ch, _ := c.Account(alice)
	assert.Equal(t, uint64(2), ch.Updated.Balance.Uint64())
}
