// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package chain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vechain/bonsai/block"
	. "github.com/vechain/bonsai/chain"
	"github.com/vechain/bonsai/muxdb"
	"github.com/vechain/bonsai/thor"
)

func newGenesis() *block.Header {
	return block.NewHeader(block.GenesisParentID(), 0, thor.Bytes32{})
}

func newTestRepo(t *testing.T) (*muxdb.MuxDB, *Repository) {
	db := muxdb.NewMem()
	repo, err := NewRepository(db, newGenesis())
	require.NoError(t, err)
	return db, repo
}

// extend appends n headers on top of parent and returns them.
func extend(t *testing.T, repo *Repository, parent *block.Header, n int, ts uint64, asBest bool) []*block.Header {
	var headers []*block.Header
	for i := 0; i < n; i++ {
		h := block.NewHeader(parent.ID(), ts+uint64(i), thor.Bytes32{byte(i)})
		require.NoError(t, repo.AddHeader(h, asBest))
		headers = append(headers, h)
		parent = h
	}
	return headers
}

func TestRepository(t *testing.T) {
	db, repo := newTestRepo(t)
	g := repo.GenesisBlockHeader()
	assert.Equal(t, g.ID(), repo.BestBlockHeader().ID())

	b1 := block.NewHeader(g.ID(), 10, thor.Bytes32{1})
	assert.NoError(t, repo.AddHeader(b1, false))
	// best block not set, so still 0
	assert.Equal(t, uint32(0), repo.BestBlockHeader().Number())

	assert.NoError(t, repo.AddHeader(b1, true))
	assert.Equal(t, b1.ID(), repo.BestBlockHeader().ID())

	got, err := repo.GetBlockHeader(b1.ID())
	assert.NoError(t, err)
	assert.Equal(t, b1.StateRoot(), got.StateRoot())

	id, err := repo.CanonicalID(1)
	assert.NoError(t, err)
	assert.Equal(t, b1.ID(), id)

	// reopen
	repo2, err := NewRepository(db, g)
	require.NoError(t, err)
	assert.Equal(t, b1.ID(), repo2.BestBlockHeader().ID())

	_, err = NewRepository(db, block.NewHeader(block.GenesisParentID(), 1, thor.Bytes32{}))
	assert.EqualError(t, err, "genesis mismatch")
}

func TestAddHeaderParentMissing(t *testing.T) {
	_, repo := newTestRepo(t)

	orphan := block.NewHeader(thor.BytesToBytes32([]byte{0, 0, 0, 5, 1}), 1, thor.Bytes32{})
	assert.EqualError(t, repo.AddHeader(orphan, true), "parent missing")

	_, err := repo.GetBlockHeader(orphan.ID())
	assert.True(t, repo.IsNotFound(err))
}

func TestReorg(t *testing.T) {
	_, repo := newTestRepo(t)
	g := repo.GenesisBlockHeader()

	a := extend(t, repo, g, 5, 100, true)
	assert.Equal(t, a[4].ID(), repo.BestBlockHeader().ID())

	// fork at a[1], shorter branch becomes best
	b := extend(t, repo, a[1], 2, 200, false)
	assert.Equal(t, a[4].ID(), repo.BestBlockHeader().ID())
	require.NoError(t, repo.AddHeader(b[1], true))

	assert.Equal(t, b[1].ID(), repo.BestBlockHeader().ID())
	for num, want := range []thor.Bytes32{g.ID(), a[0].ID(), a[1].ID(), b[0].ID(), b[1].ID()} {
		id, err := repo.CanonicalID(uint32(num))
		assert.NoError(t, err)
		assert.Equal(t, want, id, "number %d", num)
	}
	_, err := repo.CanonicalID(5)
	assert.True(t, repo.IsNotFound(err))
}

func TestAncestorID(t *testing.T) {
	_, repo := newTestRepo(t)
	g := repo.GenesisBlockHeader()

	a := extend(t, repo, g, 4, 100, true)
	b := extend(t, repo, a[0], 3, 200, false)

	// canonical
	id, err := repo.AncestorID(a[3].ID(), 1)
	assert.NoError(t, err)
	assert.Equal(t, a[0].ID(), id)

	// side branch
	id, err = repo.AncestorID(b[2].ID(), 2)
	assert.NoError(t, err)
	assert.Equal(t, b[0].ID(), id)

	id, err = repo.AncestorID(b[2].ID(), 0)
	assert.NoError(t, err)
	assert.Equal(t, g.ID(), id)

	_, err = repo.AncestorID(a[0].ID(), 3)
	assert.True(t, repo.IsNotFound(err))
}

func TestOpenRepository(t *testing.T) {
	db := muxdb.NewMem()
	_, err := OpenRepository(db)
	assert.EqualError(t, err, "no chain in database")

	repo, err := NewRepository(db, newGenesis())
	require.NoError(t, err)
	headers := extend(t, repo, repo.GenesisBlockHeader(), 3, 10, true)

	reopened, err := OpenRepository(db)
	require.NoError(t, err)
	assert.Equal(t, newGenesis().ID(), reopened.GenesisBlockHeader().ID())
	assert.Equal(t, headers[2].ID(), reopened.BestBlockHeader().ID())
}
