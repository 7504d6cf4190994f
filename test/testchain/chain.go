// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package testchain

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/vechain/bonsai/block"
	"github.com/vechain/bonsai/bonsai"
	"github.com/vechain/bonsai/chain"
	"github.com/vechain/bonsai/muxdb"
	"github.com/vechain/bonsai/thor"
)

// Chain is an in-memory chain with its world state archive, for tests.
type Chain struct {
	db      *muxdb.MuxDB
	repo    *chain.Repository
	archive *bonsai.Archive
}

// NewIntegrationTestChain creates a chain with a persisted, empty genesis state.
func NewIntegrationTestChain(opts bonsai.Options) (*Chain, error) {
	db := muxdb.NewMem()

	genesis := block.NewHeader(block.GenesisParentID(), 0, stateRoot(block.GenesisParentID(), 0))
	repo, err := chain.NewRepository(db, genesis)
	if err != nil {
		return nil, err
	}
	archive, err := bonsai.Open(db.NewStore(""), repo, opts)
	if err != nil {
		return nil, err
	}
	if err := archive.Persisted().Persist(archive.Persisted().Updater(), genesis); err != nil {
		return nil, errors.Wrap(err, "persist genesis")
	}
	return &Chain{db: db, repo: repo, archive: archive}, nil
}

// Database returns the underlying database.
func (c *Chain) Database() *muxdb.MuxDB { return c.db }

// Repo returns the block header repository.
func (c *Chain) Repo() *chain.Repository { return c.repo }

// Archive returns the world state archive.
func (c *Chain) Archive() *bonsai.Archive { return c.archive }

// MintBlock builds a block on the best block, persists the changes made by fn
// and sets the block as the new best.
func (c *Chain) MintBlock(fn func(u *bonsai.Updater)) (*block.Header, error) {
	persisted := c.archive.Persisted()
	header := nextHeader(c.repo.BestBlockHeader())

	u := persisted.Updater()
	if fn != nil {
		fn(u)
	}
	if err := persisted.Persist(u, header); err != nil {
		return nil, err
	}
	if err := c.repo.AddHeader(header, true); err != nil {
		return nil, err
	}
	return header, nil
}

// MintBlocks mints n blocks, calling fn with the updater and number of each.
func (c *Chain) MintBlocks(n int, fn func(u *bonsai.Updater, num uint32)) ([]*block.Header, error) {
	headers := make([]*block.Header, 0, n)
	for range n {
		num := c.repo.BestBlockHeader().Number() + 1
		h, err := c.MintBlock(func(u *bonsai.Updater) {
			if fn != nil {
				fn(u, num)
			}
		})
		if err != nil {
			return nil, err
		}
		headers = append(headers, h)
	}
	return headers, nil
}

// MintSideBlock builds a block on parent without moving the persisted head. Only its
// trie log is saved, and its state is cached as a layer.
func (c *Chain) MintSideBlock(parent *block.Header, fn func(u *bonsai.Updater)) (*block.Header, error) {
	state, ok, err := c.archive.Mutable(parent, parent.ID(), false)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Errorf("state of %v not available", parent.ID())
	}
	defer state.Close()

	header := nextHeader(parent)
	u := state.Updater()
	if fn != nil {
		fn(u)
	}
	if err := c.archive.Manager().SaveTrieLog(u, header.StateRoot(), header); err != nil {
		return nil, err
	}
	if err := c.repo.AddHeader(header, false); err != nil {
		return nil, err
	}
	return header, nil
}

func nextHeader(parent *block.Header) *block.Header {
	ts := parent.Timestamp() + 10
	return block.NewHeader(parent.ID(), ts, stateRoot(parent.ID(), ts))
}

// stateRoot fakes a state root, since roots come from block execution.
func stateRoot(parentID thor.Bytes32, ts uint64) thor.Bytes32 {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], ts)
	return thor.Blake2b(parentID[:], b[:])
}
