// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bonsai

import (
	"github.com/pkg/errors"
	"github.com/vechain/bonsai/block"
	"github.com/vechain/bonsai/thor"
	"github.com/vechain/bonsai/trielog"
)

// Blockchain is the block index the archive resolves blocks with.
type Blockchain interface {
	GetBlockHeader(id thor.Bytes32) (*block.Header, error)
	BestBlockHeader() *block.Header
	IsNotFound(err error) bool
}

// errNoPath is returned internally when reconstruction can't be done within bounds.
var errNoPath = errors.New("no replay path")

// Archive resolves the world state at an arbitrary block.
type Archive struct {
	storage   *Storage
	chain     Blockchain
	manager   *Manager
	persisted *PersistedState
}

// NewArchive creates an archive.
func NewArchive(storage *Storage, chain Blockchain, manager *Manager) (*Archive, error) {
	persisted, err := NewPersistedState(storage, manager)
	if err != nil {
		return nil, err
	}
	return &Archive{
		storage:   storage,
		chain:     chain,
		manager:   manager,
		persisted: persisted,
	}, nil
}

// Persisted returns the head world state.
func (a *Archive) Persisted() *PersistedState {
	return a.persisted
}

// Manager returns the trie log manager.
func (a *Archive) Manager() *Manager {
	return a.manager
}

func resolved(source string) {
	metricResolutions().AddWithLabel(1, map[string]string{"source": source})
}

// Mutable returns the world state at the given block, which must be closed by the caller.
// The header is looked up by blockID if nil.
//
// States deeper than MaxLayersToLoad from the chain head are not found. If shouldPersist is
// set, the persisted head state itself is returned for the head block, and a reconstructed
// state is cached as a new layer.
func (a *Archive) Mutable(header *block.Header, blockID thor.Bytes32, shouldPersist bool) (WorldState, bool, error) {
	if state, ok := a.manager.CachedWorldState(blockID); ok {
		fork, err := state.Fork()
		if err == nil {
			resolved("cache")
			return fork, true, nil
		}
		// evicted meanwhile
		if err != ErrClosed {
			return nil, false, err
		}
	}

	if header == nil {
		h, err := a.chain.GetBlockHeader(blockID)
		if err != nil {
			if a.chain.IsNotFound(err) {
				resolved("missing")
				return nil, false, nil
			}
			return nil, false, err
		}
		header = h
	}

	best := a.chain.BestBlockHeader()
	depth := int64(best.Number()) - int64(header.Number())
	if depth > int64(a.manager.MaxLayersToLoad()) {
		logger.Debug("state too deep to load", "id", blockID, "depth", depth, "max", a.manager.MaxLayersToLoad())
		resolved("too_deep")
		return nil, false, nil
	}

	if blockID == a.persisted.BlockID() {
		if shouldPersist {
			resolved("head")
			return a.persisted, true, nil
		}
		fork, err := a.persisted.derive(thor.Bytes32{}, thor.Bytes32{}, nil)
		if err != nil {
			return nil, false, err
		}
		// the head may move after the check
		if fork.BlockID() == blockID {
			resolved("head")
			return fork, true, nil
		}
		fork.Close()
	}

	state, err := a.replay(header)
	if err != nil {
		if err == errNoPath {
			resolved("missing")
			return nil, false, nil
		}
		return nil, false, err
	}
	resolved("replay")

	if shouldPersist {
		a.promote(header, state)
	}
	return state, true, nil
}

// promote caches a fork of the reconstructed state as the layer of the block.
func (a *Archive) promote(header *block.Header, state *LayeredState) {
	tlog, ok, err := a.manager.TrieLog(header.ID())
	if err != nil || !ok {
		logger.Debug("skip caching reconstructed state", "id", header.ID(), "err", err)
		return
	}
	cached, err := state.Fork()
	if err != nil {
		return
	}
	if !a.manager.AddCachedLayer(header, tlog, cached) {
		cached.Close()
	}
}

// replay reconstructs the state of target from the nearest anchor.
func (a *Archive) replay(target *block.Header) (*LayeredState, error) {
	// the plan is made against the head of the pinned flat state
	snap := pin(a.storage.Snapshot())
	defer snap.release()

	var (
		limit    = a.manager.MaxLayersToLoad()
		targetID = target.ID()
		forward  []thor.Bytes32 // from target back to the anchor, exclusive
		anchor   deriver
	)

	_, headID, err := snap.WorldHead()
	if err != nil {
		return nil, err
	}

	// look for a cached ancestor or the persisted head
	cur := target
	for {
		id := cur.ID()
		if id == headID {
			break
		}
		if layer, ok := a.manager.cachedLayer(id); ok {
			if d, ok := layer.State.(deriver); ok {
				anchor = d
				break
			}
		}
		if uint32(len(forward)) == limit || cur.Number() == 0 {
			forward = nil
			break
		}
		forward = append(forward, id)
		if cur, err = a.header(cur.ParentID()); err != nil {
			return nil, err
		}
	}

	var backward []thor.Bytes32 // from the persisted head back to the common ancestor, exclusive
	if anchor == nil && cur.ID() != headID {
		if backward, forward, err = a.path(headID, target, limit); err != nil {
			return nil, err
		}
	}

	var (
		backLogs = make([]*trielog.TrieLog, len(backward))
		fwdLogs  = make([]*trielog.TrieLog, len(forward))
	)
	for i, id := range backward {
		if backLogs[i], err = a.trieLog(id); err != nil {
			return nil, err
		}
	}
	for i, id := range forward {
		if fwdLogs[i], err = a.trieLog(id); err != nil {
			return nil, err
		}
	}
	metricReplayDepth().Observe(int64(len(backLogs) + len(fwdLogs)))

	apply := func(w trielog.Writer) {
		for _, l := range backLogs {
			l.Apply(w, false)
		}
		for i := len(fwdLogs) - 1; i >= 0; i-- {
			fwdLogs[i].Apply(w, true)
		}
	}

	if anchor != nil {
		state, err := anchor.derive(targetID, target.StateRoot(), apply)
		if err == ErrClosed {
			// the anchor is evicted meanwhile
			return nil, errNoPath
		}
		return state, err
	}

	o := newOverlay()
	apply(o)
	snap.retain() // cannot fail while the deferred release is pending
	return newLayeredState(targetID, target.StateRoot(), snap, o), nil
}

// path finds the blocks to roll back from head, and to roll forward to target,
// through their common ancestor. Each direction is bounded by limit.
func (a *Archive) path(headID thor.Bytes32, target *block.Header, limit uint32) (backward, forward []thor.Bytes32, err error) {
	if headID.IsZero() {
		return nil, nil, errNoPath
	}
	head, err := a.header(headID)
	if err != nil {
		return nil, nil, err
	}

	h, t := head, target
	for h.ID() != t.ID() {
		if h.Number() >= t.Number() {
			if h.Number() == 0 {
				return nil, nil, errNoPath
			}
			backward = append(backward, h.ID())
			h, err = a.header(h.ParentID())
		} else {
			forward = append(forward, t.ID())
			t, err = a.header(t.ParentID())
		}
		if err != nil {
			return nil, nil, err
		}
		if uint32(len(backward)) > limit || uint32(len(forward)) > limit {
			return nil, nil, errNoPath
		}
	}
	return backward, forward, nil
}

func (a *Archive) header(id thor.Bytes32) (*block.Header, error) {
	h, err := a.chain.GetBlockHeader(id)
	if err != nil {
		if a.chain.IsNotFound(err) {
			return nil, errNoPath
		}
		return nil, err
	}
	return h, nil
}

func (a *Archive) trieLog(id thor.Bytes32) (*trielog.TrieLog, error) {
	tlog, ok, err := a.manager.TrieLog(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		logger.Debug("missing trie log", "id", id)
		return nil, errNoPath
	}
	return tlog, nil
}
