// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bonsai

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/vechain/bonsai/block"
	"github.com/vechain/bonsai/log"
	"github.com/vechain/bonsai/thor"
	"github.com/vechain/bonsai/trielog"
	"golang.org/x/sync/singleflight"
)

const (
	// RetainedLayers is the count of most recent heights whose layers are kept in cache.
	RetainedLayers = 512
	// DefaultMaxLayersToLoad is the default max depth from the chain head allowed to reconstruct.
	DefaultMaxLayersToLoad = 512
)

var logger = log.WithContext("pkg", "bonsai")

// Manager persists trie logs and caches the layers of recent blocks.
//
// Save and eviction are serialized. Lookups run concurrently with each other.
type Manager struct {
	storage         *Storage
	maxLayersToLoad uint32

	lock      sync.Mutex   // serializes save and eviction
	mapLock   sync.RWMutex // guards layers and maxHeight
	layers    map[thor.Bytes32]*CachedLayer
	maxHeight uint32

	loads singleflight.Group // dedups decoding of persisted logs
}

// NewManager creates a manager.
func NewManager(storage *Storage, maxLayersToLoad uint32) *Manager {
	return &Manager{
		storage:         storage,
		maxLayersToLoad: maxLayersToLoad,
		layers:          make(map[thor.Bytes32]*CachedLayer),
	}
}

// MaxLayersToLoad returns the max depth from the chain head allowed to reconstruct.
func (m *Manager) MaxLayersToLoad() uint32 {
	return m.maxLayersToLoad
}

// SaveTrieLog generates the trie log of the block from the updater, persists it unless
// already persisted (the persisted copy is then cached instead), caches the layer of the block, then evicts layers out of the retention window.
// On failure, nothing is cached and nothing is persisted.
func (m *Manager) SaveTrieLog(u *Updater, root thor.Bytes32, header *block.Header) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	id := header.ID()
	tlog, err := u.GenerateTrieLog(id, header.Number())
	if err != nil {
		return errors.WithMessage(err, "generate trie log")
	}

	state, err := u.materialize(id, root)
	if err != nil {
		return errors.WithMessage(err, "materialize state")
	}
	layer := &CachedLayer{
		BlockID: id,
		Height:  header.Number(),
		TrieLog: tlog,
		State:   state,
	}

	durable, exists, err := m.storage.TrieLog(id)
	if err != nil {
		state.Close()
		return err
	}

	if exists {
		// the layer serves the persisted copy
		if layer.TrieLog, err = trielog.Decode(durable); err != nil {
			state.Close()
			return errors.WithMessage(err, "decode persisted trie log")
		}
		logger.Debug("trie log already persisted", "id", id)
		metricTrieLogSaves().AddWithLabel(1, map[string]string{"result": "skipped"})
		m.closeLayer(m.putLayer(layer))
	} else {
		if err := m.persist(layer); err != nil {
			state.Close()
			return err
		}
		metricTrieLogSaves().AddWithLabel(1, map[string]string{"result": "persisted"})
	}

	m.scrub(header.Number())
	return nil
}

// persist writes the trie log and caches the layer. The layer is unstaged if commit fails.
func (m *Manager) persist(layer *CachedLayer) error {
	tx := m.storage.Begin()
	defer tx.Rollback()

	data, err := layer.TrieLog.Encode()
	if err != nil {
		return errors.WithMessage(err, "encode trie log")
	}
	if err := tx.PutTrieLog(layer.BlockID, data); err != nil {
		return err
	}

	prev := m.putLayer(layer)
	if err := tx.Commit(); err != nil {
		m.restoreLayer(layer, prev)
		return errors.WithMessage(err, "commit trie log")
	}
	m.closeLayer(prev)
	return nil
}

// putLayer caches the layer, and returns the replaced one.
func (m *Manager) putLayer(layer *CachedLayer) *CachedLayer {
	m.mapLock.Lock()
	defer m.mapLock.Unlock()

	prev := m.layers[layer.BlockID]
	m.layers[layer.BlockID] = layer
	metricCachedLayers().Set(int64(len(m.layers)))
	return prev
}

// restoreLayer undoes putLayer.
func (m *Manager) restoreLayer(layer, prev *CachedLayer) {
	m.mapLock.Lock()
	defer m.mapLock.Unlock()

	if prev != nil {
		m.layers[layer.BlockID] = prev
	} else {
		delete(m.layers, layer.BlockID)
	}
	metricCachedLayers().Set(int64(len(m.layers)))
}

func (m *Manager) closeLayer(layer *CachedLayer) {
	if layer == nil {
		return
	}
	if err := layer.State.Close(); err != nil {
		logger.Warn("failed to close cached layer", "id", layer.BlockID, "height", layer.Height, "err", err)
	}
}

// AddCachedLayer caches the layer of a block, replacing the existing one.
// Layers below the retention window of the highest cached height are rejected.
// The manager takes the ownership of state only if true is returned.
func (m *Manager) AddCachedLayer(header *block.Header, tlog *trielog.TrieLog, state WorldState) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.mapLock.RLock()
	maxHeight := m.maxHeight
	m.mapLock.RUnlock()

	if maxHeight >= RetainedLayers && header.Number() < maxHeight-RetainedLayers {
		return false
	}

	m.closeLayer(m.putLayer(&CachedLayer{
		BlockID: header.ID(),
		Height:  header.Number(),
		TrieLog: tlog,
		State:   state,
	}))
	return true
}

// ScrubCachedLayers evicts every layer whose height is below height - RetainedLayers,
// and closes its state. Close failures are logged.
func (m *Manager) ScrubCachedLayers(height uint32) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.scrub(height)
}

func (m *Manager) scrub(height uint32) {
	m.mapLock.Lock()
	if height > m.maxHeight {
		m.maxHeight = height
	}
	if height < RetainedLayers {
		m.mapLock.Unlock()
		return
	}
	waterline := height - RetainedLayers

	var evicted []*CachedLayer
	for id, layer := range m.layers {
		if layer.Height < waterline {
			delete(m.layers, id)
			evicted = append(evicted, layer)
		}
	}
	metricCachedLayers().Set(int64(len(m.layers)))
	m.mapLock.Unlock()

	for _, layer := range evicted {
		m.closeLayer(layer)
	}
	if len(evicted) > 0 {
		logger.Trace("evicted cached layers", "count", len(evicted), "waterline", waterline)
		metricEvictedLayers().Add(int64(len(evicted)))
	}
}

// CachedWorldState returns the cached state of the block.
// The state is owned by the cache and must not be closed by the caller.
func (m *Manager) CachedWorldState(blockID thor.Bytes32) (WorldState, bool) {
	if layer, ok := m.cachedLayer(blockID); ok {
		return layer.State, true
	}
	return nil, false
}

func (m *Manager) cachedLayer(blockID thor.Bytes32) (*CachedLayer, bool) {
	m.mapLock.RLock()
	defer m.mapLock.RUnlock()

	layer, ok := m.layers[blockID]
	return layer, ok
}

// TrieLog returns the trie log of the block, from cache or else the persisted store.
func (m *Manager) TrieLog(blockID thor.Bytes32) (*trielog.TrieLog, bool, error) {
	if layer, ok := m.cachedLayer(blockID); ok {
		return layer.TrieLog, true, nil
	}

	v, err, _ := m.loads.Do(string(blockID[:]), func() (any, error) {
		blob, ok, err := m.storage.TrieLog(blockID)
		if err != nil || !ok {
			return nil, err
		}
		tlog, err := trielog.Decode(blob)
		if err != nil {
			return nil, errors.WithMessagef(err, "trie log %v", blockID)
		}
		return tlog, nil
	})
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		return nil, false, nil
	}
	return v.(*trielog.TrieLog), true, nil
}

// Len returns the count of cached layers.
func (m *Manager) Len() int {
	m.mapLock.RLock()
	defer m.mapLock.RUnlock()

	return len(m.layers)
}

// Close evicts all cached layers.
func (m *Manager) Close() {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.mapLock.Lock()
	layers := m.layers
	m.layers = make(map[thor.Bytes32]*CachedLayer)
	metricCachedLayers().Set(0)
	m.mapLock.Unlock()

	for _, layer := range layers {
		m.closeLayer(layer)
	}
}
