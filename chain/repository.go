// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package chain

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/vechain/bonsai/block"
	"github.com/vechain/bonsai/cache"
	"github.com/vechain/bonsai/kv"
	"github.com/vechain/bonsai/log"
	"github.com/vechain/bonsai/muxdb"
	"github.com/vechain/bonsai/thor"
)

const (
	hdrStoreName   = "chain.hdr"   // for block headers
	propStoreName  = "chain.props" // for property-named blocks such as best block
	indexStoreName = "chain.index" // for the canonical number to id index

	headerCacheSize = 1024
)

var (
	logger         = log.WithContext("pkg", "chain")
	errNotFound    = errors.New("not found")
	bestBlockIDKey = []byte("best-block-id")
)

// Repository stores block headers and indexes the canonical chain.
//
// It's thread-safe.
type Repository struct {
	db         *muxdb.MuxDB
	hdrStore   kv.Store
	propStore  kv.Store
	indexStore kv.Store

	genesis *block.Header
	best    atomic.Pointer[block.Header]
	lock    sync.Mutex // serializes writes

	headers *cache.LRU
}

// NewRepository create an instance of repository.
func NewRepository(db *muxdb.MuxDB, genesis *block.Header) (*Repository, error) {
	if genesis.Number() != 0 {
		return nil, errors.New("genesis number != 0")
	}

	headers, err := cache.NewLRU(headerCacheSize)
	if err != nil {
		return nil, err
	}

	repo := &Repository{
		db:         db,
		hdrStore:   db.NewStore(hdrStoreName),
		propStore:  db.NewStore(propStoreName),
		indexStore: db.NewStore(indexStoreName),
		genesis:    genesis,
		headers:    headers,
	}

	val, err := repo.propStore.Get(bestBlockIDKey)
	if err != nil {
		if !repo.propStore.IsNotFound(err) {
			return nil, err
		}
		if err := repo.AddHeader(genesis, true); err != nil {
			return nil, errors.Wrap(err, "save genesis")
		}
		return repo, nil
	}

	existingGenesisID, err := repo.CanonicalID(0)
	if err != nil {
		return nil, errors.Wrap(err, "get existing genesis id")
	}
	if existingGenesisID != genesis.ID() {
		return nil, errors.New("genesis mismatch")
	}

	best, err := repo.GetBlockHeader(thor.BytesToBytes32(val))
	if err != nil {
		return nil, errors.Wrap(err, "get best block")
	}
	repo.best.Store(best)
	metricBestBlockNum().Set(int64(best.Number()))
	return repo, nil
}

// OpenRepository opens the repository previously created in db.
func OpenRepository(db *muxdb.MuxDB) (*Repository, error) {
	id, err := loadCanonicalID(db.NewStore(indexStoreName), 0)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, errors.New("no chain in database")
		}
		return nil, err
	}
	genesis, err := loadHeader(db.NewStore(hdrStoreName), id)
	if err != nil {
		return nil, errors.Wrap(err, "load genesis")
	}
	return NewRepository(db, genesis)
}

// GenesisBlockHeader returns genesis block header.
func (r *Repository) GenesisBlockHeader() *block.Header {
	return r.genesis
}

// BestBlockHeader returns the header of the best block, which is the newest block of canonical chain.
func (r *Repository) BestBlockHeader() *block.Header {
	return r.best.Load()
}

// AddHeader adds a new block header into repository.
// If asBest is set, the canonical index is rewritten from the fork point.
func (r *Repository) AddHeader(header *block.Header, asBest bool) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	id := header.ID()
	if header.Number() > 0 {
		if _, err := r.GetBlockHeader(header.ParentID()); err != nil {
			if r.IsNotFound(err) {
				return errors.New("parent missing")
			}
			return err
		}
	}

	tx := r.db.NewStore("").Begin()
	defer tx.Rollback()

	if err := saveHeader(kv.Bucket(hdrStoreName).NewPutter(tx), header); err != nil {
		return err
	}

	var replaced int
	if asBest {
		var err error
		if replaced, err = r.reindex(kv.Bucket(indexStoreName).NewPutter(tx), header); err != nil {
			return errors.WithMessage(err, "reindex")
		}
		if err := kv.Bucket(propStoreName).NewPutter(tx).Put(bestBlockIDKey, id[:]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	r.headers.Add(id, header)

	if asBest {
		if replaced > 0 {
			logger.Debug("chain reorganized", "depth", replaced, "best", id)
			metricReorgDepth().Observe(int64(replaced))
		}
		r.best.Store(header)
		metricBestBlockNum().Set(int64(header.Number()))

		if stats := r.headers.Stats(); stats.RateChanged() {
			hit, miss := stats.Counts()
			logger.Debug("header cache stats", "hit", hit, "miss", miss, "rate", stats.HitRate())
		}
	}
	return nil
}

// reindex points the canonical index at the branch ending with newBest.
// It returns the count of index entries that pointed to another branch.
func (r *Repository) reindex(w kv.Putter, newBest *block.Header) (int, error) {
	replaced := 0

	// drop entries above the new best, when the new branch is shorter
	if oldBest := r.best.Load(); oldBest != nil {
		for n := oldBest.Number(); n > newBest.Number(); n-- {
			if err := w.Delete(numberKey(n)); err != nil {
				return 0, err
			}
			replaced++
		}
	}

	cur := newBest
	for {
		id := cur.ID()
		existing, err := loadCanonicalID(r.indexStore, cur.Number())
		if err == nil {
			if existing == id {
				return replaced, nil
			}
			replaced++
		} else if !r.indexStore.IsNotFound(err) {
			return 0, err
		}

		if err := saveCanonicalID(w, id); err != nil {
			return 0, err
		}
		if cur.Number() == 0 {
			return replaced, nil
		}
		if cur, err = r.GetBlockHeader(cur.ParentID()); err != nil {
			return 0, err
		}
	}
}

// GetBlockHeader get block header by block id.
func (r *Repository) GetBlockHeader(id thor.Bytes32) (*block.Header, error) {
	if h, ok := r.headers.Get(id); ok {
		metricHeaderCache().AddWithLabel(1, map[string]string{"event": "hit"})
		return h.(*block.Header), nil
	}
	metricHeaderCache().AddWithLabel(1, map[string]string{"event": "miss"})

	h, err := loadHeader(r.hdrStore, id)
	if err != nil {
		return nil, err
	}
	r.headers.Add(id, h)
	return h, nil
}

// CanonicalID returns the id of the canonical block with the given number.
func (r *Repository) CanonicalID(num uint32) (thor.Bytes32, error) {
	return loadCanonicalID(r.indexStore, num)
}

// AncestorID returns the id of the ancestor of the given block with the given number.
func (r *Repository) AncestorID(id thor.Bytes32, num uint32) (thor.Bytes32, error) {
	if num > block.Number(id) {
		return thor.Bytes32{}, errNotFound
	}

	// fast path for canonical blocks
	if canonical, err := r.CanonicalID(block.Number(id)); err == nil && canonical == id {
		return r.CanonicalID(num)
	}

	for block.Number(id) > num {
		h, err := r.GetBlockHeader(id)
		if err != nil {
			return thor.Bytes32{}, err
		}
		id = h.ParentID()
	}
	return id, nil
}

// IsNotFound returns if an error means not found.
func (r *Repository) IsNotFound(err error) bool {
	return err == errNotFound || r.db.IsNotFound(err)
}
