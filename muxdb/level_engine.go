// Copyright (c) 2019 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package muxdb

import (
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/vechain/bonsai/kv"
)

var errTxDone = errors.New("transaction already committed or rolled back")

var (
	writeOpt = opt.WriteOptions{}
	readOpt  = opt.ReadOptions{}
	scanOpt  = opt.ReadOptions{DontFillCache: true}
)

// levelEngine adapts leveldb to kv.Store.
type levelEngine struct {
	db        *leveldb.DB
	batchPool *sync.Pool
}

func newLevelEngine(db *leveldb.DB) *levelEngine {
	return &levelEngine{
		db,
		&sync.Pool{
			New: func() any {
				return &leveldb.Batch{}
			},
		},
	}
}

func (ldb *levelEngine) Close() error {
	return ldb.db.Close()
}

func (ldb *levelEngine) IsNotFound(err error) bool {
	return err == leveldb.ErrNotFound
}

func (ldb *levelEngine) Get(key []byte) ([]byte, error) {
	val, err := ldb.db.Get(key, &readOpt)
	// val will be []byte{} if error occurs, which is not expected
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (ldb *levelEngine) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, &readOpt)
}

func (ldb *levelEngine) Put(key, val []byte) error {
	return ldb.db.Put(key, val, &writeOpt)
}

func (ldb *levelEngine) Delete(key []byte) error {
	return ldb.db.Delete(key, &writeOpt)
}

func (ldb *levelEngine) Snapshot() kv.Snapshot {
	s, err := ldb.db.GetSnapshot()
	if err != nil {
		// the db is closed, reads through the snapshot will fail the same way.
		return &struct {
			kv.GetFunc
			kv.HasFunc
			kv.IsNotFoundFunc
			kv.ReleaseFunc
		}{
			func([]byte) ([]byte, error) { return nil, err },
			func([]byte) (bool, error) { return false, err },
			ldb.IsNotFound,
			func() {},
		}
	}

	return &struct {
		kv.GetFunc
		kv.HasFunc
		kv.IsNotFoundFunc
		kv.ReleaseFunc
	}{
		func(key []byte) ([]byte, error) {
			val, err := s.Get(key, &readOpt)
			if err != nil {
				return nil, err
			}
			return val, nil
		},
		func(key []byte) (bool, error) { return s.Has(key, &readOpt) },
		ldb.IsNotFound,
		s.Release,
	}
}

// Begin starts a batch-backed transaction.
func (ldb *levelEngine) Begin() kv.Tx {
	batch := ldb.batchPool.Get().(*leveldb.Batch)
	batch.Reset()
	return &levelTx{ldb: ldb, batch: batch}
}

func (ldb *levelEngine) Iterate(rng kv.Range) kv.Iterator {
	return ldb.db.NewIterator((*util.Range)(&rng), &scanOpt)
}

// levelTx buffers writes in a leveldb batch, which is written atomically.
type levelTx struct {
	ldb   *levelEngine
	batch *leveldb.Batch
	done  bool
}

func (tx *levelTx) Put(key, val []byte) error {
	if tx.done {
		return errTxDone
	}
	tx.batch.Put(key, val)
	return nil
}

func (tx *levelTx) Delete(key []byte) error {
	if tx.done {
		return errTxDone
	}
	tx.batch.Delete(key)
	return nil
}

func (tx *levelTx) Commit() error {
	if tx.done {
		return nil
	}
	tx.done = true
	defer tx.release()

	if tx.batch.Len() == 0 {
		return nil
	}
	return tx.ldb.db.Write(tx.batch, &writeOpt)
}

func (tx *levelTx) Rollback() {
	if tx.done {
		return
	}
	tx.done = true
	tx.release()
}

func (tx *levelTx) release() {
	tx.batch.Reset()
	tx.ldb.batchPool.Put(tx.batch)
	tx.batch = nil
}
