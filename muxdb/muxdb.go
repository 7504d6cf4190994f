// Copyright (c) 2019 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package muxdb implements the storage layer for the world state history.
// It multiplexes a single leveldb instance into general purpose named kv-stores.
package muxdb

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	dberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/vechain/bonsai/kv"
)

const (
	propStoreName = "muxdb.props"
	configKey     = "config"

	// schemaVersion is bumped whenever the on-disk layout changes incompatibly.
	schemaVersion = 1
)

// Options optional parameters for MuxDB.
type Options struct {
	// OpenFilesCacheCapacity is the capacity of open files caching for underlying database.
	OpenFilesCacheCapacity int
	// ReadCacheMB is the size of read cache for underlying database.
	ReadCacheMB int
	// WriteBufferMB is the size of write buffer for underlying database.
	WriteBufferMB int
}

// MuxDB is the database to efficiently store flat state and trie logs.
type MuxDB struct {
	engine *levelEngine
}

// Open opens or creates DB at the given path.
func Open(path string, options *Options) (*MuxDB, error) {
	ldbOpts := opt.Options{
		OpenFilesCacheCapacity: options.OpenFilesCacheCapacity,
		BlockCacheCapacity:     options.ReadCacheMB * opt.MiB,
		WriteBuffer:            options.WriteBufferMB * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
		BlockSize:              1024 * 32, // balance performance of point reads and compression ratio.
		CompactionTableSize:    4 * opt.MiB,
	}

	ldb, err := leveldb.OpenFile(path, &ldbOpts)
	if _, corrupted := err.(*dberrors.ErrCorrupted); corrupted {
		ldb, err = leveldb.RecoverFile(path, &ldbOpts)
	}
	if err != nil {
		return nil, errors.Wrap(err, "open leveldb")
	}

	db := &MuxDB{engine: newLevelEngine(ldb)}

	cfg := config{Version: schemaVersion}
	if err := cfg.LoadOrSave(db.NewStore(propStoreName)); err != nil {
		ldb.Close()
		return nil, err
	}
	if cfg.Version != schemaVersion {
		ldb.Close()
		return nil, errors.Errorf("incompatible database schema version %v, want %v", cfg.Version, schemaVersion)
	}
	return db, nil
}

// NewMem creates a memory-backed DB.
func NewMem() *MuxDB {
	ldb, _ := leveldb.Open(storage.NewMemStorage(), nil)
	return &MuxDB{engine: newLevelEngine(ldb)}
}

// Close closes the DB.
func (db *MuxDB) Close() error {
	return db.engine.Close()
}

// NewStore creates named kv-store.
// An empty name returns the root store, which spans all named stores.
func (db *MuxDB) NewStore(name string) kv.Store {
	return kv.Bucket(name).NewStore(db.engine)
}

// IsNotFound returns if the error indicates key not found.
func (db *MuxDB) IsNotFound(err error) bool {
	return db.engine.IsNotFound(err)
}

type config struct {
	Version uint32
}

// LoadOrSave loads the persisted config, or saves c if none exists yet.
func (c *config) LoadOrSave(store kv.Store) error {
	data, err := store.Get([]byte(configKey))
	if err == nil {
		return json.Unmarshal(data, c)
	}

	if !store.IsNotFound(err) {
		return err
	}
	data, err = json.Marshal(c)
	if err != nil {
		return err
	}
	return store.Put([]byte(configKey), data)
}
