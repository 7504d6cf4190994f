// Copyright (c) 2021 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

import (
	"sync"

	"github.com/syndtr/goleveldb/leveldb/util"
)

// Bucket is a key prefix that carves a logical namespace out of a store.
type Bucket string

var keyPool = sync.Pool{
	New: func() any { return new([]byte) },
}

// withKey calls fn with the bucket-prefixed key. The prefixed key is only
// valid during the call.
func withKey[T any](b Bucket, key []byte, fn func([]byte) (T, error)) (T, error) {
	k := keyPool.Get().(*[]byte)
	defer keyPool.Put(k)
	*k = append(append((*k)[:0], b...), key...)
	return fn(*k)
}

// NewGetter wraps src so that reads are confined to the bucket.
func (b Bucket) NewGetter(src Getter) Getter {
	return &struct {
		GetFunc
		HasFunc
		IsNotFoundFunc
	}{
		func(key []byte) ([]byte, error) { return withKey(b, key, src.Get) },
		func(key []byte) (bool, error) { return withKey(b, key, src.Has) },
		src.IsNotFound,
	}
}

// NewPutter wraps src so that writes are confined to the bucket.
func (b Bucket) NewPutter(src Putter) Putter {
	return &struct {
		PutFunc
		DeleteFunc
	}{
		func(key, val []byte) error {
			_, err := withKey(b, key, func(k []byte) (struct{}, error) {
				return struct{}{}, src.Put(k, val)
			})
			return err
		},
		func(key []byte) error {
			_, err := withKey(b, key, func(k []byte) (struct{}, error) {
				return struct{}{}, src.Delete(k)
			})
			return err
		},
	}
}

// NewSnapshot wraps a snapshot of the parent store.
func (b Bucket) NewSnapshot(src Snapshot) Snapshot {
	return &struct {
		Getter
		ReleaseFunc
	}{b.NewGetter(src), src.Release}
}

// NewTx wraps a tx of the parent store. Commit and rollback apply to the whole tx.
func (b Bucket) NewTx(src Tx) Tx {
	return &struct {
		Putter
		CommitFunc
		RollbackFunc
	}{b.NewPutter(src), src.Commit, src.Rollback}
}

// NewStore wraps src as a store holding only the keys under the bucket.
// Iterated keys have the prefix stripped.
func (b Bucket) NewStore(src Store) Store {
	return &struct {
		Getter
		Putter
		SnapshotFunc
		BeginFunc
		IterateFunc
	}{
		b.NewGetter(src),
		b.NewPutter(src),
		func() Snapshot { return b.NewSnapshot(src.Snapshot()) },
		func() Tx { return b.NewTx(src.Begin()) },
		func(r Range) Iterator { return b.iterate(src, r) },
	}
}

func (b Bucket) iterate(src Store, r Range) Iterator {
	prefix := []byte(b)
	rng := Range{Start: append(prefix[:len(prefix):len(prefix)], r.Start...)}
	if len(r.Limit) > 0 {
		rng.Limit = append(prefix[:len(prefix):len(prefix)], r.Limit...)
	} else {
		rng.Limit = util.BytesPrefix(prefix).Limit
	}

	iter := src.Iterate(rng)
	return &struct {
		NextFunc
		KeyFunc
		ValueFunc
		ReleaseFunc
		ErrorFunc
	}{
		iter.Next,
		func() []byte { return iter.Key()[len(prefix):] },
		iter.Value,
		iter.Release,
		iter.Error,
	}
}
