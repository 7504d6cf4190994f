// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bonsai

import "github.com/vechain/bonsai/kv"

// DefaultTrieLogCacheSizeMB is the default size of the encoded trie log cache.
const DefaultTrieLogCacheSizeMB = 16

// Options configures an archive opened by Open.
type Options struct {
	MaxLayersToLoad    uint32 // zero means DefaultMaxLayersToLoad
	TrieLogCacheSizeMB int    // zero means DefaultTrieLogCacheSizeMB
}

// Open creates the storage, the trie log manager and the archive over the store.
func Open(store kv.Store, chain Blockchain, opts Options) (*Archive, error) {
	if opts.MaxLayersToLoad == 0 {
		opts.MaxLayersToLoad = DefaultMaxLayersToLoad
	}
	if opts.TrieLogCacheSizeMB <= 0 {
		opts.TrieLogCacheSizeMB = DefaultTrieLogCacheSizeMB
	}
	storage := NewStorage(store, opts.TrieLogCacheSizeMB)
	return NewArchive(storage, chain, NewManager(storage, opts.MaxLayersToLoad))
}
