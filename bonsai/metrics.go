// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bonsai

import "github.com/vechain/bonsai/metrics"

var (
	metricCachedLayers  = metrics.LazyLoadGauge("cached_layers")
	metricEvictedLayers = metrics.LazyLoadCounter("evicted_layers_count")
	metricTrieLogSaves  = metrics.LazyLoadCounterVec("trielog_save_count", []string{"result"})
	metricTrieLogCache  = metrics.LazyLoadCounterVec("trielog_cache_count", []string{"event"})
	metricResolutions   = metrics.LazyLoadCounterVec("archive_resolution_count", []string{"source"})
	metricReplayDepth   = metrics.LazyLoadHistogram("archive_replay_layers", metrics.BucketLayers)
)
