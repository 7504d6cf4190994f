// Copyright (c) 2024 The VeChainThor developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package chain

import "github.com/vechain/bonsai/metrics"

var (
	metricHeaderCache  = metrics.LazyLoadCounterVec("repo_header_cache_count", []string{"event"})
	metricBestBlockNum = metrics.LazyLoadGauge("repo_best_block_number")
	metricReorgDepth   = metrics.LazyLoadHistogram("repo_reorg_depth", metrics.BucketLayers)
)
