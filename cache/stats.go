// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cache

import "sync/atomic"

// Stats counts cache lookups.
type Stats struct {
	hit, miss atomic.Int64
	reported  atomic.Int32 // hit rate in permille, as of the last RateChanged call
}

// Hit records a hit.
func (s *Stats) Hit() { s.hit.Add(1) }

// Miss records a miss.
func (s *Stats) Miss() { s.miss.Add(1) }

// Counts returns the hit and miss counts.
func (s *Stats) Counts() (hit, miss int64) {
	return s.hit.Load(), s.miss.Load()
}

// HitRate returns the ratio of hits to lookups, zero before any lookup.
func (s *Stats) HitRate() float64 {
	hit, miss := s.Counts()
	if hit+miss == 0 {
		return 0
	}
	return float64(hit) / float64(hit+miss)
}

// RateChanged reports whether the hit rate, rounded to permille, differs from
// the one seen by the previous call.
func (s *Stats) RateChanged() bool {
	permille := int32(s.HitRate() * 1000)
	return s.reported.Swap(permille) != permille
}
