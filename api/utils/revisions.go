// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package utils

import (
	"math"
	"strconv"

	"github.com/pkg/errors"
	"github.com/vechain/bonsai/block"
	"github.com/vechain/bonsai/chain"
	"github.com/vechain/bonsai/log"
	"github.com/vechain/bonsai/thor"
)

var logger = log.WithContext("pkg", "api")

const revBest int64 = -1

// Revision is a parsed revision, one of best, a block number or a block ID.
type Revision struct {
	val any
}

// IsBest returns whether the revision refers to the best block.
func (rev *Revision) IsBest() bool {
	return rev.val == revBest
}

// ParseRevision parses a query parameter into a block number or block ID.
// An empty revision means best.
func ParseRevision(revision string) (*Revision, error) {
	if revision == "" || revision == "best" {
		return &Revision{revBest}, nil
	}

	if len(revision) == 66 || len(revision) == 64 {
		blockID, err := thor.ParseBytes32(revision)
		if err != nil {
			return nil, err
		}
		return &Revision{blockID}, nil
	}
	n, err := strconv.ParseUint(revision, 0, 0)
	if err != nil {
		return nil, err
	}
	if n > math.MaxUint32 {
		return nil, errors.New("block number out of max uint32")
	}
	return &Revision{uint32(n)}, nil
}

// GetHeader returns the header of the block the revision refers to.
// Numbers are resolved on the canonical chain.
func GetHeader(rev *Revision, repo *chain.Repository) (*block.Header, error) {
	var id thor.Bytes32
	switch val := rev.val.(type) {
	case thor.Bytes32:
		id = val
	case uint32:
		var err error
		if id, err = repo.CanonicalID(val); err != nil {
			return nil, err
		}
	default:
		return repo.BestBlockHeader(), nil
	}
	return repo.GetBlockHeader(id)
}
