// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package chain

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/vechain/bonsai/block"
	"github.com/vechain/bonsai/kv"
	"github.com/vechain/bonsai/thor"
)

func saveRLP(w kv.Putter, key []byte, val any) error {
	data, err := rlp.EncodeToBytes(val)
	if err != nil {
		return err
	}
	return w.Put(key, data)
}

func loadRLP(r kv.Getter, key []byte, val any) error {
	data, err := r.Get(key)
	if err != nil {
		return err
	}
	return rlp.DecodeBytes(data, val)
}

func saveHeader(w kv.Putter, header *block.Header) error {
	id := header.ID()
	return saveRLP(w, id[:], header)
}

func loadHeader(r kv.Getter, id thor.Bytes32) (*block.Header, error) {
	var header block.Header
	if err := loadRLP(r, id[:], &header); err != nil {
		return nil, err
	}
	return &header, nil
}

// the key of canonical index is the big endian block number.
func numberKey(num uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, num)
}

func saveCanonicalID(w kv.Putter, id thor.Bytes32) error {
	return w.Put(numberKey(block.Number(id)), id[:])
}

func loadCanonicalID(r kv.Getter, num uint32) (thor.Bytes32, error) {
	data, err := r.Get(numberKey(num))
	if err != nil {
		return thor.Bytes32{}, err
	}
	return thor.BytesToBytes32(data), nil
}
