// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package trielog

import (
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"github.com/vechain/bonsai/thor"
)

// codecV1 frames a snappy compressed rlp body.
// Previously written versions must keep decoding.
const codecV1 = byte(1)

type encodedLog struct {
	BlockID     thor.Bytes32
	BlockNumber uint32
	Accounts    []AccountChange
	Storage     []StorageChange
}

// Encode encodes the log into bytes. Changes are in canonical order,
// so equal logs always encode to equal bytes.
func (l *TrieLog) Encode() ([]byte, error) {
	data, err := rlp.EncodeToBytes(&encodedLog{
		l.blockID,
		l.blockNumber,
		l.Accounts(),
		l.Storage(),
	})
	if err != nil {
		return nil, err
	}
	return append([]byte{codecV1}, snappy.Encode(nil, data)...), nil
}

// Decode decodes a log from bytes produced by Encode. The returned log is frozen.
func Decode(data []byte) (*TrieLog, error) {
	if len(data) == 0 {
		return nil, errors.New("empty trie log")
	}
	if data[0] != codecV1 {
		return nil, errors.Errorf("unsupported trie log version %d", data[0])
	}

	raw, err := snappy.Decode(nil, data[1:])
	if err != nil {
		return nil, errors.Wrap(err, "decompress trie log")
	}

	var enc encodedLog
	if err := rlp.DecodeBytes(raw, &enc); err != nil {
		return nil, errors.Wrap(err, "decode trie log")
	}

	l := New(enc.BlockID, enc.BlockNumber)
	for _, c := range enc.Accounts {
		l.AddAccountChange(c.Address, c.Prior, c.Updated)
	}
	for _, c := range enc.Storage {
		l.AddStorageChange(c.Address, c.Key, c.Prior, c.Updated)
	}
	l.Freeze()
	return l, nil
}
