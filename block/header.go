// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package block

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/vechain/bonsai/thor"
)

// Header identifies a block and the world state root just after it was applied.
// It's immutable.
type Header struct {
	body headerBody
	id   atomic.Pointer[thor.Bytes32]
}

type headerBody struct {
	ParentID  thor.Bytes32
	Timestamp uint64
	StateRoot thor.Bytes32
}

// NewHeader creates a header on top of the given parent.
func NewHeader(parentID thor.Bytes32, timestamp uint64, stateRoot thor.Bytes32) *Header {
	return &Header{body: headerBody{
		ParentID:  parentID,
		Timestamp: timestamp,
		StateRoot: stateRoot,
	}}
}

// GenesisParentID returns the parent id a genesis header must carry,
// so that the genesis number is inferred as 0.
func GenesisParentID() (id thor.Bytes32) {
	binary.BigEndian.PutUint32(id[:], math.MaxUint32)
	return
}

func (h *Header) ParentID() thor.Bytes32  { return h.body.ParentID }
func (h *Header) Timestamp() uint64       { return h.body.Timestamp }
func (h *Header) StateRoot() thor.Bytes32 { return h.body.StateRoot }

// Number is inferred from the parent id.
func (h *Header) Number() uint32 {
	return Number(h.body.ParentID) + 1
}

// ID returns the block id: the big endian block number followed by
// the last 28 bytes of blake2b(rlp(body)).
func (h *Header) ID() thor.Bytes32 {
	if id := h.id.Load(); id != nil {
		return *id
	}

	hw := thor.NewBlake2b()
	if err := rlp.Encode(hw, &h.body); err != nil {
		panic(err) // fixed-size fields always encode
	}
	var id thor.Bytes32
	hw.Sum(id[:0])
	binary.BigEndian.PutUint32(id[:], h.Number())
	h.id.Store(&id)
	return id
}

// EncodeRLP implements rlp.Encoder
func (h *Header) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, &h.body)
}

// DecodeRLP implements rlp.Decoder.
func (h *Header) DecodeRLP(s *rlp.Stream) error {
	var body headerBody
	if err := s.Decode(&body); err != nil {
		return err
	}
	*h = Header{body: body}
	return nil
}

func (h *Header) String() string {
	return fmt.Sprintf("Header(%v) num=%v parent=%v ts=%v root=%v",
		h.ID(), h.Number(), h.body.ParentID, h.body.Timestamp, h.body.StateRoot)
}

// Number returns the block number carried in the first 4 bytes of a block id.
func Number(blockID thor.Bytes32) uint32 {
	return binary.BigEndian.Uint32(blockID[:])
}
