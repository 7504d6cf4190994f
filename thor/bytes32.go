// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package thor

import (
	"encoding"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Bytes32 array of 32 bytes.
// It's used as block id, state root and storage slot key/value.
type Bytes32 [32]byte

var (
	_ encoding.TextMarshaler   = Bytes32{}
	_ encoding.TextUnmarshaler = (*Bytes32)(nil)
)

func (b Bytes32) String() string {
	return "0x" + hex.EncodeToString(b[:])
}

// Bytes returns byte slice form of Bytes32.
func (b Bytes32) Bytes() []byte {
	return b[:]
}

// IsZero returns if Bytes32 has all zero bytes.
func (b Bytes32) IsZero() bool {
	return b == Bytes32{}
}

// MarshalText encodes b as 0x-prefixed hex, which also serves JSON.
func (b Bytes32) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Bytes32) UnmarshalText(text []byte) error {
	return decodeFixedHex(string(text), b[:])
}

// ParseBytes32 parses 64 hex digits, with or without the 0x prefix.
func ParseBytes32(s string) (b Bytes32, err error) {
	err = decodeFixedHex(s, b[:])
	return
}

// MustParseBytes32 is like ParseBytes32 but panics on error.
func MustParseBytes32(s string) Bytes32 {
	b, err := ParseBytes32(s)
	if err != nil {
		panic(err)
	}
	return b
}

// BytesToBytes32 converts bytes slice into Bytes32.
// Longer input is cropped from the left, shorter input is left padded with zeros.
func BytesToBytes32(b []byte) Bytes32 {
	return Bytes32(common.BytesToHash(b))
}

// decodeFixedHex fills dst from s, which must hold exactly len(dst) bytes of hex.
func decodeFixedHex(s string, dst []byte) error {
	switch len(s) {
	case len(dst) * 2:
	case len(dst)*2 + 2:
		if !strings.EqualFold(s[:2], "0x") {
			return errors.New("invalid prefix")
		}
		s = s[2:]
	default:
		return errors.New("invalid length")
	}
	_, err := hex.Decode(dst, []byte(s))
	return err
}
