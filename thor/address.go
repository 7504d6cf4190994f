// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package thor

import (
	"bytes"
	"encoding"
	"encoding/hex"

	"github.com/ethereum/go-ethereum/common"
)

// AddressLength length of address in bytes.
const AddressLength = common.AddressLength

// Address address of account.
type Address common.Address

var (
	_ encoding.TextMarshaler   = Address{}
	_ encoding.TextUnmarshaler = (*Address)(nil)
)

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Bytes returns byte slice form of address.
func (a Address) Bytes() []byte {
	return a[:]
}

// Compare orders addresses lexicographically.
func (a Address) Compare(other Address) int {
	return bytes.Compare(a[:], other[:])
}

// MarshalText encodes a as 0x-prefixed hex, which also serves JSON.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	return decodeFixedHex(string(text), a[:])
}

// ParseAddress parses 40 hex digits, with or without the 0x prefix.
func ParseAddress(s string) (*Address, error) {
	var addr Address
	if err := decodeFixedHex(s, addr[:]); err != nil {
		return nil, err
	}
	return &addr, nil
}

// BytesToAddress converts bytes slice into address.
// Longer input is cropped from the left, shorter input is left padded with zeros.
func BytesToAddress(b []byte) Address {
	return Address(common.BytesToAddress(b))
}
