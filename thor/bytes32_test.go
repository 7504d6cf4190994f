// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package thor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytes32MarshalUnmarshal(t *testing.T) {
	originalHex := `"0x00000000000000000000000000000000000000000000000000006d6173746572"`

	var unmarshaledValue Bytes32

	err := unmarshaledValue.UnmarshalText([]byte(originalHex[1 : len(originalHex)-1]))
	assert.NoError(t, err)

	err = json.Unmarshal([]byte(originalHex), &unmarshaledValue)
	assert.NoError(t, err)

	marshalVal, err := json.Marshal(unmarshaledValue)
	assert.NoError(t, err)
	assert.Equal(t, originalHex, string(marshalVal))

	marshalPtr, err := json.Marshal(&unmarshaledValue)
	assert.NoError(t, err)
	assert.Equal(t, originalHex, string(marshalPtr))
}

func TestParseBytes32(t *testing.T) {
	_, err := ParseBytes32("0x1234")
	assert.Error(t, err)

	_, err = ParseBytes32("1x" + string(make([]byte, 64)))
	assert.Error(t, err)

	b := MustParseBytes32("0x0000000000000000000000000000000000000000000000000000000000000001")
	assert.Equal(t, BytesToBytes32([]byte{1}), b)
	assert.False(t, b.IsZero())
	assert.True(t, Bytes32{}.IsZero())
}

func TestAddressJSON(t *testing.T) {
	addr := BytesToAddress([]byte("addr"))

	data, err := json.Marshal(addr)
	assert.NoError(t, err)

	var decoded Address
	assert.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, addr, decoded)

	_, err = ParseAddress("0xabc")
	assert.Error(t, err)
	assert.Error(t, json.Unmarshal([]byte(`"0y`+addr.String()[2:]+`"`), &decoded))

	keyed, err := json.Marshal(map[Address]int{addr: 1})
	assert.NoError(t, err)
	assert.Equal(t, `{"`+addr.String()+`":1}`, string(keyed))
	assert.Equal(t, -1, BytesToAddress([]byte{1}).Compare(BytesToAddress([]byte{2})))
}
