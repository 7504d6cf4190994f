// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package accounts_test

import (
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vechain/bonsai/api/accounts"
	"github.com/vechain/bonsai/bonsai"
	"github.com/vechain/bonsai/test/testchain"
	"github.com/vechain/bonsai/thor"
	"github.com/vechain/bonsai/trielog"
)

var (
	addr    = thor.BytesToAddress([]byte("acc"))
	key     = thor.Bytes32{1}
	noValue = thor.Bytes32{}
)

const maxLayers = 4

func initAccountServer(t *testing.T) (*testchain.Chain, *httptest.Server) {
	c, err := testchain.NewIntegrationTestChain(bonsai.Options{MaxLayersToLoad: maxLayers})
	require.NoError(t, err)

	_, err = c.MintBlocks(10, func(u *bonsai.Updater, num uint32) {
		u.SetAccount(addr, &trielog.Account{Nonce: uint64(num), Balance: uint256.NewInt(uint64(num))})
		v := thor.BytesToBytes32([]byte{byte(num)})
		u.SetStorage(addr, key, &v)
	})
	require.NoError(t, err)

	router := mux.NewRouter()
	accounts.New(c.Repo(), c.Archive()).Mount(router, "/accounts")
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return c, ts
}

func httpGet(t *testing.T, url string) ([]byte, int) {
	res, err := http.Get(url) //#nosec G107
	require.NoError(t, err)
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return body, res.StatusCode
}

func getAccount(t *testing.T, ts *httptest.Server, query string) (*accounts.Account, int) {
	body, status := httpGet(t, ts.URL+"/accounts/"+addr.String()+query)
	if status != http.StatusOK {
		return nil, status
	}
	var acc accounts.Account
	require.NoError(t, json.Unmarshal(body, &acc))
	return &acc, status
}

func TestGetAccount(t *testing.T) {
	c, ts := initAccountServer(t)

	for _, query := range []string{"", "?revision=best", "?revision=" + c.Repo().BestBlockHeader().ID().String()} {
		acc, status := getAccount(t, ts, query)
		require.Equal(t, http.StatusOK, status, query)
		assert.Equal(t, uint64(10), acc.Nonce)
		assert.Equal(t, big.NewInt(10), (*big.Int)(acc.Balance))
	}
}

func TestGetAccountHistory(t *testing.T) {
	_, ts := initAccountServer(t)

	for num := 10 - maxLayers; num < 10; num++ {
		acc, status := getAccount(t, ts, "?revision="+strconv.Itoa(num))
		require.Equal(t, http.StatusOK, status, num)
		assert.Equal(t, uint64(num), acc.Nonce)
	}

	// deeper than the layers to load
	_, status := getAccount(t, ts, "?revision="+strconv.Itoa(10-maxLayers-1))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestGetAccountSideBranch(t *testing.T) {
	c, ts := initAccountServer(t)

	parent, err := c.Repo().GetBlockHeader(mustCanonicalID(t, c, 8))
	require.NoError(t, err)
	side, err := c.MintSideBlock(parent, func(u *bonsai.Updater) {
		u.SetAccount(addr, &trielog.Account{Nonce: 99, Balance: uint256.NewInt(99)})
	})
	require.NoError(t, err)

	acc, status := getAccount(t, ts, "?revision="+side.ID().String())
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, uint64(99), acc.Nonce)
}

func TestGetAbsentAccount(t *testing.T) {
	_, ts := initAccountServer(t)

	body, status := httpGet(t, ts.URL+"/accounts/"+thor.BytesToAddress([]byte("nobody")).String())
	require.Equal(t, http.StatusOK, status)

	var acc accounts.Account
	require.NoError(t, json.Unmarshal(body, &acc))
	assert.Equal(t, uint64(0), acc.Nonce)
	assert.Equal(t, 0, (*big.Int)(acc.Balance).Sign())
}

func TestGetAccountErrors(t *testing.T) {
	_, ts := initAccountServer(t)

	_, status := httpGet(t, ts.URL+"/accounts/0x")
	assert.Equal(t, http.StatusBadRequest, status)

	_, status = getAccount(t, ts, "?revision=abc")
	assert.Equal(t, http.StatusBadRequest, status)

	_, status = getAccount(t, ts, "?revision=11")
	assert.Equal(t, http.StatusNotFound, status)

	_, status = getAccount(t, ts, "?revision="+thor.Bytes32{0xff}.String())
	assert.Equal(t, http.StatusNotFound, status)
}

func TestGetStorage(t *testing.T) {
	_, ts := initAccountServer(t)

	get := func(k thor.Bytes32, query string) (thor.Bytes32, int) {
		body, status := httpGet(t, ts.URL+"/accounts/"+addr.String()+"/storage/"+k.String()+query)
		if status != http.StatusOK {
			return thor.Bytes32{}, status
		}
		var res accounts.Storage
		require.NoError(t, json.Unmarshal(body, &res))
		return res.Value, status
	}

	val, status := get(key, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, thor.BytesToBytes32([]byte{10}), val)

	val, status = get(key, "?revision=7")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, thor.BytesToBytes32([]byte{7}), val)

	val, status = get(thor.Bytes32{2}, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, noValue, val)

	_, status = httpGet(t, ts.URL+"/accounts/"+addr.String()+"/storage/0x01")
	assert.Equal(t, http.StatusBadRequest, status)
}

func mustCanonicalID(t *testing.T, c *testchain.Chain, num uint32) thor.Bytes32 {
	id, err := c.Repo().CanonicalID(num)
	require.NoError(t, err)
	return id
}
