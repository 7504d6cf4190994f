// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package accounts

import (
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/vechain/bonsai/api/utils"
	"github.com/vechain/bonsai/bonsai"
	"github.com/vechain/bonsai/chain"
	"github.com/vechain/bonsai/thor"
)

type Accounts struct {
	repo    *chain.Repository
	archive *bonsai.Archive
}

func New(repo *chain.Repository, archive *bonsai.Archive) *Accounts {
	return &Accounts{
		repo,
		archive,
	}
}

// withState resolves the revision query and calls fn with the world state of the block.
func (a *Accounts) withState(req *http.Request, fn func(state bonsai.WorldState) error) error {
	revision, err := utils.ParseRevision(req.URL.Query().Get("revision"))
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "revision"))
	}
	header, err := utils.GetHeader(revision, a.repo)
	if err != nil {
		if a.repo.IsNotFound(err) {
			return utils.NotFound(errors.New("revision: block not found"))
		}
		return err
	}

	state, ok, err := a.archive.Mutable(header, header.ID(), false)
	if err != nil {
		return err
	}
	if !ok {
		return utils.NotFound(errors.Errorf("state of block %v not available", header.ID()))
	}
	defer state.Close()

	return fn(state)
}

func (a *Accounts) handleGetAccount(w http.ResponseWriter, req *http.Request) error {
	addr, err := thor.ParseAddress(mux.Vars(req)["address"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "address"))
	}

	return a.withState(req, func(state bonsai.WorldState) error {
		acc, err := state.Account(*addr)
		if err != nil {
			return err
		}
		res := &Account{Balance: (*math.HexOrDecimal256)(new(big.Int))}
		if acc != nil {
			res.Nonce = acc.Nonce
			res.CodeHash = acc.CodeHash
			res.StorageRoot = acc.StorageRoot
			if acc.Balance != nil {
				res.Balance = (*math.HexOrDecimal256)(acc.Balance.ToBig())
			}
		}
		return utils.WriteJSON(w, res)
	})
}

func (a *Accounts) handleGetStorage(w http.ResponseWriter, req *http.Request) error {
	addr, err := thor.ParseAddress(mux.Vars(req)["address"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "address"))
	}
	key, err := thor.ParseBytes32(mux.Vars(req)["key"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "key"))
	}

	return a.withState(req, func(state bonsai.WorldState) error {
		val, err := state.Storage(*addr, key)
		if err != nil {
			return err
		}
		var res Storage
		if val != nil {
			res.Value = *val
		}
		return utils.WriteJSON(w, &res)
	})
}

func (a *Accounts) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/{address}").
		Methods(http.MethodGet).
		Name("GET /accounts/{address}").
		HandlerFunc(utils.WrapHandlerFunc(a.handleGetAccount))
	sub.Path("/{address}/storage/{key}").
		Methods(http.MethodGet).
		Name("GET /accounts/{address}/storage/{key}").
		HandlerFunc(utils.WrapHandlerFunc(a.handleGetStorage))
}
