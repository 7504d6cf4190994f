// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package trielogs

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/vechain/bonsai/api/utils"
	"github.com/vechain/bonsai/bonsai"
	"github.com/vechain/bonsai/chain"
)

type TrieLogs struct {
	repo    *chain.Repository
	manager *bonsai.Manager
}

func New(repo *chain.Repository, manager *bonsai.Manager) *TrieLogs {
	return &TrieLogs{
		repo,
		manager,
	}
}

func (t *TrieLogs) handleGetTrieLog(w http.ResponseWriter, req *http.Request) error {
	revision, err := utils.ParseRevision(mux.Vars(req)["revision"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "revision"))
	}
	header, err := utils.GetHeader(revision, t.repo)
	if err != nil {
		if t.repo.IsNotFound(err) {
			return utils.NotFound(errors.New("block not found"))
		}
		return err
	}

	tlog, ok, err := t.manager.TrieLog(header.ID())
	if err != nil {
		return err
	}
	if !ok {
		return utils.NotFound(errors.New("trie log not found"))
	}
	return utils.WriteJSON(w, ConvertTrieLog(tlog))
}

func (t *TrieLogs) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/{revision}").
		Methods(http.MethodGet).
		Name("GET /trielogs/{revision}").
		HandlerFunc(utils.WrapHandlerFunc(t.handleGetTrieLog))
}
