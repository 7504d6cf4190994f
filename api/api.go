// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/vechain/bonsai/api/accounts"
	"github.com/vechain/bonsai/api/trielogs"
	"github.com/vechain/bonsai/bonsai"
	"github.com/vechain/bonsai/chain"
	"github.com/vechain/bonsai/metrics"
)

type Options struct {
	AllowedOrigins string
	EnableMetrics  bool
}

// New return api router
func New(repo *chain.Repository, archive *bonsai.Archive, opts Options) http.HandlerFunc {
	origins := strings.Split(strings.TrimSpace(opts.AllowedOrigins), ",")
	for i, o := range origins {
		origins[i] = strings.ToLower(strings.TrimSpace(o))
	}

	router := mux.NewRouter()

	accounts.New(repo, archive).
		Mount(router, "/accounts")
	trielogs.New(repo, archive.Manager()).
		Mount(router, "/trielogs")

	if opts.EnableMetrics {
		router.Path("/metrics").
			Methods(http.MethodGet).
			Name("GET /metrics").
			Handler(metrics.HTTPHandler())
		router.Use(metricsMiddleware)
	}

	handler := handlers.CompressHandler(router)
	handler = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedHeaders([]string{"content-type"}),
	)(handler)

	return handler.ServeHTTP
}
