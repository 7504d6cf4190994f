// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package loglevel

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vechain/bonsai/log"
)

func TestLogLevelHandler(t *testing.T) {
	tests := []struct {
		name             string
		method           string
		body             any
		expectedStatus   int
		expectedLevel    string
		expectedErrorMsg string
	}{
		{
			name:           "set level to debug",
			method:         http.MethodPost,
			body:           Request{Level: "debug"},
			expectedStatus: http.StatusOK,
			expectedLevel:  "debug",
		},
		{
			name:           "set level to trace",
			method:         http.MethodPost,
			body:           Request{Level: "trace"},
			expectedStatus: http.StatusOK,
			expectedLevel:  "trace",
		},
		{
			name:             "invalid level",
			method:           http.MethodPost,
			body:             Request{Level: "invalid_body"},
			expectedStatus:   http.StatusBadRequest,
			expectedErrorMsg: "Invalid verbosity level",
		},
		{
			name:           "unknown field",
			method:         http.MethodPost,
			body:           map[string]string{"lvl": "debug"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "get current level",
			method:         http.MethodGet,
			expectedStatus: http.StatusOK,
			expectedLevel:  "info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logLevel slog.LevelVar
			logLevel.Set(log.LevelInfo)

			var reqBody []byte
			if tt.body != nil {
				var err error
				reqBody, err = json.Marshal(tt.body)
				require.NoError(t, err)
			}

			req := httptest.NewRequest(tt.method, "/admin/loglevel", bytes.NewReader(reqBody))
			rr := httptest.NewRecorder()

			router := mux.NewRouter()
			New(&logLevel).Mount(router, "/admin/loglevel")
			router.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			if tt.expectedLevel != "" {
				var response Response
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&response))
				assert.Equal(t, tt.expectedLevel, response.CurrentLevel)
				assert.Equal(t, tt.expectedLevel, log.LevelString(logLevel.Level()))
			} else {
				assert.Equal(t, log.LevelInfo, logLevel.Level())
				if tt.expectedErrorMsg != "" {
					assert.Equal(t, tt.expectedErrorMsg, strings.TrimSpace(rr.Body.String()))
				}
			}
		})
	}
}
