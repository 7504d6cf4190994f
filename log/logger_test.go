// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONHandlerValues(t *testing.T) {
	var buf bytes.Buffer
	var level slog.LevelVar
	level.Set(LevelDebug)

	l := NewLogger(JSONHandlerWithLevel(&buf, &level))
	l.Info("values", "big", big.NewInt(42), "u256", uint256.NewInt(7), "nilBig", (*big.Int)(nil))

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "values", out["msg"])
	assert.Equal(t, "info", out["lvl"])
	assert.Equal(t, "42", out["big"])
	assert.Equal(t, "7", out["u256"])
	assert.Equal(t, "<nil>", out["nilBig"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	var level slog.LevelVar
	level.Set(LevelWarn)

	l := NewLogger(LogfmtHandlerWithLevel(&buf, &level))
	l.Debug("hidden")
	assert.Equal(t, 0, buf.Len())

	l.Warn("shown", "k", "v")
	assert.Contains(t, buf.String(), "msg=shown")
	assert.Contains(t, buf.String(), "k=v")

	level.Set(LevelTrace)
	buf.Reset()
	l.Trace("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestWithContextFollowsRoot(t *testing.T) {
	old := Root()
	defer SetDefault(old)

	pkgLogger := WithContext("pkg", "test")

	var buf bytes.Buffer
	var level slog.LevelVar
	level.Set(LevelDebug)
	SetDefault(NewLogger(LogfmtHandlerWithLevel(&buf, &level)))

	pkgLogger.Debug("hello", "n", 1)
	assert.Contains(t, buf.String(), "pkg=test")
	assert.Contains(t, buf.String(), "n=1")

	buf.Reset()
	pkgLogger.With("sub", "x").Info("nested")
	assert.Contains(t, buf.String(), "pkg=test")
	assert.Contains(t, buf.String(), "sub=x")
}

func TestLevelStrings(t *testing.T) {
	assert.Equal(t, "trace", LevelString(LevelTrace))
	assert.Equal(t, "crit", LevelString(LevelCrit))
	assert.Equal(t, "WARN ", LevelAlignedString(LevelWarn))
	assert.Equal(t, LevelInfo, FromLegacyLevel(3))
	assert.Equal(t, LevelTrace, FromLegacyLevel(9))
}
