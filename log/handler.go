// Copyright 2017 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"time"

	"github.com/holiman/uint256"
)

const timeFormat = "2006-01-02T15:04:05-0700"

// DiscardHandler returns a handler that drops every record.
func DiscardHandler() slog.Handler { return discardHandler{} }

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h discardHandler) WithGroup(string) slog.Handler           { return h }

// JSONHandlerWithLevel returns a handler which writes records at or above level
// as JSON objects, one per line.
func JSONHandlerWithLevel(wr io.Writer, level *slog.LevelVar) slog.Handler {
	return slog.NewJSONHandler(wr, &slog.HandlerOptions{
		ReplaceAttr: replacer(false),
		Level:       level,
	})
}

// LogfmtHandlerWithLevel returns a handler which writes records at or above level
// as logfmt key=value pairs.
func LogfmtHandlerWithLevel(wr io.Writer, level *slog.LevelVar) slog.Handler {
	return slog.NewTextHandler(wr, &slog.HandlerOptions{
		ReplaceAttr: replacer(true),
		Level:       level,
	})
}

// replacer renames the builtin time and level keys to t and lvl, and renders
// values that slog would otherwise print as structs.
func replacer(logfmt bool) func([]string, slog.Attr) slog.Attr {
	return func(_ []string, attr slog.Attr) slog.Attr {
		switch attr.Key {
		case slog.TimeKey:
			if attr.Value.Kind() != slog.KindTime {
				break
			}
			if logfmt {
				return slog.String("t", attr.Value.Time().Format(timeFormat))
			}
			return slog.Attr{Key: "t", Value: attr.Value}
		case slog.LevelKey:
			if l, ok := attr.Value.Any().(slog.Level); ok {
				return slog.String("lvl", LevelString(l))
			}
		}
		attr.Value = formatValue(attr.Value, logfmt)
		return attr
	}
}

func formatValue(v slog.Value, logfmt bool) slog.Value {
	switch x := v.Any().(type) {
	case time.Time:
		if logfmt {
			return slog.StringValue(x.Format(timeFormat))
		}
	case *uint256.Int:
		if x == nil {
			return slog.StringValue("<nil>")
		}
		return slog.StringValue(x.Dec())
	case fmt.Stringer:
		if rv := reflect.ValueOf(x); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return slog.StringValue("<nil>")
		}
		return slog.StringValue(x.String())
	}
	return v
}
