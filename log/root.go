// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package log

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
)

// rootHolder keeps the concrete type stored in root stable.
type rootHolder struct{ Logger }

var root atomic.Value

func init() {
	root.Store(rootHolder{&logger{slog.New(DiscardHandler())}})
}

// SetDefault sets the default global logger
func SetDefault(l Logger) {
	root.Store(rootHolder{l})
	if lg, ok := l.(*logger); ok {
		slog.SetDefault(lg.inner)
	}
}

// Root returns the root logger
func Root() Logger {
	return root.Load().(rootHolder).Logger
}

// WithContext returns a logger carrying the given context, bound to whatever
// root logger is set at the time of each call. It's safe to assign the result
// to a package-level variable before SetDefault is called.
func WithContext(ctx ...any) Logger {
	return &contextLogger{ctx}
}

type contextLogger struct {
	ctx []any
}

func (c *contextLogger) attrs(ctx []any) []any {
	return append(append(make([]any, 0, len(c.ctx)+len(ctx)), c.ctx...), ctx...)
}

func (c *contextLogger) With(ctx ...any) Logger {
	return &contextLogger{c.attrs(ctx)}
}

func (c *contextLogger) New(ctx ...any) Logger {
	return c.With(ctx...)
}

func (c *contextLogger) Log(level slog.Level, msg string, ctx ...any) {
	Root().Write(level, msg, c.attrs(ctx)...)
}

func (c *contextLogger) Write(level slog.Level, msg string, attrs ...any) {
	Root().Write(level, msg, c.attrs(attrs)...)
}

func (c *contextLogger) Enabled(ctx context.Context, level slog.Level) bool {
	return Root().Enabled(ctx, level)
}

func (c *contextLogger) Handler() slog.Handler {
	return Root().Handler()
}

func (c *contextLogger) Trace(msg string, ctx ...any) { Root().Write(LevelTrace, msg, c.attrs(ctx)...) }
func (c *contextLogger) Debug(msg string, ctx ...any) { Root().Write(LevelDebug, msg, c.attrs(ctx)...) }
func (c *contextLogger) Info(msg string, ctx ...any)  { Root().Write(LevelInfo, msg, c.attrs(ctx)...) }
func (c *contextLogger) Warn(msg string, ctx ...any)  { Root().Write(LevelWarn, msg, c.attrs(ctx)...) }
func (c *contextLogger) Error(msg string, ctx ...any) { Root().Write(LevelError, msg, c.attrs(ctx)...) }

func (c *contextLogger) Crit(msg string, ctx ...any) {
	Root().Write(LevelCrit, msg, c.attrs(ctx)...)
	os.Exit(1)
}

// The following functions call Write directly so the recorded caller is the
// call site in client code.

// Trace is a convenient alias for Root().Trace
func Trace(msg string, ctx ...any) {
	Root().Write(LevelTrace, msg, ctx...)
}

// Debug is a convenient alias for Root().Debug
func Debug(msg string, ctx ...any) {
	Root().Write(slog.LevelDebug, msg, ctx...)
}

// Info is a convenient alias for Root().Info
func Info(msg string, ctx ...any) {
	Root().Write(slog.LevelInfo, msg, ctx...)
}

// Warn is a convenient alias for Root().Warn
func Warn(msg string, ctx ...any) {
	Root().Write(slog.LevelWarn, msg, ctx...)
}

// Error is a convenient alias for Root().Error
func Error(msg string, ctx ...any) {
	Root().Write(slog.LevelError, msg, ctx...)
}

// Crit is a convenient alias for Root().Crit
func Crit(msg string, ctx ...any) {
	Root().Write(LevelCrit, msg, ctx...)
	os.Exit(1)
}
