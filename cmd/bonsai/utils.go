// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/vechain/bonsai/block"
	"github.com/vechain/bonsai/log"
	"github.com/vechain/bonsai/muxdb"
)

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

func defaultDataDir() string {
	home := homeDir()
	if home == "" {
		return ""
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "org.vechain.bonsai")
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "org.vechain.bonsai")
	default:
		return filepath.Join(home, ".org.vechain.bonsai")
	}
}

// initLogger sets the root logger and returns its level, adjustable at runtime.
// Logs are in JSON if asked, or if w is not a terminal.
func initLogger(w io.Writer, cfg *Config) *slog.LevelVar {
	var level slog.LevelVar
	level.Set(log.FromLegacyLevel(cfg.Verbosity))

	var handler slog.Handler
	if cfg.JSONLogs || !isTerminal(w) {
		handler = log.JSONHandlerWithLevel(w, &level)
	} else {
		handler = log.LogfmtHandlerWithLevel(w, &level)
	}
	log.SetDefault(log.NewLogger(handler))
	return &level
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// openMainDB opens the database in the data dir. The cache is split between
// the leveldb read cache and the trie log cache.
func openMainDB(cfg *Config) (*muxdb.MuxDB, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "create data dir [%v]", cfg.DataDir)
	}
	path := filepath.Join(cfg.DataDir, "main.db")
	db, err := muxdb.Open(path, &muxdb.Options{
		OpenFilesCacheCapacity: 500,
		ReadCacheMB:            cfg.Cache - trieLogCacheMB(cfg),
		WriteBufferMB:          64,
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "open main database [%v]", path)
	}
	return db, nil
}

func trieLogCacheMB(cfg *Config) int {
	return cfg.Cache / 4
}

// server is a running http server.
type server struct {
	url  string
	srv  *http.Server
	errs errgroup.Group
}

func startServer(addr string, handler http.Handler) (*server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen addr [%v]", addr)
	}
	s := &server{
		url: "http://" + listener.Addr().String() + "/",
		srv: &http.Server{Handler: handler, ReadHeaderTimeout: time.Second * 5},
	}
	s.errs.Go(func() error {
		if err := s.srv.Serve(listener); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	return s, nil
}

func (s *server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	return s.errs.Wait()
}

func handleExitSignal() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printStartupMessage(w io.Writer, best *block.Header, dataDir, apiURL, adminURL string) {
	if adminURL == "" {
		adminURL = "Disabled"
	}
	fmt.Fprintf(w, `Starting bonsai
    Best block   [ %v #%v @%v ]
    Data dir     [ %v ]
    API portal   [ %v ]
    Admin        [ %v ]
`,
		best.ID(), best.Number(), time.Unix(int64(best.Timestamp()), 0),
		dataDir,
		apiURL,
		adminURL)
}
