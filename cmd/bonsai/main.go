// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/vechain/bonsai/api"
	"github.com/vechain/bonsai/api/admin"
	"github.com/vechain/bonsai/api/trielogs"
	"github.com/vechain/bonsai/api/utils"
	"github.com/vechain/bonsai/block"
	"github.com/vechain/bonsai/bonsai"
	"github.com/vechain/bonsai/chain"
	"github.com/vechain/bonsai/log"
	"github.com/vechain/bonsai/metrics"
	"github.com/vechain/bonsai/muxdb"
	"github.com/vechain/bonsai/thor"
)

var (
	version   string
	gitCommit string
	gitTag    string
)

func fullVersion() string {
	versionMeta := "release"
	if gitTag == "" {
		versionMeta = "dev"
	}
	return fmt.Sprintf("%s-%s-%s", version, gitCommit, versionMeta)
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Version = fullVersion()
	app.Name = "Bonsai"
	app.Usage = "World state history service over trie logs"
	app.Copyright = "2024 VeChain Foundation <https://vechain.org/>"
	app.Flags = []cli.Flag{
		configFlag,
		dataDirFlag,
		apiAddrFlag,
		apiCorsFlag,
		maxLayersFlag,
		cacheFlag,
		verbosityFlag,
		jsonLogsFlag,
		enableMetricsFlag,
		enableAdminFlag,
		adminAddrFlag,
	}
	app.Action = defaultAction
	app.Commands = []cli.Command{
		{
			Name:  "init",
			Usage: "Initialize the data dir with a genesis block and an empty world state",
			Flags: []cli.Flag{
				configFlag,
				dataDirFlag,
				cacheFlag,
				verbosityFlag,
				jsonLogsFlag,
				genesisTimestampFlag,
			},
			Action: initAction,
		},
		{
			Name:      "trielog",
			Usage:     "Print the trie log of a block as JSON",
			ArgsUsage: "<revision>",
			Flags: []cli.Flag{
				configFlag,
				dataDirFlag,
				cacheFlag,
				verbosityFlag,
				jsonLogsFlag,
			},
			Action: trieLogAction,
		},
		{
			Name:  "verify",
			Usage: "Verify the trie logs of the canonical chain against the flat state",
			Flags: []cli.Flag{
				configFlag,
				dataDirFlag,
				cacheFlag,
				verbosityFlag,
				jsonLogsFlag,
			},
			Action: verifyAction,
		},
	}
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultAction(ctx *cli.Context) error {
	cfg, err := resolveConfig(ctx)
	if err != nil {
		return err
	}
	logLevel := initLogger(os.Stderr, cfg)
	defer func() { log.Info("exited") }()

	if cfg.EnableMetrics {
		metrics.InitializePrometheusMetrics()
	}

	db, err := openMainDB(cfg)
	if err != nil {
		return err
	}
	defer func() { log.Info("closing main database..."); db.Close() }()

	repo, archive, err := openArchive(db, cfg)
	if err != nil {
		return err
	}
	defer func() { log.Info("releasing cached layers..."); archive.Manager().Close() }()

	apiSrv, err := startServer(cfg.APIAddr, api.New(repo, archive, api.Options{
		AllowedOrigins: cfg.APICors,
		EnableMetrics:  cfg.EnableMetrics,
	}))
	if err != nil {
		return err
	}
	defer func() { log.Info("stopping API server..."); apiSrv.Shutdown() }()

	var adminURL string
	if cfg.EnableAdmin {
		adminSrv, err := startServer(cfg.AdminAddr, admin.New(logLevel))
		if err != nil {
			return err
		}
		defer func() { log.Info("stopping admin server..."); adminSrv.Shutdown() }()
		adminURL = adminSrv.url
	}

	printStartupMessage(os.Stdout, repo.BestBlockHeader(), cfg.DataDir, apiSrv.url, adminURL)

	exit, stop := handleExitSignal()
	defer stop()
	<-exit.Done()
	return nil
}

func openArchive(db *muxdb.MuxDB, cfg *Config) (*chain.Repository, *bonsai.Archive, error) {
	repo, err := chain.OpenRepository(db)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "open chain (run init first?)")
	}
	archive, err := bonsai.Open(db.NewStore(""), repo, bonsai.Options{
		MaxLayersToLoad:    cfg.MaxLayers,
		TrieLogCacheSizeMB: trieLogCacheMB(cfg),
	})
	if err != nil {
		return nil, nil, errors.WithMessage(err, "open world state archive")
	}
	return repo, archive, nil
}

func initAction(ctx *cli.Context) error {
	cfg, err := resolveConfig(ctx)
	if err != nil {
		return err
	}
	initLogger(os.Stderr, cfg)

	db, err := openMainDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	genesis := block.NewHeader(block.GenesisParentID(), ctx.Uint64(genesisTimestampFlag.Name), thor.Bytes32{})
	repo, err := chain.NewRepository(db, genesis)
	if err != nil {
		return err
	}
	archive, err := bonsai.Open(db.NewStore(""), repo, bonsai.Options{TrieLogCacheSizeMB: trieLogCacheMB(cfg)})
	if err != nil {
		return err
	}
	defer archive.Manager().Close()

	persisted := archive.Persisted()
	if persisted.BlockID().IsZero() {
		if err := persisted.Persist(persisted.Updater(), genesis); err != nil {
			return errors.WithMessage(err, "persist genesis state")
		}
		log.Info("initialized", "genesis", genesis.ID(), "dir", cfg.DataDir)
	} else {
		log.Info("already initialized", "genesis", repo.GenesisBlockHeader().ID(), "dir", cfg.DataDir)
	}
	return nil
}

func trieLogAction(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("expected a revision argument")
	}
	rev, err := utils.ParseRevision(ctx.Args().First())
	if err != nil {
		return errors.WithMessage(err, "revision")
	}

	cfg, err := resolveConfig(ctx)
	if err != nil {
		return err
	}
	initLogger(os.Stderr, cfg)

	db, err := openMainDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	repo, archive, err := openArchive(db, cfg)
	if err != nil {
		return err
	}
	defer archive.Manager().Close()

	header, err := utils.GetHeader(rev, repo)
	if err != nil {
		if repo.IsNotFound(err) {
			return errors.New("block not found")
		}
		return err
	}
	tlog, ok, err := archive.Manager().TrieLog(header.ID())
	if err != nil {
		return err
	}
	if !ok {
		return errors.Errorf("no trie log for block %v", header.ID())
	}

	enc := json.NewEncoder(ctx.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(trielogs.ConvertTrieLog(tlog))
}

func verifyAction(ctx *cli.Context) error {
	cfg, err := resolveConfig(ctx)
	if err != nil {
		return err
	}
	initLogger(os.Stderr, cfg)

	db, err := openMainDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	repo, archive, err := openArchive(db, cfg)
	if err != nil {
		return err
	}
	defer archive.Manager().Close()

	exit, stop := handleExitSignal()
	defer stop()
	return verifyTrieLogs(exit, ctx.App.Writer, repo, archive)
}
