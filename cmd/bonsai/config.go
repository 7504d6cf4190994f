// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"os"

	"github.com/pkg/errors"
	cli "gopkg.in/urfave/cli.v1"
	"gopkg.in/yaml.v3"
)

// Config is the resolved configuration of a command.
type Config struct {
	DataDir       string `yaml:"data-dir"`
	APIAddr       string `yaml:"api-addr"`
	APICors       string `yaml:"api-cors"`
	MaxLayers     uint32 `yaml:"max-layers"`
	Cache         int    `yaml:"cache"`
	Verbosity     int    `yaml:"verbosity"`
	JSONLogs      bool   `yaml:"json-logs"`
	EnableMetrics bool   `yaml:"enable-metrics"`
	EnableAdmin   bool   `yaml:"enable-admin"`
	AdminAddr     string `yaml:"admin-addr"`
}

func defaultConfig() *Config {
	return &Config{
		DataDir:   dataDirFlag.Value,
		APIAddr:   apiAddrFlag.Value,
		APICors:   apiCorsFlag.Value,
		MaxLayers: uint32(maxLayersFlag.Value),
		Cache:     cacheFlag.Value,
		Verbosity: verbosityFlag.Value,
		AdminAddr: adminAddrFlag.Value,
	}
}

// loadConfigFile overlays the YAML file at path on cfg. Unknown keys are rejected.
func loadConfigFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open config")
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return errors.Wrapf(err, "decode config %v", path)
	}
	return nil
}

// resolveConfig builds the config from the defaults, the config file and the
// explicitly set flags, in increasing precedence.
func resolveConfig(ctx *cli.Context) (*Config, error) {
	cfg := defaultConfig()
	if path := ctx.String(configFlag.Name); path != "" {
		if err := loadConfigFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if ctx.IsSet(dataDirFlag.Name) {
		cfg.DataDir = ctx.String(dataDirFlag.Name)
	}
	if ctx.IsSet(apiAddrFlag.Name) {
		cfg.APIAddr = ctx.String(apiAddrFlag.Name)
	}
	if ctx.IsSet(apiCorsFlag.Name) {
		cfg.APICors = ctx.String(apiCorsFlag.Name)
	}
	if ctx.IsSet(maxLayersFlag.Name) {
		cfg.MaxLayers = uint32(ctx.Uint64(maxLayersFlag.Name))
	}
	if ctx.IsSet(cacheFlag.Name) {
		cfg.Cache = ctx.Int(cacheFlag.Name)
	}
	if ctx.IsSet(verbosityFlag.Name) {
		cfg.Verbosity = ctx.Int(verbosityFlag.Name)
	}
	if ctx.IsSet(jsonLogsFlag.Name) {
		cfg.JSONLogs = ctx.Bool(jsonLogsFlag.Name)
	}
	if ctx.IsSet(enableMetricsFlag.Name) {
		cfg.EnableMetrics = ctx.Bool(enableMetricsFlag.Name)
	}
	if ctx.IsSet(enableAdminFlag.Name) {
		cfg.EnableAdmin = ctx.Bool(enableAdminFlag.Name)
	}
	if ctx.IsSet(adminAddrFlag.Name) {
		cfg.AdminAddr = ctx.String(adminAddrFlag.Name)
	}

	if cfg.DataDir == "" {
		return nil, errors.New("data dir not set")
	}
	if cfg.MaxLayers == 0 {
		return nil, errors.New("max layers must be positive")
	}
	return cfg, nil
}
