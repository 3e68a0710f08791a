// Package utils contains internal helper functions for papyrus commands.
package utils

import (
	"path/filepath"
	"time"

	gethutils "github.com/ethereum/go-ethereum/cmd/utils"
	"github.com/urfave/cli/v2"

	"github.com/lizatkinson/papyrus/internal/flags"
	"github.com/lizatkinson/papyrus/node"
	"github.com/lizatkinson/papyrus/params"
)

// These are all the command line flags we support.
// The flags are defined here so their names and help texts
// are the same for all commands.

var (
	// General settings
	DataDirFlag = &cli.StringFlag{
		Name:     "datadir",
		Usage:    "Data directory for the database and instance lock",
		Value:    node.DefaultDataDir(),
		Category: flags.SyncCategory,
	}
	MainnetFlag = &cli.BoolFlag{
		Name:     "mainnet",
		Usage:    "Follow the main network",
		Category: flags.SyncCategory,
	}
	SepoliaFlag = &cli.BoolFlag{
		Name:     "sepolia",
		Usage:    "Follow the Sepolia test network",
		Category: flags.SyncCategory,
	}
	CacheFlag = &cli.IntFlag{
		Name:     "cache",
		Usage:    "Megabytes of memory allocated to internal database caching",
		Value:    node.DefaultConfig.DatabaseCache,
		Category: flags.SyncCategory,
	}
	SyncSleepFlag = &cli.DurationFlag{
		Name:     "sync.propagation-sleep",
		Usage:    "Duration the sync idles when caught up with the central source",
		Value:    node.DefaultConfig.Sync.BlockPropagationSleepDuration,
		Category: flags.SyncCategory,
	}

	// Central gateway settings
	GatewayURLFlag = &cli.StringFlag{
		Name:     "gateway.url",
		Usage:    "Base URL of the central gateway (default depends on the selected network)",
		Category: flags.GatewayCategory,
	}
	GatewayTimeoutFlag = &cli.DurationFlag{
		Name:     "gateway.timeout",
		Usage:    "Timeout of a single gateway request (0 = no timeout)",
		Value:    node.DefaultConfig.Central.RequestTimeout,
		Category: flags.GatewayCategory,
	}

	// API settings
	HTTPEnabledFlag = &cli.BoolFlag{
		Name:     "http",
		Usage:    "Enable the HTTP status endpoint",
		Category: flags.APICategory,
	}
	HTTPListenAddrFlag = &cli.StringFlag{
		Name:     "http.addr",
		Usage:    "HTTP status endpoint listening interface",
		Value:    node.DefaultHTTPHost,
		Category: flags.APICategory,
	}
	HTTPPortFlag = &cli.IntFlag{
		Name:     "http.port",
		Usage:    "HTTP status endpoint listening port",
		Value:    node.DefaultHTTPPort,
		Category: flags.APICategory,
	}
	HTTPCORSDomainFlag = &cli.StringFlag{
		Name:     "http.corsdomain",
		Usage:    "Comma separated list of domains from which to accept cross origin requests (browser enforced)",
		Value:    "",
		Category: flags.APICategory,
	}
)

// setHTTP applies the status endpoint flags to the config.
func setHTTP(ctx *cli.Context, cfg *node.Config) {
	if ctx.Bool(HTTPEnabledFlag.Name) && cfg.HTTPHost == "" {
		cfg.HTTPHost = node.DefaultHTTPHost
		if ctx.IsSet(HTTPListenAddrFlag.Name) {
			cfg.HTTPHost = ctx.String(HTTPListenAddrFlag.Name)
		}
	}
	if ctx.IsSet(HTTPPortFlag.Name) {
		cfg.HTTPPort = ctx.Int(HTTPPortFlag.Name)
	}
	if ctx.IsSet(HTTPCORSDomainFlag.Name) {
		cfg.HTTPCors = gethutils.SplitAndTrim(ctx.String(HTTPCORSDomainFlag.Name))
	}
}

// setChain selects the network presets from the network flags.
func setChain(ctx *cli.Context, cfg *node.Config) {
	gethutils.CheckExclusive(ctx, MainnetFlag, SepoliaFlag)
	switch {
	case ctx.Bool(SepoliaFlag.Name):
		cfg.Chain = params.SepoliaChainConfig
	case ctx.Bool(MainnetFlag.Name):
		cfg.Chain = params.MainnetChainConfig
	}
	if !ctx.IsSet(GatewayURLFlag.Name) {
		cfg.Central.URL = cfg.Chain.GatewayURL
	}
}

// SetNodeConfig applies node-related command line flags to the config.
func SetNodeConfig(ctx *cli.Context, cfg *node.Config) {
	setChain(ctx, cfg)
	setHTTP(ctx, cfg)
	SetDataDir(ctx, cfg)

	if ctx.IsSet(GatewayURLFlag.Name) {
		cfg.Central.URL = ctx.String(GatewayURLFlag.Name)
	}
	if ctx.IsSet(GatewayTimeoutFlag.Name) {
		cfg.Central.RequestTimeout = ctx.Duration(GatewayTimeoutFlag.Name)
	}
	if ctx.IsSet(CacheFlag.Name) {
		cfg.DatabaseCache = ctx.Int(CacheFlag.Name)
	}
	if ctx.IsSet(SyncSleepFlag.Name) {
		cfg.Sync.BlockPropagationSleepDuration = ctx.Duration(SyncSleepFlag.Name)
	}
	if cfg.Sync.BlockPropagationSleepDuration <= 0 {
		cfg.Sync.BlockPropagationSleepDuration = time.Second
	}
}

// SetDataDir derives the data directory from the flags. An explicit datadir
// wins; otherwise Sepolia uses a "sepolia" subdirectory of the default and
// mainnet uses the default directory itself.
func SetDataDir(ctx *cli.Context, cfg *node.Config) {
	switch {
	case ctx.IsSet(DataDirFlag.Name):
		cfg.DataDir = ctx.String(DataDirFlag.Name)
	case ctx.Bool(SepoliaFlag.Name) && cfg.DataDir == node.DefaultDataDir():
		cfg.DataDir = filepath.Join(node.DefaultDataDir(), "sepolia")
	}
}
