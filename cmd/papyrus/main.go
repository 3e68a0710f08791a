// papyrus is a replica node continuously syncing chain data from a central
// gateway into local storage.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/lizatkinson/papyrus/cmd/utils"
	"github.com/lizatkinson/papyrus/internal/debug"
	"github.com/lizatkinson/papyrus/internal/flags"
)

var app = flags.NewApp("the papyrus command line interface")

var nodeFlags = []cli.Flag{
	configFileFlag,
	utils.DataDirFlag,
	utils.MainnetFlag,
	utils.SepoliaFlag,
	utils.CacheFlag,
	utils.SyncSleepFlag,
	utils.GatewayURLFlag,
	utils.GatewayTimeoutFlag,
	utils.HTTPEnabledFlag,
	utils.HTTPListenAddrFlag,
	utils.HTTPPortFlag,
	utils.HTTPCORSDomainFlag,
}

func init() {
	app.Action = papyrusMain
	app.Flags = flags.Merge(nodeFlags, debug.Flags)
	app.Before = func(ctx *cli.Context) error {
		return debug.Setup(ctx)
	}
	app.After = func(ctx *cli.Context) error {
		debug.Exit()
		return nil
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// papyrusMain is the main entry point into the system if no special
// subcommand is run. It creates the node, starts syncing and blocks until
// the sync fails or the process is interrupted.
func papyrusMain(ctx *cli.Context) error {
	stack := makeFullNode(ctx)
	defer stack.Close()

	if err := stack.Start(); err != nil {
		return err
	}

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		log.Info("Got interrupt, shutting down...")
		stack.Close()
	}()

	if err := stack.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
