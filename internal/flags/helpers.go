// Package flags contains cli helpers shared by the papyrus commands.
package flags

import (
	"github.com/urfave/cli/v2"

	"github.com/lizatkinson/papyrus/internal/version"
	"github.com/lizatkinson/papyrus/params"
)

// Flag categories grouping the flags in the help output.
const (
	SyncCategory    = "SYNC"
	GatewayCategory = "CENTRAL GATEWAY"
	APICategory     = "API"
	LoggingCategory = "LOGGING AND DEBUGGING"
)

// NewApp creates an app with sane defaults applied from build info.
func NewApp(usage string) *cli.App {
	app := cli.NewApp()
	app.EnableBashCompletion = true
	app.Version = params.VersionWithMeta
	if vcs, ok := version.VCS(); ok {
		app.Version = params.VersionWithCommit(vcs.Commit, vcs.Date)
	}
	app.Usage = usage
	app.Copyright = "Copyright 2023 The papyrus Authors"
	return app
}

// Merge concatenates flag slices.
func Merge(groups ...[]cli.Flag) []cli.Flag {
	var merged []cli.Flag
	for _, group := range groups {
		merged = append(merged, group...)
	}
	return merged
}
