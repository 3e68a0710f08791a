package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"unicode"

	gethutils "github.com/ethereum/go-ethereum/cmd/utils"
	"github.com/naoina/toml"
	"github.com/urfave/cli/v2"

	"github.com/lizatkinson/papyrus/cmd/utils"
	"github.com/lizatkinson/papyrus/internal/flags"
	"github.com/lizatkinson/papyrus/node"
)

var (
	configFileFlag = &cli.StringFlag{
		Name:     "config",
		Usage:    "TOML configuration file",
		Category: flags.SyncCategory,
	}
)

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

type papyrusConfig struct {
	Node node.Config
}

func loadConfig(file string, cfg *papyrusConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// loadBaseConfig loads the papyrus configuration based on the given command
// line parameters and config file.
func loadBaseConfig(ctx *cli.Context) papyrusConfig {
	// Load defaults.
	cfg := papyrusConfig{
		Node: node.DefaultConfig,
	}

	// Load config file.
	if file := ctx.String(configFileFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			gethutils.Fatalf("%v", err)
		}
	}

	// Apply flags.
	utils.SetNodeConfig(ctx, &cfg.Node)
	return cfg
}

// makeFullNode loads the papyrus configuration and creates the replica node.
func makeFullNode(ctx *cli.Context) *node.Node {
	cfg := loadBaseConfig(ctx)
	stack, err := node.New(&cfg.Node)
	if err != nil {
		gethutils.Fatalf("Failed to create the replica node: %v", err)
	}
	return stack
}
