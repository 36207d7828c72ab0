// Package cliutil holds the flags and setup shared by the command-line tools.
package cliutil

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/augurvault/augur/pkg/config"
	"github.com/augurvault/augur/pkg/logging"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

// Flags shared by every command.
var Flags = []cli.Flag{
	cli.StringFlag{
		Name:   "vault",
		Usage:  " vault root `DIR` (default $DL_VAULT_PATH)",
		EnvVar: "DL_VAULT_PATH",
	},
	cli.StringFlag{
		Name:   "accounts-file",
		Usage:  " pin the account registry `FILE` and skip discovery",
		EnvVar: "DL_ACCOUNTS_FILE",
	},
	cli.StringFlag{
		Name:  "config",
		Usage: " YAML overlay `FILE` applied after $CONFIG_FILE",
	},
}

// Setup loads configuration, applies global flags and builds a logger.
func Setup(c *cli.Context, service string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if path := c.GlobalString("config"); path != "" {
		if err := cfg.Overlay(path); err != nil {
			return nil, nil, err
		}
	}
	if v := c.GlobalString("vault"); v != "" {
		cfg.VaultPath = v
	}
	if v := c.GlobalString("accounts-file"); v != "" {
		cfg.AccountsFile = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, err := logging.NewCLI(service)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
