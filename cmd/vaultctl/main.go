package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/augurvault/augur/pkg/cliutil"
	"github.com/augurvault/augur/pkg/vault"
	"github.com/augurvault/augur/pkg/vault/accounts"
	"github.com/augurvault/augur/pkg/vault/models"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := cli.NewApp()
	app.Name = "vaultctl"
	app.Usage = "manage the account registry of a vault"
	app.Version = version
	app.Writer = os.Stdout
	app.ErrWriter = os.Stderr
	app.Flags = cliutil.Flags
	app.Commands = []cli.Command{
		{
			Name:  "accounts",
			Usage: "list and edit registered accounts",
			Subcommands: []cli.Command{
				{
					Name:  "list",
					Usage: "print accounts",
					Flags: []cli.Flag{
						cli.BoolFlag{Name: "all, a", Usage: " include deleted accounts"},
					},
					Action: withStore(ctx, runList),
				},
				{
					Name:      "add",
					Usage:     "register an account (existing identities are returned as is)",
					ArgsUsage: "\n   (* = required)",
					Flags: []cli.Flag{
						cli.StringFlag{Name: "type, t", Value: "wallet", Usage: " account `TYPE` [wallet|exchange|merchant|custom|manual]"},
						cli.StringFlag{Name: "chain, c", Usage: "*`CHAIN` [xrpl|evm|btc|sol|xlm|hbar|ada|canopy|other|exchange]"},
						cli.StringFlag{Name: "label, l", Usage: "*display `LABEL`"},
						cli.StringFlag{Name: "address, A", Usage: "*`ADDRESS` or identifier"},
						cli.StringFlag{Name: "network, n", Usage: " `NETWORK` qualifier"},
					},
					Action: withStore(ctx, runAdd),
				},
				statusCommand(ctx, "pause", models.StatusPaused),
				statusCommand(ctx, "resume", models.StatusActive),
				statusCommand(ctx, "delete", models.StatusDeleted),
				{
					Name:   "purge",
					Usage:  "physically remove deleted accounts",
					Action: withStore(ctx, runPurge),
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(app.ErrWriter, "terminated with error: %s\n", err)
		os.Exit(1)
	}
}

type storeAction func(ctx context.Context, c *cli.Context, store *accounts.Store) error

func withStore(ctx context.Context, fn storeAction) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, logger, err := cliutil.Setup(c, "vaultctl")
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		layout := vault.NewLayout(cfg.VaultPath)
		if err := layout.Ensure(ctx); err != nil {
			return err
		}
		store, err := accounts.Open(ctx, accounts.Options{Layout: layout, Path: cfg.AccountsFile, Logger: logger})
		if err != nil {
			return err
		}
		return fn(ctx, c, store)
	}
}

func statusCommand(ctx context.Context, name string, status models.Status) cli.Command {
	return cli.Command{
		Name:      name,
		Usage:     fmt.Sprintf("set account status to %s", status),
		ArgsUsage: "ACCOUNT_ID",
		Action: withStore(ctx, func(ctx context.Context, c *cli.Context, store *accounts.Store) error {
			id := c.Args().First()
			if id == "" {
				return fmt.Errorf("%w: account id is required", vault.ErrValidation)
			}
			a, err := store.SetStatus(ctx, id, status)
			if err != nil {
				return err
			}
			return cliutil.PrintJSON(c.App.Writer, a)
		}),
	}
}

func runList(ctx context.Context, c *cli.Context, store *accounts.Store) error {
	all, err := store.List(ctx)
	if err != nil {
		return err
	}
	out := make([]models.Account, 0, len(all))
	for _, a := range all {
		if c.Bool("all") || a.Status != models.StatusDeleted {
			out = append(out, a)
		}
	}
	return cliutil.PrintJSON(c.App.Writer, out)
}

func runAdd(ctx context.Context, c *cli.Context, store *accounts.Store) error {
	a, created, err := store.Register(ctx, accounts.RegisterInput{
		Type:                c.String("type"),
		Chain:               c.String("chain"),
		Label:               c.String("label"),
		AddressOrIdentifier: c.String("address"),
		Network:             c.String("network"),
	})
	if err != nil {
		return err
	}
	return cliutil.PrintJSON(c.App.Writer, map[string]any{"account": a, "created": created})
}

func runPurge(ctx context.Context, c *cli.Context, store *accounts.Store) error {
	res, err := store.Purge(ctx)
	if err != nil {
		return err
	}
	return cliutil.PrintJSON(c.App.Writer, res)
}
