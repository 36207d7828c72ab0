package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/augurvault/augur/app/runner"
	"github.com/augurvault/augur/pkg/cliutil"
	"github.com/augurvault/augur/pkg/metrics"
	"github.com/augurvault/augur/pkg/vault"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := cli.NewApp()
	app.Name = "snapshot"
	app.Usage = "initialize a vault and run snapshot cycles"
	app.Version = version
	app.Writer = os.Stdout
	app.ErrWriter = os.Stderr
	app.Flags = cliutil.Flags
	app.Commands = []cli.Command{
		{
			Name:   "init",
			Usage:  "create the vault directory tree and seed files",
			Action: runInit,
		},
		{
			Name:  "run",
			Usage: "run one snapshot cycle over every active account",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "parallelism, p",
					Usage: " concurrent accounts `N` (default $SNAPSHOT_PARALLELISM)",
				},
			},
			Action: func(c *cli.Context) error { return runSnapshot(ctx, c) },
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(app.ErrWriter, "terminated with error: %s\n", err)
		os.Exit(1)
	}
}

func runInit(c *cli.Context) error {
	cfg, logger, err := cliutil.Setup(c, "snapshot")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	layout := vault.NewLayout(cfg.VaultPath)
	existed := layout.Exists()
	if err := layout.Ensure(context.Background()); err != nil {
		return err
	}
	logger.Info("Vault ready", zap.String("vault", layout.Root), zap.Bool("existed", existed))
	return cliutil.PrintJSON(c.App.Writer, map[string]any{"vault": layout.Root, "created": !existed})
}

func runSnapshot(ctx context.Context, c *cli.Context) error {
	cfg, logger, err := cliutil.Setup(c, "snapshot")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if p := c.Int("parallelism"); p > 0 {
		cfg.Parallelism = p
	}

	r, err := runner.Build(ctx, cfg, logger, metrics.New())
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	report, err := r.RunSnapshot(ctx)
	if report != nil {
		if perr := cliutil.PrintJSON(c.App.Writer, report); perr != nil {
			return perr
		}
	}
	if err != nil {
		return err
	}
	if report.Failed > 0 {
		return cli.NewExitError(fmt.Sprintf("%d of %d accounts failed", report.Failed, report.Active), 2)
	}
	return nil
}

