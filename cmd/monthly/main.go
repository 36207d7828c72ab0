package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/augurvault/augur/app/runner"
	"github.com/augurvault/augur/pkg/cliutil"
	"github.com/augurvault/augur/pkg/metrics"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := cli.NewApp()
	app.Name = "monthly"
	app.Usage = "render monthly summaries from the event log"
	app.Version = version
	app.Writer = os.Stdout
	app.ErrWriter = os.Stderr
	app.Flags = cliutil.Flags
	app.Commands = []cli.Command{
		{
			Name:      "run",
			Usage:     "render the summary for a month (default: the current UTC month)",
			ArgsUsage: "[YYYY-MM]",
			Action:    func(c *cli.Context) error { return runMonthly(ctx, c) },
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(app.ErrWriter, "terminated with error: %s\n", err)
		os.Exit(1)
	}
}

func runMonthly(ctx context.Context, c *cli.Context) error {
	month := c.Args().First()
	if month == "" {
		month = time.Now().UTC().Format("2006-01")
	}

	cfg, logger, err := cliutil.Setup(c, "monthly")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	r, err := runner.Build(ctx, cfg, logger, metrics.New())
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	s, err := r.RunMonthly(ctx, month)
	if err != nil {
		return err
	}
	return cliutil.PrintJSON(c.App.Writer, s)
}
