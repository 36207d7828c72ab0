package runner

import (
	"context"
	"fmt"

	"github.com/augurvault/augur/pkg/config"
	"github.com/augurvault/augur/pkg/metrics"
	"github.com/augurvault/augur/pkg/observer"
	"github.com/augurvault/augur/pkg/observer/btc"
	"github.com/augurvault/augur/pkg/observer/canopy"
	"github.com/augurvault/augur/pkg/observer/evm"
	"github.com/augurvault/augur/pkg/observer/sol"
	"github.com/augurvault/augur/pkg/observer/xlm"
	"github.com/augurvault/augur/pkg/observer/xrpl"
	"github.com/augurvault/augur/pkg/redis"
	"github.com/augurvault/augur/pkg/reports"
	"github.com/augurvault/augur/pkg/retry"
	"github.com/augurvault/augur/pkg/rippled"
	"github.com/augurvault/augur/pkg/rpc"
	"github.com/augurvault/augur/pkg/snapshot"
	"github.com/augurvault/augur/pkg/vault"
	"github.com/augurvault/augur/pkg/vault/accounts"
	"github.com/augurvault/augur/pkg/vault/eventlog"
	"github.com/augurvault/augur/pkg/vault/models"
	"github.com/augurvault/augur/pkg/vault/syncstate"
	"go.uber.org/zap"
)

// Build opens the vault named by cfg and wires every component. The vault
// directory tree is created when missing.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*Runner, error) {
	layout := vault.NewLayout(cfg.VaultPath)
	if err := layout.Ensure(ctx); err != nil {
		return nil, fmt.Errorf("ensure vault: %w", err)
	}
	settings, err := layout.LoadSettings()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	store, err := accounts.Open(ctx, accounts.Options{
		Layout: layout,
		Path:   cfg.AccountsFile,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open account store: %w", err)
	}

	r := &Runner{
		Layout:   layout,
		Accounts: store,
		State:    syncstate.NewFiles(layout),
		Metrics:  m,
		Logger:   logger,
	}

	registry, err := r.buildRegistry(ctx, cfg, settings, logger)
	if err != nil {
		_ = r.Close()
		return nil, err
	}

	log := eventlog.New(layout, eventlog.WithLogger(logger))
	rc := retry.DefaultConfig()
	rc.MaxRetries = cfg.ObserverRetries
	r.Orchestrator = snapshot.New(snapshot.Options{
		Registry:    registry,
		Log:         log,
		Logger:      logger,
		Metrics:     m,
		Parallelism: cfg.Parallelism,
		Timeout:     cfg.ObserverTimeout,
		Retry:       rc,
	})
	r.Monthly = reports.NewMonthly(reports.Options{
		Layout:   layout,
		Accounts: store,
		Log:      log,
		Logger:   logger,
		Metrics:  m,
	})

	if cfg.RedisEnabled {
		client, err := redis.NewClient(ctx, logger)
		if err != nil {
			logger.Warn("Failed to initialize Redis client - cross-host locks and run notifications disabled",
				zap.Error(err))
		} else {
			r.Redis = client
		}
	} else {
		logger.Info("Redis disabled - runs are serialized in-process only")
	}

	logger.Info("Vault opened",
		zap.String("vault", layout.Root),
		zap.String("accounts", store.Path()),
		zap.Any("chains", registry.Chains()))
	return r, nil
}

func (r *Runner) buildRegistry(ctx context.Context, cfg *config.Config, settings vault.Settings, logger *zap.Logger) (*observer.Registry, error) {
	reg := observer.NewRegistry()
	httpOpts := func(endpoints ...string) rpc.Opts {
		return rpc.Opts{Endpoints: endpoints, Timeout: cfg.ObserverTimeout}
	}

	if cfg.XRPL.WS != "" {
		client := rippled.NewClient(rippled.Options{URL: cfg.XRPL.WS, Logger: logger})
		r.closers = append(r.closers, client.Close)
		reg.Register(xrpl.New(client, xrpl.Options{
			EventLimit: cfg.XRPL.EventLimit,
			MaxPages:   cfg.XRPL.MaxPages,
			StoreRaw:   settings.Privacy.StoreRawPayloads,
			Logger:     logger,
		}))
	}
	if cfg.EVM.RPC != "" {
		o, err := evm.Dial(ctx, cfg.EVM.RPC, evm.Options{ChainID: cfg.EVM.ChainID, Tokens: cfg.EVM.Tokens, Logger: logger})
		if err != nil {
			return nil, err
		}
		reg.Register(o)
	}
	if cfg.BTC.APIBase != "" {
		reg.Register(btc.New(rpc.NewHTTPWithOpts(httpOpts(cfg.BTC.APIBase))))
	}
	if cfg.SOL.RPC != "" {
		reg.Register(sol.New(rpc.NewHTTPWithOpts(httpOpts(cfg.SOL.RPC)), cfg.SOL.Commitment))
	}
	if cfg.XLM.Horizon != "" {
		reg.Register(xlm.New(rpc.NewHTTPWithOpts(httpOpts(cfg.XLM.Horizon))))
	}
	if len(cfg.Canopy.RPC) > 0 {
		factory := rpc.NewHTTPFactory(httpOpts())
		reg.Register(canopy.New(factory.NewClient(cfg.Canopy.RPC)))
	}
	reg.Register(observer.NewStub(models.ChainHBAR, "hbar snapshot stub"))
	reg.Register(observer.NewStub(models.ChainADA, "ada snapshot stub"))
	return reg, nil
}
