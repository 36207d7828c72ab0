package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/augurvault/augur/app/api/controller"
	"github.com/augurvault/augur/app/runner"
	"github.com/augurvault/augur/app/scheduler"
	"github.com/augurvault/augur/pkg/config"
	"github.com/augurvault/augur/pkg/logging"
	"github.com/augurvault/augur/pkg/metrics"
	"github.com/augurvault/augur/pkg/redis"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type App struct {
	Config     *config.Config
	Runner     *runner.Runner
	Controller *controller.Controller
	Scheduler  *scheduler.Scheduler
	Metrics    *metrics.Metrics
	Server     *http.Server
	Logger     *zap.Logger
}

func Initialize(ctx context.Context) *App {
	logger, err := logging.New("api")
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Unable to load configuration", zap.Error(err))
	}

	app, err := New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Unable to initialize api", zap.Error(err))
	}
	return app
}

// New wires the runner, scheduler and HTTP server for cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	m := metrics.New()
	r, err := runner.Build(ctx, cfg, logger, m)
	if err != nil {
		return nil, err
	}

	c, err := controller.NewController(controller.Options{
		Accounts:  r.Accounts,
		Jobs:      r,
		Summaries: r.Monthly,
		Metrics:   m.Handler(),
		Logger:    logger,
		Token:     cfg.API.Token,
		RateLimit: cfg.API.RateLimit,
		RateBurst: cfg.API.RateBurst,
	})
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	router, err := c.NewRouter()
	if err != nil {
		_ = r.Close()
		return nil, err
	}

	app := &App{
		Config:     cfg,
		Runner:     r,
		Controller: c,
		Metrics:    m,
		Logger:     logger,
		Server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.API.Port),
			Handler:           controller.WithCORS(cfg.API.CORSOrigins, router),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	if cfg.API.Scheduler {
		settings, err := r.Layout.LoadSettings()
		if err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("load settings: %w", err)
		}
		app.Scheduler, err = scheduler.New(ctx, settings, r, logger, time.Hour, runner.ErrRunInProgress)
		if err != nil {
			_ = r.Close()
			return nil, err
		}
	} else {
		logger.Info("Scheduler disabled - runs are triggered over HTTP or the CLI only")
	}
	return app, nil
}

// Start serves until ctx is cancelled, then drains the server and the
// scheduler.
func (a *App) Start(ctx context.Context) error {
	defer func() {
		if err := a.Runner.Close(); err != nil {
			a.Logger.Warn("Failed to close runner", zap.Error(err))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.runHTTPServer(gctx) })

	if a.Scheduler != nil {
		a.Scheduler.Start()
		g.Go(func() error {
			<-gctx.Done()
			a.Scheduler.Stop()
			return nil
		})
	}

	if a.Runner.Redis != nil {
		g.Go(func() error {
			err := a.Runner.Redis.WatchRuns(gctx, a.onRunCompleted)
			if err != nil && !errors.Is(err, context.Canceled) {
				// Cache invalidation from other hosts is best effort.
				a.Logger.Warn("Run notifications stopped", zap.Error(err))
			}
			return nil
		})
	}

	err := g.Wait()
	a.Logger.Info("API stopped")
	return err
}

func (a *App) onRunCompleted(msg redis.RunCompleted) {
	if msg.Job == "monthly" && msg.Month != "" {
		a.Controller.Invalidate(msg.Month)
	}
	a.Logger.Debug("Run completed",
		zap.String("job", msg.Job),
		zap.String("runId", msg.RunID),
		zap.String("month", msg.Month))
}

func (a *App) runHTTPServer(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("API listening", zap.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return a.Server.Shutdown(shutdownCtx)
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}
