package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/augurvault/augur/pkg/metrics"
	"github.com/augurvault/augur/pkg/redis"
	"github.com/augurvault/augur/pkg/reports"
	"github.com/augurvault/augur/pkg/snapshot"
	"github.com/augurvault/augur/pkg/vault"
	"github.com/augurvault/augur/pkg/vault/accounts"
	"github.com/augurvault/augur/pkg/vault/syncstate"
	"go.uber.org/zap"
)

// ErrRunInProgress is returned when a run of the same job is already active,
// in this process or, with Redis enabled, on another host.
var ErrRunInProgress = errors.New("run already in progress")

// Runner serializes snapshot and monthly runs against one vault.
type Runner struct {
	Layout       vault.Layout
	Accounts     *accounts.Store
	State        *syncstate.Files
	Orchestrator *snapshot.Orchestrator
	Monthly      *reports.Monthly
	Metrics      *metrics.Metrics
	Logger       *zap.Logger

	// Redis is optional. When set, runs also take a cross-host lock and
	// announce completion.
	Redis   *redis.Client
	LockTTL time.Duration

	snapshotMu sync.Mutex
	monthlyMu  sync.Mutex
	closers    []func() error
}

// RunSnapshot executes one snapshot cycle and persists sync state. State is
// saved even when the cycle was cancelled, since every finished account is
// fully recorded in it.
func (r *Runner) RunSnapshot(ctx context.Context) (*snapshot.Report, error) {
	if !r.snapshotMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.snapshotMu.Unlock()

	lock, err := r.distributedLock(ctx, "snapshot")
	if err != nil {
		return nil, err
	}
	defer lock.Release(context.WithoutCancel(ctx))

	all, err := r.Accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	state, err := r.State.Load(ctx)
	if err != nil {
		return nil, err
	}

	report, runErr := r.Orchestrator.RunSnapshotCycle(ctx, all, state)
	if report == nil {
		return nil, runErr
	}

	saveCtx := context.WithoutCancel(ctx)
	if err := r.State.Save(saveCtx, report.State); err != nil {
		return report, errors.Join(runErr, fmt.Errorf("persist sync state: %w", err))
	}
	if err := snapshot.WriteRunLog(r.Layout, report); err != nil {
		r.Logger.Warn("Failed to write run log", zap.String("runId", report.RunID), zap.Error(err))
	}
	if r.Redis != nil {
		r.Redis.PublishRun(saveCtx, redis.RunCompleted{
			Job:        "snapshot",
			RunID:      report.RunID,
			OK:         report.OK,
			Failed:     report.Failed,
			Events:     report.Events,
			FinishedAt: report.FinishedAt,
		})
	}
	return report, runErr
}

// RunMonthly renders the summary for month (YYYY-MM).
func (r *Runner) RunMonthly(ctx context.Context, month string) (*reports.Summary, error) {
	if !r.monthlyMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.monthlyMu.Unlock()

	lock, err := r.distributedLock(ctx, "monthly")
	if err != nil {
		return nil, err
	}
	defer lock.Release(context.WithoutCancel(ctx))

	s, err := r.Monthly.Generate(ctx, month)
	if err != nil {
		return nil, err
	}
	if r.Redis != nil {
		r.Redis.PublishRun(context.WithoutCancel(ctx), redis.RunCompleted{
			Job:        "monthly",
			Month:      month,
			Events:     s.Totals.EventCount,
			FinishedAt: s.GeneratedAt,
		})
	}
	return s, nil
}

func (r *Runner) distributedLock(ctx context.Context, job string) (*redis.Lock, error) {
	if r.Redis == nil {
		return nil, nil
	}
	ttl := r.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	lock, err := r.Redis.AcquireLock(ctx, job+":"+r.Layout.Root, ttl)
	if errors.Is(err, redis.ErrLocked) {
		return nil, fmt.Errorf("%w: %w", ErrRunInProgress, err)
	}
	if err != nil {
		// An unreachable Redis must not stop local runs.
		r.Logger.Warn("Redis lock unavailable, running with the local lock only", zap.String("job", job), zap.Error(err))
		return nil, nil
	}
	return lock, nil
}

// Close releases observer connections and the Redis client.
func (r *Runner) Close() error {
	var errs []error
	for _, c := range r.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.Redis != nil {
		if err := r.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
