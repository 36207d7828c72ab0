package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/augurvault/augur/pkg/reports"
	"github.com/augurvault/augur/pkg/snapshot"
	"github.com/augurvault/augur/pkg/vault"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Jobs is what the scheduler triggers.
type Jobs interface {
	RunSnapshot(ctx context.Context) (*snapshot.Report, error)
	RunMonthly(ctx context.Context, month string) (*reports.Summary, error)
}

// Scheduler fires snapshot and monthly runs on the vault schedule, in the
// vault timezone.
type Scheduler struct {
	Cron *cron.Cron

	jobs     Jobs
	logger   *zap.Logger
	loc      *time.Location
	timeout  time.Duration
	specs    map[string]string
	isActive func(error) bool
}

// SnapshotSpec renders the snapshot schedule as a six-field cron spec.
func SnapshotSpec(s vault.Settings) string {
	sc := s.SnapshotSchedule
	if sc.Freq == "hourly" {
		return fmt.Sprintf("0 %d * * * *", sc.Minute)
	}
	return fmt.Sprintf("0 %d %d * * *", sc.Minute, sc.Hour)
}

// MonthlySpec renders the monthly schedule as a six-field cron spec.
func MonthlySpec(s vault.Settings) string {
	m := s.MonthlyRecordSchedule
	return fmt.Sprintf("0 %d %d %d * *", m.Minute, m.Hour, m.Day)
}

// New registers both jobs. timeout bounds each run.
func New(ctx context.Context, settings vault.Settings, jobs Jobs, logger *zap.Logger, timeout time.Duration, inProgress error) (*Scheduler, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = time.Hour
	}
	loc := settings.Location()
	s := &Scheduler{
		jobs:    jobs,
		logger:  logger,
		loc:     loc,
		timeout: timeout,
		specs: map[string]string{
			"snapshot": SnapshotSpec(settings),
			"monthly":  MonthlySpec(settings),
		},
		isActive: func(err error) bool { return inProgress != nil && errors.Is(err, inProgress) },
	}
	cronLogger := cron.VerbosePrintfLogger(zap.NewStdLog(logger))
	s.Cron = cron.New(cron.WithSeconds(), cron.WithLocation(loc), cron.WithChain(cron.Recover(cronLogger)))

	if _, err := s.Cron.AddFunc(s.specs["snapshot"], func() { s.snapshot(ctx) }); err != nil {
		return nil, fmt.Errorf("schedule snapshot: %w", err)
	}
	if _, err := s.Cron.AddFunc(s.specs["monthly"], func() { s.monthly(ctx, time.Now().In(loc)) }); err != nil {
		return nil, fmt.Errorf("schedule monthly: %w", err)
	}
	return s, nil
}

func (s *Scheduler) snapshot(ctx context.Context) {
	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	report, err := s.jobs.RunSnapshot(rctx)
	if s.isActive(err) {
		s.logger.Info("Scheduled snapshot skipped, a run is already active")
		return
	}
	if err != nil {
		s.logger.Error("Scheduled snapshot failed", zap.Error(err))
		return
	}
	s.logger.Info("Scheduled snapshot done",
		zap.String("runId", report.RunID),
		zap.Int("ok", report.OK),
		zap.Int("failed", report.Failed))
}

// monthly renders the month before now.
func (s *Scheduler) monthly(ctx context.Context, now time.Time) {
	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	month := reports.PreviousMonth(now)
	if _, err := s.jobs.RunMonthly(rctx, month); err != nil {
		if s.isActive(err) {
			s.logger.Info("Scheduled monthly skipped, a run is already active", zap.String("month", month))
			return
		}
		s.logger.Error("Scheduled monthly failed", zap.String("month", month), zap.Error(err))
		return
	}
	s.logger.Info("Scheduled monthly done", zap.String("month", month))
}

func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info("Scheduler started",
		zap.String("timezone", s.loc.String()),
		zap.String("snapshotSpec", s.specs["snapshot"]),
		zap.String("monthlySpec", s.specs["monthly"]))
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	if s.Cron != nil {
		<-s.Cron.Stop().Done()
	}
}
