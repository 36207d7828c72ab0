package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/augurvault/augur/pkg/metrics"
	"github.com/augurvault/augur/pkg/observer"
	"github.com/augurvault/augur/pkg/retry"
	"github.com/augurvault/augur/pkg/vault"
	"github.com/augurvault/augur/pkg/vault/eventlog"
	"github.com/augurvault/augur/pkg/vault/models"
	"github.com/augurvault/augur/pkg/vault/syncstate"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const unsupportedNote = "unsupported chain"

// Options configures an Orchestrator.
type Options struct {
	Registry *observer.Registry
	Log      *eventlog.Log
	Logger   *zap.Logger
	Metrics  *metrics.Metrics

	// Parallelism is the number of accounts processed at once. One keeps
	// strict list order on the wire as well as in the report.
	Parallelism int
	// Timeout bounds each observer call, retries included.
	Timeout time.Duration
	Retry   retry.Config
	Now     func() time.Time
}

// Orchestrator runs snapshot cycles over a set of accounts.
type Orchestrator struct {
	registry *observer.Registry
	log      *eventlog.Log
	logger   *zap.Logger
	metrics  *metrics.Metrics
	opts     Options
}

func New(opts Options) *Orchestrator {
	if opts.Registry == nil {
		opts.Registry = observer.NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.Retry.MaxRetries == 0 {
		opts.Retry = retry.DefaultConfig()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		registry: opts.Registry,
		log:      opts.Log,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		opts:     opts,
	}
}

// Outcome of one account in a cycle.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeFailed      Outcome = "failed"
	OutcomeUnsupported Outcome = "unsupported"
	OutcomeSkipped     Outcome = "skipped"
)

// AccountResult is the per-account line of a Report.
type AccountResult struct {
	AccountID  string       `json:"account_id"`
	Chain      models.Chain `json:"chain"`
	Outcome    Outcome      `json:"outcome"`
	SnapshotID string       `json:"snapshot_id,omitempty"`
	Events     int          `json:"events"`
	Error      string       `json:"error,omitempty"`
}

// Failure describes one account that did not snapshot cleanly.
type Failure struct {
	AccountID string       `json:"account_id"`
	Chain     models.Chain `json:"chain"`
	Label     string       `json:"label,omitempty"`
	Op        string       `json:"op"`
	Error     string       `json:"error"`
	TS        time.Time    `json:"ts"`
}

// Report summarizes a cycle. State carries the cursors and dedupe index as
// they stand after the processed accounts; the caller persists it.
type Report struct {
	RunID       string          `json:"run_id"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	Total       int             `json:"total"`
	Active      int             `json:"active"`
	OK          int             `json:"ok"`
	Failed      int             `json:"failed"`
	Unsupported int             `json:"unsupported"`
	Events      int             `json:"events"`
	Cancelled   bool            `json:"cancelled,omitempty"`
	Accounts    []AccountResult `json:"accounts"`
	Failures    []Failure       `json:"failures"`

	State *syncstate.State `json:"-"`
}

// RunSnapshotCycle snapshots every active account in list order, appending
// one snapshot per account plus any new events, and advancing cursors in a
// copy of state. One account failing never stops the others. When ctx is
// cancelled the cycle stops at the next account boundary and returns the
// partial report together with the context error; accounts that finished are
// fully recorded in the returned state.
func (o *Orchestrator) RunSnapshotCycle(ctx context.Context, accounts []models.Account, state *syncstate.State) (*Report, error) {
	if o.log == nil {
		return nil, errors.New("snapshot: no event log configured")
	}
	if state == nil {
		state = syncstate.NewState(nil, nil)
	}
	started := o.opts.Now().UTC()
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: started,
		Total:     len(accounts),
		Accounts:  []AccountResult{},
		Failures:  []Failure{},
		State:     state.Clone(),
	}

	active := make([]models.Account, 0, len(accounts))
	for _, a := range accounts {
		if a.Active() {
			active = append(active, a)
		}
	}
	report.Active = len(active)

	o.logger.Info("Snapshot cycle started",
		zap.String("runId", report.RunID),
		zap.Int("accounts", report.Total),
		zap.Int("active", report.Active),
		zap.Int("parallelism", o.opts.Parallelism))

	results := make([]accountRun, len(active))
	if o.opts.Parallelism == 1 || len(active) < 2 {
		for i, a := range active {
			if ctx.Err() != nil {
				break
			}
			results[i] = o.runAccount(ctx, a, report.State)
		}
	} else {
		pool := pond.NewPool(o.opts.Parallelism, pond.WithQueueSize(len(active)))
		defer pool.StopAndWait()
		group := pool.NewGroupContext(ctx)
		groupCtx := group.Context()
		for i, a := range active {
			group.Submit(func() {
				if groupCtx.Err() != nil {
					return
				}
				results[i] = o.runAccount(groupCtx, a, report.State)
			})
		}
		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
			o.logger.Warn("Snapshot worker group finished with error", zap.Error(err))
		}
	}

	for _, r := range results {
		if !r.done {
			continue
		}
		report.Accounts = append(report.Accounts, r.result)
		report.Events += r.result.Events
		switch r.result.Outcome {
		case OutcomeOK:
			report.OK++
		case OutcomeUnsupported:
			report.Unsupported++
		case OutcomeFailed:
			report.Failed++
		}
		report.Failures = append(report.Failures, r.failures...)
	}
	report.FinishedAt = o.opts.Now().UTC()

	err := ctx.Err()
	if err != nil {
		report.Cancelled = true
		o.logger.Warn("Snapshot cycle cancelled",
			zap.String("runId", report.RunID),
			zap.Int("processed", len(report.Accounts)),
			zap.Int("active", report.Active))
	}
	o.logger.Info("Snapshot cycle finished",
		zap.String("runId", report.RunID),
		zap.Int("ok", report.OK),
		zap.Int("failed", report.Failed),
		zap.Int("unsupported", report.Unsupported),
		zap.Int("events", report.Events),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)))
	o.metrics.ObserveRun("snapshot", started, err)
	if err != nil {
		return report, fmt.Errorf("snapshot cycle: %w", err)
	}
	return report, nil
}

type accountRun struct {
	done     bool
	result   AccountResult
	failures []Failure
}

func (o *Orchestrator) runAccount(ctx context.Context, a models.Account, state *syncstate.State) accountRun {
	res := AccountResult{AccountID: a.AccountID, Chain: a.Chain}
	run := accountRun{done: true}
	fail := func(op string, err error) {
		run.failures = append(run.failures, Failure{
			AccountID: a.AccountID,
			Chain:     a.Chain,
			Label:     a.Label,
			Op:        op,
			Error:     err.Error(),
			TS:        o.opts.Now().UTC(),
		})
		if res.Error == "" {
			res.Error = err.Error()
		}
		o.logger.Warn("Account snapshot failed",
			zap.String("accountId", a.AccountID),
			zap.String("chain", string(a.Chain)),
			zap.String("op", op),
			zap.Error(err))
	}

	var bal observer.Balance
	obs, ok := o.registry.Get(a.Chain)
	switch {
	case !ok:
		res.Outcome = OutcomeUnsupported
		bal = observer.Balance{
			NativeBalance: "0",
			Metadata:      map[string]any{"note": unsupportedNote, "chain": string(a.Chain)},
		}
	default:
		b, err := o.fetchSnapshot(ctx, obs, a)
		if err != nil {
			res.Outcome = OutcomeFailed
			fail("snapshot", err)
			bal = observer.Balance{
				NativeBalance: "0",
				Metadata:      map[string]any{"status": "error", "error": err.Error()},
			}
			break
		}
		bal = b
		res.Outcome = OutcomeOK

		if src, ok := obs.(observer.EventSource); ok {
			n, err := o.syncEvents(ctx, src, a, state)
			res.Events = n
			if err != nil {
				res.Outcome = OutcomeFailed
				fail("events", err)
				bal.Metadata = withKey(bal.Metadata, "events_error", err.Error())
			}
		}
	}

	snapID, err := o.appendSnapshot(a, bal, state)
	if err != nil {
		res.Outcome = OutcomeFailed
		fail("append_snapshot", err)
	}
	res.SnapshotID = snapID
	o.metrics.Account(string(a.Chain), string(res.Outcome))
	run.result = res
	return run
}

func (o *Orchestrator) fetchSnapshot(ctx context.Context, obs observer.Observer, a models.Account) (observer.Balance, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	start := time.Now()
	defer func() { o.metrics.ObserverCall(string(a.Chain), "snapshot", time.Since(start)) }()

	var bal observer.Balance
	err := retry.WithBackoff(ctx, o.opts.Retry, o.logger, "snapshot "+a.AccountID, func() error {
		b, err := obs.FetchSnapshot(ctx, a)
		if err != nil {
			return retryable(err)
		}
		bal = b
		return nil
	})
	return bal, err
}

// syncEvents fetches events past the account cursor, appends the unseen ones
// and advances the cursor to the newest appended timestamp.
func (o *Orchestrator) syncEvents(ctx context.Context, src observer.EventSource, a models.Account, state *syncstate.State) (int, error) {
	cursorKey := syncstate.CursorKey(a.Chain, a.AccountID)
	since, _ := state.Cursor(cursorKey)

	fetchCtx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()
	start := time.Now()
	var cands []observer.Candidate
	err := retry.WithBackoff(fetchCtx, o.opts.Retry, o.logger, "events "+a.AccountID, func() error {
		c, err := src.FetchEvents(fetchCtx, observer.EventQuery{
			Account: a,
			Since:   since,
			Seen: func(id string) bool {
				return state.Seen(syncstate.DedupeKey(a.Chain, a.AccountID, id))
			},
		})
		if err != nil {
			return retryable(err)
		}
		cands = c
		return nil
	})
	o.metrics.ObserverCall(string(a.Chain), "events", time.Since(start))
	if err != nil {
		return 0, err
	}

	var (
		appended int
		newest   time.Time
	)
	for _, c := range cands {
		key := syncstate.DedupeKey(a.Chain, a.AccountID, c.DedupeID)
		ran, err := state.Claim(key, func() error {
			return o.log.AppendEvent(a.Chain, a.AccountID, c.Event)
		})
		if err != nil {
			// Cursor stays where the last durable event put it.
			o.advance(state, cursorKey, newest)
			return appended, fmt.Errorf("append event %s: %w", c.Event.EventID, err)
		}
		if !ran {
			continue
		}
		appended++
		o.metrics.Event(string(a.Chain), string(c.Event.Kind))
		if !c.Estimated && c.Event.TS.After(newest) {
			newest = c.Event.TS
		}
	}
	o.advance(state, cursorKey, newest)
	if appended > 0 {
		o.logger.Debug("Events appended",
			zap.String("accountId", a.AccountID),
			zap.Int("count", appended),
			zap.Time("cursor", newest))
	}
	return appended, nil
}

func (o *Orchestrator) advance(state *syncstate.State, key string, ts time.Time) {
	if ts.IsZero() {
		return
	}
	state.Advance(key, ts)
}

func (o *Orchestrator) appendSnapshot(a models.Account, bal observer.Balance, state *syncstate.State) (string, error) {
	ts := o.opts.Now().UTC()
	tokens := bal.TokenBalances
	if tokens == nil {
		tokens = []models.TokenBalance{}
	}
	meta := bal.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	snap := models.Snapshot{
		SnapshotID:    models.SnapshotID(a.Chain, a.AccountID, ts),
		AccountID:     a.AccountID,
		TS:            ts,
		NativeBalance: bal.NativeBalance,
		TokenBalances: tokens,
		Metadata:      meta,
	}
	if err := o.log.AppendSnapshot(a.Chain, a.AccountID, snap); err != nil {
		return "", err
	}
	state.Advance(syncstate.SnapshotCursorKey(a.AccountID), ts)
	return snap.SnapshotID, nil
}

// retryable marks validation failures as permanent; everything else gets
// another attempt.
func retryable(err error) error {
	if errors.Is(err, vault.ErrValidation) || errors.Is(err, vault.ErrUnsupportedChain) {
		return retry.Permanent(err)
	}
	return err
}

func withKey(m map[string]any, k string, v any) map[string]any {
	if m == nil {
		m = map[string]any{}
	}
	m[k] = v
	return m
}
