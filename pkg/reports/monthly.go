package reports

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/augurvault/augur/pkg/metrics"
	"github.com/augurvault/augur/pkg/vault"
	"github.com/augurvault/augur/pkg/vault/eventlog"
	"github.com/augurvault/augur/pkg/vault/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AccountLister is the slice of the account store the aggregator reads.
type AccountLister interface {
	List(ctx context.Context) ([]models.Account, error)
}

// Flow is the exact sum of one kind of event in one asset.
type Flow struct {
	Kind    models.EventKind `json:"kind"`
	AssetID string           `json:"asset_id"`
	Amount  string           `json:"amount"`
	Count   int              `json:"count"`
}

type AccountSummary struct {
	AccountID  string        `json:"account_id"`
	Chain      models.Chain  `json:"chain"`
	Label      string        `json:"label"`
	Status     models.Status `json:"status"`
	Flows      []Flow        `json:"flows"`
	TxCount    int           `json:"tx_count"`
	EventCount int           `json:"event_count"`
}

type Totals struct {
	Flows      []Flow `json:"flows"`
	TxCount    int    `json:"tx_count"`
	EventCount int    `json:"event_count"`
	Accounts   int    `json:"accounts"`
}

// Summary is the persisted monthly record.
type Summary struct {
	Month       string           `json:"month"`
	RangeStart  time.Time        `json:"range_start"`
	RangeEnd    time.Time        `json:"range_end"`
	Totals      Totals           `json:"totals"`
	Accounts    []AccountSummary `json:"accounts"`
	GeneratedAt time.Time        `json:"generated_at"`
}

type Options struct {
	Layout   vault.Layout
	Accounts AccountLister
	Log      *eventlog.Log
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// Monthly reduces the event log to per-account and total figures.
type Monthly struct {
	layout   vault.Layout
	accounts AccountLister
	log      *eventlog.Log
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewMonthly(opts Options) *Monthly {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = eventlog.New(opts.Layout, eventlog.WithLogger(opts.Logger))
	}
	return &Monthly{
		layout:   opts.Layout,
		accounts: opts.Accounts,
		log:      opts.Log,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
}

// MonthRange parses YYYY-MM into the half-open UTC range [start, end).
func MonthRange(month string) (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01", month)
	if err != nil || start.Format("2006-01") != month {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: month %q must be YYYY-MM", vault.ErrValidation, month)
	}
	return start, start.AddDate(0, 1, 0), nil
}

// PreviousMonth renders the month before the one containing t, in t's zone.
func PreviousMonth(t time.Time) string {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return first.AddDate(0, -1, 0).Format("2006-01")
}

func (m *Monthly) SummaryPath(month string) string {
	return filepath.Join(m.layout.MonthlyDir(), month, "summary.json")
}

// Generate computes and persists the summary for month. It never writes to
// the event log.
func (m *Monthly) Generate(ctx context.Context, month string) (s *Summary, err error) {
	started := time.Now()
	defer func() { m.metrics.ObserveRun("monthly", started, err) }()

	start, end, err := MonthRange(month)
	if err != nil {
		return nil, err
	}
	all, err := m.accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	s = &Summary{
		Month:      month,
		RangeStart: start,
		RangeEnd:   end,
		Accounts:   []AccountSummary{},
	}
	totals := newFlowSet()
	txids := map[string]struct{}{}

	for _, a := range all {
		if a.Status == models.StatusDeleted {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		acc, err := m.accountSummary(a, month, start, end, totals, txids)
		if err != nil {
			return nil, err
		}
		s.Accounts = append(s.Accounts, acc)
		s.Totals.EventCount += acc.EventCount
	}
	s.Totals.Flows = totals.flows()
	s.Totals.TxCount = len(txids)
	s.Totals.Accounts = len(s.Accounts)
	s.GeneratedAt = m.now().UTC()

	if err := vault.WriteJSONAtomic(m.SummaryPath(month), s); err != nil {
		return nil, fmt.Errorf("write monthly summary: %w", err)
	}
	m.logger.Info("Monthly summary written",
		zap.String("month", month),
		zap.Int("accounts", s.Totals.Accounts),
		zap.Int("events", s.Totals.EventCount),
		zap.Int("txs", s.Totals.TxCount))
	return s, nil
}

func (m *Monthly) accountSummary(a models.Account, month string, start, end time.Time, totals *flowSet, allTx map[string]struct{}) (AccountSummary, error) {
	acc := AccountSummary{
		AccountID: a.AccountID,
		Chain:     a.Chain,
		Label:     a.Label,
		Status:    a.Status,
	}
	flows := newFlowSet()
	txids := map[string]struct{}{}
	seen := map[string]struct{}{}

	for e, err := range m.log.Events(a.Chain, a.AccountID, month) {
		if err != nil {
			return acc, fmt.Errorf("read events of %s: %w", a.AccountID, err)
		}
		if e.TS.Before(start) || !e.TS.Before(end) {
			continue
		}
		// A run interrupted before its state was saved can append an event twice.
		if _, dup := seen[e.EventID]; dup {
			continue
		}
		seen[e.EventID] = struct{}{}

		amount, err := decimal.NewFromString(e.Amount)
		if err != nil {
			m.logger.Warn("Skipping event with unparsable amount",
				zap.String("accountId", a.AccountID),
				zap.String("eventId", e.EventID),
				zap.String("amount", e.Amount))
			continue
		}
		flows.add(e.Kind, e.AssetID, amount)
		totals.add(e.Kind, e.AssetID, amount)
		acc.EventCount++
		if e.TxID != "" {
			txids[e.TxID] = struct{}{}
			allTx[string(a.Chain)+":"+e.TxID] = struct{}{}
		}
	}
	acc.Flows = flows.flows()
	acc.TxCount = len(txids)
	return acc, nil
}

// Load reads a previously generated summary.
func (m *Monthly) Load(month string) (*Summary, error) {
	if _, _, err := MonthRange(month); err != nil {
		return nil, err
	}
	var s Summary
	found, err := vault.ReadJSON(m.SummaryPath(month), &s)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: no summary for %s", vault.ErrNotFound, month)
	}
	return &s, nil
}

type flowKey struct {
	kind  models.EventKind
	asset string
}

type flowSet struct {
	sums   map[flowKey]decimal.Decimal
	counts map[flowKey]int
}

func newFlowSet() *flowSet {
	return &flowSet{sums: map[flowKey]decimal.Decimal{}, counts: map[flowKey]int{}}
}

func (f *flowSet) add(kind models.EventKind, asset string, amount decimal.Decimal) {
	k := flowKey{kind, asset}
	f.sums[k] = f.sums[k].Add(amount)
	f.counts[k]++
}

// flows lists the sums ordered by kind then asset.
func (f *flowSet) flows() []Flow {
	out := make([]Flow, 0, len(f.sums))
	for k, sum := range f.sums {
		out = append(out, Flow{Kind: k.kind, AssetID: k.asset, Amount: sum.String(), Count: f.counts[k]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].AssetID < out[j].AssetID
	})
	return out
}
