package xrpl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/augurvault/augur/pkg/observer"
	"github.com/augurvault/augur/pkg/rippled"
	"github.com/augurvault/augur/pkg/vault/models"
	"go.uber.org/zap"
)

// Source is the subset of the rippled client the observer needs.
type Source interface {
	AccountInfo(ctx context.Context, account string) (*rippled.AccountInfo, error)
	AccountLines(ctx context.Context, account string) ([]rippled.TrustLine, error)
	AccountTx(ctx context.Context, account string, limit int, marker json.RawMessage) (*rippled.AccountTx, error)
}

// Options configures the XRPL observer.
type Options struct {
	// EventLimit is the account_tx page size.
	EventLimit int
	// MaxPages bounds how far back one run walks when the cursor is not
	// reached on the first page. The default of one page means a burst larger
	// than EventLimit between runs leaves the older transactions unrecorded.
	MaxPages int
	// StoreRaw keeps the full transaction and meta in raw_ref.
	StoreRaw bool
	Logger   *zap.Logger
	Now      func() time.Time
}

type Observer struct {
	src    Source
	opts   Options
	logger *zap.Logger
}

var (
	_ observer.Observer    = (*Observer)(nil)
	_ observer.EventSource = (*Observer)(nil)
)

func New(src Source, opts Options) *Observer {
	if opts.EventLimit <= 0 {
		opts.EventLimit = 200
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Observer{src: src, opts: opts, logger: opts.Logger}
}

func (o *Observer) Chain() models.Chain { return models.ChainXRPL }

// FetchSnapshot reads the XRP balance and every trust line balance. An
// unfunded account reports zero rather than failing.
func (o *Observer) FetchSnapshot(ctx context.Context, acct models.Account) (observer.Balance, error) {
	addr := acct.AddressOrIdentifier
	info, err := o.src.AccountInfo(ctx, addr)
	if rippled.IsNotFound(err) {
		return observer.Balance{
			NativeBalance: "0.000000",
			TokenBalances: []models.TokenBalance{},
			Metadata:      map[string]any{"note": "account not found", "validated": true},
		}, nil
	}
	if err != nil {
		return observer.Balance{}, observer.SourceError("account_info", err)
	}

	native, err := observer.FromBaseUnitString(info.AccountData.Balance, 6)
	if err != nil {
		return observer.Balance{}, fmt.Errorf("account_info balance: %w", err)
	}

	lines, err := o.src.AccountLines(ctx, addr)
	if err != nil {
		return observer.Balance{}, observer.SourceError("account_lines", err)
	}
	tokens := make([]models.TokenBalance, 0, len(lines))
	for _, l := range lines {
		amt, err := observer.NormalizeDecimal(l.Balance)
		if err != nil {
			o.logger.Warn("Skipping unparsable trust line balance",
				zap.String("accountId", acct.AccountID),
				zap.String("currency", l.Currency),
				zap.Error(err))
			continue
		}
		tokens = append(tokens, models.TokenBalance{AssetID: IOUAsset(l.Currency, l.Account), Amount: amt})
	}

	ledger := info.LedgerIndex
	if ledger == 0 {
		ledger = info.LedgerCurrentIndex
	}
	return observer.Balance{
		NativeBalance: native,
		TokenBalances: tokens,
		Metadata: map[string]any{
			"ledger_index": ledger,
			"validated":    info.Validated,
			"sequence":     info.AccountData.Sequence,
		},
	}, nil
}

// FetchEvents walks account_tx pages newest first until it reaches the cursor
// (or runs out of pages) and normalizes the rows against q.
func (o *Observer) FetchEvents(ctx context.Context, q observer.EventQuery) ([]observer.Candidate, error) {
	var rows []rippled.TxRow
	var marker json.RawMessage
	for page := 1; ; page++ {
		res, err := o.src.AccountTx(ctx, q.Account.AddressOrIdentifier, o.opts.EventLimit, marker)
		if rippled.IsNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, observer.SourceError("account_tx", err)
		}
		rows = append(rows, res.Transactions...)
		if !rippled.HasMarker(res.Marker) || (!q.Since.IsZero() && reachesCursor(res.Transactions, q.Since)) {
			break
		}
		if page >= o.opts.MaxPages {
			if o.opts.MaxPages == 1 {
				break
			}
			o.logger.Warn("account_tx page budget spent before reaching the cursor; older transactions are skipped",
				zap.String("accountId", q.Account.AccountID),
				zap.Int("pages", page),
				zap.Time("cursor", q.Since))
			break
		}
		marker = res.Marker
	}
	cands, skipped := NormalizeEvents(NormalizeInput{
		Account:   q.Account,
		Rows:      rows,
		Since:     q.Since,
		Seen:      q.Seen,
		StoreRaw:  o.opts.StoreRaw,
		FetchedAt: o.opts.Now(),
	})
	if skipped > 0 {
		o.opts.Logger.Warn("Skipped unreadable account_tx rows",
			zap.String("accountId", q.Account.AccountID),
			zap.Int("skipped", skipped),
			zap.Int("rows", len(rows)))
	}
	return cands, nil
}
