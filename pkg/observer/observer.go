package observer

import (
	"context"
	"fmt"
	"time"

	"github.com/augurvault/augur/pkg/vault"
	"github.com/augurvault/augur/pkg/vault/models"
)

// Balance is what an observer reports for one account at one instant.
type Balance struct {
	NativeBalance string
	TokenBalances []models.TokenBalance
	Metadata      map[string]any
}

// Observer reads the current balance of accounts on one chain.
type Observer interface {
	Chain() models.Chain
	FetchSnapshot(ctx context.Context, account models.Account) (Balance, error)
}

// EventQuery scopes one incremental event fetch.
type EventQuery struct {
	Account models.Account
	// Since is the stored cursor; zero means no cursor yet.
	Since time.Time
	// Seen reports whether a dedupe id was already recorded. It must not block.
	Seen func(dedupeID string) bool
}

// Candidate is an event proposed for appending.
type Candidate struct {
	Event models.Event
	// DedupeID is the txid, or txid plus a suffix for companion events.
	DedupeID string
	// Estimated marks a timestamp the source did not report; such events
	// never move the cursor.
	Estimated bool
}

// EventSource is implemented by observers that also normalize transactions.
type EventSource interface {
	FetchEvents(ctx context.Context, q EventQuery) ([]Candidate, error)
}

// SourceError tags err as a source failure while keeping it matchable.
func SourceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", vault.ErrSourceUnavailable, op, err)
}
