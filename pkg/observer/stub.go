package observer

import (
	"context"

	"github.com/augurvault/augur/pkg/vault/models"
)

// Stub reports a zero balance with a note. It keeps chains that have no
// reader yet visible in the snapshot history.
type Stub struct {
	chain models.Chain
	note  string
}

func NewStub(chain models.Chain, note string) *Stub {
	return &Stub{chain: chain, note: note}
}

func (s *Stub) Chain() models.Chain { return s.chain }

func (s *Stub) FetchSnapshot(ctx context.Context, account models.Account) (Balance, error) {
	if err := ctx.Err(); err != nil {
		return Balance{}, err
	}
	return Balance{
		NativeBalance: "0",
		TokenBalances: []models.TokenBalance{},
		Metadata:      map[string]any{"note": s.note, "chain": string(s.chain)},
	}, nil
}
