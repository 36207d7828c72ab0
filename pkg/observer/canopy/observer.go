package canopy

import (
	"context"
	"math/big"

	"github.com/augurvault/augur/pkg/observer"
	"github.com/augurvault/augur/pkg/rpc"
	"github.com/augurvault/augur/pkg/vault/models"
)

// Observer reads CNPY balances through the Canopy RPC.
type Observer struct {
	client rpc.Client
}

var _ observer.Observer = (*Observer)(nil)

func New(client rpc.Client) *Observer {
	return &Observer{client: client}
}

func (o *Observer) Chain() models.Chain { return models.ChainCanopy }

// FetchSnapshot pins the query to the current head so the height in the
// metadata matches the balance.
func (o *Observer) FetchSnapshot(ctx context.Context, acct models.Account) (observer.Balance, error) {
	height, err := o.client.ChainHead(ctx)
	if err != nil {
		return observer.Balance{}, observer.SourceError("canopy height", err)
	}
	acc, err := o.client.Account(ctx, acct.AddressOrIdentifier, height)
	if err != nil {
		return observer.Balance{}, observer.SourceError("canopy account", err)
	}
	return observer.Balance{
		NativeBalance: observer.FromBaseUnits(new(big.Int).SetUint64(acc.Amount), 6),
		TokenBalances: []models.TokenBalance{},
		Metadata:      map[string]any{"height": height},
	}, nil
}
