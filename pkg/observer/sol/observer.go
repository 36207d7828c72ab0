package sol

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/augurvault/augur/pkg/observer"
	"github.com/augurvault/augur/pkg/rpc"
	"github.com/augurvault/augur/pkg/vault"
	"github.com/augurvault/augur/pkg/vault/models"
)

// invalidParams is the JSON-RPC code for a malformed address.
const invalidParams = -32602

type balanceResult struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value uint64 `json:"value"`
}

// Observer reads SOL balances over Solana JSON-RPC.
type Observer struct {
	client     *rpc.HTTPClient
	commitment string
}

var _ observer.Observer = (*Observer)(nil)

// New uses "finalized" commitment unless another is given.
func New(client *rpc.HTTPClient, commitment string) *Observer {
	if commitment == "" {
		commitment = "finalized"
	}
	return &Observer{client: client, commitment: commitment}
}

func (o *Observer) Chain() models.Chain { return models.ChainSOL }

func (o *Observer) FetchSnapshot(ctx context.Context, acct models.Account) (observer.Balance, error) {
	var res balanceResult
	params := []any{acct.AddressOrIdentifier, map[string]string{"commitment": o.commitment}}
	if err := o.client.CallJSONRPC(ctx, "getBalance", params, &res); err != nil {
		var rpcErr *rpc.JSONRPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == invalidParams {
			return observer.Balance{}, fmt.Errorf("%w: getBalance: %v", vault.ErrValidation, err)
		}
		return observer.Balance{}, observer.SourceError("getBalance", err)
	}
	return observer.Balance{
		NativeBalance: observer.FromBaseUnits(new(big.Int).SetUint64(res.Value), 9),
		TokenBalances: []models.TokenBalance{},
		Metadata: map[string]any{
			"slot":       res.Context.Slot,
			"commitment": o.commitment,
		},
	}, nil
}
