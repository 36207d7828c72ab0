package btc

import (
	"context"
	"math/big"
	"net/http"
	"net/url"

	"github.com/augurvault/augur/pkg/observer"
	"github.com/augurvault/augur/pkg/rpc"
	"github.com/augurvault/augur/pkg/vault/models"
)

type stats struct {
	FundedTxoSum int64 `json:"funded_txo_sum"`
	SpentTxoSum  int64 `json:"spent_txo_sum"`
	TxCount      int64 `json:"tx_count"`
}

type addressInfo struct {
	Address      string `json:"address"`
	ChainStats   stats  `json:"chain_stats"`
	MempoolStats stats  `json:"mempool_stats"`
}

// Observer reads address balances from an Esplora compatible REST API.
type Observer struct {
	client *rpc.HTTPClient
}

var _ observer.Observer = (*Observer)(nil)

func New(client *rpc.HTTPClient) *Observer {
	return &Observer{client: client}
}

func (o *Observer) Chain() models.Chain { return models.ChainBTC }

// FetchSnapshot reports funded minus spent outputs, confirmed plus mempool.
func (o *Observer) FetchSnapshot(ctx context.Context, acct models.Account) (observer.Balance, error) {
	var info addressInfo
	err := o.client.GetJSON(ctx, "/address/"+url.PathEscape(acct.AddressOrIdentifier), nil, &info)
	if rpc.IsStatus(err, http.StatusBadRequest) || rpc.IsStatus(err, http.StatusNotFound) {
		return observer.Balance{
			NativeBalance: "0.00000000",
			TokenBalances: []models.TokenBalance{},
			Metadata:      map[string]any{"note": "account not found"},
		}, nil
	}
	if err != nil {
		return observer.Balance{}, observer.SourceError("esplora address", err)
	}

	confirmed := info.ChainStats.FundedTxoSum - info.ChainStats.SpentTxoSum
	pending := info.MempoolStats.FundedTxoSum - info.MempoolStats.SpentTxoSum
	total := big.NewInt(confirmed + pending)

	return observer.Balance{
		NativeBalance: observer.FromBaseUnits(total, 8),
		TokenBalances: []models.TokenBalance{},
		Metadata: map[string]any{
			"confirmed_sats":   confirmed,
			"unconfirmed_sats": pending,
			"tx_count":         info.ChainStats.TxCount + info.MempoolStats.TxCount,
		},
	}, nil
}
