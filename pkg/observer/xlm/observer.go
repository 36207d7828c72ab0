package xlm

import (
	"context"
	"net/http"
	"net/url"

	"github.com/augurvault/augur/pkg/observer"
	"github.com/augurvault/augur/pkg/rpc"
	"github.com/augurvault/augur/pkg/vault/models"
)

type horizonBalance struct {
	Balance         string `json:"balance"`
	AssetType       string `json:"asset_type"`
	AssetCode       string `json:"asset_code"`
	AssetIssuer     string `json:"asset_issuer"`
	LiquidityPoolID string `json:"liquidity_pool_id"`
}

type horizonAccount struct {
	ID                 string           `json:"id"`
	Sequence           string           `json:"sequence"`
	LastModifiedLedger uint32           `json:"last_modified_ledger"`
	Balances           []horizonBalance `json:"balances"`
}

// Observer reads Stellar balances from Horizon.
type Observer struct {
	client *rpc.HTTPClient
}

var _ observer.Observer = (*Observer)(nil)

func New(client *rpc.HTTPClient) *Observer {
	return &Observer{client: client}
}

func (o *Observer) Chain() models.Chain { return models.ChainXLM }

// Asset renders a non-native Horizon balance as an asset id.
func Asset(b horizonBalance) string {
	if b.AssetType == "liquidity_pool_shares" {
		return "xlm:pool:" + b.LiquidityPoolID
	}
	return "xlm:" + b.AssetType + ":" + b.AssetCode + ":" + b.AssetIssuer
}

func (o *Observer) FetchSnapshot(ctx context.Context, acct models.Account) (observer.Balance, error) {
	var acc horizonAccount
	err := o.client.GetJSON(ctx, "/accounts/"+url.PathEscape(acct.AddressOrIdentifier), nil, &acc)
	if rpc.IsStatus(err, http.StatusNotFound) {
		return observer.Balance{
			NativeBalance: "0.0000000",
			TokenBalances: []models.TokenBalance{},
			Metadata:      map[string]any{"note": "account not found"},
		}, nil
	}
	if err != nil {
		return observer.Balance{}, observer.SourceError("horizon account", err)
	}

	native := "0.0000000"
	tokens := make([]models.TokenBalance, 0, len(acc.Balances))
	for _, b := range acc.Balances {
		amt, err := observer.NormalizeDecimal(b.Balance)
		if err != nil {
			return observer.Balance{}, err
		}
		if b.AssetType == "native" {
			// Horizon already reports seven decimal places.
			native = b.Balance
			continue
		}
		tokens = append(tokens, models.TokenBalance{AssetID: Asset(b), Amount: amt})
	}
	return observer.Balance{
		NativeBalance: native,
		TokenBalances: tokens,
		Metadata: map[string]any{
			"sequence":             acc.Sequence,
			"last_modified_ledger": acc.LastModifiedLedger,
		},
	}, nil
}
