package btc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/augurvault/augur/pkg/rpc"
	"github.com/augurvault/augur/pkg/vault"
	"github.com/augurvault/augur/pkg/vault/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/address/bc1qfunded":
			_ = json.NewEncoder(w).Encode(addressInfo{
				ChainStats:   stats{FundedTxoSum: 150_000_000, SpentTxoSum: 50_000_000, TxCount: 4},
				MempoolStats: stats{FundedTxoSum: 10_000, SpentTxoSum: 0, TxCount: 1},
			})
		case "/address/bad":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("Invalid Bitcoin address"))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	o := New(rpc.NewHTTPWithOpts(rpc.Opts{Endpoints: []string{srv.URL}}))

	bal, err := o.FetchSnapshot(context.Background(), models.Account{AddressOrIdentifier: "bc1qfunded"})
	require.NoError(t, err)
	assert.Equal(t, "1.00010000", bal.NativeBalance)
	assert.Equal(t, int64(5), bal.Metadata["tx_count"])

	bal, err = o.FetchSnapshot(context.Background(), models.Account{AddressOrIdentifier: "bad"})
	require.NoError(t, err)
	assert.Equal(t, "0.00000000", bal.NativeBalance)

	_, err = o.FetchSnapshot(context.Background(), models.Account{AddressOrIdentifier: "down"})
	assert.ErrorIs(t, err, vault.ErrSourceUnavailable)
}
