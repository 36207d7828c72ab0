package rippled

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeRippled answers commands with handler(command, request).
func fakeRippled(t *testing.T, handler func(cmd string, req map[string]any) map[string]any) (*httptest.Server, string) {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req map[string]any
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			resp := handler(req["command"].(string), req)
			resp["id"] = req["id"]
			resp["type"] = "response"
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}))
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClient_AccountInfo(t *testing.T) {
	srv, url := fakeRippled(t, func(cmd string, req map[string]any) map[string]any {
		assert.Equal(t, "account_info", cmd)
		assert.Equal(t, "rAlice", req["account"])
		return map[string]any{"status": "success", "result": map[string]any{
			"account_data": map[string]any{"Account": "rAlice", "Balance": "25000000", "Sequence": 7},
			"ledger_index": 900, "validated": true,
		}}
	})
	defer srv.Close()

	c := NewClient(Options{URL: url, Logger: zaptest.NewLogger(t)})
	defer c.Close()

	info, err := c.AccountInfo(context.Background(), "rAlice")
	require.NoError(t, err)
	assert.Equal(t, "25000000", info.AccountData.Balance)
	assert.Equal(t, uint32(900), info.LedgerIndex)
	assert.True(t, info.Validated)
}

func TestClient_NotFound(t *testing.T) {
	srv, url := fakeRippled(t, func(cmd string, req map[string]any) map[string]any {
		return map[string]any{"status": "error", "error": "actNotFound", "error_code": 19, "error_message": "Account not found."}
	})
	defer srv.Close()

	c := NewClient(Options{URL: url, Logger: zaptest.NewLogger(t)})
	defer c.Close()

	_, err := c.AccountInfo(context.Background(), "rNobody")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestClient_AccountLinesFollowsMarker(t *testing.T) {
	calls := 0
	srv, url := fakeRippled(t, func(cmd string, req map[string]any) map[string]any {
		calls++
		if _, ok := req["marker"]; !ok {
			return map[string]any{"status": "success", "result": map[string]any{
				"lines":  []any{map[string]any{"account": "rIssuer", "balance": "10", "currency": "USD"}},
				"marker": "page2",
			}}
		}
		assert.Equal(t, "page2", req["marker"])
		return map[string]any{"status": "success", "result": map[string]any{
			"lines": []any{map[string]any{"account": "rIssuer2", "balance": "-1.5", "currency": "EUR"}},
		}}
	})
	defer srv.Close()

	c := NewClient(Options{URL: url, Logger: zaptest.NewLogger(t)})
	defer c.Close()

	lines, err := c.AccountLines(context.Background(), "rAlice")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "EUR", lines[1].Currency)
	assert.Equal(t, 2, calls)
}

func TestClient_AccountTx(t *testing.T) {
	srv, url := fakeRippled(t, func(cmd string, req map[string]any) map[string]any {
		assert.Equal(t, "account_tx", cmd)
		assert.EqualValues(t, 200, req["limit"])
		assert.EqualValues(t, -1, req["ledger_index_min"])
		return map[string]any{"status": "success", "result": map[string]any{
			"account": "rAlice",
			"transactions": []any{
				map[string]any{"hash": "H1", "validated": true, "close_time_iso": "2024-01-31T23:59:00Z",
					"tx_json": map[string]any{"TransactionType": "Payment"}, "meta": map[string]any{"TransactionResult": "tesSUCCESS"}},
			},
		}}
	})
	defer srv.Close()

	c := NewClient(Options{URL: url, Logger: zaptest.NewLogger(t)})
	defer c.Close()

	res, err := c.AccountTx(context.Background(), "rAlice", 200, nil)
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)
	row := res.Transactions[0]
	assert.Equal(t, "H1", row.Hash)
	require.NotNil(t, row.Validated)
	assert.True(t, *row.Validated)
	assert.Contains(t, string(row.TxJSON), "Payment")
}

func TestClient_ContextCancelled(t *testing.T) {
	block := make(chan struct{})
	srv, url := fakeRippled(t, func(cmd string, req map[string]any) map[string]any {
		<-block
		return map[string]any{"status": "success", "result": map[string]any{}}
	})
	defer srv.Close()
	defer close(block)

	c := NewClient(Options{URL: url, Logger: zaptest.NewLogger(t)})
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.AccountInfo(ctx, "rSlow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_ClosedRejects(t *testing.T) {
	c := NewClient(Options{URL: "ws://127.0.0.1:1"})
	require.NoError(t, c.Close())
	_, err := c.AccountInfo(context.Background(), "r")
	assert.ErrorIs(t, err, ErrClosed)
}
