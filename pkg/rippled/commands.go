package rippled

import (
	"context"
	"encoding/json"
)

// AccountData is the AccountRoot ledger entry subset we read.
type AccountData struct {
	Account  string `json:"Account"`
	Balance  string `json:"Balance"` // drops
	Sequence uint32 `json:"Sequence"`
}

// AccountInfo is the account_info result.
type AccountInfo struct {
	AccountData        AccountData `json:"account_data"`
	LedgerIndex        uint32      `json:"ledger_index"`
	LedgerCurrentIndex uint32      `json:"ledger_current_index"`
	Validated          bool        `json:"validated"`
}

// TrustLine is one account_lines entry.
type TrustLine struct {
	Account  string `json:"account"` // issuer / peer
	Balance  string `json:"balance"`
	Currency string `json:"currency"`
	Limit    string `json:"limit"`
}

// TxRow is one account_tx entry. API v1 servers send tx, v2 servers send
// tx_json plus hash and close_time_iso at the row level.
type TxRow struct {
	Tx           json.RawMessage `json:"tx,omitempty"`
	TxJSON       json.RawMessage `json:"tx_json,omitempty"`
	Meta         json.RawMessage `json:"meta,omitempty"`
	Hash         string          `json:"hash,omitempty"`
	LedgerIndex  uint32          `json:"ledger_index,omitempty"`
	CloseTimeISO string          `json:"close_time_iso,omitempty"`
	Validated    *bool           `json:"validated,omitempty"`
}

// AccountTx is the account_tx result.
type AccountTx struct {
	Account      string          `json:"account"`
	Transactions []TxRow         `json:"transactions"`
	Marker       json.RawMessage `json:"marker,omitempty"`
	Limit        int             `json:"limit"`
}

// AccountInfo reads the validated AccountRoot of account.
func (c *Client) AccountInfo(ctx context.Context, account string) (*AccountInfo, error) {
	var out AccountInfo
	err := c.Request(ctx, "account_info", map[string]any{
		"account":      account,
		"ledger_index": "validated",
		"strict":       true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AccountLines returns every trust line of account, following markers.
func (c *Client) AccountLines(ctx context.Context, account string) ([]TrustLine, error) {
	var all []TrustLine
	var marker json.RawMessage
	for {
		params := map[string]any{
			"account":      account,
			"ledger_index": "validated",
			"limit":        400,
		}
		if len(marker) > 0 {
			params["marker"] = marker
		}
		var page struct {
			Lines  []TrustLine     `json:"lines"`
			Marker json.RawMessage `json:"marker"`
		}
		if err := c.Request(ctx, "account_lines", params, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Lines...)
		if !HasMarker(page.Marker) {
			return all, nil
		}
		marker = page.Marker
	}
}

// AccountTx returns up to limit transactions touching account, newest first,
// across the full validated ledger range. Pass the previous page's marker to
// continue further back.
func (c *Client) AccountTx(ctx context.Context, account string, limit int, marker json.RawMessage) (*AccountTx, error) {
	params := map[string]any{
		"account":          account,
		"ledger_index_min": -1,
		"ledger_index_max": -1,
		"limit":            limit,
		"forward":          false,
	}
	if HasMarker(marker) {
		params["marker"] = marker
	}
	var out AccountTx
	err := c.Request(ctx, "account_tx", params, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// HasMarker reports whether a pagination marker points at another page.
func HasMarker(m json.RawMessage) bool {
	return len(m) > 0 && string(m) != "null"
}
