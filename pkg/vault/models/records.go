package models

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"time"
)

// EventKind classifies a normalized ledger event.
type EventKind string

const (
	KindTransferIn  EventKind = "transfer_in"
	KindTransferOut EventKind = "transfer_out"
	KindFee         EventKind = "fee"
	KindSwap        EventKind = "swap"
	KindMint        EventKind = "mint"
	KindBurn        EventKind = "burn"
	KindAMM         EventKind = "amm"
	KindTrustline   EventKind = "trustline"
	KindReward      EventKind = "reward"
	KindStaking     EventKind = "staking"
	KindUnknown     EventKind = "unknown"
	KindManual      EventKind = "manual"
)

// Transfer reports whether the kind moves value in or out of the account.
func (k EventKind) Transfer() bool {
	return k == KindTransferIn || k == KindTransferOut
}

// TokenBalance is a non-native holding. Amount is an exact decimal string.
type TokenBalance struct {
	AssetID string `json:"asset_id"`
	Amount  string `json:"amount"`
}

// Snapshot is a point-in-time balance observation.
type Snapshot struct {
	SnapshotID    string         `json:"snapshot_id"`
	AccountID     string         `json:"account_id"`
	TS            time.Time      `json:"ts"`
	NativeBalance string         `json:"native_balance"`
	TokenBalances []TokenBalance `json:"token_balances"`
	Metadata      map[string]any `json:"metadata"`
}

// Event is a normalized transaction effect on one account.
type Event struct {
	EventID      string          `json:"event_id"`
	AccountID    string          `json:"account_id"`
	TS           time.Time       `json:"ts"`
	Kind         EventKind       `json:"kind"`
	AssetID      string          `json:"asset_id"`
	Amount       string          `json:"amount"`
	Counterparty string          `json:"counterparty,omitempty"`
	TxID         string          `json:"txid"`
	Memo         string          `json:"memo,omitempty"`
	Tags         []string        `json:"tags"`
	Note         string          `json:"note,omitempty"`
	RawRef       json.RawMessage `json:"raw_ref,omitempty"`
}

func shortHash(s string, n int) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:n]
}

// SnapshotID derives snap_<chain>_<10 hex> from the account and instant.
func SnapshotID(chain Chain, accountID string, ts time.Time) string {
	return "snap_" + string(chain) + "_" + shortHash(accountID+ts.UTC().Format(time.RFC3339Nano), 10)
}

// EventID derives evt_<chain>_<12 hex> from the account and transaction id.
func EventID(chain Chain, accountID, txid string) string {
	return "evt_" + string(chain) + "_" + shortHash(accountID+txid, 12)
}

// AccountID derives acct_<chain>_<12 hex> from an identity key.
func AccountID(chain Chain, identity string) string {
	return "acct_" + string(chain) + "_" + shortHash(identity, 12)
}
