package xrpl

import (
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/augurvault/augur/pkg/observer"
	"github.com/augurvault/augur/pkg/rippled"
	"github.com/augurvault/augur/pkg/vault/models"
	"github.com/shopspring/decimal"
)

// rippleEpoch is 2000-01-01T00:00:00Z in unix seconds.
const rippleEpoch = 946684800

const (
	assetXRP            = "xrpl:XRP"
	assetTrustline      = "xrpl:trustline"
	assetUnknown        = "xrpl:unknown"
	assetPaymentUnknown = "xrpl:payment:unknown"

	feeSuffix = ":fee"
)

type memo struct {
	Memo struct {
		MemoData   string `json:"MemoData"`
		MemoType   string `json:"MemoType"`
		MemoFormat string `json:"MemoFormat"`
	} `json:"Memo"`
}

type txFields struct {
	TransactionType string          `json:"TransactionType"`
	Account         string          `json:"Account"`
	Destination     string          `json:"Destination"`
	Amount          json.RawMessage `json:"Amount"`
	DeliverMax      json.RawMessage `json:"DeliverMax"`
	LimitAmount     json.RawMessage `json:"LimitAmount"`
	Fee             string          `json:"Fee"`
	Date            *int64          `json:"date"`
	Hash            string          `json:"hash"`
	DestinationTag  *uint32         `json:"DestinationTag"`
	Memos           []memo          `json:"Memos"`
}

type metaFields struct {
	TransactionResult string          `json:"TransactionResult"`
	DeliveredAmount   json.RawMessage `json:"delivered_amount"`
	DeliveredAmount2  json.RawMessage `json:"DeliveredAmount"`
}

type issuedAmount struct {
	Currency string `json:"currency"`
	Issuer   string `json:"issuer"`
	Value    string `json:"value"`
}

// NormalizeInput is one account_tx page plus the sync position of the account.
type NormalizeInput struct {
	Account  models.Account
	Rows     []rippled.TxRow
	Since    time.Time
	Seen     func(dedupeID string) bool
	StoreRaw bool
	// FetchedAt stands in for rows that carry no timestamp at all.
	FetchedAt time.Time
}

// NormalizeEvents turns account_tx rows into event candidates for one account,
// sorted by timestamp ascending with ties kept in row order. Rows that are
// unvalidated, at or before the cursor, or already recorded are dropped.
// skipped counts rows that could not be read at all: undecodable transaction
// JSON or no hash.
func NormalizeEvents(in NormalizeInput) (cands []observer.Candidate, skipped int) {
	addr := in.Account.AddressOrIdentifier
	seen := in.Seen
	if seen == nil {
		seen = func(string) bool { return false }
	}

	out := make([]observer.Candidate, 0, len(in.Rows))
	for _, row := range in.Rows {
		if row.Validated != nil && !*row.Validated {
			continue
		}

		var tx txFields
		rawTx := row.TxJSON
		if len(rawTx) == 0 {
			rawTx = row.Tx
		}
		if len(rawTx) == 0 || json.Unmarshal(rawTx, &tx) != nil {
			skipped++
			continue
		}
		var meta metaFields
		if len(row.Meta) > 0 {
			// Binary meta (a hex string) carries nothing we can read; leave it zero.
			_ = json.Unmarshal(row.Meta, &meta)
		}

		txid := row.Hash
		if txid == "" {
			txid = tx.Hash
		}
		if txid == "" {
			skipped++
			continue
		}

		ts, estimated := eventTime(row, tx, in.FetchedAt)
		if !estimated && !in.Since.IsZero() && !ts.After(in.Since) {
			continue
		}

		tags := []string{"xrpl", "tx:" + tx.TransactionType}
		if tx.DestinationTag != nil {
			tags = append(tags, "dt:"+strconv.FormatUint(uint64(*tx.DestinationTag), 10))
		}
		var notes []string
		if estimated {
			notes = append(notes, "timestamp unavailable; fetch time used")
		}
		failed := meta.TransactionResult != "" && meta.TransactionResult != "tesSUCCESS"
		if failed {
			tags = append(tags, "failed")
		}

		ref := rawRef(row, txid, rawTx, in.StoreRaw)
		base := models.Event{
			AccountID: in.Account.AccountID,
			TS:        ts,
			TxID:      txid,
			Memo:      decodeMemo(tx.Memos),
			RawRef:    ref,
		}

		if !seen(txid) {
			evt := base
			evt.EventID = models.EventID(models.ChainXRPL, in.Account.AccountID, txid)
			evt.Tags = tags
			classify(&evt, tx, meta, addr, failed, &notes)
			evt.Note = strings.Join(notes, "; ")
			out = append(out, observer.Candidate{Event: evt, DedupeID: txid, Estimated: estimated})
		}

		if tx.Account == addr && tx.Fee != "" && !seen(txid+feeSuffix) {
			if amt, err := observer.FromBaseUnitString(tx.Fee, 6); err == nil && !isZero(amt) {
				fee := base
				fee.EventID = models.EventID(models.ChainXRPL, in.Account.AccountID, txid+feeSuffix)
				fee.Kind = models.KindFee
				fee.AssetID = assetXRP
				fee.Amount = amt
				fee.Tags = append(append([]string{}, tags...), "fee")
				if estimated {
					fee.Note = "timestamp unavailable; fetch time used"
				}
				out = append(out, observer.Candidate{Event: fee, DedupeID: txid + feeSuffix, Estimated: estimated})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Event.TS.Before(out[j].Event.TS) })
	return out, skipped
}

func classify(evt *models.Event, tx txFields, meta metaFields, addr string, failed bool, notes *[]string) {
	switch tx.TransactionType {
	case "Payment":
		switch {
		case tx.Account == addr && tx.Destination == addr:
			evt.Kind = models.KindUnknown
			*notes = append(*notes, "payment to self")
		case tx.Account == addr:
			evt.Kind = models.KindTransferOut
			evt.Counterparty = tx.Destination
		case tx.Destination == addr:
			evt.Kind = models.KindTransferIn
			evt.Counterparty = tx.Account
		default:
			evt.Kind = models.KindUnknown
			evt.Counterparty = tx.Account
			*notes = append(*notes, tx.TransactionType+": does not name this account as source or destination")
		}
		if failed {
			evt.Kind = models.KindUnknown
			evt.AssetID = assetXRP
			evt.Amount = "0"
			*notes = append(*notes, "transaction failed: "+meta.TransactionResult)
			return
		}
		asset, amount, ok := parseAmount(deliveredAmount(tx, meta))
		if !ok {
			evt.AssetID = assetPaymentUnknown
			evt.Amount = "0"
			*notes = append(*notes, "payment amount unsupported")
			return
		}
		evt.AssetID = asset
		evt.Amount = amount
	case "TrustSet":
		evt.Kind = models.KindTrustline
		evt.AssetID = assetTrustline
		evt.Amount = "0"
		var limit issuedAmount
		if json.Unmarshal(tx.LimitAmount, &limit) == nil && limit.Issuer != "" {
			evt.Counterparty = limit.Issuer
			evt.Tags = append(evt.Tags, "currency:"+strings.ToUpper(limit.Currency))
		}
	default:
		evt.Kind = models.KindUnknown
		evt.AssetID = assetUnknown
		evt.Amount = "0"
		*notes = append(*notes, tx.TransactionType)
	}
}

// deliveredAmount prefers what the ledger says arrived over what was requested.
func deliveredAmount(tx txFields, meta metaFields) json.RawMessage {
	for _, cand := range []json.RawMessage{meta.DeliveredAmount, meta.DeliveredAmount2, tx.DeliverMax, tx.Amount} {
		if len(cand) == 0 || string(cand) == "null" || string(cand) == `"unavailable"` {
			continue
		}
		return cand
	}
	return nil
}

// parseAmount understands XRP drops (string or number) and issued currency objects.
func parseAmount(raw json.RawMessage) (asset, amount string, ok bool) {
	if len(raw) == 0 {
		return "", "", false
	}
	var drops string
	if json.Unmarshal(raw, &drops) == nil {
		v, err := observer.FromBaseUnitString(drops, 6)
		if err != nil {
			return "", "", false
		}
		return assetXRP, v, true
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		v, err := observer.FromBaseUnitString(n.String(), 6)
		if err != nil {
			return "", "", false
		}
		return assetXRP, v, true
	}
	var iou issuedAmount
	if json.Unmarshal(raw, &iou) == nil && iou.Currency != "" && iou.Value != "" {
		v, err := observer.NormalizeDecimal(iou.Value)
		if err != nil {
			return "", "", false
		}
		if strings.EqualFold(iou.Currency, "XRP") && iou.Issuer == "" {
			return assetXRP, v, true
		}
		return IOUAsset(iou.Currency, iou.Issuer), v, true
	}
	return "", "", false
}

// IOUAsset is the asset id of an issued currency.
func IOUAsset(currency, issuer string) string {
	return "xrpl:IOU:" + strings.ToUpper(currency) + ":" + issuer
}

func eventTime(row rippled.TxRow, tx txFields, fetchedAt time.Time) (time.Time, bool) {
	if row.CloseTimeISO != "" {
		if ts, err := time.Parse(time.RFC3339, row.CloseTimeISO); err == nil {
			return ts.UTC(), false
		}
	}
	if tx.Date != nil {
		return time.Unix(*tx.Date+rippleEpoch, 0).UTC(), false
	}
	return fetchedAt.UTC(), true
}

func decodeMemo(memos []memo) string {
	for _, m := range memos {
		if m.Memo.MemoData == "" {
			continue
		}
		b, err := hex.DecodeString(m.Memo.MemoData)
		if err != nil || !utf8.Valid(b) {
			return m.Memo.MemoData
		}
		return string(b)
	}
	return ""
}

func rawRef(row rippled.TxRow, txid string, tx json.RawMessage, storeRaw bool) json.RawMessage {
	ref := map[string]any{"hash": txid}
	if row.LedgerIndex != 0 {
		ref["ledger_index"] = row.LedgerIndex
	}
	if storeRaw {
		ref["tx"] = tx
		if len(row.Meta) > 0 {
			ref["meta"] = row.Meta
		}
	}
	b, err := json.Marshal(ref)
	if err != nil {
		return nil
	}
	return b
}

func isZero(v string) bool {
	d, err := decimal.NewFromString(v)
	return err == nil && d.IsZero()
}

// reachesCursor reports whether any row in a newest-first page is at or
// before since, meaning older pages hold nothing new.
func reachesCursor(rows []rippled.TxRow, since time.Time) bool {
	for _, row := range rows {
		var tx txFields
		rawTx := row.TxJSON
		if len(rawTx) == 0 {
			rawTx = row.Tx
		}
		if len(rawTx) > 0 {
			_ = json.Unmarshal(rawTx, &tx)
		}
		ts, estimated := eventTime(row, tx, time.Time{})
		if !estimated && !ts.After(since) {
			return true
		}
	}
	return false
}
