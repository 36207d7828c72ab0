package xrpl

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/augurvault/augur/pkg/observer"
	"github.com/augurvault/augur/pkg/rippled"
	"github.com/augurvault/augur/pkg/vault/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "rAlice1111111111111111111111111111"
	bob   = "rBob22222222222222222222222222222"
	carol = "rCarol333333333333333333333333333"
)

var aliceAcct = models.Account{AccountID: "acct_xrpl_alice", Chain: models.ChainXRPL, AddressOrIdentifier: alice, Status: models.StatusActive}

func boolPtr(b bool) *bool { return &b }

func row(t *testing.T, hash, closeTime string, tx map[string]any, meta map[string]any) rippled.TxRow {
	t.Helper()
	txb, err := json.Marshal(tx)
	require.NoError(t, err)
	var metab json.RawMessage
	if meta != nil {
		metab, err = json.Marshal(meta)
		require.NoError(t, err)
	}
	return rippled.TxRow{TxJSON: txb, Meta: metab, Hash: hash, CloseTimeISO: closeTime, Validated: boolPtr(true), LedgerIndex: 100}
}

func payment(from, to string, amount any) map[string]any {
	return map[string]any{"TransactionType": "Payment", "Account": from, "Destination": to, "Amount": amount, "Fee": "12"}
}

func byKind(cands []observer.Candidate) map[models.EventKind][]models.Event {
	out := map[models.EventKind][]models.Event{}
	for _, c := range cands {
		out[c.Event.Kind] = append(out[c.Event.Kind], c.Event)
	}
	return out
}

func TestNormalize_IncomingXRPPayment(t *testing.T) {
	rows := []rippled.TxRow{
		row(t, "H1", "2024-01-31T23:59:00Z", payment(bob, alice, "1500000"), map[string]any{"TransactionResult": "tesSUCCESS", "delivered_amount": "1500000"}),
	}
	got, _ := NormalizeEvents(NormalizeInput{Account: aliceAcct, Rows: rows, StoreRaw: true})
	require.Len(t, got, 1)
	e := got[0].Event
	assert.Equal(t, models.KindTransferIn, e.Kind)
	assert.Equal(t, "xrpl:XRP", e.AssetID)
	assert.Equal(t, "1.500000", e.Amount)
	assert.Equal(t, bob, e.Counterparty)
	assert.Equal(t, "H1", e.TxID)
	assert.Equal(t, "H1", got[0].DedupeID)
	assert.Equal(t, models.EventID(models.ChainXRPL, aliceAcct.AccountID, "H1"), e.EventID)
	assert.Equal(t, time.Date(2024, 1, 31, 23, 59, 0, 0, time.UTC), e.TS)

	var ref map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(e.RawRef, &ref))
	assert.Contains(t, ref, "tx")
	assert.Contains(t, ref, "meta")
}

func TestNormalize_OutgoingEmitsFee(t *testing.T) {
	rows := []rippled.TxRow{
		row(t, "H2", "2024-02-01T00:01:00Z", payment(alice, bob, "2000000"), map[string]any{"TransactionResult": "tesSUCCESS"}),
	}
	got, _ := NormalizeEvents(NormalizeInput{Account: aliceAcct, Rows: rows})
	require.Len(t, got, 2)
	kinds := byKind(got)
	require.Len(t, kinds[models.KindTransferOut], 1)
	require.Len(t, kinds[models.KindFee], 1)
	assert.Equal(t, "2.000000", kinds[models.KindTransferOut][0].Amount)
	assert.Equal(t, bob, kinds[models.KindTransferOut][0].Counterparty)
	assert.Equal(t, "0.000012", kinds[models.KindFee][0].Amount)
	assert.Equal(t, "H2:fee", got[1].DedupeID)
	assert.NotEqual(t, got[0].Event.EventID, got[1].Event.EventID)
}

func TestNormalize_DeliveredAmountWinsOverAmount(t *testing.T) {
	iou := map[string]any{"currency": "usd", "issuer": carol, "value": "100"}
	delivered := map[string]any{"currency": "usd", "issuer": carol, "value": "99.5"}
	rows := []rippled.TxRow{
		row(t, "H3", "2024-03-01T00:00:00Z", payment(bob, alice, iou), map[string]any{"TransactionResult": "tesSUCCESS", "delivered_amount": delivered}),
	}
	got, _ := NormalizeEvents(NormalizeInput{Account: aliceAcct, Rows: rows})
	require.Len(t, got, 1)
	assert.Equal(t, "xrpl:IOU:USD:"+carol, got[0].Event.AssetID)
	assert.Equal(t, "99.5", got[0].Event.Amount)
}

func TestNormalize_UnavailableDeliveredFallsBack(t *testing.T) {
	rows := []rippled.TxRow{
		row(t, "H4", "2024-03-01T00:00:00Z", payment(bob, alice, "10"), map[string]any{"TransactionResult": "tesSUCCESS", "delivered_amount": "unavailable"}),
	}
	got, _ := NormalizeEvents(NormalizeInput{Account: aliceAcct, Rows: rows})
	require.Len(t, got, 1)
	assert.Equal(t, "0.000010", got[0].Event.Amount)
}

func TestNormalize_UnsupportedAmountShape(t *testing.T) {
	rows := []rippled.TxRow{
		row(t, "H5", "2024-03-01T00:00:00Z", payment(bob, alice, []any{1, 2}), nil),
	}
	got, _ := NormalizeEvents(NormalizeInput{Account: aliceAcct, Rows: rows})
	require.Len(t, got, 1)
	e := got[0].Event
	assert.Equal(t, models.KindTransferIn, e.Kind)
	assert.Equal(t, "xrpl:payment:unknown", e.AssetID)
	assert.Equal(t, "0", e.Amount)
	assert.Contains(t, e.Note, "unsupported")
}

func TestNormalize_TrustSetAndOtherTypes(t *testing.T) {
	trust := map[string]any{"TransactionType": "TrustSet", "Account": alice, "Fee": "0",
		"LimitAmount": map[string]any{"currency": "usd", "issuer": carol, "value": "1000"}}
	offer := map[string]any{"TransactionType": "OfferCreate", "Account": bob, "Fee": "10"}
	rows := []rippled.TxRow{
		row(t, "H6", "2024-03-02T00:00:00Z", trust, nil),
		row(t, "H7", "2024-03-01T00:00:00Z", offer, nil),
	}
	got, _ := NormalizeEvents(NormalizeInput{Account: aliceAcct, Rows: rows})
	require.Len(t, got, 2)

	// Ascending by timestamp.
	assert.Equal(t, "H7", got[0].Event.TxID)
	assert.Equal(t, models.KindUnknown, got[0].Event.Kind)
	assert.Equal(t, "xrpl:unknown", got[0].Event.AssetID)
	assert.Equal(t, "OfferCreate", got[0].Event.Note)

	assert.Equal(t, models.KindTrustline, got[1].Event.Kind)
	assert.Equal(t, "xrpl:trustline", got[1].Event.AssetID)
	assert.Equal(t, carol, got[1].Event.Counterparty)
	assert.Contains(t, got[1].Event.Tags, "currency:USD")
}

func TestNormalize_ThirdPartyPaymentIsUnknown(t *testing.T) {
	rows := []rippled.TxRow{
		row(t, "H8", "2024-03-01T00:00:00Z", payment(bob, carol, "5"), nil),
	}
	got, _ := NormalizeEvents(NormalizeInput{Account: aliceAcct, Rows: rows})
	require.Len(t, got, 1)
	assert.Equal(t, models.KindUnknown, got[0].Event.Kind)
	assert.True(t, strings.HasPrefix(got[0].Event.Note, "Payment"), got[0].Event.Note)
}

func TestNormalize_SameLedgerRowsKeepRowOrder(t *testing.T) {
	const ledger = "2024-03-01T00:00:00Z"
	rows := []rippled.TxRow{
		row(t, "S1", ledger, payment(bob, alice, "1"), nil),
		row(t, "S2", ledger, payment(alice, bob, "2"), nil),
		row(t, "S3", ledger, payment(carol, alice, "3"), nil),
		row(t, "S4", ledger, payment(bob, alice, "4"), nil),
		row(t, "S0", "2024-02-29T23:00:00Z", payment(carol, alice, "5"), nil),
	}
	got, _ := NormalizeEvents(NormalizeInput{Account: aliceAcct, Rows: rows})

	var order []string
	for _, c := range got {
		order = append(order, c.DedupeID)
	}
	assert.Equal(t, []string{"S0", "S1", "S2", "S2:fee", "S3", "S4"}, order)
	assert.Equal(t, models.KindTransferOut, got[2].Event.Kind)
	assert.Equal(t, models.KindFee, got[3].Event.Kind)
}

func TestNormalize_CountsUnreadableRows(t *testing.T) {
	garbled := row(t, "G1", "2024-03-01T00:00:00Z", payment(bob, alice, "1"), nil)
	garbled.TxJSON = json.RawMessage(`"not an object"`)
	noHash := row(t, "", "2024-03-01T00:00:00Z", payment(bob, alice, "1"), nil)
	good := row(t, "OK", "2024-03-01T00:00:00Z", payment(bob, alice, "1"), nil)

	got, skipped := NormalizeEvents(NormalizeInput{Account: aliceAcct, Rows: []rippled.TxRow{garbled, noHash, good}})
	assert.Equal(t, 2, skipped)
	require.Len(t, got, 1)
	assert.Equal(t, "OK", got[0].Event.TxID)
}

func TestNormalize_FailedPaymentKeepsFeeOnly(t *testing.T) {
	rows := []rippled.TxRow{
		row(t, "H9", "2024-03-01T00:00:00Z", payment(alice, bob, "5000000"), map[string]any{"TransactionResult": "tecUNFUNDED_PAYMENT"}),
	}
	got, _ := NormalizeEvents(NormalizeInput{Account: aliceAcct, Rows: rows})
	kinds := byKind(got)
	require.Len(t, kinds[models.KindUnknown], 1)
	assert.Equal(t, "0", kinds[models.KindUnknown][0].Amount)
	assert.Contains(t, kinds[models.KindUnknown][0].Note, "tecUNFUNDED_PAYMENT")
	require.Len(t, kinds[models.KindFee], 1)
}

func TestNormalize_FiltersUnvalidatedCursorAndSeen(t *testing.T) {
	unvalidated := row(t, "U1", "2024-03-05T00:00:00Z", payment(bob, alice, "1"), nil)
	unvalidated.Validated = boolPtr(false)
	rows := []rippled.TxRow{
		unvalidated,
		row(t, "OLD", "2024-03-01T00:00:00Z", payment(bob, alice, "1"), nil),
		row(t, "EQ", "2024-03-02T00:00:00Z", payment(bob, alice, "1"), nil),
		row(t, "SEEN", "2024-03-03T00:00:00Z", payment(bob, alice, "1"), nil),
		row(t, "NEW", "2024-03-04T00:00:00Z", payment(bob, alice, "1"), nil),
	}
	got, _ := NormalizeEvents(NormalizeInput{
		Account: aliceAcct,
		Rows:    rows,
		Since:   time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		Seen:    func(id string) bool { return id == "SEEN" },
	})
	require.Len(t, got, 1)
	assert.Equal(t, "NEW", got[0].Event.TxID)
}

func TestNormalize_TimestampFallbacks(t *testing.T) {
	legacy := payment(bob, alice, "1")
	legacy["date"] = 760000000
	legacy["hash"] = "L1"
	r := row(t, "", "", legacy, nil)
	r.TxJSON, r.Tx = nil, r.TxJSON

	noTime := row(t, "N1", "", payment(bob, alice, "1"), nil)
	fetched := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	got, _ := NormalizeEvents(NormalizeInput{Account: aliceAcct, Rows: []rippled.TxRow{r, noTime}, FetchedAt: fetched})
	require.Len(t, got, 2)
	assert.Equal(t, "L1", got[0].Event.TxID)
	assert.Equal(t, time.Unix(760000000+946684800, 0).UTC(), got[0].Event.TS)
	assert.False(t, got[0].Estimated)

	assert.Equal(t, fetched, got[1].Event.TS)
	assert.True(t, got[1].Estimated)
	assert.Contains(t, got[1].Event.Note, "timestamp unavailable")
}

func TestNormalize_MemoAndDestinationTag(t *testing.T) {
	tx := payment(bob, alice, "1")
	tx["DestinationTag"] = 12345
	tx["Memos"] = []any{map[string]any{"Memo": map[string]any{"MemoData": "696e766f6963652031"}}}
	got, _ := NormalizeEvents(NormalizeInput{Account: aliceAcct, Rows: []rippled.TxRow{row(t, "M1", "2024-03-01T00:00:00Z", tx, nil)}})
	require.Len(t, got, 1)
	assert.Equal(t, "invoice 1", got[0].Event.Memo)
	assert.Contains(t, got[0].Event.Tags, "dt:12345")
}

func TestNormalize_RawRefWithoutPayloads(t *testing.T) {
	got, _ := NormalizeEvents(NormalizeInput{Account: aliceAcct, Rows: []rippled.TxRow{row(t, "R1", "2024-03-01T00:00:00Z", payment(bob, alice, "1"), nil)}})
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"hash":"R1","ledger_index":100}`, string(got[0].Event.RawRef))
}
