package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/augurvault/augur/app/runner"
	"github.com/augurvault/augur/pkg/reports"
	"github.com/augurvault/augur/pkg/snapshot"
	"github.com/augurvault/augur/pkg/utils"
	"github.com/augurvault/augur/pkg/vault"
	"github.com/augurvault/augur/pkg/vault/accounts"
	"github.com/augurvault/augur/pkg/vault/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeJobs struct {
	snapshotErr error
	monthly     int
}

func (f *fakeJobs) RunSnapshot(context.Context) (*snapshot.Report, error) {
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	return &snapshot.Report{RunID: "run-1", Total: 1, Active: 1, OK: 1}, nil
}

func (f *fakeJobs) RunMonthly(_ context.Context, month string) (*reports.Summary, error) {
	f.monthly++
	return &reports.Summary{Month: month}, nil
}

type fakeSummaries struct {
	loads int
}

func (f *fakeSummaries) Load(month string) (*reports.Summary, error) {
	f.loads++
	if month != "2024-01" {
		return nil, vault.ErrNotFound
	}
	return &reports.Summary{Month: month}, nil
}

type harness struct {
	handler   http.Handler
	store     *accounts.Store
	jobs      *fakeJobs
	summaries *fakeSummaries
	ctrl      *Controller
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	layout := vault.NewLayout(t.TempDir())
	require.NoError(t, layout.Ensure(ctx))
	store, err := accounts.Open(ctx, accounts.Options{Layout: layout, Logger: logger})
	require.NoError(t, err)

	h := &harness{store: store, jobs: &fakeJobs{}, summaries: &fakeSummaries{}}
	opts.Accounts = store
	opts.Jobs = h.jobs
	opts.Summaries = h.summaries
	opts.Logger = logger
	opts.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("augur_runs_total 0\n"))
	})
	c, err := NewController(opts)
	require.NoError(t, err)
	r, err := c.NewRouter()
	require.NoError(t, err)
	h.ctrl = c
	h.handler = WithCORS([]string{"*"}, r)
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	h := newHarness(t, Options{Token: "secret"})
	rec := h.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "augur_runs_total")
}

func TestRequireAuth(t *testing.T) {
	h := newHarness(t, Options{Token: "secret"})

	rec := h.do(t, http.MethodGet, "/api/accounts", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/api/accounts", nil, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/accounts", nil, map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuthAcceptsBcryptHash(t *testing.T) {
	hash, err := utils.HashOrRead("secret")
	require.NoError(t, err)
	h := newHarness(t, Options{Token: string(hash)})

	rec := h.do(t, http.MethodGet, "/api/accounts", nil, map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAccountLifecycle(t *testing.T) {
	h := newHarness(t, Options{})
	in := map[string]string{
		"type":                  "wallet",
		"chain":                 "evm",
		"label":                 "ops",
		"address_or_identifier": "0xABCDEF0000000000000000000000000000000001",
	}

	rec := h.do(t, http.MethodPost, "/api/accounts", in, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	acct := decode[models.Account](t, rec)
	assert.Equal(t, models.StatusActive, acct.Status)

	rec = h.do(t, http.MethodPost, "/api/accounts", in, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, acct.AccountID, decode[models.Account](t, rec).AccountID)

	rec = h.do(t, http.MethodPost, "/api/accounts/"+acct.AccountID+"/pause", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusPaused, decode[models.Account](t, rec).Status)

	rec = h.do(t, http.MethodPost, "/api/accounts/"+acct.AccountID+"/resume", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusActive, decode[models.Account](t, rec).Status)

	rec = h.do(t, http.MethodPost, "/api/accounts/"+acct.AccountID+"/delete", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	list := decode[struct {
		Accounts []models.Account `json:"accounts"`
	}](t, h.do(t, http.MethodGet, "/api/accounts", nil, nil))
	assert.Empty(t, list.Accounts)

	list = decode[struct {
		Accounts []models.Account `json:"accounts"`
	}](t, h.do(t, http.MethodGet, "/api/accounts?all=1", nil, nil))
	assert.Len(t, list.Accounts, 1)

	rec = h.do(t, http.MethodPost, "/api/accounts/purge", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[accounts.PurgeResult](t, rec).Removed)

	rec = h.do(t, http.MethodGet, "/api/accounts/"+acct.AccountID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t, Options{})

	rec := h.do(t, http.MethodPost, "/api/accounts", map[string]string{"type": "wallet", "chain": "doge", "label": "x", "address_or_identifier": "D1"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/accounts", bytes.NewBufferString("{"))
	out := httptest.NewRecorder()
	h.handler.ServeHTTP(out, req)
	assert.Equal(t, http.StatusBadRequest, out.Code)
}

func TestRunSnapshot(t *testing.T) {
	h := newHarness(t, Options{})
	rec := h.do(t, http.MethodPost, "/api/snapshot", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run-1", decode[snapshot.Report](t, rec).RunID)

	h.jobs.snapshotErr = runner.ErrRunInProgress
	rec = h.do(t, http.MethodPost, "/api/snapshot", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMonthly(t *testing.T) {
	h := newHarness(t, Options{})

	rec := h.do(t, http.MethodPost, "/api/monthly", map[string]string{"month": "2024-13"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, h.jobs.monthly)

	rec = h.do(t, http.MethodPost, "/api/monthly", map[string]string{"month": "2024-02"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, h.jobs.monthly)

	// Served from cache, not from disk.
	rec = h.do(t, http.MethodGet, "/api/monthly/2024-02", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, h.summaries.loads)

	rec = h.do(t, http.MethodGet, "/api/monthly/2024-01", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(t, http.MethodGet, "/api/monthly/2024-01", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, h.summaries.loads)

	h.ctrl.Invalidate("2024-01")
	h.do(t, http.MethodGet, "/api/monthly/2024-01", nil, nil)
	assert.Equal(t, 2, h.summaries.loads)

	rec = h.do(t, http.MethodGet, "/api/monthly/2023-05", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, Options{RateLimit: 0.001, RateBurst: 2})
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/accounts", nil, nil).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, h.do(t, http.MethodGet, "/api/accounts", nil, nil).Code)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/health", nil, nil).Code)
}

func TestWithCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	handler := WithCORS([]string{"https://app.example"}, next)

	req := httptest.NewRequest(http.MethodOptions, "/api/accounts", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRunTimeoutDefault(t *testing.T) {
	c, err := NewController(Options{})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, c.runTimeout)
}
