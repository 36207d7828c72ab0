package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/augurvault/augur/pkg/config"
	"github.com/augurvault/augur/pkg/redis"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestApp(t *testing.T, scheduler bool) *App {
	t.Helper()
	cfg := config.FromEnv()
	cfg.VaultPath = t.TempDir()
	cfg.EVM.RPC = "http://127.0.0.1:1"
	cfg.API.Token = ""
	cfg.API.Scheduler = scheduler

	app, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Runner.Close() })
	return app
}

func TestNewWiresServer(t *testing.T) {
	app := newTestApp(t, true)
	require.NotNil(t, app.Scheduler)
	assert.Equal(t, ":8787", app.Server.Addr)

	rec := httptest.NewRecorder()
	app.Server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	app.Server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestNewWithoutScheduler(t *testing.T) {
	app := newTestApp(t, false)
	assert.Nil(t, app.Scheduler)
}

func TestRunCompletedInvalidatesMonthlyCache(t *testing.T) {
	app := newTestApp(t, false)
	app.Controller.Cache.Set("2024-01", "cached", cache.DefaultExpiration)

	app.onRunCompleted(redis.RunCompleted{Job: "snapshot", RunID: "r1"})
	_, ok := app.Controller.Cache.Get("2024-01")
	assert.True(t, ok)

	app.onRunCompleted(redis.RunCompleted{Job: "monthly", Month: "2024-01"})
	_, ok = app.Controller.Cache.Get("2024-01")
	assert.False(t, ok)
}
