package controller

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/augurvault/augur/pkg/reports"
	"github.com/augurvault/augur/pkg/snapshot"
	"github.com/augurvault/augur/pkg/utils"
	"github.com/augurvault/augur/pkg/vault/accounts"
	"github.com/augurvault/augur/pkg/vault/models"
	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AccountStore is the registry surface exposed over HTTP.
type AccountStore interface {
	List(ctx context.Context) ([]models.Account, error)
	Get(ctx context.Context, id string) (models.Account, error)
	Register(ctx context.Context, in accounts.RegisterInput) (models.Account, bool, error)
	SetStatus(ctx context.Context, id string, status models.Status) (models.Account, error)
	Purge(ctx context.Context) (accounts.PurgeResult, error)
}

// Jobs triggers runs.
type Jobs interface {
	RunSnapshot(ctx context.Context) (*snapshot.Report, error)
	RunMonthly(ctx context.Context, month string) (*reports.Summary, error)
}

// Summaries reads generated monthly records.
type Summaries interface {
	Load(month string) (*reports.Summary, error)
}

type Options struct {
	Accounts  AccountStore
	Jobs      Jobs
	Summaries Summaries
	Metrics   http.Handler
	Logger    *zap.Logger

	// Token enables bearer auth on /api routes. A bcrypt hash is used as is.
	Token     string
	RateLimit float64
	RateBurst int
	// RunTimeout bounds runs triggered over HTTP.
	RunTimeout time.Duration
}

type Controller struct {
	Accounts  AccountStore
	Jobs      Jobs
	Summaries Summaries
	Metrics   http.Handler
	Logger    *zap.Logger

	// Cache holds monthly summaries keyed by month.
	Cache *cache.Cache

	tokenHash  []byte
	limiter    *rate.Limiter
	runTimeout time.Duration
}

// NewController returns a new controller.
func NewController(opts Options) (*Controller, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	c := &Controller{
		Accounts:   opts.Accounts,
		Jobs:       opts.Jobs,
		Summaries:  opts.Summaries,
		Metrics:    opts.Metrics,
		Logger:     opts.Logger,
		Cache:      cache.New(5*time.Minute, 10*time.Minute),
		runTimeout: opts.RunTimeout,
	}
	if c.runTimeout <= 0 {
		c.runTimeout = time.Hour
	}
	if opts.Token != "" {
		h, err := utils.HashOrRead(opts.Token)
		if err != nil {
			return nil, err
		}
		c.tokenHash = h
	} else {
		opts.Logger.Warn("API_TOKEN is not set, /api routes are unauthenticated")
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c, nil
}

// WithCORS is a middleware that adds CORS headers to the response. An empty
// or "*" allow list accepts any origin.
func WithCORS(allowed []string, next http.Handler) http.Handler {
	anyOrigin := len(allowed) == 0
	set := map[string]bool{}
	for _, o := range allowed {
		if o == "*" {
			anyOrigin = true
		}
		set[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case origin != "" && (anyOrigin || set[origin]):
			w.Header().Set("Access-Control-Allow-Origin", origin)
		case origin == "" && anyOrigin:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodPost+", "+http.MethodOptions)

		// Fast-path the preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireAuth middleware
func (c *Controller) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.tokenHash == nil || c.ValidateToken(r) {
			next.ServeHTTP(w, r)
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	})
}

// ValidateToken checks the bearer token against the configured hash.
func (c *Controller) ValidateToken(r *http.Request) bool {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	return utils.CompareSecret(c.tokenHash, strings.TrimPrefix(authHeader, "Bearer "))
}

// RateLimit rejects requests beyond the configured rate with 429.
func (c *Controller) RateLimit(next http.Handler) http.Handler {
	if c.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.limiter.Allow() {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.Handle("/health", http.HandlerFunc(c.HandleHealth)).Methods(http.MethodGet)
	if c.Metrics != nil {
		r.Handle("/metrics", c.Metrics).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(c.RateLimit, c.RequireAuth)

	api.HandleFunc("/accounts", c.HandleListAccounts).Methods(http.MethodGet)
	api.HandleFunc("/accounts", c.HandleRegisterAccount).Methods(http.MethodPost)
	api.HandleFunc("/accounts/purge", c.HandlePurgeAccounts).Methods(http.MethodPost)
	api.HandleFunc("/accounts/{id}", c.HandleGetAccount).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}/pause", c.statusHandler(models.StatusPaused)).Methods(http.MethodPost)
	api.HandleFunc("/accounts/{id}/resume", c.statusHandler(models.StatusActive)).Methods(http.MethodPost)
	api.HandleFunc("/accounts/{id}/delete", c.statusHandler(models.StatusDeleted)).Methods(http.MethodPost)

	api.HandleFunc("/snapshot", c.HandleRunSnapshot).Methods(http.MethodPost)
	api.HandleFunc("/monthly", c.HandleRunMonthly).Methods(http.MethodPost)
	api.HandleFunc("/monthly/{month}", c.HandleGetMonthly).Methods(http.MethodGet)

	return r, nil
}
