package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/augurvault/augur/pkg/reports"
	"github.com/augurvault/augur/pkg/utils"
	"github.com/augurvault/augur/pkg/vault"
	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"
)

// HandleRunSnapshot runs a snapshot cycle synchronously. The run outlives a
// disconnected client so sync state is always saved.
func (c *Controller) HandleRunSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), c.runTimeout)
	defer cancel()
	report, err := c.Jobs.RunSnapshot(ctx)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleRunMonthly renders {"month":"YYYY-MM"}.
func (c *Controller) HandleRunMonthly(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = utils.DrainAndClose(r.Body) }()
	var in struct {
		Month string `json:"month"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		c.writeError(w, r, fmt.Errorf("%w: invalid body: %v", vault.ErrValidation, err))
		return
	}
	if _, _, err := reports.MonthRange(in.Month); err != nil {
		c.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), c.runTimeout)
	defer cancel()
	s, err := c.Jobs.RunMonthly(ctx, in.Month)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	c.Cache.Set(in.Month, s, cache.DefaultExpiration)
	writeJSON(w, http.StatusOK, s)
}

func (c *Controller) HandleGetMonthly(w http.ResponseWriter, r *http.Request) {
	month := mux.Vars(r)["month"]
	if v, ok := c.Cache.Get(month); ok {
		writeJSON(w, http.StatusOK, v)
		return
	}
	s, err := c.Summaries.Load(month)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	c.Cache.Set(month, s, cache.DefaultExpiration)
	writeJSON(w, http.StatusOK, s)
}

// Invalidate drops a cached monthly summary.
func (c *Controller) Invalidate(month string) {
	c.Cache.Delete(month)
}
