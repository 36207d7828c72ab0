package controller

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/augurvault/augur/pkg/utils"
	"github.com/augurvault/augur/pkg/vault"
	"github.com/augurvault/augur/pkg/vault/accounts"
	"github.com/augurvault/augur/pkg/vault/models"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

// HandleListAccounts returns non-deleted accounts, or every row with ?all=1.
func (c *Controller) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	all, err := c.Accounts.List(r.Context())
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("all") != "1" {
		visible := all[:0:0]
		for _, a := range all {
			if a.Status != models.StatusDeleted {
				visible = append(visible, a)
			}
		}
		all = visible
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": all})
}

func (c *Controller) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := c.Accounts.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// HandleRegisterAccount answers 201 for a new account and 200 when the
// identity was already registered.
func (c *Controller) HandleRegisterAccount(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = utils.DrainAndClose(r.Body) }()
	var in accounts.RegisterInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&in); err != nil {
		c.writeError(w, r, fmt.Errorf("%w: invalid body: %v", vault.ErrValidation, err))
		return
	}
	a, created, err := c.Accounts.Register(r.Context(), in)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, a)
}

func (c *Controller) statusHandler(status models.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := c.Accounts.SetStatus(r.Context(), mux.Vars(r)["id"], status)
		if err != nil {
			c.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func (c *Controller) HandlePurgeAccounts(w http.ResponseWriter, r *http.Request) {
	res, err := c.Accounts.Purge(r.Context())
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
