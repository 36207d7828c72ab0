package observer

import (
	"sort"

	"github.com/augurvault/augur/pkg/vault/models"
	"github.com/puzpuzpuz/xsync/v4"
)

// Registry maps chains to observers.
type Registry struct {
	observers *xsync.Map[models.Chain, Observer]
}

func NewRegistry(obs ...Observer) *Registry {
	r := &Registry{observers: xsync.NewMap[models.Chain, Observer]()}
	for _, o := range obs {
		r.Register(o)
	}
	return r
}

// Register installs o for its chain, replacing any previous observer.
func (r *Registry) Register(o Observer) {
	r.observers.Store(o.Chain(), o)
}

func (r *Registry) Get(chain models.Chain) (Observer, bool) {
	return r.observers.Load(chain)
}

// Chains lists the registered chains sorted by name.
func (r *Registry) Chains() []models.Chain {
	out := make([]models.Chain, 0, r.observers.Size())
	r.observers.Range(func(c models.Chain, _ Observer) bool {
		out = append(out, c)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
