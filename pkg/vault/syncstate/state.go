package syncstate

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/augurvault/augur/pkg/vault"
	"github.com/augurvault/augur/pkg/vault/models"
)

// Cursors maps "<chain>:last_ts:<account_id>" to the newest instant ingested.
type Cursors map[string]time.Time

// Dedupe is the set of "<chain>:<account_id>:<txid>" keys already recorded.
type Dedupe map[string]bool

func CursorKey(chain models.Chain, accountID string) string {
	return string(chain) + ":last_ts:" + accountID
}

// SnapshotCursorKey tracks the last snapshot appended for an account.
func SnapshotCursorKey(accountID string) string {
	return "snapshot:last_ts:" + accountID
}

func DedupeKey(chain models.Chain, accountID, txid string) string {
	return string(chain) + ":" + accountID + ":" + txid
}

// Files persists cursors and the dedupe index as whole JSON documents.
type Files struct {
	layout vault.Layout
}

func NewFiles(layout vault.Layout) *Files {
	return &Files{layout: layout}
}

func (f *Files) LoadCursors(ctx context.Context) (Cursors, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := Cursors{}
	if _, err := vault.ReadJSON(f.layout.CursorsPath(), &c); err != nil {
		return nil, err
	}
	if c == nil {
		c = Cursors{}
	}
	return c, nil
}

func (f *Files) SaveCursors(ctx context.Context, c Cursors) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c == nil {
		c = Cursors{}
	}
	return vault.WriteJSONAtomic(f.layout.CursorsPath(), c)
}

func (f *Files) LoadDedupe(ctx context.Context) (Dedupe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d := Dedupe{}
	if _, err := vault.ReadJSON(f.layout.DedupePath(), &d); err != nil {
		return nil, err
	}
	if d == nil {
		d = Dedupe{}
	}
	return d, nil
}

func (f *Files) SaveDedupe(ctx context.Context, d Dedupe) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d == nil {
		d = Dedupe{}
	}
	return vault.WriteJSONAtomic(f.layout.DedupePath(), d)
}

// Load reads both documents into a State.
func (f *Files) Load(ctx context.Context) (*State, error) {
	c, err := f.LoadCursors(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cursors: %w", err)
	}
	d, err := f.LoadDedupe(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dedupe: %w", err)
	}
	return NewState(c, d), nil
}

// Save writes both documents. Dedupe goes first: a crash between the two
// writes leaves cursors behind, which only causes a harmless re-scan.
func (f *Files) Save(ctx context.Context, s *State) error {
	c, d := s.Snapshot()
	if err := f.SaveDedupe(ctx, d); err != nil {
		return fmt.Errorf("save dedupe: %w", err)
	}
	if err := f.SaveCursors(ctx, c); err != nil {
		return fmt.Errorf("save cursors: %w", err)
	}
	return nil
}

// State is the in-memory sync state of one run. It is safe for concurrent use.
type State struct {
	mu      sync.Mutex
	cursors Cursors
	dedupe  Dedupe
}

func NewState(c Cursors, d Dedupe) *State {
	if c == nil {
		c = Cursors{}
	}
	if d == nil {
		d = Dedupe{}
	}
	return &State{cursors: c, dedupe: d}
}

// Clone returns an independent copy.
func (s *State) Clone() *State {
	c, d := s.Snapshot()
	return &State{cursors: c, dedupe: d}
}

// Snapshot copies the underlying maps.
func (s *State) Snapshot() (Cursors, Dedupe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.cursors), maps.Clone(s.dedupe)
}

// Cursor returns the stored instant for key, zero when absent.
func (s *State) Cursor(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.cursors[key]
	return ts, ok
}

// Advance moves key forward to ts. Older or equal instants are ignored, so a
// cursor never moves backwards. Reports whether the cursor changed.
func (s *State) Advance(key string, ts time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.cursors[key]; ok && !ts.After(cur) {
		return false
	}
	s.cursors[key] = ts.UTC()
	return true
}

func (s *State) Seen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dedupe[key]
}

// Mark records key. Reports false when it was already present.
func (s *State) Mark(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dedupe[key] {
		return false
	}
	s.dedupe[key] = true
	return true
}

// Claim runs fn while holding the state lock if key has not been seen, and
// marks key when fn succeeds. It reports whether fn ran.
func (s *State) Claim(key string, fn func() error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dedupe[key] {
		return false, nil
	}
	if err := fn(); err != nil {
		return true, err
	}
	s.dedupe[key] = true
	return true, nil
}

// Len returns the cursor and dedupe sizes.
func (s *State) Len() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cursors), len(s.dedupe)
}
