package accounts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/augurvault/augur/pkg/vault"
	"github.com/augurvault/augur/pkg/vault/models"
	"go.uber.org/zap"
)

// format is the on-disk encoding of the registry file.
type format int

const (
	formatJSONL    format = iota // one account per line
	formatArray                  // [ {...}, {...} ]
	formatDocument               // {"accounts": [...], ...}
)

func (f format) String() string {
	switch f {
	case formatArray:
		return "json-array"
	case formatDocument:
		return "json-document"
	default:
		return "jsonl"
	}
}

// Options configures a Store.
type Options struct {
	Layout vault.Layout
	// Path pins the registry file and disables discovery.
	Path   string
	Logger *zap.Logger
	Now    func() time.Time
}

// Store is the account registry. All mutations happen under an exclusive
// lock; rewrites go through a temp file and rename.
type Store struct {
	mu     sync.RWMutex
	layout vault.Layout
	pinned string
	path   string
	format format
	logger *zap.Logger
	now    func() time.Time
}

// RegisterInput is the caller supplied part of a new account.
type RegisterInput struct {
	Type                string `json:"type"`
	Chain               string `json:"chain"`
	Label               string `json:"label"`
	AddressOrIdentifier string `json:"address_or_identifier"`
	Network             string `json:"network,omitempty"`
}

// PurgeResult reports row counts around a purge.
type PurgeResult struct {
	Before  int `json:"before"`
	After   int `json:"after"`
	Removed int `json:"removed"`
}

func New(opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		layout: opts.Layout,
		pinned: opts.Path,
		logger: opts.Logger,
		now:    opts.Now,
	}
}

// Open builds a Store and runs Ensure.
func Open(ctx context.Context, opts Options) (*Store, error) {
	s := New(opts)
	if err := s.Ensure(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Path is the registry file in use, empty before Ensure.
func (s *Store) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// Ensure locates the registry or creates an empty JSONL one. It never
// truncates an existing file.
func (s *Store) Ensure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path != "" {
		return nil
	}

	path := s.pinned
	if path == "" {
		found, err := discover(ctx, s.layout)
		if err != nil {
			return err
		}
		path = found
	}
	if path == "" {
		path = s.layout.AccountsJSONL()
	}

	f, err := detectFormat(path)
	if errors.Is(err, os.ErrNotExist) {
		if werr := vault.WriteFileAtomic(path, nil); werr != nil {
			return fmt.Errorf("create account store: %w", werr)
		}
		f = formatFromName(path)
		err = nil
	}
	if err != nil {
		return err
	}

	s.path = path
	s.format = f
	s.logger.Info("Account store ready",
		zap.String("path", path),
		zap.String("format", f.String()))
	return nil
}

// List returns every account in file order, deleted ones included.
func (s *Store) List(ctx context.Context) ([]models.Account, error) {
	if err := s.Ensure(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read()
}

// Get returns one account by id.
func (s *Store) Get(ctx context.Context, id string) (models.Account, error) {
	all, err := s.List(ctx)
	if err != nil {
		return models.Account{}, err
	}
	for _, a := range all {
		if a.AccountID == id {
			return a, nil
		}
	}
	return models.Account{}, fmt.Errorf("%w: account %s", vault.ErrNotFound, id)
}

// Register creates an account or returns the existing one with the same
// identity. created is false when an existing account is returned. An
// identity that is currently deleted is rejected until it is resumed or purged.
func (s *Store) Register(ctx context.Context, in RegisterInput) (models.Account, bool, error) {
	acct, err := s.prepare(in)
	if err != nil {
		return models.Account{}, false, err
	}
	if err := s.Ensure(ctx); err != nil {
		return models.Account{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.read()
	if err != nil {
		return models.Account{}, false, err
	}
	key := IdentityKey(acct.Chain, acct.Network, acct.AddressOrIdentifier)
	for _, existing := range all {
		if IdentityKey(existing.Chain, existing.Network, existing.AddressOrIdentifier) != key {
			continue
		}
		if existing.Status == models.StatusDeleted {
			return models.Account{}, false, fmt.Errorf("%w: account %s with this identity is deleted; resume or purge it first",
				vault.ErrValidation, existing.AccountID)
		}
		return existing, false, nil
	}

	acct.AccountID = models.AccountID(acct.Chain, key)
	acct.CreatedAt = s.now().UTC()
	acct.Status = models.StatusActive

	if s.format == formatJSONL {
		err = appendLine(s.path, acct)
	} else {
		err = s.rewrite(append(all, acct))
	}
	if err != nil {
		return models.Account{}, false, fmt.Errorf("persist account: %w", err)
	}

	s.logger.Info("Account registered",
		zap.String("accountId", acct.AccountID),
		zap.String("chain", string(acct.Chain)))
	return acct, true, nil
}

// SetStatus moves an account to status. Repeating the current status is a no-op.
func (s *Store) SetStatus(ctx context.Context, id string, status models.Status) (models.Account, error) {
	if !status.Valid() {
		return models.Account{}, fmt.Errorf("%w: status %q", vault.ErrValidation, status)
	}
	if err := s.Ensure(ctx); err != nil {
		return models.Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.read()
	if err != nil {
		return models.Account{}, err
	}
	idx := -1
	for i := range all {
		if all[i].AccountID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.Account{}, fmt.Errorf("%w: account %s", vault.ErrNotFound, id)
	}
	if all[idx].Status == status {
		return all[idx], nil
	}

	prev := all[idx].Status
	all[idx].Status = status
	if err := s.rewrite(all); err != nil {
		return models.Account{}, fmt.Errorf("persist status: %w", err)
	}
	s.logger.Info("Account status changed",
		zap.String("accountId", id),
		zap.String("from", string(prev)),
		zap.String("to", string(status)))
	return all[idx], nil
}

// Purge physically removes deleted accounts.
func (s *Store) Purge(ctx context.Context) (PurgeResult, error) {
	if err := s.Ensure(ctx); err != nil {
		return PurgeResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.read()
	if err != nil {
		return PurgeResult{}, err
	}
	kept := make([]models.Account, 0, len(all))
	for _, a := range all {
		if a.Status != models.StatusDeleted {
			kept = append(kept, a)
		}
	}
	res := PurgeResult{Before: len(all), After: len(kept), Removed: len(all) - len(kept)}
	if res.Removed == 0 {
		return res, nil
	}
	if err := s.rewrite(kept); err != nil {
		return PurgeResult{}, fmt.Errorf("persist purge: %w", err)
	}
	s.logger.Info("Purged deleted accounts", zap.Int("removed", res.Removed))
	return res, nil
}

func (s *Store) prepare(in RegisterInput) (models.Account, error) {
	t, ok := models.ParseAccountType(in.Type)
	if !ok {
		return models.Account{}, fmt.Errorf("%w: type %q", vault.ErrValidation, in.Type)
	}
	chain := models.Chain(strings.TrimSpace(strings.ToLower(in.Chain)))
	if !chain.Valid() {
		return models.Account{}, fmt.Errorf("%w: chain %q", vault.ErrValidation, in.Chain)
	}
	label := strings.TrimSpace(in.Label)
	if label == "" {
		return models.Account{}, fmt.Errorf("%w: label is required", vault.ErrValidation)
	}
	addr := NormalizeAddress(chain, in.AddressOrIdentifier)
	if addr == "" {
		return models.Account{}, fmt.Errorf("%w: address_or_identifier is required", vault.ErrValidation)
	}
	return models.Account{
		Type:                t,
		Chain:               chain,
		Label:               label,
		AddressOrIdentifier: addr,
		Network:             normalizeNetwork(in.Network),
	}, nil
}

// read loads the registry. Callers hold s.mu.
func (s *Store) read() ([]models.Account, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []models.Account{}, nil
	}
	if err != nil {
		return nil, err
	}
	if s.format == formatJSONL {
		return decodeJSONL(s.path, b)
	}
	return decodeDocument(s.path, b)
}

// rewrite replaces the registry content keeping its format. Callers hold s.mu.
func (s *Store) rewrite(all []models.Account) error {
	var buf bytes.Buffer
	switch s.format {
	case formatJSONL:
		enc := json.NewEncoder(&buf)
		for _, a := range all {
			if err := enc.Encode(a); err != nil {
				return err
			}
		}
	case formatArray:
		b, err := json.MarshalIndent(all, "", "  ")
		if err != nil {
			return err
		}
		buf.Write(b)
		buf.WriteByte('\n')
	case formatDocument:
		doc := map[string]json.RawMessage{}
		if existing, err := os.ReadFile(s.path); err == nil && len(bytes.TrimSpace(existing)) > 0 {
			if err := json.Unmarshal(existing, &doc); err != nil {
				return fmt.Errorf("%w: %s: %v", vault.ErrCorrupt, s.path, err)
			}
		}
		rows, err := json.Marshal(all)
		if err != nil {
			return err
		}
		doc["accounts"] = rows
		b, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return err
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}
	return vault.WriteFileAtomic(s.path, buf.Bytes())
}

func appendLine(path string, a models.Account) error {
	line, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return vault.AppendLine(path, line)
}

func decodeJSONL(path string, b []byte) ([]models.Account, error) {
	out := make([]models.Account, 0)
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var a models.Account
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", vault.ErrCorrupt, path, line, err)
		}
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", vault.ErrCorrupt, path, line, err)
		}
		out = append(out, a)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", vault.ErrCorrupt, path, err)
	}
	return out, nil
}

func decodeDocument(path string, b []byte) ([]models.Account, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return []models.Account{}, nil
	}
	var rows []models.Account
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", vault.ErrCorrupt, path, err)
		}
	case '{':
		var doc struct {
			Accounts []models.Account `json:"accounts"`
		}
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", vault.ErrCorrupt, path, err)
		}
		rows = doc.Accounts
	default:
		return nil, fmt.Errorf("%w: %s: unexpected document start %q", vault.ErrCorrupt, path, trimmed[0])
	}
	for i, a := range rows {
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s entry %d: %v", vault.ErrCorrupt, path, i, err)
		}
	}
	if rows == nil {
		rows = []models.Account{}
	}
	return rows, nil
}

// detectFormat inspects an existing file. JSONL files are recognized by
// extension; .json files by their first significant byte.
func detectFormat(path string) (format, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return formatJSONL, err
	}
	if strings.HasSuffix(path, ".jsonl") {
		return formatJSONL, nil
	}
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return formatFromName(path), nil
	}
	switch trimmed[0] {
	case '[':
		return formatArray, nil
	case '{':
		// Several objects back to back is JSONL written under a .json name.
		var doc map[string]json.RawMessage
		if json.Unmarshal(trimmed, &doc) == nil {
			if _, ok := doc["accounts"]; ok {
				return formatDocument, nil
			}
		}
		return formatJSONL, nil
	}
	return formatJSONL, fmt.Errorf("%w: %s: unrecognized account store", vault.ErrCorrupt, path)
}

func formatFromName(path string) format {
	if strings.HasSuffix(path, ".json") {
		return formatDocument
	}
	return formatJSONL
}
