package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Version is written into DL_VAULT.json and config/settings.json.
const Version = "1.0.0"

const (
	markerFile   = "DL_VAULT.json"
	settingsFile = "settings.json"
)

// Layout resolves every path inside a vault root.
type Layout struct {
	Root string
}

// NewLayout returns a layout for root, made absolute when possible.
func NewLayout(root string) Layout {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return Layout{Root: root}
}

func (l Layout) Path(parts ...string) string {
	return filepath.Join(append([]string{l.Root}, parts...)...)
}

func (l Layout) ConfigDir() string     { return l.Path("config") }
func (l Layout) AccountsDir() string   { return l.Path("data", "accounts") }
func (l Layout) AssetsDir() string     { return l.Path("data", "assets") }
func (l Layout) SnapshotsDir() string  { return l.Path("data", "snapshots") }
func (l Layout) EventsDir() string     { return l.Path("data", "events") }
func (l Layout) IndexesDir() string    { return l.Path("data", "indexes") }
func (l Layout) MonthlyDir() string    { return l.Path("reports", "monthly") }
func (l Layout) RunLogsDir() string    { return l.Path("logs", "runs") }
func (l Layout) ErrorLogsDir() string  { return l.Path("logs", "errors") }
func (l Layout) TmpDir() string        { return l.Path("tmp") }
func (l Layout) SettingsPath() string  { return filepath.Join(l.ConfigDir(), settingsFile) }
func (l Layout) MarkerPath() string    { return l.Path(markerFile) }
func (l Layout) AccountsJSONL() string { return filepath.Join(l.AccountsDir(), "accounts.jsonl") }
func (l Layout) CursorsPath() string   { return filepath.Join(l.IndexesDir(), "last_seen.json") }
func (l Layout) DedupePath() string    { return filepath.Join(l.IndexesDir(), "tx_dedupe.json") }

func (l Layout) dirs() []string {
	return []string{
		l.ConfigDir(),
		l.AccountsDir(),
		l.AssetsDir(),
		l.SnapshotsDir(),
		l.EventsDir(),
		l.IndexesDir(),
		l.MonthlyDir(),
		l.Path("exports", "json"),
		l.Path("exports", "csv"),
		l.RunLogsDir(),
		l.ErrorLogsDir(),
		l.TmpDir(),
	}
}

// Marker is the content of DL_VAULT.json.
type Marker struct {
	VaultVersion string    `json:"vault_version"`
	CreatedAt    time.Time `json:"created_at"`
}

// Ensure creates the directory tree and seed files of a vault. Existing files
// are never overwritten, so Ensure is safe to call on every start.
func (l Layout) Ensure(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, d := range l.dirs() {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}

	seeds := []struct {
		path string
		body func() ([]byte, error)
	}{
		{l.MarkerPath(), func() ([]byte, error) {
			return json.MarshalIndent(Marker{VaultVersion: Version, CreatedAt: time.Now().UTC()}, "", "  ")
		}},
		{l.SettingsPath(), func() ([]byte, error) { return json.MarshalIndent(DefaultSettings(), "", "  ") }},
		{filepath.Join(l.AssetsDir(), "assets.jsonl"), func() ([]byte, error) { return nil, nil }},
		{l.CursorsPath(), func() ([]byte, error) { return []byte("{}\n"), nil }},
		{l.DedupePath(), func() ([]byte, error) { return []byte("{}\n"), nil }},
	}
	for _, s := range seeds {
		if _, err := os.Stat(s.path); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		b, err := s.body()
		if err != nil {
			return err
		}
		if err := WriteFileAtomic(s.path, b); err != nil {
			return err
		}
	}
	return nil
}

// Exists reports whether root carries a vault marker.
func (l Layout) Exists() bool {
	_, err := os.Stat(l.MarkerPath())
	return err == nil
}
