package accounts

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/augurvault/augur/pkg/vault"
)

const (
	scanMaxDepth = 3
	scanMaxBytes = 8 << 20
	scanMaxFiles = 500
)

// errStopScan ends the walk once a candidate is found or the budget is spent.
var errStopScan = errors.New("stop scan")

// candidatePaths are checked in order before any scanning.
func candidatePaths(l vault.Layout) []string {
	return []string{
		l.AccountsJSONL(),
		l.Path("data", "accounts.json"),
		l.Path("accounts.json"),
	}
}

// scanSkip are subtrees that hold records, not registries.
var scanSkip = map[string]bool{
	filepath.Join("data", "snapshots"): true,
	filepath.Join("data", "events"):    true,
	filepath.Join("data", "indexes"):   true,
	"reports":                          true,
	"logs":                             true,
	"exports":                          true,
	"tmp":                              true,
	"node_modules":                     true,
	".git":                             true,
}

// discover returns the registry path of an existing vault, or "" when none exists.
// Known locations win; otherwise a bounded scan looks for a file whose content
// carries both account_id and status fields.
func discover(ctx context.Context, l vault.Layout) (string, error) {
	for _, p := range candidatePaths(l) {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	if _, err := os.Stat(l.Root); errors.Is(err, os.ErrNotExist) {
		return "", nil
	}

	found := ""
	visited := 0
	err := filepath.WalkDir(l.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are not fatal for discovery.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rel, relErr := filepath.Rel(l.Root, path)
		if relErr != nil {
			return nil
		}
		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if scanSkip[rel] || strings.Count(rel, string(filepath.Separator)) >= scanMaxDepth {
				return fs.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".json" && ext != ".jsonl" {
			return nil
		}
		visited++
		if visited > scanMaxFiles {
			return errStopScan
		}
		if looksLikeRegistry(path) {
			found = path
			return errStopScan
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopScan) {
		return "", err
	}
	return found, nil
}

func looksLikeRegistry(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 || info.Size() > scanMaxBytes {
		return false
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	if !bytes.Contains(b, []byte(`"account_id"`)) || !bytes.Contains(b, []byte(`"status"`)) {
		return false
	}
	f, err := detectFormat(path)
	if err != nil {
		return false
	}
	if f == formatJSONL {
		_, err = decodeJSONL(path, b)
	} else {
		_, err = decodeDocument(path, b)
	}
	return err == nil
}
