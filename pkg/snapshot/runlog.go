package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/augurvault/augur/pkg/vault"
)

// WriteRunLog stores the report under logs/runs/<run_id>.json and appends
// each failure to logs/errors/<yyyy-mm-dd>.jsonl.
func WriteRunLog(layout vault.Layout, r *Report) error {
	if r == nil {
		return nil
	}
	if err := vault.WriteJSONAtomic(filepath.Join(layout.RunLogsDir(), r.RunID+".json"), r); err != nil {
		return fmt.Errorf("write run log: %w", err)
	}
	if len(r.Failures) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, f := range r.Failures {
		line := struct {
			RunID string `json:"run_id"`
			Failure
		}{RunID: r.RunID, Failure: f}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(layout.ErrorLogsDir(), 0o755); err != nil {
		return err
	}
	path := filepath.Join(layout.ErrorLogsDir(), r.StartedAt.UTC().Format("2006-01-02")+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open error log: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("append error log: %w", err)
	}
	return f.Close()
}
