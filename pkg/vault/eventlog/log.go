package eventlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/augurvault/augur/pkg/vault"
	"github.com/augurvault/augur/pkg/vault/models"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// Kind selects the record family and its partition granularity.
type Kind string

const (
	KindSnapshots Kind = "snapshots" // daily partitions
	KindEvents    Kind = "events"    // monthly partitions
)

// Log is the append-only record store. Appends to one partition are
// serialized; different partitions proceed in parallel.
type Log struct {
	layout vault.Layout
	locks  *xsync.Map[string, *sync.Mutex]
	logger *zap.Logger
}

type Option func(*Log)

// WithLogger sets the logger used to report skipped torn records.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

func New(layout vault.Layout, opts ...Option) *Log {
	l := &Log{
		layout: layout,
		locks:  xsync.NewMap[string, *sync.Mutex](),
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// DayBucket and MonthBucket render the partition name for a UTC instant.
func DayBucket(ts time.Time) string   { return ts.UTC().Format("2006-01-02") }
func MonthBucket(ts time.Time) string { return ts.UTC().Format("2006-01") }

// PartitionPath resolves a partition file. bucket is yyyy-mm-dd for snapshots
// and yyyy-mm for events.
func (l *Log) PartitionPath(kind Kind, chain models.Chain, accountID, bucket string) (string, error) {
	if err := checkComponent(string(chain)); err != nil {
		return "", err
	}
	if err := checkComponent(accountID); err != nil {
		return "", err
	}
	var layoutFmt string
	var base string
	switch kind {
	case KindSnapshots:
		layoutFmt, base = "2006-01-02", l.layout.SnapshotsDir()
	case KindEvents:
		layoutFmt, base = "2006-01", l.layout.EventsDir()
	default:
		return "", fmt.Errorf("%w: record kind %q", vault.ErrValidation, kind)
	}
	if _, err := time.Parse(layoutFmt, bucket); err != nil {
		return "", fmt.Errorf("%w: bucket %q for %s", vault.ErrValidation, bucket, kind)
	}
	return filepath.Join(base, string(chain), accountID, bucket[:4], bucket+".jsonl"), nil
}

// AppendSnapshot writes snap to the day partition of its timestamp.
func (l *Log) AppendSnapshot(chain models.Chain, accountID string, snap models.Snapshot) error {
	if snap.AccountID != accountID {
		return fmt.Errorf("%w: snapshot account %q does not match %q", vault.ErrValidation, snap.AccountID, accountID)
	}
	path, err := l.PartitionPath(KindSnapshots, chain, accountID, DayBucket(snap.TS))
	if err != nil {
		return err
	}
	return l.append(path, snap)
}

// AppendEvent writes evt to the month partition of its timestamp.
func (l *Log) AppendEvent(chain models.Chain, accountID string, evt models.Event) error {
	if evt.AccountID != accountID {
		return fmt.Errorf("%w: event account %q does not match %q", vault.ErrValidation, evt.AccountID, accountID)
	}
	path, err := l.PartitionPath(KindEvents, chain, accountID, MonthBucket(evt.TS))
	if err != nil {
		return err
	}
	return l.append(path, evt)
}

func (l *Log) append(path string, record any) error {
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}

	mu, _ := l.locks.LoadOrStore(path, &sync.Mutex{})
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return vault.AppendLine(path, line)
}

// ReadRange streams the raw records of one partition in append order. A
// missing partition yields nothing. A truncated record left by an interrupted
// write is skipped with a warning; any other undecodable line yields
// ErrCorrupt and stops the sequence.
func (l *Log) ReadRange(kind Kind, chain models.Chain, accountID, bucket string) iter.Seq2[json.RawMessage, error] {
	path, err := l.PartitionPath(kind, chain, accountID, bucket)
	if err != nil {
		return func(yield func(json.RawMessage, error) bool) { yield(nil, err) }
	}
	return readLines(path, l.logger)
}

// Snapshots decodes the snapshots of one day partition.
func (l *Log) Snapshots(chain models.Chain, accountID, day string) iter.Seq2[models.Snapshot, error] {
	return decode[models.Snapshot](l.ReadRange(KindSnapshots, chain, accountID, day))
}

// Events decodes the events of one month partition.
func (l *Log) Events(chain models.Chain, accountID, month string) iter.Seq2[models.Event, error] {
	return decode[models.Event](l.ReadRange(KindEvents, chain, accountID, month))
}

func readLines(path string, logger *zap.Logger) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		f, err := os.Open(path)
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		if err != nil {
			yield(nil, err)
			return
		}
		defer f.Close()

		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		n := 0
		for sc.Scan() {
			n++
			raw := sc.Bytes()
			if len(strings.TrimSpace(string(raw))) == 0 {
				continue
			}
			if !json.Valid(raw) {
				if torn(raw) {
					logger.Warn("Skipping truncated record",
						zap.String("partition", path),
						zap.Int("line", n))
					continue
				}
				yield(nil, fmt.Errorf("%w: %s line %d", vault.ErrCorrupt, path, n))
				return
			}
			rec := make(json.RawMessage, len(raw))
			copy(rec, raw)
			if !yield(rec, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(nil, fmt.Errorf("%w: %s: %v", vault.ErrCorrupt, path, err))
		}
	}
}

func decode[T any](raw iter.Seq2[json.RawMessage, error]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		for rec, err := range raw {
			if err != nil {
				yield(zero, err)
				return
			}
			var v T
			if err := json.Unmarshal(rec, &v); err != nil {
				yield(zero, fmt.Errorf("%w: %v", vault.ErrCorrupt, err))
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

// torn reports a record cut short by an interrupted write: valid JSON up to
// the point where input ends.
func torn(raw []byte) bool {
	var v json.RawMessage
	err := json.NewDecoder(bytes.NewReader(raw)).Decode(&v)
	return errors.Is(err, io.ErrUnexpectedEOF)
}

// checkComponent rejects values that would escape their partition directory.
func checkComponent(s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) || strings.ContainsRune(s, 0) {
		return fmt.Errorf("%w: invalid path component %q", vault.ErrValidation, s)
	}
	return nil
}
