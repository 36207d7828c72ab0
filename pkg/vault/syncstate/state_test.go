package syncstate

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/augurvault/augur/pkg/vault"
	"github.com/augurvault/augur/pkg/vault/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFilesIsEmpty(t *testing.T) {
	f := NewFiles(vault.NewLayout(t.TempDir()))
	s, err := f.Load(context.Background())
	require.NoError(t, err)
	c, d := s.Len()
	assert.Zero(t, c)
	assert.Zero(t, d)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	layout := vault.NewLayout(t.TempDir())
	f := NewFiles(layout)
	ctx := context.Background()

	ts := time.Date(2024, 2, 1, 0, 1, 0, 0, time.UTC)
	s := NewState(nil, nil)
	s.Advance(CursorKey(models.ChainXRPL, "acct_1"), ts)
	s.Mark(DedupeKey(models.ChainXRPL, "acct_1", "TX1"))
	require.NoError(t, f.Save(ctx, s))

	raw, err := os.ReadFile(layout.CursorsPath())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"xrpl:last_ts:acct_1": "2024-02-01T00:01:00Z"`)

	loaded, err := f.Load(ctx)
	require.NoError(t, err)
	got, ok := loaded.Cursor("xrpl:last_ts:acct_1")
	require.True(t, ok)
	assert.True(t, ts.Equal(got))
	assert.True(t, loaded.Seen("xrpl:acct_1:TX1"))
}

func TestCorruptIndexFails(t *testing.T) {
	layout := vault.NewLayout(t.TempDir())
	require.NoError(t, layout.Ensure(context.Background()))
	require.NoError(t, os.WriteFile(layout.DedupePath(), []byte("[1,2"), 0o644))

	_, err := NewFiles(layout).Load(context.Background())
	assert.ErrorIs(t, err, vault.ErrCorrupt)
}

func TestAdvanceIsMonotonic(t *testing.T) {
	s := NewState(nil, nil)
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	assert.True(t, s.Advance("k", t2))
	assert.False(t, s.Advance("k", t1))
	assert.False(t, s.Advance("k", t2))
	got, _ := s.Cursor("k")
	assert.True(t, t2.Equal(got))
}

func TestCloneIsIndependent(t *testing.T) {
	s := NewState(nil, nil)
	s.Mark("a")
	c := s.Clone()
	c.Mark("b")
	assert.False(t, s.Seen("b"))
	assert.True(t, c.Seen("a"))
}

func TestClaim(t *testing.T) {
	s := NewState(nil, nil)

	ran, err := s.Claim("k", func() error { return errors.New("disk full") })
	assert.True(t, ran)
	assert.Error(t, err)
	assert.False(t, s.Seen("k"))

	ran, err = s.Claim("k", func() error { return nil })
	assert.True(t, ran)
	assert.NoError(t, err)

	ran, err = s.Claim("k", func() error { t.Fatal("must not run"); return nil })
	assert.False(t, ran)
	assert.NoError(t, err)
}
