package redis

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestKey(t *testing.T) {
	c := &Client{prefix: "augur", logger: zaptest.NewLogger(t)}
	assert.Equal(t, "augur:lock:snapshot", c.Key("lock", "snapshot"))
	assert.Equal(t, "augur:runs:completed", c.RunsChannel())
	assert.Equal(t, "x", joinKey("x"))
}

func TestRunCompletedRoundTrip(t *testing.T) {
	in := RunCompleted{Job: "monthly", Month: "2024-01", FinishedAt: time.Date(2024, 2, 1, 7, 0, 0, 0, time.UTC)}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	out, err := ParseRunCompleted(string(b))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = ParseRunCompleted("not json")
	assert.Error(t, err)
}

func TestNilLockRelease(t *testing.T) {
	var l *Lock
	assert.NotPanics(t, func() { l.Release(t.Context()) })
}
