package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLevels(t *testing.T) {
	cases := map[string]bool{
		"debug": true,
		"info":  false,
		"warn":  false,
		"bogus": false,
	}
	for level, debugEnabled := range cases {
		t.Run(level, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", level)
			t.Setenv("LOG_ENCODING", "console")
			l, err := New("augur-test")
			require.NoError(t, err)
			assert.Equal(t, debugEnabled, l.Core().Enabled(zap.DebugLevel))
		})
	}
}

func TestNewCLI(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	l, err := NewCLI("augur-cli")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.InfoLevel))
	assert.True(t, l.Core().Enabled(zap.WarnLevel))
}
