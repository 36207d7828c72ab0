package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()
	assert.Equal(t, 8787, cfg.API.Port)
	assert.Equal(t, int64(1), cfg.EVM.ChainID)
	assert.Equal(t, 200, cfg.XRPL.EventLimit)
	assert.Equal(t, 1, cfg.XRPL.MaxPages)
	assert.Equal(t, 20*time.Second, cfg.ObserverTimeout)
	assert.False(t, cfg.RedisEnabled)
	require.NoError(t, cfg.Validate())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DL_PORT", "9000")
	t.Setenv("DL_VAULT_PATH", "/srv/vault")
	t.Setenv("SNAPSHOT_PARALLELISM", "4")
	t.Setenv("DL_CANOPY_RPC", "http://a:50002,http://b:50002")

	cfg := FromEnv()
	assert.Equal(t, 9000, cfg.API.Port)
	assert.Equal(t, "/srv/vault", cfg.VaultPath)
	assert.Equal(t, 4, cfg.Parallelism)
	assert.Equal(t, []string{"http://a:50002", "http://b:50002"}, cfg.Canopy.RPC)
}

func TestOverlay(t *testing.T) {
	t.Setenv("AUGUR_TEST_EVM_RPC", "https://rpc.example")
	path := filepath.Join(t.TempDir(), "augur.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
observer_timeout: 5s
evm:
  rpc: ${AUGUR_TEST_EVM_RPC}
  tokens:
    - contract: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
      symbol: USDC
      decimals: 6
`), 0o644))

	cfg := FromEnv()
	require.NoError(t, cfg.Overlay(path))
	assert.Equal(t, 5*time.Second, cfg.ObserverTimeout)
	assert.Equal(t, "https://rpc.example", cfg.EVM.RPC)
	assert.Equal(t, int64(1), cfg.EVM.ChainID, "keys absent from the file keep their value")
	require.Len(t, cfg.EVM.Tokens, 1)
	assert.Equal(t, uint8(6), cfg.EVM.Tokens[0].Decimals)
}

func TestValidate(t *testing.T) {
	cfg := FromEnv()
	cfg.Parallelism = 0
	assert.Error(t, cfg.Validate())

	cfg = FromEnv()
	cfg.XRPL.EventLimit = 1000
	assert.Error(t, cfg.Validate())

	cfg = FromEnv()
	cfg.VaultPath = ""
	assert.Error(t, cfg.Validate())
}
