// Package config loads process configuration from the environment, an
// optional .env file and an optional YAML overlay.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/augurvault/augur/pkg/observer/evm"
	"github.com/augurvault/augur/pkg/utils"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type XRPLConfig struct {
	WS         string `yaml:"ws"`
	EventLimit int    `yaml:"event_limit"`
	MaxPages   int    `yaml:"max_pages"`
}

type EVMConfig struct {
	RPC     string      `yaml:"rpc"`
	ChainID int64       `yaml:"chain_id"`
	Tokens  []evm.Token `yaml:"tokens"`
}

type BTCConfig struct {
	APIBase string `yaml:"api_base"`
}

type SOLConfig struct {
	RPC        string `yaml:"rpc"`
	Commitment string `yaml:"commitment"`
}

type XLMConfig struct {
	Horizon string `yaml:"horizon"`
}

type CanopyConfig struct {
	RPC []string `yaml:"rpc"`
}

type APIConfig struct {
	Port        int      `yaml:"port"`
	Token       string   `yaml:"token"`
	RateLimit   float64  `yaml:"rate_limit"`
	RateBurst   int      `yaml:"rate_burst"`
	CORSOrigins []string `yaml:"cors_origins"`
	Scheduler   bool     `yaml:"scheduler"`
}

// Config is everything a process needs to open a vault and reach the chains.
type Config struct {
	VaultPath string `yaml:"vault_path"`
	// AccountsFile pins the registry location and disables discovery.
	AccountsFile string `yaml:"accounts_file"`

	Parallelism     int           `yaml:"parallelism"`
	ObserverTimeout time.Duration `yaml:"observer_timeout"`
	ObserverRetries int           `yaml:"observer_retries"`

	XRPL   XRPLConfig   `yaml:"xrpl"`
	EVM    EVMConfig    `yaml:"evm"`
	BTC    BTCConfig    `yaml:"btc"`
	SOL    SOLConfig    `yaml:"sol"`
	XLM    XLMConfig    `yaml:"xlm"`
	Canopy CanopyConfig `yaml:"canopy"`
	API    APIConfig    `yaml:"api"`

	RedisEnabled bool `yaml:"redis_enabled"`
}

// Load reads .env (when present) and the environment, then applies the YAML
// file named by CONFIG_FILE on top.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := FromEnv()
	if path := utils.Env("CONFIG_FILE", ""); path != "" {
		if err := cfg.Overlay(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a Config from environment variables and defaults.
func FromEnv() *Config {
	return &Config{
		VaultPath:       utils.Env("DL_VAULT_PATH", "./vault/sample_vault"),
		AccountsFile:    utils.Env("DL_ACCOUNTS_FILE", ""),
		Parallelism:     utils.EnvInt("SNAPSHOT_PARALLELISM", 1),
		ObserverTimeout: utils.EnvDuration("OBSERVER_TIMEOUT", 20*time.Second),
		ObserverRetries: utils.EnvInt("OBSERVER_RETRIES", 2),
		XRPL: XRPLConfig{
			WS:         utils.Env("DL_XRPL_WS", "wss://xrplcluster.com"),
			EventLimit: utils.EnvInt("XRPL_EVENT_LIMIT", 200),
			MaxPages:   utils.EnvInt("XRPL_MAX_PAGES", 1),
		},
		EVM: EVMConfig{
			RPC:     utils.Env("DL_EVM_RPC", "https://ethereum.publicnode.com"),
			ChainID: utils.EnvInt64("DL_EVM_CHAIN_ID", 1),
		},
		BTC: BTCConfig{APIBase: utils.Env("DL_BTC_API_BASE", "https://blockstream.info/api")},
		SOL: SOLConfig{
			RPC:        utils.Env("DL_SOL_RPC", "https://api.mainnet-beta.solana.com"),
			Commitment: utils.Env("DL_SOL_COMMITMENT", "finalized"),
		},
		XLM:    XLMConfig{Horizon: utils.Env("DL_XLM_HORIZON", "https://horizon.stellar.org")},
		Canopy: CanopyConfig{RPC: utils.EnvList("DL_CANOPY_RPC", nil)},
		API: APIConfig{
			Port:        utils.EnvInt("DL_PORT", 8787),
			Token:       utils.Env("API_TOKEN", ""),
			RateLimit:   float64(utils.EnvInt("API_RATE_LIMIT", 20)),
			RateBurst:   utils.EnvInt("API_RATE_BURST", 40),
			CORSOrigins: utils.EnvList("API_CORS_ORIGINS", []string{"*"}),
			Scheduler:   utils.EnvBool("SCHEDULER_ENABLED", true),
		},
		RedisEnabled: utils.EnvBool("REDIS_ENABLED", false),
	}
}

// Overlay merges the YAML file at path into c. Only keys present in the file
// change; ${VAR} references are expanded first.
func (c *Config) Overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	switch {
	case c.VaultPath == "":
		return errors.New("vault path is required")
	case c.Parallelism < 1:
		return fmt.Errorf("parallelism must be >= 1, got %d", c.Parallelism)
	case c.ObserverTimeout <= 0:
		return fmt.Errorf("observer timeout must be positive, got %s", c.ObserverTimeout)
	case c.XRPL.EventLimit < 1 || c.XRPL.EventLimit > 400:
		return fmt.Errorf("xrpl event limit must be within 1..400, got %d", c.XRPL.EventLimit)
	case c.XRPL.MaxPages < 1:
		return fmt.Errorf("xrpl max pages must be >= 1, got %d", c.XRPL.MaxPages)
	case c.API.Port <= 0 || c.API.Port > 65535:
		return fmt.Errorf("invalid port %d", c.API.Port)
	}
	return nil
}
