package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"RPC_SERVER_URL", "NETWORK_PASSPHRASE", "REGISTRY_CONTRACT_ID",
		"STORE_BACKEND", "POLL_INTERVAL", "BATCH_SIZE", "LOOKBACK_WINDOW",
		"FETCH_WORKERS", "API_PORT", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	require.Equal(t, "https://soroban-testnet.stellar.org", cfg.RPCServerURL)
	require.Equal(t, StorePostgres, cfg.StoreBackend)
	require.Equal(t, 5*time.Second, cfg.PollInterval)
	require.Equal(t, uint32(100), cfg.BatchSize)
	require.Equal(t, uint64(1000), cfg.LookbackWindow)
	require.Equal(t, 4, cfg.FetchWorkers)
	require.Equal(t, "info", cfg.LogLevel)

	// No registry configured.
	require.Error(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("REGISTRY_CONTRACT_ID", "CREGISTRY")
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/x.sqlite")
	t.Setenv("POLL_INTERVAL", "2")
	t.Setenv("POLL_TIMEOUT", "1m")
	t.Setenv("BATCH_SIZE", "25")
	t.Setenv("FETCH_WORKERS", "not-a-number")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg := Load()
	require.Equal(t, StoreSQLite, cfg.StoreBackend)
	require.Equal(t, 2*time.Second, cfg.PollInterval)
	require.Equal(t, time.Minute, cfg.PollTimeout)
	require.Equal(t, uint32(25), cfg.BatchSize)
	require.Equal(t, 4, cfg.FetchWorkers)
	require.Equal(t, "debug", cfg.LogLevel)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			RPCServerURL:       "http://localhost:8000",
			NetworkPassphrase:  "Standalone Network ; February 2017",
			RegistryContractID: "CREGISTRY",
			StoreBackend:       StorePostgres,
			DatabaseURL:        "postgres://localhost/stealthpay",
			PollInterval:       time.Second,
			PollTimeout:        time.Second,
			BatchSize:          10,
			FetchWorkers:       1,
			APIPort:            2112,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"no rpc url", func(c *Config) { c.RPCServerURL = "" }, "RPC_SERVER_URL"},
		{"postgres without url", func(c *Config) { c.DatabaseURL = "" }, "DATABASE_URL"},
		{"unknown backend", func(c *Config) { c.StoreBackend = "mysql" }, "STORE_BACKEND"},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }, "BATCH_SIZE"},
		{"no workers", func(c *Config) { c.FetchWorkers = 0 }, "FETCH_WORKERS"},
		{"bad port", func(c *Config) { c.APIPort = 70000 }, "API_PORT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
