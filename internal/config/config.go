package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

type Config struct {
	// RPC Server URL
	RPCServerURL string

	// Network passphrase ( mainnet or testnet )
	NetworkPassphrase string

	// Stealth payment registry contract (C... strkey)
	RegistryContractID string

	// Buffer size for RPC ledger requests
	BufferSize int

	// Timeout for a single RPC request
	RPCTimeout time.Duration

	// Event store: "postgres" or "sqlite"
	StoreBackend string
	DatabaseURL  string
	SQLitePath   string

	// Indexer polling
	PollInterval   time.Duration
	PollTimeout    time.Duration
	BatchSize      uint32
	LookbackWindow uint64
	FetchWorkers   int

	// HTTP ops surface
	APIPort int

	LogLevel string
}

// Load returns the configuration for the indexer from environment
// variables, falling back to testnet defaults
func Load() *Config {
	return &Config{
		// You can also use: https://soroban-mainnet.stellar.org for mainnet
		RPCServerURL: getEnv("RPC_SERVER_URL", "https://soroban-testnet.stellar.org"),

		// Mainnet passphrase use: Public Global Stellar Network ; September 2015
		NetworkPassphrase: getEnv("NETWORK_PASSPHRASE", "Test SDF Network ; September 2015"),

		RegistryContractID: getEnv("REGISTRY_CONTRACT_ID", ""),
		BufferSize:         getEnvAsInt("RPC_BUFFER_SIZE", 10),
		RPCTimeout:         getEnvAsDuration("RPC_TIMEOUT", 30*time.Second),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", StorePostgres)),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		SQLitePath:   getEnv("SQLITE_PATH", "stealthpay.sqlite"),

		PollInterval:   getEnvAsDuration("POLL_INTERVAL", 5*time.Second),
		PollTimeout:    getEnvAsDuration("POLL_TIMEOUT", 30*time.Second),
		BatchSize:      uint32(getEnvAsUint("BATCH_SIZE", 100)),
		LookbackWindow: getEnvAsUint("LOOKBACK_WINDOW", 1000),
		FetchWorkers:   getEnvAsInt("FETCH_WORKERS", 4),

		APIPort:  getEnvAsInt("API_PORT", 2112),
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.RPCServerURL == "" {
		return fmt.Errorf("RPC_SERVER_URL is required")
	}
	if c.NetworkPassphrase == "" {
		return fmt.Errorf("NETWORK_PASSPHRASE is required")
	}
	if c.RegistryContractID == "" {
		return fmt.Errorf("REGISTRY_CONTRACT_ID is required")
	}

	switch c.StoreBackend {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.PollTimeout <= 0 {
		return fmt.Errorf("POLL_TIMEOUT must be positive")
	}
	if c.BatchSize == 0 {
		return fmt.Errorf("BATCH_SIZE must be positive")
	}
	if c.FetchWorkers < 1 {
		return fmt.Errorf("FETCH_WORKERS must be at least 1")
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("API_PORT %d is out of range", c.APIPort)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	val, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsUint(key string, defaultVal uint64) uint64 {
	val, err := strconv.ParseUint(os.Getenv(key), 10, 32)
	if err != nil {
		return defaultVal
	}
	return val
}

// Accepts Go durations ("5s") or a bare number of seconds
func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	if secs, err := strconv.Atoi(valStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	val, err := time.ParseDuration(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}
