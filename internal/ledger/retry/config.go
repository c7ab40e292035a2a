package retry

import (
	"os"
	"strconv"
	"time"
)

// Config holds the retry policy applied to individual ledger RPC calls
// inside one poll step
type Config struct {
	Enabled      bool          // Enable/disable retry mechanism
	MaxRetries   int           // Maximum number of retry attempts
	InitialDelay time.Duration // Initial delay before first retry
	MaxDelay     time.Duration // Maximum delay between retries
}

// LoadConfig loads retry configuration from environment variables
func LoadConfig() Config {
	return Config{
		Enabled:      getEnvAsBool("LEDGER_RETRY_ENABLED", true),
		MaxRetries:   getEnvAsInt("LEDGER_RETRY_MAX_RETRIES", 3),
		InitialDelay: time.Duration(getEnvAsInt("LEDGER_RETRY_INITIAL_DELAY_MS", 250)) * time.Millisecond,
		MaxDelay:     time.Duration(getEnvAsInt("LEDGER_RETRY_MAX_DELAY_MS", 2000)) * time.Millisecond,
	}
}

// Helper: get bool from env
func getEnvAsBool(key string, defaultVal bool) bool {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

// Helper: get int from env
func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}
