package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	PortalURL string // Required: entry URL of the broker portal login page

	MasterKey []byte // Required: >=32 bytes, field-encryption master secret
	TableSalt []byte // Required: >=16 bytes, salt for key derivation and account hashing

	PoolSize        int           // Optional: concurrent browser sessions (default: 2)
	MFAWait         time.Duration // Optional: window for the OTP widget to appear (default: 8s)
	AuthWait        time.Duration // Optional: overall wait for authentication (default: 45s)
	DefaultTokenTTL time.Duration // Optional: expiry fallback when portal provides none (default: 12h)
	AcquireWait     time.Duration // Optional: how long the acquire endpoint holds a request open (default: 2m)

	BrowserBinary string // Optional: explicit browser binary path, skips discovery
	ProfileDir    string // Optional: base dir for per-attempt profile dirs (default: os temp)
	Headless      bool   // Optional: headless browser mode (default: true)

	DatabaseFile         string        // Optional: path to SQLite database file (default: ./vault.db)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

// LoadConfig reads configuration from the environment. Secrets are read here
// and validated in New; they are never logged.
func LoadConfig() Config {
	return Config{
		PortalURL: os.Getenv("VAULT_PORTAL_URL"),

		MasterKey: []byte(os.Getenv("VAULT_MASTER_KEY")),
		TableSalt: []byte(os.Getenv("VAULT_TABLE_SALT")),

		PoolSize:        getEnvIntOrDefault("VAULT_POOL_SIZE", 2),
		MFAWait:         getEnvDurationOrDefault("VAULT_MFA_WAIT", 8*time.Second),
		AuthWait:        getEnvDurationOrDefault("VAULT_AUTH_WAIT", 45*time.Second),
		DefaultTokenTTL: getEnvDurationOrDefault("VAULT_DEFAULT_TOKEN_TTL", 12*time.Hour),
		AcquireWait:     getEnvDurationOrDefault("VAULT_ACQUIRE_WAIT", 2*time.Minute),

		BrowserBinary: os.Getenv("VAULT_BROWSER_BINARY"),
		ProfileDir:    getEnvOrDefault("VAULT_PROFILE_DIR", os.TempDir()),
		Headless:      getEnvOrDefault("VAULT_HEADLESS", "true") == "true",

		DatabaseFile:         getEnvOrDefault("VAULT_DATABASE_FILE", "vault.db"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
