package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config holds all configuration for the application.
type Config struct {
	Port string
	Env  string

	// APIURL switches the room store to remote mode when set.
	APIURL string

	StorageDriver  string
	DatabaseURL    string
	SQLitePath     string
	RedisURL       string
	LocalStorePath string

	// LocalLatency is the simulated delay applied by the local room store.
	LocalLatency time.Duration

	// SyncPollInterval is how often local mode re-reads watched rooms when
	// storage is shared but no Redis channel is configured.
	SyncPollInterval time.Duration

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting

	CORSAllowedOrigins []string

	// driverSet records that STORAGE_DRIVER was given explicitly.
	driverSet bool
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// It panics on invalid values and, in production, on missing required ones.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		APIURL:             strings.TrimRight(os.Getenv("API_URL"), "/"),
		StorageDriver:      strings.ToLower(os.Getenv("STORAGE_DRIVER")),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SQLitePath:         os.Getenv("SQLITE_PATH"),
		RedisURL:           os.Getenv("REDIS_URL"),
		LocalStorePath:     os.Getenv("LOCAL_STORE_PATH"),
		RateLimitWhitelist: splitList(os.Getenv("RATE_LIMIT_WHITELIST")),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	cfg.LocalLatency = getDuration("LOCAL_LATENCY", 0)
	cfg.SyncPollInterval = getDuration("SYNC_POLL_INTERVAL", 500*time.Millisecond)

	cfg.driverSet = cfg.StorageDriver != ""
	if !cfg.driverSet {
		cfg.StorageDriver = cfg.defaultDriver()
	}

	if err := cfg.Validate(); err != nil {
		panic(err.Error())
	}

	return cfg
}

// defaultDriver picks a driver from whichever connection settings are present.
func (c *Config) defaultDriver() string {
	switch {
	case c.DatabaseURL != "":
		return DriverPostgres
	case c.SQLitePath != "":
		return DriverSQLite
	case c.RedisURL != "":
		return DriverRedis
	case c.LocalStorePath != "":
		return DriverFile
	default:
		return DriverMemory
	}
}

// Validate checks driver settings. In production, in-memory storage is rejected.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverMemory, DriverFile, DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s driver", DriverPostgres)
		}
	case DriverRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the %s driver", DriverRedis)
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}

	if c.LocalLatency < 0 {
		return fmt.Errorf("LOCAL_LATENCY must not be negative")
	}
	if c.SyncPollInterval < 0 {
		return fmt.Errorf("SYNC_POLL_INTERVAL must not be negative")
	}

	if c.Env == "production" && c.StorageDriver == DriverMemory {
		return fmt.Errorf("a persistent STORAGE_DRIVER is required in production")
	}

	return nil
}

// PreferPersistent replaces the in-memory fallback with the file driver, so
// rooms outlive the process. A driver chosen by STORAGE_DRIVER or by a
// connection setting is kept.
func (c *Config) PreferPersistent() {
	if !c.driverSet && (c.StorageDriver == DriverMemory || c.StorageDriver == "") {
		c.StorageDriver = DriverFile
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsRemote reports whether the room store talks to a remote server.
func (c *Config) IsRemote() bool {
	return c.APIURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDuration parses key as a Go duration, panicking on malformed input.
func getDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", key, err))
	}
	return d
}

// splitList parses a comma-separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
