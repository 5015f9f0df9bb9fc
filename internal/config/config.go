package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

var validBackends = []string{BackendMemory, BackendSQLite}

type Config struct {
	// HTTP Server
	Port string

	// Logging
	LogLevel string

	// Backend selection
	DataBackend string

	// Database
	SQLiteDBPath string

	// AMQP (optional, empty URL disables events)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Auth
	JWTSecret      string
	JWTIssuer      string
	AccessTokenTTL time.Duration

	// Rollover worker
	RolloverInterval    time.Duration
	RolloverConcurrency int

	// Per-user lifecycle managers
	ManagerCacheSize int
	ManagerCacheTTL  time.Duration

	// Rate limiting for mutating requests
	RateLimitPerMinute int
	RateLimitBurst     int

	// Google Sheets export (optional)
	GoogleSpreadsheetID string
	GoogleSheetName     string
}

func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8081"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DataBackend:  getEnv("DATA_BACKEND", BackendMemory),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/budgetbuddy.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "budgetbuddy"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "period_events"),

		JWTSecret:      getEnv("JWT_SECRET", ""),
		JWTIssuer:      getEnv("JWT_ISSUER", "budgetbuddy"),
		AccessTokenTTL: getEnvDuration("ACCESS_TOKEN_TTL", 24*time.Hour),

		RolloverInterval:    getEnvDuration("ROLLOVER_INTERVAL", time.Hour),
		RolloverConcurrency: getEnvInt("ROLLOVER_CONCURRENCY", 4),

		ManagerCacheSize: getEnvInt("MANAGER_CACHE_SIZE", 256),
		ManagerCacheTTL:  getEnvDuration("MANAGER_CACHE_TTL", 30*time.Minute),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 10),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Periods"),
	}
}

// SheetsEnabled reports whether archived periods should be exported.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == BackendSQLite {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if len(c.JWTSecret) < 32 {
		errors = append(errors, "JWT secret must be at least 32 characters")
	}
	if c.AccessTokenTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid access token TTL %v: must be at least 1 minute", c.AccessTokenTTL))
	}

	if c.RolloverInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid rollover interval %v: must be at least 1 second", c.RolloverInterval))
	} else if c.RolloverInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid rollover interval %v: must be at most 24 hours", c.RolloverInterval))
	}
	if c.RolloverConcurrency < 1 || c.RolloverConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid rollover concurrency %d: must be between 1 and 64", c.RolloverConcurrency))
	}

	if c.ManagerCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid manager cache size %d: must be at least 1", c.ManagerCacheSize))
	}
	if c.ManagerCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid manager cache TTL %v: must be at least 1 second", c.ManagerCacheTTL))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 per minute", c.RateLimitPerMinute))
	}
	if c.RateLimitBurst < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit burst %d: must be at least 1", c.RateLimitBurst))
	}

	if c.SheetsEnabled() && c.GoogleSheetName == "" {
		errors = append(errors, "Google Sheet name is required when a spreadsheet ID is set")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
