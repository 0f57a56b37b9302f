package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Refresh credential transports understood by the refresh endpoint client.
const (
	RefreshModeCookie = "cookie"
	RefreshModeBody   = "body"
)

// Credential store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBBolt  = "bbolt"
)

type Config struct {
	// API
	APIBaseURL  string
	HTTPTimeout time.Duration
	RefreshPath string
	RefreshMode string

	// Credential store
	CredentialBackend string
	CredentialDBPath  string

	// Logging
	LogLevel string

	// Response caches
	CacheTTL  time.Duration
	CacheSize int

	// AMQP session events (optional)
	AMQPURL      string
	AMQPExchange string

	// Google Sheets export (optional)
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
}

func Load() *Config {
	cfg := &Config{
		APIBaseURL:  getEnv("FINTRACK_API_URL", "http://localhost:8080"),
		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),
		RefreshPath: getEnv("REFRESH_PATH", "/api/auth/refresh-token"),
		RefreshMode: getEnv("REFRESH_MODE", RefreshModeCookie),

		CredentialBackend: getEnv("CREDENTIAL_BACKEND", BackendSQLite),
		CredentialDBPath:  getEnv("CREDENTIAL_DB_PATH", defaultCredentialPath()),

		LogLevel: getEnv("LOG_LEVEL", "warn"),

		CacheTTL:  getEnvDuration("CACHE_TTL", 2*time.Minute),
		CacheSize: getEnvInt("CACHE_SIZE", 64),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "fintrack.session"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Transactions"),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate API base URL
	if c.APIBaseURL == "" {
		errors = append(errors, "API base URL cannot be empty")
	} else if parsedURL, err := url.Parse(c.APIBaseURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid API base URL '%s': %v", c.APIBaseURL, err))
	} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid API base URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
	}

	if c.HTTPTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid HTTP timeout %v: must be at least 1 second", c.HTTPTimeout))
	} else if c.HTTPTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid HTTP timeout %v: must be at most 5 minutes", c.HTTPTimeout))
	}

	if !strings.HasPrefix(c.RefreshPath, "/") {
		errors = append(errors, fmt.Sprintf("invalid refresh path '%s': must start with '/'", c.RefreshPath))
	}

	validModes := []string{RefreshModeCookie, RefreshModeBody}
	if !contains(validModes, c.RefreshMode) {
		errors = append(errors, fmt.Sprintf("invalid refresh mode '%s': must be one of %v", c.RefreshMode, validModes))
	}

	// Validate credential backend
	validBackends := []string{BackendMemory, BackendSQLite, BackendBBolt}
	if !contains(validBackends, c.CredentialBackend) {
		errors = append(errors, fmt.Sprintf("invalid credential backend '%s': must be one of %v", c.CredentialBackend, validBackends))
	}

	// File backed stores need a path whose directory exists or can be created
	if c.CredentialBackend == BackendSQLite || c.CredentialBackend == BackendBBolt {
		if c.CredentialDBPath == "" {
			errors = append(errors, fmt.Sprintf("credential database path cannot be empty when using %s backend", c.CredentialBackend))
		} else {
			dir := filepath.Dir(c.CredentialDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0700); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create credential database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}
	if c.CacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must not be negative", c.CacheTTL))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	// Sheets export needs credentials once a spreadsheet is configured
	if c.GoogleSpreadsheetID != "" {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when a spreadsheet ID is set")
		}
		if c.GoogleServiceAccountFile == "" && c.GoogleServiceAccountJSON == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for sheets export")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// SheetsEnabled reports whether a spreadsheet has been configured for export.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

func defaultCredentialPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return filepath.Join(".", ".fintrack", "credentials.db")
	}
	return filepath.Join(dir, "fintrack", "credentials.db")
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
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
