package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		APIBaseURL:        "http://localhost:8080",
		HTTPTimeout:       10 * time.Second,
		RefreshPath:       "/api/auth/refresh-token",
		RefreshMode:       RefreshModeCookie,
		CredentialBackend: BackendSQLite,
		CredentialDBPath:  filepath.Join(t.TempDir(), "credentials.db"),
		CacheTTL:          time.Minute,
		CacheSize:         16,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		wantErr     bool
		errorString string
	}{
		{
			name:    "valid sqlite backend config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "valid memory backend without path",
			mutate: func(c *Config) {
				c.CredentialBackend = BackendMemory
				c.CredentialDBPath = ""
			},
			wantErr: false,
		},
		{
			name:        "empty API URL",
			mutate:      func(c *Config) { c.APIBaseURL = "" },
			wantErr:     true,
			errorString: "API base URL cannot be empty",
		},
		{
			name:        "invalid API URL scheme",
			mutate:      func(c *Config) { c.APIBaseURL = "ftp://example.com" },
			wantErr:     true,
			errorString: "invalid API base URL scheme 'ftp': must be 'http' or 'https'",
		},
		{
			name:        "timeout too short",
			mutate:      func(c *Config) { c.HTTPTimeout = 500 * time.Millisecond },
			wantErr:     true,
			errorString: "invalid HTTP timeout 500ms: must be at least 1 second",
		},
		{
			name:        "refresh path without slash",
			mutate:      func(c *Config) { c.RefreshPath = "api/auth/refresh-token" },
			wantErr:     true,
			errorString: "invalid refresh path 'api/auth/refresh-token'",
		},
		{
			name:        "invalid refresh mode",
			mutate:      func(c *Config) { c.RefreshMode = "header" },
			wantErr:     true,
			errorString: "invalid refresh mode 'header': must be one of [cookie body]",
		},
		{
			name:        "invalid credential backend",
			mutate:      func(c *Config) { c.CredentialBackend = "redis" },
			wantErr:     true,
			errorString: "invalid credential backend 'redis': must be one of [memory sqlite bbolt]",
		},
		{
			name:        "bbolt backend missing path",
			mutate:      func(c *Config) { c.CredentialBackend = BackendBBolt; c.CredentialDBPath = "" },
			wantErr:     true,
			errorString: "credential database path cannot be empty when using bbolt backend",
		},
		{
			name:        "invalid cache size",
			mutate:      func(c *Config) { c.CacheSize = 0 },
			wantErr:     true,
			errorString: "invalid cache size 0: must be at least 1",
		},
		{
			name:        "invalid AMQP URL scheme",
			mutate:      func(c *Config) { c.AMQPURL = "http://localhost:5672/"; c.AMQPExchange = "x" },
			wantErr:     true,
			errorString: "invalid AMQP URL scheme 'http': must be 'amqp' or 'amqps'",
		},
		{
			name:        "AMQP URL without exchange",
			mutate:      func(c *Config) { c.AMQPURL = "amqp://localhost:5672/"; c.AMQPExchange = "" },
			wantErr:     true,
			errorString: "AMQP exchange name cannot be empty when AMQP URL is provided",
		},
		{
			name: "sheets export missing credentials",
			mutate: func(c *Config) {
				c.GoogleSpreadsheetID = "123456789"
				c.GoogleSheetName = "Transactions"
			},
			wantErr:     true,
			errorString: "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for sheets export",
		},
		{
			name: "sheets export with missing credentials file",
			mutate: func(c *Config) {
				c.GoogleSpreadsheetID = "123456789"
				c.GoogleSheetName = "Transactions"
				c.GoogleServiceAccountFile = "/non/existent/file.json"
			},
			wantErr:     true,
			errorString: "Google service account file does not exist",
		},
		{
			name: "sheets export with inline credentials",
			mutate: func(c *Config) {
				c.GoogleSpreadsheetID = "123456789"
				c.GoogleSheetName = "Transactions"
				c.GoogleServiceAccountJSON = "{}"
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Config.Validate() error = nil, wantErr %v", tt.wantErr)
					return
				}
				if tt.errorString != "" && !strings.Contains(err.Error(), tt.errorString) {
					t.Errorf("Config.Validate() error = %v, want error containing %v", err.Error(), tt.errorString)
				}
			} else if err != nil {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateAggregatesErrors(t *testing.T) {
	cfg := validConfig(t)
	cfg.RefreshMode = "nope"
	cfg.CacheSize = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if got := strings.Count(err.Error(), "\n- "); got != 2 {
		t.Fatalf("expected 2 aggregated problems, got %d: %v", got, err)
	}
}

func TestLoad(t *testing.T) {
	keys := []string{"FINTRACK_API_URL", "HTTP_TIMEOUT", "REFRESH_MODE", "CREDENTIAL_BACKEND", "CREDENTIAL_DB_PATH", "CACHE_SIZE"}

	t.Run("default values", func(t *testing.T) {
		for _, key := range keys {
			t.Setenv(key, "")
		}
		cfg := Load()

		if cfg.APIBaseURL != "http://localhost:8080" {
			t.Errorf("Load() APIBaseURL = %v, want http://localhost:8080", cfg.APIBaseURL)
		}
		if cfg.HTTPTimeout != 10*time.Second {
			t.Errorf("Load() HTTPTimeout = %v, want 10s", cfg.HTTPTimeout)
		}
		if cfg.RefreshMode != RefreshModeCookie {
			t.Errorf("Load() RefreshMode = %v, want cookie", cfg.RefreshMode)
		}
		if cfg.CredentialBackend != BackendSQLite {
			t.Errorf("Load() CredentialBackend = %v, want sqlite", cfg.CredentialBackend)
		}
		if cfg.CredentialDBPath == "" {
			t.Error("Load() CredentialDBPath should have a default")
		}
	})

	t.Run("environment variables", func(t *testing.T) {
		t.Setenv("FINTRACK_API_URL", "https://api.example.com")
		t.Setenv("HTTP_TIMEOUT", "30s")
		t.Setenv("REFRESH_MODE", RefreshModeBody)
		t.Setenv("CREDENTIAL_BACKEND", BackendBBolt)
		t.Setenv("CREDENTIAL_DB_PATH", "/tmp/fintrack.db")
		t.Setenv("CACHE_SIZE", "8")

		cfg := Load()

		if cfg.APIBaseURL != "https://api.example.com" {
			t.Errorf("Load() APIBaseURL = %v", cfg.APIBaseURL)
		}
		if cfg.HTTPTimeout != 30*time.Second {
			t.Errorf("Load() HTTPTimeout = %v, want 30s", cfg.HTTPTimeout)
		}
		if cfg.RefreshMode != RefreshModeBody {
			t.Errorf("Load() RefreshMode = %v, want body", cfg.RefreshMode)
		}
		if cfg.CredentialBackend != BackendBBolt || cfg.CredentialDBPath != "/tmp/fintrack.db" {
			t.Errorf("Load() credential store = %v %v", cfg.CredentialBackend, cfg.CredentialDBPath)
		}
		if cfg.CacheSize != 8 {
			t.Errorf("Load() CacheSize = %v, want 8", cfg.CacheSize)
		}
	})

	t.Run("invalid environment variables use defaults", func(t *testing.T) {
		t.Setenv("HTTP_TIMEOUT", "invalid")
		t.Setenv("CACHE_SIZE", "invalid")

		cfg := Load()

		if cfg.HTTPTimeout != 10*time.Second {
			t.Errorf("Load() HTTPTimeout = %v, want 10s (default for invalid input)", cfg.HTTPTimeout)
		}
		if cfg.CacheSize != 64 {
			t.Errorf("Load() CacheSize = %v, want 64 (default for invalid input)", cfg.CacheSize)
		}
	})
}

func TestConfig_ValidateCreatesDirectory(t *testing.T) {
	cfg := validConfig(t)
	dir := filepath.Join(t.TempDir(), "nested", "dir")
	cfg.CredentialDBPath = filepath.Join(dir, "credentials.db")

	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("expected directory to be created: %v", err)
	}
}
