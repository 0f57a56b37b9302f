package backend

import (
	"context"

	"fintrack/internal/credstore"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the credential store and optional cleanup function
type BackendResult struct {
	Store   credstore.Store
	Cleanup CleanupFunc
}

// Factory creates credential stores based on configuration
type Factory interface {
	// CreateBackend creates a store instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for credential store creation
type Config struct {
	// Backend type
	Type BackendType

	// File path used by the sqlite and bbolt backends
	DBPath string
}

// BackendType represents the type of credential backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	BBoltBackend  BackendType = "bbolt"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, BBoltBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
