package backend

import (
	"context"
	"fmt"
	"log/slog"

	boltstore "fintrack/internal/credstore/bbolt"
	"fintrack/internal/credstore/memory"
	"fintrack/internal/credstore/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case BBoltBackend:
		return f.createBBoltBackend(config)
	case MemoryBackend:
		return f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	store, err := sqlite.New(config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite credential store: %w", err)
	}

	f.logger.Debug("Initialized SQLite credential store", "db_path", config.DBPath)

	return &BackendResult{
		Store:   store,
		Cleanup: store.Close,
	}, nil
}

func (f *DefaultFactory) createBBoltBackend(config Config) (*BackendResult, error) {
	store, err := boltstore.Open(config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize bbolt credential store: %w", err)
	}

	f.logger.Debug("Initialized bbolt credential store", "db_path", config.DBPath)

	return &BackendResult{
		Store:   store,
		Cleanup: store.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	f.logger.Debug("Initialized memory credential store; session will not survive exit")

	return &BackendResult{
		Store:   memory.New(),
		Cleanup: nil, // No cleanup needed for memory backend
	}, nil
}
