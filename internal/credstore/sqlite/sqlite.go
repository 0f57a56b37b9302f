// Package sqlite stores session credentials in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"fintrack/internal/credstore"
)

type Store struct {
	db *sql.DB
}

var _ credstore.Store = (*Store)(nil)

func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time keeps Set/Clear transactions from racing on the file lock.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Set implements credstore.Store
func (s *Store) Set(ctx context.Context, c credstore.Credentials) error {
	if err := credstore.Validate(c); err != nil {
		return err
	}
	userJSON, err := json.Marshal(c.User)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}

	values := map[string]string{
		credstore.KeyAccessToken: c.AccessToken,
		credstore.KeyUser:        string(userJSON),
	}
	if c.RefreshToken != "" {
		values[credstore.KeyRefreshToken] = c.RefreshToken
	}
	for key, value := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO credentials (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)`,
			key, value); err != nil {
			return fmt.Errorf("insert %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit credentials: %w", err)
	}

	slog.DebugContext(ctx, "Credentials saved to SQLite", "component", "storage", "user_id", c.User.ID)
	return nil
}

// Get implements credstore.Store
func (s *Store) Get(ctx context.Context) (credstore.Credentials, bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM credentials`)
	if err != nil {
		return credstore.Credentials{}, false, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()

	var c credstore.Credentials
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return credstore.Credentials{}, false, fmt.Errorf("scan credential: %w", err)
		}
		switch key {
		case credstore.KeyAccessToken:
			c.AccessToken = value
		case credstore.KeyRefreshToken:
			c.RefreshToken = value
		case credstore.KeyUser:
			var u credstore.User
			if err := json.Unmarshal([]byte(value), &u); err != nil {
				return credstore.Credentials{}, false, fmt.Errorf("decode stored user: %w", err)
			}
			c.User = &u
		}
	}
	if err := rows.Err(); err != nil {
		return credstore.Credentials{}, false, fmt.Errorf("iterate credentials: %w", err)
	}

	if !c.Complete() {
		return credstore.Credentials{}, false, nil
	}
	return c, true, nil
}

// Clear implements credstore.Store
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	slog.DebugContext(ctx, "Credentials cleared from SQLite", "component", "storage")
	return nil
}
