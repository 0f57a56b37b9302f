// Package bbolt provides a BBolt-backed credential store.
package bbolt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"fintrack/internal/credstore"
)

var bucketName = []byte("session")

// Store implements credstore.Store backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ credstore.Store = (*Store)(nil)

// Open opens (or creates) a BBolt database at the given path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating session bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Set(ctx context.Context, c credstore.Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := credstore.Validate(c); err != nil {
		return err
	}
	user, err := json.Marshal(c.User)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if err := b.Put([]byte(credstore.KeyAccessToken), []byte(c.AccessToken)); err != nil {
			return err
		}
		if err := b.Put([]byte(credstore.KeyUser), user); err != nil {
			return err
		}
		if c.RefreshToken == "" {
			return b.Delete([]byte(credstore.KeyRefreshToken))
		}
		return b.Put([]byte(credstore.KeyRefreshToken), []byte(c.RefreshToken))
	})
}

func (s *Store) Get(ctx context.Context) (credstore.Credentials, bool, error) {
	if err := ctx.Err(); err != nil {
		return credstore.Credentials{}, false, err
	}
	var c credstore.Credentials
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		// Values are only valid for the lifetime of the transaction.
		c.AccessToken = string(b.Get([]byte(credstore.KeyAccessToken)))
		c.RefreshToken = string(b.Get([]byte(credstore.KeyRefreshToken)))
		if data := b.Get([]byte(credstore.KeyUser)); data != nil {
			var u credstore.User
			if err := json.Unmarshal(data, &u); err != nil {
				return fmt.Errorf("decode stored user: %w", err)
			}
			c.User = &u
		}
		return nil
	})
	if err != nil {
		return credstore.Credentials{}, false, err
	}
	if !c.Complete() {
		return credstore.Credentials{}, false, nil
	}
	return c, true, nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		for _, key := range []string{credstore.KeyAccessToken, credstore.KeyUser, credstore.KeyRefreshToken} {
			if err := b.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
}
