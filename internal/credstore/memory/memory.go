package memory

import (
	"context"
	"sync"

	"fintrack/internal/credstore"
)

// Store keeps credentials in process memory. Nothing survives a restart, which
// makes it the store of choice for tests and one-shot scripts.
type Store struct {
	mu    sync.Mutex
	creds credstore.Credentials
}

var _ credstore.Store = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// NewWith returns a store pre-seeded with c, as if a previous run had logged in.
func NewWith(c credstore.Credentials) *Store {
	return &Store{creds: clone(c)}
}

func (s *Store) Set(_ context.Context, c credstore.Credentials) error {
	if err := credstore.Validate(c); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = clone(c)
	return nil
}

func (s *Store) Get(_ context.Context) (credstore.Credentials, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.creds.Complete() {
		return credstore.Credentials{}, false, nil
	}
	return clone(s.creds), true, nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = credstore.Credentials{}
	return nil
}

// clone copies the user so callers never share the stored pointer.
func clone(c credstore.Credentials) credstore.Credentials {
	if c.User != nil {
		u := *c.User
		c.User = &u
	}
	return c
}
