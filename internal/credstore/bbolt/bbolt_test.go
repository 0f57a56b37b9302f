package bbolt

import (
	"path/filepath"
	"testing"

	"fintrack/internal/credstore"
	"fintrack/internal/credstore/credstoretest"
)

func TestBBoltStore(t *testing.T) {
	credstoretest.Run(t, func(t *testing.T) credstore.Store {
		s, err := Open(filepath.Join(t.TempDir(), "session.db"))
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		return s
	})
}
