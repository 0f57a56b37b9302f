package memory

import (
	"context"
	"testing"

	"fintrack/internal/credstore"
	"fintrack/internal/credstore/credstoretest"
)

func TestMemoryStore(t *testing.T) {
	credstoretest.Run(t, func(t *testing.T) credstore.Store { return New() })
}

func TestNewWithSeeds(t *testing.T) {
	s := NewWith(credstore.Credentials{AccessToken: "T0", User: &credstore.User{ID: 1, Email: "x@y.z"}})
	c, found, err := s.Get(context.Background())
	if err != nil || !found || c.AccessToken != "T0" {
		t.Fatalf("unexpected seed state: %+v found=%v err=%v", c, found, err)
	}
}
