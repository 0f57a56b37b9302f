// Package credstoretest holds the behavioural checks every credential store
// backend must pass.
package credstoretest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/credstore"
)

// Factory returns a fresh, empty store. Stores implementing credstore.Closer
// are closed by the suite.
type Factory func(t *testing.T) credstore.Store

// Run exercises the credstore.Store contract against newStore.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()
	user := &credstore.User{ID: 42, Email: "a@b.com", FullName: "Ada Byron"}

	open := func(t *testing.T) credstore.Store {
		s := newStore(t)
		if c, ok := s.(credstore.Closer); ok {
			t.Cleanup(func() { _ = c.Close() })
		}
		return s
	}

	t.Run("empty store reports absent", func(t *testing.T) {
		s := open(t)
		_, found, err := s.Get(ctx)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("set then get returns token and user together", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Set(ctx, credstore.Credentials{AccessToken: "T1", RefreshToken: "R1", User: user}))

		got, found, err := s.Get(ctx)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "T1", got.AccessToken)
		assert.Equal(t, "R1", got.RefreshToken)
		require.NotNil(t, got.User)
		assert.Equal(t, *user, *got.User)
	})

	t.Run("set replaces previous credentials", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Set(ctx, credstore.Credentials{AccessToken: "T1", RefreshToken: "R1", User: user}))
		require.NoError(t, s.Set(ctx, credstore.Credentials{AccessToken: "T2", User: user}))

		got, found, err := s.Get(ctx)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "T2", got.AccessToken)
		assert.Empty(t, got.RefreshToken, "an unset refresh token must not survive a replace")
	})

	t.Run("incomplete credentials are rejected", func(t *testing.T) {
		s := open(t)
		assert.ErrorIs(t, s.Set(ctx, credstore.Credentials{AccessToken: "T1"}), credstore.ErrIncompleteCredentials)
		assert.ErrorIs(t, s.Set(ctx, credstore.Credentials{User: user}), credstore.ErrIncompleteCredentials)

		_, found, err := s.Get(ctx)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("clear removes everything and is idempotent", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Set(ctx, credstore.Credentials{AccessToken: "T1", RefreshToken: "R1", User: user}))
		require.NoError(t, s.Clear(ctx))
		require.NoError(t, s.Clear(ctx))

		got, found, err := s.Get(ctx)
		require.NoError(t, err)
		assert.False(t, found)
		assert.Empty(t, got.AccessToken)
	})

	t.Run("returned user is a copy", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Set(ctx, credstore.Credentials{AccessToken: "T1", User: user}))
		got, _, err := s.Get(ctx)
		require.NoError(t, err)
		got.User.Email = "changed@example.com"

		again, _, err := s.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, "a@b.com", again.User.Email)
	})

	t.Run("concurrent writers never leave a partial pair", func(t *testing.T) {
		s := open(t)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if i%2 == 0 {
					_ = s.Set(ctx, credstore.Credentials{AccessToken: "T", User: user})
				} else {
					_ = s.Clear(ctx)
				}
			}(i)
		}
		wg.Wait()

		got, found, err := s.Get(ctx)
		require.NoError(t, err)
		if found {
			assert.NotEmpty(t, got.AccessToken)
			assert.NotNil(t, got.User)
		} else {
			assert.Empty(t, got.AccessToken)
			assert.Nil(t, got.User)
		}
	})
}
