package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/credstore"
	"fintrack/internal/credstore/memory"
)

var errRejected = errors.New("rejected")

type fakeAuth struct {
	result AuthResult
	err    error
	calls  []string
}

func (f *fakeAuth) Login(_ context.Context, req LoginRequest) (AuthResult, error) {
	f.calls = append(f.calls, "login:"+req.Email)
	return f.result, f.err
}

func (f *fakeAuth) Register(_ context.Context, req RegisterRequest) (AuthResult, error) {
	f.calls = append(f.calls, "register:"+req.Email)
	return f.result, f.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []EventType
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e.Type)
	return p.err
}

// failingStore wraps a store and fails the selected operations.
type failingStore struct {
	credstore.Store
	failSet, failGet, failClear bool
}

func (f *failingStore) Set(ctx context.Context, c credstore.Credentials) error {
	if f.failSet {
		return errors.New("disk full")
	}
	return f.Store.Set(ctx, c)
}

func (f *failingStore) Get(ctx context.Context) (credstore.Credentials, bool, error) {
	if f.failGet {
		return credstore.Credentials{}, false, errors.New("corrupt")
	}
	return f.Store.Get(ctx)
}

func (f *failingStore) Clear(ctx context.Context) error {
	if f.failClear {
		return errors.New("locked")
	}
	return f.Store.Clear(ctx)
}

func okAuth() *fakeAuth {
	return &fakeAuth{result: AuthResult{
		AccessToken:  "T",
		RefreshToken: "R",
		User:         credstore.User{ID: 1, Email: "a@b.com", FullName: "A B"},
	}}
}

func TestLoginStoresTokenAndUser(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	events := &recordingPublisher{}
	s := New(store, okAuth(), WithEvents(events))

	ok, err := s.Login(ctx, LoginRequest{Email: "a@b.com", Password: "pw"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, "T", s.AccessToken())
	assert.Equal(t, "R", s.RefreshToken())
	assert.Equal(t, "a@b.com", s.User().Email)

	creds, found, err := store.Get(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "T", creds.AccessToken)
	assert.Equal(t, int64(1), creds.User.ID)
	assert.Equal(t, []EventType{EventLogin}, events.events)
}

func TestLoginRejectedLeavesSessionUnchanged(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	s := New(store, &fakeAuth{err: errRejected})

	ok, err := s.Login(ctx, LoginRequest{Email: "a@b.com", Password: "bad"})
	assert.ErrorIs(t, err, errRejected)
	assert.False(t, ok)
	assert.False(t, s.IsAuthenticated())

	_, found, _ := store.Get(ctx)
	assert.False(t, found)
}

func TestLoginWithoutTokenReportsFalse(t *testing.T) {
	s := New(memory.New(), &fakeAuth{result: AuthResult{User: credstore.User{ID: 1}}})

	ok, err := s.Login(context.Background(), LoginRequest{Email: "a@b.com"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, s.IsAuthenticated())
}

func TestLoginStoreFailureKeepsMemoryLoggedOut(t *testing.T) {
	s := New(&failingStore{Store: memory.New(), failSet: true}, okAuth())

	ok, err := s.Login(context.Background(), LoginRequest{Email: "a@b.com"})
	assert.Error(t, err)
	assert.False(t, ok)
	assert.False(t, s.IsAuthenticated())
	assert.Nil(t, s.User())
}

func TestRegisterAuthenticates(t *testing.T) {
	auth := okAuth()
	events := &recordingPublisher{}
	s := New(memory.New(), auth, WithEvents(events))

	ok, err := s.Register(context.Background(), RegisterRequest{Email: "a@b.com", Password: "pw", FullName: "A B"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, []string{"register:a@b.com"}, auth.calls)
	assert.Equal(t, []EventType{EventRegister}, events.events)
}

func TestLogoutClearsEverything(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	s := New(store, okAuth())
	_, err := s.Login(ctx, LoginRequest{Email: "a@b.com"})
	require.NoError(t, err)

	s.Logout(ctx)
	assert.False(t, s.IsAuthenticated())
	assert.Nil(t, s.User())
	assert.Empty(t, s.RefreshToken())
	_, found, _ := store.Get(ctx)
	assert.False(t, found)

	// Logging out twice is harmless.
	s.Logout(ctx)
	assert.False(t, s.IsAuthenticated())
}

func TestLogoutIgnoresStoreFailure(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Store: memory.New()}
	s := New(store, okAuth())
	_, err := s.Login(ctx, LoginRequest{Email: "a@b.com"})
	require.NoError(t, err)

	store.failClear = true
	s.Logout(ctx)
	assert.False(t, s.IsAuthenticated())
}

func TestRehydrate(t *testing.T) {
	ctx := context.Background()
	user := &credstore.User{ID: 7, Email: "a@b.com"}

	t.Run("restores stored session", func(t *testing.T) {
		s := New(memory.NewWith(credstore.Credentials{AccessToken: "T", User: user}), okAuth())
		require.NoError(t, s.Rehydrate(ctx))
		assert.True(t, s.IsAuthenticated())
		assert.Equal(t, int64(7), s.User().ID)
	})

	t.Run("is idempotent", func(t *testing.T) {
		s := New(memory.NewWith(credstore.Credentials{AccessToken: "T", User: user}), okAuth())
		require.NoError(t, s.Rehydrate(ctx))
		first := s.Snapshot()
		require.NoError(t, s.Rehydrate(ctx))
		require.NoError(t, s.Rehydrate(ctx))
		assert.Equal(t, first, s.Snapshot())
	})

	t.Run("empty store logs out", func(t *testing.T) {
		store := memory.New()
		s := New(store, okAuth())
		_, err := s.Login(ctx, LoginRequest{Email: "a@b.com"})
		require.NoError(t, err)
		require.NoError(t, store.Clear(ctx))

		require.NoError(t, s.Rehydrate(ctx))
		assert.False(t, s.IsAuthenticated())
		assert.Nil(t, s.User())
	})

	t.Run("read failure logs out", func(t *testing.T) {
		s := New(&failingStore{Store: memory.New(), failGet: true}, okAuth())
		assert.Error(t, s.Rehydrate(ctx))
		assert.False(t, s.IsAuthenticated())
	})
}

func TestUpdateAccessToken(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	events := &recordingPublisher{}
	s := New(store, okAuth(), WithEvents(events))

	assert.ErrorIs(t, s.UpdateAccessToken(ctx, "T2", ""), ErrNoSession)

	_, err := s.Login(ctx, LoginRequest{Email: "a@b.com"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateAccessToken(ctx, "T2", ""))
	assert.Equal(t, "T2", s.AccessToken())
	assert.Equal(t, "R", s.RefreshToken(), "empty refresh keeps the stored one")

	require.NoError(t, s.UpdateAccessToken(ctx, "T3", "R3"))
	creds, _, _ := store.Get(ctx)
	assert.Equal(t, "T3", creds.AccessToken)
	assert.Equal(t, "R3", creds.RefreshToken)
	assert.Equal(t, "a@b.com", creds.User.Email)
	assert.Equal(t, []EventType{EventLogin, EventRefresh, EventRefresh}, events.events)
}

func TestExpireClearsSession(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	events := &recordingPublisher{}
	s := New(store, okAuth(), WithEvents(events))
	_, err := s.Login(ctx, LoginRequest{Email: "a@b.com"})
	require.NoError(t, err)

	s.Expire(ctx)
	assert.False(t, s.IsAuthenticated())
	_, found, _ := store.Get(ctx)
	assert.False(t, found)
	assert.Equal(t, []EventType{EventLogin, EventExpired}, events.events)
}

func TestChangeHookFollowsIdentity(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	var changes int
	s := New(store, okAuth(), WithChangeHook(func(context.Context) { changes++ }))

	require.NoError(t, s.Rehydrate(ctx))
	assert.Equal(t, 0, changes, "nobody to nobody is not a change")

	_, err := s.Login(ctx, LoginRequest{Email: "a@b.com"})
	require.NoError(t, err)
	assert.Equal(t, 1, changes)

	require.NoError(t, s.UpdateAccessToken(ctx, "T2", ""))
	require.NoError(t, s.Rehydrate(ctx))
	assert.Equal(t, 1, changes, "refresh and rehydrate of the same user keep the identity")

	// Another process logs a different user in.
	require.NoError(t, store.Set(ctx, credstore.Credentials{AccessToken: "TB", User: &credstore.User{ID: 2, Email: "b@b.com"}}))
	require.NoError(t, s.Rehydrate(ctx))
	assert.Equal(t, 2, changes)

	s.Logout(ctx)
	assert.Equal(t, 3, changes)

	_, err = s.Login(ctx, LoginRequest{Email: "a@b.com"})
	require.NoError(t, err)
	s.Expire(ctx)
	assert.Equal(t, 5, changes)
}

func TestPublishFailureDoesNotUndoLogin(t *testing.T) {
	s := New(memory.New(), okAuth(), WithEvents(&recordingPublisher{err: errors.New("broker down")}))

	ok, err := s.Login(context.Background(), LoginRequest{Email: "a@b.com"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, s.IsAuthenticated())
}

// Readers must never observe a token without its user, or the reverse.
func TestSnapshotIsConsistentUnderConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New(), okAuth())
	_, err := s.Login(ctx, LoginRequest{Email: "a@b.com"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				st := s.Snapshot()
				if (st.AccessToken == "") != (st.User == nil) {
					t.Errorf("inconsistent snapshot %+v", st)
					return
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		switch i % 3 {
		case 0:
			_ = s.UpdateAccessToken(ctx, fmt.Sprintf("T%d", i), "")
		case 1:
			s.Expire(ctx)
		default:
			_, _ = s.Login(ctx, LoginRequest{Email: "a@b.com"})
		}
	}
	close(stop)
	wg.Wait()
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "a@b.com",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("server-secret"))
	require.NoError(t, err)

	got, err := TokenExpiry(signed)
	require.NoError(t, err)
	assert.True(t, got.Equal(exp))

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "x"}).SignedString([]byte("k"))
	require.NoError(t, err)
	_, err = TokenExpiry(noExp)
	assert.Error(t, err)

	_, err = TokenExpiry("not-a-jwt")
	assert.Error(t, err)
}
