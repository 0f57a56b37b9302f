package apiclient

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/credstore"
	"fintrack/internal/credstore/memory"
	"fintrack/internal/session"
)

type harness struct {
	backend  *fakeBackend
	store    *memory.Store
	session  *session.Session
	client   *Client
	auth     *AuthClient
	expiries atomic.Int32
}

// newHarness returns a client whose session holds the stale token T1 and
// the refresh token R1.
func newHarness(t *testing.T, mode RefreshMode, opts ...func(*fakeBackend)) *harness {
	t.Helper()
	h := &harness{backend: newFakeBackend(t, opts...)}

	tr, err := NewTransport(Config{BaseURL: h.backend.srv.URL, Timeout: 5 * time.Second, RefreshMode: mode})
	require.NoError(t, err)

	h.store = memory.NewWith(credstore.Credentials{
		AccessToken:  "T1",
		RefreshToken: "R1",
		User:         &credstore.User{ID: 1, Email: "a@b.com", FullName: "A B"},
	})
	h.auth = NewAuthClient(tr)
	h.session = session.New(h.store, h.auth)
	require.NoError(t, h.session.Rehydrate(context.Background()))
	h.client = New(tr, h.session, OnSessionExpired(func(context.Context) { h.expiries.Add(1) }))
	return h
}

func (h *harness) storedToken(t *testing.T) (string, bool) {
	c, found, err := h.store.Get(context.Background())
	require.NoError(t, err)
	return c.AccessToken, found
}

func TestRefreshThenReplayWithNewToken(t *testing.T) {
	h := newHarness(t, RefreshModeCookie)

	var cats []map[string]any
	err := h.client.Get(context.Background(), "/api/categories", nil, &cats)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "Food", cats[0]["name"])

	assert.Equal(t, []string{"Bearer T1", "Bearer T2"}, h.backend.headers())
	assert.Equal(t, int32(1), h.backend.refreshCalls.Load())
	assert.Equal(t, []string{"R1"}, h.backend.refreshSeen)

	token, found := h.storedToken(t)
	assert.True(t, found)
	assert.Equal(t, "T2", token)
	assert.Equal(t, "T2", h.session.AccessToken())
	assert.Equal(t, "a@b.com", h.session.User().Email, "user survives the refresh")
	assert.Zero(t, h.expiries.Load())
}

func TestConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	const n = 8
	h := newHarness(t, RefreshModeCookie, func(b *fakeBackend) {
		b.hold = n
		b.refreshDelay = 50 * time.Millisecond
	})

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.client.Get(context.Background(), "/api/categories", nil, nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "request %d", i)
	}
	assert.Equal(t, int32(1), h.backend.refreshCalls.Load())

	var t1, t2 int
	for _, hdr := range h.backend.headers() {
		switch hdr {
		case "Bearer T1":
			t1++
		case "Bearer T2":
			t2++
		}
	}
	assert.Equal(t, n, t1)
	assert.Equal(t, n, t2, "every request replayed exactly once")
}

func TestRefreshFailureExpiresSessionForAllWaiters(t *testing.T) {
	const n = 5
	h := newHarness(t, RefreshModeCookie, func(b *fakeBackend) {
		b.hold = n
		b.refreshFails = true
		b.refreshDelay = 20 * time.Millisecond
	})

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.client.Get(context.Background(), "/api/categories", nil, nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.ErrorIs(t, err, ErrSessionExpired, "request %d", i)
	}
	assert.Equal(t, int32(1), h.backend.refreshCalls.Load())
	assert.Equal(t, int32(1), h.expiries.Load())

	_, found := h.storedToken(t)
	assert.False(t, found, "store must be cleared")
	assert.False(t, h.session.IsAuthenticated())
	assert.Nil(t, h.session.User())
}

func TestSecondUnauthorizedIsFinal(t *testing.T) {
	h := newHarness(t, RefreshModeCookie)

	err := h.client.Get(context.Background(), "/api/always401", nil, nil)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, int32(1), h.backend.refreshCalls.Load(), "no second refresh")
	assert.Equal(t, []string{"Bearer T1", "Bearer T2"}, h.backend.headers())
	assert.False(t, h.session.IsAuthenticated())
	assert.Equal(t, int32(1), h.expiries.Load())
}

func TestOtherErrorsPassThrough(t *testing.T) {
	h := newHarness(t, RefreshModeCookie)
	require.NoError(t, h.session.UpdateAccessToken(context.Background(), "T2", ""))

	err := h.client.Get(context.Background(), "/api/transactions/404", nil, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "Transaction not found", apiErr.Message)
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.Zero(t, h.backend.refreshCalls.Load())
	assert.True(t, h.session.IsAuthenticated())
}

func TestUnenvelopedBodyIsDecodedDirectly(t *testing.T) {
	h := newHarness(t, RefreshModeCookie)
	require.NoError(t, h.session.UpdateAccessToken(context.Background(), "T2", ""))

	var out struct{ Value int }
	require.NoError(t, h.client.Get(context.Background(), "/api/raw", nil, &out))
	assert.Equal(t, 3, out.Value)
}

func TestRefreshPathCannotBeSent(t *testing.T) {
	h := newHarness(t, RefreshModeCookie)

	for _, p := range []string{"/api/auth/refresh-token", "api/auth/refresh-token", "/api/auth/refresh-token/"} {
		_, err := h.client.Send(context.Background(), Request{Method: http.MethodPost, Path: p})
		assert.ErrorIs(t, err, ErrRefreshPathForbidden, p)
	}
	assert.Zero(t, h.backend.refreshCalls.Load())
	assert.Empty(t, h.backend.headers())
}

func TestAnonymousRequestCarriesNoToken(t *testing.T) {
	h := newHarness(t, RefreshModeCookie)

	err := h.client.Do(context.Background(), Request{Path: "/api/always401", Anonymous: true}, nil)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.Equal(t, []string{""}, h.backend.headers())
	assert.Zero(t, h.backend.refreshCalls.Load())
	assert.True(t, h.session.IsAuthenticated())
}

func TestNetworkFailure(t *testing.T) {
	h := newHarness(t, RefreshModeCookie)
	h.backend.srv.Close()

	err := h.client.Get(context.Background(), "/api/categories", nil, nil)
	assert.ErrorIs(t, err, ErrNetworkFailure)
	var netErr *NetworkError
	assert.ErrorAs(t, err, &netErr)
	assert.True(t, h.session.IsAuthenticated(), "network errors never end the session")
}

func TestRefreshInBodyMode(t *testing.T) {
	h := newHarness(t, RefreshModeBody)

	require.NoError(t, h.client.Get(context.Background(), "/api/categories", nil, nil))
	assert.Equal(t, []string{"R1"}, h.backend.refreshSeen)
	assert.Equal(t, "T2", h.session.AccessToken())
}

func TestRotatedRefreshTokenIsStored(t *testing.T) {
	h := newHarness(t, RefreshModeCookie, func(b *fakeBackend) { b.rotateCookie = "R2" })

	require.NoError(t, h.client.Get(context.Background(), "/api/categories", nil, nil))
	assert.Equal(t, "R2", h.session.RefreshToken())
	c, _, _ := h.store.Get(context.Background())
	assert.Equal(t, "R2", c.RefreshToken)
}

func TestCanceledCallerDoesNotFailOthers(t *testing.T) {
	h := newHarness(t, RefreshModeCookie, func(b *fakeBackend) {
		b.hold = 2
		b.refreshDelay = 100 * time.Millisecond
	})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var canceledErr, otherErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		canceledErr = h.client.Get(ctx, "/api/categories", nil, nil)
	}()
	go func() {
		defer wg.Done()
		otherErr = h.client.Get(context.Background(), "/api/categories", nil, nil)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	wg.Wait()

	assert.True(t, errors.Is(canceledErr, context.Canceled), "got %v", canceledErr)
	assert.NoError(t, otherErr)
	assert.Equal(t, "T2", h.session.AccessToken())
}

func TestLoginScenario(t *testing.T) {
	h := newHarness(t, RefreshModeCookie)
	ctx := context.Background()
	h.session.Logout(ctx)

	ok, err := h.session.Login(ctx, session.LoginRequest{Email: "a@b.com", Password: "pw"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, h.session.IsAuthenticated())
	assert.Equal(t, "a@b.com", h.session.User().Email)
	assert.Equal(t, "R1", h.session.RefreshToken(), "refresh token taken from Set-Cookie")

	c, found, err := h.store.Get(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "T1", c.AccessToken)
	assert.Equal(t, int64(1), c.User.ID)
}

func TestLoginRejected(t *testing.T) {
	h := newHarness(t, RefreshModeCookie)
	ctx := context.Background()
	h.session.Logout(ctx)

	ok, err := h.session.Login(ctx, session.LoginRequest{Email: "a@b.com", Password: "wrong"})
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.True(t, IsInvalidCredentials(err))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Invalid email or password", apiErr.Message)
	assert.False(t, h.session.IsAuthenticated())
	assert.Zero(t, h.backend.refreshCalls.Load(), "auth rejections never refresh")
}

func TestNewTransportValidation(t *testing.T) {
	_, err := NewTransport(Config{BaseURL: "localhost:8080"})
	assert.Error(t, err)
	_, err = NewTransport(Config{BaseURL: "http://x", RefreshMode: "header"})
	assert.Error(t, err)
	tr, err := NewTransport(Config{BaseURL: "http://x/base"})
	require.NoError(t, err)
	assert.Equal(t, "http://x/base/api/budgets?month=2", tr.resolve("/api/budgets", map[string][]string{"month": {"2"}}).String())
}

func TestDecodeBody(t *testing.T) {
	var v struct{ A int }
	require.NoError(t, decodeBody([]byte(`{"success":true,"data":{"A":1}}`), &v))
	assert.Equal(t, 1, v.A)
	require.NoError(t, decodeBody([]byte(`{"A":2}`), &v))
	assert.Equal(t, 2, v.A)
	require.NoError(t, decodeBody([]byte(`{"success":true,"data":null}`), &v))
	assert.Equal(t, 2, v.A)

	var list []int
	require.NoError(t, decodeBody([]byte(`[1,2]`), &list))
	assert.Equal(t, []int{1, 2}, list)
	assert.Error(t, decodeBody([]byte(`{"success":true,"data":"x"}`), &list))
}
