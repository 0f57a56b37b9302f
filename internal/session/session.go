// Package session holds the in-memory authentication state of the client and
// keeps it in step with the durable credential store.
//
// The store is always written first; memory only changes once the store
// accepted the new credentials, so a crash never leaves a token without its
// user on disk.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fintrack/internal/credstore"
	applog "fintrack/internal/log"
)

// ErrNoSession is returned by UpdateAccessToken when nobody is logged in.
var ErrNoSession = errors.New("no active session")

type (
	LoginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	RegisterRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		FullName string `json:"fullName"`
	}

	// AuthResult is the backend's answer to a successful login or register.
	// An empty AccessToken means the backend accepted the call without
	// opening a session.
	AuthResult struct {
		AccessToken  string
		RefreshToken string
		User         credstore.User
	}

	// Authenticator performs the unauthenticated auth calls.
	Authenticator interface {
		Login(ctx context.Context, req LoginRequest) (AuthResult, error)
		Register(ctx context.Context, req RegisterRequest) (AuthResult, error)
	}

	// State is a consistent copy of the session.
	State struct {
		AccessToken string
		User        *credstore.User
	}
)

type Session struct {
	store  credstore.Store
	auth   Authenticator
	events EventPublisher
	logger *applog.Logger
	hooks  []func(context.Context)

	mu      sync.RWMutex
	token   string
	refresh string
	user    *credstore.User
}

type Option func(*Session)

// WithEvents publishes lifecycle events to p.
func WithEvents(p EventPublisher) Option {
	return func(s *Session) { s.events = p }
}

// WithChangeHook runs fn whenever the session's identity changes: login,
// register, logout, expiry, or a rehydrate that loads a different user.
// A token refresh for the same user does not count. fn runs after the
// change, outside the session lock.
func WithChangeHook(fn func(ctx context.Context)) Option {
	return func(s *Session) { s.hooks = append(s.hooks, fn) }
}

func WithLogger(l *applog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l.WithComponent(applog.ComponentSession)
		}
	}
}

// New returns a logged out session. Call Rehydrate to pick up stored credentials.
func New(store credstore.Store, auth Authenticator, opts ...Option) *Session {
	s := &Session{
		store:  store,
		auth:   auth,
		events: nopPublisher{},
		logger: applog.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login authenticates and, on success, persists token and user together.
// It reports false without error when the backend returned no token.
func (s *Session) Login(ctx context.Context, req LoginRequest) (bool, error) {
	res, err := s.auth.Login(ctx, req)
	if err != nil {
		s.logger.InfoContext(ctx, "Login rejected", applog.FieldEmail, req.Email, applog.FieldError, err)
		return false, err
	}
	return s.establish(ctx, res, EventLogin)
}

// Register creates an account; the backend logs the new user in directly.
func (s *Session) Register(ctx context.Context, req RegisterRequest) (bool, error) {
	res, err := s.auth.Register(ctx, req)
	if err != nil {
		s.logger.InfoContext(ctx, "Registration rejected", applog.FieldEmail, req.Email, applog.FieldError, err)
		return false, err
	}
	return s.establish(ctx, res, EventRegister)
}

func (s *Session) establish(ctx context.Context, res AuthResult, kind EventType) (bool, error) {
	if res.AccessToken == "" {
		return false, nil
	}
	user := res.User
	creds := credstore.Credentials{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken, User: &user}

	s.mu.Lock()
	if err := s.store.Set(ctx, creds); err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("persist credentials: %w", err)
	}
	s.token, s.refresh, s.user = res.AccessToken, res.RefreshToken, &user
	s.mu.Unlock()
	s.changed(ctx)

	s.logger.InfoContext(ctx, "Session established",
		applog.FieldOperation, string(kind), applog.FieldUserID, user.ID, applog.FieldEmail, user.Email)
	s.publish(ctx, kind, &user)
	return true, nil
}

// Logout clears store and memory. It never fails; store errors are logged.
func (s *Session) Logout(ctx context.Context) {
	user := s.clear(ctx)
	s.changed(ctx)
	s.logger.InfoContext(ctx, "Logged out", applog.FieldOperation, applog.OpLogout)
	s.publish(ctx, EventLogout, user)
}

// Expire is Logout caused by the server rejecting the session.
func (s *Session) Expire(ctx context.Context) {
	user := s.clear(ctx)
	s.changed(ctx)
	s.logger.WarnContext(ctx, "Session expired, credentials cleared", applog.FieldOperation, applog.OpExpire)
	s.publish(ctx, EventExpired, user)
}

func (s *Session) clear(ctx context.Context) *credstore.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Clear(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Failed to clear credential store", applog.FieldError, err)
	}
	user := s.user
	s.token, s.refresh, s.user = "", "", nil
	return user
}

// Rehydrate makes memory mirror the store. A store holding only half a
// session, or failing to read, leaves the session logged out.
func (s *Session) Rehydrate(ctx context.Context) error {
	s.mu.Lock()
	before := userID(s.user)

	creds, found, err := s.store.Get(ctx)
	if err != nil || !found {
		s.token, s.refresh, s.user = "", "", nil
	} else {
		s.token, s.refresh, s.user = creds.AccessToken, creds.RefreshToken, creds.User
	}
	after := userID(s.user)
	s.mu.Unlock()

	if before != after {
		s.changed(ctx)
	}
	if err != nil {
		return fmt.Errorf("read credentials: %w", err)
	}
	return nil
}

// UpdateAccessToken stores a refreshed token next to the current user. An
// empty refresh keeps the stored refresh token.
func (s *Session) UpdateAccessToken(ctx context.Context, token, refresh string) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return ErrNoSession
	}
	if refresh == "" {
		refresh = s.refresh
	}
	user := *s.user
	if err := s.store.Set(ctx, credstore.Credentials{AccessToken: token, RefreshToken: refresh, User: &user}); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("persist refreshed token: %w", err)
	}
	s.token, s.refresh = token, refresh
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "Access token refreshed", applog.FieldUserID, user.ID)
	s.publish(ctx, EventRefresh, &user)
	return nil
}

func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}

// User returns a copy of the logged in user, or nil.
func (s *Session) User() *credstore.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Session) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := State{AccessToken: s.token}
	if s.user != nil {
		u := *s.user
		st.User = &u
	}
	return st
}

func (s *Session) changed(ctx context.Context) {
	for _, fn := range s.hooks {
		fn(ctx)
	}
}

// userID identifies the logged in user for change detection; 0 means nobody.
func userID(u *credstore.User) int64 {
	if u == nil {
		return 0
	}
	return u.ID
}

func (s *Session) publish(ctx context.Context, kind EventType, user *credstore.User) {
	if err := s.events.Publish(ctx, NewEvent(kind, user)); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish session event", applog.FieldOperation, string(kind), applog.FieldError, err)
	}
}
