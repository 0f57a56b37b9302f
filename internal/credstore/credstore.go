// Package credstore defines the durable credential storage used to keep a
// session alive across process runs.
//
// A Store is intentionally dumb: it persists the access token, the user
// identity and an optional refresh token, and hands them back. Token and user
// are always written and cleared together.
package credstore

import (
	"context"
	"errors"
)

// Storage keys. They match the names the web client kept in local storage.
const (
	KeyAccessToken  = "auth_token"
	KeyUser         = "user"
	KeyRefreshToken = "refresh_token"
)

// ErrIncompleteCredentials is returned by Set when the token or the user is missing.
var ErrIncompleteCredentials = errors.New("credentials need both access token and user")

// User is the cached identity of the logged in account.
type User struct {
	ID       int64  `json:"userId"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
}

// Credentials is the persisted session. RefreshToken is optional.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	User         *User
}

// Complete reports whether both halves of the session are present.
func (c Credentials) Complete() bool {
	return c.AccessToken != "" && c.User != nil
}

// Store persists credentials. Implementations must be safe for concurrent use
// and apply Set and Clear atomically.
type Store interface {
	// Set replaces the stored credentials.
	Set(ctx context.Context, c Credentials) error
	// Get returns the stored credentials. found is false unless both the
	// access token and the user are present.
	Get(ctx context.Context) (c Credentials, found bool, err error)
	// Clear removes every stored key. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

// Closer is implemented by stores holding an open file or connection.
type Closer interface {
	Close() error
}

// Validate is the check every backend applies before writing.
func Validate(c Credentials) error {
	if !c.Complete() {
		return ErrIncompleteCredentials
	}
	return nil
}
