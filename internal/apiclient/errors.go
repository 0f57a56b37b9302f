package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrInvalidCredentials is returned when the backend rejects a login or
	// registration.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNetworkFailure matches every *NetworkError.
	ErrNetworkFailure = errors.New("network failure")
	// ErrSessionExpired means the session could not be recovered and has
	// been cleared. The user must log in again.
	ErrSessionExpired = errors.New("session expired")
	// ErrRefreshPathForbidden is returned when the refresh endpoint is sent
	// through Send; it would recover from its own 401.
	ErrRefreshPathForbidden = errors.New("refresh endpoint cannot be sent through the client")
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// NetworkError is a request that never produced an HTTP response.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetworkFailure }

// newAPIError builds an APIError, taking the message from a JSON body when
// there is one.
func newAPIError(status int, body []byte) *APIError {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	msg := ""
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		msg = payload.Message
		if msg == "" {
			msg = payload.Error
		}
	}
	if msg == "" {
		msg = strings.ToLower(http.StatusText(status))
	}
	if msg == "" {
		msg = "unexpected response"
	}
	return &APIError{Status: status, Message: msg}
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
