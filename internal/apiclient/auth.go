package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"fintrack/internal/credstore"
	"fintrack/internal/session"
)

const (
	loginPath    = "/api/auth/login"
	registerPath = "/api/auth/register"
)

// AuthClient performs login and registration. Both calls are anonymous: no
// bearer token is attached and a 401 is a rejection, not an expired session.
type AuthClient struct {
	t *Transport
}

var _ session.Authenticator = (*AuthClient)(nil)

func NewAuthClient(t *Transport) *AuthClient {
	return &AuthClient{t: t}
}

type authResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Type         string `json:"type"`
	UserID       int64  `json:"userId"`
	Email        string `json:"email"`
	FullName     string `json:"fullName"`
}

func (a *AuthClient) Login(ctx context.Context, req session.LoginRequest) (session.AuthResult, error) {
	return a.call(ctx, loginPath, req)
}

func (a *AuthClient) Register(ctx context.Context, req session.RegisterRequest) (session.AuthResult, error) {
	return a.call(ctx, registerPath, req)
}

func (a *AuthClient) call(ctx context.Context, path string, payload any) (session.AuthResult, error) {
	body, err := encodeBody(payload)
	if err != nil {
		return session.AuthResult{}, err
	}
	resp, err := a.t.roundTrip(ctx, http.MethodPost, path, nil, body, nil)
	if err != nil {
		return session.AuthResult{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return session.AuthResult{}, authError(newAPIError(resp.StatusCode, resp.Body))
	}

	var out authResponse
	if err := decodeBody(resp.Body, &out); err != nil {
		return session.AuthResult{}, err
	}
	refresh := out.RefreshToken
	if refresh == "" {
		refresh = cookieValue(resp.Header, refreshCookie)
	}
	return session.AuthResult{
		AccessToken:  out.AccessToken,
		RefreshToken: refresh,
		User:         credstore.User{ID: out.UserID, Email: out.Email, FullName: out.FullName},
	}, nil
}

// authError maps rejections of the auth endpoints to ErrInvalidCredentials,
// keeping the APIError reachable through errors.As.
func authError(apiErr *APIError) error {
	switch apiErr.Status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusConflict:
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, apiErr)
	default:
		return apiErr
	}
}

// IsInvalidCredentials reports whether err is a rejected login or registration.
func IsInvalidCredentials(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}
