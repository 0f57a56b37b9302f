package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	applog "fintrack/internal/log"
)

const refreshCookie = "refreshToken"

// ErrRefreshRejected is a refresh call that did not yield a new access token.
var ErrRefreshRejected = errors.New("refresh rejected")

// RefreshResult is a successful refresh. RefreshToken is set only when the
// backend rotated it.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
}

// Refresher calls the refresh endpoint on the raw transport, so a 401 from
// it is a plain failure and never triggers another refresh.
type Refresher struct {
	t      *Transport
	logger *applog.Logger
}

func NewRefresher(t *Transport) *Refresher {
	return &Refresher{t: t, logger: t.logger.WithComponent(applog.ComponentRefresh)}
}

// Refresh exchanges the refresh credential for a new access token.
// refreshToken may be empty; in cookie mode the cookie jar then supplies it.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	var (
		body   []byte
		header = http.Header{}
		err    error
	)
	switch r.t.refreshMode {
	case RefreshModeBody:
		body, err = encodeBody(map[string]string{"refreshToken": refreshToken})
		if err != nil {
			return RefreshResult{}, err
		}
	default:
		if refreshToken != "" {
			header.Set("Cookie", (&http.Cookie{Name: refreshCookie, Value: refreshToken}).String())
		}
	}

	r.logger.DebugContext(ctx, "Refreshing access token", applog.FieldPath, r.t.refreshPath)

	resp, err := r.t.roundTrip(ctx, http.MethodPost, r.t.refreshPath, nil, body, header)
	if err != nil {
		return RefreshResult{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return RefreshResult{}, fmt.Errorf("%w: %w", ErrRefreshRejected, newAPIError(resp.StatusCode, resp.Body))
	}

	var payload struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(resp.Body, &payload); err != nil {
		return RefreshResult{}, fmt.Errorf("%w: %w", ErrRefreshRejected, err)
	}
	if payload.AccessToken == "" {
		return RefreshResult{}, fmt.Errorf("%w: response carried no access token", ErrRefreshRejected)
	}

	rotated := payload.RefreshToken
	if rotated == "" {
		rotated = cookieValue(resp.Header, refreshCookie)
	}
	return RefreshResult{AccessToken: payload.AccessToken, RefreshToken: rotated}, nil
}
