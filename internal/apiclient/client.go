// Package apiclient talks to the finance REST backend.
//
// Client attaches the session's bearer token to every request. When the
// backend answers 401 it refreshes the token once, shared by every request
// that failed at the same time, and replays the original request a single
// time with the new token. A failed refresh ends the session.
package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"

	"golang.org/x/sync/singleflight"

	applog "fintrack/internal/log"
	"fintrack/internal/middleware/trace"
)

const refreshKey = "refresh"

// Session is the state the client reads tokens from and reports refresh
// outcomes to. *session.Session implements it.
type Session interface {
	AccessToken() string
	RefreshToken() string
	UpdateAccessToken(ctx context.Context, token, refresh string) error
	Expire(ctx context.Context)
}

// Request is one API call. Anonymous requests carry no bearer token and a
// 401 answer is returned as an APIError.
type Request struct {
	Method    string
	Path      string
	Query     url.Values
	Body      any
	Header    http.Header
	Anonymous bool
}

// pendingRequest is a request in flight. attempt becomes 1 before the
// replay is sent, so a second 401 is recognised as final.
type pendingRequest struct {
	req     Request
	body    []byte
	attempt int
}

type Client struct {
	t         *Transport
	session   Session
	refresher *Refresher
	group     singleflight.Group
	onExpired func(context.Context)
	logger    *applog.Logger
}

type Option func(*Client)

// OnSessionExpired registers fn to run once each time the session is
// cleared because it could not be recovered.
func OnSessionExpired(fn func(context.Context)) Option {
	return func(c *Client) { c.onExpired = fn }
}

func New(t *Transport, sess Session, opts ...Option) *Client {
	c := &Client{
		t:         t,
		session:   sess,
		refresher: NewRefresher(t),
		logger:    t.logger.WithComponent(applog.ComponentHTTP),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send issues req and returns the 2xx response. Non-2xx answers are
// *APIError; a session that cannot be recovered is ErrSessionExpired.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	if path.Clean("/"+req.Path) == path.Clean("/"+c.t.refreshPath) {
		return nil, ErrRefreshPathForbidden
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}
	p := &pendingRequest{req: req, body: body}
	if trace.GetRequestID(ctx) == "" {
		// Keep one id across the original call and its replay.
		ctx = trace.WithRequestID(ctx, trace.GenerateRequestID())
	}

	for {
		token := ""
		header := req.Header.Clone()
		if header == nil {
			header = http.Header{}
		}
		if !req.Anonymous {
			token = c.session.AccessToken()
			if token != "" {
				header.Set("Authorization", "Bearer "+token)
			}
		}

		resp, err := c.t.roundTrip(trace.WithAttempt(ctx, p.attempt), req.Method, req.Path, req.Query, p.body, header)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return resp, nil
		}
		if resp.StatusCode != http.StatusUnauthorized || req.Anonymous {
			return nil, newAPIError(resp.StatusCode, resp.Body)
		}

		if p.attempt > 0 {
			c.logger.WarnContext(ctx, "Replayed request rejected again",
				applog.FieldMethod, req.Method, applog.FieldPath, req.Path)
			c.expire(ctx)
			return nil, ErrSessionExpired
		}
		p.attempt = 1
		if err := c.recover(ctx, token); err != nil {
			return nil, err
		}
	}
}

// Do sends req and decodes the payload into out.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	resp, err := c.Send(ctx, req)
	if err != nil {
		return err
	}
	return decodeBody(resp.Body, out)
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path}, nil)
}

// recover makes a fresh access token available for the replay of a request
// that was rejected while carrying staleToken.
func (c *Client) recover(ctx context.Context, staleToken string) error {
	if staleToken != "" {
		switch current := c.session.AccessToken(); {
		case current == "":
			// A concurrent refresh already failed and cleared the session.
			return ErrSessionExpired
		case current != staleToken:
			// A refresh finished after this request was sent.
			return nil
		}
	}

	ch := c.group.DoChan(refreshKey, func() (any, error) {
		// Waiters share this call; no single caller may cancel it.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.t.timeout)
		defer cancel()
		return nil, c.refresh(rctx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) refresh(ctx context.Context) error {
	res, err := c.refresher.Refresh(ctx, c.session.RefreshToken())
	if err != nil {
		c.logger.WarnContext(ctx, "Token refresh failed", applog.FieldOperation, applog.OpRefresh, applog.FieldError, err)
		c.expire(ctx)
		return fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	if err := c.session.UpdateAccessToken(ctx, res.AccessToken, res.RefreshToken); err != nil {
		c.logger.WarnContext(ctx, "Refreshed token could not be stored", applog.FieldOperation, applog.OpRefresh, applog.FieldError, err)
		c.expire(ctx)
		return fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	c.logger.DebugContext(ctx, "Token refreshed", applog.FieldOperation, applog.OpRefresh)
	return nil
}

func (c *Client) expire(ctx context.Context) {
	c.session.Expire(ctx)
	if c.onExpired != nil {
		c.onExpired(ctx)
	}
}
