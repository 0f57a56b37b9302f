package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	applog "fintrack/internal/log"
	"fintrack/internal/middleware/trace"
)

type RefreshMode string

const (
	RefreshModeCookie RefreshMode = "cookie"
	RefreshModeBody   RefreshMode = "body"
)

const (
	DefaultRefreshPath = "/api/auth/refresh-token"
	defaultTimeout     = 10 * time.Second
	maxBodyBytes       = 10 << 20
)

// Config configures the HTTP transport shared by every API client.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RefreshPath string
	RefreshMode RefreshMode
	Logger      *applog.Logger
	// RoundTripper is the base transport. Nil uses http.DefaultTransport.
	RoundTripper http.RoundTripper
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport issues raw calls against the backend. It knows nothing about
// sessions; Client layers authorization and recovery on top of it.
type Transport struct {
	base        *url.URL
	http        *http.Client
	timeout     time.Duration
	refreshPath string
	refreshMode RefreshMode
	logger      *applog.Logger
	trace       *trace.Transport
}

func NewTransport(cfg Config) (*Transport, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RefreshPath == "" {
		cfg.RefreshPath = DefaultRefreshPath
	}
	switch cfg.RefreshMode {
	case "":
		cfg.RefreshMode = RefreshModeCookie
	case RefreshModeCookie, RefreshModeBody:
	default:
		return nil, fmt.Errorf("unknown refresh mode %q", cfg.RefreshMode)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = applog.Discard()
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	tr := trace.NewTransport(cfg.RoundTripper, logger)

	return &Transport{
		base:        base,
		http:        &http.Client{Timeout: cfg.Timeout, Jar: jar, Transport: tr},
		timeout:     cfg.Timeout,
		refreshPath: cfg.RefreshPath,
		refreshMode: cfg.RefreshMode,
		logger:      logger,
		trace:       tr,
	}, nil
}

// Metrics returns request counters of the tracing transport.
func (t *Transport) Metrics() trace.Metrics {
	return t.trace.GetMetrics()
}

func (t *Transport) resolve(path string, query url.Values) *url.URL {
	u := t.base.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u
}

// roundTrip sends one request and reads the whole response. Only transport
// failures are errors; any HTTP status is returned as a Response.
func (t *Transport) roundTrip(ctx context.Context, method, path string, query url.Values, body []byte, header http.Header) (*Response, error) {
	u := t.resolve(path, query)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Method: method, URL: u.Redacted(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &NetworkError{Method: method, URL: u.Redacted(), Err: fmt.Errorf("read body: %w", err)}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// envelope is the wrapper the backend puts around every payload.
type envelope struct {
	Success   *bool           `json:"success"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// decodeBody unwraps the backend envelope when present and decodes the
// payload into out. A nil out or an empty body decodes nothing.
func decodeBody(body []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Success != nil {
		if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
			return nil
		}
		body = env.Data
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func encodeBody(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return data, nil
}

// cookieValue returns the named cookie set by a response.
func cookieValue(h http.Header, name string) string {
	for _, c := range (&http.Response{Header: h}).Cookies() {
		if c.Name == name && c.Value != "" {
			return c.Value
		}
	}
	return ""
}
