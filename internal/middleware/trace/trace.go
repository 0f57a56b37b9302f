package trace

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	applog "fintrack/internal/log"
)

// ContextKey type for context keys
type ContextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"
	// AttemptKey is the context key for the replay attempt of a request
	AttemptKey ContextKey = "attempt"

	// HeaderRequestID is sent with every outbound API call.
	HeaderRequestID = "X-Request-ID"
)

// Transport traces outbound API calls. It wraps another http.RoundTripper,
// stamps a request ID on each call and logs start and completion.
type Transport struct {
	next   http.RoundTripper
	logger *applog.StructuredLogger
	since  func(time.Time) time.Duration

	requests    int64
	totalMicros int64
}

// Metrics tracks request metrics
type Metrics struct {
	TotalRequests       int64
	AverageResponseTime int64 // in microseconds
}

// NewTransport creates a tracing transport around next. A nil next uses
// http.DefaultTransport.
func NewTransport(next http.RoundTripper, logger *applog.Logger) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	if logger == nil {
		logger = applog.Discard()
	}
	return &Transport{
		next:   next,
		logger: applog.NewStructuredLogger(logger.WithComponent(applog.ComponentHTTP)),
		since:  time.Since,
	}
}

// RoundTrip implements http.RoundTripper
func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()
	ctx := r.Context()

	requestID := r.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = GetRequestID(ctx)
	}
	if requestID == "" {
		requestID = GenerateRequestID()
	}
	// RoundTrippers must not modify the caller's request
	r = r.Clone(context.WithValue(ctx, RequestIDKey, requestID))
	r.Header.Set(HeaderRequestID, requestID)

	t.logger.LogHTTPStart(r.Context(), r, requestID, GetAttempt(ctx))

	resp, err := t.next.RoundTrip(r)
	elapsed := t.since(start)
	durationMs := elapsed.Milliseconds()

	// Requests are counted once they finish so the average never divides
	// a partial sum.
	atomic.AddInt64(&t.totalMicros, elapsed.Microseconds())
	atomic.AddInt64(&t.requests, 1)

	if err != nil {
		t.logger.LogError(r.Context(), "API request failed", err, "round_trip",
			applog.NewFields().WithRequestID(requestID).WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, GetAttempt(ctx)))
		return nil, err
	}
	t.logger.LogHTTPEnd(r.Context(), r, requestID, resp.StatusCode, durationMs)
	return resp, nil
}

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	return uuid.NewString()
}

// WithRequestID returns a context whose outbound calls reuse requestID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithAttempt marks ctx with the replay attempt of the request it carries.
func WithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, AttemptKey, attempt)
}

// GetAttempt returns the attempt stored by WithAttempt, or 0.
func GetAttempt(ctx context.Context) int {
	if n, ok := ctx.Value(AttemptKey).(int); ok {
		return n
	}
	return 0
}

// GetMetrics returns current metrics. AverageResponseTime is the mean over
// every finished request.
func (t *Transport) GetMetrics() Metrics {
	n := atomic.LoadInt64(&t.requests)
	total := atomic.LoadInt64(&t.totalMicros)
	m := Metrics{TotalRequests: n}
	if n > 0 {
		m.AverageResponseTime = total / n
	}
	return m
}
