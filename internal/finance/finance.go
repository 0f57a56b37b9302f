// Package finance provides typed clients for the categories, transactions,
// budgets and dashboard endpoints. Reads are cached for a short TTL and every
// write drops the cached data it may have changed.
package finance

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

// API is the authenticated transport. *apiclient.Client implements it.
type API interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Put(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string) error
}

const (
	keyCategories    = "categories:"
	keyTransactions  = "transactions:"
	keyDeleted       = "deleted:"
	keyBudgets       = "budgets:"
	keyBudgetSummary = "budget-summary:"
	keyDashboard     = "dashboard:"
)

var ErrInvalidID = errors.New("invalid id")

type Service struct {
	api    API
	cache  cache.Cache[any]
	logger *applog.Logger
}

type Option func(*Service)

// WithCache caches reads in c. Without it every read goes to the backend.
func WithCache(c cache.Cache[any]) Option {
	return func(s *Service) { s.cache = c }
}

func WithLogger(l *applog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l.WithComponent(applog.ComponentFinance)
		}
	}
}

func New(api API, opts ...Option) *Service {
	s := &Service{
		api:    api,
		cache:  noCache{},
		logger: applog.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewCache returns the cache type Service expects.
func NewCache(size int, ttl time.Duration) *cache.LRUCache[any] {
	return cache.NewLRUCache[any](size, ttl)
}

// cachedGet serves key from the cache or fetches path and caches the result.
func cachedGet[T any](ctx context.Context, s *Service, key, path string, query url.Values) (T, error) {
	if v, ok := s.cache.Get(key); ok {
		if typed, ok := v.(T); ok {
			s.logger.DebugContext(ctx, "Cache hit", "key", key)
			return typed, nil
		}
	}
	var out T
	if err := s.api.Get(ctx, path, query, &out); err != nil {
		return out, err
	}
	s.cache.Set(key, out)
	return out, nil
}

type noCache struct{}

func (noCache) Get(string) (any, bool) { return nil, false }
func (noCache) Set(string, any) {}
func (noCache) Delete(string) {}
func (noCache) DeletePrefix(string) int { return 0 }
func (noCache) Purge() {}
func (noCache) Size() int { return 0 }

// Reset drops every cached read. Cached data belongs to the session that
// fetched it; call Reset whenever the session changes hands or ends.
func (s *Service) Reset() {
	s.cache.Purge()
	s.logger.Debug("Finance cache cleared")
}

func (s *Service) invalidate(prefixes ...string) {
	for _, p := range prefixes {
		s.cache.DeletePrefix(p)
	}
}

// invalidateLedger drops everything derived from transactions.
func (s *Service) invalidateLedger() {
	s.invalidate(keyTransactions, keyDeleted, keyBudgets, keyBudgetSummary, keyDashboard)
}

// Period selects a month. The zero value lets the backend pick the
// current month.
type Period struct {
	Month int
	Year  int
}

func (p Period) Validate() error {
	if p.Month != 0 && (p.Month < 1 || p.Month > 12) {
		return fmt.Errorf("month %d: %w", p.Month, core.ErrInvalidMonth)
	}
	if p.Year != 0 && (p.Year < 2000 || p.Year > 2100) {
		return fmt.Errorf("year %d: %w", p.Year, core.ErrInvalidYear)
	}
	return nil
}

func (p Period) query() url.Values {
	q := url.Values{}
	if p.Month != 0 {
		q.Set("month", strconv.Itoa(p.Month))
	}
	if p.Year != 0 {
		q.Set("year", strconv.Itoa(p.Year))
	}
	return q
}

func (p Period) key() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

func idPath(base string, id int64, suffix ...string) (string, error) {
	if id <= 0 {
		return "", fmt.Errorf("%d: %w", id, ErrInvalidID)
	}
	p := base + "/" + strconv.FormatInt(id, 10)
	for _, s := range suffix {
		p += "/" + s
	}
	return p, nil
}
