package finance

import (
	"context"
	"net/url"

	"fintrack/internal/core"
)

const categoriesPath = "/api/categories"

// Categories lists categories, optionally of one type only.
func (s *Service) Categories(ctx context.Context, typ core.TransactionType) ([]core.Category, error) {
	if typ != "" && !typ.Valid() {
		return nil, core.ErrInvalidType
	}
	q := url.Values{}
	if typ != "" {
		q.Set("type", string(typ))
	}
	return cachedGet[[]core.Category](ctx, s, keyCategories+string(typ), categoriesPath, q)
}
