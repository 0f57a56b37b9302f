package finance

import (
	"context"
	"errors"
	"net/url"
	"strconv"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

const (
	transactionsPath = "/api/transactions"
	defaultPageSize  = 10
	maxPageSize      = 100
)

var ErrInvalidRange = errors.New("start date is after end date")

// TransactionFilter narrows a transaction listing. Zero fields are not sent.
type TransactionFilter struct {
	Page       int
	Size       int
	Type       core.TransactionType
	CategoryID int64
	StartDate  core.Date
	EndDate    core.Date
}

// Query validates the filter and encodes it as query parameters.
func (f TransactionFilter) Query() (url.Values, error) {
	if f.Page < 0 {
		f.Page = 0
	}
	if f.Size <= 0 {
		f.Size = defaultPageSize
	}
	if f.Size > maxPageSize {
		f.Size = maxPageSize
	}
	if f.Type != "" && !f.Type.Valid() {
		return nil, core.ErrInvalidType
	}
	if !f.StartDate.IsZero() && !f.EndDate.IsZero() && f.StartDate.After(f.EndDate.Time) {
		return nil, ErrInvalidRange
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(f.Page))
	q.Set("size", strconv.Itoa(f.Size))
	if f.Type != "" {
		q.Set("type", string(f.Type))
	}
	if f.CategoryID > 0 {
		q.Set("categoryId", strconv.FormatInt(f.CategoryID, 10))
	}
	if !f.StartDate.IsZero() {
		q.Set("startDate", f.StartDate.String())
	}
	if !f.EndDate.IsZero() {
		q.Set("endDate", f.EndDate.String())
	}
	return q, nil
}

func (s *Service) Transactions(ctx context.Context, f TransactionFilter) (core.Page[core.Transaction], error) {
	q, err := f.Query()
	if err != nil {
		return core.Page[core.Transaction]{}, err
	}
	return cachedGet[core.Page[core.Transaction]](ctx, s, keyTransactions+q.Encode(), transactionsPath, q)
}

func (s *Service) Transaction(ctx context.Context, id int64) (core.Transaction, error) {
	var tx core.Transaction
	p, err := idPath(transactionsPath, id)
	if err != nil {
		return tx, err
	}
	err = s.api.Get(ctx, p, nil, &tx)
	return tx, err
}

func (s *Service) CreateTransaction(ctx context.Context, req core.TransactionRequest) (core.Transaction, error) {
	var tx core.Transaction
	if err := req.Validate(); err != nil {
		return tx, err
	}
	if err := s.api.Post(ctx, transactionsPath, req, &tx); err != nil {
		return tx, err
	}
	s.invalidateLedger()
	s.logger.InfoContext(ctx, "Transaction created",
		applog.FieldOperation, applog.OpCreate, "id", tx.ID, applog.FieldAmountCents, tx.Amount.Cents)
	return tx, nil
}

func (s *Service) UpdateTransaction(ctx context.Context, id int64, req core.TransactionRequest) (core.Transaction, error) {
	var tx core.Transaction
	p, err := idPath(transactionsPath, id)
	if err != nil {
		return tx, err
	}
	if err := req.Validate(); err != nil {
		return tx, err
	}
	if err := s.api.Put(ctx, p, req, &tx); err != nil {
		return tx, err
	}
	s.invalidateLedger()
	s.logger.InfoContext(ctx, "Transaction updated", applog.FieldOperation, applog.OpUpdate, "id", id)
	return tx, nil
}

// DeleteTransaction soft deletes; the transaction can be restored.
func (s *Service) DeleteTransaction(ctx context.Context, id int64) error {
	return s.ledgerWrite(ctx, applog.OpDelete, id, func(p string) error { return s.api.Delete(ctx, p) })
}

// PurgeTransaction deletes a transaction for good.
func (s *Service) PurgeTransaction(ctx context.Context, id int64) error {
	return s.ledgerWrite(ctx, "purge", id, func(p string) error { return s.api.Delete(ctx, p) }, "permanent")
}

func (s *Service) RestoreTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	var tx core.Transaction
	err := s.ledgerWrite(ctx, applog.OpRestore, id, func(p string) error { return s.api.Put(ctx, p, nil, &tx) }, "restore")
	return tx, err
}

// DeletedTransactions lists soft deleted transactions.
func (s *Service) DeletedTransactions(ctx context.Context, page, size int) (core.Page[core.Transaction], error) {
	q, err := TransactionFilter{Page: page, Size: size}.Query()
	if err != nil {
		return core.Page[core.Transaction]{}, err
	}
	return cachedGet[core.Page[core.Transaction]](ctx, s, keyDeleted+q.Encode(), transactionsPath+"/deleted", q)
}

func (s *Service) ledgerWrite(ctx context.Context, op string, id int64, call func(path string) error, suffix ...string) error {
	p, err := idPath(transactionsPath, id, suffix...)
	if err != nil {
		return err
	}
	if err := call(p); err != nil {
		return err
	}
	s.invalidateLedger()
	s.logger.InfoContext(ctx, "Transaction changed", applog.FieldOperation, op, "id", id)
	return nil
}

// MonthTransactions pages through every transaction dated in the month.
func (s *Service) MonthTransactions(ctx context.Context, year, month int) ([]core.Transaction, error) {
	if err := (Period{Month: month, Year: year}).Validate(); err != nil {
		return nil, err
	}
	if month == 0 || year == 0 {
		return nil, core.ErrInvalidMonth
	}
	start := core.NewDate(year, month, 1)
	end := core.Date{Time: start.AddDate(0, 1, -1)}

	var out []core.Transaction
	for page := 0; ; page++ {
		p, err := s.Transactions(ctx, TransactionFilter{Page: page, Size: maxPageSize, StartDate: start, EndDate: end})
		if err != nil {
			return nil, err
		}
		out = append(out, p.Content...)
		if len(p.Content) == 0 || page+1 >= p.TotalPages {
			return out, nil
		}
	}
}
