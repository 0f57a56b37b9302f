package finance

import (
	"context"
	"errors"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

const budgetsPath = "/api/budgets"

// ErrNoBudget is returned by BudgetFor when the category has no budget in the period.
var ErrNoBudget = errors.New("no budget for category")

func (s *Service) Budgets(ctx context.Context, p Period) ([]core.Budget, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return cachedGet[[]core.Budget](ctx, s, keyBudgets+p.key(), budgetsPath, p.query())
}

// BudgetSummary is the envelope view: income against what was allocated.
func (s *Service) BudgetSummary(ctx context.Context, p Period) (core.BudgetSummary, error) {
	if err := p.Validate(); err != nil {
		return core.BudgetSummary{}, err
	}
	return cachedGet[core.BudgetSummary](ctx, s, keyBudgetSummary+p.key(), budgetsPath+"/summary", p.query())
}

func (s *Service) Budget(ctx context.Context, id int64) (core.Budget, error) {
	var b core.Budget
	p, err := idPath(budgetsPath, id)
	if err != nil {
		return b, err
	}
	err = s.api.Get(ctx, p, nil, &b)
	return b, err
}

// BudgetFor finds the budget of a category in the period.
func (s *Service) BudgetFor(ctx context.Context, p Period, categoryID int64) (core.Budget, error) {
	budgets, err := s.Budgets(ctx, p)
	if err != nil {
		return core.Budget{}, err
	}
	for _, b := range budgets {
		if b.CategoryID == categoryID {
			return b, nil
		}
	}
	return core.Budget{}, ErrNoBudget
}

func (s *Service) CreateBudget(ctx context.Context, req core.BudgetRequest) (core.Budget, error) {
	var b core.Budget
	if err := req.Validate(); err != nil {
		return b, err
	}
	if err := s.api.Post(ctx, budgetsPath, req, &b); err != nil {
		return b, err
	}
	s.invalidate(keyBudgets, keyBudgetSummary, keyDashboard)
	s.logger.InfoContext(ctx, "Budget created",
		applog.FieldOperation, applog.OpCreate, applog.FieldCategoryID, req.CategoryID,
		applog.FieldMonth, req.Month, applog.FieldYear, req.Year)
	return b, nil
}

func (s *Service) UpdateBudget(ctx context.Context, id int64, req core.BudgetRequest) (core.Budget, error) {
	var b core.Budget
	p, err := idPath(budgetsPath, id)
	if err != nil {
		return b, err
	}
	if err := req.Validate(); err != nil {
		return b, err
	}
	if err := s.api.Put(ctx, p, req, &b); err != nil {
		return b, err
	}
	s.invalidate(keyBudgets, keyBudgetSummary, keyDashboard)
	s.logger.InfoContext(ctx, "Budget updated", applog.FieldOperation, applog.OpUpdate, "id", id)
	return b, nil
}

// SetBudget creates the category's budget for the period or updates the
// existing one.
func (s *Service) SetBudget(ctx context.Context, req core.BudgetRequest) (core.Budget, error) {
	if err := req.Validate(); err != nil {
		return core.Budget{}, err
	}
	existing, err := s.BudgetFor(ctx, Period{Month: req.Month, Year: req.Year}, req.CategoryID)
	switch {
	case errors.Is(err, ErrNoBudget):
		return s.CreateBudget(ctx, req)
	case err != nil:
		return core.Budget{}, err
	default:
		return s.UpdateBudget(ctx, existing.ID, req)
	}
}

func (s *Service) DeleteBudget(ctx context.Context, id int64) error {
	p, err := idPath(budgetsPath, id)
	if err != nil {
		return err
	}
	if err := s.api.Delete(ctx, p); err != nil {
		return err
	}
	s.invalidate(keyBudgets, keyBudgetSummary, keyDashboard)
	s.logger.InfoContext(ctx, "Budget deleted", applog.FieldOperation, applog.OpDelete, "id", id)
	return nil
}
