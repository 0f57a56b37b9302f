package finance

import (
	"context"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/core"
)

const dashboardPath = "/api/dashboard/summary"

func (s *Service) Dashboard(ctx context.Context, p Period) (core.Dashboard, error) {
	if err := p.Validate(); err != nil {
		return core.Dashboard{}, err
	}
	return cachedGet[core.Dashboard](ctx, s, keyDashboard+p.key(), dashboardPath, p.query())
}

// Overview is everything the dashboard screen shows for one month.
type Overview struct {
	Period    Period
	Dashboard core.Dashboard
	Summary   core.BudgetSummary
	Budgets   []core.Budget
}

// Overview fetches the dashboard, the envelope summary and the budgets
// concurrently. The first failure cancels the other calls.
func (s *Service) Overview(ctx context.Context, p Period) (Overview, error) {
	if err := p.Validate(); err != nil {
		return Overview{}, err
	}
	out := Overview{Period: p}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := s.Dashboard(gctx, p)
		out.Dashboard = d
		return err
	})
	g.Go(func() error {
		sum, err := s.BudgetSummary(gctx, p)
		out.Summary = sum
		return err
	})
	g.Go(func() error {
		b, err := s.Budgets(gctx, p)
		out.Budgets = b
		return err
	})
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}
	return out, nil
}
