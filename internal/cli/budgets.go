package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"fintrack/internal/core"
	"fintrack/internal/finance"
)

// periodFlags select a month; unset flags leave the choice to the server.
type periodFlags struct {
	month, year int
}

func (p *periodFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&p.month, "month", "m", 0, "month 1-12 (default current)")
	cmd.Flags().IntVarP(&p.year, "year", "y", 0, "year (default current)")
}

func (p periodFlags) period() finance.Period {
	return finance.Period{Month: p.month, Year: p.year}
}

// resolved fills unset fields with the current month.
func (p periodFlags) resolved(now time.Time) finance.Period {
	out := p.period()
	if out.Month == 0 {
		out.Month = int(now.Month())
	}
	if out.Year == 0 {
		out.Year = now.Year()
	}
	return out
}

func (r *runner) budgetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budgets",
		Short: "Manage monthly budgets",
	}
	cmd.AddCommand(r.budgetListCmd(), r.budgetSummaryCmd(), r.budgetSetCmd(), r.budgetDeleteCmd())
	return cmd
}

func (r *runner) budgetListCmd() *cobra.Command {
	var pf periodFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the budgets of a month with their usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			budgets, err := r.app.Finance.Budgets(cmd.Context(), pf.period())
			if err != nil {
				return err
			}
			return printBudgets(cmd.OutOrStdout(), budgets)
		},
	}
	pf.register(cmd)
	return guarded(cmd, "/budgets")
}

func (r *runner) budgetSummaryCmd() *cobra.Command {
	var pf periodFlags
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show income against allocated budgets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := r.app.Finance.BudgetSummary(cmd.Context(), pf.period())
			if err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), s)
		},
	}
	pf.register(cmd)
	return guarded(cmd, "/budgets")
}

func (r *runner) budgetSetCmd() *cobra.Command {
	var (
		pf       periodFlags
		category int64
		limit    string
		start    string
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Create or change the budget of a category for a month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cents, err := core.ParseDecimalToCents(limit)
			if err != nil {
				return fmt.Errorf("limit %q: %w", limit, err)
			}
			p := pf.resolved(time.Now())
			req := core.BudgetRequest{
				CategoryID:   category,
				MonthlyLimit: core.Money{Cents: cents},
				Month:        p.Month,
				Year:         p.Year,
			}
			if start != "" {
				d, err := core.ParseDate(start)
				if err != nil {
					return err
				}
				req.StartDate = &d
			}
			b, err := r.app.Finance.SetBudget(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printBudgets(cmd.OutOrStdout(), []core.Budget{b})
		},
	}
	pf.register(cmd)
	cmd.Flags().Int64VarP(&category, "category", "c", 0, "category id")
	cmd.Flags().StringVarP(&limit, "limit", "l", "", "monthly limit, e.g. 300")
	cmd.Flags().StringVar(&start, "start", "", "first day the budget counts, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("limit")
	return guarded(cmd, "/budgets")
}

func (r *runner) budgetDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := r.app.Finance.DeleteBudget(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Budget %d deleted.\n", id)
			return nil
		},
	}
	return guarded(cmd, "/budgets")
}

func printBudgets(out io.Writer, budgets []core.Budget) error {
	w := newTable(out)
	fmt.Fprintln(w, "ID\tCATEGORY\tLIMIT\tSPENT\tREMAINING\tUSED\tSTATUS")
	for _, b := range budgets {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%.0f%%\t%s\n",
			b.ID, b.CategoryName, b.MonthlyLimit, b.Spent, b.Remaining, b.UsagePercentage, b.Status)
	}
	return w.Flush()
}

func printSummary(out io.Writer, s core.BudgetSummary) error {
	w := newTable(out)
	fmt.Fprintf(w, "Month:\t%04d-%02d\n", s.Year, s.Month)
	fmt.Fprintf(w, "Income:\t%s\n", s.TotalIncome)
	fmt.Fprintf(w, "Allocated:\t%s\n", s.TotalAllocated)
	fmt.Fprintf(w, "Spent:\t%s\n", s.TotalSpent)
	fmt.Fprintf(w, "Unbudgeted spent:\t%s\n", s.TotalUnbudgetedSpent)
	fmt.Fprintf(w, "Net balance:\t%s\n", s.NetBalance)
	return w.Flush()
}
