package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (r *runner) dashboardCmd() *cobra.Command {
	var pf periodFlags
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show the month at a glance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ov, err := r.app.Finance.Overview(cmd.Context(), pf.period())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			d := ov.Dashboard

			w := newTable(out)
			fmt.Fprintf(w, "Income:\t%s\n", d.TotalIncome)
			fmt.Fprintf(w, "Expense:\t%s\n", d.TotalExpense)
			fmt.Fprintf(w, "Net savings:\t%s\n", d.NetSavings)
			fmt.Fprintf(w, "Balance:\t%s\n", d.CurrentBalance)
			fmt.Fprintf(w, "Budgeted:\t%s of %s income\n", ov.Summary.TotalAllocated, ov.Summary.TotalIncome)
			if err := w.Flush(); err != nil {
				return err
			}

			if len(d.ExpenseByCategory) > 0 {
				fmt.Fprintln(out, "\nExpenses by category")
				w = newTable(out)
				for _, c := range d.ExpenseByCategory {
					fmt.Fprintf(w, "%s\t%s\t%.1f%%\t%d tx\n", c.CategoryName, c.Total, c.Percentage, c.TransactionCount)
				}
				if err := w.Flush(); err != nil {
					return err
				}
			}
			if len(ov.Budgets) > 0 {
				fmt.Fprintln(out, "\nBudgets")
				if err := printBudgets(out, ov.Budgets); err != nil {
					return err
				}
			}
			if len(d.RecentTransactions) > 0 {
				fmt.Fprintln(out, "\nRecent transactions")
				return printTransactions(out, d.RecentTransactions)
			}
			return nil
		},
	}
	pf.register(cmd)
	return guarded(cmd, "/dashboard")
}
