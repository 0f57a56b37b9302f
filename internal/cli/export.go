package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func (r *runner) exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export transactions to external tools",
	}
	cmd.AddCommand(r.exportSheetsCmd())
	return cmd
}

func (r *runner) exportSheetsCmd() *cobra.Command {
	var pf periodFlags
	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "Append a month of transactions to the configured spreadsheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			exp, err := r.app.Exporter(ctx)
			if err != nil {
				return err
			}
			p := pf.resolved(time.Now())
			txs, err := r.app.Finance.MonthTransactions(ctx, p.Year, p.Month)
			if err != nil {
				return err
			}
			res, err := exp.ExportMonth(ctx, p.Year, p.Month, txs)
			if err != nil {
				return err
			}
			if res.Rows == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No transactions in %04d-%02d.\n", p.Year, p.Month)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d transactions to %s (%s).\n", res.Rows, res.Sheet, res.UpdatedRange)
			return nil
		},
	}
	pf.register(cmd)
	return guarded(cmd, "/transactions")
}
