package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"fintrack/internal/core"
	"fintrack/internal/finance"
)

func (r *runner) categoriesCmd() *cobra.Command {
	var typ string
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List transaction categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := core.ParseTransactionType(typ)
			if err != nil {
				return err
			}
			cats, err := r.app.Finance.Categories(cmd.Context(), t)
			if err != nil {
				return err
			}
			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "ID\tNAME\tTYPE")
			for _, c := range cats {
				fmt.Fprintf(w, "%d\t%s\t%s\n", c.ID, c.Name, c.Type)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&typ, "type", "t", "", "income or expense")
	return guarded(cmd, "/transactions")
}

func (r *runner) transactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"tx"},
		Short:   "List and edit transactions",
	}
	cmd.AddCommand(
		r.txListCmd(),
		r.txAddCmd(),
		r.txUpdateCmd(),
		r.txIDCmd("delete", "Move a transaction to the trash", func(cmd *cobra.Command, id int64) error {
			return r.app.Finance.DeleteTransaction(cmd.Context(), id)
		}),
		r.txIDCmd("restore", "Restore a deleted transaction", func(cmd *cobra.Command, id int64) error {
			tx, err := r.app.Finance.RestoreTransaction(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printTransactions(cmd.OutOrStdout(), []core.Transaction{tx})
		}),
		r.txIDCmd("purge", "Delete a transaction permanently", func(cmd *cobra.Command, id int64) error {
			return r.app.Finance.PurgeTransaction(cmd.Context(), id)
		}),
		r.txDeletedCmd(),
	)
	return cmd
}

func (r *runner) txListCmd() *cobra.Command {
	var (
		f          finance.TransactionFilter
		typ        string
		start, end string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if f.Type, err = core.ParseTransactionType(typ); err != nil {
				return err
			}
			if f.StartDate, err = optionalDate(start); err != nil {
				return err
			}
			if f.EndDate, err = optionalDate(end); err != nil {
				return err
			}
			page, err := r.app.Finance.Transactions(cmd.Context(), f)
			if err != nil {
				return err
			}
			if err := printTransactions(cmd.OutOrStdout(), page.Content); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "page %d of %d, %d transactions\n", page.Number+1, max(page.TotalPages, 1), page.TotalElements)
			return nil
		},
	}
	cmd.Flags().IntVar(&f.Page, "page", 0, "page number, from 0")
	cmd.Flags().IntVar(&f.Size, "size", 10, "page size, at most 100")
	cmd.Flags().StringVarP(&typ, "type", "t", "", "income or expense")
	cmd.Flags().Int64VarP(&f.CategoryID, "category", "c", 0, "category id")
	cmd.Flags().StringVar(&start, "from", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "to", "", "last day, YYYY-MM-DD")
	return guarded(cmd, "/transactions")
}

// txFlags are the editable fields shared by add and update.
type txFlags struct {
	category    int64
	amount      string
	date        string
	description string
	typ         string
}

func (t *txFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64VarP(&t.category, "category", "c", 0, "category id")
	cmd.Flags().StringVarP(&t.amount, "amount", "a", "", "amount, e.g. 12.50")
	cmd.Flags().StringVarP(&t.date, "date", "d", "", "transaction day, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&t.description, "description", "", "free text")
	cmd.Flags().StringVarP(&t.typ, "type", "t", "", "income or expense (default from category)")
}

// apply overwrites the fields of req whose flags were set on cmd.
func (t *txFlags) apply(cmd *cobra.Command, req *core.TransactionRequest) error {
	fs := cmd.Flags()
	if fs.Changed("category") {
		req.CategoryID = t.category
	}
	if fs.Changed("amount") {
		cents, err := core.ParseDecimalToCents(t.amount)
		if err != nil {
			return fmt.Errorf("amount %q: %w", t.amount, err)
		}
		req.Amount = core.Money{Cents: cents}
	}
	if fs.Changed("date") {
		d, err := core.ParseDate(t.date)
		if err != nil {
			return err
		}
		req.TransactionDate = d
	}
	if fs.Changed("description") {
		req.Description = t.description
	}
	if fs.Changed("type") {
		typ, err := core.ParseTransactionType(t.typ)
		if err != nil {
			return err
		}
		req.Type = typ
	}
	return nil
}

func (r *runner) txAddCmd() *cobra.Command {
	var flags txFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := core.TransactionRequest{TransactionDate: core.Today()}
			if err := flags.apply(cmd, &req); err != nil {
				return err
			}
			tx, err := r.app.Finance.CreateTransaction(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printTransactions(cmd.OutOrStdout(), []core.Transaction{tx})
		},
	}
	flags.register(cmd)
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("amount")
	return guarded(cmd, "/transactions")
}

func (r *runner) txUpdateCmd() *cobra.Command {
	var flags txFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			cur, err := r.app.Finance.Transaction(cmd.Context(), id)
			if err != nil {
				return err
			}
			req := core.TransactionRequest{
				CategoryID:      cur.CategoryID,
				Type:            cur.Type,
				Amount:          cur.Amount,
				Description:     cur.Description,
				TransactionDate: cur.TransactionDate,
			}
			if err := flags.apply(cmd, &req); err != nil {
				return err
			}
			tx, err := r.app.Finance.UpdateTransaction(cmd.Context(), id, req)
			if err != nil {
				return err
			}
			return printTransactions(cmd.OutOrStdout(), []core.Transaction{tx})
		},
	}
	flags.register(cmd)
	return guarded(cmd, "/transactions")
}

func (r *runner) txIDCmd(use, short string, run func(*cobra.Command, int64) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := run(cmd, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Transaction %d: %s done.\n", id, use)
			return nil
		},
	}
	return guarded(cmd, "/transactions")
}

func (r *runner) txDeletedCmd() *cobra.Command {
	var page, size int
	cmd := &cobra.Command{
		Use:   "deleted",
		Short: "List transactions in the trash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := r.app.Finance.DeletedTransactions(cmd.Context(), page, size)
			if err != nil {
				return err
			}
			return printTransactions(cmd.OutOrStdout(), p.Content)
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "page number, from 0")
	cmd.Flags().IntVar(&size, "size", 10, "page size, at most 100")
	return guarded(cmd, "/transactions")
}

func printTransactions(out io.Writer, txs []core.Transaction) error {
	w := newTable(out)
	fmt.Fprintln(w, "ID\tDATE\tTYPE\tCATEGORY\tAMOUNT\tDESCRIPTION")
	for _, tx := range txs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			tx.ID, tx.TransactionDate, tx.Type, tx.CategoryName, tx.Amount, tx.Description)
	}
	return w.Flush()
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func optionalDate(s string) (core.Date, error) {
	if s == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s)
}
