// Package sheets exports transactions to a Google Sheets spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

type Config struct {
	SpreadsheetID string
	// SheetName is the base name; the exported year is prefixed, e.g. "2026 Transactions".
	SheetName          string
	ServiceAccountFile string
	ServiceAccountJSON string
}

type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	logger        *applog.Logger
}

var header = []any{"Date", "Type", "Category", "Description", "Amount"}

// NewExporter creates an exporter authenticated with service account
// credentials. Extra client options (endpoint, HTTP client) are passed
// through to the Sheets service.
func NewExporter(ctx context.Context, cfg Config, logger *applog.Logger, opts ...goption.ClientOption) (*Exporter, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentSheets)

	if len(opts) == 0 {
		creds, err := serviceAccountCredentials(cfg)
		if err != nil {
			return nil, err
		}
		opts = []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	logger.DebugContext(ctx, "Google Sheets service created")

	base := strings.TrimSpace(cfg.SheetName)
	if base == "" {
		base = "Transactions"
	}
	return &Exporter{svc: svc, spreadsheetID: cfg.SpreadsheetID, sheetBase: base, logger: logger}, nil
}

// serviceAccountCredentials reads inline JSON, then the configured file,
// then GOOGLE_APPLICATION_CREDENTIALS.
func serviceAccountCredentials(cfg Config) ([]byte, error) {
	if js := strings.TrimSpace(cfg.ServiceAccountJSON); js != "" {
		return []byte(js), nil
	}
	file := strings.TrimSpace(cfg.ServiceAccountFile)
	if file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if file == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return data, nil
}

// ExportResult describes what was written.
type ExportResult struct {
	Sheet        string
	UpdatedRange string
	Rows         int
}

// ExportMonth appends a header and one row per transaction to the year's
// sheet. Transactions outside year/month are skipped.
func (e *Exporter) ExportMonth(ctx context.Context, year, month int, txs []core.Transaction) (ExportResult, error) {
	if month < 1 || month > 12 {
		return ExportResult{}, fmt.Errorf("month %d: %w", month, core.ErrInvalidMonth)
	}
	sheet := yearPrefixedName(e.sheetBase, year)
	rows := transactionRows(filterMonth(txs, year, month))
	if len(rows) == 0 {
		return ExportResult{Sheet: sheet}, nil
	}
	values := append([][]any{header}, rows...)

	rng := fmt.Sprintf("%s!A:E", quoteSheet(sheet))
	resp, err := e.svc.Spreadsheets.Values.Append(e.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return ExportResult{}, fmt.Errorf("append to sheet %s: %w", sheet, err)
	}

	res := ExportResult{Sheet: sheet, Rows: len(rows)}
	if resp.Updates != nil {
		res.UpdatedRange = resp.Updates.UpdatedRange
	}
	e.logger.InfoContext(ctx, "Transactions exported",
		applog.FieldOperation, applog.OpExport, "sheet", sheet, "rows", len(rows),
		applog.FieldYear, year, applog.FieldMonth, month)
	return res, nil
}

func filterMonth(txs []core.Transaction, year, month int) []core.Transaction {
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		d := tx.TransactionDate
		if d.Year() == year && int(d.Month()) == month {
			out = append(out, tx)
		}
	}
	return out
}

// transactionRows converts transactions to sheet rows ordered by date.
// Expenses are written as negative amounts so the column sums to the balance.
func transactionRows(txs []core.Transaction) [][]any {
	sorted := append([]core.Transaction(nil), txs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TransactionDate.Before(sorted[j].TransactionDate.Time)
	})

	rows := make([][]any, 0, len(sorted))
	for _, tx := range sorted {
		amount := tx.Amount.Units()
		if tx.Type == core.Expense {
			amount = -amount
		}
		rows = append(rows, []any{
			tx.TransactionDate.String(),
			string(tx.Type),
			tx.CategoryName,
			tx.Description,
			amount,
		})
	}
	return rows
}

func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

// quoteSheet quotes sheet names for A1 notation.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
