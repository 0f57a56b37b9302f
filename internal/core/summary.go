package core

// Page is one page of a server side paginated listing.
type Page[T any] struct {
	Content       []T   `json:"content"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	Size          int   `json:"size"`
	Number        int   `json:"number"`
}

// BudgetSummary is the envelope view of a month: income against allocations.
type BudgetSummary struct {
	TotalIncome          Money `json:"totalIncome"`
	TotalAllocated       Money `json:"totalAllocated"`
	TotalUnbudgetedSpent Money `json:"totalUnbudgetedSpent"`
	TotalSpent           Money `json:"totalSpent"`
	NetBalance           Money `json:"netBalance"`
	Month                int   `json:"month"`
	Year                 int   `json:"year"`
}

// CategoryExpense represents expenses aggregated by category.
type CategoryExpense struct {
	CategoryID       int64   `json:"categoryId"`
	CategoryName     string  `json:"categoryName"`
	CategoryColor    string  `json:"categoryColor"`
	Total            Money   `json:"total"`
	TransactionCount int     `json:"transactionCount"`
	Percentage       float64 `json:"percentage"`
}

// MonthlyTrend is income and expense for one month of the trend window.
type MonthlyTrend struct {
	Year       int   `json:"year"`
	Month      int   `json:"month"` // 1-12
	Income     Money `json:"income"`
	Expense    Money `json:"expense"`
	NetSavings Money `json:"netSavings"`
}

// Dashboard is the compact summary for a specific year+month.
type Dashboard struct {
	TotalIncome        Money             `json:"totalIncome"`
	TotalExpense       Money             `json:"totalExpense"`
	CurrentBalance     Money             `json:"currentBalance"`
	NetSavings         Money             `json:"netSavings"`
	ExpenseByCategory  []CategoryExpense `json:"expenseByCategory"`
	BudgetProgress     []Budget          `json:"budgetProgress"`
	RecentTransactions []Transaction     `json:"recentTransactions"`
	MonthlyTrend       []MonthlyTrend    `json:"monthlyTrend"`
}

// Totals are income, expense and balance derived from a set of transactions.
type Totals struct {
	Income  Money
	Expense Money
	Balance Money
}

// Summarize derives totals from transactions. Unknown types are ignored.
func Summarize(txs []Transaction) Totals {
	var t Totals
	for _, tx := range txs {
		switch tx.Type {
		case Income:
			t.Income.Cents += tx.Amount.Cents
		case Expense:
			t.Expense.Cents += tx.Amount.Cents
		}
	}
	t.Balance.Cents = t.Income.Cents - t.Expense.Cents
	return t
}

// FilterByType returns the transactions of the given type, preserving order.
func FilterByType(txs []Transaction, typ TransactionType) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Type == typ {
			out = append(out, tx)
		}
	}
	return out
}
