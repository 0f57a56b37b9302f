package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Income  TransactionType = "INCOME"
	Expense TransactionType = "EXPENSE"
)

const (
	BudgetSafe    BudgetStatus = "SAFE"
	BudgetWarning BudgetStatus = "WARNING"
	BudgetOver    BudgetStatus = "OVER_BUDGET"
)

const dateLayout = "2006-01-02"

type (
	TransactionType string
	BudgetStatus    string

	// Date is a calendar day encoded as YYYY-MM-DD on the wire.
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Category struct {
		ID    int64           `json:"id"`
		Name  string          `json:"name"`
		Type  TransactionType `json:"type"`
		Color string          `json:"color"`
	}

	Transaction struct {
		ID              int64           `json:"id"`
		CategoryID      int64           `json:"categoryId"`
		CategoryName    string          `json:"categoryName"`
		CategoryColor   string          `json:"categoryColor"`
		Type            TransactionType `json:"type"`
		Amount          Money           `json:"amount"`
		Description     string          `json:"description"`
		TransactionDate Date            `json:"transactionDate"`
		CreatedAt       string          `json:"createdAt,omitempty"`
		UpdatedAt       string          `json:"updatedAt,omitempty"`
	}

	// TransactionRequest creates or updates a transaction. Type is optional;
	// the server derives it from the category when empty.
	TransactionRequest struct {
		CategoryID      int64           `json:"categoryId"`
		Type            TransactionType `json:"type,omitempty"`
		Amount          Money           `json:"amount"`
		Description     string          `json:"description,omitempty"`
		TransactionDate Date            `json:"transactionDate"`
	}

	Budget struct {
		ID              int64        `json:"id"`
		CategoryID      int64        `json:"categoryId"`
		CategoryName    string       `json:"categoryName"`
		CategoryColor   string       `json:"categoryColor"`
		MonthlyLimit    Money        `json:"monthlyLimit"`
		Spent           Money        `json:"spent"`
		Remaining       Money        `json:"remaining"`
		UsagePercentage float64      `json:"usagePercentage"`
		Status          BudgetStatus `json:"status"`
		StartDate       *Date        `json:"startDate"`
		Month           int          `json:"month"`
		Year            int          `json:"year"`
	}

	BudgetRequest struct {
		CategoryID   int64 `json:"categoryId"`
		MonthlyLimit Money `json:"monthlyLimit"`
		StartDate    *Date `json:"startDate,omitempty"`
		Month        int   `json:"month"`
		Year         int   `json:"year"`
	}
)

var (
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidYear      = errors.New("invalid year")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidCategory  = errors.New("invalid category")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrFutureDate       = errors.New("transaction date cannot be in the future")
	ErrDescriptionLimit = errors.New("description too long (max 1000 characters)")
)

// Amounts are limited to 13 integer digits server side.
const maxAmountCents = 9_999_999_999_999_99

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

// Today returns the current day in UTC.
func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), int(now.Month()), now.Day())
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	// Accept full timestamps too; only the calendar day is kept.
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

// ParseTransactionType accepts income/expense in any case. Empty stays empty.
func ParseTransactionType(s string) (TransactionType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	t := TransactionType(s)
	if !t.Valid() {
		return "", ErrInvalidType
	}
	return t, nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 || m.Cents > maxAmountCents {
		return ErrInvalidAmount
	}
	return nil
}

func (r TransactionRequest) Validate() error {
	if r.CategoryID <= 0 {
		return ErrInvalidCategory
	}
	if r.Type != "" && !r.Type.Valid() {
		return ErrInvalidType
	}
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	if len(r.Description) > 1000 {
		return ErrDescriptionLimit
	}
	if err := r.TransactionDate.Validate(); err != nil {
		return err
	}
	if r.TransactionDate.After(Today().Time) {
		return ErrFutureDate
	}
	return nil
}

func (r BudgetRequest) Validate() error {
	if r.CategoryID <= 0 {
		return ErrInvalidCategory
	}
	if err := r.MonthlyLimit.Validate(); err != nil {
		return err
	}
	if r.Month < 1 || r.Month > 12 {
		return ErrInvalidMonth
	}
	if r.Year < 2020 || r.Year > 2100 {
		return ErrInvalidYear
	}
	if r.StartDate != nil && !r.StartDate.IsZero() {
		if r.StartDate.Year() != r.Year || int(r.StartDate.Month()) != r.Month {
			return errors.New("start date must fall within the budget month")
		}
	}
	return nil
}
