// Package sheets mirrors settled expenses into a spreadsheet.
package sheets

import (
	"context"

	"coparent/internal/core"
)

// Header is the first row of the mirror sheet; Row.Values follows its order.
var Header = []string{"Date", "Account", "Description", "Category", "Child", "Paid by", "Split", "Amount", "Status", "Expense ID"}

// Row is one expense with its names resolved for humans.
type Row struct {
	Expense     core.Expense
	AccountName string
	PayerName   string
	ChildName   string
}

// Values renders the row in Header order. Amounts are shekels so the sheet
// can sum them.
func (r Row) Values() []any {
	split := "no"
	if r.Expense.SplitEqually {
		split = "yes"
	}
	return []any{
		r.Expense.Date.String(),
		r.AccountName,
		r.Expense.Description,
		r.Expense.Category,
		r.ChildName,
		r.PayerName,
		split,
		r.Expense.Amount.Shekels().StringFixed(2),
		string(r.Expense.Status),
		r.Expense.ID,
	}
}

// ExpenseWriter appends rows to the mirror and returns a reference to where
// the row landed.
type ExpenseWriter interface {
	Append(ctx context.Context, row Row) (rowRef string, err error)
}
