package core

import (
	"errors"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
)

// ExpenseFilter narrows an expense listing. The zero value matches everything.
type ExpenseFilter struct {
	Period   Period
	Statuses []ExpenseStatus
	ChildID  string
	Category string
}

// Validate checks the period part of the filter. An unset period means all time.
func (f ExpenseFilter) Validate() error {
	if f.Period.Type == "" {
		return nil
	}
	return f.Period.Validate()
}

// Match reports whether e passes every criterion except the period, which
// callers apply through FilterByPeriod or storage range queries.
func (f ExpenseFilter) Match(e Expense) bool {
	if f.ChildID != "" && e.ChildID != f.ChildID {
		return false
	}
	if f.Category != "" && !strings.EqualFold(e.Category, f.Category) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if e.Status == s {
			return true
		}
	}
	return false
}

// Apply filters expenses in memory, in input order.
func (f ExpenseFilter) Apply(expenses []Expense) ([]Expense, error) {
	p := f.Period
	if p.Type == "" {
		p = AllTime()
	}
	in, err := FilterByPeriod(expenses, p)
	if err != nil {
		return nil, err
	}
	out := in[:0]
	for _, e := range in {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}
