package core

import (
	"sort"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// ChildAmount is the spend attributed to one child.
type ChildAmount struct {
	ChildID string
	Name    string
	Amount  Money
}

// BudgetComparison compares a budget's plan to actual spend in a period.
type BudgetComparison struct {
	Budget    Budget
	Months    int
	Planned   Money
	Actual    Money
	Deviation Money // Actual - Planned; positive means over budget
	Exceeded  bool
}

// Report is the aggregate view of an account over one period.
type Report struct {
	Period     Period
	Total      Money
	ByCategory []CategoryAmount
	ByChild    []ChildAmount
	Budgets    []BudgetComparison
}

func countsTowardSpend(e Expense) bool {
	return e.Status != StatusRejected && e.Amount.Agorot > 0
}

// CategoryTotals sums non-rejected expenses per category, largest first.
func CategoryTotals(expenses []Expense) []CategoryAmount {
	sums := map[string]int64{}
	for _, e := range expenses {
		if !countsTowardSpend(e) {
			continue
		}
		sums[e.Category] += e.Amount.Agorot
	}
	out := make([]CategoryAmount, 0, len(sums))
	for name, v := range sums {
		out = append(out, CategoryAmount{Name: name, Amount: Money{Agorot: v}})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Agorot != out[j].Amount.Agorot {
			return out[i].Amount.Agorot > out[j].Amount.Agorot
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ChildTotals sums non-rejected expenses per child, in children order.
// Expenses linked to an unknown child are ignored.
func ChildTotals(expenses []Expense, children []Child) []ChildAmount {
	sums := map[string]int64{}
	for _, e := range expenses {
		if e.ChildID == "" || !countsTowardSpend(e) {
			continue
		}
		sums[e.ChildID] += e.Amount.Agorot
	}
	out := make([]ChildAmount, 0, len(children))
	for _, c := range children {
		out = append(out, ChildAmount{ChildID: c.ID, Name: c.Name, Amount: Money{Agorot: sums[c.ID]}})
	}
	return out
}

// appliesTo reports whether budget b is in force during month ym. A monthly
// budget with a start date covers that single month; every other budget
// covers each month inside its optional range.
func appliesTo(b Budget, ym YearMonth) bool {
	if b.BudgetType == BudgetMonthly && !b.StartDate.IsZero() {
		return ym == MonthOf(b.StartDate)
	}
	if !b.StartDate.IsZero() && ym.Before(MonthOf(b.StartDate)) {
		return false
	}
	if !b.EndDate.IsZero() && MonthOf(b.EndDate).Before(ym) {
		return false
	}
	return true
}

// spanMonths lists every month between the earliest and latest expense.
func spanMonths(expenses []Expense) []YearMonth {
	var first, last YearMonth
	found := false
	for _, e := range expenses {
		if e.Date.IsZero() {
			continue
		}
		ym := MonthOf(e.Date)
		if !found || ym.Before(first) {
			first = ym
		}
		if !found || last.Before(ym) {
			last = ym
		}
		found = true
	}
	if !found {
		return nil
	}
	var out []YearMonth
	for ym := first; !last.Before(ym); ym = ym.Next() {
		out = append(out, ym)
	}
	return out
}

// CompareBudgets compares each budget with the spend of its categories in
// the months it is in force. expenses must already be restricted to p. For all-time periods the window
// is the span of months covered by the expenses.
func CompareBudgets(budgets []Budget, expenses []Expense, p Period) []BudgetComparison {
	window := p.Months()
	if p.Type == PeriodAll {
		window = spanMonths(expenses)
	}

	out := make([]BudgetComparison, 0, len(budgets))
	for _, b := range budgets {
		months := 0
		for _, ym := range window {
			if appliesTo(b, ym) {
				months++
			}
		}
		var actual int64
		for _, e := range expenses {
			if countsTowardSpend(e) && b.HasCategory(e.Category) && appliesTo(b, MonthOf(e.Date)) {
				actual += e.Amount.Agorot
			}
		}
		planned := b.MonthlyAmount.Agorot * int64(months)
		out = append(out, BudgetComparison{
			Budget:    b,
			Months:    months,
			Planned:   Money{Agorot: planned},
			Actual:    Money{Agorot: actual},
			Deviation: Money{Agorot: actual - planned},
			Exceeded:  actual > planned,
		})
	}
	return out
}

// BuildReport aggregates expenses already restricted to p.
func BuildReport(p Period, expenses []Expense, children []Child, budgets []Budget) Report {
	var total int64
	for _, e := range expenses {
		if countsTowardSpend(e) {
			total += e.Amount.Agorot
		}
	}
	return Report{
		Period:     p,
		Total:      Money{Agorot: total},
		ByCategory: CategoryTotals(expenses),
		ByChild:    ChildTotals(expenses, children),
		Budgets:    CompareBudgets(budgets, expenses, p),
	}
}
