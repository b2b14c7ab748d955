package core

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	PeriodMonth   PeriodType = "month"
	PeriodQuarter PeriodType = "quarter"
	PeriodYear    PeriodType = "year"
	PeriodAll     PeriodType = "all"
)

// ErrInvalidPeriod marks a malformed period query.
var ErrInvalidPeriod = errors.New("invalid period")

type PeriodType string

// Period selects a calendar window. Month is 1-12 and Quarter 1-4; fields
// unused by Type are ignored.
type Period struct {
	Type    PeriodType
	Year    int
	Month   int
	Quarter int
}

// YearMonth identifies one calendar month.
type YearMonth struct {
	Year  int
	Month int
}

func AllTime() Period { return Period{Type: PeriodAll} }
func MonthPeriod(year, month int) Period { return Period{Type: PeriodMonth, Year: year, Month: month} }
func QuarterPeriod(year, q int) Period { return Period{Type: PeriodQuarter, Year: year, Quarter: q} }
func YearPeriod(year int) Period { return Period{Type: PeriodYear, Year: year} }

func (p Period) Validate() error {
	switch p.Type {
	case PeriodAll:
		return nil
	case PeriodMonth:
		if p.Month < 1 || p.Month > 12 {
			return fmt.Errorf("%w: month %d out of range", ErrInvalidPeriod, p.Month)
		}
	case PeriodQuarter:
		if p.Quarter < 1 || p.Quarter > 4 {
			return fmt.Errorf("%w: quarter %d out of range", ErrInvalidPeriod, p.Quarter)
		}
	case PeriodYear:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidPeriod, p.Type)
	}
	if p.Year <= 0 {
		return fmt.Errorf("%w: year %d", ErrInvalidPeriod, p.Year)
	}
	return nil
}

// monthRange returns the inclusive month range covered within p.Year.
func (p Period) monthRange() (first, last int) {
	switch p.Type {
	case PeriodMonth:
		return p.Month, p.Month
	case PeriodQuarter:
		return 3*p.Quarter - 2, 3 * p.Quarter
	default:
		return 1, 12
	}
}

// Contains reports whether d falls inside p. p must be valid.
func (p Period) Contains(d Date) bool {
	if p.Type == PeriodAll {
		return true
	}
	if d.Year() != p.Year {
		return false
	}
	first, last := p.monthRange()
	m := d.Month()
	return m >= first && m <= last
}

// Bounds returns the half-open [start, end) window of p. ok is false for
// all-time periods, which are unbounded.
func (p Period) Bounds() (start, end Date, ok bool) {
	if p.Type == PeriodAll {
		return Date{}, Date{}, false
	}
	first, last := p.monthRange()
	start = NewDate(p.Year, first, 1)
	end = Date{Time: time.Date(p.Year, time.Month(last)+1, 1, 0, 0, 0, 0, time.UTC)}
	return start, end, true
}

// Months lists the calendar months covered by p. All-time periods have no
// fixed months and return nil.
func (p Period) Months() []YearMonth {
	if p.Type == PeriodAll {
		return nil
	}
	first, last := p.monthRange()
	out := make([]YearMonth, 0, last-first+1)
	for m := first; m <= last; m++ {
		out = append(out, YearMonth{Year: p.Year, Month: m})
	}
	return out
}

// Key is a stable identifier suitable for cache keys.
func (p Period) Key() string {
	switch p.Type {
	case PeriodMonth:
		return "m:" + strconv.Itoa(p.Year) + "-" + strconv.Itoa(p.Month)
	case PeriodQuarter:
		return "q:" + strconv.Itoa(p.Year) + "-" + strconv.Itoa(p.Quarter)
	case PeriodYear:
		return "y:" + strconv.Itoa(p.Year)
	default:
		return "all"
	}
}

// FilterByPeriod returns the expenses whose date falls inside p, in input
// order. The input slice is never modified; the result is a new slice.
func FilterByPeriod(expenses []Expense, p Period) ([]Expense, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	out := make([]Expense, 0, len(expenses))
	for _, e := range expenses {
		if p.Contains(e.Date) {
			out = append(out, e)
		}
	}
	return out, nil
}

// FilterByStatus returns the expenses in status s, in input order.
func FilterByStatus(expenses []Expense, s ExpenseStatus) []Expense {
	out := make([]Expense, 0, len(expenses))
	for _, e := range expenses {
		if e.Status == s {
			out = append(out, e)
		}
	}
	return out
}

// MonthOf returns the calendar month of d.
func MonthOf(d Date) YearMonth {
	return YearMonth{Year: d.Year(), Month: d.Month()}
}

// Before reports whether ym is strictly earlier than o.
func (ym YearMonth) Before(o YearMonth) bool {
	if ym.Year != o.Year {
		return ym.Year < o.Year
	}
	return ym.Month < o.Month
}

// Next returns the following calendar month.
func (ym YearMonth) Next() YearMonth {
	if ym.Month == 12 {
		return YearMonth{Year: ym.Year + 1, Month: 1}
	}
	return YearMonth{Year: ym.Year, Month: ym.Month + 1}
}
