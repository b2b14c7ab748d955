// This file implements the Strategy Pattern for recurring expense dueness.
// Each frequency has its own strategy that knows when the next occurrence
// after a given one falls.

package services

import (
	"fmt"
	"time"

	"coparent/internal/core"
)

// DuenessChecker is the strategy interface for recurring expense schedules.
type DuenessChecker interface {
	// Next returns the occurrence following last. anchor is the template's
	// own date; monthly and yearly schedules keep its day of month even
	// when a shorter month clamped a previous occurrence.
	Next(last, anchor core.Date) core.Date
}

// IsDue reports whether an occurrence after last is due on or before today.
func IsDue(c DuenessChecker, last, anchor, today core.Date) bool {
	return !c.Next(last, anchor).After(today.Time)
}

// DailyChecker implements DuenessChecker for daily recurring expenses.
type DailyChecker struct{}

func (DailyChecker) Next(last, _ core.Date) core.Date {
	return core.Date{Time: last.AddDate(0, 0, 1)}
}

// WeeklyChecker implements DuenessChecker for weekly recurring expenses.
type WeeklyChecker struct{}

func (WeeklyChecker) Next(last, _ core.Date) core.Date {
	return core.Date{Time: last.AddDate(0, 0, 7)}
}

// MonthlyChecker implements DuenessChecker for monthly recurring expenses.
type MonthlyChecker struct{}

// Next lands on the anchor day of the following month, or on that month's
// last day when it is shorter (Jan 31 -> Feb 29 -> Mar 31).
func (MonthlyChecker) Next(last, anchor core.Date) core.Date {
	year, month := last.Year(), last.Month()+1
	if month > 12 {
		year, month = year+1, 1
	}
	return clampedDate(year, month, anchor.Day())
}

// YearlyChecker implements DuenessChecker for yearly recurring expenses.
type YearlyChecker struct{}

// Next lands on the anchor's month and day one year on; Feb 29 becomes
// Feb 28 outside leap years.
func (YearlyChecker) Next(last, anchor core.Date) core.Date {
	return clampedDate(last.Year()+1, anchor.Month(), anchor.Day())
}

func clampedDate(year, month, day int) core.Date {
	lastDayOfMonth := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > lastDayOfMonth {
		day = lastDayOfMonth
	}
	return core.NewDate(year, month, day)
}

// duenessStrategies maps frequencies to their checkers.
var duenessStrategies = map[core.Frequency]DuenessChecker{
	core.Daily:   DailyChecker{},
	core.Weekly:  WeeklyChecker{},
	core.Monthly: MonthlyChecker{},
	core.Yearly:  YearlyChecker{},
}

// GetDuenessChecker returns the checker for a frequency.
func GetDuenessChecker(frequency core.Frequency) (DuenessChecker, error) {
	checker, ok := duenessStrategies[frequency]
	if !ok {
		return nil, fmt.Errorf("unknown repetition type: %s", frequency)
	}
	return checker, nil
}
