package services

import (
	"testing"

	"coparent/internal/core"
)

func TestDailyChecker_Next(t *testing.T) {
	checker := DailyChecker{}
	anchor := core.NewDate(2024, 1, 1)

	tests := []struct {
		name string
		last core.Date
		want string
	}{
		{name: "next day", last: core.NewDate(2024, 1, 15), want: "2024-01-16"},
		{name: "month rollover", last: core.NewDate(2024, 1, 31), want: "2024-02-01"},
		{name: "leap day", last: core.NewDate(2024, 2, 28), want: "2024-02-29"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checker.Next(tt.last, anchor).String(); got != tt.want {
				t.Errorf("DailyChecker.Next() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestWeeklyChecker_Next(t *testing.T) {
	checker := WeeklyChecker{}
	anchor := core.NewDate(2024, 1, 1)

	tests := []struct {
		name string
		last core.Date
		want string
	}{
		{name: "one week later", last: core.NewDate(2024, 1, 8), want: "2024-01-15"},
		{name: "across year end", last: core.NewDate(2024, 12, 28), want: "2025-01-04"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checker.Next(tt.last, anchor).String(); got != tt.want {
				t.Errorf("WeeklyChecker.Next() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMonthlyChecker_Next(t *testing.T) {
	checker := MonthlyChecker{}

	tests := []struct {
		name   string
		last   core.Date
		anchor core.Date
		want   string
	}{
		{
			name:   "same day next month",
			last:   core.NewDate(2024, 1, 15),
			anchor: core.NewDate(2023, 11, 15),
			want:   "2024-02-15",
		},
		{
			name:   "day 31 clamps to end of February",
			last:   core.NewDate(2024, 1, 31),
			anchor: core.NewDate(2024, 1, 31),
			want:   "2024-02-29",
		},
		{
			name:   "clamped occurrence returns to anchor day",
			last:   core.NewDate(2024, 2, 29),
			anchor: core.NewDate(2024, 1, 31),
			want:   "2024-03-31",
		},
		{
			name:   "day 31 clamps to 30-day month",
			last:   core.NewDate(2024, 3, 31),
			anchor: core.NewDate(2024, 1, 31),
			want:   "2024-04-30",
		},
		{
			name:   "december rolls into january",
			last:   core.NewDate(2024, 12, 5),
			anchor: core.NewDate(2024, 1, 5),
			want:   "2025-01-05",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checker.Next(tt.last, tt.anchor).String(); got != tt.want {
				t.Errorf("MonthlyChecker.Next() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestYearlyChecker_Next(t *testing.T) {
	checker := YearlyChecker{}

	tests := []struct {
		name   string
		last   core.Date
		anchor core.Date
		want   string
	}{
		{
			name:   "same date next year",
			last:   core.NewDate(2023, 9, 1),
			anchor: core.NewDate(2023, 9, 1),
			want:   "2024-09-01",
		},
		{
			name:   "leap day outside leap year",
			last:   core.NewDate(2024, 2, 29),
			anchor: core.NewDate(2024, 2, 29),
			want:   "2025-02-28",
		},
		{
			name:   "leap day restored in leap year",
			last:   core.NewDate(2027, 2, 28),
			anchor: core.NewDate(2024, 2, 29),
			want:   "2028-02-29",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checker.Next(tt.last, tt.anchor).String(); got != tt.want {
				t.Errorf("YearlyChecker.Next() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIsDue(t *testing.T) {
	anchor := core.NewDate(2024, 1, 10)
	last := core.NewDate(2024, 3, 10)

	tests := []struct {
		name  string
		today core.Date
		want  bool
	}{
		{name: "before next occurrence", today: core.NewDate(2024, 4, 9), want: false},
		{name: "on next occurrence", today: core.NewDate(2024, 4, 10), want: true},
		{name: "after next occurrence", today: core.NewDate(2024, 5, 1), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDue(MonthlyChecker{}, last, anchor, tt.today); got != tt.want {
				t.Errorf("IsDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetDuenessChecker(t *testing.T) {
	tests := []struct {
		frequency core.Frequency
		wantErr   bool
	}{
		{core.Daily, false},
		{core.Weekly, false},
		{core.Monthly, false},
		{core.Yearly, false},
		{core.Frequency("fortnightly"), true},
	}

	for _, tt := range tests {
		t.Run(string(tt.frequency), func(t *testing.T) {
			checker, err := GetDuenessChecker(tt.frequency)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error for unknown frequency")
				}
				return
			}
			if err != nil || checker == nil {
				t.Errorf("GetDuenessChecker(%s) = %v, %v", tt.frequency, checker, err)
			}
		})
	}
}
