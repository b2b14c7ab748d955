package http

import (
	"errors"
	"net/url"
	"reflect"
	"testing"
	"time"

	"coparent/internal/core"
)

var june2024 = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		name    string
		query   url.Values
		want    core.Period
		wantErr bool
	}{
		{"empty is all time", url.Values{}, core.AllTime(), false},
		{"explicit all", url.Values{"period": {"all"}}, core.AllTime(), false},
		{"month defaults to now", url.Values{"period": {"month"}}, core.MonthPeriod(2024, 6), false},
		{"month explicit", url.Values{"period": {"Month"}, "month": {"2"}, "year": {"2023"}}, core.MonthPeriod(2023, 2), false},
		{"quarter defaults to now", url.Values{"period": {"quarter"}}, core.QuarterPeriod(2024, 2), false},
		{"quarter explicit", url.Values{"period": {"quarter"}, "quarter": {"4"}}, core.QuarterPeriod(2024, 4), false},
		{"year", url.Values{"period": {"year"}, "year": {"2022"}}, core.YearPeriod(2022), false},
		{"unknown type", url.Values{"period": {"week"}}, core.Period{}, true},
		{"month out of range", url.Values{"period": {"month"}, "month": {"0"}}, core.Period{}, true},
		{"quarter out of range", url.Values{"period": {"quarter"}, "quarter": {"5"}}, core.Period{}, true},
		{"year not a number", url.Values{"period": {"year"}, "year": {"twenty"}}, core.Period{}, true},
		{"all ignores other fields", url.Values{"period": {"all"}, "month": {"x"}, "year": {"y"}}, core.AllTime(), false},
		{"year ignores quarter", url.Values{"period": {"year"}, "year": {"2022"}, "quarter": {"x"}}, core.YearPeriod(2022), false},
		{"month ignores quarter", url.Values{"period": {"month"}, "month": {"3"}, "quarter": {"9"}}, core.MonthPeriod(2024, 3), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeriod(tt.query, june2024)
			if tt.wantErr {
				if !errors.Is(err, core.ErrInvalidPeriod) {
					t.Fatalf("ParsePeriod() error = %v, want ErrInvalidPeriod", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePeriod() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParsePeriod() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseExpenseFilter(t *testing.T) {
	f, err := ParseExpenseFilter(url.Values{
		"period":   {"year"},
		"status":   {" Pending, approved ,"},
		"child":    {" c-1 "},
		"category": {"Food"},
	}, june2024)
	if err != nil {
		t.Fatalf("ParseExpenseFilter() error: %v", err)
	}
	if f.Period != core.YearPeriod(2024) {
		t.Errorf("Period = %+v", f.Period)
	}
	want := []core.ExpenseStatus{core.StatusPending, core.StatusApproved}
	if !reflect.DeepEqual(f.Statuses, want) {
		t.Errorf("Statuses = %v, want %v", f.Statuses, want)
	}
	if f.ChildID != "c-1" || f.Category != "Food" {
		t.Errorf("ChildID = %q, Category = %q", f.ChildID, f.Category)
	}

	if _, err := ParseExpenseFilter(url.Values{"status": {"lost"}}, june2024); !errors.Is(err, core.ErrInvalidStatus) {
		t.Errorf("unknown status error = %v, want ErrInvalidStatus", err)
	}
}

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"12.50", 1250, false},
		{"12,50", 1250, false},
		{"₪ 100", 10000, false},
		{"0.005", 1, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := parseMoney(tt.in)
		if tt.wantErr {
			if !errors.Is(err, core.ErrInvalidAmount) {
				t.Errorf("parseMoney(%q) error = %v, want ErrInvalidAmount", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseMoney(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got.Agorot != tt.want {
			t.Errorf("parseMoney(%q) = %d, want %d", tt.in, got.Agorot, tt.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("2024-02-29")
	if err != nil || d.String() != "2024-02-29" {
		t.Errorf("parseDate() = %v, %v", d, err)
	}
	if d, err := parseDate(""); err != nil || !d.IsZero() {
		t.Errorf("empty date = %v, %v", d, err)
	}
	if _, err := parseDate("2023-02-29"); !errors.Is(err, core.ErrInvalidDate) {
		t.Errorf("invalid date error = %v", err)
	}
}
