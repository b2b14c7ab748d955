package http

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"coparent/internal/core"
)

// ParsePeriod reads period, month, quarter and year from a query string.
// A missing period means all time; a missing month, quarter or year
// defaults to the one containing now.
//
//	period=month&month=6&year=2024
//	period=quarter&quarter=2&year=2024
//	period=year&year=2024
//	period=all
func ParsePeriod(query url.Values, now time.Time) (core.Period, error) {
	kind := core.PeriodType(strings.ToLower(strings.TrimSpace(query.Get("period"))))
	if kind == "" || kind == core.PeriodAll {
		return core.AllTime(), nil
	}
	switch kind {
	case core.PeriodMonth, core.PeriodQuarter, core.PeriodYear:
	default:
		return core.Period{}, fmt.Errorf("%w: unknown type %q", core.ErrInvalidPeriod, query.Get("period"))
	}

	year, err := intParam(query, "year", now.Year())
	if err != nil {
		return core.Period{}, err
	}
	var p core.Period
	switch kind {
	case core.PeriodMonth:
		month, err := intParam(query, "month", int(now.Month()))
		if err != nil {
			return core.Period{}, err
		}
		p = core.MonthPeriod(year, month)
	case core.PeriodQuarter:
		quarter, err := intParam(query, "quarter", (int(now.Month())-1)/3+1)
		if err != nil {
			return core.Period{}, err
		}
		p = core.QuarterPeriod(year, quarter)
	default:
		p = core.YearPeriod(year)
	}
	return p, p.Validate()
}

func intParam(query url.Values, key string, def int) (int, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a number", core.ErrInvalidPeriod, key, v)
	}
	return n, nil
}

// ParseExpenseFilter reads the period plus optional status (comma
// separated), child and category filters.
func ParseExpenseFilter(query url.Values, now time.Time) (core.ExpenseFilter, error) {
	p, err := ParsePeriod(query, now)
	if err != nil {
		return core.ExpenseFilter{}, err
	}
	f := core.ExpenseFilter{
		Period:   p,
		ChildID:  sanitizeInput(query.Get("child")),
		Category: sanitizeInput(query.Get("category")),
	}
	for _, raw := range strings.Split(query.Get("status"), ",") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		s, err := core.ParseStatus(strings.ToLower(strings.TrimSpace(raw)))
		if err != nil {
			return core.ExpenseFilter{}, err
		}
		f.Statuses = append(f.Statuses, s)
	}
	return f, nil
}

// parseMoney reads a positive shekel amount such as "12.50" or "12,50".
func parseMoney(s string) (core.Money, error) {
	agorot, err := core.ParseDecimalToAgorot(s)
	if err != nil {
		return core.Money{}, fmt.Errorf("%w: %q", core.ErrInvalidAmount, s)
	}
	return core.Money{Agorot: agorot}, nil
}

// parseDate reads a YYYY-MM-DD date; empty input gives the zero date.
func parseDate(s string) (core.Date, error) {
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}, fmt.Errorf("%w: %q", core.ErrInvalidDate, s)
	}
	return d, nil
}

// bindJSON decodes the request body into dst, failing the request on error.
func (s *Server) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		s.fail(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return false
	}
	return true
}
