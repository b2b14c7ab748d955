// Package core provides money parsing and handling utilities.
//
// Amounts are stored as integer agorot. Balance arithmetic runs on
// decimal.Decimal so shares like 100/3 keep full precision until display.
package core

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// CurrencySymbol is the symbol used when rendering amounts.
const CurrencySymbol = "₪"

// ParseDecimalToAgorot converts a decimal string to agorot with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. The result is always positive.
// Returns an error for invalid formats, negative values, or zero amounts.
//
// Examples:
//
//	ParseDecimalToAgorot("12.34") -> 1234, nil
//	ParseDecimalToAgorot("12,34") -> 1234, nil
//	ParseDecimalToAgorot("12.345") -> 1235, nil (rounds up)
func ParseDecimalToAgorot(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, CurrencySymbol)
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}
	// First two fractional digits, then half-up rounding on the third
	var frac int64
	if len(fracPart) > 0 {
		frac = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			frac += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				frac++
			}
		}
	}
	agorot := iv*100 + frac
	if agorot <= 0 {
		return 0, ErrInvalidAmount
	}
	return agorot, nil
}

// NewMoneyFromFloat converts a shekel float (as returned by external
// collaborators such as receipt OCR) to Money, rounding half away from zero.
func NewMoneyFromFloat(shekels float64) Money {
	return Money{Agorot: decimal.NewFromFloat(shekels).Shift(2).Round(0).IntPart()}
}

// Shekels returns the amount as an exact decimal number of shekels.
func (m Money) Shekels() decimal.Decimal {
	return decimal.New(m.Agorot, -2)
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return Money{Agorot: m.Agorot + o.Agorot}
}

// ToAgorot rounds a shekel decimal to whole agorot.
func ToAgorot(shekels decimal.Decimal) int64 {
	return shekels.Shift(2).Round(0).IntPart()
}

// FormatShekels renders a shekel amount rounded to whole units with
// thousands grouping, e.g. "₪1,234" or "-₪50". Rounding happens only here.
func FormatShekels(shekels decimal.Decimal) string {
	whole := shekels.Round(0)
	neg := whole.IsNegative()
	digits := whole.Abs().String()

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString(CurrencySymbol)
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Format renders m via FormatShekels.
func (m Money) Format() string {
	return FormatShekels(m.Shekels())
}
