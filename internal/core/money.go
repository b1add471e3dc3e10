// Package core provides amount parsing utilities.
//
// The backend serializes amounts as decimal strings; they are decoded into
// shopspring decimals so that no float conversion can silently produce NaN.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string into a decimal value.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and
// surrounding whitespace. Thousands separators, exponents, NaN and
// infinities are rejected. Negative values are allowed here; callers that
// need a strictly positive amount use ParsePositiveAmount.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("NaN")   -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "-"), "+")
	if digits == "" || digits == "." {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range digits {
		if (r < '0' || r > '9') && r != '.' {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParsePositiveAmount is ParseAmount restricted to values > 0, rounded
// half-up to cents.
func ParsePositiveAmount(s string) (decimal.Decimal, error) {
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.Zero, err
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatAmount renders an amount with two decimals and a dot separator, the
// form the backend accepts.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
