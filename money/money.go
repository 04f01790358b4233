// Package money parses and rounds monetary amounts. Amounts are always
// decimal, never binary floating point, and are kept at two decimal places.
package money

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrMalformed = errors.New("malformed amount")

// plain is the only shape handed to the decimal parser; exponents are refused.
var plain = regexp.MustCompile(`^[+-]?\d+(\.\d+)?$`)

// Parse reads form-style amount text. Either '.' or ',' may be the fractional
// separator; when both appear, the last one is the fractional separator and
// the other is treated as digit grouping ("1,000,000.00", "1.000.000,00").
// The result is rounded to two places.
func Parse(text string) (decimal.Decimal, error) {
	s := strings.ReplaceAll(strings.TrimSpace(text), " ", "")
	if s == "" {
		return decimal.Zero, ErrMalformed
	}

	dot, comma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case dot >= 0 && comma >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		s = strings.Replace(s, ",", ".", 1)
	}

	if !plain.MatchString(s) {
		return decimal.Zero, ErrMalformed
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrMalformed
	}
	return Round(d), nil
}

// Round rounds to cents.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Format renders d with exactly two fractional digits.
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}
