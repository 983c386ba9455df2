// Package money converts between integer minor units and decimal major-unit
// amounts.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MinorDigits is the number of minor-unit decimal places for the settlement
// currency.
const MinorDigits = 2

// Format renders a minor-unit amount as a fixed-point major-unit string, e.g.
// 1500050 -> "15000.50".
func Format(minor int64) string {
	return decimal.New(minor, -MinorDigits).StringFixed(MinorDigits)
}

// ParseMajor converts a major-unit string into minor units. It rejects values
// with more precision than the currency supports.
func ParseMajor(value string) (int64, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	scaled := d.Shift(MinorDigits)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", value, MinorDigits)
	}
	return scaled.IntPart(), nil
}

// Prorate returns share/whole of total in minor units, rounded half-up.
func Prorate(total, share, whole int64) int64 {
	if total == 0 || share == 0 || whole <= 0 {
		return 0
	}
	if share >= whole {
		return total
	}
	return decimal.NewFromInt(total).
		Mul(decimal.NewFromInt(share)).
		Div(decimal.NewFromInt(whole)).
		Round(0).
		IntPart()
}
