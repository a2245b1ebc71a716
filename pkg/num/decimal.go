// Package num provides thin helpers over shopspring/decimal.
//
// All money and quantity fields in the engine are decimal.Decimal. Binary
// floats never enter arithmetic; string literals are the only way constants
// are introduced.
package num

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	Zero = decimal.Zero
	One  = decimal.NewFromInt(1)
)

// MustDecimal parses s or panics. For constants and tests only.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("num: bad decimal literal %q: %v", s, err))
	}
	return d
}

// Parse parses a decimal string from the wire.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return d, nil
}

// Quantize truncates d to the given number of fractional places.
// Truncation (not rounding) keeps settlement conservative: an agent is never
// credited more than the exact product of price and quantity.
func Quantize(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Truncate(places)
}

// BpsOf returns amount * bps / 10000, the usual fee formula.
func BpsOf(amount decimal.Decimal, bps int64) decimal.Decimal {
	if bps == 0 {
		return decimal.Zero
	}
	return amount.Mul(decimal.NewFromInt(bps)).Div(decimal.NewFromInt(10000))
}

// IsPositive reports d > 0.
func IsPositive(d decimal.Decimal) bool { return d.Sign() > 0 }
