// Package money holds decimal helpers for prices, costs, taxes and discounts
// and renders amounts according to the store currency settings.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Qty converts an item quantity to a decimal multiplier.
func Qty(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}

// Percent returns rate percent of amount, unrounded.
func Percent(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Div(hundred)
}

// Ratio returns part/whole*100 rounded to two places, or zero when whole is
// zero.
func Ratio(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(2)
}

// SymbolPosition places the currency symbol relative to the number.
type SymbolPosition string

const (
	SymbolBefore SymbolPosition = "before"
	SymbolAfter  SymbolPosition = "after"
)

// Format describes how amounts are rendered for receipts and notes.
type Format struct {
	Code              string
	Symbol            string
	Position          SymbolPosition
	Decimals          int32
	ThousandSeparator string
	DecimalSeparator  string
}

// DefaultFormat is used when no store settings are available.
var DefaultFormat = Format{
	Code:              "KES",
	Symbol:            "KSh",
	Position:          SymbolBefore,
	Decimals:          2,
	ThousandSeparator: ",",
	DecimalSeparator:  ".",
}

// Round rounds d to the configured number of decimals.
func (f Format) Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(f.Decimals)
}

// String renders d, e.g. "KSh 1,234.50" or "1.234,50 €".
func (f Format) String(d decimal.Decimal) string {
	neg := d.IsNegative()
	fixed := d.Abs().StringFixed(f.Decimals)

	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	if f.Position != SymbolAfter && f.Symbol != "" {
		b.WriteString(f.Symbol)
		b.WriteByte(' ')
	}
	b.WriteString(group(intPart, f.ThousandSeparator))
	if frac != "" {
		sep := f.DecimalSeparator
		if sep == "" {
			sep = "."
		}
		b.WriteString(sep)
		b.WriteString(frac)
	}
	if f.Position == SymbolAfter && f.Symbol != "" {
		b.WriteByte(' ')
		b.WriteString(f.Symbol)
	}
	return b.String()
}

func group(digits, sep string) string {
	if sep == "" || len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
