// Package money parses and formats currency amounts held as integers in the
// smallest currency unit, and prices cart lines.
package money

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"kasirinaja/cashier/internal/domain"
)

const DefaultLocale = "id"

// Eighteen digits always fit in an int64.
const maxDigits = 18

type Formatter struct {
	printer *message.Printer
}

// NewFormatter builds a formatter for a BCP 47 locale. Unknown locales fall
// back to DefaultLocale.
func NewFormatter(locale string) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.Indonesian
	}
	return &Formatter{printer: message.NewPrinter(tag)}
}

// Format groups digits in threes using the locale's grouping separator.
func (f *Formatter) Format(amount int64) string {
	return f.printer.Sprintf("%d", amount)
}

var defaultFormatter = NewFormatter(DefaultLocale)

// FormatCurrency formats with the default locale, e.g. 10000 -> "10.000".
func FormatCurrency(amount int64) string {
	return defaultFormatter.Format(amount)
}

// ParseCurrency keeps only the digits of input. Empty, digit-less or
// out-of-range input yields 0.
func ParseCurrency(input string) int64 {
	var value int64
	digits := 0
	for i := 0; i < len(input); i++ {
		ch := input[i]
		if ch < '0' || ch > '9' {
			continue
		}
		if digits == 0 && ch == '0' {
			continue
		}
		digits++
		if digits > maxDigits {
			return 0
		}
		value = value*10 + int64(ch-'0')
	}
	return value
}

// EffectivePrice is the per-item price for the line's selected unit. A bulk
// line without a bulk price is charged the unit price.
func EffectivePrice(line domain.CartLine, product domain.Product) int64 {
	if line.SelectedUnit == domain.UnitBulk && product.BulkPrice > 0 {
		return product.BulkPrice
	}
	return product.UnitPrice
}

func LineTotal(line domain.CartLine, product domain.Product) int64 {
	if line.Quantity < 1 {
		return 0
	}
	return EffectivePrice(line, product) * int64(line.Quantity)
}

// UnitLabel names the unit a line is sold in, for receipts.
func UnitLabel(line domain.CartLine, product domain.Product) string {
	if line.SelectedUnit != domain.UnitBulk {
		return "pcs"
	}
	if product.BulkQuantityLabel != "" {
		return product.BulkQuantityLabel
	}
	return "bulk"
}
