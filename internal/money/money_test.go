package money

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kasirinaja/cashier/internal/domain"
)

func TestParseCurrency(t *testing.T) {
	cases := map[string]int64{
		"":                      0,
		"abc":                   0,
		"Rp 15.000":             15000,
		"1,250,000":             1250000,
		"  007 ":                7,
		"-5000":                 5000,
		"12a34b":                1234,
		"9999999999999999999":   0,
		"000000000000000000042": 42,
	}
	for input, want := range cases {
		assert.Equal(t, want, ParseCurrency(input), "input %q", input)
	}
}

func TestFormatCurrencyGroupsThousands(t *testing.T) {
	assert.Equal(t, "0", FormatCurrency(0))
	assert.Equal(t, "999", FormatCurrency(999))
	assert.Equal(t, "10.000", FormatCurrency(10000))
	assert.Equal(t, "1.234.567", FormatCurrency(1234567))
	assert.Equal(t, "1,234,567", NewFormatter("en").Format(1234567))
}

func TestParseFormatRoundTripIsIdempotent(t *testing.T) {
	inputs := []string{"", "0", "15.000", "Rp1.000.000,-", "x9y8z7", "123456789012345678", "  42  "}
	for _, s := range inputs {
		parsed := ParseCurrency(s)
		assert.Equal(t, parsed, ParseCurrency(FormatCurrency(parsed)), "input %q", s)
	}
}

func TestEffectivePrice(t *testing.T) {
	product := domain.Product{Code: "MIE", UnitPrice: 3500, BulkPrice: 38000, BulkQuantityLabel: "dus isi 12"}
	noBulk := domain.Product{Code: "AIR", UnitPrice: 3900}

	assert.EqualValues(t, 3500, EffectivePrice(domain.CartLine{SelectedUnit: domain.UnitPiece}, product))
	assert.EqualValues(t, 38000, EffectivePrice(domain.CartLine{SelectedUnit: domain.UnitBulk}, product))
	assert.EqualValues(t, 3900, EffectivePrice(domain.CartLine{SelectedUnit: domain.UnitBulk}, noBulk))

	assert.EqualValues(t, 76000, LineTotal(domain.CartLine{Quantity: 2, SelectedUnit: domain.UnitBulk}, product))
	assert.Equal(t, "dus isi 12", UnitLabel(domain.CartLine{SelectedUnit: domain.UnitBulk}, product))
	assert.Equal(t, "bulk", UnitLabel(domain.CartLine{SelectedUnit: domain.UnitBulk}, noBulk))
	assert.Equal(t, "pcs", UnitLabel(domain.CartLine{SelectedUnit: domain.UnitPiece}, product))
}
