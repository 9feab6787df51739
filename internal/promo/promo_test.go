package promo

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirinaja/cashier/internal/domain"
)

func line(code string, qty int) domain.CartLine {
	return domain.CartLine{ProductCode: code, Quantity: qty, SelectedUnit: domain.UnitPiece}
}

func TestSingleProductThreshold(t *testing.T) {
	rules := []domain.PromotionRule{{ProductCode: "X", MinQuantity: 5, DiscountAmount: 1000}}

	assert.Zero(t, ComputeDiscount([]domain.CartLine{line("X", 3)}, rules))
	assert.EqualValues(t, 1000, ComputeDiscount([]domain.CartLine{line("X", 6)}, rules))
	assert.EqualValues(t, 2000, ComputeDiscount([]domain.CartLine{line("X", 10)}, rules))
}

func TestCategoryPoolsQuantities(t *testing.T) {
	rules := []domain.PromotionRule{
		{ProductCode: "A", PromoCategory: "snack", MinQuantity: 5, DiscountAmount: 500},
		{ProductCode: "B", PromoCategory: "snack", MinQuantity: 5, DiscountAmount: 500},
	}
	result := Compute([]domain.CartLine{line("A", 3), line("B", 4)}, rules)

	assert.EqualValues(t, 500, result.Total)
	require.Len(t, result.Groups, 1)
	assert.Equal(t, 7, result.Groups[0].AggregateQuantity)
	assert.Zero(t, result.Groups[0].BestIndividual)
	assert.Equal(t, []string{"A", "B"}, result.Groups[0].ProductCodes)
}

func TestGroupTakesLargerStrategyNotSum(t *testing.T) {
	rules := []domain.PromotionRule{
		{ProductCode: "A", PromoCategory: "drink", MinQuantity: 5, DiscountAmount: 500},
		{ProductCode: "B", PromoCategory: "drink", MinQuantity: 5, DiscountAmount: 500},
	}
	result := Compute([]domain.CartLine{line("A", 5), line("B", 4)}, rules)

	require.Len(t, result.Groups, 1)
	g := result.Groups[0]
	assert.EqualValues(t, 500, g.BestIndividual)
	assert.EqualValues(t, 500, g.Pooled)
	assert.EqualValues(t, 500, result.Total)

	result = Compute([]domain.CartLine{line("A", 5), line("B", 5)}, rules)
	assert.EqualValues(t, 1000, result.Total)
}

func TestProductMayEarnFromSeveralGroups(t *testing.T) {
	rules := []domain.PromotionRule{
		{ProductCode: "A", PromoCategory: "snack", MinQuantity: 2, DiscountAmount: 300},
		{ProductCode: "A", PromoCategory: "weekend", MinQuantity: 4, DiscountAmount: 1000},
	}
	result := Compute([]domain.CartLine{line("A", 4)}, rules)
	assert.EqualValues(t, 600+1000, result.Total)
	assert.Len(t, result.Groups, 2)
}

func TestMalformedRulesAndNoMatchesYieldZero(t *testing.T) {
	rules := []domain.PromotionRule{
		{ProductCode: "A", MinQuantity: 0, DiscountAmount: 500},
		{ProductCode: "A", MinQuantity: 2, DiscountAmount: -100},
		{ProductCode: "Z", MinQuantity: 1, DiscountAmount: 100},
	}
	assert.Zero(t, ComputeDiscount([]domain.CartLine{line("A", 10)}, rules))
	assert.Zero(t, ComputeDiscount(nil, rules))
	assert.Zero(t, ComputeDiscount([]domain.CartLine{line("A", 10)}, nil))
}

func TestDiscountIgnoresOrder(t *testing.T) {
	cart := []domain.CartLine{line("A", 3), line("B", 7), line("C", 2), line("D", 9)}
	rules := []domain.PromotionRule{
		{ProductCode: "A", PromoCategory: "snack", MinQuantity: 4, DiscountAmount: 400},
		{ProductCode: "B", PromoCategory: "snack", MinQuantity: 4, DiscountAmount: 400},
		{ProductCode: "C", MinQuantity: 2, DiscountAmount: 150},
		{ProductCode: "D", MinQuantity: 3, DiscountAmount: 250},
		{ProductCode: "D", PromoCategory: "snack", MinQuantity: 4, DiscountAmount: 400},
	}
	want := ComputeDiscount(cart, rules)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		c := append([]domain.CartLine(nil), cart...)
		r := append([]domain.PromotionRule(nil), rules...)
		rng.Shuffle(len(c), func(a, b int) { c[a], c[b] = c[b], c[a] })
		rng.Shuffle(len(r), func(a, b int) { r[a], r[b] = r[b], r[a] })
		assert.Equal(t, want, ComputeDiscount(c, r))
	}
}

func TestDiscountIsMonotonicInQuantity(t *testing.T) {
	rules := []domain.PromotionRule{
		{ProductCode: "A", PromoCategory: "snack", MinQuantity: 3, DiscountAmount: 200},
		{ProductCode: "B", PromoCategory: "snack", MinQuantity: 3, DiscountAmount: 200},
		{ProductCode: "A", MinQuantity: 5, DiscountAmount: 700},
	}
	for b := 0; b <= 6; b++ {
		prev := int64(-1)
		for a := 1; a <= 20; a++ {
			cart := []domain.CartLine{line("A", a)}
			if b > 0 {
				cart = append(cart, line("B", b))
			}
			got := ComputeDiscount(cart, rules)
			assert.GreaterOrEqual(t, got, prev, "a=%d b=%d", a, b)
			assert.GreaterOrEqual(t, got, int64(0))
			prev = got
		}
	}
}
