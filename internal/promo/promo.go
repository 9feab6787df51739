// Package promo computes quantity based promotional discounts for a cart.
//
// Rules sharing a category, discount and threshold form one group. A group
// pays out the better of its best single product and its pooled quantity,
// never both.
package promo

import (
	"sort"

	"kasirinaja/cashier/internal/domain"
)

// DefaultCategory groups rules that carry no category of their own.
const DefaultCategory = "default"

type GroupKey struct {
	Category    string
	Discount    int64
	MinQuantity int
}

type Group struct {
	Key               GroupKey
	ProductCodes      []string
	AggregateQuantity int
	BestIndividual    int64
	Pooled            int64
	Discount          int64
}

type Result struct {
	Total  int64
	Groups []Group
}

type groupState struct {
	products map[string]struct{}
	agg      int
	best     int64
}

func keyOf(rule domain.PromotionRule) GroupKey {
	category := rule.PromoCategory
	if category == "" {
		category = DefaultCategory
	}
	return GroupKey{Category: category, Discount: rule.DiscountAmount, MinQuantity: rule.MinQuantity}
}

// Compute evaluates every rule group against the cart. Lines with the same
// product code are summed first; malformed rules are skipped.
func Compute(cart []domain.CartLine, rules []domain.PromotionRule) Result {
	if len(cart) == 0 || len(rules) == 0 {
		return Result{}
	}

	quantities := make(map[string]int, len(cart))
	for _, line := range cart {
		if line.Quantity < 1 || line.ProductCode == "" {
			continue
		}
		quantities[line.ProductCode] += line.Quantity
	}

	groups := make(map[GroupKey]*groupState)
	for _, rule := range rules {
		if rule.MinQuantity < 1 || rule.DiscountAmount <= 0 || rule.ProductCode == "" {
			continue
		}
		key := keyOf(rule)
		g, ok := groups[key]
		if !ok {
			g = &groupState{products: map[string]struct{}{}}
			groups[key] = g
		}
		g.products[rule.ProductCode] = struct{}{}
	}

	for key, g := range groups {
		// products is a set, so each product joins the aggregate once.
		for code := range g.products {
			qty, ok := quantities[code]
			if !ok {
				continue
			}
			if qty >= key.MinQuantity {
				if d := int64(qty/key.MinQuantity) * key.Discount; d > g.best {
					g.best = d
				}
			}
			g.agg += qty
		}
	}

	result := Result{Groups: make([]Group, 0, len(groups))}
	for key, g := range groups {
		var pooled int64
		if g.agg >= key.MinQuantity {
			pooled = int64(g.agg/key.MinQuantity) * key.Discount
		}
		discount := max(g.best, pooled)
		codes := make([]string, 0, len(g.products))
		for code := range g.products {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		result.Groups = append(result.Groups, Group{
			Key:               key,
			ProductCodes:      codes,
			AggregateQuantity: g.agg,
			BestIndividual:    g.best,
			Pooled:            pooled,
			Discount:          discount,
		})
		result.Total += discount
	}

	sort.Slice(result.Groups, func(i, j int) bool {
		a, b := result.Groups[i].Key, result.Groups[j].Key
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.MinQuantity != b.MinQuantity {
			return a.MinQuantity < b.MinQuantity
		}
		return a.Discount < b.Discount
	})
	return result
}

func ComputeDiscount(cart []domain.CartLine, rules []domain.PromotionRule) int64 {
	return Compute(cart, rules).Total
}
