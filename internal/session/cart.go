package session

import (
	"strings"
	"time"

	"kasirinaja/cashier/internal/domain"
	"kasirinaja/cashier/internal/money"
	"kasirinaja/cashier/internal/promo"
)

// LineView is a cart line priced for display.
type LineView struct {
	domain.CartLine
	Name      string
	UnitPrice int64
	UnitLabel string
	Total     int64
}

// AddProduct puts qty of product in the cart, merging into an existing line
// for the same product. A second add of the same product inside the
// re-entrancy window returns ErrDuplicateAdd and changes nothing.
func (s *Session) AddProduct(product domain.Product, qty int) error {
	if product.Code == "" {
		return ErrInvalidProduct
	}
	if qty < 1 {
		return ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return ErrSubmitInProgress
	}

	now := s.now()
	if until, locked := s.addLocks[product.Code]; locked && now.Before(until) {
		return ErrDuplicateAdd
	}
	s.addLocks[product.Code] = now.Add(s.addLockWindow)
	s.pruneAddLocksLocked(now)

	if i := s.indexLocked(product.Code); i >= 0 {
		s.cart[i].line.Quantity += qty
	} else {
		s.cart = append(s.cart, cartEntry{
			line:    domain.CartLine{ProductCode: product.Code, Quantity: qty, SelectedUnit: domain.UnitPiece},
			product: product,
		})
	}
	s.cartChangedLocked()
	return nil
}

func (s *Session) UpdateQuantity(code string, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return ErrSubmitInProgress
	}
	i := s.indexLocked(code)
	if i < 0 {
		return ErrLineNotFound
	}
	s.cart[i].line.Quantity = qty
	s.cartChangedLocked()
	return nil
}

func (s *Session) RemoveLine(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return ErrSubmitInProgress
	}
	i := s.indexLocked(code)
	if i < 0 {
		return ErrLineNotFound
	}
	s.cart = append(s.cart[:i], s.cart[i+1:]...)
	delete(s.addLocks, code)
	s.cartChangedLocked()
	return nil
}

// ChangeUnit switches a line between unit and bulk pricing. Switching resets
// the quantity to 1 so an existing count is never silently repriced.
func (s *Session) ChangeUnit(code string, unit domain.Unit) error {
	if _, ok := domain.ParseUnit(string(unit)); !ok {
		return ErrInvalidUnit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return ErrSubmitInProgress
	}
	i := s.indexLocked(code)
	if i < 0 {
		return ErrLineNotFound
	}
	if s.cart[i].line.SelectedUnit == unit {
		return nil
	}
	s.cart[i].line.SelectedUnit = unit
	s.cart[i].line.Quantity = 1
	s.cartChangedLocked()
	return nil
}

// SetDiscount overrides the computed discount with a manual amount, clamped
// to [0, subtotal]. The next cart or promotion change recomputes it.
func (s *Session) SetDiscount(raw string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return 0, ErrSubmitInProgress
	}
	s.idempotencyKey = ""
	if strings.TrimSpace(raw) == "" || len(s.cart) == 0 {
		s.discount, s.discountText = 0, ""
		return 0, nil
	}
	s.discount = min(max(money.ParseCurrency(raw), 0), s.subtotalLocked())
	s.discountText = s.formatter.Format(s.discount)
	return s.discount, nil
}

// SetAmountTendered records what the customer handed over. Input without any
// digit counts as nothing entered.
func (s *Session) SetAmountTendered(raw string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return ErrSubmitInProgress
	}
	s.idempotencyKey = ""
	s.tendered = money.ParseCurrency(raw)
	s.tenderedEntered = strings.ContainsAny(raw, "0123456789")
	return nil
}

func (s *Session) Cart() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := make([]domain.CartLine, 0, len(s.cart))
	for _, e := range s.cart {
		lines = append(lines, e.line)
	}
	return lines
}

func (s *Session) Lines() []LineView {
	s.mu.Lock()
	defer s.mu.Unlock()
	views := make([]LineView, 0, len(s.cart))
	for _, e := range s.cart {
		views = append(views, LineView{
			CartLine:  e.line,
			Name:      e.product.Name,
			UnitPrice: money.EffectivePrice(e.line, e.product),
			UnitLabel: money.UnitLabel(e.line, e.product),
			Total:     money.LineTotal(e.line, e.product),
		})
	}
	return views
}

func (s *Session) Subtotal() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subtotalLocked()
}

func (s *Session) Discount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discount
}

// DiscountText is the formatted discount, or "" when none applies.
func (s *Session) DiscountText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discountText
}

func (s *Session) Total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subtotalLocked() - s.discount
}

func (s *Session) Change() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return changeFor(s.subtotalLocked(), s.discount, s.tendered)
}

func (s *Session) PaymentState() domain.PaymentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return derivePaymentState(s.formatter, s.subtotalLocked(), s.discount, s.tendered, s.tenderedEntered)
}

func (s *Session) FormatAmount(amount int64) string {
	return s.formatter.Format(amount)
}

func (s *Session) indexLocked(code string) int {
	for i, e := range s.cart {
		if e.line.ProductCode == code {
			return i
		}
	}
	return -1
}

func (s *Session) subtotalLocked() int64 {
	var subtotal int64
	for _, e := range s.cart {
		subtotal += money.LineTotal(e.line, e.product)
	}
	return subtotal
}

// cartChangedLocked runs after every cart mutation. Any change to what would
// be submitted gets a fresh idempotency key.
func (s *Session) cartChangedLocked() {
	s.idempotencyKey = ""
	s.recomputeDiscountLocked()
}

// recomputeDiscountLocked runs after every cart or rule-set change, so the
// discount seen after a mutation always matches the cart.
func (s *Session) recomputeDiscountLocked() {
	if len(s.cart) == 0 || len(s.rules) == 0 {
		s.discount, s.discountText = 0, ""
		return
	}
	lines := make([]domain.CartLine, 0, len(s.cart))
	for _, e := range s.cart {
		lines = append(lines, e.line)
	}
	s.discount = min(promo.ComputeDiscount(lines, s.rules), s.subtotalLocked())
	s.discountText = s.formatter.Format(s.discount)
}

func (s *Session) pruneAddLocksLocked(now time.Time) {
	for code, until := range s.addLocks {
		if !now.Before(until) {
			delete(s.addLocks, code)
		}
	}
}
