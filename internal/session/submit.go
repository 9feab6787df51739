package session

import (
	"context"
	"fmt"

	"kasirinaja/cashier/internal/domain"
	"kasirinaja/cashier/internal/money"
	"kasirinaja/cashier/internal/xid"
)

// Submit sends the cart to the transaction sink. Preconditions are checked
// before any network call. On failure the cart and payment form are kept and
// a retry reuses the same idempotency key; on success they are cleared and
// the transaction becomes print-ready.
func (s *Session) Submit(ctx context.Context) (domain.Transaction, error) {
	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return domain.Transaction{}, ErrSubmitInProgress
	}
	if s.user == nil {
		s.mu.Unlock()
		return domain.Transaction{}, ErrNoUser
	}
	if len(s.cart) == 0 {
		s.mu.Unlock()
		return domain.Transaction{}, ErrEmptyCart
	}

	subtotal := s.subtotalLocked()
	discount := s.discount
	state := derivePaymentState(s.formatter, subtotal, discount, s.tendered, s.tenderedEntered)
	if state.Status == domain.PaymentInsufficient {
		s.mu.Unlock()
		return domain.Transaction{}, fmt.Errorf("%w: short by %d", ErrInsufficientPayment, state.DifferenceAmount)
	}
	tendered := s.tendered
	if !s.tenderedEntered {
		tendered = state.AmountDue
	}

	if s.idempotencyKey == "" {
		s.idempotencyKey = xid.New("idem")
	}
	user := *s.user
	tx, payload := s.buildLocked(user, subtotal, discount, tendered)
	s.submitting = true
	s.mu.Unlock()

	receipt, err := s.sink.SubmitTransaction(ctx, payload)

	s.mu.Lock()
	s.submitting = false
	if err != nil {
		s.mu.Unlock()
		s.log.Warn("transaction submit failed", "idempotency_key", payload.IdempotencyKey, "error", err)
		s.notify(LevelError, CodeSubmitFailed, "transaction failed, please try again")
		return domain.Transaction{}, fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}

	tx.ID = receipt.TransactionID
	if !receipt.CreatedAt.IsZero() {
		tx.CreatedAt = receipt.CreatedAt
	}
	s.resetFormLocked()
	s.printable = &tx
	s.mu.Unlock()

	s.log.Info("transaction submitted", "transaction_id", tx.ID, "total", tx.Total, "duplicate", receipt.Duplicate)
	s.notify(LevelInfo, CodeSubmitSucceeded, fmt.Sprintf("transaction %s saved, change Rp %s", tx.ID, s.formatter.Format(tx.ChangeGiven)))

	if s.printer != nil {
		if err := s.printer.Print(ctx, tx); err != nil {
			s.log.Warn("receipt print failed", "transaction_id", tx.ID, "error", err)
			s.notify(LevelWarning, CodePrintFailed, "receipt could not be printed")
		}
	}
	return tx, nil
}

func (s *Session) buildLocked(user domain.User, subtotal, discount, tendered int64) (domain.Transaction, domain.TransactionPayload) {
	payload := domain.TransactionPayload{
		ProductCodes:   make([]string, 0, len(s.cart)),
		Quantities:     make([]int, 0, len(s.cart)),
		Units:          make([]string, 0, len(s.cart)),
		UserID:         user.ID,
		Discount:       discount,
		AmountTendered: tendered,
		IdempotencyKey: s.idempotencyKey,
	}
	tx := domain.Transaction{
		IdempotencyKey: s.idempotencyKey,
		CashierID:      user.ID,
		CashierName:    user.Name,
		Lines:          make([]domain.TransactionLine, 0, len(s.cart)),
		Subtotal:       subtotal,
		Discount:       discount,
		Total:          subtotal - discount,
		AmountTendered: tendered,
		ChangeGiven:    changeFor(subtotal, discount, tendered),
		CreatedAt:      s.now().UTC(),
	}
	for _, e := range s.cart {
		payload.ProductCodes = append(payload.ProductCodes, e.line.ProductCode)
		payload.Quantities = append(payload.Quantities, e.line.Quantity)
		payload.Units = append(payload.Units, string(e.line.SelectedUnit))
		tx.Lines = append(tx.Lines, domain.TransactionLine{
			ProductCode:      e.line.ProductCode,
			Name:             e.product.Name,
			Quantity:         e.line.Quantity,
			UnitPriceApplied: money.EffectivePrice(e.line, e.product),
			UnitLabel:        money.UnitLabel(e.line, e.product),
			Unit:             e.line.SelectedUnit,
		})
	}
	return tx, payload
}

func (s *Session) resetFormLocked() {
	s.cart = nil
	clear(s.addLocks)
	s.results = nil
	s.classifier.ClearSearch()
	s.discount, s.discountText = 0, ""
	s.tendered, s.tenderedEntered = 0, false
	s.idempotencyKey = ""
}

// PrintReady returns the last submitted transaction until it is acknowledged.
func (s *Session) PrintReady() (domain.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.printable == nil {
		return domain.Transaction{}, false
	}
	return *s.printable, true
}

func (s *Session) AcknowledgePrint() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.printable = nil
}

func (s *Session) Submitting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitting
}
