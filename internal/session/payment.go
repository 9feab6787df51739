package session

import (
	"fmt"

	"kasirinaja/cashier/internal/domain"
	"kasirinaja/cashier/internal/money"
)

// DerivePaymentState classifies the tendered amount against what is due.
// entered is false while the cashier has not typed any amount yet.
func DerivePaymentState(subtotal, discount, tendered int64, entered bool) domain.PaymentState {
	return derivePaymentState(defaultFormatter, subtotal, discount, tendered, entered)
}

var defaultFormatter = money.NewFormatter(money.DefaultLocale)

func derivePaymentState(f *money.Formatter, subtotal, discount, tendered int64, entered bool) domain.PaymentState {
	due := max(subtotal-discount, 0)
	state := domain.PaymentState{AmountDue: due}
	switch {
	case !entered:
		state.Status = domain.PaymentEmpty
		state.Message = fmt.Sprintf("amount due Rp %s", f.Format(due))
	case tendered < due:
		state.Status = domain.PaymentInsufficient
		state.DifferenceAmount = due - tendered
		state.Message = fmt.Sprintf("short by Rp %s", f.Format(state.DifferenceAmount))
	case tendered == due:
		state.Status = domain.PaymentExact
		state.Message = "exact amount, no change"
	default:
		state.Status = domain.PaymentOverpaid
		state.DifferenceAmount = tendered - due
		state.Message = fmt.Sprintf("change Rp %s", f.Format(state.DifferenceAmount))
	}
	return state
}

// changeFor is max(0, tendered - (subtotal - discount)).
func changeFor(subtotal, discount, tendered int64) int64 {
	return max(tendered-(subtotal-discount), 0)
}
