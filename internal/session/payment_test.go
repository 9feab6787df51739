package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kasirinaja/cashier/internal/domain"
)

func TestDerivePaymentState(t *testing.T) {
	tests := []struct {
		name       string
		subtotal   int64
		discount   int64
		tendered   int64
		entered    bool
		status     domain.PaymentStatus
		difference int64
	}{
		{name: "nothing entered", subtotal: 10000, status: domain.PaymentEmpty},
		{name: "exact", subtotal: 10000, tendered: 10000, entered: true, status: domain.PaymentExact},
		{name: "overpaid", subtotal: 10000, tendered: 15000, entered: true, status: domain.PaymentOverpaid, difference: 5000},
		{name: "insufficient", subtotal: 10000, tendered: 5000, entered: true, status: domain.PaymentInsufficient, difference: 5000},
		{name: "discount lowers due", subtotal: 10000, discount: 2500, tendered: 7500, entered: true, status: domain.PaymentExact},
		{name: "zero entered", subtotal: 10000, entered: true, status: domain.PaymentInsufficient, difference: 10000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := DerivePaymentState(tt.subtotal, tt.discount, tt.tendered, tt.entered)
			assert.Equal(t, tt.status, state.Status)
			assert.Equal(t, tt.difference, state.DifferenceAmount)
			assert.Equal(t, tt.subtotal-tt.discount, state.AmountDue)
			assert.NotEmpty(t, state.Message)
		})
	}
}

func TestPaymentMessageShowsFormattedDifference(t *testing.T) {
	state := DerivePaymentState(125000, 0, 100000, true)
	assert.Equal(t, "short by Rp 25.000", state.Message)
}

func TestChangeNeverNegative(t *testing.T) {
	assert.EqualValues(t, 0, changeFor(10000, 0, 5000))
	assert.EqualValues(t, 5000, changeFor(10000, 0, 15000))
	assert.EqualValues(t, 2500, changeFor(10000, 2500, 10000))
}
