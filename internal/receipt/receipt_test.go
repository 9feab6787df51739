package receipt

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirinaja/cashier/internal/domain"
)

func sampleTransaction() domain.Transaction {
	return domain.Transaction{
		ID:          "tx-1",
		CashierName: "Kasir Satu",
		Lines: []domain.TransactionLine{
			{ProductCode: "A", Name: "Mie Goreng Instan", Quantity: 2, UnitLabel: "unit", UnitPriceApplied: 3500},
			{ProductCode: "B", Quantity: 1, UnitLabel: "dus isi 12", UnitPriceApplied: 39000},
		},
		Subtotal:       46000,
		Discount:       1000,
		Total:          45000,
		AmountTendered: 50000,
		ChangeGiven:    5000,
		CreatedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestRenderLayout(t *testing.T) {
	r := Render(sampleTransaction(), nil)

	assert.Equal(t, StoreName, r.Lines[0])
	text := r.Text()
	assert.Contains(t, text, "Kasir: Kasir Satu")
	assert.Contains(t, text, "Mie Goreng Instan x2 unit")
	assert.Contains(t, text, "  Rp 7.000")
	assert.Contains(t, text, "B x1 dus isi 12")
	assert.Contains(t, text, "Diskon   : Rp 1.000")
	assert.Contains(t, text, "Kembali  : Rp 5.000")

	assert.True(t, bytes.HasPrefix(r.ESCPOS, escInit))
	assert.True(t, bytes.HasSuffix(r.ESCPOS, escCutFeed))
}

func TestRenderOmitsZeroDiscount(t *testing.T) {
	tx := sampleTransaction()
	tx.Discount = 0
	assert.NotContains(t, Render(tx, nil).Text(), "Diskon")
}

func TestHardwareEncoding(t *testing.T) {
	r := Render(sampleTransaction(), nil)
	hw := r.Hardware()

	assert.Equal(t, "tx-1", hw.TransactionID)
	assert.Equal(t, "receipt-tx-1.bin", hw.FileName)
	raw, err := base64.StdEncoding.DecodeString(hw.EscposBase64)
	require.NoError(t, err)
	assert.Equal(t, r.ESCPOS, raw)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("paper out") }

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, nil)
	require.NoError(t, p.Print(context.Background(), sampleTransaction()))
	assert.Equal(t, Render(sampleTransaction(), nil).ESCPOS, buf.Bytes())

	err := NewPrinter(failingWriter{}, nil).Print(context.Background(), sampleTransaction())
	assert.ErrorContains(t, err, "paper out")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Print(ctx, sampleTransaction()), context.Canceled)
}
