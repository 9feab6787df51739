// Package receipt renders finalized transactions as plain text and ESC/POS
// bytes for thermal printers.
package receipt

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"sync"

	"kasirinaja/cashier/internal/domain"
	"kasirinaja/cashier/internal/money"
)

const StoreName = "KasirinAja POS"

var (
	escInit    = []byte{0x1b, 0x40}
	escCutFeed = []byte{0x1d, 0x56, 0x41, 0x10}
)

type Receipt struct {
	TransactionID string
	Lines         []string
	ESCPOS        []byte
}

func (r Receipt) Text() string {
	return strings.Join(r.Lines, "\n")
}

// Hardware packs the receipt for delivery to a local printer bridge.
func (r Receipt) Hardware() domain.HardwareReceipt {
	return domain.HardwareReceipt{
		TransactionID: r.TransactionID,
		EscposBase64:  base64.StdEncoding.EncodeToString(r.ESCPOS),
		PreviewText:   r.Text(),
		FileName:      fmt.Sprintf("receipt-%s.bin", r.TransactionID),
	}
}

// Render lays out tx. A nil formatter uses the Indonesian default.
func Render(tx domain.Transaction, f *money.Formatter) Receipt {
	if f == nil {
		f = money.NewFormatter(money.DefaultLocale)
	}
	rp := func(amount int64) string { return "Rp " + f.Format(amount) }

	lines := []string{
		StoreName,
		"========================",
		"TX: " + tx.ID,
	}
	if tx.CashierName != "" {
		lines = append(lines, "Kasir: "+tx.CashierName)
	}
	lines = append(lines,
		"Date: "+tx.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		"------------------------",
	)
	for _, line := range tx.Lines {
		name := line.Name
		if name == "" {
			name = line.ProductCode
		}
		lines = append(lines, fmt.Sprintf("%s x%d %s", name, line.Quantity, line.UnitLabel))
		lines = append(lines, "  "+rp(line.UnitPriceApplied*int64(line.Quantity)))
	}
	lines = append(lines,
		"------------------------",
		"Subtotal : "+rp(tx.Subtotal),
	)
	if tx.Discount > 0 {
		lines = append(lines, "Diskon   : "+rp(tx.Discount))
	}
	lines = append(lines,
		"Total    : "+rp(tx.Total),
		"Bayar    : "+rp(tx.AmountTendered),
		"Kembali  : "+rp(tx.ChangeGiven),
		"========================",
		"Terima kasih",
		"",
	)

	var buf bytes.Buffer
	buf.Write(escInit)
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	buf.Write(escCutFeed)

	return Receipt{TransactionID: tx.ID, Lines: lines, ESCPOS: buf.Bytes()}
}

// Printer streams ESC/POS receipts to w, typically a serial or USB device.
type Printer struct {
	mu        sync.Mutex
	w         io.Writer
	formatter *money.Formatter
}

func NewPrinter(w io.Writer, f *money.Formatter) *Printer {
	return &Printer{w: w, formatter: f}
}

func (p *Printer) Print(ctx context.Context, tx domain.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r := Render(tx, p.formatter)

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.w.Write(r.ESCPOS); err != nil {
		return fmt.Errorf("write receipt %s: %w", tx.ID, err)
	}
	return nil
}
