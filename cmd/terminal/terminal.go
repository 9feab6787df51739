package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"kasirinaja/cashier/internal/domain"
	"kasirinaja/cashier/internal/scanner"
	"kasirinaja/cashier/internal/session"
)

var errQuit = errors.New("quit")

const helpText = `commands:
  <digits>              scan a barcode
  <text>                search the catalog
  :search <text>        search the catalog
  :pick <n>             add search result n
  :qty <code> <n>       set quantity
  :unit <code> <unit|bulk>
  :rm <code>            remove a line
  :discount <amount>    manual discount, empty to clear
  :pay <amount>         amount tendered
  :cart                 show cart and payment
  :submit               save the transaction
  :reload               refetch the catalog
  :quit
`

type keySender interface {
	Send(ctx context.Context, ev scanner.KeyEvent) error
	Flush(ctx context.Context) error
}

// syncWriter serializes writes from the key loop and the command loop.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

type terminal struct {
	out  *syncWriter
	sess *session.Session
	loop keySender
}

func newTerminal(w io.Writer) *terminal {
	return &terminal{out: &syncWriter{w: w}}
}

func (t *terminal) printf(format string, args ...any) {
	fmt.Fprintf(t.out, format, args...)
}

func (t *terminal) notify(n session.Notification) {
	if n.Message == "" {
		return
	}
	t.printf("[%s] %s\n", n.Level, n.Message)
}

func (t *terminal) execute(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, ":") {
		if isBarcode(line) {
			return t.scan(ctx, line)
		}
		t.search(line)
		return nil
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "help":
		t.printf("%s", helpText)
	case "quit", "q":
		return errQuit
	case "search":
		t.search(arg)
	case "pick":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("pick needs a result number")
		}
		if err := t.sess.SelectResult(n - 1); err != nil {
			return err
		}
		t.showCart()
	case "qty":
		code, raw, _ := strings.Cut(arg, " ")
		qty, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return session.ErrInvalidQuantity
		}
		if err := t.sess.UpdateQuantity(code, qty); err != nil {
			return err
		}
		t.showCart()
	case "unit":
		code, raw, _ := strings.Cut(arg, " ")
		unit, ok := domain.ParseUnit(strings.TrimSpace(raw))
		if !ok {
			return session.ErrInvalidUnit
		}
		if err := t.sess.ChangeUnit(code, unit); err != nil {
			return err
		}
		t.showCart()
	case "rm":
		if err := t.sess.RemoveLine(arg); err != nil {
			return err
		}
		t.showCart()
	case "discount":
		if _, err := t.sess.SetDiscount(arg); err != nil {
			return err
		}
		t.showCart()
	case "pay":
		if err := t.sess.SetAmountTendered(arg); err != nil {
			return err
		}
		t.showPayment()
	case "cart":
		t.showCart()
	case "submit":
		tx, err := t.sess.Submit(ctx)
		if err != nil {
			return err
		}
		t.sess.AcknowledgePrint()
		t.printf("saved %s, change Rp %s\n", tx.ID, t.sess.FormatAmount(tx.ChangeGiven))
	case "reload":
		if err := t.sess.RefreshCatalog(ctx); err != nil {
			return err
		}
		t.printf("catalog reloaded\n")
	default:
		return fmt.Errorf("unknown command %q, try :help", name)
	}
	return nil
}

// scan replays a line as a scanner burst followed by Enter and returns once
// the session has acted on it, so the next line sees the updated cart.
func (t *terminal) scan(ctx context.Context, code string) error {
	for _, r := range code {
		if err := t.loop.Send(ctx, scanner.KeyEvent{Key: string(r), Target: scanner.TargetSearchField}); err != nil {
			return err
		}
	}
	if err := t.loop.Send(ctx, scanner.KeyEvent{Key: scanner.KeyEnter, Target: scanner.TargetSearchField}); err != nil {
		return err
	}
	if err := t.loop.Flush(ctx); err != nil {
		return err
	}
	t.sess.WaitLookups()
	return nil
}

func (t *terminal) search(query string) {
	results := t.sess.Search(query)
	if len(results) == 0 {
		t.printf("no products match %q\n", query)
		return
	}
	for i, p := range results {
		t.printf("%2d. %-32s %s  Rp %s\n", i+1, p.Name, p.Code, t.sess.FormatAmount(p.UnitPrice))
	}
}

func (t *terminal) showCart() {
	lines := t.sess.Lines()
	if len(lines) == 0 {
		t.printf("cart is empty\n")
		return
	}
	for _, l := range lines {
		t.printf("%-28s %3d %-8s Rp %s\n", l.Name, l.Quantity, l.UnitLabel, t.sess.FormatAmount(l.Total))
	}
	t.printf("subtotal Rp %s  discount Rp %s  total Rp %s\n",
		t.sess.FormatAmount(t.sess.Subtotal()), t.sess.FormatAmount(t.sess.Discount()), t.sess.FormatAmount(t.sess.Total()))
	t.showPayment()
}

func (t *terminal) showPayment() {
	state := t.sess.PaymentState()
	if state.Message != "" {
		t.printf("%s\n", state.Message)
	}
}

func isBarcode(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
