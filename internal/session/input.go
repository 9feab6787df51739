package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kasirinaja/cashier/internal/domain"
	"kasirinaja/cashier/internal/scanner"
)

// HandleKey feeds one keystroke through the classifier and acts on what it
// recognised.
func (s *Session) HandleKey(ctx context.Context, ev scanner.KeyEvent) {
	s.mu.Lock()
	events := s.classifier.HandleKey(ev)
	s.mu.Unlock()
	s.dispatch(ctx, events)
}

// Tick fires classifier timers due at now.
func (s *Session) Tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	events := s.classifier.Tick(now)
	s.mu.Unlock()
	s.dispatch(ctx, events)
}

func (s *Session) NextDeadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classifier.NextDeadline()
}

func (s *Session) ScannerState() scanner.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classifier.State()
}

func (s *Session) SearchText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classifier.SearchText()
}

func (s *Session) dispatch(ctx context.Context, events []scanner.Event) {
	for _, ev := range events {
		switch ev.Kind {
		case scanner.EventBarcodeFound:
			s.resolveCode(ctx, ev.Code)
		case scanner.EventSearchTextUpdated:
			s.mu.Lock()
			s.results = s.ranker.Search(s.catalog, ev.Text)
			s.mu.Unlock()
		case scanner.EventSearchSubmitted:
			s.submitSearch(ev.Text)
		case scanner.EventFocusSearch:
			s.notify(LevelInfo, CodeFocusSearch, "")
		case scanner.EventScanRejected:
			s.log.Debug("scan rejected", "code", ev.Code, "reason", string(ev.Reason))
		}
	}
}

// resolveCode adds the product whose code matches exactly. On a miss the
// catalog is refreshed once, off the key loop, in case the product was created
// after Load; a second miss clears the search so the cashier can rescan.
func (s *Session) resolveCode(ctx context.Context, code string) {
	if product, ok := s.lookup(code); ok {
		s.addFromInput(product)
		return
	}
	s.lookups.Go(func() {
		if s.RefreshCatalog(ctx) == nil {
			if product, ok := s.lookup(code); ok {
				s.addFromInput(product)
				return
			}
		}
		s.missedLookup(code)
	})
}

// WaitLookups blocks until catalog refreshes started by unknown barcodes
// have settled.
func (s *Session) WaitLookups() {
	s.lookups.Wait()
}

func (s *Session) lookup(code string) (domain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	product, ok := s.byCode[code]
	return product, ok
}

// submitSearch handles Enter on typed text: an exact code, or a search with a
// single hit, goes straight into the cart.
func (s *Session) submitSearch(text string) {
	s.mu.Lock()
	product, ok := s.byCode[text]
	if !ok {
		s.results = s.ranker.Search(s.catalog, text)
		if len(s.results) == 1 {
			product, ok = s.results[0], true
		}
	}
	hits := len(s.results)
	s.mu.Unlock()

	switch {
	case ok:
		s.addFromInput(product)
	case hits == 0:
		s.missedLookup(text)
	}
}

func (s *Session) addFromInput(product domain.Product) {
	err := s.AddProduct(product, 1)
	switch {
	case err == nil:
		s.mu.Lock()
		s.classifier.ClearSearch()
		s.results = nil
		s.mu.Unlock()
	case errors.Is(err, ErrDuplicateAdd):
		s.log.Debug("duplicate add suppressed", "code", product.Code)
	default:
		s.log.Warn("add from input failed", "code", product.Code, "error", err)
	}
}

func (s *Session) missedLookup(code string) {
	s.mu.Lock()
	s.classifier.ClearSearch()
	s.results = nil
	s.mu.Unlock()
	s.log.Info("product not found", "code", code)
	s.notify(LevelWarning, CodeProductNotFound, fmt.Sprintf("product %q not found", code))
	s.notify(LevelInfo, CodeFocusSearch, "")
}

// Search ranks the catalog against query as if it had been typed into the
// search field.
func (s *Session) Search(query string) []domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classifier.SetSearchText(query)
	s.results = s.ranker.Search(s.catalog, query)
	return append([]domain.Product(nil), s.results...)
}

func (s *Session) Results() []domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Product(nil), s.results...)
}

// SelectResult adds the i-th current search result and clears the search.
func (s *Session) SelectResult(i int) error {
	s.mu.Lock()
	if i < 0 || i >= len(s.results) {
		s.mu.Unlock()
		return ErrResultNotFound
	}
	product := s.results[i]
	s.mu.Unlock()

	if err := s.AddProduct(product, 1); err != nil {
		return err
	}
	s.mu.Lock()
	s.classifier.ClearSearch()
	s.results = nil
	s.mu.Unlock()
	return nil
}
