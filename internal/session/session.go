// Package session holds the state of one cashier terminal: the scan/type
// classifier, the catalog and promotions it works against, the cart, and the
// payment form. Collaborators are injected through Dependencies.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"kasirinaja/cashier/internal/domain"
	"kasirinaja/cashier/internal/money"
	"kasirinaja/cashier/internal/scanner"
	"kasirinaja/cashier/internal/search"
)

var (
	ErrMissingDependency   = errors.New("session: missing dependency")
	ErrInvalidQuantity     = errors.New("quantity must be at least 1")
	ErrInvalidProduct      = errors.New("product code is required")
	ErrInvalidUnit         = errors.New("unit must be unit or bulk")
	ErrLineNotFound        = errors.New("product is not in the cart")
	ErrResultNotFound      = errors.New("search result not found")
	ErrDuplicateAdd        = errors.New("product was just added")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrNoUser              = errors.New("no cashier is signed in")
	ErrInsufficientPayment = errors.New("amount tendered is less than the amount due")
	ErrSubmitInProgress    = errors.New("a transaction is being submitted")
	ErrSubmitFailed        = errors.New("transaction could not be saved")
)

type CatalogProvider interface {
	FetchProducts(ctx context.Context) ([]domain.Product, error)
}

type PromotionProvider interface {
	FetchPromotions(ctx context.Context) ([]domain.PromotionRule, error)
}

type IdentityProvider interface {
	FetchCurrentUser(ctx context.Context) (*domain.User, error)
}

type TransactionSink interface {
	SubmitTransaction(ctx context.Context, payload domain.TransactionPayload) (domain.TransactionReceipt, error)
}

type ReceiptPrinter interface {
	Print(ctx context.Context, tx domain.Transaction) error
}

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification codes.
const (
	CodeProductNotFound       = "product_not_found"
	CodeFocusSearch           = "focus_search"
	CodeCatalogUnavailable    = "catalog_unavailable"
	CodePromotionsUnavailable = "promotions_unavailable"
	CodeUserUnavailable       = "user_unavailable"
	CodeSubmitFailed          = "submit_failed"
	CodeSubmitSucceeded       = "submit_succeeded"
	CodePrintFailed           = "print_failed"
)

type Notification struct {
	Level   Level
	Code    string
	Message string
}

type Notifier interface {
	Notify(n Notification)
}

type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

type Dependencies struct {
	Catalog    CatalogProvider
	Promotions PromotionProvider
	Identity   IdentityProvider
	Sink       TransactionSink
	Printer    ReceiptPrinter
	Notifier   Notifier
	Logger     *slog.Logger
	Now        func() time.Time
}

type Options struct {
	AddLockWindow    time.Duration
	MaxSearchResults int
	Locale           string
	Scanner          scanner.Options
}

const DefaultAddLockWindow = 500 * time.Millisecond

type cartEntry struct {
	line    domain.CartLine
	product domain.Product
}

// Session is safe for concurrent use. Its mutex is never held across a
// collaborator call, so a slow submit does not stall key handling.
type Session struct {
	mu sync.Mutex

	catalogSrc CatalogProvider
	promoSrc   PromotionProvider
	identity   IdentityProvider
	sink       TransactionSink
	printer    ReceiptPrinter
	notifier   Notifier
	log        *slog.Logger
	now        func() time.Time

	addLockWindow time.Duration
	classifier    *scanner.Classifier
	ranker        *search.Ranker
	formatter     *money.Formatter
	refresh       singleflight.Group
	lookups       sync.WaitGroup

	catalog []domain.Product
	byCode  map[string]domain.Product
	rules   []domain.PromotionRule
	user    *domain.User

	cart     []cartEntry
	addLocks map[string]time.Time
	results  []domain.Product

	discount        int64
	discountText    string
	tendered        int64
	tenderedEntered bool

	submitting     bool
	idempotencyKey string
	printable      *domain.Transaction
}

func New(deps Dependencies, opts Options) (*Session, error) {
	if deps.Catalog == nil || deps.Promotions == nil || deps.Identity == nil || deps.Sink == nil {
		return nil, fmt.Errorf("%w: catalog, promotions, identity and sink are required", ErrMissingDependency)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	locale := opts.Locale
	if locale == "" {
		locale = money.DefaultLocale
	}
	window := opts.AddLockWindow
	if window <= 0 {
		window = DefaultAddLockWindow
	}

	return &Session{
		catalogSrc:    deps.Catalog,
		promoSrc:      deps.Promotions,
		identity:      deps.Identity,
		sink:          deps.Sink,
		printer:       deps.Printer,
		notifier:      deps.Notifier,
		log:           logger.With("component", "session"),
		now:           now,
		addLockWindow: window,
		classifier:    scanner.NewClassifier(opts.Scanner),
		ranker:        search.NewRanker(opts.MaxSearchResults, locale),
		formatter:     money.NewFormatter(locale),
		byCode:        map[string]domain.Product{},
		addLocks:      map[string]time.Time{},
	}, nil
}

// Load fetches catalog, promotions and the signed-in user concurrently. A
// failing collaborator leaves its part empty and the session usable; only
// cancellation of ctx is returned as an error.
func (s *Session) Load(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		products, err := s.catalogSrc.FetchProducts(gctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("catalog fetch failed, continuing with empty catalog", "error", err)
			s.notify(LevelWarning, CodeCatalogUnavailable, "product catalog is unavailable")
			products = nil
		}
		s.mu.Lock()
		s.setCatalogLocked(products)
		s.mu.Unlock()
		return nil
	})

	g.Go(func() error {
		rules, err := s.promoSrc.FetchPromotions(gctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("promotion fetch failed, continuing without discounts", "error", err)
			s.notify(LevelWarning, CodePromotionsUnavailable, "promotions are unavailable")
			rules = nil
		}
		s.mu.Lock()
		s.setRulesLocked(rules)
		s.mu.Unlock()
		return nil
	})

	g.Go(func() error {
		user, err := s.identity.FetchCurrentUser(gctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("current user fetch failed", "error", err)
			s.notify(LevelWarning, CodeUserUnavailable, "cashier identity is unavailable")
			user = nil
		}
		s.mu.Lock()
		s.user = user
		s.mu.Unlock()
		return nil
	})

	return g.Wait()
}

// RefreshCatalog refetches products. Concurrent refreshes share one fetch. On
// failure the current catalog is kept.
func (s *Session) RefreshCatalog(ctx context.Context) error {
	_, err, _ := s.refresh.Do("catalog", func() (any, error) {
		products, err := s.catalogSrc.FetchProducts(ctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.setCatalogLocked(products)
		s.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		s.log.Warn("catalog refresh failed, keeping previous catalog", "error", err)
		return fmt.Errorf("refresh catalog: %w", err)
	}
	return nil
}

// SetPromotions replaces the rule set and recomputes the discount.
func (s *Session) SetPromotions(rules []domain.PromotionRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setRulesLocked(rules)
}

func (s *Session) setCatalogLocked(products []domain.Product) {
	s.catalog = append([]domain.Product(nil), products...)
	s.byCode = make(map[string]domain.Product, len(products))
	for _, p := range products {
		s.byCode[p.Code] = p
	}
	if text := s.classifier.SearchText(); text != "" {
		s.results = s.ranker.Search(s.catalog, text)
	}
}

func (s *Session) setRulesLocked(rules []domain.PromotionRule) {
	s.rules = append([]domain.PromotionRule(nil), rules...)
	s.recomputeDiscountLocked()
}

func (s *Session) User() *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Close cancels classifier timers and re-entrancy locks.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classifier.Reset()
	clear(s.addLocks)
}

func (s *Session) notify(level Level, code string, message string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(Notification{Level: level, Code: code, Message: message})
}
