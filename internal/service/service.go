package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"kasirinaja/cashier/internal/cache"
	"kasirinaja/cashier/internal/domain"
	"kasirinaja/cashier/internal/money"
	"kasirinaja/cashier/internal/observability"
	"kasirinaja/cashier/internal/receipt"
	"kasirinaja/cashier/internal/store"
	"kasirinaja/cashier/internal/xid"
)

var (
	ErrForbidden = errors.New("forbidden")
	ErrNoActor   = errors.New("missing actor")
	ErrUnderpaid = errors.New("amount tendered below total")
)

const DefaultCatalogTTL = 30 * time.Second

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	CatalogCache cache.CatalogCache
	CatalogTTL   time.Duration
	Metrics      *observability.Metrics
	Logger       *slog.Logger
	Locale       string
	Now          func() time.Time
}

type Service struct {
	repo       store.Repository
	catalog    cache.CatalogCache
	catalogTTL time.Duration
	metrics    *observability.Metrics
	log        *slog.Logger
	formatter  *money.Formatter
	validate   *validator.Validate
	now        func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.CatalogCache == nil {
		opts.CatalogCache = cache.NoopCatalogCache{}
	}
	if opts.CatalogTTL <= 0 {
		opts.CatalogTTL = DefaultCatalogTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Locale == "" {
		opts.Locale = money.DefaultLocale
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:       repo,
		catalog:    opts.CatalogCache,
		catalogTTL: opts.CatalogTTL,
		metrics:    opts.Metrics,
		log:        opts.Logger,
		formatter:  money.NewFormatter(opts.Locale),
		validate:   validator.New(),
		now:        opts.Now,
	}
}

// ListProducts serves the catalog from cache when possible. Cache errors are
// logged and fall through to the repository.
func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products, ok, err := s.catalog.Get(ctx, cache.CatalogKey)
	if err != nil {
		s.log.Warn("catalog cache read failed", "error", err)
	}
	if ok {
		s.metrics.RecordCatalogCache(true)
		return products, nil
	}
	s.metrics.RecordCatalogCache(false)

	products, err = s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.catalog.Set(ctx, cache.CatalogKey, products, s.catalogTTL); err != nil {
		s.log.Warn("catalog cache write failed", "error", err)
	}
	return products, nil
}

func (s *Service) ListPromotions(ctx context.Context) ([]domain.PromotionRule, error) {
	return s.repo.ListPromotions(ctx, true)
}

// CurrentUser resolves the request actor into the user a terminal signs
// transactions as.
func (s *Service) CurrentUser(ctx context.Context) (domain.User, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.User{}, ErrNoActor
	}
	return domain.User{
		ID:   actor.Username,
		Name: s.displayName(ctx, actor.Username),
		Role: actor.Role,
	}, nil
}

// SubmitTransaction prices the payload against the stored catalog and
// persists it. A reused idempotency key returns the stored receipt marked as
// a duplicate without touching stock again.
func (s *Service) SubmitTransaction(ctx context.Context, payload domain.TransactionPayload) (domain.TransactionReceipt, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.TransactionReceipt{}, ErrNoActor
	}

	payload.IdempotencyKey = strings.TrimSpace(payload.IdempotencyKey)
	payload.UserID = strings.ToLower(strings.TrimSpace(payload.UserID))
	if err := s.validatePayload(payload); err != nil {
		s.metrics.RecordTransaction(observability.OutcomeRejected, 0, 0)
		return domain.TransactionReceipt{}, err
	}
	if payload.UserID != actor.Username && actor.Role != domain.RoleAdmin {
		s.metrics.RecordTransaction(observability.OutcomeRejected, 0, 0)
		return domain.TransactionReceipt{}, fmt.Errorf("%w: cannot submit for another cashier", ErrForbidden)
	}

	if existing, err := s.repo.FindTransactionByIdempotency(ctx, payload.IdempotencyKey); err == nil {
		s.metrics.RecordTransaction(observability.OutcomeDuplicate, existing.Total, existing.Discount)
		return toReceipt(existing, true), nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.TransactionReceipt{}, err
	}

	products, err := s.repo.GetProductsByCodes(ctx, payload.ProductCodes)
	if err != nil {
		return domain.TransactionReceipt{}, err
	}

	lines := make([]domain.TransactionLine, 0, len(payload.ProductCodes))
	subtotal := int64(0)
	for i, code := range payload.ProductCodes {
		product, exists := products[code]
		if !exists {
			s.metrics.RecordTransaction(observability.OutcomeRejected, 0, 0)
			return domain.TransactionReceipt{}, fmt.Errorf("%w: product %s unavailable", store.ErrInvalidTransaction, code)
		}
		unit, _ := domain.ParseUnit(payload.Units[i])
		cartLine := domain.CartLine{ProductCode: code, Quantity: payload.Quantities[i], SelectedUnit: unit}
		line := domain.TransactionLine{
			ProductCode:      code,
			Name:             product.Name,
			Quantity:         cartLine.Quantity,
			UnitPriceApplied: money.EffectivePrice(cartLine, product),
			UnitLabel:        money.UnitLabel(cartLine, product),
			Unit:             unit,
		}
		lines = append(lines, line)
		subtotal += money.LineTotal(cartLine, product)
	}

	if payload.Discount > subtotal {
		s.metrics.RecordTransaction(observability.OutcomeRejected, 0, 0)
		return domain.TransactionReceipt{}, fmt.Errorf("%w: discount exceeds subtotal", store.ErrInvalidTransaction)
	}
	total := subtotal - payload.Discount
	if payload.AmountTendered < total {
		s.metrics.RecordTransaction(observability.OutcomeRejected, 0, 0)
		return domain.TransactionReceipt{}, fmt.Errorf("%w: short by Rp %s", ErrUnderpaid, s.formatter.Format(total-payload.AmountTendered))
	}

	tx := domain.Transaction{
		ID:             xid.New("tx"),
		IdempotencyKey: payload.IdempotencyKey,
		CashierID:      payload.UserID,
		CashierName:    s.displayName(ctx, payload.UserID),
		Lines:          lines,
		Subtotal:       subtotal,
		Discount:       payload.Discount,
		Total:          total,
		AmountTendered: payload.AmountTendered,
		ChangeGiven:    payload.AmountTendered - total,
		CreatedAt:      s.now().UTC(),
	}

	created, err := s.repo.CreateTransaction(ctx, tx)
	if err != nil {
		s.metrics.RecordTransaction(observability.OutcomeFailed, 0, 0)
		return domain.TransactionReceipt{}, err
	}
	if created.ID != tx.ID {
		// Lost a race with a concurrent submit of the same key.
		s.metrics.RecordTransaction(observability.OutcomeDuplicate, created.Total, created.Discount)
		return toReceipt(created, true), nil
	}

	if err := s.catalog.Delete(ctx, cache.CatalogKey); err != nil {
		s.log.Warn("catalog cache invalidation failed", "error", err)
	}
	s.metrics.RecordTransaction(observability.OutcomeCreated, created.Total, created.Discount)
	s.logAudit(ctx, "transaction_create", "transaction", created.ID,
		fmt.Sprintf("total=%d,discount=%d,lines=%d,cashier=%s", created.Total, created.Discount, len(created.Lines), created.CashierID))

	return toReceipt(created, false), nil
}

// BuildReceipt renders a stored transaction for a thermal printer. Cashiers
// may only print their own sales.
func (s *Service) BuildReceipt(ctx context.Context, transactionID string) (domain.HardwareReceipt, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return domain.HardwareReceipt{}, store.ErrInvalidTransaction
	}
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.HardwareReceipt{}, ErrNoActor
	}

	tx, err := s.repo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return domain.HardwareReceipt{}, err
	}
	if actor.Role != domain.RoleAdmin && tx.CashierID != actor.Username {
		return domain.HardwareReceipt{}, ErrForbidden
	}

	s.logAudit(ctx, "receipt_print", "transaction", tx.ID, "")
	return receipt.Render(*tx, s.formatter).Hardware(), nil
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return nil, ErrForbidden
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

// Ready reports whether the repository answers.
func (s *Service) Ready(ctx context.Context) error {
	_, err := s.repo.ListPromotions(ctx, true)
	return err
}

func (s *Service) validatePayload(payload domain.TransactionPayload) error {
	if err := s.validate.Struct(payload); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("%w: %s failed %s", store.ErrInvalidTransaction, strings.ToLower(fe.Field()), fe.Tag())
		}
		return fmt.Errorf("%w: %v", store.ErrInvalidTransaction, err)
	}
	if len(payload.ProductCodes) != len(payload.Quantities) || len(payload.ProductCodes) != len(payload.Units) {
		return fmt.Errorf("%w: product_codes, quantities and units must align", store.ErrInvalidTransaction)
	}
	return nil
}

func (s *Service) displayName(ctx context.Context, username string) string {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		s.log.Warn("user lookup failed", "username", username, "error", err)
		return username
	}
	for _, user := range users {
		if user.Username == username && user.DisplayName != "" {
			return user.DisplayName
		}
	}
	return username
}

func toReceipt(tx *domain.Transaction, duplicate bool) domain.TransactionReceipt {
	return domain.TransactionReceipt{
		TransactionID: tx.ID,
		Subtotal:      tx.Subtotal,
		Discount:      tx.Discount,
		Total:         tx.Total,
		ChangeGiven:   tx.ChangeGiven,
		Duplicate:     duplicate,
		CreatedAt:     tx.CreatedAt,
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		s.log.Warn("failed to write audit log", "action", action, "entity", entityType+"/"+entityID, "error", err)
	}
}
