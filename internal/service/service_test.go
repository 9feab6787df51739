package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"kasirinaja/cashier/internal/cache"
	"kasirinaja/cashier/internal/domain"
	"kasirinaja/cashier/internal/observability"
	"kasirinaja/cashier/internal/store"
	"kasirinaja/cashier/internal/store/memory"
)

const (
	codeMie   = "8991001000017"
	codeTelur = "8991001000024"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	return New(repo, Options{Metrics: observability.NewMetrics()}), repo
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: domain.RoleCashier})
}

func validPayload(key string) domain.TransactionPayload {
	return domain.TransactionPayload{
		ProductCodes:   []string{codeMie, codeMie, codeTelur},
		Quantities:     []int{3, 1, 1},
		Units:          []string{"unit", "bulk", "unit"},
		UserID:         "cashier",
		Discount:       1000,
		AmountTendered: 100000,
		IdempotencyKey: key,
	}
}

func TestSubmitTransactionPricesOnServer(t *testing.T) {
	svc, repo := newTestService()

	receipt, err := svc.SubmitTransaction(cashierCtx(), validPayload("idem-price"))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	// 3 x 3500 + 1 x 39000 (bulk) + 1 x 26500
	if receipt.Subtotal != 76000 {
		t.Fatalf("expected subtotal 76000, got %d", receipt.Subtotal)
	}
	if receipt.Total != 75000 || receipt.ChangeGiven != 25000 {
		t.Fatalf("unexpected total/change: %d/%d", receipt.Total, receipt.ChangeGiven)
	}
	if receipt.Duplicate {
		t.Fatalf("first submit must not be a duplicate")
	}

	tx, err := repo.FindTransactionByID(context.Background(), receipt.TransactionID)
	if err != nil {
		t.Fatalf("stored transaction missing: %v", err)
	}
	if tx.CashierName != "Kasir Satu" {
		t.Fatalf("expected display name, got %q", tx.CashierName)
	}
	if tx.Lines[1].UnitLabel != "dus isi 12" || tx.Lines[1].UnitPriceApplied != 39000 {
		t.Fatalf("bulk line priced wrong: %+v", tx.Lines[1])
	}

	logs, err := repo.ListAuditLogs(context.Background(), 10)
	if err != nil || len(logs) != 1 || logs[0].Action != "transaction_create" {
		t.Fatalf("expected one audit entry, got %+v (err %v)", logs, err)
	}
}

func TestSubmitTransactionReplaysIdempotencyKey(t *testing.T) {
	svc, repo := newTestService()
	ctx := cashierCtx()

	first, err := svc.SubmitTransaction(ctx, validPayload("idem-replay"))
	if err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	products, _ := repo.GetProductsByCodes(ctx, []string{codeMie})
	stockAfterFirst := products[codeMie].Stock

	second, err := svc.SubmitTransaction(ctx, validPayload("idem-replay"))
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !second.Duplicate || second.TransactionID != first.TransactionID {
		t.Fatalf("expected duplicate of %s, got %+v", first.TransactionID, second)
	}

	products, _ = repo.GetProductsByCodes(ctx, []string{codeMie})
	if products[codeMie].Stock != stockAfterFirst {
		t.Fatalf("replay must not change stock")
	}
}

func TestSubmitTransactionRejectsBadPayloads(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()

	tests := []struct {
		name   string
		mutate func(p *domain.TransactionPayload)
		want   error
	}{
		{"misaligned", func(p *domain.TransactionPayload) { p.Quantities = p.Quantities[:2] }, store.ErrInvalidTransaction},
		{"zero quantity", func(p *domain.TransactionPayload) { p.Quantities[0] = 0 }, store.ErrInvalidTransaction},
		{"unknown unit", func(p *domain.TransactionPayload) { p.Units[0] = "crate" }, store.ErrInvalidTransaction},
		{"missing key", func(p *domain.TransactionPayload) { p.IdempotencyKey = "  " }, store.ErrInvalidTransaction},
		{"unknown product", func(p *domain.TransactionPayload) { p.ProductCodes[0] = "nope" }, store.ErrInvalidTransaction},
		{"discount above subtotal", func(p *domain.TransactionPayload) { p.Discount = 1_000_000 }, store.ErrInvalidTransaction},
		{"underpaid", func(p *domain.TransactionPayload) { p.AmountTendered = 100 }, ErrUnderpaid},
		{"other cashier", func(p *domain.TransactionPayload) { p.UserID = "someone" }, ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPayload("idem-bad-" + tt.name)
			tt.mutate(&p)
			_, err := svc.SubmitTransaction(ctx, p)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := svc.SubmitTransaction(context.Background(), validPayload("idem-anon")); !errors.Is(err, ErrNoActor) {
		t.Fatalf("expected ErrNoActor, got %v", err)
	}
}

func TestAdminMaySubmitForCashier(t *testing.T) {
	svc, _ := newTestService()
	ctx := WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})

	if _, err := svc.SubmitTransaction(ctx, validPayload("idem-admin")); err != nil {
		t.Fatalf("admin submit failed: %v", err)
	}
}

func TestCurrentUser(t *testing.T) {
	svc, _ := newTestService()

	user, err := svc.CurrentUser(cashierCtx())
	if err != nil {
		t.Fatalf("current user: %v", err)
	}
	if user.ID != "cashier" || user.Name != "Kasir Satu" || user.Role != domain.RoleCashier {
		t.Fatalf("unexpected user %+v", user)
	}

	if _, err := svc.CurrentUser(context.Background()); !errors.Is(err, ErrNoActor) {
		t.Fatalf("expected ErrNoActor, got %v", err)
	}
}

func TestListPromotionsReturnsActiveOnly(t *testing.T) {
	svc, _ := newTestService()
	rules, err := svc.ListPromotions(context.Background())
	if err != nil {
		t.Fatalf("list promotions: %v", err)
	}
	for _, rule := range rules {
		if !rule.Active {
			t.Fatalf("inactive rule %s returned", rule.ID)
		}
	}
}

func TestListProductsUsesAndInvalidatesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	redisCache := cache.NewRedisCatalogCache(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = redisCache.Close() })

	repo := memory.NewSeeded()
	svc := New(repo, Options{CatalogCache: redisCache, CatalogTTL: time.Minute})

	products, err := svc.ListProducts(context.Background())
	if err != nil || len(products) == 0 {
		t.Fatalf("list products: %v", err)
	}
	if !mr.Exists(cache.CatalogKey) {
		t.Fatalf("expected catalog to be cached")
	}

	if _, err := svc.SubmitTransaction(cashierCtx(), validPayload("idem-cache")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if mr.Exists(cache.CatalogKey) {
		t.Fatalf("expected submit to invalidate the cached catalog")
	}
}

func TestBuildReceipt(t *testing.T) {
	svc, _ := newTestService()
	receipt, err := svc.SubmitTransaction(cashierCtx(), validPayload("idem-receipt"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	hw, err := svc.BuildReceipt(cashierCtx(), receipt.TransactionID)
	if err != nil {
		t.Fatalf("build receipt: %v", err)
	}
	if hw.TransactionID != receipt.TransactionID || hw.EscposBase64 == "" || hw.PreviewText == "" {
		t.Fatalf("unexpected receipt %+v", hw)
	}

	other := WithActor(context.Background(), domain.Actor{Username: "rina", Role: domain.RoleCashier})
	if _, err := svc.BuildReceipt(other, receipt.TransactionID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.BuildReceipt(cashierCtx(), "tx-missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListAuditLogsRequiresAdmin(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.ListAuditLogs(cashierCtx(), 10); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	admin := WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
	if _, err := svc.ListAuditLogs(admin, 10); err != nil {
		t.Fatalf("admin list: %v", err)
	}
}
