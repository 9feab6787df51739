package memory

import (
	"cmp"
	"context"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"kasirinaja/cashier/internal/domain"
	"kasirinaja/cashier/internal/store"
	"kasirinaja/cashier/internal/xid"
)

type Store struct {
	mu                 sync.RWMutex
	products           map[string]domain.Product
	promotions         map[string]domain.PromotionRule
	transactionsByID   map[string]*domain.Transaction
	transactionsByIdem map[string]*domain.Transaction
	auditLogs          []domain.AuditLog
	usersByUsername    map[string]domain.UserAccount
}

// New returns an empty store.
func New() *Store {
	return &Store{
		products:           make(map[string]domain.Product),
		promotions:         make(map[string]domain.PromotionRule),
		transactionsByID:   make(map[string]*domain.Transaction),
		transactionsByIdem: make(map[string]*domain.Transaction),
		auditLogs:          make([]domain.AuditLog, 0, 128),
		usersByUsername:    make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD, with dev defaults when unset.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		slog.Warn("memory store is using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username    string
		displayName string
		password    string
		role        string
	}{
		{"admin", "Admin Toko", adminPwd, domain.RoleAdmin},
		{"cashier", "Kasir Satu", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			panic("memory store: hash seed password: " + err.Error())
		}
		users[u.username] = domain.UserAccount{
			Username:    u.username,
			DisplayName: u.displayName,
			Password:    string(hash),
			Role:        u.role,
			Active:      true,
			CreatedAt:   now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store holding a small demo catalog, promotions and the
// demo accounts.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()
	s.SeedCatalog(DemoProducts(), DemoPromotions())
	return s
}

func DemoProducts() []domain.Product {
	return []domain.Product{
		{Code: "8991001000017", Name: "Mie Goreng Instan", UnitPrice: 3500, BulkPrice: 39000, BulkQuantityLabel: "dus isi 12", Stock: 240},
		{Code: "8991001000024", Name: "Telur Ayam 10 Butir", UnitPrice: 26500, Stock: 60},
		{Code: "8991001000031", Name: "Susu UHT Coklat 1L", UnitPrice: 18900, BulkPrice: 108000, BulkQuantityLabel: "karton isi 6", Stock: 48},
		{Code: "8991001000048", Name: "Roti Tawar", UnitPrice: 17800, Stock: 30},
		{Code: "8991001000055", Name: "Kopi Sachet", UnitPrice: 2600, BulkPrice: 24000, BulkQuantityLabel: "renceng isi 10", Stock: 300},
		{Code: "8991001000062", Name: "Gula Pasir 1kg", UnitPrice: 17400, Stock: 80},
		{Code: "8991001000079", Name: "Teh Celup", UnitPrice: 9800, Stock: 90},
		{Code: "8991001000086", Name: "Air Mineral 600ml", UnitPrice: 3900, BulkPrice: 42000, BulkQuantityLabel: "dus isi 24", Stock: 480},
		{Code: "8991001000093", Name: "Keripik Singkong", UnitPrice: 12800, Stock: 75},
		{Code: "8991001000109", Name: "Coklat Batang", UnitPrice: 8600, Stock: 75},
		{Code: "8991001000116", Name: "Sabun Mandi", UnitPrice: 7400, Stock: 120},
		{Code: "8991001000123", Name: "Shampoo Sachet", UnitPrice: 3200, BulkPrice: 30000, BulkQuantityLabel: "renceng isi 12", Stock: 360},
	}
}

func DemoPromotions() []domain.PromotionRule {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return []domain.PromotionRule{
		{ID: "promo-mie-5", ProductCode: "8991001000017", MinQuantity: 5, DiscountAmount: 1000, Active: true, CreatedAt: created},
		{ID: "promo-snack-keripik", ProductCode: "8991001000093", PromoCategory: "snack", MinQuantity: 3, DiscountAmount: 2500, Active: true, CreatedAt: created},
		{ID: "promo-snack-coklat", ProductCode: "8991001000109", PromoCategory: "snack", MinQuantity: 3, DiscountAmount: 2500, Active: true, CreatedAt: created},
		{ID: "promo-air-old", ProductCode: "8991001000086", MinQuantity: 2, DiscountAmount: 300, Active: false, CreatedAt: created},
	}
}

// SeedCatalog replaces products and promotions.
func (s *Store) SeedCatalog(products []domain.Product, promotions []domain.PromotionRule) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.products = make(map[string]domain.Product, len(products))
	for _, p := range products {
		s.products[p.Code] = p
	}
	s.promotions = make(map[string]domain.PromotionRule, len(promotions))
	for _, rule := range promotions {
		if rule.ID == "" {
			rule.ID = xid.New("promo")
		}
		s.promotions[rule.ID] = rule
	}
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.Code, b.Code)
	})
	return products, nil
}

func (s *Store) GetProductsByCodes(_ context.Context, codes []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(codes))
	for _, code := range codes {
		if p, ok := s.products[code]; ok {
			result[code] = p
		}
	}
	return result, nil
}

func (s *Store) ListPromotions(_ context.Context, activeOnly bool) ([]domain.PromotionRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := make([]domain.PromotionRule, 0, len(s.promotions))
	for _, rule := range s.promotions {
		if activeOnly && !rule.Active {
			continue
		}
		rules = append(rules, rule)
	}
	slices.SortFunc(rules, func(a, b domain.PromotionRule) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return rules, nil
}

func (s *Store) FindTransactionByIdempotency(_ context.Context, key string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByIdem[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) FindTransactionByID(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) CreateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.IdempotencyKey == "" {
		return nil, store.ErrInvalidTransaction
	}
	if existing, ok := s.transactionsByIdem[tx.IdempotencyKey]; ok {
		return cloneTransaction(existing), nil
	}
	if len(tx.Lines) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	for _, line := range tx.Lines {
		if line.Quantity < 1 {
			return nil, store.ErrInvalidTransaction
		}
		if _, ok := s.products[line.ProductCode]; !ok {
			return nil, store.ErrInvalidTransaction
		}
	}

	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	// Stock is informational: it tracks sales but never blocks one.
	for _, line := range tx.Lines {
		p := s.products[line.ProductCode]
		p.Stock = max(p.Stock-line.Quantity, 0)
		s.products[line.ProductCode] = p
	}

	txCopy := cloneTransaction(&tx)
	s.transactionsByID[tx.ID] = txCopy
	s.transactionsByIdem[tx.IdempotencyKey] = txCopy
	return cloneTransaction(txCopy), nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

// ListAuditLogs returns the newest entries first.
func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 || limit > len(s.auditLogs) {
		limit = len(s.auditLogs)
	}
	result := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.auditLogs[i])
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmp.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneTransaction(src *domain.Transaction) *domain.Transaction {
	if src == nil {
		return nil
	}
	dup := *src
	dup.Lines = slices.Clone(src.Lines)
	return &dup
}
