package store

import (
	"context"
	"errors"

	"kasirinaja/cashier/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrConflict           = errors.New("already exists")
)

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductsByCodes(ctx context.Context, codes []string) (map[string]domain.Product, error)
	ListPromotions(ctx context.Context, activeOnly bool) ([]domain.PromotionRule, error)
	FindTransactionByIdempotency(ctx context.Context, key string) (*domain.Transaction, error)
	FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error)
	// CreateTransaction persists a priced transaction and lowers stock. A key
	// that was already used returns the stored transaction unchanged.
	CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
