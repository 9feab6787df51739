package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"kasirinaja/cashier/internal/domain"
)

const testSecret = "test-secret-key-with-32-characters!!"

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func legacyAdminStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func newManager(t *testing.T, store UserStore) *AuthManager {
	t.Helper()
	manager, err := NewAuthManager(context.Background(), testSecret, time.Hour, store)
	if err != nil {
		t.Fatalf("new auth manager: %v", err)
	}
	return manager
}

func TestNewAuthManagerRejectsWeakSecret(t *testing.T) {
	for _, secret := range []string{"", "dev-change-me", strings.Repeat("x", MinSecretLength-1)} {
		if _, err := NewAuthManager(context.Background(), secret, time.Hour, nil); !errors.Is(err, ErrWeakSecret) {
			t.Fatalf("secret %q: expected ErrWeakSecret, got %v", secret, err)
		}
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := legacyAdminStore()
	manager := newManager(t, store)

	_, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	manager := newManager(t, legacyAdminStore())
	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: " Admin ", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Role != domain.RoleAdmin {
		t.Fatalf("unexpected actor %+v", actor)
	}

	other, err := NewAuthManager(context.Background(), strings.Repeat("z", MinSecretLength), time.Hour, nil)
	if err != nil {
		t.Fatalf("new auth manager: %v", err)
	}
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestLoginRejectsInactiveAndWrongPassword(t *testing.T) {
	store := legacyAdminStore()
	store.users["idle"] = domain.UserAccount{Username: "idle", Password: "idle1234", Role: domain.RoleCashier}
	manager := newManager(t, store)

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "nope"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "idle", Password: "idle1234"}); !errors.Is(err, ErrInactiveAccount) {
		t.Fatalf("expected ErrInactiveAccount, got %v", err)
	}
}

func TestCreateCashierStoresPasswordHash(t *testing.T) {
	store := legacyAdminStore()
	manager := newManager(t, store)

	cashier, err := manager.CreateCashier(context.Background(), domain.CashierCreateRequest{
		Username:    "kasirbaru",
		DisplayName: "Kasir Baru",
		Password:    "pass1234",
	})
	if err != nil {
		t.Fatalf("create cashier failed: %v", err)
	}
	if cashier.Username != "kasirbaru" || cashier.DisplayName != "Kasir Baru" {
		t.Fatalf("unexpected cashier %+v", cashier)
	}

	saved := store.users["kasirbaru"]
	if saved.Password == "pass1234" || !strings.HasPrefix(saved.Password, "$2") {
		t.Fatalf("expected bcrypt hash, got %s", saved.Password)
	}

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "kasirbaru", Password: "pass1234"}); err != nil {
		t.Fatalf("login with hashed cashier failed: %v", err)
	}

	if _, err := manager.CreateCashier(context.Background(), domain.CashierCreateRequest{Username: "kasirbaru", Password: "pass1234"}); err == nil {
		t.Fatalf("expected duplicate username to fail")
	}

	cashiers := manager.ListCashiers(context.Background())
	if len(cashiers) != 1 || cashiers[0].Username != "kasirbaru" {
		t.Fatalf("expected only the new cashier, got %+v", cashiers)
	}
}
