package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"kasirinaja/cashier/internal/config"
	"kasirinaja/cashier/internal/httpapi"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewAppRejectsWeakSecret(t *testing.T) {
	_, err := newApp(context.Background(), config.Config{AuthSecret: "short"}, discardLogger())
	if err == nil {
		t.Fatalf("expected weak secret to be rejected")
	}
	if !errors.Is(err, httpapi.ErrWeakSecret) {
		t.Fatalf("expected ErrWeakSecret, got %v", err)
	}
}

func TestNewAppServesHealthWithMemoryStore(t *testing.T) {
	a, err := newApp(context.Background(), config.Config{AuthSecret: strongSecret, LoginRateLimit: 5}, discardLogger())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(func() { a.close(discardLogger()) })

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec := httptest.NewRecorder()
		a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestNewAppUsesRedisWhenReachable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Config{AuthSecret: strongSecret, RedisAddr: mr.Addr()}
	a, err := newApp(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	if len(a.closers) != 1 {
		t.Fatalf("expected redis closer to be registered, got %d closers", len(a.closers))
	}
	a.close(discardLogger())
}

func TestNewAppToleratesMissingRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	a, err := newApp(context.Background(), config.Config{AuthSecret: strongSecret, RedisAddr: addr}, discardLogger())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	if len(a.closers) != 0 {
		t.Fatalf("expected no closers without redis, got %d", len(a.closers))
	}
}
