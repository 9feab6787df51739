package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kasirinaja/cashier/internal/cache"
	"kasirinaja/cashier/internal/config"
	"kasirinaja/cashier/internal/httpapi"
	"kasirinaja/cashier/internal/logging"
	"kasirinaja/cashier/internal/observability"
	"kasirinaja/cashier/internal/service"
	"kasirinaja/cashier/internal/store"
	"kasirinaja/cashier/internal/store/memory"
	pgstore "kasirinaja/cashier/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

type app struct {
	handler http.Handler
	closers []func() error
}

func (a *app) close(logger *slog.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("close error", "error", err)
		}
	}
}

// newApp wires storage, cache, auth and the HTTP API. A configured database
// that cannot be reached is fatal; an unreachable Redis only disables the
// catalog cache.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	if len(cfg.AuthSecret) < httpapi.MinSecretLength {
		return nil, fmt.Errorf("AUTH_SECRET: %w", httpapi.ErrWeakSecret)
	}

	a := &app{}
	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var repo store.Repository
	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(initCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		if err := pgstore.Migrate(pg.DB()); err != nil {
			a.close(logger)
			return nil, err
		}
		repo = pg
		logger.Info("repository ready", "kind", "postgres")
	} else {
		repo = memory.NewSeeded()
		logger.Info("repository ready", "kind", "memory")
	}

	catalogCache := cache.CatalogCache(cache.NoopCatalogCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisCatalogCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(initCtx); err != nil {
			logger.Warn("redis unavailable, catalog cache disabled", "addr", cfg.RedisAddr, "error", err)
			_ = redisCache.Close()
		} else {
			catalogCache = redisCache
			a.closers = append(a.closers, redisCache.Close)
			logger.Info("catalog cache ready", "kind", "redis")
		}
	}

	metrics := observability.NewMetrics()
	svc := service.New(repo, service.Options{
		CatalogCache: catalogCache,
		CatalogTTL:   cfg.CatalogCacheTTL,
		Metrics:      metrics,
		Logger:       logger,
		Locale:       cfg.Locale,
	})
	auth, err := httpapi.NewAuthManager(initCtx, cfg.AuthSecret, cfg.AccessTokenTTL, repo)
	if err != nil {
		a.close(logger)
		return nil, err
	}
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		LoginLimit:    cfg.LoginRateLimit,
		Metrics:       metrics,
		Logger:        logger,
		Production:    cfg.IsProduction(),
	})
	a.handler = api.Handler()
	return a, nil
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("cashier backend listening", "addr", cfg.Address(), "env", cfg.AppEnv)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
