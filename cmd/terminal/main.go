package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"kasirinaja/cashier/internal/cache"
	"kasirinaja/cashier/internal/client"
	"kasirinaja/cashier/internal/config"
	"kasirinaja/cashier/internal/logging"
	"kasirinaja/cashier/internal/money"
	"kasirinaja/cashier/internal/receipt"
	"kasirinaja/cashier/internal/scanner"
	"kasirinaja/cashier/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogFormat, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("terminal stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if cfg.APIUsername == "" || cfg.APIPassword == "" {
		return errors.New("API_USERNAME and API_PASSWORD must be set")
	}

	api, err := client.New(cfg.APIBaseURL, client.Options{Timeout: cfg.APITimeout, Logger: logger})
	if err != nil {
		return err
	}
	if _, err := api.Login(ctx, cfg.APIUsername, cfg.APIPassword); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	snapshot := cache.CatalogCache(cache.NoopCatalogCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisCatalogCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, offline catalog disabled", "error", err)
			_ = redisCache.Close()
		} else {
			defer redisCache.Close()
			snapshot = redisCache
		}
	}

	term := newTerminal(os.Stdout)

	sess, err := session.New(session.Dependencies{
		Catalog:    client.NewCachedCatalog(api, snapshot, 0, logger),
		Promotions: api,
		Identity:   api,
		Sink:       api,
		Printer:    receipt.NewPrinter(term.out, money.NewFormatter(cfg.Locale)),
		Notifier:   session.NotifierFunc(term.notify),
		Logger:     logger,
	}, session.Options{
		AddLockWindow:    cfg.AddLockWindow,
		MaxSearchResults: cfg.SearchMaxResults,
		Locale:           cfg.Locale,
		Scanner: scanner.Options{
			MinLength:    cfg.ScanMinLength,
			ScanTimeout:  cfg.ScanTimeout,
			Cooldown:     cfg.ScanCooldown,
			ReplayWindow: cfg.ScanReplayWindow,
		},
	})
	if err != nil {
		return err
	}
	defer sess.Close()
	term.sess = sess

	if err := sess.Load(ctx); err != nil {
		return err
	}
	if user := sess.User(); user != nil {
		term.printf("signed in as %s (%s)\n", user.Name, user.Role)
	}
	term.printf("scan a barcode or type :help\n")

	loop := scanner.NewLoop(sess, 256)
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go loop.Run(loopCtx)
	term.loop = loop

	lines := make(chan string)
	go func() {
		defer close(lines)
		in := bufio.NewScanner(os.Stdin)
		for in.Scan() {
			lines <- in.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := term.execute(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				term.printf("error: %v\n", err)
			}
		}
	}
}
