package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"kedaipos/backend/internal/checkout"
	"kedaipos/backend/internal/config"
	"kedaipos/backend/internal/fulfillment"
	"kedaipos/backend/internal/httpapi"
	"kedaipos/backend/internal/inventory"
	"kedaipos/backend/internal/notify"
	"kedaipos/backend/internal/observability"
	"kedaipos/backend/internal/store"
	"kedaipos/backend/internal/store/memory"
	pgstore "kedaipos/backend/internal/store/postgres"
	"kedaipos/backend/internal/voucher"
)

func main() {
	migrate := flag.Bool("migrate", false, "apply pending database migrations before serving")
	flag.Parse()

	cfg := config.Load()
	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("invalid security configuration", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if *migrate {
			applied, err := pg.Migrate(ctx)
			if err != nil {
				logger.Fatal("apply migrations", zap.Error(err))
			}
			logger.Info("migrations applied", zap.Strings("versions", applied))
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded(logger)
		logger.Info("repository: in-memory")
	}

	notifier, closeNotifier, err := buildNotifier(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("invalid notification configuration", zap.Error(err))
	}
	if closeNotifier != nil {
		closers = append(closers, closeNotifier)
	}

	vouchers := voucher.NewValidator(nil)
	engine := checkout.NewEngine(repo, vouchers, checkout.Options{
		StrictStock:    cfg.StrictStock,
		MaterialPolicy: checkout.MaterialPolicy(cfg.MaterialPolicy),
	}, logger.Named("checkout"))
	machine := fulfillment.NewMachine(repo, notifier, logger.Named("fulfillment"))
	stock := inventory.NewEngine(repo, logger.Named("inventory"))
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)

	api := httpapi.New(httpapi.Deps{
		Checkout:  engine,
		Orders:    machine,
		Inventory: stock,
		Vouchers:  vouchers,
		Repo:      repo,
		Auth:      auth,
		Logger:    logger.Named("http"),
	}, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("POS backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}

// buildNotifier picks the customer notification backend. An unreachable
// Redis degrades to the log notifier instead of blocking startup.
func buildNotifier(ctx context.Context, cfg config.Config, logger *zap.Logger) (notify.Notifier, func() error, error) {
	switch cfg.NotifyBackend {
	case "", "log":
		logger.Info("notifications: log")
		return notify.NewLogNotifier(logger.Named("notify")), nil, nil
	case "none":
		logger.Info("notifications: disabled")
		return notify.Noop{}, nil, nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, nil, errors.New("NOTIFY_BACKEND=redis requires REDIS_ADDR")
		}
		queue := notify.NewRedisQueue(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.NotifyRedisKey)
		if err := queue.Ping(ctx); err != nil {
			_ = queue.Close()
			logger.Warn("redis unavailable, logging notifications instead", zap.Error(err))
			return notify.NewLogNotifier(logger.Named("notify")), nil, nil
		}
		logger.Info("notifications: redis", zap.String("key", cfg.NotifyRedisKey))
		return queue, queue.Close, nil
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			return nil, nil, errors.New("NOTIFY_BACKEND=kafka requires KAFKA_BROKERS")
		}
		publisher := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaNotifyTopic)
		logger.Info("notifications: kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaNotifyTopic))
		return publisher, publisher.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown NOTIFY_BACKEND %q", cfg.NotifyBackend)
	}
}
