package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront-checkout/internal/backend"
	"storefront-checkout/internal/config"
	"storefront-checkout/internal/db"
	"storefront-checkout/internal/hostedpay"
	"storefront-checkout/internal/httpserver"
	"storefront-checkout/internal/repository/attempt"
	"storefront-checkout/internal/repository/snapshot"
	"storefront-checkout/internal/service/checkout"
	"storefront-checkout/internal/service/inventory"
	"storefront-checkout/internal/service/payment"
	"storefront-checkout/internal/service/session"
)

const sweepInterval = 10 * time.Minute

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	dbpool, attempts := openLedger(ctx, cfg, logger)
	if dbpool != nil {
		defer dbpool.Close()
	}

	snapshots := snapshot.NewMemory()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("connect redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		defer rdb.Close()
		snapshots = snapshot.NewRedis(rdb, cfg.SnapshotTTL)
	} else {
		logger.Warn("REDIS_ADDR not set, cart snapshots are kept in memory")
	}

	api := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout, logger.Named("backend"))
	provider := hostedpay.New(
		hostedpay.NewSnapClient(cfg.MidtransServerKey, cfg.MidtransProduction),
		cfg.MidtransServerKey,
		cfg.PaymentWindow,
		logger.Named("hostedpay"),
	)
	payments := payment.New(provider, api, logger.Named("payment"))

	builder := session.Builder{
		CartAPI:   api,
		Catalog:   api,
		Snapshots: snapshots,
		Stock:     inventory.New(api, logger.Named("inventory")),
		Orders:    api,
		Payments:  payments,
		Attempts:  attempts,
		Pricing: checkout.Pricing{
			TaxRate:               decimal.NewFromFloat(cfg.TaxRate),
			DeliveryFee:           decimal.NewFromFloat(cfg.DeliveryFee),
			FreeDeliveryThreshold: decimal.NewFromFloat(cfg.FreeDeliveryThreshold),
		},
		CheckoutTimeout: cfg.PaymentWindow + cfg.BackendTimeout*4,
		Logger:          logger.Named("checkout"),
	}
	registry := session.NewRegistry(builder.Build, cfg.SnapshotTTL, logger.Named("session"))

	srv, err := httpserver.New(cfg.HTTPAddr, logger.Named("http"), dbpool, httpserver.Deps{
		Sessions:       registry,
		Payments:       provider,
		Pricing:        builder.Pricing,
		AllowedOrigins: cfg.AllowedOrigins,
		Release:        cfg.Environment == "production",
	})
	if err != nil {
		logger.Fatal("init server", zap.Error(err))
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sweep(sweepCtx, registry, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	} else {
		logger.Info("server stopped")
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.Environment == "production" {
		zcfg = zap.NewProductionConfig()
	}
	if level, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		zcfg.Level = level
	}
	return zcfg.Build()
}

// openLedger connects the checkout attempt ledger. Outside production a
// missing DB_DSN or an unreachable database falls back to an in-memory ledger.
func openLedger(ctx context.Context, cfg config.Config, logger *zap.Logger) (*pgxpool.Pool, attempt.Repository) {
	if cfg.DBConnString == "" {
		if cfg.Environment == "production" {
			logger.Fatal("DB_DSN is required in production")
		}
		logger.Warn("DB_DSN not set, checkout attempts are kept in memory")
		return nil, attempt.NewMemory()
	}
	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		if cfg.Environment == "production" {
			logger.Fatal("connect to db", zap.Error(err))
		}
		logger.Warn("db unavailable, checkout attempts are kept in memory", zap.Error(err))
		return nil, attempt.NewMemory()
	}
	return pool, attempt.NewPostgres(pool)
}

func sweep(ctx context.Context, registry *session.Registry, logger *zap.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := registry.Sweep(); n > 0 {
				logger.Info("expired sessions swept", zap.Int("count", n), zap.Int("live", registry.Len()))
			}
		}
	}
}
