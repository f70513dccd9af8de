package main

import (
	"context"
	"flag"
	"log"

	"go.uber.org/zap"

	"storefront-checkout/internal/config"
	"storefront-checkout/internal/db"
	"storefront-checkout/internal/migrate"
)

func main() {
	down := flag.Int("down", 0, "roll back this many migrations instead of applying")
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatal("connect db", zap.Error(err))
	}
	defer pool.Close()

	if *down > 0 {
		if err := migrate.Rollback(ctx, pool, *down); err != nil {
			logger.Fatal("roll back migrations", zap.Error(err), zap.Int("steps", *down))
		}
		logger.Info("migrations rolled back", zap.Int("steps", *down))
		return
	}

	if err := migrate.Apply(ctx, pool); err != nil {
		logger.Fatal("apply migrations", zap.Error(err))
	}
	logger.Info("migrations applied")
}
