package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/hotel-room-holds/internal/adapters/crdb"
	redisadapter "github.com/robertarktes/hotel-room-holds/internal/adapters/redis"
	"github.com/robertarktes/hotel-room-holds/internal/config"
	"github.com/robertarktes/hotel-room-holds/internal/inventory"
	"github.com/robertarktes/hotel-room-holds/internal/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(ctx, cfg, "hotel-expiry-worker")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger().WithField("component", "expiry-worker")

	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	// the sweep never reads the catalog
	svc := inventory.NewService(repo, redisadapter.NewCache(redisClient), nil, logger)
	worker := NewExpiryWorker(svc, logger)

	logger.WithField("interval", cfg.ExpirySweepInterval.String()).Info("expiry worker started")
	worker.Run(ctx, cfg.ExpirySweepInterval)
	logger.Info("expiry worker stopped")
}
