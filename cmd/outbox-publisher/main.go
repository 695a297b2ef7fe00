package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/hotel-room-holds/internal/adapters/crdb"
	"github.com/robertarktes/hotel-room-holds/internal/adapters/rabbit"
	"github.com/robertarktes/hotel-room-holds/internal/config"
	"github.com/robertarktes/hotel-room-holds/internal/observability"
	"github.com/robertarktes/hotel-room-holds/internal/outbox"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(ctx, cfg, "hotel-outbox-publisher")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger().WithField("component", "outbox-publisher")

	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate crdb: %v", err)
	}

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	broker, err := rabbit.NewPublisher(conn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}
	defer broker.Close()

	relay := outbox.NewPublisher(repo, broker, logger, cfg.OutboxPollInterval)

	// drain whatever piled up while the relay was down before the first tick
	if n, err := relay.Flush(ctx); err != nil {
		logger.WithError(err).Warn("initial outbox flush failed")
	} else if n > 0 {
		logger.WithField("published", n).Info("published pending events")
	}

	logger.WithField("interval", cfg.OutboxPollInterval.String()).Info("outbox publisher started")
	relay.Run(ctx)
	logger.Info("outbox publisher stopped")
}
