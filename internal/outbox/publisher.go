// Package outbox relays committed outbox records to the events exchange.
package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/hotel-room-holds/internal/adapters/crdb"
	"github.com/robertarktes/hotel-room-holds/internal/observability"
)

type Store interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	ClaimOutbox(ctx context.Context, tx pgx.Tx, limit int) ([]crdb.OutboxRecord, error)
	MarkPublished(ctx context.Context, tx pgx.Tx, id uuid.UUID, publishedAt time.Time) error
	OldestPending(ctx context.Context) (time.Time, error)
}

type Broker interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

const (
	batchSize      = 50
	publishRetries = 3
)

type Publisher struct {
	repo      Store
	rabbitPub Broker
	logger    observability.Logger
	interval  time.Duration
	backoff   time.Duration
}

func NewPublisher(repo Store, rabbitPub Broker, logger observability.Logger, interval time.Duration) *Publisher {
	return &Publisher{repo: repo, rabbitPub: rabbitPub, logger: logger, interval: interval, backoff: 200 * time.Millisecond}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.Flush(ctx)
			if err != nil {
				p.logger.WithError(err).Error("outbox flush failed")
				continue
			}
			if n > 0 {
				p.logger.WithField("published", n).Debug("outbox flushed")
			}
			p.updateLag(ctx)
		}
	}
}

// Flush publishes one batch in creation order. A record that cannot be
// published stops the batch so later events never overtake it; what was
// already published is committed.
func (p *Publisher) Flush(ctx context.Context) (int, error) {
	published := 0
	err := p.repo.WithTx(ctx, func(tx pgx.Tx) error {
		records, err := p.repo.ClaimOutbox(ctx, tx, batchSize)
		if err != nil {
			return err
		}
		for _, rec := range records {
			msg := amqp.Publishing{
				MessageId:   rec.DedupeKey,
				ContentType: "application/json",
				Timestamp:   rec.CreatedAt,
				Type:        rec.EventType,
				Body:        rec.Payload,
			}
			if err := p.publishWithRetry(ctx, rec.EventType, msg); err != nil {
				p.logger.WithError(err).WithField("outbox_id", rec.ID).Warn("publish failed, will retry next tick")
				return nil
			}
			if err := p.repo.MarkPublished(ctx, tx, rec.ID, time.Now()); err != nil {
				return err
			}
			published++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}

func (p *Publisher) publishWithRetry(ctx context.Context, key string, msg amqp.Publishing) error {
	var err error
	for i := 0; i < publishRetries; i++ {
		if i > 0 {
			observability.RabbitPublishRetries.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(1<<(i-1)) * p.backoff):
			}
		}
		if err = p.rabbitPub.Publish(ctx, key, msg); err == nil {
			return nil
		}
	}
	return err
}

func (p *Publisher) updateLag(ctx context.Context) {
	oldest, err := p.repo.OldestPending(ctx)
	if err != nil {
		p.logger.WithError(err).Warn("failed to read outbox lag")
		return
	}
	if oldest.IsZero() {
		observability.OutboxLag.Set(0)
		return
	}
	observability.OutboxLag.Set(time.Since(oldest).Seconds())
}
