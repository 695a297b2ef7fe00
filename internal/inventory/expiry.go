package inventory

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/hotel-room-holds/internal/domain"
	"github.com/robertarktes/hotel-room-holds/internal/observability"
	"go.opentelemetry.io/otel/attribute"
)

const maxExpiryRetries = 3

// ExpireHolds is the server-side backstop for abandoned holds: every active
// hold past its expiry is marked EXPIRED, its lingering locks are deleted
// and a hold.expired event is queued. It returns how many holds expired.
func (s *Service) ExpireHolds(ctx context.Context, now time.Time) (expired int, err error) {
	ctx, span := observability.StartSpan(ctx, "inventory.ExpireHolds")
	defer func() {
		span.SetAttributes(attribute.Int("holds.expired", expired))
		observability.EndSpan(span, err)
	}()

	holds, err := s.store.GetExpiredHolds(ctx, now, s.sweepLimit)
	if err != nil {
		return 0, errors.Wrap(err, "get expired holds")
	}

	for _, hold := range holds {
		ok, err := s.expireWithRetry(ctx, hold, now)
		if err != nil {
			if ctx.Err() != nil {
				return expired, ctx.Err()
			}
			s.logger.WithError(err).WithField("hold_id", hold.ID).Error("failed to expire hold after retries")
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

func (s *Service) expireWithRetry(ctx context.Context, hold domain.Hold, now time.Time) (bool, error) {
	var err error
	for i := 0; i < maxExpiryRetries; i++ {
		var ok bool
		ok, err = s.expireOne(ctx, hold, now)
		if err == nil {
			return ok, nil
		}
		backoff := time.Duration(1<<i) * s.expiryBackoff
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return false, errors.Wrapf(err, "failed after %d retries", maxExpiryRetries)
}

func (s *Service) expireOne(ctx context.Context, hold domain.Hold, now time.Time) (bool, error) {
	var n int64
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		n, err = s.store.MarkExpired(ctx, tx, hold.ID, now)
		if err != nil || n == 0 {
			return err
		}
		return s.outbox(ctx, tx, "hold", hold.ID, domain.EventHoldExpired, domain.HoldEvent{
			HoldID:    hold.ID,
			GuestID:   hold.GuestID,
			RoomIDs:   hold.RoomIDs,
			ExpiresAt: hold.ExpiresAt,
		})
	})
	if err != nil {
		return false, err
	}
	if n == 0 {
		// converted or released since the sweep read it
		return false, nil
	}

	log := s.logger.WithField("hold_id", hold.ID).WithField("room_ids", hold.RoomIDs)
	if _, err := s.locks.UnlockRooms(ctx, guestKey(hold.GuestID), hold.RoomIDs); err != nil {
		log.WithError(err).Warn("failed to delete lingering room locks")
	}
	observability.HoldsExpired.Inc()
	log.Info("hold expired")
	return true, nil
}
