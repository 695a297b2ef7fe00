package inventory

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/hotel-room-holds/internal/domain"
	"github.com/robertarktes/hotel-room-holds/internal/observability"
	"go.opentelemetry.io/otel/attribute"
)

// AcquireHold locks every room for the guest for domain.HoldDuration or
// none of them. Rooms the guest already holds are refreshed.
func (s *Service) AcquireHold(ctx context.Context, guestID int64, roomIDs []int64) (domain.Hold, error) {
	ctx, span := observability.StartSpan(ctx, "inventory.AcquireHold", attribute.Int64("guest.id", guestID))
	defer span.End()

	ids, ok := domain.NormalizeRoomIDs(roomIDs)
	if !ok {
		return domain.Hold{}, invalid("room ids must be a non-empty list of positive ids")
	}
	if _, err := s.roomsByID(ctx, ids); err != nil {
		return domain.Hold{}, err
	}

	log := s.logger.WithField("guest_id", guestID).WithField("room_ids", ids)
	guest := guestKey(guestID)

	conflict, ok, err := s.locks.LockRooms(ctx, guest, ids, domain.HoldDuration)
	if err != nil {
		return domain.Hold{}, err
	}
	if !ok {
		observability.HoldConflicts.Inc()
		log.WithField("room_id", conflict).Info("hold rejected, room held by another guest")
		return domain.Hold{}, errors.Mark(errors.Newf("room %d is already held", conflict), domain.ErrConflict)
	}

	now := s.now()
	hold := domain.Hold{
		ID:        uuid.New(),
		GuestID:   guestID,
		RoomIDs:   ids,
		ExpiresAt: now.Add(domain.HoldDuration),
		Status:    domain.HoldStatusActive,
	}
	err = s.withTx(ctx, func(tx pgx.Tx) error {
		if err := s.store.CreateHold(ctx, tx, hold, now); err != nil {
			return err
		}
		return s.outbox(ctx, tx, "hold", hold.ID, domain.EventHoldAcquired, domain.HoldEvent{
			HoldID:    hold.ID,
			GuestID:   guestID,
			RoomIDs:   ids,
			ExpiresAt: hold.ExpiresAt,
		})
	})
	if err != nil {
		if _, uerr := s.locks.UnlockRooms(context.WithoutCancel(ctx), guest, ids); uerr != nil {
			log.WithError(uerr).Warn("failed to roll back room locks")
		}
		if errors.Is(err, domain.ErrSerializationFailure) {
			return domain.Hold{}, errors.Mark(errors.New("rooms are being held concurrently, please retry"), domain.ErrConflict)
		}
		return domain.Hold{}, errors.Wrap(err, "persist hold")
	}

	observability.HoldsAcquired.Inc()
	log.WithField("hold_id", hold.ID).Info("rooms held")
	return hold, nil
}

// ReleaseHold gives back whatever part of roomIDs the guest holds. Rooms the
// guest does not hold are ignored.
func (s *Service) ReleaseHold(ctx context.Context, guestID int64, roomIDs []int64) error {
	ctx, span := observability.StartSpan(ctx, "inventory.ReleaseHold", attribute.Int64("guest.id", guestID))
	defer span.End()

	ids, ok := domain.NormalizeRoomIDs(roomIDs)
	if !ok {
		return invalid("room ids must be a non-empty list of positive ids")
	}
	log := s.logger.WithField("guest_id", guestID).WithField("room_ids", ids)

	var released int64
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		released, err = s.store.ReleaseHolds(ctx, tx, guestID, ids)
		if err != nil || released == 0 {
			return err
		}
		return s.outbox(ctx, tx, "hold", uuid.New(), domain.EventHoldReleased, domain.HoldEvent{
			GuestID: guestID,
			RoomIDs: ids,
		})
	})
	if err != nil {
		return errors.Wrap(err, "release hold")
	}

	if _, err := s.locks.UnlockRooms(ctx, guestKey(guestID), ids); err != nil {
		log.WithError(err).Warn("failed to delete room locks, they will lapse on their own")
	}
	if released > 0 {
		observability.HoldsReleased.Inc()
		log.Info("hold released")
	}
	return nil
}
