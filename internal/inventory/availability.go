package inventory

import (
	"context"

	"github.com/robertarktes/hotel-room-holds/internal/domain"
	"github.com/robertarktes/hotel-room-holds/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// ListAvailableRooms returns the hotel's rooms flagged available when no
// booking overlaps the stay and no other guest holds them.
func (s *Service) ListAvailableRooms(ctx context.Context, guestID, hotelID int64, checkIn, checkOut domain.Date) ([]domain.Room, error) {
	ctx, span := observability.StartSpan(ctx, "inventory.ListAvailableRooms", attribute.Int64("hotel.id", hotelID))
	defer span.End()

	if hotelID <= 0 {
		return nil, invalid("hotel id must be positive")
	}
	if err := domain.ValidateStay(checkIn, checkOut); err != nil {
		return nil, err
	}

	var (
		rooms   []domain.Room
		holders map[int64]string
		booked  []int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rooms, err = s.catalog.RoomsByHotel(gctx, hotelID)
		if err != nil || len(rooms) == 0 {
			return err
		}
		ids := make([]int64, len(rooms))
		for i, r := range rooms {
			ids[i] = r.ID
		}
		holders, err = s.locks.Holders(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		booked, err = s.store.BookedRoomIDs(gctx, hotelID, checkIn, checkOut)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	taken := make(map[int64]bool, len(booked))
	for _, id := range booked {
		taken[id] = true
	}
	me := guestKey(guestID)
	for i := range rooms {
		holder, held := holders[rooms[i].ID]
		rooms[i].Available = !taken[rooms[i].ID] && (!held || holder == me)
	}
	return rooms, nil
}
