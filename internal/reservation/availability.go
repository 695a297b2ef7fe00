package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/hotel-room-holds/internal/domain"
)

// RefreshAvailability reloads the room listing. Rooms that went unavailable
// are dropped from an idle selection with a warning.
func (c *Controller) RefreshAvailability(ctx context.Context) error {
	c.mu.Lock()
	hotelID, checkIn, checkOut := c.attempt.HotelID, c.attempt.CheckIn, c.attempt.CheckOut
	c.mu.Unlock()

	rooms, err := c.inv.ListAvailableRooms(ctx, hotelID, checkIn, checkOut)
	if err != nil {
		c.log.WithError(err).Warn("availability refresh failed")
		c.mu.Lock()
		c.noticeLocked(Error, "Could not load the available rooms.")
		c.mu.Unlock()
		return errors.Wrap(err, "list available rooms")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// dates changed while the listing was in flight
	if c.attempt.CheckIn != checkIn || c.attempt.CheckOut != checkOut {
		return nil
	}

	c.rooms = make(map[int64]domain.Room, len(rooms))
	for _, r := range rooms {
		c.rooms[r.ID] = r
	}
	c.roomsLoaded = true

	if len(rooms) == 0 {
		c.noticeLocked(Warning, "No rooms are available for the selected dates.")
	}
	if c.state != StateIdle || c.acquiring {
		return nil
	}
	removed := c.attempt.Selection.Retain(func(id int64) bool {
		r, ok := c.rooms[id]
		return ok && r.Available
	})
	if len(removed) > 0 {
		c.log.WithField("room_ids", removed).Warn("pruned unavailable rooms from selection")
		c.noticeLocked(Warning, fmt.Sprintf("Removed %d unavailable room(s) from your selection.", len(removed)))
	}
	return nil
}

// RunAvailabilityRefresh refreshes on every interval until ctx is done.
func (c *Controller) RunAvailabilityRefresh(ctx context.Context, interval time.Duration) {
	t := c.newTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			_ = c.RefreshAvailability(ctx)
		}
	}
}
