package inventory

import (
	"context"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/hotel-room-holds/internal/domain"
	"github.com/robertarktes/hotel-room-holds/internal/observability"
	"go.opentelemetry.io/otel/attribute"
)

// CreateBooking turns the guest's live hold into one booking per room. The
// hold must still be active for every room; the booking supersedes it.
func (s *Service) CreateBooking(ctx context.Context, guestID int64, req domain.BookingRequest) ([]domain.Booking, error) {
	ctx, span := observability.StartSpan(ctx, "inventory.CreateBooking",
		attribute.Int64("guest.id", guestID), attribute.Int64("hotel.id", req.HotelID))
	defer span.End()

	if err := validate.Struct(req); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "booking request"), domain.ErrInvalidInput)
	}
	if err := domain.ValidateStay(req.CheckInDate, req.CheckOutDate); err != nil {
		return nil, err
	}
	ids, ok := domain.NormalizeRoomIDs(req.RoomIDs)
	if !ok {
		return nil, invalid("room ids must be a non-empty list of positive ids")
	}
	rooms, err := s.roomsByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if rooms[id].HotelID != req.HotelID {
			return nil, invalid("room %d does not belong to hotel %d", id, req.HotelID)
		}
	}

	now := s.now()
	nights := domain.Nights(req.CheckInDate, req.CheckOutDate)
	selected := make([]domain.Room, 0, len(ids))
	for _, id := range ids {
		selected = append(selected, rooms[id])
	}
	subtotal := domain.Subtotal(selected, nights)

	var discount float64
	if req.VoucherID != nil {
		v, err := s.catalog.VoucherByID(ctx, *req.VoucherID)
		if err != nil {
			return nil, err
		}
		if !v.ExpiredDate.IsZero() && v.ExpiredDate.Before(now) {
			return nil, invalid("voucher %s has expired", v.Code)
		}
		if subtotal < v.PriceCondition {
			return nil, invalid("voucher %s requires a total of at least %.2f", v.Code, v.PriceCondition)
		}
		discount = v.Discount(subtotal, now)
	}

	bookings := make([]domain.Booking, len(ids))
	var total float64
	for i, id := range ids {
		price := rooms[id].PricePerNight * float64(nights)
		if subtotal > 0 {
			price -= discount * price / subtotal
		}
		price = math.Round(price*100) / 100
		total += price
		bookings[i] = domain.Booking{
			ID:           uuid.New(),
			GuestID:      guestID,
			HotelID:      req.HotelID,
			RoomID:       id,
			CheckInDate:  req.CheckInDate,
			CheckOutDate: req.CheckOutDate,
			TotalPrice:   price,
			PaymentType:  req.PaymentType,
			VoucherID:    req.VoucherID,
			Notes:        req.Notes,
			Status:       domain.BookingStatusPending,
			CreatedAt:    now.UTC(),
		}
	}

	err = s.withTx(ctx, func(tx pgx.Tx) error {
		held, err := s.store.HeldRoomIDs(ctx, tx, guestID, ids, now)
		if err != nil {
			return err
		}
		if missing, ok := firstMissing(ids, held); ok {
			return errors.Mark(errors.Newf("hold for room %d has expired", missing), domain.ErrHoldExpired)
		}
		overlapping, err := s.store.OverlappingRoomIDs(ctx, tx, ids, req.CheckInDate, req.CheckOutDate)
		if err != nil {
			return err
		}
		if len(overlapping) > 0 {
			return errors.Mark(errors.Newf("room %d is already booked for these dates", overlapping[0]), domain.ErrConflict)
		}
		if err := s.store.CreateBookings(ctx, tx, bookings); err != nil {
			return err
		}
		if err := s.store.ConvertHolds(ctx, tx, guestID, ids); err != nil {
			return err
		}
		event := domain.BookingEvent{
			GuestID:      guestID,
			HotelID:      req.HotelID,
			RoomIDs:      ids,
			CheckInDate:  req.CheckInDate,
			CheckOutDate: req.CheckOutDate,
			TotalPrice:   math.Round(total*100) / 100,
			PaymentType:  req.PaymentType,
		}
		for _, b := range bookings {
			event.BookingIDs = append(event.BookingIDs, b.ID)
		}
		return s.outbox(ctx, tx, "booking", bookings[0].ID, domain.EventBookingCreated, event)
	})
	if errors.Is(err, domain.ErrSerializationFailure) {
		return nil, errors.Mark(errors.New("rooms are being booked concurrently, please retry"), domain.ErrConflict)
	}
	if err != nil {
		return nil, err
	}

	log := s.logger.WithField("guest_id", guestID).WithField("room_ids", ids)
	if _, err := s.locks.UnlockRooms(ctx, guestKey(guestID), ids); err != nil {
		log.WithError(err).Warn("failed to delete room locks after booking")
	}
	log.WithField("booking_id", bookings[0].ID).Info("booking created")
	return bookings, nil
}

func firstMissing(want, have []int64) (int64, bool) {
	got := make(map[int64]bool, len(have))
	for _, id := range have {
		got[id] = true
	}
	for _, id := range want {
		if !got[id] {
			return id, true
		}
	}
	return 0, false
}
