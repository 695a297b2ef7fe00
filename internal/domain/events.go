package domain

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys on the events exchange.
const (
	EventHoldAcquired   = "hold.acquired"
	EventHoldReleased   = "hold.released"
	EventHoldExpired    = "hold.expired"
	EventBookingCreated = "booking.created"
)

type HoldEvent struct {
	HoldID    uuid.UUID `json:"holdId,omitempty"`
	GuestID   int64     `json:"guestId"`
	RoomIDs   []int64   `json:"roomIds"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

type BookingEvent struct {
	BookingIDs   []uuid.UUID `json:"bookingIds"`
	GuestID      int64       `json:"guestId"`
	HotelID      int64       `json:"hotelId"`
	RoomIDs      []int64     `json:"roomIds"`
	CheckInDate  Date        `json:"checkInDate"`
	CheckOutDate Date        `json:"checkOutDate"`
	TotalPrice   float64     `json:"totalPrice"`
	PaymentType  PaymentType `json:"paymentType"`
}
