package domain

import (
	"time"

	"github.com/google/uuid"
)

// HoldDuration is how long the inventory keeps rooms held for one guest.
// Clients mirror it with a local countdown; it is not configurable per request.
const HoldDuration = 10 * time.Minute

type HoldStatus string

const (
	HoldStatusActive    HoldStatus = "ACTIVE"
	HoldStatusReleased  HoldStatus = "RELEASED"
	HoldStatusExpired   HoldStatus = "EXPIRED"
	HoldStatusConverted HoldStatus = "CONVERTED"
)

type Hold struct {
	ID        uuid.UUID
	GuestID   int64
	RoomIDs   []int64
	ExpiresAt time.Time
	Status    HoldStatus
}

type RoomType string

const (
	RoomTypeSingle RoomType = "SINGLE"
	RoomTypeDouble RoomType = "DOUBLE"
	RoomTypeSuite  RoomType = "SUITE"
	RoomTypeFamily RoomType = "FAMILY"
)

type Room struct {
	ID            int64    `json:"id"`
	HotelID       int64    `json:"hotelId"`
	RoomNumber    string   `json:"roomNumber,omitempty"`
	Type          RoomType `json:"typeRoom"`
	Capacity      int      `json:"capacity"`
	PricePerNight float64  `json:"pricePerNight"`
	Available     bool     `json:"available"`
}

type PaymentType string

const (
	PaymentCard         PaymentType = "CARD"
	PaymentWallet       PaymentType = "WALLET"
	PaymentBankTransfer PaymentType = "BANK_TRANSFER"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// BookingRequest is what the booking wizard hands off once the details step
// validates.
type BookingRequest struct {
	HotelID      int64       `json:"hotelId" validate:"required,gt=0"`
	RoomIDs      []int64     `json:"roomIds" validate:"required,min=1,dive,gt=0"`
	CheckInDate  Date        `json:"checkInDate"`
	CheckOutDate Date        `json:"checkOutDate"`
	PaymentType  PaymentType `json:"paymentType" validate:"required,oneof=CARD WALLET BANK_TRANSFER"`
	VoucherID    *int64      `json:"voucherId,omitempty" validate:"omitempty,gt=0"`
	TotalPrice   float64     `json:"totalPrice" validate:"gte=0"`
	Notes        string      `json:"notes,omitempty" validate:"max=1000"`
}

type Booking struct {
	ID           uuid.UUID     `json:"id"`
	GuestID      int64         `json:"guestId"`
	HotelID      int64         `json:"hotelId"`
	RoomID       int64         `json:"roomId"`
	CheckInDate  Date          `json:"checkInDate"`
	CheckOutDate Date          `json:"checkOutDate"`
	TotalPrice   float64       `json:"totalPrice"`
	PaymentType  PaymentType   `json:"paymentType"`
	VoucherID    *int64        `json:"voucherId,omitempty"`
	Notes        string        `json:"notes,omitempty"`
	Status       BookingStatus `json:"status"`
	CreatedAt    time.Time     `json:"createdAt"`
}

type Voucher struct {
	ID              int64     `json:"id"`
	Code            string    `json:"voucherCode"`
	Name            string    `json:"voucherName"`
	PercentDiscount float64   `json:"percentDiscount"`
	PriceCondition  float64   `json:"priceCondition"`
	ExpiredDate     time.Time `json:"expiredDate"`
}

// AuditEntry is one recorded hold or booking event of a guest.
type AuditEntry struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}
