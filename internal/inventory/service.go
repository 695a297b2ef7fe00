// Package inventory owns room holds on the server: it grants the 600 second
// locks, answers availability and turns holds into bookings.
package inventory

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/hotel-room-holds/internal/adapters/crdb"
	"github.com/robertarktes/hotel-room-holds/internal/domain"
	"github.com/robertarktes/hotel-room-holds/internal/observability"
)

// Store is the durable side: holds, bookings and the outbox.
type Store interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	CreateHold(ctx context.Context, tx pgx.Tx, hold domain.Hold, now time.Time) error
	ReleaseHolds(ctx context.Context, tx pgx.Tx, guestID int64, roomIDs []int64) (int64, error)
	HeldRoomIDs(ctx context.Context, tx pgx.Tx, guestID int64, roomIDs []int64, now time.Time) ([]int64, error)
	ConvertHolds(ctx context.Context, tx pgx.Tx, guestID int64, roomIDs []int64) error
	GetExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Hold, error)
	MarkExpired(ctx context.Context, tx pgx.Tx, holdID uuid.UUID, now time.Time) (int64, error)
	BookedRoomIDs(ctx context.Context, hotelID int64, checkIn, checkOut domain.Date) ([]int64, error)
	OverlappingRoomIDs(ctx context.Context, tx pgx.Tx, roomIDs []int64, checkIn, checkOut domain.Date) ([]int64, error)
	CreateBookings(ctx context.Context, tx pgx.Tx, bookings []domain.Booking) error
	InsertOutbox(ctx context.Context, tx pgx.Tx, record crdb.OutboxRecord) error
}

// Locker holds the fast expiring per-room locks.
type Locker interface {
	LockRooms(ctx context.Context, guestID string, roomIDs []int64, ttl time.Duration) (conflict int64, ok bool, err error)
	UnlockRooms(ctx context.Context, guestID string, roomIDs []int64) (int64, error)
	Holders(ctx context.Context, roomIDs []int64) (map[int64]string, error)
}

type Catalog interface {
	RoomsByHotel(ctx context.Context, hotelID int64) ([]domain.Room, error)
	RoomsByIDs(ctx context.Context, ids []int64) ([]domain.Room, error)
	VoucherByID(ctx context.Context, id int64) (*domain.Voucher, error)
}

var validate = validator.New()

type Service struct {
	store   Store
	locks   Locker
	catalog Catalog
	logger  observability.Logger
	now     func() time.Time

	txRetries     int
	expiryBackoff time.Duration
	sweepLimit    int
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithExpiryBackoff sets the first backoff step of the expiry retry loop.
func WithExpiryBackoff(d time.Duration) Option {
	return func(s *Service) { s.expiryBackoff = d }
}

func NewService(store Store, locks Locker, catalog Catalog, logger observability.Logger, opts ...Option) *Service {
	s := &Service{
		store:         store,
		locks:         locks,
		catalog:       catalog,
		logger:        logger,
		now:           time.Now,
		txRetries:     3,
		expiryBackoff: time.Second,
		sweepLimit:    500,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func guestKey(guestID int64) string {
	return strconv.FormatInt(guestID, 10)
}

func invalid(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), domain.ErrInvalidInput)
}

// withTx retries serialization failures a few times before giving up.
func (s *Service) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	var err error
	for i := 0; i < s.txRetries; i++ {
		err = s.store.WithTx(ctx, fn)
		if !errors.Is(err, domain.ErrSerializationFailure) {
			return err
		}
	}
	return err
}

func (s *Service) outbox(ctx context.Context, tx pgx.Tx, aggregate string, id uuid.UUID, eventType string, payload any) error {
	rec, err := crdb.NewOutboxRecord(aggregate, id, eventType, payload)
	if err != nil {
		return err
	}
	return s.store.InsertOutbox(ctx, tx, rec)
}

// roomsByID loads the catalog entries for ids and fails on the first id the
// catalog does not know.
func (s *Service) roomsByID(ctx context.Context, ids []int64) (map[int64]domain.Room, error) {
	rooms, err := s.catalog.RoomsByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "load rooms")
	}
	byID := make(map[int64]domain.Room, len(rooms))
	for _, r := range rooms {
		byID[r.ID] = r
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, errors.Mark(errors.Newf("room %d not found", id), domain.ErrNotFound)
		}
	}
	return byID, nil
}
