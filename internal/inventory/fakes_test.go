package inventory

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/hotel-room-holds/internal/adapters/crdb"
	"github.com/robertarktes/hotel-room-holds/internal/domain"
	"github.com/robertarktes/hotel-room-holds/internal/observability"
)

type holdRow struct {
	holdID  uuid.UUID
	guest   int64
	room    int64
	expires time.Time
	status  domain.HoldStatus
}

// fakeStore mimics the SQL semantics of crdb.Repository in memory. A failed
// transaction restores the state it started from.
type fakeStore struct {
	mu       sync.Mutex
	holds    []holdRow
	bookings []domain.Booking
	outbox   []crdb.OutboxRecord

	txErr       error
	markExpFail int
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	f.mu.Lock()
	if f.txErr != nil {
		err := f.txErr
		f.mu.Unlock()
		return err
	}
	holds := append([]holdRow(nil), f.holds...)
	bookings := append([]domain.Booking(nil), f.bookings...)
	outbox := append([]crdb.OutboxRecord(nil), f.outbox...)
	f.mu.Unlock()

	if err := fn(nil); err != nil {
		f.mu.Lock()
		f.holds, f.bookings, f.outbox = holds, bookings, outbox
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeStore) CreateHold(ctx context.Context, tx pgx.Tx, hold domain.Hold, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	in := make(map[int64]bool)
	for _, id := range hold.RoomIDs {
		in[id] = true
	}
	for i := range f.holds {
		h := &f.holds[i]
		if !in[h.room] || h.status != domain.HoldStatusActive {
			continue
		}
		switch {
		case h.guest == hold.GuestID:
			h.status = domain.HoldStatusReleased
		case !h.expires.After(now):
			h.status = domain.HoldStatusExpired
		default:
			return errors.Mark(errors.Newf("room %d is already held", h.room), domain.ErrConflict)
		}
	}
	for _, id := range hold.RoomIDs {
		f.holds = append(f.holds, holdRow{holdID: hold.ID, guest: hold.GuestID, room: id, expires: hold.ExpiresAt, status: domain.HoldStatusActive})
	}
	return nil
}

func (f *fakeStore) setStatus(guest int64, ids []int64, status domain.HoldStatus) int64 {
	in := make(map[int64]bool)
	for _, id := range ids {
		in[id] = true
	}
	var n int64
	for i := range f.holds {
		h := &f.holds[i]
		if h.guest == guest && in[h.room] && h.status == domain.HoldStatusActive {
			h.status = status
			n++
		}
	}
	return n
}

func (f *fakeStore) ReleaseHolds(ctx context.Context, tx pgx.Tx, guestID int64, roomIDs []int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.setStatus(guestID, roomIDs, domain.HoldStatusReleased), nil
}

func (f *fakeStore) HeldRoomIDs(ctx context.Context, tx pgx.Tx, guestID int64, roomIDs []int64, now time.Time) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in := make(map[int64]bool)
	for _, id := range roomIDs {
		in[id] = true
	}
	var out []int64
	for _, h := range f.holds {
		if h.guest == guestID && in[h.room] && h.status == domain.HoldStatusActive && h.expires.After(now) {
			out = append(out, h.room)
		}
	}
	return out, nil
}

func (f *fakeStore) ConvertHolds(ctx context.Context, tx pgx.Tx, guestID int64, roomIDs []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setStatus(guestID, roomIDs, domain.HoldStatusConverted)
	return nil
}

func (f *fakeStore) GetExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Hold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byID := make(map[uuid.UUID]*domain.Hold)
	var order []uuid.UUID
	for _, h := range f.holds {
		if h.status != domain.HoldStatusActive || h.expires.After(now) {
			continue
		}
		hold, ok := byID[h.holdID]
		if !ok {
			hold = &domain.Hold{ID: h.holdID, GuestID: h.guest, ExpiresAt: h.expires, Status: domain.HoldStatusActive}
			byID[h.holdID] = hold
			order = append(order, h.holdID)
		}
		hold.RoomIDs = append(hold.RoomIDs, h.room)
	}
	out := make([]domain.Hold, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

func (f *fakeStore) MarkExpired(ctx context.Context, tx pgx.Tx, holdID uuid.UUID, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markExpFail > 0 {
		f.markExpFail--
		return 0, errors.New("connection reset")
	}
	var n int64
	for i := range f.holds {
		h := &f.holds[i]
		if h.holdID == holdID && h.status == domain.HoldStatusActive && !h.expires.After(now) {
			h.status = domain.HoldStatusExpired
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) overlapping(match func(domain.Booking) bool, checkIn, checkOut domain.Date) []int64 {
	var out []int64
	for _, b := range f.bookings {
		if match(b) && b.Status != domain.BookingStatusCancelled &&
			b.CheckInDate.Before(checkOut.Time) && b.CheckOutDate.After(checkIn.Time) {
			out = append(out, b.RoomID)
		}
	}
	return out
}

func (f *fakeStore) BookedRoomIDs(ctx context.Context, hotelID int64, checkIn, checkOut domain.Date) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlapping(func(b domain.Booking) bool { return b.HotelID == hotelID }, checkIn, checkOut), nil
}

func (f *fakeStore) OverlappingRoomIDs(ctx context.Context, tx pgx.Tx, roomIDs []int64, checkIn, checkOut domain.Date) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in := make(map[int64]bool)
	for _, id := range roomIDs {
		in[id] = true
	}
	return f.overlapping(func(b domain.Booking) bool { return in[b.RoomID] }, checkIn, checkOut), nil
}

func (f *fakeStore) CreateBookings(ctx context.Context, tx pgx.Tx, bookings []domain.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookings = append(f.bookings, bookings...)
	return nil
}

func (f *fakeStore) InsertOutbox(ctx context.Context, tx pgx.Tx, record crdb.OutboxRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outbox = append(f.outbox, record)
	return nil
}

func (f *fakeStore) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.outbox))
	for i, r := range f.outbox {
		out[i] = r.EventType
	}
	return out
}

func (f *fakeStore) statuses(room int64) []domain.HoldStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.HoldStatus
	for _, h := range f.holds {
		if h.room == room {
			out = append(out, h.status)
		}
	}
	return out
}

type fakeLocker struct {
	mu     sync.Mutex
	owners map[int64]string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{owners: make(map[int64]string)}
}

func (l *fakeLocker) LockRooms(ctx context.Context, guestID string, roomIDs []int64, ttl time.Duration) (int64, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range roomIDs {
		if owner, ok := l.owners[id]; ok && owner != guestID {
			return id, false, nil
		}
	}
	for _, id := range roomIDs {
		l.owners[id] = guestID
	}
	return 0, true, nil
}

func (l *fakeLocker) UnlockRooms(ctx context.Context, guestID string, roomIDs []int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for _, id := range roomIDs {
		if l.owners[id] == guestID {
			delete(l.owners, id)
			n++
		}
	}
	return n, nil
}

func (l *fakeLocker) Holders(ctx context.Context, roomIDs []int64) (map[int64]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[int64]string)
	for _, id := range roomIDs {
		if owner, ok := l.owners[id]; ok {
			out[id] = owner
		}
	}
	return out, nil
}

func (l *fakeLocker) owner(id int64) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owners[id]
}

type fakeCatalog struct {
	rooms    []domain.Room
	vouchers map[int64]domain.Voucher
}

func (c *fakeCatalog) RoomsByHotel(ctx context.Context, hotelID int64) ([]domain.Room, error) {
	var out []domain.Room
	for _, r := range c.rooms {
		if r.HotelID == hotelID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *fakeCatalog) RoomsByIDs(ctx context.Context, ids []int64) ([]domain.Room, error) {
	want := make(map[int64]bool)
	for _, id := range ids {
		want[id] = true
	}
	var out []domain.Room
	for _, r := range c.rooms {
		if want[r.ID] {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *fakeCatalog) VoucherByID(ctx context.Context, id int64) (*domain.Voucher, error) {
	v, ok := c.vouchers[id]
	if !ok {
		return nil, errors.Mark(errors.Newf("voucher %d not found", id), domain.ErrNotFound)
	}
	return &v, nil
}

type fixture struct {
	svc     *Service
	store   *fakeStore
	locks   *fakeLocker
	catalog *fakeCatalog
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: time.Date(2030, time.May, 20, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }
	f.store = &fakeStore{}
	f.locks = newFakeLocker()
	f.catalog = &fakeCatalog{
		rooms: []domain.Room{
			{ID: 3, HotelID: 1, Type: domain.RoomTypeSingle, Capacity: 1, PricePerNight: 100},
			{ID: 5, HotelID: 1, Type: domain.RoomTypeDouble, Capacity: 2, PricePerNight: 150},
			{ID: 7, HotelID: 1, Type: domain.RoomTypeSuite, Capacity: 4, PricePerNight: 250},
			{ID: 9, HotelID: 2, Type: domain.RoomTypeFamily, Capacity: 5, PricePerNight: 300},
		},
		vouchers: map[int64]domain.Voucher{
			1: {ID: 1, Code: "SUMMER10", PercentDiscount: 10, PriceCondition: 200},
			2: {ID: 2, Code: "OLD", PercentDiscount: 50, ExpiredDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
	}
	f.svc = NewService(f.store, f.locks, f.catalog, observability.NewLoggerTo(io.Discard),
		WithClock(clock), WithExpiryBackoff(time.Millisecond))
	return f
}
