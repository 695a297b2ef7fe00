package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/hotel-room-holds/internal/domain"
	"github.com/robertarktes/hotel-room-holds/internal/observability"
)

const (
	SerializationFailureCode = "40001"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() { observability.DBTxDuration.Observe(time.Since(start).Seconds()) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	err = fn(tx)
	if err == nil {
		err = tx.Commit(ctx)
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrSerializationFailure
		}
		return err
	}
	return nil
}

// CreateHold writes one ACTIVE row per room. Active rows of the same guest
// are superseded and rows already past their expiry at now are swept first,
// so only a live hold by another guest conflicts.
func (r *Repository) CreateHold(ctx context.Context, tx pgx.Tx, hold domain.Hold, now time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE holds SET status = CASE WHEN guest_id = $2 THEN 'RELEASED' ELSE 'EXPIRED' END
		WHERE room_id = ANY($1) AND status = 'ACTIVE' AND (guest_id = $2 OR expires_at <= $3)
	`, hold.RoomIDs, hold.GuestID, now)
	if err != nil {
		return err
	}

	for _, room := range hold.RoomIDs {
		result, err := tx.Exec(ctx, `
			INSERT INTO holds (hold_id, guest_id, room_id, expires_at, status)
			VALUES ($1, $2, $3, $4, 'ACTIVE')
			ON CONFLICT (room_id) WHERE status = 'ACTIVE' DO NOTHING
		`, hold.ID, hold.GuestID, room, hold.ExpiresAt)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return errors.Mark(errors.Newf("room %d is already held", room), domain.ErrConflict)
		}
	}
	return nil
}

// ReleaseHolds marks the guest's active rows for the rooms RELEASED and
// returns how many rows changed.
func (r *Repository) ReleaseHolds(ctx context.Context, tx pgx.Tx, guestID int64, roomIDs []int64) (int64, error) {
	result, err := tx.Exec(ctx, `
		UPDATE holds SET status = 'RELEASED'
		WHERE guest_id = $1 AND room_id = ANY($2) AND status = 'ACTIVE'
	`, guestID, roomIDs)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// HeldRoomIDs returns the rooms among roomIDs the guest holds with an
// unexpired ACTIVE row.
func (r *Repository) HeldRoomIDs(ctx context.Context, tx pgx.Tx, guestID int64, roomIDs []int64, now time.Time) ([]int64, error) {
	rows, err := tx.Query(ctx, `
		SELECT room_id FROM holds
		WHERE guest_id = $1 AND room_id = ANY($2) AND status = 'ACTIVE' AND expires_at > $3
	`, guestID, roomIDs, now)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// ConvertHolds marks the guest's active rows as superseded by a booking.
func (r *Repository) ConvertHolds(ctx context.Context, tx pgx.Tx, guestID int64, roomIDs []int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE holds SET status = 'CONVERTED'
		WHERE guest_id = $1 AND room_id = ANY($2) AND status = 'ACTIVE'
	`, guestID, roomIDs)
	return err
}

func (r *Repository) GetExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Hold, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT hold_id, guest_id, room_id, expires_at
		FROM holds WHERE status = 'ACTIVE' AND expires_at <= $1
		ORDER BY hold_id, room_id
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holds []domain.Hold
	var current *domain.Hold

	for rows.Next() {
		var holdID uuid.UUID
		var guestID, roomID int64
		var expiresAt time.Time
		if err := rows.Scan(&holdID, &guestID, &roomID, &expiresAt); err != nil {
			return nil, err
		}
		if current == nil || current.ID != holdID {
			if current != nil {
				holds = append(holds, *current)
			}
			current = &domain.Hold{
				ID:        holdID,
				GuestID:   guestID,
				ExpiresAt: expiresAt,
				Status:    domain.HoldStatusActive,
			}
		}
		current.RoomIDs = append(current.RoomIDs, roomID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if current != nil {
		holds = append(holds, *current)
	}
	return holds, nil
}

// MarkExpired flips the still-active rows of a hold to EXPIRED.
func (r *Repository) MarkExpired(ctx context.Context, tx pgx.Tx, holdID uuid.UUID, now time.Time) (int64, error) {
	result, err := tx.Exec(ctx, `
		UPDATE holds SET status = 'EXPIRED'
		WHERE hold_id = $1 AND status = 'ACTIVE' AND expires_at <= $2
	`, holdID, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// BookedRoomIDs lists hotel rooms with a live booking overlapping the stay.
func (r *Repository) BookedRoomIDs(ctx context.Context, hotelID int64, checkIn, checkOut domain.Date) ([]int64, error) {
	return bookedRooms(ctx, r.pool, `hotel_id = $1`, hotelID, checkIn, checkOut)
}

// OverlappingRoomIDs is BookedRoomIDs restricted to roomIDs, inside tx.
func (r *Repository) OverlappingRoomIDs(ctx context.Context, tx pgx.Tx, roomIDs []int64, checkIn, checkOut domain.Date) ([]int64, error) {
	return bookedRooms(ctx, tx, `room_id = ANY($1)`, roomIDs, checkIn, checkOut)
}

func bookedRooms(ctx context.Context, q querier, filter string, arg any, checkIn, checkOut domain.Date) ([]int64, error) {
	rows, err := q.Query(ctx, `
		SELECT DISTINCT room_id FROM bookings
		WHERE `+filter+` AND status <> 'CANCELLED' AND check_in < $3 AND check_out > $2
	`, arg, checkIn.Time, checkOut.Time)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (r *Repository) CreateBookings(ctx context.Context, tx pgx.Tx, bookings []domain.Booking) error {
	batch := &pgx.Batch{}
	for _, b := range bookings {
		batch.Queue(`
			INSERT INTO bookings (id, guest_id, hotel_id, room_id, check_in, check_out, total_price, payment_type, voucher_id, notes, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, b.ID, b.GuestID, b.HotelID, b.RoomID, b.CheckInDate.Time, b.CheckOutDate.Time, b.TotalPrice, string(b.PaymentType), b.VoucherID, b.Notes, string(b.Status), b.CreatedAt)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func (r *Repository) GetBookings(ctx context.Context, ids []uuid.UUID) ([]domain.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, guest_id, hotel_id, room_id, check_in, check_out, total_price::FLOAT8, payment_type, voucher_id, notes, status, created_at
		FROM bookings WHERE id = ANY($1) ORDER BY room_id
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		var b domain.Booking
		var checkIn, checkOut time.Time
		var payment, status string
		if err := rows.Scan(&b.ID, &b.GuestID, &b.HotelID, &b.RoomID, &checkIn, &checkOut, &b.TotalPrice, &payment, &b.VoucherID, &b.Notes, &status, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.CheckInDate = domain.DateOf(checkIn)
		b.CheckOutDate = domain.DateOf(checkOut)
		b.PaymentType = domain.PaymentType(payment)
		b.Status = domain.BookingStatus(status)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, domain.ErrNotFound
	}
	return out, nil
}
