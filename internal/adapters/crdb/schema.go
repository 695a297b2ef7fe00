package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS holds (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		hold_id UUID NOT NULL,
		guest_id INT8 NOT NULL,
		room_id INT8 NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('ACTIVE', 'RELEASED', 'EXPIRED', 'CONVERTED')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		INDEX holds_by_hold (hold_id),
		INDEX holds_by_expiry (status, expires_at)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS holds_active_room ON holds (room_id) WHERE status = 'ACTIVE'`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id UUID PRIMARY KEY,
		guest_id INT8 NOT NULL,
		hotel_id INT8 NOT NULL,
		room_id INT8 NOT NULL,
		check_in DATE NOT NULL,
		check_out DATE NOT NULL,
		total_price DECIMAL NOT NULL,
		payment_type TEXT NOT NULL CHECK (payment_type IN ('CARD', 'WALLET', 'BANK_TRANSFER')),
		voucher_id INT8,
		notes TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL CHECK (status IN ('PENDING', 'CONFIRMED', 'CANCELLED')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		INDEX bookings_by_room (room_id, check_in, check_out),
		INDEX bookings_by_hotel (hotel_id, check_in, check_out)
	)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id UUID PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id UUID NOT NULL,
		event_type TEXT NOT NULL,
		payload_json JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		published_at TIMESTAMPTZ,
		status TEXT NOT NULL DEFAULT 'NEW' CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
		dedupe_key TEXT NOT NULL,
		INDEX outbox_pending (status, created_at)
	)`,
}

// Migrate creates the tables the inventory service needs. It is idempotent.
func (r *Repository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return errors.Wrap(err, "migrate")
		}
	}
	return nil
}
