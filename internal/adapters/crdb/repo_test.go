package crdb_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/hotel-room-holds/internal/adapters/crdb"
	"github.com/robertarktes/hotel-room-holds/internal/domain"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startCockroach(t *testing.T) *crdb.Repository {
	t.Helper()
	ctx := context.Background()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp", "8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { crdbContainer.Terminate(ctx) })

	host, err := crdbContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := crdbContainer.MappedPort(ctx, "26257")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, "postgresql://root@"+host+":"+port.Port()+"/defaultdb?sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	repo := crdb.NewRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	return repo
}

func TestRepository_CreateHold(t *testing.T) {
	ctx := context.Background()
	repo := startCockroach(t)

	hold := domain.Hold{
		ID:        uuid.New(),
		GuestID:   1,
		RoomIDs:   []int64{101, 102},
		ExpiresAt: time.Now().Add(domain.HoldDuration),
	}
	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.CreateHold(ctx, tx, hold, time.Now())
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	t.Run("other guest conflicts", func(t *testing.T) {
		conflictHold := domain.Hold{
			ID:        uuid.New(),
			GuestID:   2,
			RoomIDs:   []int64{102},
			ExpiresAt: time.Now().Add(domain.HoldDuration),
		}
		err := repo.WithTx(ctx, func(tx pgx.Tx) error {
			return repo.CreateHold(ctx, tx, conflictHold, time.Now())
		})
		if !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected conflict error, got %v", err)
		}
	})

	t.Run("same guest supersedes", func(t *testing.T) {
		again := domain.Hold{
			ID:        uuid.New(),
			GuestID:   1,
			RoomIDs:   []int64{101, 102},
			ExpiresAt: time.Now().Add(domain.HoldDuration),
		}
		err := repo.WithTx(ctx, func(tx pgx.Tx) error {
			return repo.CreateHold(ctx, tx, again, time.Now())
		})
		if err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("release frees the rooms", func(t *testing.T) {
		var released int64
		err := repo.WithTx(ctx, func(tx pgx.Tx) error {
			var err error
			released, err = repo.ReleaseHolds(ctx, tx, 1, []int64{101, 102})
			return err
		})
		if err != nil {
			t.Fatal(err)
		}
		if released != 2 {
			t.Errorf("expected 2 released rows, got %d", released)
		}
	})
}

func TestRepository_CreateHoldSweepsByGivenClock(t *testing.T) {
	ctx := context.Background()
	repo := startCockroach(t)

	now := time.Now()
	first := domain.Hold{
		ID:        uuid.New(),
		GuestID:   6,
		RoomIDs:   []int64{401},
		ExpiresAt: now.Add(domain.HoldDuration),
	}
	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.CreateHold(ctx, tx, first, now)
	})
	if err != nil {
		t.Fatal(err)
	}

	later := now.Add(domain.HoldDuration + time.Second)
	second := domain.Hold{
		ID:        uuid.New(),
		GuestID:   7,
		RoomIDs:   []int64{401},
		ExpiresAt: later.Add(domain.HoldDuration),
	}
	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.CreateHold(ctx, tx, second, now)
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict while the first hold is live, got %v", err)
	}

	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.CreateHold(ctx, tx, second, later)
	})
	if err != nil {
		t.Fatalf("expected the lapsed hold to be swept at %v, got %v", later, err)
	}

	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		held, err := repo.HeldRoomIDs(ctx, tx, 7, []int64{401}, later)
		if err != nil {
			return err
		}
		if len(held) != 1 {
			t.Errorf("expected room 401 held by guest 7, got %v", held)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRepository_ExpiredHolds(t *testing.T) {
	ctx := context.Background()
	repo := startCockroach(t)

	expired := domain.Hold{
		ID:        uuid.New(),
		GuestID:   3,
		RoomIDs:   []int64{201, 202},
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	live := domain.Hold{
		ID:        uuid.New(),
		GuestID:   4,
		RoomIDs:   []int64{203},
		ExpiresAt: time.Now().Add(domain.HoldDuration),
	}
	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		if err := repo.CreateHold(ctx, tx, live, time.Now()); err != nil {
			return err
		}
		return repo.CreateHold(ctx, tx, expired, time.Now())
	})
	if err != nil {
		t.Fatal(err)
	}

	holds, err := repo.GetExpiredHolds(ctx, time.Now(), 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(holds) != 1 || holds[0].ID != expired.ID || len(holds[0].RoomIDs) != 2 {
		t.Fatalf("expected the expired hold with 2 rooms, got %+v", holds)
	}

	var n int64
	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		n, err = repo.MarkExpired(ctx, tx, expired.ID, time.Now())
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 expired rows, got %d", n)
	}

	holds, err = repo.GetExpiredHolds(ctx, time.Now(), 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(holds) != 0 {
		t.Errorf("expected no expired holds left, got %d", len(holds))
	}
}

func TestRepository_CreateBookings(t *testing.T) {
	ctx := context.Background()
	repo := startCockroach(t)

	checkIn := domain.NewDate(2030, time.June, 1)
	checkOut := domain.NewDate(2030, time.June, 3)

	hold := domain.Hold{
		ID:        uuid.New(),
		GuestID:   5,
		RoomIDs:   []int64{301},
		ExpiresAt: time.Now().Add(domain.HoldDuration),
	}
	booking := domain.Booking{
		ID:           uuid.New(),
		GuestID:      5,
		HotelID:      9,
		RoomID:       301,
		CheckInDate:  checkIn,
		CheckOutDate: checkOut,
		TotalPrice:   240,
		PaymentType:  domain.PaymentCard,
		Status:       domain.BookingStatusPending,
		CreatedAt:    time.Now().UTC(),
	}

	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		if err := repo.CreateHold(ctx, tx, hold, time.Now()); err != nil {
			return err
		}
		held, err := repo.HeldRoomIDs(ctx, tx, 5, []int64{301}, time.Now())
		if err != nil {
			return err
		}
		if len(held) != 1 {
			t.Errorf("expected room 301 held, got %v", held)
		}
		if err := repo.CreateBookings(ctx, tx, []domain.Booking{booking}); err != nil {
			return err
		}
		return repo.ConvertHolds(ctx, tx, 5, []int64{301})
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	fetched, err := repo.GetBookings(ctx, []uuid.UUID{booking.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(fetched) != 1 || fetched[0].CheckInDate.String() != "2030-06-01" || fetched[0].TotalPrice != 240 {
		t.Errorf("unexpected booking %+v", fetched)
	}

	booked, err := repo.BookedRoomIDs(ctx, 9, domain.NewDate(2030, time.June, 2), domain.NewDate(2030, time.June, 5))
	if err != nil {
		t.Fatal(err)
	}
	if len(booked) != 1 || booked[0] != 301 {
		t.Errorf("expected room 301 booked for an overlapping stay, got %v", booked)
	}

	booked, err = repo.BookedRoomIDs(ctx, 9, checkOut, domain.NewDate(2030, time.June, 5))
	if err != nil {
		t.Fatal(err)
	}
	if len(booked) != 0 {
		t.Errorf("check-out day must be free for the next stay, got %v", booked)
	}
}
