package mongo_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	mongoadapter "github.com/robertarktes/hotel-room-holds/internal/adapters/mongo"
	"github.com/robertarktes/hotel-room-holds/internal/domain"
	"github.com/robertarktes/hotel-room-holds/internal/observability"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func startMongo(t *testing.T) *mongo.Database {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "mongodb")
	if err != nil {
		t.Fatal(err)
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(endpoint))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Disconnect(ctx) })
	return client.Database("hotel_test")
}

func TestCatalogRepository_Rooms(t *testing.T) {
	ctx := context.Background()
	db := startMongo(t)
	catalog := mongoadapter.NewCatalogRepository(db, observability.NewLoggerTo(io.Discard))

	if err := catalog.EnsureIndexes(ctx); err != nil {
		t.Fatal(err)
	}
	for _, doc := range []mongoadapter.RoomDoc{
		{ID: 12, HotelID: 1, RoomNumber: "201", Type: "DOUBLE", Capacity: 2, PricePerNight: 90},
		{ID: 11, HotelID: 1, RoomNumber: "101", Type: "SINGLE", Capacity: 1, PricePerNight: 60},
		{ID: 21, HotelID: 2, RoomNumber: "101", Type: "SUITE", Capacity: 4, PricePerNight: 300},
	} {
		if err := catalog.UpsertRoom(ctx, doc); err != nil {
			t.Fatal(err)
		}
	}

	rooms, err := catalog.RoomsByHotel(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(rooms) != 2 || rooms[0].ID != 11 || rooms[1].ID != 12 {
		t.Fatalf("expected rooms 11 and 12 in order, got %+v", rooms)
	}
	if rooms[1].PricePerNight != 90 || rooms[1].Type != "DOUBLE" {
		t.Errorf("unexpected room fields %+v", rooms[1])
	}

	rooms, err = catalog.RoomsByIDs(ctx, []int64{21, 99})
	if err != nil {
		t.Fatal(err)
	}
	if len(rooms) != 1 || rooms[0].ID != 21 {
		t.Errorf("expected only room 21, got %+v", rooms)
	}
}

func TestAuditLogger_IgnoresRedelivery(t *testing.T) {
	ctx := context.Background()
	db := startMongo(t)
	audit := mongoadapter.NewAuditLogger(db, observability.NewLoggerTo(io.Discard))

	data := map[string]interface{}{"room_ids": []int64{1, 2}}
	for i := 0; i < 2; i++ {
		if err := audit.LogEvent(ctx, "hold.acquired:abc", "hold.acquired", 7, data); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}

	history, err := audit.History(ctx, 7, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(history))
	}
	if history[0].ID != "hold.acquired:abc" || history[0].Action != "hold.acquired" {
		t.Errorf("unexpected entry %+v", history[0])
	}

	other, err := audit.History(ctx, 8, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Errorf("expected no entries for another guest, got %d", len(other))
	}
}

func TestCatalogRepository_Vouchers(t *testing.T) {
	ctx := context.Background()
	db := startMongo(t)
	catalog := mongoadapter.NewCatalogRepository(db, observability.NewLoggerTo(io.Discard))
	now := time.Date(2030, 5, 20, 12, 0, 0, 0, time.UTC)

	for _, doc := range []mongoadapter.VoucherDoc{
		{ID: 1, Code: "SUMMER10", PercentDiscount: 10, PriceCondition: 500, ExpiredDate: now.Add(24 * time.Hour)},
		{ID: 2, Code: "OLD20", PercentDiscount: 20, ExpiredDate: now.Add(-time.Hour)},
		{ID: 3, Code: "WELCOME5", PercentDiscount: 5},
	} {
		if err := catalog.UpsertVoucher(ctx, doc); err != nil {
			t.Fatal(err)
		}
	}

	active, err := catalog.ActiveVouchers(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 || active[0].Code != "WELCOME5" || active[1].Code != "SUMMER10" {
		t.Fatalf("expected WELCOME5 then SUMMER10, got %+v", active)
	}

	v, err := catalog.VoucherByID(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if v.PercentDiscount != 10 || v.PriceCondition != 500 {
		t.Errorf("unexpected voucher %+v", v)
	}

	if _, err := catalog.VoucherByID(ctx, 99); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
