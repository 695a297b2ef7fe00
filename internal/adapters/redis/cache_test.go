package redis_test

import (
	"context"
	"testing"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	redisadapter "github.com/robertarktes/hotel-room-holds/internal/adapters/redis"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redisclient.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	client := redisclient.NewClient(&redisclient.Options{Addr: endpoint})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestCache_LockRoomsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	cache := redisadapter.NewCache(startRedis(t))

	conflict, ok, err := cache.LockRooms(ctx, "1", []int64{5, 7}, time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected lock, got ok=%v conflict=%d err=%v", ok, conflict, err)
	}

	conflict, ok, err = cache.LockRooms(ctx, "2", []int64{3, 7}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if ok || conflict != 7 {
		t.Fatalf("expected conflict on room 7, got ok=%v conflict=%d", ok, conflict)
	}

	holders, err := cache.Holders(ctx, []int64{3, 5, 7})
	if err != nil {
		t.Fatal(err)
	}
	if _, held := holders[3]; held {
		t.Error("room 3 must not be locked after a failed acquisition")
	}
	if holders[5] != "1" || holders[7] != "1" {
		t.Errorf("expected guest 1 to hold 5 and 7, got %v", holders)
	}

	// the same guest refreshes its own locks
	if _, ok, err := cache.LockRooms(ctx, "1", []int64{7}, time.Minute); err != nil || !ok {
		t.Fatalf("expected refresh, got ok=%v err=%v", ok, err)
	}
}

func TestCache_UnlockRoomsOnlyOwn(t *testing.T) {
	ctx := context.Background()
	cache := redisadapter.NewCache(startRedis(t))

	if _, ok, err := cache.LockRooms(ctx, "1", []int64{1, 2}, time.Minute); err != nil || !ok {
		t.Fatal("lock failed")
	}

	n, err := cache.UnlockRooms(ctx, "2", []int64{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("expected nothing unlocked for another guest, got %d", n)
	}

	n, err = cache.UnlockRooms(ctx, "1", []int64{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 unlocked, got %d", n)
	}
}

func TestCache_LocksExpire(t *testing.T) {
	ctx := context.Background()
	cache := redisadapter.NewCache(startRedis(t))

	if _, ok, err := cache.LockRooms(ctx, "1", []int64{9}, 200*time.Millisecond); err != nil || !ok {
		t.Fatal("lock failed")
	}
	time.Sleep(400 * time.Millisecond)

	if _, ok, err := cache.LockRooms(ctx, "2", []int64{9}, time.Minute); err != nil || !ok {
		t.Fatalf("expected the expired lock to be free, got ok=%v err=%v", ok, err)
	}
}
