package reservation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/robertarktes/hotel-room-holds/internal/domain"
)

type fakeInventory struct {
	mu           sync.Mutex
	acquireErr   error
	releaseErr   error
	blockRelease bool
	acquireGate  chan struct{}
	rooms        []domain.Room
	listErr      error

	acquireCalls [][]int64
	releaseCalls [][]int64
	listCalls    int
	released     chan []int64
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{released: make(chan []int64, 16)}
}

func (f *fakeInventory) AcquireHold(ctx context.Context, roomIDs []int64) error {
	f.mu.Lock()
	f.acquireCalls = append(f.acquireCalls, roomIDs)
	gate, err := f.acquireGate, f.acquireErr
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return err
}

func (f *fakeInventory) ReleaseHold(ctx context.Context, roomIDs []int64) error {
	f.mu.Lock()
	f.releaseCalls = append(f.releaseCalls, roomIDs)
	block, err := f.blockRelease, f.releaseErr
	f.mu.Unlock()
	defer func() { f.released <- roomIDs }()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (f *fakeInventory) ListAvailableRooms(ctx context.Context, hotelID int64, checkIn, checkOut domain.Date) ([]domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return f.rooms, f.listErr
}

func (f *fakeInventory) acquireCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.acquireCalls)
}

func (f *fakeInventory) releaseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.releaseCalls)
}

// manualTicker only ticks when the test sends on ch.
type manualTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }

func (m *manualTicker) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
}

func (m *manualTicker) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

type tickerFactory struct {
	mu      sync.Mutex
	tickers []*manualTicker
}

func (f *tickerFactory) New(time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &manualTicker{ch: make(chan time.Time)}
	f.tickers = append(f.tickers, t)
	return t
}

func (f *tickerFactory) last() *manualTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tickers) == 0 {
		return nil
	}
	return f.tickers[len(f.tickers)-1]
}

var (
	stayIn  = domain.NewDate(2025, 6, 1)
	stayOut = domain.NewDate(2025, 6, 3)
)

func newTestController(t *testing.T, inv *fakeInventory, opts ...Option) (*Controller, *tickerFactory) {
	t.Helper()
	tf := &tickerFactory{}
	opts = append([]Option{WithTicker(tf.New), WithReleaseTimeout(50 * time.Millisecond)}, opts...)
	c := NewController(inv, 1, stayIn, stayOut, opts...)
	t.Cleanup(c.Close)
	return c, tf
}

func mustSelect(t *testing.T, c *Controller, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		if err := c.SelectRoom(id, true); err != nil {
			t.Fatalf("select room %d: %v", id, err)
		}
	}
}

func mustHold(t *testing.T, c *Controller, ids ...int64) {
	t.Helper()
	mustSelect(t, c, ids...)
	if err := c.ProceedToDetails(context.Background()); err != nil {
		t.Fatalf("proceed: %v", err)
	}
}

// currentGen returns the generation of the running countdown.
func currentGen(c *Controller) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
