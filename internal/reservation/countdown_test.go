package reservation

import (
	"context"
	"testing"
	"time"
)

func TestCountdown_ExpiresAfter600Ticks(t *testing.T) {
	c, _ := newTestController(t, newFakeInventory())
	mustHold(t, c, 1, 2)
	gen := currentGen(c)

	for i := 0; i < 599; i++ {
		c.tick(gen)
	}
	v := c.Snapshot()
	if v.State != StateHolding || v.Remaining != 1 {
		t.Fatalf("expected holding with 1s left, got %v %d", v.State, v.Remaining)
	}

	c.tick(gen)
	v = c.Snapshot()
	if v.State != StateIdle || v.Step != StepSelectRooms {
		t.Fatalf("expected idle on the first step, got %v/%v", v.State, v.Step)
	}
	if len(v.Selection) != 0 {
		t.Errorf("expected empty selection, got %v", v.Selection)
	}
	if v.Notice.Level != Warning || v.Notice.Message != "Room hold time expired. Please select your rooms again." {
		t.Errorf("expected expiry warning, got %+v", v.Notice)
	}

	// one tick past zero changes nothing
	c.tick(gen)
	if got := c.Snapshot().Remaining; got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}

func TestCountdown_TickerDrivesDecrement(t *testing.T) {
	c, tf := newTestController(t, newFakeInventory())
	mustHold(t, c, 3)

	tk := tf.last()
	tk.ch <- time.Now()
	tk.ch <- time.Now()
	waitFor(t, func() bool { return c.Snapshot().Remaining == 598 })
}

func TestCountdown_ExpiryDoesNotCallInventory(t *testing.T) {
	inv := newFakeInventory()
	c, _ := newTestController(t, inv)
	mustHold(t, c, 1)
	gen := currentGen(c)
	for i := 0; i < HoldSeconds; i++ {
		c.tick(gen)
	}
	if inv.releaseCount() != 0 {
		t.Errorf("expected no release on local expiry, got %d", inv.releaseCount())
	}
}

func TestCountdown_ClearIsIdempotent(t *testing.T) {
	c, tf := newTestController(t, newFakeInventory())
	mustHold(t, c, 1)
	first := currentGen(c)

	c.mu.Lock()
	cd := c.timer
	c.stopCountdownLocked()
	c.stopCountdownLocked()
	cd.cancel()
	c.mu.Unlock()
	waitFor(t, tf.tickers[0].isStopped)

	if err := c.ReturnToSelection(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.ProceedToDetails(context.Background()); err != nil {
		t.Fatal(err)
	}
	second := currentGen(c)
	if second == first {
		t.Fatal("expected a new countdown generation")
	}

	// stale ticks never touch the restarted countdown
	c.tick(first)
	c.tick(first)
	c.tick(second)
	if got := c.Snapshot().Remaining; got != 599 {
		t.Errorf("expected exactly one decrement, got %d", got)
	}
	c.Close()
	c.Close()
}

func TestFormatRemaining(t *testing.T) {
	cases := map[int]string{600: "10:00", 400: "06:40", 59: "00:59", 0: "00:00", -3: "00:00"}
	for in, want := range cases {
		if got := FormatRemaining(in); got != want {
			t.Errorf("FormatRemaining(%d) = %s, want %s", in, got, want)
		}
	}
}
