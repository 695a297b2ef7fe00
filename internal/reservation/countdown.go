package reservation

import (
	"fmt"
	"sync"
	"time"
)

// Ticker is the repeating timer behind the hold countdown.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFunc func(d time.Duration) Ticker

type stdTicker struct {
	t *time.Ticker
}

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

func newStdTicker(d time.Duration) Ticker {
	return stdTicker{t: time.NewTicker(d)}
}

// countdown is one scheduled run of the one second tick. cancel may be called
// any number of times.
type countdown struct {
	gen  uint64
	stop chan struct{}
	once sync.Once
}

func (c *countdown) cancel() {
	c.once.Do(func() { close(c.stop) })
}

// startCountdownLocked begins a fresh countdown generation. Ticks from an
// earlier generation are ignored by tick.
func (c *Controller) startCountdownLocked() {
	c.stopCountdownLocked()
	c.gen++
	cd := &countdown{gen: c.gen, stop: make(chan struct{})}
	c.timer = cd

	t := c.newTicker(time.Second)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-cd.stop:
				return
			case <-t.C():
				c.tick(cd.gen)
			}
		}
	}()
}

func (c *Controller) stopCountdownLocked() {
	if c.timer == nil {
		return
	}
	c.timer.cancel()
	c.timer = nil
}

// tick decrements the remaining hold time for generation gen.
func (c *Controller) tick(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateHolding || c.timer == nil || c.timer.gen != gen {
		return
	}
	c.remaining--
	if c.remaining <= 0 {
		c.expireLocked()
	}
}

// expireLocked is the local expiry path. The inventory expires the hold on its
// own timer, so nothing is sent to it here.
func (c *Controller) expireLocked() {
	c.stopCountdownLocked()
	c.log.WithField("room_ids", c.attempt.Selection.IDs()).Warn("local hold countdown expired")
	c.remaining = 0
	c.state = StateIdle
	c.step = StepSelectRooms
	c.attempt.Selection.Clear()
	c.noticeLocked(Warning, "Room hold time expired. Please select your rooms again.")
}

// FormatRemaining renders seconds as mm:ss.
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
