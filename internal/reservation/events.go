package reservation

import "context"

// HostEvent is a lifecycle signal from the environment hosting the
// controller.
type HostEvent int

const (
	// EventHidden fires when the booking view is no longer visible.
	EventHidden HostEvent = iota
	// EventUnloadRequested fires when the host is about to go away.
	EventUnloadRequested
)

func (e HostEvent) String() string {
	switch e {
	case EventHidden:
		return "hidden"
	case EventUnloadRequested:
		return "unload-requested"
	}
	return "unknown"
}

// NeedsLeaveConfirmation reports whether leaving should be confirmed by the
// guest first: rooms are held and the selection is not empty.
func (c *Controller) NeedsLeaveConfirmation() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateHolding && c.attempt.Selection.Len() > 0
}

// OnAbandon fires a release for the held rooms without waiting for it. The
// host may be gone before the call finishes; the inventory's own expiry is
// the backstop.
func (c *Controller) OnAbandon(ev HostEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.state != StateHolding {
		return
	}
	c.stopCountdownLocked()
	c.state = StateIdle
	c.step = StepSelectRooms
	c.remaining = 0
	ids := c.attempt.Selection.IDs()
	c.log.WithField("room_ids", ids).WithField("event", ev.String()).Info("booking abandoned, releasing hold")
	c.noticeLocked(Warning, "Your rooms were released when you left the booking.")
	c.releaseAsyncLocked(ids, ev.String())
}

// Watch subscribes to host events until ctx is done or events is closed.
func (c *Controller) Watch(ctx context.Context, events <-chan HostEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.OnAbandon(ev)
		}
	}
}
