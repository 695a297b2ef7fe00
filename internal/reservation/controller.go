package reservation

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/hotel-room-holds/internal/domain"
	"github.com/robertarktes/hotel-room-holds/internal/observability"
)

// HoldSeconds is the countdown start value, mirroring the inventory TTL.
var HoldSeconds = int(domain.HoldDuration / time.Second)

type State int

const (
	StateIdle State = iota
	StateHolding
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHolding:
		return "holding"
	case StateReleased:
		return "released"
	}
	return "unknown"
}

// Step is the booking wizard position.
type Step int

const (
	StepSelectRooms Step = iota
	StepDetails
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepSelectRooms:
		return "select-rooms"
	case StepDetails:
		return "details"
	case StepDone:
		return "done"
	}
	return "unknown"
}

// Inventory is the subset of the inventory service the controller calls.
type Inventory interface {
	AcquireHold(ctx context.Context, roomIDs []int64) error
	ReleaseHold(ctx context.Context, roomIDs []int64) error
	ListAvailableRooms(ctx context.Context, hotelID int64, checkIn, checkOut domain.Date) ([]domain.Room, error)
}

// BookingSubmitter takes the finalized booking once the details step
// validates. The key is stable for one attempt so retries are deduplicated.
type BookingSubmitter interface {
	SubmitBooking(ctx context.Context, idempotencyKey string, req domain.BookingRequest) ([]domain.Booking, error)
}

// Attempt is the ephemeral record of one in-progress booking.
type Attempt struct {
	ID        uuid.UUID
	HotelID   int64
	CheckIn   domain.Date
	CheckOut  domain.Date
	Selection Selection
}

type Controller struct {
	inv       Inventory
	submitter BookingSubmitter
	log       observability.Logger
	newTicker TickerFunc
	now       func() time.Time

	releaseTimeout time.Duration

	mu          sync.Mutex
	attempt     Attempt
	state       State
	step        Step
	remaining   int
	acquiring   bool
	submitting  bool
	closed      bool
	gen         uint64
	timer       *countdown
	rooms       map[int64]domain.Room
	roomsLoaded bool
	notice      Notice

	notices  chan Notice
	releases sync.WaitGroup
}

type Option func(*Controller)

func WithLogger(l observability.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithTicker replaces the countdown timer source.
func WithTicker(f TickerFunc) Option {
	return func(c *Controller) { c.newTicker = f }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithReleaseTimeout bounds each best-effort release call.
func WithReleaseTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.releaseTimeout = d
		}
	}
}

func WithSubmitter(s BookingSubmitter) Option {
	return func(c *Controller) { c.submitter = s }
}

func NewController(inv Inventory, hotelID int64, checkIn, checkOut domain.Date, opts ...Option) *Controller {
	c := &Controller{
		inv:            inv,
		log:            observability.NewLoggerTo(io.Discard),
		newTicker:      newStdTicker,
		now:            time.Now,
		releaseTimeout: 5 * time.Second,
		attempt: Attempt{
			HotelID:   hotelID,
			CheckIn:   checkIn,
			CheckOut:  checkOut,
			Selection: NewSelection(),
		},
		rooms:   make(map[int64]domain.Room),
		notices: make(chan Notice, 32),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithField("hotel_id", hotelID)
	return c
}

// SelectRoom adds or removes a room while no hold is in place.
func (c *Controller) SelectRoom(roomID int64, selected bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.closed:
		return ErrClosed
	case c.state == StateHolding:
		c.noticeLocked(Warning, "Your rooms are on hold. Go back to change the selection.")
		return ErrSelectionFrozen
	case c.acquiring:
		c.noticeLocked(Warning, "Please wait while your rooms are being held.")
		return ErrAcquireInFlight
	case c.state == StateReleased:
		return ErrAttemptFinished
	case roomID <= 0:
		return errors.Wrapf(ErrInvalidRoom, "room %d", roomID)
	}

	if !selected {
		c.attempt.Selection.Remove(roomID)
		return nil
	}
	if c.roomsLoaded {
		room, ok := c.rooms[roomID]
		if !ok || !room.Available {
			c.noticeLocked(Warning, "This room is already booked and cannot be selected.")
			return errors.Wrapf(ErrRoomUnavailable, "room %d", roomID)
		}
	}
	c.attempt.Selection.Add(roomID)
	return nil
}

// ProceedToDetails asks the inventory to hold the selected rooms and, on
// success, starts the countdown and moves the wizard to the details step.
// It is the only operation that creates a hold.
func (c *Controller) ProceedToDetails(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.acquiring:
		c.mu.Unlock()
		return ErrAcquireInFlight
	case c.state != StateIdle:
		c.mu.Unlock()
		return ErrNotIdle
	case c.attempt.Selection.Len() == 0:
		c.noticeLocked(Warning, "Please select at least one room.")
		c.mu.Unlock()
		return ErrEmptySelection
	}
	ids := c.attempt.Selection.IDs()
	c.acquiring = true
	c.mu.Unlock()

	// A release left over from an abandoned hold is scoped by room, so it
	// must land before the new hold does.
	err := c.awaitReleases(ctx)
	if err == nil {
		err = c.inv.AcquireHold(ctx, ids)
	}

	c.mu.Lock()
	c.acquiring = false

	if err != nil {
		c.log.WithError(err).WithField("room_ids", ids).Warn("hold acquisition failed")
		c.noticeLocked(Error, holdFailureMessage(err))
		c.mu.Unlock()
		return errors.Wrap(err, "acquire hold")
	}
	if c.closed {
		c.mu.Unlock()
		c.release(context.Background(), ids, "closed")
		return ErrClosed
	}
	defer c.mu.Unlock()

	c.attempt.ID = uuid.New()
	c.state = StateHolding
	c.step = StepDetails
	c.remaining = HoldSeconds
	c.startCountdownLocked()
	c.log.WithField("room_ids", ids).WithField("attempt_id", c.attempt.ID).Info("rooms held")
	c.noticeLocked(Info, "Rooms held for "+FormatRemaining(c.remaining)+".")
	return nil
}

// ReturnToSelection gives the hold back and steps the wizard back. The
// selection is kept so the guest can adjust it and retry. The release is
// best-effort: its outcome never changes the transition.
func (c *Controller) ReturnToSelection(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateHolding {
		c.mu.Unlock()
		return ErrNotHolding
	}
	c.stopCountdownLocked()
	c.state = StateIdle
	c.step = StepSelectRooms
	c.remaining = 0
	ids := c.attempt.Selection.IDs()
	c.mu.Unlock()

	c.release(ctx, ids, "return-to-selection")
	return nil
}

// Reset starts a new attempt with an empty selection.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	if c.acquiring {
		c.mu.Unlock()
		return ErrAcquireInFlight
	}
	wasHolding := c.state == StateHolding
	ids := c.attempt.Selection.IDs()
	c.stopCountdownLocked()
	c.state = StateIdle
	c.step = StepSelectRooms
	c.remaining = 0
	c.attempt.ID = uuid.Nil
	c.attempt.Selection.Clear()
	c.mu.Unlock()

	if wasHolding {
		c.release(ctx, ids, "reset")
	}
	return nil
}

// SetStay changes the dates of the attempt. Availability must be refreshed
// afterwards.
func (c *Controller) SetStay(checkIn, checkOut domain.Date) error {
	if err := domain.ValidateStay(checkIn, checkOut); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle || c.acquiring {
		return ErrNotIdle
	}
	c.attempt.CheckIn = checkIn
	c.attempt.CheckOut = checkOut
	c.roomsLoaded = false
	return nil
}

// Close tears the controller down: the countdown is cleared and in-flight
// best-effort releases are awaited. It does not release a live hold; the
// host signals UnloadRequested for that.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.stopCountdownLocked()
	c.mu.Unlock()
	c.releases.Wait()
}

func (c *Controller) release(ctx context.Context, ids []int64, reason string) {
	ctx, cancel := context.WithTimeout(ctx, c.releaseTimeout)
	defer cancel()
	if err := c.inv.ReleaseHold(ctx, ids); err != nil {
		c.log.WithError(err).WithField("room_ids", ids).WithField("reason", reason).Warn("hold release failed, server expiry will reclaim the rooms")
		return
	}
	c.log.WithField("room_ids", ids).WithField("reason", reason).Info("hold released")
}

// awaitReleases blocks until in-flight best-effort releases finish. Each
// of them is bounded by releaseTimeout.
func (c *Controller) awaitReleases(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.releases.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// releaseAsyncLocked fires a release without waiting for it.
func (c *Controller) releaseAsyncLocked(ids []int64, reason string) {
	c.releases.Add(1)
	go func() {
		defer c.releases.Done()
		c.release(context.Background(), ids, reason)
	}()
}

func holdFailureMessage(err error) string {
	var msg interface{ UserMessage() string }
	if errors.As(err, &msg) && msg.UserMessage() != "" {
		return msg.UserMessage()
	}
	return "Could not hold the rooms. Please try again."
}

// View is the render model of the controller.
type View struct {
	State          State
	Step           Step
	Remaining      int
	RemainingLabel string
	Selection      []int64
	Rooms          []domain.Room
	Subtotal       float64
	Acquiring      bool
	Submitting     bool
	Notice         Notice
}

func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	rooms := make([]domain.Room, 0, len(c.rooms))
	for _, r := range c.rooms {
		rooms = append(rooms, r)
	}
	sortRooms(rooms)

	return View{
		State:          c.state,
		Step:           c.step,
		Remaining:      c.remaining,
		RemainingLabel: FormatRemaining(c.remaining),
		Selection:      c.attempt.Selection.IDs(),
		Rooms:          rooms,
		Subtotal:       c.subtotalLocked(),
		Acquiring:      c.acquiring,
		Submitting:     c.submitting,
		Notice:         c.notice,
	}
}

func (c *Controller) subtotalLocked() float64 {
	selected := make([]domain.Room, 0, c.attempt.Selection.Len())
	for _, id := range c.attempt.Selection.IDs() {
		if r, ok := c.rooms[id]; ok {
			selected = append(selected, r)
		}
	}
	return domain.Subtotal(selected, domain.Nights(c.attempt.CheckIn, c.attempt.CheckOut))
}
