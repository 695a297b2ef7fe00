package reservation

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/robertarktes/hotel-room-holds/internal/domain"
)

var validate = validator.New()

// Details is what the guest fills in on the details step.
type Details struct {
	PaymentType domain.PaymentType
	Voucher     *domain.Voucher
	Notes       string
}

// Quote prices the current selection with an optional voucher.
func (c *Controller) Quote(v *domain.Voucher) (subtotal, discount, total float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	subtotal = c.subtotalLocked()
	if v != nil {
		discount = v.Discount(subtotal, c.now())
	}
	return subtotal, discount, domain.Total(subtotal, discount)
}

// Submit validates the details and hands the booking off. Only allowed
// while rooms are held; the outcome is fed to OnBookingSubmitted.
func (c *Controller) Submit(ctx context.Context, d Details) ([]domain.Booking, error) {
	c.mu.Lock()
	switch {
	case c.submitter == nil:
		c.mu.Unlock()
		return nil, errors.New("no booking submitter configured")
	case c.submitting:
		c.mu.Unlock()
		return nil, ErrSubmitInFlight
	case c.state != StateHolding:
		c.mu.Unlock()
		return nil, ErrNotHolding
	}

	req, err := c.bookingRequestLocked(d)
	if err != nil {
		c.noticeLocked(Error, err.Error())
		c.mu.Unlock()
		return nil, err
	}
	attemptID := c.attempt.ID
	key, err := submissionKey(attemptID, req)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.submitting = true
	c.mu.Unlock()

	bookings, err := c.submitter.SubmitBooking(ctx, key, req)

	c.mu.Lock()
	c.submitting = false
	c.mu.Unlock()

	c.OnBookingSubmitted(err == nil)
	if err != nil {
		c.log.WithError(err).WithField("attempt_id", attemptID).WithField("idempotency_key", key).Warn("booking submission failed")
		c.mu.Lock()
		if c.state == StateHolding {
			c.noticeLocked(Error, submitFailureMessage(err))
		}
		c.mu.Unlock()
		return nil, errors.Wrap(err, "submit booking")
	}
	return bookings, nil
}

// submissionKey derives the Idempotency-Key from the attempt and the request
// body: resending the same booking reuses the key, a corrected one gets a
// fresh key.
func submissionKey(attempt uuid.UUID, req domain.BookingRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", errors.Wrap(err, "encode booking request")
	}
	return uuid.NewSHA1(attempt, payload).String(), nil
}

func (c *Controller) bookingRequestLocked(d Details) (domain.BookingRequest, error) {
	if err := domain.ValidateStay(c.attempt.CheckIn, c.attempt.CheckOut); err != nil {
		return domain.BookingRequest{}, err
	}

	subtotal := c.subtotalLocked()
	var discount float64
	var voucherID *int64
	if d.Voucher != nil {
		now := c.now()
		if !d.Voucher.ExpiredDate.IsZero() && d.Voucher.ExpiredDate.Before(now) {
			return domain.BookingRequest{}, errors.Mark(errors.New("The voucher has expired. Choose another voucher or remove it."), domain.ErrInvalidInput)
		}
		if subtotal < d.Voucher.PriceCondition {
			return domain.BookingRequest{}, errors.Mark(errors.Newf("The order must be at least %.0f to use this voucher.", d.Voucher.PriceCondition), domain.ErrInvalidInput)
		}
		discount = d.Voucher.Discount(subtotal, now)
		id := d.Voucher.ID
		voucherID = &id
	}

	req := domain.BookingRequest{
		HotelID:      c.attempt.HotelID,
		RoomIDs:      c.attempt.Selection.IDs(),
		CheckInDate:  c.attempt.CheckIn,
		CheckOutDate: c.attempt.CheckOut,
		PaymentType:  d.PaymentType,
		VoucherID:    voucherID,
		TotalPrice:   domain.Total(subtotal, discount),
		Notes:        d.Notes,
	}
	if err := validate.Struct(req); err != nil {
		return domain.BookingRequest{}, errors.Mark(errors.Wrap(err, "invalid booking details"), domain.ErrInvalidInput)
	}
	return req, nil
}

// OnBookingSubmitted applies the submission outcome. A successful booking
// owns the rooms from now on. A failed one keeps the hold while time
// remains.
func (c *Controller) OnBookingSubmitted(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if success {
		c.stopCountdownLocked()
		c.state = StateReleased
		c.step = StepDone
		c.remaining = 0
		c.attempt.Selection.Clear()
		c.noticeLocked(Info, "Booking confirmed.")
		return
	}
	if c.state == StateHolding && c.remaining <= 0 {
		c.expireLocked()
	}
}

func submitFailureMessage(err error) string {
	var msg interface{ UserMessage() string }
	if errors.As(err, &msg) && msg.UserMessage() != "" {
		return msg.UserMessage()
	}
	return "Booking failed. You can try again or go back."
}
