package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/hotel-room-holds/internal/domain"
	"github.com/robertarktes/hotel-room-holds/internal/observability"
)

// Inventory is what the API exposes of the inventory service.
type Inventory interface {
	AcquireHold(ctx context.Context, guestID int64, roomIDs []int64) (domain.Hold, error)
	ReleaseHold(ctx context.Context, guestID int64, roomIDs []int64) error
	ListAvailableRooms(ctx context.Context, guestID, hotelID int64, checkIn, checkOut domain.Date) ([]domain.Room, error)
	CreateBooking(ctx context.Context, guestID int64, req domain.BookingRequest) ([]domain.Booking, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Vouchers lists the discount vouchers a guest can apply.
type Vouchers interface {
	ActiveVouchers(ctx context.Context, now time.Time) ([]domain.Voucher, error)
}

// AuditTrail reads a guest's recorded hold and booking events.
type AuditTrail interface {
	History(ctx context.Context, guestID int64, limit int64) ([]domain.AuditEntry, error)
}

type Handlers struct {
	inv      Inventory
	vouchers Vouchers
	audit    AuditTrail
	deps     map[string]Pinger
	logger   observability.Logger
	now      func() time.Time
}

type HandlerOption func(*Handlers)

func WithVouchers(v Vouchers) HandlerOption {
	return func(h *Handlers) { h.vouchers = v }
}

func WithAuditTrail(a AuditTrail) HandlerOption {
	return func(h *Handlers) { h.audit = a }
}

func NewHandlers(inv Inventory, logger observability.Logger, deps map[string]Pinger, opts ...HandlerOption) *Handlers {
	h := &Handlers{inv: inv, deps: deps, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Envelope wraps every API response.
type Envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type holdResponse struct {
	HoldID    string  `json:"holdId"`
	RoomIDs   []int64 `json:"roomIds"`
	ExpiresAt string  `json:"expiresAt"`
	Seconds   int     `json:"holdSeconds"`
}

func writeJSON(w http.ResponseWriter, status int, message string, data any) {
	env := Envelope{Status: status, Message: message}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			status = http.StatusInternalServerError
			env = Envelope{Status: status, Message: "internal error"}
		} else {
			env.Data = raw
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrSerializationFailure):
		return http.StatusConflict
	case errors.Is(err, domain.ErrHoldExpired):
		return http.StatusGone
	}
	return http.StatusInternalServerError
}

// writeError maps domain errors to statuses. Client errors carry their own
// message; anything else is logged and hidden.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		requestLogger(r, h.logger).WithError(err).Error("request failed")
		msg = "internal error"
	}
	writeJSON(w, status, msg, nil)
}

func decodeRoomIDs(r *http.Request) ([]int64, error) {
	var ids []int64
	if err := json.NewDecoder(r.Body).Decode(&ids); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "body must be a JSON array of room ids"), domain.ErrInvalidInput)
	}
	return ids, nil
}

func (h *Handlers) HoldRooms(w http.ResponseWriter, r *http.Request) {
	guest, _ := GuestFromContext(r.Context())
	ids, err := decodeRoomIDs(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	hold, err := h.inv.AcquireHold(r.Context(), guest, ids)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "Rooms held", holdResponse{
		HoldID:    hold.ID.String(),
		RoomIDs:   hold.RoomIDs,
		ExpiresAt: hold.ExpiresAt.UTC().Format(time.RFC3339),
		Seconds:   int(domain.HoldDuration.Seconds()),
	})
}

func (h *Handlers) ReleaseRooms(w http.ResponseWriter, r *http.Request) {
	guest, _ := GuestFromContext(r.Context())
	ids, err := decodeRoomIDs(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.inv.ReleaseHold(r.Context(), guest, ids); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "Rooms released", nil)
}

func (h *Handlers) AvailableRooms(w http.ResponseWriter, r *http.Request) {
	guest, _ := GuestFromContext(r.Context())
	q := r.URL.Query()

	hotelID, err := strconv.ParseInt(q.Get("hotelId"), 10, 64)
	if err != nil {
		h.writeError(w, r, errors.Mark(errors.New("hotelId must be a number"), domain.ErrInvalidInput))
		return
	}
	checkIn, err := domain.ParseDate(q.Get("checkIn"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	checkOut, err := domain.ParseDate(q.Get("checkOut"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	rooms, err := h.inv.ListAvailableRooms(r.Context(), guest, hotelID, checkIn, checkOut)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if rooms == nil {
		rooms = []domain.Room{}
	}
	writeJSON(w, http.StatusOK, "OK", rooms)
}

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	guest, _ := GuestFromContext(r.Context())
	var req domain.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, errors.Mark(errors.Wrap(err, "malformed booking request"), domain.ErrInvalidInput))
		return
	}

	bookings, err := h.inv.CreateBooking(r.Context(), guest, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, "Booking created", bookings)
}

func (h *Handlers) ListVouchers(w http.ResponseWriter, r *http.Request) {
	vouchers, err := h.vouchers.ActiveVouchers(r.Context(), h.now())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if vouchers == nil {
		vouchers = []domain.Voucher{}
	}
	writeJSON(w, http.StatusOK, "Vouchers", vouchers)
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// GuestHistory returns the caller's own audit entries, newest first.
func (h *Handlers) GuestHistory(w http.ResponseWriter, r *http.Request) {
	guest, _ := GuestFromContext(r.Context())
	limit := int64(defaultHistoryLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			writeJSON(w, http.StatusBadRequest, "limit must be between 1 and 100", nil)
			return
		}
		limit = n
	}
	entries, err := h.audit.History(r.Context(), guest, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, "History", entries)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	for name, dep := range h.deps {
		if err := dep.Ping(r.Context()); err != nil {
			requestLogger(r, h.logger).WithError(err).WithField("dependency", name).Warn("not ready")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(name + " unavailable"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
