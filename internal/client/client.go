// Package client talks to the inventory service API on behalf of the
// reservation controller.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/hotel-room-holds/internal/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// APIError is a non-2xx answer. Message is the server text meant for the
// guest, e.g. "room 7 is already held".
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("inventory api: %d: %s", e.Status, e.Message)
}

func (e *APIError) UserMessage() string {
	return e.Message
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) AcquireHold(ctx context.Context, roomIDs []int64) error {
	return c.do(ctx, http.MethodPut, "/api/v1/rooms/hold", roomIDs, nil, nil)
}

func (c *Client) ReleaseHold(ctx context.Context, roomIDs []int64) error {
	return c.do(ctx, http.MethodPut, "/api/v1/rooms/release", roomIDs, nil, nil)
}

func (c *Client) ListAvailableRooms(ctx context.Context, hotelID int64, checkIn, checkOut domain.Date) ([]domain.Room, error) {
	q := url.Values{}
	q.Set("hotelId", strconv.FormatInt(hotelID, 10))
	q.Set("checkIn", checkIn.String())
	q.Set("checkOut", checkOut.String())

	var rooms []domain.Room
	if err := c.do(ctx, http.MethodGet, "/api/v1/rooms/available?"+q.Encode(), nil, nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (c *Client) SubmitBooking(ctx context.Context, idempotencyKey string, req domain.BookingRequest) ([]domain.Booking, error) {
	var bookings []domain.Booking
	headers := map[string]string{"Idempotency-Key": idempotencyKey}
	if err := c.do(ctx, http.MethodPost, "/api/v1/bookings", req, headers, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

func (c *Client) ListVouchers(ctx context.Context) ([]domain.Voucher, error) {
	var vouchers []domain.Voucher
	if err := c.do(ctx, http.MethodGet, "/api/v1/vouchers", nil, nil, &vouchers); err != nil {
		return nil, err
	}
	return vouchers, nil
}

func sentinelFor(status int) error {
	switch status {
	case http.StatusBadRequest:
		return domain.ErrInvalidInput
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrUnauthorized
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrConflict
	case http.StatusGone:
		return domain.ErrHoldExpired
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return errors.Wrap(err, "read response")
	}
	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: env.Message}
		if decodeErr != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		if sentinel := sentinelFor(resp.StatusCode); sentinel != nil {
			return errors.Mark(apiErr, sentinel)
		}
		return apiErr
	}
	if decodeErr != nil {
		return errors.Wrap(decodeErr, "decode response")
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return errors.Wrap(err, "decode response data")
		}
	}
	return nil
}
