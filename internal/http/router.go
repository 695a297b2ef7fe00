package http

import (
	"crypto/rsa"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/hotel-room-holds/internal/observability"
)

const (
	guestRatePerMinute = 60
	ipRatePerMinute    = 300
)

func SetupRouter(h *Handlers, logger observability.Logger, key *rsa.PublicKey, rl Limiter, idemp Idempotency) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(JWTMiddleware(key))
		r.Use(RateLimitMiddleware(rl, logger, guestRatePerMinute, ipRatePerMinute))
		r.Use(IdempotencyMiddleware(idemp, logger))

		r.Put("/rooms/hold", h.HoldRooms)
		r.Put("/rooms/release", h.ReleaseRooms)
		r.Get("/rooms/available", h.AvailableRooms)
		r.Post("/bookings", h.CreateBooking)
		if h.vouchers != nil {
			r.Get("/vouchers", h.ListVouchers)
		}
		if h.audit != nil {
			r.Get("/me/history", h.GuestHistory)
		}
	})

	return r
}
