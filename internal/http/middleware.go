package http

import (
	"bytes"
	"context"
	"crypto/rsa"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/robertarktes/hotel-room-holds/internal/idempotency"
	"github.com/robertarktes/hotel-room-holds/internal/observability"
	"github.com/robertarktes/hotel-room-holds/internal/rateLimit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	guestKey
)

// GuestFromContext returns the guest id the JWT middleware authenticated.
func GuestFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(guestKey).(int64)
	return id, ok
}

func requestLogger(r *http.Request, fallback observability.Logger) observability.Logger {
	if l, ok := r.Context().Value(loggerKey).(observability.Logger); ok {
		return l
	}
	return fallback
}

func RequestIDMiddleware(next http.Handler) http.Handler {
	return middleware.RequestID(next)
}

// LoggerMiddleware attaches a request scoped logger, logs the outcome and
// counts the request.
func LoggerMiddleware(logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := middleware.GetReqID(r.Context())
			entry := logger.WithField("request_id", reqID)
			ctx := context.WithValue(r.Context(), loggerKey, entry)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			observability.RequestsTotal.WithLabelValues(route, strconv.Itoa(status), r.Method).Inc()
			entry.WithField("method", r.Method).
				WithField("route", route).
				WithField("status", status).
				WithField("duration_ms", time.Since(start).Milliseconds()).
				Debug("request served")
		})
	}
}

// ParsePublicKey reads the PEM encoded RSA key that verifies guest tokens.
func ParsePublicKey(pemKey string) (*rsa.PublicKey, error) {
	return jwt.ParseRSAPublicKeyFromPEM([]byte(pemKey))
}

// JWTMiddleware accepts RS256 bearer tokens whose subject is the numeric
// guest id.
func JWTMiddleware(key *rsa.PublicKey) func(next http.Handler) http.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithExpirationRequired())
	keyFunc := func(*jwt.Token) (interface{}, error) { return key, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				writeJSON(w, http.StatusUnauthorized, "missing bearer token", nil)
				return
			}
			var claims jwt.RegisteredClaims
			if _, err := parser.ParseWithClaims(raw, &claims, keyFunc); err != nil {
				writeJSON(w, http.StatusUnauthorized, "invalid token", nil)
				return
			}
			guest, err := strconv.ParseInt(claims.Subject, 10, 64)
			if err != nil || guest <= 0 {
				writeJSON(w, http.StatusUnauthorized, "invalid token subject", nil)
				return
			}

			ctx := context.WithValue(r.Context(), guestKey, guest)
			if l, ok := ctx.Value(loggerKey).(observability.Logger); ok {
				ctx = context.WithValue(ctx, loggerKey, l.WithField("guest_id", guest))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (rateLimit.Decision, error)
}

// Idempotency stores replayable responses keyed by Idempotency-Key.
type Idempotency interface {
	Get(ctx context.Context, key string) (*idempotency.Response, error)
	Set(ctx context.Context, key string, resp idempotency.Response) error
	Begin(ctx context.Context, key string) (bool, error)
	End(ctx context.Context, key string) error
}

const maxIdempotentBody = 1 << 20

// IdempotencyMiddleware replays the stored response of a repeated POST.
// Keys are scoped to the guest. Server errors and conflicts are not stored
// so the same request can be retried once the cause is gone.
func IdempotencyMiddleware(idemp Idempotency, logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				writeJSON(w, http.StatusBadRequest, "missing Idempotency-Key", nil)
				return
			}
			if len(key) < 16 || len(key) > 128 {
				writeJSON(w, http.StatusBadRequest, "invalid Idempotency-Key", nil)
				return
			}
			guest, _ := GuestFromContext(r.Context())
			key = strconv.FormatInt(guest, 10) + ":" + key

			payload, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody+1))
			if err != nil || len(payload) > maxIdempotentBody {
				writeJSON(w, http.StatusBadRequest, "invalid request body", nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(payload))
			fingerprint := idempotency.Fingerprint(r.Method, r.URL.Path, payload)

			existing, err := idemp.Get(r.Context(), key)
			if err != nil {
				requestLogger(r, logger).WithError(err).Error("idempotency lookup failed")
				writeJSON(w, http.StatusInternalServerError, "internal error", nil)
				return
			}
			if existing != nil {
				if existing.Fingerprint != fingerprint {
					writeJSON(w, http.StatusUnprocessableEntity, "Idempotency-Key was already used for a different request", nil)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(existing.Status)
				w.Write(existing.Body)
				return
			}

			ok, err := idemp.Begin(r.Context(), key)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, "internal error", nil)
				return
			}
			if !ok {
				writeJSON(w, http.StatusConflict, "a request with this Idempotency-Key is in progress", nil)
				return
			}
			defer idemp.End(context.WithoutCancel(r.Context()), key)

			var body bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)
			next.ServeHTTP(ww, r)

			if status := ww.Status(); replayable(status) {
				if err := idemp.Set(context.WithoutCancel(r.Context()), key, idempotency.Response{
					Status:      status,
					Fingerprint: fingerprint,
					Body:        body.Bytes(),
				}); err != nil {
					requestLogger(r, logger).WithError(err).Warn("failed to store idempotent response")
				}
			}
		})
	}
}

func replayable(status int) bool {
	return status != 0 && status != http.StatusConflict && status < http.StatusInternalServerError
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware applies a per-guest and a per-IP window. When the
// limiter cannot answer the request is refused.
func RateLimitMiddleware(rl Limiter, logger observability.Logger, perGuest, perIP int) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			guest, _ := GuestFromContext(r.Context())
			checks := []struct {
				key   string
				limit int
			}{
				{"guest:" + strconv.FormatInt(guest, 10), perGuest},
				{"ip:" + clientIP(r), perIP},
			}
			for _, c := range checks {
				d, err := rl.Allow(r.Context(), c.key, c.limit, time.Minute)
				if err != nil {
					requestLogger(r, logger).WithError(err).Error("rate limiter unavailable")
					writeJSON(w, http.StatusServiceUnavailable, "service temporarily unavailable", nil)
					return
				}
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
				if !d.Allowed {
					w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
					writeJSON(w, http.StatusTooManyRequests, "rate limit exceeded", nil)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TracingMiddleware continues the caller's trace and names the span after
// the matched route once it is known.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := otel.Tracer("http").Start(ctx, r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			span.SetName(r.Method + " " + rctx.RoutePattern())
			span.SetAttributes(attribute.String("http.route", rctx.RoutePattern()))
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.Int("http.status_code", status),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	})
}
