// Package idempotency replays stored responses for repeated Idempotency-Key
// requests so a retried booking submission never books twice.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	redisadapter "github.com/robertarktes/hotel-room-holds/internal/adapters/redis"
)

// inFlightTTL bounds how long a crashed request can block its key.
const inFlightTTL = 30 * time.Second

type Idempotency struct {
	redis *redisadapter.Idempotency
	ttl   time.Duration
}

func NewIdempotency(redis *redisadapter.Idempotency, ttl time.Duration) *Idempotency {
	return &Idempotency{redis: redis, ttl: ttl}
}

// Response is a replayable HTTP response. Fingerprint identifies the
// request that produced it.
type Response struct {
	Status      int
	Fingerprint string
	Body        []byte
}

// Fingerprint hashes the parts of a request that must match on replay.
func Fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func (i *Idempotency) Get(ctx context.Context, key string) (*Response, error) {
	stored, err := i.redis.Load(ctx, key)
	if err != nil || stored == nil {
		return nil, err
	}
	return &Response{Status: stored.Status, Fingerprint: stored.Fingerprint, Body: stored.Body}, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp Response) error {
	return i.redis.Save(ctx, key, redisadapter.StoredResponse{
		Status:      resp.Status,
		Fingerprint: resp.Fingerprint,
		Body:        resp.Body,
	}, i.ttl)
}

// Begin claims key for the current request.
func (i *Idempotency) Begin(ctx context.Context, key string) (bool, error) {
	return i.redis.Lock(ctx, key, inFlightTTL)
}

func (i *Idempotency) End(ctx context.Context, key string) error {
	return i.redis.Unlock(ctx, key)
}
