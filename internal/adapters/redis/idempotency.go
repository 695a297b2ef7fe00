package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

const (
	responsePrefix = "idemp:resp:"
	inFlightPrefix = "idemp:lock:"
)

// Idempotency keeps the first response of a keyed request, plus a short
// lived marker while that request is still running.
type Idempotency struct {
	client *redis.Client
}

func NewIdempotency(client *redis.Client) *Idempotency {
	return &Idempotency{client: client}
}

type StoredResponse struct {
	Status      int    `json:"status"`
	Fingerprint string `json:"fingerprint"`
	Body        []byte `json:"body"`
}

// Load returns nil when nothing is stored under key.
func (i *Idempotency) Load(ctx context.Context, key string) (*StoredResponse, error) {
	val, err := i.client.Get(ctx, responsePrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load idempotent response")
	}
	var resp StoredResponse
	if err := json.Unmarshal(val, &resp); err != nil {
		return nil, errors.Wrap(err, "decode idempotent response")
	}
	return &resp, nil
}

// Save stores resp unless a response is already stored for key.
func (i *Idempotency) Save(ctx context.Context, key string, resp StoredResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return i.client.SetNX(ctx, responsePrefix+key, data, ttl).Err()
}

// Lock marks key as in flight. It reports false while another request
// holds the marker.
func (i *Idempotency) Lock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return i.client.SetNX(ctx, inFlightPrefix+key, time.Now().UnixMilli(), ttl).Result()
}

func (i *Idempotency) Unlock(ctx context.Context, key string) error {
	return i.client.Del(ctx, inFlightPrefix+key).Err()
}
