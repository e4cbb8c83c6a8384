package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Checker-Finance/marketplace/internal/metrics"
)

// ErrInFlight means another request with the same key is still running.
var ErrInFlight = errors.New("idempotent request in flight")

const pendingMarker = "pending"

// CachedResponse is what a completed idempotent request returned.
type CachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Idempotency caches responses of mutating requests in Redis, keyed by the
// caller and its Idempotency-Key header.
type Idempotency struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewIdempotency(rdb redis.UniversalClient, ttl time.Duration) *Idempotency {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Idempotency{rdb: rdb, ttl: ttl}
}

func idempotencyKey(account, key string) string {
	return fmt.Sprintf("idem:%s:%s", account, key)
}

// Begin claims key for account. It returns the cached response if the request
// already completed, ErrInFlight if it is still running, or (nil, nil) when the
// caller now owns the key and must call Complete or Abort.
func (i *Idempotency) Begin(ctx context.Context, account, key string) (*CachedResponse, error) {
	k := idempotencyKey(account, key)
	ok, err := i.rdb.SetNX(ctx, k, pendingMarker, i.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("idempotency claim failed: %w", err)
	}
	if ok {
		metrics.IncIdempotency("miss")
		return nil, nil
	}

	data, err := i.rdb.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return i.Begin(ctx, account, key)
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup failed: %w", err)
	}
	if string(data) == pendingMarker {
		return nil, ErrInFlight
	}

	var resp CachedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("idempotency decode failed: %w", err)
	}
	metrics.IncIdempotency("hit")
	return &resp, nil
}

// Complete stores the response for key.
func (i *Idempotency) Complete(ctx context.Context, account, key string, resp CachedResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return i.rdb.Set(ctx, idempotencyKey(account, key), data, i.ttl).Err()
}

// Abort releases key so the request can be retried.
func (i *Idempotency) Abort(ctx context.Context, account, key string) error {
	return i.rdb.Del(ctx, idempotencyKey(account, key)).Err()
}
