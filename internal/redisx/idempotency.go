package redisx

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const pendingMarker = "pending"

var ErrRequestInFlight = errors.New("request with this idempotency key is in progress")

// IdempotencyStore remembers which order a client-supplied key produced.
type IdempotencyStore struct {
	rdb *redis.Client
}

func NewIdempotencyStore(rdb *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb}
}

// Claim reserves key for userID. If the key already produced an order its
// id is returned with claimed=false. ErrRequestInFlight means another
// request with the same key has not finished yet.
func (s *IdempotencyStore) Claim(ctx context.Context, userID int64, key string) (orderID int64, claimed bool, err error) {
	k := fmt.Sprintf(KeyIdemOrderCreate, userID, key)

	ok, err := s.rdb.SetNX(ctx, k, pendingMarker, TTLIdempotencyPending).Result()
	if err != nil {
		return 0, false, fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return 0, true, nil
	}

	val, err := s.rdb.Get(ctx, k).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET
			return 0, false, ErrRequestInFlight
		}
		return 0, false, fmt.Errorf("read idempotency key: %w", err)
	}
	if val == pendingMarker {
		return 0, false, ErrRequestInFlight
	}

	orderID, err = strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt idempotency value %q: %w", val, err)
	}
	return orderID, false, nil
}

// Complete stores the order id produced for a claimed key.
func (s *IdempotencyStore) Complete(ctx context.Context, userID int64, key string, orderID int64) error {
	k := fmt.Sprintf(KeyIdemOrderCreate, userID, key)
	if err := s.rdb.Set(ctx, k, orderID, TTLIdempotency).Err(); err != nil {
		return fmt.Errorf("store idempotency key: %w", err)
	}
	return nil
}

// Abandon frees a claimed key after a failed request so the client may retry.
func (s *IdempotencyStore) Abandon(ctx context.Context, userID int64, key string) error {
	k := fmt.Sprintf(KeyIdemOrderCreate, userID, key)
	if err := s.rdb.Del(ctx, k).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
