package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "spread-trader/internal/errors"
)

// KV is a small key-value store with per-key TTL and compare-and-swap.
//
// Get returns apperrors.ErrNotFound for missing or expired keys. A TTL of zero
// means the key never expires. CompareAndSwap with a nil old value succeeds
// only when the key is absent.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	CompareAndSwap(ctx context.Context, key string, old, new []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

// maxCASAttempts bounds optimistic retry loops.
const maxCASAttempts = 16

// GetJSON decodes the value at key into v. It reports false when the key is absent.
func GetJSON(ctx context.Context, kv KV, key string, v interface{}) (bool, error) {
	raw, err := kv.Get(ctx, key)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it at key.
func SetJSON(ctx context.Context, kv KV, key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return kv.Set(ctx, key, raw, ttl)
}

// UpdateJSON applies mutate to the current value at key and writes it back
// with compare-and-swap, retrying when another writer got there first.
// mutate receives the zero value and found=false for a missing key; returning
// false from mutate skips the write.
func UpdateJSON[T any](ctx context.Context, kv KV, key string, ttl time.Duration, mutate func(cur *T, found bool) bool) (T, error) {
	var zero T
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		var cur T
		var old []byte

		raw, err := kv.Get(ctx, key)
		switch {
		case apperrors.Is(err, apperrors.ErrNotFound):
		case err != nil:
			return zero, err
		default:
			old = raw
			if err := json.Unmarshal(raw, &cur); err != nil {
				return zero, fmt.Errorf("failed to decode %s: %w", key, err)
			}
		}

		if !mutate(&cur, old != nil) {
			return cur, nil
		}

		next, err := json.Marshal(cur)
		if err != nil {
			return zero, fmt.Errorf("failed to encode %s: %w", key, err)
		}
		if old != nil && bytes.Equal(old, next) {
			return cur, nil
		}

		ok, err := kv.CompareAndSwap(ctx, key, old, next, ttl)
		if err != nil {
			return zero, err
		}
		if ok {
			return cur, nil
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}
	}
	return zero, fmt.Errorf("update %s: %w", key, apperrors.ErrCASConflict)
}
