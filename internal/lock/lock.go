// Package lock serializes submissions to one strategy across requests and,
// with the Redis backend, across server replicas.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrLockAcquire is returned when a lock cannot be taken before the
// context ends.
var ErrLockAcquire = errors.New("failed to acquire lock")

// UnlockFunc releases a held lock.
type UnlockFunc func(ctx context.Context) error

// Locker hands out exclusive locks by key.
type Locker interface {
	// Lock blocks until the key is free or ctx is done. The lock expires
	// after ttl if the backend supports expiry; the returned UnlockFunc must
	// be called either way.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}

// WithLock runs fn while holding key. A failed release is logged and left
// to the TTL.
func WithLock(ctx context.Context, l Locker, key string, ttl time.Duration, fn func(context.Context) error) error {
	unlock, err := l.Lock(ctx, key, ttl)
	if err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("failed to release lock, it will expire via TTL", "key", key, "err", err)
		}
	}()
	return fn(ctx)
}
