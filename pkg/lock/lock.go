package lock

import (
	"context"
	"errors"
	"time"
)

// ErrBusy is returned when a lock cannot be acquired within the wait bound.
var ErrBusy = errors.New("lock busy")

// Lease represents a held lock. The backing store enforces the TTL so a
// crashed holder cannot block a key forever.
type Lease interface {
	// Release frees the lock. Safe to call after the TTL lapsed; a lapsed
	// lease is simply a no-op.
	Release(ctx context.Context) error
	// Key returns the lock key the lease covers.
	Key() string
}

// Locker provides mutual exclusion scoped to an arbitrary string key.
// Acquire blocks up to wait for the lock and fails fast with ErrBusy; the
// returned lease expires after ttl regardless of the holder.
type Locker interface {
	Acquire(ctx context.Context, key string, wait, ttl time.Duration) (Lease, error)
}

// retryInterval is how often contended acquisition re-attempts.
const retryInterval = 50 * time.Millisecond
