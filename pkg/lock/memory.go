package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

// MemoryLocker is an in-process Locker backed by a mutex-guarded map. It is
// suitable for single-instance deployments and tests.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]memoryEntry
}

// NewMemoryLocker constructs an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]memoryEntry)}
}

// Acquire implements Locker.
func (l *MemoryLocker) Acquire(ctx context.Context, key string, wait, ttl time.Duration) (Lease, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		if l.tryAcquire(key, token, ttl) {
			return &memoryLease{locker: l, key: key, token: token}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrBusy
		}

		timer := time.NewTimer(retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *MemoryLocker) tryAcquire(key, token string, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if entry, ok := l.held[key]; ok && now.Before(entry.expiresAt) {
		return false
	}
	l.held[key] = memoryEntry{token: token, expiresAt: now.Add(ttl)}
	return true
}

func (l *MemoryLocker) release(key, token string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Only the current holder may release; a lapsed lease whose key was
	// re-acquired by someone else must not free the new holder's lock.
	if entry, ok := l.held[key]; ok && entry.token == token {
		delete(l.held, key)
	}
}

type memoryLease struct {
	locker *MemoryLocker
	key    string
	token  string
}

func (m *memoryLease) Release(_ context.Context) error {
	m.locker.release(m.key, m.token)
	return nil
}

func (m *memoryLease) Key() string {
	return m.key
}
