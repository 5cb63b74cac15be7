package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerExclusive(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "a", 10*time.Millisecond, time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "a", 10*time.Millisecond, time.Minute)
	assert.ErrorIs(t, err, ErrBusy)

	// A different key is independent.
	other, err := locker.Acquire(ctx, "b", 10*time.Millisecond, time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))
	lease, err = locker.Acquire(ctx, "a", 10*time.Millisecond, time.Minute)
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
}

func TestMemoryLockerTTLExpires(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "a", 10*time.Millisecond, 20*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	fresh, err := locker.Acquire(ctx, "a", 10*time.Millisecond, time.Minute)
	require.NoError(t, err)

	// Releasing the lapsed lease must not free the new holder's lock.
	require.NoError(t, stale.Release(ctx))
	_, err = locker.Acquire(ctx, "a", 10*time.Millisecond, time.Minute)
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, fresh.Release(ctx))
}

func TestMemoryLockerContention(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := locker.Acquire(ctx, "shared", time.Second, time.Second)
			if err != nil {
				return
			}
			current := atomic.AddInt32(&inside, 1)
			for {
				old := atomic.LoadInt32(&maxInside)
				if current <= old || atomic.CompareAndSwapInt32(&maxInside, old, current) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			_ = lease.Release(ctx)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInside))
}

func TestMemoryLockerContextCancel(t *testing.T) {
	locker := NewMemoryLocker()
	ctx, cancel := context.WithCancel(context.Background())

	lease, err := locker.Acquire(ctx, "a", time.Second, time.Minute)
	require.NoError(t, err)
	defer lease.Release(context.Background()) //nolint:errcheck

	done := make(chan error, 1)
	go func() {
		_, err := locker.Acquire(ctx, "a", 5*time.Second, time.Minute)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("acquire did not honor context cancellation")
	}
}
