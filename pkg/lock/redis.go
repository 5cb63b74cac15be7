package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when the stored token matches, so a
// lease that outlived its TTL cannot free a lock re-acquired by another
// caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker on a shared Redis instance using SET NX with
// a per-lease token. Works across multiple API replicas.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedisLocker constructs a Redis-backed locker.
func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "lock"
	}
	return &RedisLocker{client: client, prefix: prefix}
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, key string, wait, ttl time.Duration) (Lease, error) {
	token := uuid.NewString()
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)
	deadline := time.Now().Add(wait)

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return &redisLease{client: l.client, key: key, redisKey: redisKey, token: token}, nil
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

type redisLease struct {
	client   *redis.Client
	key      string
	redisKey string
	token    string
}

func (r *redisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.redisKey}, r.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release lock %s: %w", r.key, err)
	}
	return nil
}

func (r *redisLease) Key() string {
	return r.key
}
