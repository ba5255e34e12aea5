package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when a Redis lock cannot be acquired within
// the configured wait.
var ErrLockTimeout = errors.New("timed out waiting for lock")

const (
	DefaultLockTTL   = 30 * time.Second
	DefaultLockWait  = 15 * time.Second
	DefaultLockRetry = 50 * time.Millisecond
)

// releaseScript deletes the lock only if it still holds our token, so an
// expired lock re-acquired by another process is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig configures a RedisLocker.
type RedisConfig struct {
	Prefix string
	TTL    time.Duration
	Wait   time.Duration
	Retry  time.Duration
}

// RedisLocker is a Locker backed by Redis SET NX PX.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

// NewRedisLocker returns a locker over client. Zero config fields use defaults.
func NewRedisLocker(client redis.UniversalClient, cfg RedisConfig) *RedisLocker {
	l := &RedisLocker{
		client: client,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
		wait:   cfg.Wait,
		retry:  cfg.Retry,
	}
	if l.prefix == "" {
		l.prefix = "pricesheet:lock:"
	}
	if l.ttl <= 0 {
		l.ttl = DefaultLockTTL
	}
	if l.wait <= 0 {
		l.wait = DefaultLockWait
	}
	if l.retry <= 0 {
		l.retry = DefaultLockRetry
	}
	return l
}

// Lock polls until the key is acquired, the wait expires, or ctx is done.
// The lock expires after the TTL even if unlock is never called.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	full := l.prefix + key
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(waitCtx, full, token, l.ttl).Result()
		if err != nil && waitCtx.Err() == nil {
			return nil, fmt.Errorf("redis lock %q: %w", key, err)
		}
		if ok {
			return func() {
				// Release with a fresh context: the caller's may already be done.
				relCtx, relCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer relCancel()
				if err := releaseScript.Run(relCtx, l.client, []string{full}, token).Err(); err != nil {
					slog.Warn("redis unlock failed", "key", key, "error", err)
				}
			}, nil
		}

		select {
		case <-ticker.C:
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("redis lock %q: %w", key, ErrLockTimeout)
		}
	}
}

// Ping checks connectivity.
func (l *RedisLocker) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
