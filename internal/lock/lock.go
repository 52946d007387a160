// Package lock provides the per-patient advisory lock that keeps concurrent
// chat requests from summarizing the same conversation twice.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker acquires short-lived named locks. Release must be called with the
// token returned by TryAcquire.
type Locker interface {
	TryAcquire(ctx context.Context, key string) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// releaseScript deletes the key only if it still holds our token, so a lock
// that expired and was taken by another pass is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX.
type RedisLocker struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if client == nil {
		panic("lock: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLocker{redis: client, ttl: ttl, prefix: "vetchat:lock:"}
}

func (l *RedisLocker) TryAcquire(ctx context.Context, key string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.redis.SetNX(ctx, l.prefix+key, token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("lock: acquire %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, l.redis, []string{l.prefix + key}, token).Err(); err != nil {
		return fmt.Errorf("lock: release %s: %w", key, err)
	}
	return nil
}

// Nop always grants the lock. It is used when no Redis is configured, which
// leaves concurrent summarization passes unguarded.
type Nop struct{}

func (Nop) TryAcquire(context.Context, string) (string, bool, error) { return "", true, nil }
func (Nop) Release(context.Context, string, string) error         { return nil }
