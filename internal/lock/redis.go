package lock

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only when it still carries the
// holder's token, so a holder that outlived its TTL cannot release a
// lock that has since been granted to someone else.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RedisLocker implements Locker on top of a shared Redis instance using
// SET NX PX, giving mutual exclusion across all processes that share
// the instance.  Each acquisition stores a random holder token checked
// again on release.
type RedisLocker struct {
	rdb    *redis.Client
	cfg    Config
	prefix string
}

// NewRedisLocker returns a RedisLocker with the given settings.  The
// client must be non-nil; callers that may run without Redis should
// fall back to NewLocalLocker instead.
func NewRedisLocker(rdb *redis.Client, cfg Config) *RedisLocker {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	return &RedisLocker{rdb: rdb, cfg: cfg, prefix: "lock:"}
}

// Acquire takes the key with bounded retries.  The returned release
// function is idempotent and never blocks the caller on Redis errors;
// an unreleased key still expires via TTL.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	full := l.prefix + key
	err := withRetry(ctx, l.cfg, func() (bool, error) {
		ok, err := l.rdb.SetNX(ctx, full, token, l.cfg.TTL).Result()
		if err != nil {
			return false, err
		}
		return ok, nil
	})
	if err != nil {
		return nil, err
	}
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		// Release with a fresh context: the request context may already
		// be cancelled and the lock must be freed regardless.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.rdb, []string{full}, token).Err(); err != nil && err != redis.Nil {
			log.Printf("lock: release of %s failed (TTL will expire it): %v", key, err)
		}
	}
	return release, nil
}
