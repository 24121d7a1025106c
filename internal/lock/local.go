package lock

import (
	"context"
	"sync"
	"time"
)

// localHold is one live acquisition: the deadline after which the key
// is free again, plus the token identifying the holder so a release
// from an expired holder cannot free a successor's lock.
type localHold struct {
	token    uint64
	deadline time.Time
}

// LocalLocker implements Locker with an in-process mutex and key table.
// It is the fallback when Redis is unavailable (single-process mutual
// exclusion is still correct for one server) and the implementation
// used by tests.  Held keys carry a deadline so an abandoned lock
// expires just like the Redis variant.
type LocalLocker struct {
	mu        sync.Mutex
	held      map[string]localHold
	nextToken uint64
	cfg       Config
}

// NewLocalLocker returns an empty LocalLocker.
func NewLocalLocker(cfg Config) *LocalLocker {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	return &LocalLocker{held: make(map[string]localHold), cfg: cfg}
}

// Acquire takes the key with bounded retries, honoring expired entries.
// The returned release only frees the key while this acquisition still
// owns it: once the TTL has passed and another caller has taken over,
// release is a no-op, matching the Redis variant's token check.
func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	var token uint64
	err := withRetry(ctx, l.cfg, func() (bool, error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		if h, ok := l.held[key]; ok && time.Now().Before(h.deadline) {
			return false, nil
		}
		l.nextToken++
		token = l.nextToken
		l.held[key] = localHold{token: token, deadline: time.Now().Add(l.cfg.TTL)}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if h, ok := l.held[key]; ok && h.token == token {
			delete(l.held, key)
		}
	}
	return release, nil
}
