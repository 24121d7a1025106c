// Package lock provides short-lived keyed mutual exclusion used to
// serialize capacity mutations.  Keys are scoped strings such as
// "event:42" or "event:42:role:7"; at most one holder exists per key at
// any instant.  Every acquisition carries a TTL so that a crashed
// holder cannot deadlock a key permanently.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrBusy is returned when a key could not be acquired within the
// configured attempt budget.  Callers surface it as a transient error;
// it is safe to retry with backoff.
var ErrBusy = errors.New("lock busy")

// Locker acquires keyed locks.  Acquire blocks with bounded retries and
// returns a release function that must be called on every exit path;
// releasing twice is harmless.  The release of an expired lock is a
// no-op so a slow holder cannot free a key someone else now owns.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Config controls lock TTL and the bounded retry loop shared by all
// implementations.
type Config struct {
	TTL        time.Duration // how long a held lock survives without release
	Attempts   int           // total acquisition attempts before ErrBusy
	RetryDelay time.Duration // pause between attempts
}

// withRetry runs try up to cfg.Attempts times, pausing RetryDelay
// between attempts and honoring context cancellation.  try reports
// whether the lock was taken.
func withRetry(ctx context.Context, cfg Config, try func() (bool, error)) error {
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("lock acquisition aborted: %w", ctx.Err())
		case <-time.After(cfg.RetryDelay):
		}
	}
	return ErrBusy
}

// EventKey returns the lock key serializing mutations of a whole event.
func EventKey(eventID uint64) string {
	return fmt.Sprintf("event:%d", eventID)
}

// RoleKey returns the lock key serializing capacity mutations of one
// role of one event.
func RoleKey(eventID, roleID uint64) string {
	return fmt.Sprintf("event:%d:role:%d", eventID, roleID)
}
