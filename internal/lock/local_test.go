package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{TTL: time.Second, Attempts: 1, RetryDelay: time.Millisecond}
}

func TestLocalLockerMutualExclusion(t *testing.T) {
	l := NewLocalLocker(testConfig())
	ctx := context.Background()

	release, err := l.Acquire(ctx, "event:1:role:1")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "event:1:role:1")
	assert.ErrorIs(t, err, ErrBusy)

	// A different key is independent.
	release2, err := l.Acquire(ctx, "event:1:role:2")
	require.NoError(t, err)
	release2()

	release()
	release3, err := l.Acquire(ctx, "event:1:role:1")
	require.NoError(t, err)
	release3()
}

func TestLocalLockerReleaseIsIdempotent(t *testing.T) {
	l := NewLocalLocker(testConfig())
	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	release()
	release() // second call must not free somebody else's lock

	release2, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	defer release2()
	release()
	_, err = l.Acquire(context.Background(), "k")
	assert.ErrorIs(t, err, ErrBusy)
}

func TestLocalLockerExpiry(t *testing.T) {
	l := NewLocalLocker(Config{TTL: 20 * time.Millisecond, Attempts: 1})
	_, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err, "expired lock should be reacquirable")
	release()
}

func TestLocalLockerStaleReleaseKeepsSuccessorLock(t *testing.T) {
	// A's TTL lapses, B takes the key over, then A's late release fires.
	// B must still hold the lock afterwards.
	l := NewLocalLocker(Config{TTL: 20 * time.Millisecond, Attempts: 1})
	releaseA, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	releaseB, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)

	releaseA()
	_, err = l.Acquire(context.Background(), "k")
	assert.ErrorIs(t, err, ErrBusy, "expired holder's release must not free the new holder's lock")

	releaseB()
	releaseC, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	releaseC()
}

func TestLocalLockerRetrySucceedsAfterRelease(t *testing.T) {
	l := NewLocalLocker(Config{TTL: time.Second, Attempts: 50, RetryDelay: 2 * time.Millisecond})
	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		release()
	}()

	got, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	got()
}

func TestLocalLockerRespectsContextCancel(t *testing.T) {
	l := NewLocalLocker(Config{TTL: time.Second, Attempts: 100, RetryDelay: 5 * time.Millisecond})
	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBusy)
}

func TestLocalLockerConcurrentAcquire(t *testing.T) {
	l := NewLocalLocker(testConfig())
	const n = 32
	var wg sync.WaitGroup
	won := 0
	var mu sync.Mutex

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "contended")
			if err != nil {
				return
			}
			mu.Lock()
			won++
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	assert.GreaterOrEqual(t, won, 1, "at least one goroutine must win")
}
