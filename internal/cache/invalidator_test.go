package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Without Redis the invalidator falls back to in-process counters; the
// version semantics must hold there too.

func TestBumpListingVersion(t *testing.T) {
	i := NewInvalidator(nil)
	ctx := context.Background()

	before := i.ListingVersion(ctx)
	i.BumpListingVersion(ctx)
	i.BumpListingVersion(ctx)
	assert.Equal(t, before+2, i.ListingVersion(ctx))
}

func TestAnalyticsVersionIndependent(t *testing.T) {
	i := NewInvalidator(nil)
	ctx := context.Background()

	i.BumpListingVersion(ctx)
	assert.Equal(t, int64(0), i.AnalyticsVersion(ctx))
	i.InvalidateAnalytics(ctx)
	assert.Equal(t, int64(1), i.AnalyticsVersion(ctx))
}

func TestEventDetailRoundTrip(t *testing.T) {
	i := NewInvalidator(nil)
	ctx := context.Background()

	_, ok := i.CachedEvent(ctx, 42)
	assert.False(t, ok, "empty cache must miss")

	i.StoreEvent(ctx, 42, []byte(`{"id":42}`), time.Minute)
	got, ok := i.CachedEvent(ctx, 42)
	assert.True(t, ok)
	assert.Equal(t, []byte(`{"id":42}`), got)

	// Other IDs are unaffected.
	_, ok = i.CachedEvent(ctx, 43)
	assert.False(t, ok)
}

func TestInvalidateEventDropsDetailEntry(t *testing.T) {
	i := NewInvalidator(nil)
	ctx := context.Background()

	i.StoreEvent(ctx, 42, []byte(`{"id":42}`), time.Minute)
	i.InvalidateEvent(ctx, 42)
	_, ok := i.CachedEvent(ctx, 42)
	assert.False(t, ok, "invalidation must drop the by-id entry")
}

func TestEventDetailEntryExpires(t *testing.T) {
	i := NewInvalidator(nil)
	ctx := context.Background()

	i.StoreEvent(ctx, 42, []byte(`{"id":42}`), 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	_, ok := i.CachedEvent(ctx, 42)
	assert.False(t, ok, "expired entry must miss")
}

func TestConcurrentBumpsAreMonotonic(t *testing.T) {
	i := NewInvalidator(nil)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for j := 0; j < n; j++ {
		go func() {
			defer wg.Done()
			i.BumpListingVersion(ctx)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(n), i.ListingVersion(ctx))
}

func TestEventKey(t *testing.T) {
	assert.Equal(t, "cache:event:42", EventKey(42))
}
