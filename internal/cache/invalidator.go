// Package cache keeps read-side caches consistent after mutations.
// Listing and analytics caches are invalidated wholesale by bumping a
// version counter that is part of every cache key; per-event entries
// are dropped by key.  Invalidation runs synchronously with the
// mutation's commit, and failures are logged and swallowed: a missed
// invalidation produces a stale read, never an incorrect write.
package cache

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keys for the version counters and per-event entries.  The
// response cache middleware folds the listing version into its keys, so
// one INCR cheaply orphans every previously cached listing page.
const (
	listingVersionKey   = "cachever:listing"
	analyticsVersionKey = "cachever:analytics"
	eventKeyPrefix      = "cache:event:"
)

// Invalidator owns the cache version counters.  A nil Redis client is
// tolerated, mirroring how the rest of the stack degrades when Redis is
// down: versions are then tracked in process, which is still correct
// for a single server.
type Invalidator struct {
	rdb *redis.Client

	// In-process fallbacks, also kept as mirrors so a Redis hiccup on a
	// read does not freeze the version at zero.
	listingVer   atomic.Int64
	analyticsVer atomic.Int64

	// Local by-id entries, used only when rdb is nil.
	eventMu    sync.Mutex
	eventLocal map[uint64]localEntry
}

type localEntry struct {
	payload []byte
	expires time.Time
}

// NewInvalidator returns an Invalidator.  rdb may be nil.
func NewInvalidator(rdb *redis.Client) *Invalidator {
	return &Invalidator{rdb: rdb, eventLocal: make(map[uint64]localEntry)}
}

// BumpListingVersion invalidates every cached listing at once.
func (i *Invalidator) BumpListingVersion(ctx context.Context) {
	i.listingVer.Add(1)
	if i.rdb == nil {
		return
	}
	if err := i.rdb.Incr(ctx, listingVersionKey).Err(); err != nil {
		log.Printf("cache: listing version bump failed (stale listings possible): %v", err)
	}
}

// InvalidateAnalytics invalidates the analytics cache family.
func (i *Invalidator) InvalidateAnalytics(ctx context.Context) {
	i.analyticsVer.Add(1)
	if i.rdb == nil {
		return
	}
	if err := i.rdb.Incr(ctx, analyticsVersionKey).Err(); err != nil {
		log.Printf("cache: analytics version bump failed: %v", err)
	}
}

// InvalidateEvent drops the by-id cache entry for one event.
func (i *Invalidator) InvalidateEvent(ctx context.Context, eventID uint64) {
	i.eventMu.Lock()
	delete(i.eventLocal, eventID)
	i.eventMu.Unlock()
	if i.rdb == nil {
		return
	}
	if err := i.rdb.Del(ctx, EventKey(eventID)).Err(); err != nil {
		log.Printf("cache: invalidate event %d failed: %v", eventID, err)
	}
}

// StoreEvent caches one event's rendered detail payload under its by-id
// key.  The TTL bounds how long a missed invalidation can serve stale
// data.
func (i *Invalidator) StoreEvent(ctx context.Context, eventID uint64, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if i.rdb == nil {
		i.eventMu.Lock()
		i.eventLocal[eventID] = localEntry{payload: payload, expires: time.Now().Add(ttl)}
		i.eventMu.Unlock()
		return
	}
	if err := i.rdb.SetEx(ctx, EventKey(eventID), payload, ttl).Err(); err != nil {
		log.Printf("cache: store event %d failed: %v", eventID, err)
	}
}

// CachedEvent returns the cached detail payload for an event, or false
// on a miss.
func (i *Invalidator) CachedEvent(ctx context.Context, eventID uint64) ([]byte, bool) {
	if i.rdb == nil {
		i.eventMu.Lock()
		defer i.eventMu.Unlock()
		e, ok := i.eventLocal[eventID]
		if !ok || time.Now().After(e.expires) {
			delete(i.eventLocal, eventID)
			return nil, false
		}
		return e.payload, true
	}
	bs, err := i.rdb.Get(ctx, EventKey(eventID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("cache: read event %d failed: %v", eventID, err)
		}
		return nil, false
	}
	return bs, true
}

// ListingVersion returns the current listing version for use in cache
// keys.  On Redis errors the in-process mirror is returned, so readers
// keep making progress with at worst a briefly stale version.
func (i *Invalidator) ListingVersion(ctx context.Context) int64 {
	if i.rdb != nil {
		rctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		v, err := i.rdb.Get(rctx, listingVersionKey).Int64()
		if err == nil {
			return v
		}
		if err != redis.Nil {
			log.Printf("cache: read listing version failed, using local mirror: %v", err)
		}
	}
	return i.listingVer.Load()
}

// AnalyticsVersion returns the current analytics version.
func (i *Invalidator) AnalyticsVersion(ctx context.Context) int64 {
	if i.rdb != nil {
		rctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		v, err := i.rdb.Get(rctx, analyticsVersionKey).Int64()
		if err == nil {
			return v
		}
		if err != redis.Nil {
			log.Printf("cache: read analytics version failed, using local mirror: %v", err)
		}
	}
	return i.analyticsVer.Load()
}

// EventKey returns the by-id cache key for an event.
func EventKey(eventID uint64) string {
	return fmt.Sprintf("%s%d", eventKeyPrefix, eventID)
}
