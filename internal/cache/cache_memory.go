// Copyright (c) 2026 Manhwari. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package cache

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// sweepInterval is how often the background sweep evicts expired entries.
// Expiry is also checked lazily on Get, so the sweep only reclaims memory
// for keys that are never read again.
const sweepInterval = 1 * time.Minute

// entry wraps a cached value with its absolute expiry deadline.
type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// MemoryTier is the default in-process cache backend. It bounds the key
// count with an LRU and enforces a per-key TTL on top of it.
type MemoryTier[T any] struct {
	store      *lru.Cache[string, entry[T]]
	defaultTTL time.Duration

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewMemoryTier creates a bounded in-memory tier. The background expiry
// sweep stops when the provided context is cancelled.
func NewMemoryTier[T any](context context.Context, maxKeys int, defaultTTL time.Duration) (*MemoryTier[T], error) {
	store, err := lru.New[string, entry[T]](maxKeys)
	if err != nil {
		return nil, err
	}

	tier := &MemoryTier[T]{
		store:      store,
		defaultTTL: defaultTTL,
	}

	// Periodic sweep for entries that expired but were never read again.
	go tier.sweepLoop(context)

	return tier, nil
}

/*
Get retrieves the cached value for key.

Expired entries are evicted on read and reported as a miss, so a stale value
is never observable even between sweeps.
*/
func (t *MemoryTier[T]) Get(_ context.Context, key string) (T, bool) {
	var zero T

	item, found := t.store.Get(key)
	if !found {
		t.misses.Add(1)
		return zero, false
	}

	// Lazy expiry check
	if time.Now().After(item.expiresAt) {
		t.store.Remove(key)
		t.misses.Add(1)
		return zero, false
	}

	t.hits.Add(1)
	return item.value, true
}

// Set stores value under key with the tier's default TTL.
func (t *MemoryTier[T]) Set(context context.Context, key string, value T) {
	t.SetTTL(context, key, value, t.defaultTTL)
}

// SetTTL stores value under key with an explicit TTL. The underlying LRU
// evicts the least recently used entry when the tier is at capacity.
func (t *MemoryTier[T]) SetTTL(_ context.Context, key string, value T, ttl time.Duration) {
	t.store.Add(key, entry[T]{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	})
}

// Delete removes a single key.
func (t *MemoryTier[T]) Delete(_ context.Context, key string) {
	t.store.Remove(key)
}

/*
DeleteMatching removes every key containing the given substring and returns
the number of keys removed.

An empty substring matches every key, which is how the admin cache-clear
operation flushes a whole tier.
*/
func (t *MemoryTier[T]) DeleteMatching(_ context.Context, substring string) int {
	// Snapshot the keys first; removing while iterating the LRU's internal
	// list is not safe.
	removed := 0
	for _, key := range t.store.Keys() {
		if strings.Contains(key, substring) {
			if t.store.Remove(key) {
				removed++
			}
		}
	}
	return removed
}

// Stats returns the tier's hit/miss counters and current key count.
func (t *MemoryTier[T]) Stats(_ context.Context) Stats {
	return Stats{
		Hits:   t.hits.Load(),
		Misses: t.misses.Load(),
		Keys:   t.store.Len(),
	}
}

// sweepLoop evicts expired entries on a fixed interval until ctx is done.
func (t *MemoryTier[T]) sweepLoop(context context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-context.Done():
			return
		case <-ticker.C:
			now := time.Now()
			for _, key := range t.store.Keys() {
				if item, found := t.store.Peek(key); found && now.After(item.expiresAt) {
					t.store.Remove(key)
				}
			}
		}
	}
}
