// Copyright (c) 2026 Manhwari. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package cache provides the bounded TTL cache tiers for the catalogue read path.

Three independent tiers exist (Entity, Search, Tag), each with its own TTL and
capacity. Tiers are deliberately failure-transparent: every storage error is
swallowed and reported as a miss, so a degraded cache can never poison the
read path.

Architecture:

  - Tier[T]: The generic contract shared by all backends.
  - Memory backend: per-process bounded LRU with per-key TTL and a periodic
    expiry sweep (default).
  - Redis backend: shared cross-instance tier selected when REDIS_URL is set.

Invalidation is substring-based: DeleteMatching removes every key whose
identifier contains the given fragment. The service layer relies on this to
flush all "search:" keys after a write.
*/
package cache

import (
	"context"
	"time"
)

// # Tier Contract

// Stats reports hit/miss counters and the current key count of a tier.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Keys   int    `json:"keys"`
}

// Tier is the generic contract implemented by every cache backend.
//
// # Failure Transparency
//
// Implementations never return errors. A failed read is a miss; a failed
// write is a no-op. Values are treated as opaque and are NOT defensively
// cloned — callers must not mutate retrieved objects.
type Tier[T any] interface {

	// Get returns the cached value for key, or the zero value and false if
	// the key is absent, expired, or evicted.
	Get(context context.Context, key string) (T, bool)

	// Set stores value under key using the tier's default TTL.
	Set(context context.Context, key string, value T)

	// SetTTL stores value under key with an explicit TTL override.
	SetTTL(context context.Context, key string, value T, ttl time.Duration)

	// Delete removes a single key. Missing keys are not an error.
	Delete(context context.Context, key string)

	// DeleteMatching removes every key whose identifier contains the given
	// substring and returns the number of keys removed.
	DeleteMatching(context context.Context, substring string) int

	// Stats returns the tier's hit/miss counters and key count.
	Stats(context context.Context) Stats
}
