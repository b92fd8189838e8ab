// Copyright (c) 2026 Manhwari. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTier is the shared cache backend used when REDIS_URL is configured.
// Values are stored as JSON under a namespace prefix so multiple tiers can
// coexist in one Redis database.
//
// Like the memory backend, all Redis failures degrade to misses or silent
// no-ops; the read path never sees an error from this tier.
type RedisTier[T any] struct {
	client     *redis.Client
	namespace  string
	defaultTTL time.Duration

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewRedisTier creates a Redis-backed tier. The namespace is prepended to
// every key (e.g., "tier:entity:") and scoped to this tier's scans.
func NewRedisTier[T any](client *redis.Client, namespace string, defaultTTL time.Duration) *RedisTier[T] {
	return &RedisTier[T]{
		client:     client,
		namespace:  namespace,
		defaultTTL: defaultTTL,
	}
}

/*
Get retrieves and decodes the cached value for key.

Connection errors, absent keys, and corrupt payloads are all reported as a
plain miss.
*/
func (t *RedisTier[T]) Get(context context.Context, key string) (T, bool) {
	var zero T

	payload, err := t.client.Get(context, t.namespace+key).Bytes()
	if err != nil {
		t.misses.Add(1)
		return zero, false
	}

	var value T
	if err := json.Unmarshal(payload, &value); err != nil {
		// Corrupt entry: drop it so it cannot keep failing.
		t.client.Del(context, t.namespace+key)
		t.misses.Add(1)
		return zero, false
	}

	t.hits.Add(1)
	return value, true
}

// Set stores value under key with the tier's default TTL.
func (t *RedisTier[T]) Set(context context.Context, key string, value T) {
	t.SetTTL(context, key, value, t.defaultTTL)
}

// SetTTL encodes and stores value under key with an explicit TTL. Redis
// expires the key on its own; no sweep is needed for this backend.
func (t *RedisTier[T]) SetTTL(context context.Context, key string, value T, ttl time.Duration) {
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	t.client.Set(context, t.namespace+key, payload, ttl)
}

// Delete removes a single key.
func (t *RedisTier[T]) Delete(context context.Context, key string) {
	t.client.Del(context, t.namespace+key)
}

/*
DeleteMatching removes every key in this tier's namespace whose identifier
contains the given substring and returns the number of keys removed.

The scan uses MATCH with the namespace prefix so other tiers sharing the
same Redis database are never touched.
*/
func (t *RedisTier[T]) DeleteMatching(context context.Context, substring string) int {
	pattern := t.namespace + "*" + substring + "*"

	removed := 0
	iterator := t.client.Scan(context, 0, pattern, 100).Iterator()
	for iterator.Next(context) {
		if t.client.Del(context, iterator.Val()).Val() > 0 {
			removed++
		}
	}
	return removed
}

// Stats returns local hit/miss counters and the tier's key count. The key
// count is computed with a namespace scan and is approximate under load.
func (t *RedisTier[T]) Stats(context context.Context) Stats {
	keys := 0
	iterator := t.client.Scan(context, 0, t.namespace+"*", 500).Iterator()
	for iterator.Next(context) {
		keys++
	}

	return Stats{
		Hits:   t.hits.Load(),
		Misses: t.misses.Load(),
		Keys:   keys,
	}
}
