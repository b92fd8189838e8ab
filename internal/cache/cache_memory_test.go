// Copyright (c) 2026 Manhwari. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/*
TestMemoryTier_SetGet verifies the basic store/retrieve cycle and that the
hit/miss counters track reads correctly.
*/
func TestMemoryTier_SetGet(t *testing.T) {
	ctx := context.Background()
	tier, err := NewMemoryTier[string](ctx, 10, time.Minute)
	require.NoError(t, err)

	tier.Set(ctx, "manhwa:entity:1", "solo-leveling")

	value, found := tier.Get(ctx, "manhwa:entity:1")
	assert.True(t, found)
	assert.Equal(t, "solo-leveling", value)

	_, found = tier.Get(ctx, "manhwa:entity:2")
	assert.False(t, found)

	stats := tier.Stats(ctx)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Keys)
}

/*
TestMemoryTier_Expiry verifies that an entry written with a short TTL is
reported as a miss once its deadline passes, even before the sweep runs.
*/
func TestMemoryTier_Expiry(t *testing.T) {
	ctx := context.Background()
	tier, err := NewMemoryTier[int](ctx, 10, time.Minute)
	require.NoError(t, err)

	tier.SetTTL(ctx, "short-lived", 42, 10*time.Millisecond)

	_, found := tier.Get(ctx, "short-lived")
	assert.True(t, found)

	time.Sleep(25 * time.Millisecond)

	_, found = tier.Get(ctx, "short-lived")
	assert.False(t, found)
	assert.Equal(t, 0, tier.Stats(ctx).Keys)
}

/*
TestMemoryTier_CapacityBound verifies that the tier never holds more keys
than its configured capacity and evicts the least recently used entry.
*/
func TestMemoryTier_CapacityBound(t *testing.T) {
	ctx := context.Background()
	tier, err := NewMemoryTier[int](ctx, 3, time.Minute)
	require.NoError(t, err)

	for index := 0; index < 5; index++ {
		tier.Set(ctx, fmt.Sprintf("key-%d", index), index)
	}

	assert.Equal(t, 3, tier.Stats(ctx).Keys)

	// Oldest entries were evicted first.
	_, found := tier.Get(ctx, "key-0")
	assert.False(t, found)
	_, found = tier.Get(ctx, "key-4")
	assert.True(t, found)
}

/*
TestMemoryTier_DeleteMatching verifies substring invalidation: only keys
containing the fragment are removed, and the removed count is reported.
*/
func TestMemoryTier_DeleteMatching(t *testing.T) {
	ctx := context.Background()
	tier, err := NewMemoryTier[string](ctx, 20, time.Minute)
	require.NoError(t, err)

	tier.Set(ctx, "search:q=tower", "a")
	tier.Set(ctx, "search:q=dungeon", "b")
	tier.Set(ctx, "manhwa:entity:7", "c")

	removed := tier.DeleteMatching(ctx, "search:")
	assert.Equal(t, 2, removed)

	_, found := tier.Get(ctx, "manhwa:entity:7")
	assert.True(t, found)
	_, found = tier.Get(ctx, "search:q=tower")
	assert.False(t, found)
}

/*
TestMemoryTier_DeleteMatching_Empty verifies that an empty substring flushes
the whole tier, which is what the admin cache-clear endpoint relies on.
*/
func TestMemoryTier_DeleteMatching_Empty(t *testing.T) {
	ctx := context.Background()
	tier, err := NewMemoryTier[string](ctx, 20, time.Minute)
	require.NoError(t, err)

	tier.Set(ctx, "one", "1")
	tier.Set(ctx, "two", "2")

	removed := tier.DeleteMatching(ctx, "")
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, tier.Stats(ctx).Keys)
}
