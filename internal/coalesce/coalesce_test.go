// Copyright (c) 2026 Manhwari. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package coalesce

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/*
TestGroup_Coalesce_SingleFlight verifies the core guarantee: many concurrent
callers with the same key trigger exactly one producer invocation, and every
caller receives the same result.
*/
func TestGroup_Coalesce_SingleFlight(t *testing.T) {
	group := NewGroup[string]()

	var invocations atomic.Int32
	release := make(chan struct{})

	producer := func() (string, error) {
		invocations.Add(1)
		<-release
		return "shared-result", nil
	}

	const callers = 25
	results := make([]string, callers)

	var waitGroup sync.WaitGroup
	for index := 0; index < callers; index++ {
		waitGroup.Add(1)
		go func(slot int) {
			defer waitGroup.Done()
			value, err := group.Coalesce("search:q=tower", producer)
			require.NoError(t, err)
			results[slot] = value
		}(index)
	}

	// Let every goroutine register against the in-flight call.
	assert.Eventually(t, func() bool {
		return group.IsPending("search:q=tower")
	}, time.Second, time.Millisecond)

	close(release)
	waitGroup.Wait()

	assert.Equal(t, int32(1), invocations.Load())
	for _, value := range results {
		assert.Equal(t, "shared-result", value)
	}
}

/*
TestGroup_Coalesce_ErrorShared verifies that a producer failure is delivered
to every waiting caller, not just the leader.
*/
func TestGroup_Coalesce_ErrorShared(t *testing.T) {
	group := NewGroup[int]()
	expected := errors.New("upstream unavailable")

	release := make(chan struct{})
	producer := func() (int, error) {
		<-release
		return 0, expected
	}

	var waitGroup sync.WaitGroup
	errorCount := atomic.Int32{}
	for index := 0; index < 5; index++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			_, err := group.Coalesce("failing-key", producer)
			if errors.Is(err, expected) {
				errorCount.Add(1)
			}
		}()
	}

	assert.Eventually(t, func() bool {
		return group.IsPending("failing-key")
	}, time.Second, time.Millisecond)

	close(release)
	waitGroup.Wait()

	assert.Equal(t, int32(5), errorCount.Load())
}

/*
TestGroup_Coalesce_SequentialRuns verifies that non-overlapping calls with
the same key each run the producer; coalescing applies only to concurrent
duplicates.
*/
func TestGroup_Coalesce_SequentialRuns(t *testing.T) {
	group := NewGroup[int]()

	var invocations atomic.Int32
	producer := func() (int, error) {
		return int(invocations.Add(1)), nil
	}

	first, err := group.Coalesce("key", producer)
	require.NoError(t, err)
	second, err := group.Coalesce("key", producer)
	require.NoError(t, err)

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
	assert.Equal(t, 0, group.Pending())
}

/*
TestGroup_Coalesce_IndependentKeys verifies that distinct keys never block
each other and are tracked separately by Pending.
*/
func TestGroup_Coalesce_IndependentKeys(t *testing.T) {
	group := NewGroup[string]()

	releaseSlow := make(chan struct{})
	var waitGroup sync.WaitGroup

	waitGroup.Add(1)
	go func() {
		defer waitGroup.Done()
		_, _ = group.Coalesce("slow", func() (string, error) {
			<-releaseSlow
			return "slow-done", nil
		})
	}()

	assert.Eventually(t, func() bool {
		return group.IsPending("slow")
	}, time.Second, time.Millisecond)

	// A different key completes while "slow" is still in flight.
	value, err := group.Coalesce("fast", func() (string, error) {
		return "fast-done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fast-done", value)

	assert.Equal(t, 1, group.Pending())
	assert.True(t, group.IsPending("slow"))
	assert.False(t, group.IsPending("fast"))

	close(releaseSlow)
	waitGroup.Wait()
	assert.Equal(t, 0, group.Pending())
}

/*
TestGroup_Reset verifies that Reset clears registrations without breaking
producers that are already running.
*/
func TestGroup_Reset(t *testing.T) {
	group := NewGroup[string]()

	release := make(chan struct{})
	done := make(chan string, 1)

	go func() {
		value, _ := group.Coalesce("key", func() (string, error) {
			<-release
			return "original", nil
		})
		done <- value
	}()

	assert.Eventually(t, func() bool {
		return group.IsPending("key")
	}, time.Second, time.Millisecond)

	group.Reset()
	assert.Equal(t, 0, group.Pending())

	// The original flight still completes and delivers its result.
	close(release)
	assert.Equal(t, "original", <-done)
}
