// Copyright (c) 2026 Manhwari. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package upstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances manually; install its Now on a limiter under test.
type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time { return c.current }

func (c *fakeClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

func newClockedLimiter(capacity int, window time.Duration) (*windowLimiter, *fakeClock) {
	clock := &fakeClock{current: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)}
	limiter := newWindowLimiter(capacity, window)
	limiter.now = clock.Now
	return limiter, clock
}

/*
TestWindowLimiter_BurstThenDeny verifies the full capacity is admitted at
once and the next event is denied.
*/
func TestWindowLimiter_BurstThenDeny(t *testing.T) {
	limiter, _ := newClockedLimiter(5, time.Second)

	for i := 0; i < 5; i++ {
		require.True(t, limiter.Allow(), "event %d should be admitted", i)
	}
	assert.False(t, limiter.Allow())
}

/*
TestWindowLimiter_NoTopUpInsideWindow verifies partial elapsed time does
not re-admit events: after a burst of 5 in a 1 s window, a 6th event 250 ms
later must be denied, so no 1 s span ever sees more than 5 admissions.
*/
func TestWindowLimiter_NoTopUpInsideWindow(t *testing.T) {
	limiter, clock := newClockedLimiter(5, time.Second)

	for i := 0; i < 5; i++ {
		require.True(t, limiter.Allow())
	}

	clock.Advance(250 * time.Millisecond)
	assert.False(t, limiter.Allow(), "admission inside the window would exceed the cap")

	clock.Advance(500 * time.Millisecond)
	assert.False(t, limiter.Allow())
}

/*
TestWindowLimiter_ReadmitsAfterWindow verifies an event is admitted again
once the oldest admission has aged past the window, and that admissions
then pace one-for-one with expiries.
*/
func TestWindowLimiter_ReadmitsAfterWindow(t *testing.T) {
	limiter, clock := newClockedLimiter(3, time.Second)

	require.True(t, limiter.Allow())
	clock.Advance(400 * time.Millisecond)
	require.True(t, limiter.Allow())
	clock.Advance(400 * time.Millisecond)
	require.True(t, limiter.Allow())

	// 800 ms in, the first admission is still inside the window.
	assert.False(t, limiter.Allow())

	clock.Advance(250 * time.Millisecond)
	assert.True(t, limiter.Allow(), "oldest admission left the window")

	// The second admission expires at 1400 ms; before that the ring is full.
	assert.False(t, limiter.Allow())
	clock.Advance(400 * time.Millisecond)
	assert.True(t, limiter.Allow())
}

/*
TestWindowLimiter_HourWindow verifies the login-shaped limiter holds its
cap across the whole hour rather than refilling proportionally.
*/
func TestWindowLimiter_HourWindow(t *testing.T) {
	limiter, clock := newClockedLimiter(30, time.Hour)

	for i := 0; i < 30; i++ {
		require.True(t, limiter.Allow())
	}

	clock.Advance(30 * time.Minute)
	assert.False(t, limiter.Allow(), "half the window must not re-admit")

	clock.Advance(31 * time.Minute)
	assert.True(t, limiter.Allow())
}
