// Copyright (c) 2026 Manhwari. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package upstream

import (
	"sync"
	"time"
)

/*
windowLimiter admits at most capacity events per sliding window.

A token bucket with a non-trivial burst admits up to burst plus the refill
inside a window, which is double the cap right after the burst. The upstream
API accounts per trailing window, so the limiter tracks the start time of
the last capacity events in a ring: a new event is admitted only when the
oldest tracked event has left the window.
*/
type windowLimiter struct {
	mutex    sync.Mutex
	window   time.Duration
	capacity int

	// stamps is a ring of the last capacity admission times; oldest points
	// at the entry the next admission overwrites.
	stamps []time.Time
	oldest int
	count  int

	// now is swapped out by tests.
	now func() time.Time
}

// newWindowLimiter builds a limiter admitting capacity events per window.
func newWindowLimiter(capacity int, window time.Duration) *windowLimiter {
	return &windowLimiter{
		window:   window,
		capacity: capacity,
		stamps:   make([]time.Time, capacity),
		now:      time.Now,
	}
}

// Allow reports whether one more event may start now, recording it if so.
func (l *windowLimiter) Allow() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	current := l.now()

	if l.count == l.capacity && current.Sub(l.stamps[l.oldest]) < l.window {
		return false
	}

	l.stamps[l.oldest] = current
	l.oldest = (l.oldest + 1) % l.capacity
	if l.count < l.capacity {
		l.count++
	}
	return true
}
