// Copyright (c) 2026 Manhwari. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package coalesce deduplicates concurrent identical requests.

When N callers ask for the same key at the same time, only the first one
runs the producer function; the other N-1 block until it finishes and then
receive the same result and error. This collapses thundering herds on cache
misses so the database and the upstream API see exactly one query per
distinct key.

Coalescing is keyed by the same canonical identifiers the cache uses, so a
burst of identical searches costs one search regardless of fan-in.
*/
package coalesce

import "sync"

// call tracks one in-flight producer invocation. Waiters block on the
// WaitGroup and read the result fields after it is released.
type call[T any] struct {
	waitGroup sync.WaitGroup
	value     T
	err       error
}

// Group coalesces concurrent calls with the same key. The zero value is not
// usable; construct with NewGroup.
type Group[T any] struct {
	mutex sync.Mutex
	calls map[string]*call[T]
}

// NewGroup creates an empty coalescing group.
func NewGroup[T any]() *Group[T] {
	return &Group[T]{
		calls: make(map[string]*call[T]),
	}
}

/*
Coalesce executes producer for key, collapsing concurrent duplicates.

# Semantics

  - The first caller for a key runs producer; late arrivals block until it
    completes and share its exact result and error.
  - The producer runs outside the group's lock, so slow producers never
    block coalescing of unrelated keys.
  - The key is deregistered only after the outcome is stored, so a caller
    can never observe an in-flight key without eventually getting its
    result.
  - Waiters that give up cannot cancel the producer; the first caller's
    invocation always runs to completion.

Sequential calls with the same key each run the producer again; only
overlapping calls share a flight.
*/
func (g *Group[T]) Coalesce(key string, producer func() (T, error)) (T, error) {
	g.mutex.Lock()
	if inFlight, found := g.calls[key]; found {
		g.mutex.Unlock()
		// Duplicate caller: wait for the leader's outcome.
		inFlight.waitGroup.Wait()
		return inFlight.value, inFlight.err
	}

	leader := new(call[T])
	leader.waitGroup.Add(1)
	g.calls[key] = leader
	g.mutex.Unlock()

	// Run the producer outside the critical section.
	leader.value, leader.err = producer()

	// Publish the outcome before deregistering the key.
	leader.waitGroup.Done()

	g.mutex.Lock()
	delete(g.calls, key)
	g.mutex.Unlock()

	return leader.value, leader.err
}

// Pending returns the number of keys currently in flight.
func (g *Group[T]) Pending() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return len(g.calls)
}

// IsPending reports whether a producer for key is currently in flight.
func (g *Group[T]) IsPending(key string) bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	_, found := g.calls[key]
	return found
}

// Reset forgets all in-flight registrations. Producers already running are
// unaffected and still deliver to their existing waiters; new callers start
// fresh flights. Intended for tests and administrative resets.
func (g *Group[T]) Reset() {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.calls = make(map[string]*call[T])
}
