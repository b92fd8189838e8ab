// Copyright (c) 2026 Manhwari. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// # Test Doubles

// fakeSynchronizer records every attempt and fails ids listed in failing.
type fakeSynchronizer struct {
	mutex    sync.Mutex
	attempts map[int64]int
	failing  map[int64]bool
}

func newFakeSynchronizer() *fakeSynchronizer {
	return &fakeSynchronizer{
		attempts: make(map[int64]int),
		failing:  make(map[int64]bool),
	}
}

func (f *fakeSynchronizer) Synchronize(_ context.Context, id int64, _ string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.attempts[id]++
	if f.failing[id] {
		return errors.New("upstream unavailable")
	}
	return nil
}

func (f *fakeSynchronizer) attemptCount(id int64) int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.attempts[id]
}

// fakeSource serves a fixed candidate list.
type fakeSource struct {
	candidates []Candidate
	err        error
}

func (f *fakeSource) ListOutdated(_ context.Context, limit int) ([]Candidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.candidates) > limit {
		return f.candidates[:limit], nil
	}
	return f.candidates, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func drained(s *Syncer) func() bool {
	return func() bool {
		status := s.Status()
		return status.QueueLength == 0 && !status.IsProcessing
	}
}

// # Tests

/*
TestSyncer_ProcessQueue_Success verifies that every queued item is
synchronised exactly once.
*/
func TestSyncer_ProcessQueue_Success(t *testing.T) {
	synchronizer := newFakeSynchronizer()
	s := New(synchronizer, &fakeSource{}, 10, testLogger())

	s.Enqueue(1, "uuid-1", 1)
	s.Enqueue(2, "uuid-2", 1)
	s.Enqueue(3, "uuid-3", 0)

	s.ProcessQueue(context.Background())

	assert.Equal(t, 1, synchronizer.attemptCount(1))
	assert.Equal(t, 1, synchronizer.attemptCount(2))
	assert.Equal(t, 1, synchronizer.attemptCount(3))
	assert.Equal(t, 0, s.Status().QueueLength)
}

/*
TestSyncer_RetryBound verifies that a persistently failing item is
attempted exactly four times (one initial plus three retries) and then
dropped.
*/
func TestSyncer_RetryBound(t *testing.T) {
	synchronizer := newFakeSynchronizer()
	synchronizer.failing[42] = true
	s := New(synchronizer, &fakeSource{}, 10, testLogger())

	s.Enqueue(42, "uuid-42", 0)
	s.ProcessQueue(context.Background())

	// Retries re-enter via the queue across batches, so wait for the
	// drain loop to settle.
	require.Eventually(t, drained(s), 15*time.Second, 10*time.Millisecond)
	assert.Equal(t, 4, synchronizer.attemptCount(42))
}

/*
TestSyncer_RetrySucceedsEventually verifies that an item failing once and
then succeeding is not attempted beyond its second try.
*/
func TestSyncer_RetrySucceedsEventually(t *testing.T) {
	synchronizer := newFakeSynchronizer()
	synchronizer.failing[5] = true
	s := New(synchronizer, &fakeSource{}, 10, testLogger())

	go func() {
		// Let the first attempt fail, then heal the upstream.
		time.Sleep(200 * time.Millisecond)
		synchronizer.mutex.Lock()
		synchronizer.failing[5] = false
		synchronizer.mutex.Unlock()
	}()

	s.Enqueue(5, "uuid-5", 0)
	s.ProcessQueue(context.Background())

	require.Eventually(t, drained(s), 15*time.Second, 10*time.Millisecond)
	attempts := synchronizer.attemptCount(5)
	assert.GreaterOrEqual(t, attempts, 2)
	assert.LessOrEqual(t, attempts, 4)
}

/*
TestSyncer_QueueOutdated verifies that failed candidates are enqueued at
priority 0 and the rest at priority 1.
*/
func TestSyncer_QueueOutdated(t *testing.T) {
	source := &fakeSource{candidates: []Candidate{
		{ID: 1, UpstreamID: "uuid-1", Failed: false},
		{ID: 2, UpstreamID: "uuid-2", Failed: true},
		{ID: 3, UpstreamID: "uuid-3", Failed: false},
	}}
	s := New(newFakeSynchronizer(), source, 10, testLogger())

	require.NoError(t, s.QueueOutdated(context.Background()))
	assert.Equal(t, 3, s.Status().QueueLength)

	// The failed row drains first.
	first := s.queue.Pop()
	require.NotNil(t, first)
	assert.Equal(t, int64(2), first.ID)
	assert.Equal(t, 0, first.Priority)
}

/*
TestSyncer_QueueOutdated_SourceError verifies that a store failure is
propagated and nothing is enqueued.
*/
func TestSyncer_QueueOutdated_SourceError(t *testing.T) {
	source := &fakeSource{err: errors.New("connection refused")}
	s := New(newFakeSynchronizer(), source, 10, testLogger())

	assert.Error(t, s.QueueOutdated(context.Background()))
	assert.Equal(t, 0, s.Status().QueueLength)
}

/*
TestSyncer_ReentryGuard verifies that concurrent ProcessQueue calls do not
double-process items.
*/
func TestSyncer_ReentryGuard(t *testing.T) {
	synchronizer := newFakeSynchronizer()
	s := New(synchronizer, &fakeSource{}, 2, testLogger())

	for id := int64(1); id <= 6; id++ {
		s.Enqueue(id, "uuid", 1)
	}

	var waitGroup sync.WaitGroup
	for worker := 0; worker < 4; worker++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			s.ProcessQueue(context.Background())
		}()
	}
	waitGroup.Wait()

	require.Eventually(t, drained(s), 15*time.Second, 10*time.Millisecond)
	for id := int64(1); id <= 6; id++ {
		assert.Equal(t, 1, synchronizer.attemptCount(id), "id %d", id)
	}
}

/*
TestSyncer_DecayPriority verifies the priority decay clamp.
*/
func TestSyncer_DecayPriority(t *testing.T) {
	assert.Equal(t, 1, decayPriority(0))
	assert.Equal(t, 10, decayPriority(9))
	assert.Equal(t, 10, decayPriority(10))
	assert.Equal(t, 10, decayPriority(15))
}

/*
TestSyncer_Status verifies the status report shape.
*/
func TestSyncer_Status(t *testing.T) {
	s := New(newFakeSynchronizer(), &fakeSource{}, 10, testLogger())
	s.Enqueue(1, "uuid-1", 2)

	status := s.Status()
	assert.Equal(t, 1, status.QueueLength)
	assert.False(t, status.IsProcessing)
	require.Len(t, status.Items, 1)
	assert.Equal(t, int64(1), status.Items[0].ID)
	assert.Equal(t, 2, status.Items[0].Priority)
}
