// Copyright (c) 2026 Manhwari. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package syncer runs the background synchronisation of upstream-sourced
manhwa.

Architecture:

  - queue: In-process priority queue (lower priority runs sooner, FIFO
    ties, duplicate ids suppressed).
  - Syncer: Batch worker draining the queue, cron-seeded from the store.

Core Responsibilities:

  - Cron trigger: On each tick, outdated and failed rows are queued
    (failed first) and the queue is drained in concurrent batches.
  - Retry with decay: A failed item is retried up to three times, each
    re-enqueue at a numerically higher (weaker) priority.
  - Manual path: SyncNow enqueues at the highest priority and kicks the
    worker when idle, so user-triggered refreshes never wait for the
    next cron tick.

The queue is deliberately not durable: it is re-seeded from the store on
every cron tick, so a restart loses nothing but timing.
*/
package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// # Tuning Constants

const (
	// defaultBatchSize is how many items one processing round drains
	// concurrently when the configured batch size is unset.
	defaultBatchSize = 10

	// maxRetries bounds the retry count per item: 1 + 3 attempts total.
	maxRetries = 3

	// maxPriority is the weakest priority an item can decay to.
	maxPriority = 10

	// interBatchDelay spaces consecutive batches so a deep queue cannot
	// saturate the upstream rate budget.
	interBatchDelay = 2 * time.Second

	// outdatedLimit caps how many rows one QueueOutdated pass seeds.
	outdatedLimit = 100

	// itemTimeout bounds one synchronisation attempt.
	itemTimeout = 30 * time.Second
)

// # Collaborator Contracts

// Synchronizer performs the actual per-row synchronisation. The catalogue
// service satisfies it.
type Synchronizer interface {
	Synchronize(ctx context.Context, id int64, upstreamID string) error
}

// CandidateSource lists rows due for synchronisation.
type CandidateSource interface {
	ListOutdated(ctx context.Context, limit int) ([]Candidate, error)
}

// Candidate is one row eligible for background synchronisation.
type Candidate struct {
	ID           int64
	UpstreamID   string
	Failed       bool
	LastSyncedAt *time.Time
}

// Status is the syncer's queue report for the admin surface.
type Status struct {
	QueueLength  int    `json:"queueLength"`
	IsProcessing bool   `json:"isProcessing"`
	Items        []Item `json:"items"`
}

// # Syncer

// Syncer drains the priority queue in concurrent batches. Construct with
// [New]; the zero value is not usable.
type Syncer struct {
	queue     *queue
	sync      Synchronizer
	source    CandidateSource
	batchSize int
	logger    *slog.Logger

	mutex        sync.Mutex
	isProcessing bool

	scheduler *gocron.Scheduler

	// baseCtx parents all background work; cancelling it stops in-flight
	// synchronisation on shutdown.
	baseCtx context.Context
	cancel  context.CancelFunc
}

// New constructs a syncer. batchSize falls back to 10 when non-positive.
func New(synchronizer Synchronizer, source CandidateSource, batchSize int, logger *slog.Logger) *Syncer {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &Syncer{
		queue:     newQueue(),
		sync:      synchronizer,
		source:    source,
		batchSize: batchSize,
		logger:    logger.With(slog.String("component", "syncer")),
		baseCtx:   baseCtx,
		cancel:    cancel,
	}
}

// Start schedules the cron trigger. On each tick the queue is seeded from
// the store and then drained.
func (s *Syncer) Start(cronSchedule string) error {
	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()

	_, err := scheduler.Cron(cronSchedule).Do(func() {
		if err := s.QueueOutdated(s.baseCtx); err != nil {
			s.logger.Error("queue:error", slog.String("error", err.Error()))
		}
		s.ProcessQueue(s.baseCtx)
	})
	if err != nil {
		return err
	}

	scheduler.StartAsync()
	s.scheduler = scheduler

	s.logger.Info("syncer_started", slog.String("schedule", cronSchedule))
	return nil
}

// Stop halts the cron trigger and cancels in-flight work.
func (s *Syncer) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	s.cancel()
}

// # Queueing

// Enqueue adds one item. It reports false when the id is already queued.
func (s *Syncer) Enqueue(id int64, upstreamID string, priority int) bool {
	return s.queue.Push(&Item{
		ID:         id,
		UpstreamID: upstreamID,
		Priority:   priority,
	})
}

// SyncNow enqueues at the highest priority and starts processing if the
// worker is idle. Fire-and-forget: the caller never waits.
func (s *Syncer) SyncNow(id int64, upstreamID string) {
	s.Enqueue(id, upstreamID, 0)
	go s.ProcessQueue(s.baseCtx)
}

/*
QueueOutdated seeds the queue from the store.

Up to 100 rows are selected: never synced, stale beyond the staleness
window, or previously failed. Failed rows are enqueued at priority 0 so
they run first; the rest at priority 1, oldest sync first.
*/
func (s *Syncer) QueueOutdated(context context.Context) error {
	candidates, err := s.source.ListOutdated(context, outdatedLimit)
	if err != nil {
		return err
	}

	queued := 0
	for _, candidate := range candidates {
		priority := 1
		if candidate.Failed {
			priority = 0
		}
		if s.Enqueue(candidate.ID, candidate.UpstreamID, priority) {
			queued++
		}
	}

	s.logger.Info("outdated_queued",
		slog.Int("candidates", len(candidates)),
		slog.Int("queued", queued),
	)
	return nil
}

// KickFullSync seeds the queue and drains it in the background.
func (s *Syncer) KickFullSync(context context.Context) error {
	if err := s.QueueOutdated(context); err != nil {
		return err
	}
	go s.ProcessQueue(s.baseCtx)
	return nil
}

// Status reports the queue length, the processing flag, and the queued
// items.
func (s *Syncer) Status() Status {
	s.mutex.Lock()
	isProcessing := s.isProcessing
	s.mutex.Unlock()

	items := s.queue.Snapshot()
	return Status{
		QueueLength:  len(items),
		IsProcessing: isProcessing,
		Items:        items,
	}
}

// # Processing

/*
ProcessQueue drains the queue in concurrent batches.

A re-entry guard makes concurrent calls no-ops: exactly one drain loop
runs at a time. Each batch launches its items concurrently and waits for
all of them regardless of individual failure; consecutive batches are
spaced by a two-second delay to stay inside the upstream rate budget.

A failed item with retries left is re-enqueued one priority weaker
(clamped at 10); after the third retry it is dropped with a sync:failed
observation. The per-row Failed writeback happens inside the
[Synchronizer].
*/
func (s *Syncer) ProcessQueue(context context.Context) {

	// Re-entry guard
	s.mutex.Lock()
	if s.isProcessing || s.queue.Len() == 0 {
		s.mutex.Unlock()
		return
	}
	s.isProcessing = true
	s.mutex.Unlock()

	defer func() {
		s.mutex.Lock()
		s.isProcessing = false
		s.mutex.Unlock()
	}()

	for {
		if context.Err() != nil {
			return
		}

		batch := s.takeBatch()
		if len(batch) == 0 {
			return
		}

		// Launch the batch concurrently and wait for every item.
		var waitGroup sync.WaitGroup
		for _, item := range batch {
			waitGroup.Add(1)
			go func(item *Item) {
				defer waitGroup.Done()
				s.processItem(context, item)
			}(item)
		}
		waitGroup.Wait()

		if s.queue.Len() == 0 {
			return
		}

		// Space batches out; bail early on shutdown.
		select {
		case <-context.Done():
			return
		case <-time.After(interBatchDelay):
		}
	}
}

// takeBatch pops up to batchSize items off the queue.
func (s *Syncer) takeBatch() []*Item {
	batch := make([]*Item, 0, s.batchSize)
	for len(batch) < s.batchSize {
		item := s.queue.Pop()
		if item == nil {
			break
		}
		batch = append(batch, item)
	}
	return batch
}

// processItem runs one synchronisation attempt and applies the retry
// policy on failure.
func (s *Syncer) processItem(parent context.Context, item *Item) {
	itemCtx, cancelItem := context.WithTimeout(parent, itemTimeout)
	defer cancelItem()

	err := s.sync.Synchronize(itemCtx, item.ID, item.UpstreamID)
	if err == nil {
		s.logger.Info("sync:success", slog.Int64("manhwa_id", item.ID))
		return
	}

	if item.Retries < maxRetries {
		retry := &Item{
			ID:         item.ID,
			UpstreamID: item.UpstreamID,
			Priority:   decayPriority(item.Priority),
			Retries:    item.Retries + 1,
		}
		s.queue.Push(retry)
		s.logger.Warn("sync:retry",
			slog.Int64("manhwa_id", item.ID),
			slog.Int("attempt", retry.Retries),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Error("sync:failed",
		slog.Int64("manhwa_id", item.ID),
		slog.Int("retries", item.Retries),
		slog.String("error", err.Error()),
	)
}

// decayPriority weakens a priority by one step, clamped at the maximum.
func decayPriority(priority int) int {
	if priority >= maxPriority {
		return maxPriority
	}
	return priority + 1
}
