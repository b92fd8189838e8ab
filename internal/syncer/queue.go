// Copyright (c) 2026 Manhwari. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package syncer

import (
	"container/heap"
	"sync"
)

// Item is one queued synchronisation task. Lower priority runs sooner;
// ties run in enqueue order.
type Item struct {
	ID         int64  `json:"id"`
	UpstreamID string `json:"-"`
	Priority   int    `json:"priority"`
	Retries    int    `json:"retries"`

	// sequence breaks priority ties FIFO.
	sequence uint64
}

// queue is a concurrency-safe priority queue with duplicate suppression:
// enqueueing an id that is already queued is a no-op.
type queue struct {
	mutex    sync.Mutex
	items    itemHeap
	present  map[int64]struct{}
	sequence uint64
}

func newQueue() *queue {
	return &queue{
		present: make(map[int64]struct{}),
	}
}

// Push enqueues an item. It reports false when the id is already queued;
// the existing entry keeps its position and priority.
func (q *queue) Push(item *Item) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if _, queued := q.present[item.ID]; queued {
		return false
	}

	q.sequence++
	item.sequence = q.sequence
	q.present[item.ID] = struct{}{}
	heap.Push(&q.items, item)
	return true
}

// Pop removes and returns the most urgent item, or nil when empty.
func (q *queue) Pop() *Item {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.items.Len() == 0 {
		return nil
	}

	item := heap.Pop(&q.items).(*Item)
	delete(q.present, item.ID)
	return item
}

// Len returns the number of queued items.
func (q *queue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.items.Len()
}

// Snapshot returns a copy of the queued items for status reporting, in no
// particular order.
func (q *queue) Snapshot() []Item {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	snapshot := make([]Item, 0, q.items.Len())
	for _, item := range q.items {
		snapshot = append(snapshot, *item)
	}
	return snapshot
}

// # Heap Implementation

// itemHeap orders items ascending by priority, FIFO within a priority.
type itemHeap []*Item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].sequence < h[j].sequence
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(value any) {
	*h = append(*h, value.(*Item))
}

func (h *itemHeap) Pop() any {
	old := *h
	last := len(old) - 1
	item := old[last]
	old[last] = nil
	*h = old[:last]
	return item
}
