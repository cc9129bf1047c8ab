package engine

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

type queueItem struct {
	event DelayedEvent
	seq   uint64
}

// itemHeap orders items by fire time, then by insertion sequence.
type itemHeap []queueItem

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	ti, tj := h[i].event.FireAt(), h[j].event.FireAt()
	if ti.Equal(tj) {
		return h[i].seq < h[j].seq
	}
	return ti.Before(tj)
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(queueItem)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = queueItem{} // release the event for GC
	*h = old[:n-1]
	return item
}

// delayQueue is a thread-safe, time-ordered queue of delayed events.
//
// Schedule may be called from any goroutine. Poll is called by the engine
// loop. The signal channel wakes a waiting Poll when a new item might have
// become the head.
type delayQueue struct {
	mu     sync.Mutex
	items  itemHeap
	seq    sequence
	clock  Clock
	signal chan struct{} // buffered, size 1
}

func newDelayQueue(clock Clock) *delayQueue {
	return &delayQueue{
		clock:  clock,
		signal: make(chan struct{}, 1),
	}
}

// Push inserts ev. Thread-safe.
func (q *delayQueue) Push(ev DelayedEvent) {
	q.mu.Lock()
	heap.Push(&q.items, queueItem{event: ev, seq: q.seq.Next()})
	q.mu.Unlock()

	// Non-blocking - buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// TryPop removes and returns the head if it is due.
func (q *delayQueue) TryPop() (DelayedEvent, bool) {
	ev, _, ok := q.tryPop()
	return ev, ok
}

// tryPop returns the head if due; otherwise how long until it is due
// (zero with ok=false means the queue is empty).
func (q *delayQueue) tryPop() (DelayedEvent, time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, 0, false
	}
	head := q.items[0]
	wait := head.event.FireAt().Sub(q.clock.Now())
	if wait > 0 {
		return nil, wait, false
	}
	heap.Pop(&q.items)
	return head.event, 0, true
}

// Poll waits up to timeout for the head item to become due and returns it.
// Never returns an item whose fire time is still in the future. Returns
// (nil, false) on timeout or when ctx is cancelled.
func (q *delayQueue) Poll(ctx context.Context, timeout time.Duration) (DelayedEvent, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		ev, wait, ok := q.tryPop()
		if ok {
			return ev, true
		}

		var (
			due   <-chan time.Time
			timer *time.Timer
		)
		if wait > 0 {
			timer = time.NewTimer(wait)
			due = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return nil, false
		case <-deadline.C:
			stopTimer(timer)
			// Final check: the head may have become due exactly at the deadline.
			return q.TryPop()
		case <-q.signal:
		case <-due:
		}
		stopTimer(timer)
	}
}

// Len returns the number of pending items.
func (q *delayQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns the pending events in fire order without removing them.
func (q *delayQueue) Pending() []DelayedEvent {
	q.mu.Lock()
	items := make(itemHeap, len(q.items))
	copy(items, q.items)
	q.mu.Unlock()

	out := make([]DelayedEvent, 0, len(items))
	for items.Len() > 0 {
		out = append(out, heap.Pop(&items).(queueItem).event)
	}
	return out
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
