package relay

import (
	"sync"
	"time"

	"pcbuild-agent/pkg/events"
)

// PullStatus is the outcome of a single Pull call.
type PullStatus int

const (
	// Received means a real event was pulled from the queue.
	Received PullStatus = iota
	// TimedOut means no event arrived within the wait window.
	TimedOut
	// Closed means the producer signalled that no further events will
	// be produced.
	Closed
)

// Sink accepts lifecycle events from a reasoning session. Push must never
// block the caller.
type Sink interface {
	Push(ev *events.AgentEvent) bool
}

// Queue is a bounded FIFO between exactly one producer (the session worker)
// and one consumer (the stream loop). Closing the queue is the termination
// sentinel: after Close, Pull drains the remaining events and then reports
// Closed. One slot beyond the capacity is reserved for the terminal event so
// overflow can never drop it.
type Queue struct {
	ch       chan *events.AgentEvent
	capacity int

	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewQueue creates a queue holding at most capacity undelivered events.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 256
	}
	return &Queue{
		ch:       make(chan *events.AgentEvent, capacity+1),
		capacity: capacity,
	}
}

// Push enqueues an event without blocking. When the queue is full or already
// closed the event is dropped and Push returns false; event order for
// delivered events is always preserved.
func (q *Queue) Push(ev *events.AgentEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.ch) >= q.capacity {
		q.dropped++
		return false
	}
	q.ch <- ev
	return true
}

// PushFinal enqueues the session's terminal event into the reserved slot.
// It cannot be dropped by overflow; only a push after Close is discarded.
func (q *Queue) PushFinal(ev *events.AgentEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.dropped++
		return false
	}
	q.ch <- ev
	return true
}

// Pull waits up to timeout for the next event.
func (q *Queue) Pull(timeout time.Duration) (*events.AgentEvent, PullStatus) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev, ok := <-q.ch:
		if !ok {
			return nil, Closed
		}
		return ev, Received
	case <-timer.C:
		return nil, TimedOut
	}
}

// Close marks the end of the event stream. Safe to call once from the
// producer side; subsequent Push calls are dropped.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Dropped returns how many events were discarded due to overflow or pushes
// after close.
func (q *Queue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
