package engine

import (
	"sync"

	"github.com/LingmoOS/lingmo-menu/internal/appinfo"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventAdded carries identifiers of newly indexed applications.
	EventAdded EventType = iota + 1
	// EventUpdated carries a partial property delta per identifier.
	EventUpdated
	// EventUpdatedAll carries identifiers to re-fetch in full.
	EventUpdatedAll
	// EventDeleted carries identifiers of removed applications.
	EventDeleted
	// EventOpenFailed reports that the backing database is unavailable.
	EventOpenFailed
	// EventRequest carries a mutation request from the manager.
	EventRequest
)

var eventTypeNames = map[EventType]string{
	EventAdded:      "added",
	EventUpdated:    "updated",
	EventUpdatedAll: "updated_all",
	EventDeleted:    "deleted",
	EventOpenFailed: "open_failed",
	EventRequest:    "request",
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Event is one unit of work for the worker.
type Event struct {
	Type    EventType
	IDs     []string        // EventAdded, EventUpdatedAll, EventDeleted
	Delta   appinfo.InfoMap // EventUpdated
	Request *Request        // EventRequest
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded so database callbacks never block, including the
// echo a backing database emits synchronously from inside a mutation call
// made by the worker itself.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front event without blocking.
// Returns (Event{}, false) if the queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Release references held by the backing array.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// The channel is closed when the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close stops accepting events and wakes any waiter.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

// Closed reports whether Close has been called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
