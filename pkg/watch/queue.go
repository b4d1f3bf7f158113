// Package watch provides real-time filesystem change detection: a recursive
// watcher feeding a debouncing event queue. Each path holds at most one
// pending event, so a burst of writes to the same file collapses into a
// single registration once the file goes quiet.
package watch

import (
	"sync"
	"time"
)

// Kind classifies a filesystem event.
type Kind string

const (
	KindCreated  Kind = "created"
	KindModified Kind = "modified"
	KindMoved    Kind = "moved"
)

// Event is one pending filesystem change.
type Event struct {
	Path      string
	Kind      Kind
	Timestamp time.Time

	// DestPath is set for moved events only
	DestPath string
}

// Queue is a debouncing event queue. Later events for a path replace earlier
// ones; an event becomes ready once its timestamp falls outside the debounce
// window. All methods are safe for concurrent use.
type Queue struct {
	debounce time.Duration
	now      func() time.Time

	mu     sync.Mutex
	events map[string]Event
}

// NewQueue creates a queue with the given debounce window.
func NewQueue(debounce time.Duration) *Queue {
	return &Queue{
		debounce: debounce,
		now:      time.Now,
		events:   make(map[string]Event),
	}
}

// Add inserts or replaces the pending event for the event's path.
func (q *Queue) Add(e Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events[e.Path] = e
}

// GetReady removes and returns every event older than the debounce window.
// Each event is returned exactly once.
func (q *Queue) GetReady() []Event {
	cutoff := q.now().Add(-q.debounce)

	q.mu.Lock()
	defer q.mu.Unlock()

	var ready []Event
	for path, e := range q.events {
		if e.Timestamp.Before(cutoff) {
			ready = append(ready, e)
			delete(q.events, path)
		}
	}
	return ready
}

// PendingCount returns the number of events still inside the debounce window.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
