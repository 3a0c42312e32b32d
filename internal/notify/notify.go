// Package notify carries user-facing notification events from the backend to
// whatever channel the host exposes to the UI.
package notify

import (
	"sync"
)

// Level is the severity of a notification as understood by the UI.
type Level uint16

const (
	LevelInfo  Level = 1
	LevelWarn  Level = 2
	LevelError Level = 3
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// EventName is the channel name the UI listens on.
const EventName = "notification-event"

// Event is a single notification. Message is the short sentence shown to the
// user, Details the diagnostic behind it.
type Event struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
	Details string `json:"details"`
}

// Sink receives notification events. Implementations must be safe for
// concurrent use.
type Sink interface {
	Notify(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

func (f SinkFunc) Notify(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Queue holds events produced before a UI is attached. Drain hands every
// queued event to a sink and clears the queue.
type Queue struct {
	mu     sync.Mutex
	events []Event
}

func (q *Queue) Push(e Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, e)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Drain emits the queued events to sink in insertion order and empties the
// queue. It returns the number of events emitted.
func (q *Queue) Drain(sink Sink) int {
	q.mu.Lock()
	pending := q.events
	q.events = nil
	q.mu.Unlock()

	for _, e := range pending {
		sink.Notify(e)
	}
	return len(pending)
}

// Recorder is a Sink that keeps every event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
