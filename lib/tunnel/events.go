package tunnel

import (
	"sync/atomic"
	"time"

	"github.com/go-wg/tunnelkit/lib/metrics"
	"github.com/go-wg/tunnelkit/lib/netmon"
)

// EventType categorizes tunnel lifecycle events.
type EventType int

const (
	// EventStarted is emitted when the tunnel comes up.
	EventStarted EventType = iota
	// EventStopped is emitted when the tunnel is stopped.
	EventStopped
	// EventUpdated is emitted after a live configuration update.
	EventUpdated
	// EventPathChanged is emitted for every network path observation.
	EventPathChanged
	// EventTemporaryShutdown is emitted when the tunnel is brought down
	// because the path became unusable.
	EventTemporaryShutdown
	// EventRestarted is emitted when the tunnel recovers from a temporary
	// shutdown.
	EventRestarted
	// EventError is emitted for recoverable errors that are not surfaced
	// through an operation's return value.
	EventError
)

// String returns a human-readable name for the event type.
func (t EventType) String() string {
	switch t {
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	case EventUpdated:
		return "updated"
	case EventPathChanged:
		return "path_changed"
	case EventTemporaryShutdown:
		return "temporary_shutdown"
	case EventRestarted:
		return "restarted"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one tunnel lifecycle or network event.
type Event struct {
	// Type is the category of this event.
	Type EventType

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// State is the lifecycle state after the event.
	State State

	// Path carries the observation for EventPathChanged. Nil otherwise.
	Path *netmon.Path

	// Error carries the error for EventError events. Nil otherwise.
	Error error

	// Message is a human-readable description of the event.
	Message string
}

// eventEmitter manages the buffered event channel. Emission never blocks:
// events are dropped when the consumer falls behind, and drops are counted.
type eventEmitter struct {
	events       chan Event
	closed       bool
	droppedCount atomic.Uint64
}

func newEventEmitter(bufferSize int) *eventEmitter {
	if bufferSize < 1 {
		bufferSize = 64
	}
	return &eventEmitter{
		events: make(chan Event, bufferSize),
	}
}

func (e *eventEmitter) emit(event Event) {
	if e.closed {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case e.events <- event:
	default:
		e.droppedCount.Add(1)
		metrics.DroppedEvents.Inc()
	}
}

func (e *eventEmitter) emitSimple(eventType EventType, state State, message string) {
	e.emit(Event{
		Type:    eventType,
		State:   state,
		Message: message,
	})
}

func (e *eventEmitter) emitError(err error, state State, message string) {
	e.emit(Event{
		Type:    EventError,
		State:   state,
		Error:   err,
		Message: message,
	})
}

func (e *eventEmitter) emitPath(path netmon.Path, state State) {
	p := path
	e.emit(Event{
		Type:    EventPathChanged,
		State:   state,
		Path:    &p,
		Message: "network path " + path.Status.String(),
	})
}

func (e *eventEmitter) channel() <-chan Event {
	return e.events
}

func (e *eventEmitter) droppedEvents() uint64 {
	return e.droppedCount.Load()
}

func (e *eventEmitter) close() {
	if !e.closed {
		e.closed = true
		close(e.events)
	}
}
