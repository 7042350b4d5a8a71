package orchestrator

import (
	"log"
	"sync/atomic"
	"time"
)

// sendTimeout is how long Emit waits for a full channel to drain before
// dropping the event.
const sendTimeout = 100 * time.Millisecond

// EventSink receives lifecycle events, fire and forget. The emitter, the
// log sink, and the nop sink all satisfy it, as does the convergence loop's
// sink contract.
type EventSink interface {
	Publish(projectID string, eventType string, payload map[string]any)
}

// EventEmitter fans lifecycle events out to a subscriber over a bounded
// channel. Emission never blocks the workflow: a full channel gets a short
// grace period, then the event is dropped and counted.
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEventEmitter creates an EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{
		events: make(chan Event, bufferSize),
	}
}

// Emit sends an event to the channel. If the channel is full it retries
// with a timeout before dropping the event.
func (e *EventEmitter) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Try immediate send first.
	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
		return
	case <-time.After(sendTimeout):
		count := e.droppedCount.Add(1)
		if count%10 == 1 { // log every 10th drop to avoid spam
			log.Printf("[orchestrator] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// Publish wraps the arguments into an Event and emits it.
func (e *EventEmitter) Publish(projectID string, eventType string, payload map[string]any) {
	e.Emit(Event{
		Type:      EventType(eventType),
		ProjectID: projectID,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

// DroppedCount returns the total number of dropped events.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns the read-only subscriber channel.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the events channel. Call only after all emitters are done.
func (e *EventEmitter) Close() {
	close(e.events)
}

// LogSink writes events to the standard logger; the sink for headless runs.
type LogSink struct{}

// Publish implements EventSink.
func (LogSink) Publish(projectID string, eventType string, payload map[string]any) {
	log.Printf("[event] project=%s type=%s payload=%v", projectID, eventType, payload)
}

// NopSink discards events.
type NopSink struct{}

// Publish implements EventSink.
func (NopSink) Publish(string, string, map[string]any) {}

var (
	_ EventSink = (*EventEmitter)(nil)
	_ EventSink = LogSink{}
	_ EventSink = NopSink{}
)
