package events

import (
	"log"
	"sync/atomic"
	"time"
)

// Emitter delivers events to a single subscriber channel. Emission never
// blocks the engine for long: if the channel stays full past a short grace
// period the event is dropped and counted.
type Emitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEmitter creates an Emitter with the given buffer size.
func NewEmitter(bufferSize int) *Emitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Emitter{
		events: make(chan Event, bufferSize),
	}
}

// Emit sends an event to the channel. If the channel is full it retries
// with a short timeout before dropping the event.
func (e *Emitter) Emit(event Event) {
	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			log.Printf("[events] WARNING: channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of dropped events.
func (e *Emitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns the read-only subscriber channel.
func (e *Emitter) Events() <-chan Event {
	return e.events
}

// Close closes the events channel. Call only after all emitters are done.
func (e *Emitter) Close() {
	close(e.events)
}
