package events

import "lendcore/core/types"

// Event represents a structured state change emitted by the lending engine.
type Event interface {
	EventType() string
}

// Typed is implemented by events that can render themselves into the generic
// attribute form consumed by logs and the HTTP API.
type Typed interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. HTTP, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer holds events produced while an operation is in flight so that they
// are only published once its writes are committed.
type Buffer struct {
	pending []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(ev Event) {
	if ev == nil {
		return
	}
	b.pending = append(b.pending, ev)
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int { return len(b.pending) }

// Events returns the buffered events without clearing them.
func (b *Buffer) Events() []Event {
	out := make([]Event, len(b.pending))
	copy(out, b.pending)
	return out
}

// Flush forwards the buffered events to dst in emission order and clears the
// buffer. A nil destination drops the events.
func (b *Buffer) Flush(dst Emitter) {
	pending := b.pending
	b.pending = nil
	if dst == nil {
		return
	}
	for _, ev := range pending {
		dst.Emit(ev)
	}
}

// Fanout forwards every event to each of its emitters.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(ev Event) {
	for _, e := range f {
		if e != nil {
			e.Emit(ev)
		}
	}
}
