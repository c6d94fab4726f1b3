package events

import (
	"context"
	"sync"
	"time"
)

// Event is a tagged numeric event mirrored to external systems.
type Event struct {
	Tags      []string  `json:"tags"`
	Value     float64   `json:"value"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives log lines and structured events.
type Sink interface {
	Log(ctx context.Context, message string) error
	Event(ctx context.Context, event Event) error
}

// Flusher is implemented by sinks that batch events until the end of a run.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Flush flushes sink when it batches events and is a no-op otherwise.
func Flush(ctx context.Context, sink Sink) error {
	if flusher, ok := sink.(Flusher); ok {
		return flusher.Flush(ctx)
	}
	return nil
}

// buffer accumulates events between flushes.
type buffer struct {
	mu     sync.Mutex
	events []Event
}

func (b *buffer) add(event Event) {
	b.mu.Lock()
	b.events = append(b.events, event)
	b.mu.Unlock()
}

func (b *buffer) drain() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	drained := b.events
	b.events = nil
	return drained
}
