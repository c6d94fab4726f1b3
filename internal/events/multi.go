package events

import (
	"context"
	"errors"
)

// MultiSink fans out log lines and events to multiple sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a sink that dispatches to all provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	filtered := make([]Sink, 0, len(sinks))
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		filtered = append(filtered, sink)
	}
	return &MultiSink{sinks: filtered}
}

// Log implements Sink.
func (m *MultiSink) Log(ctx context.Context, message string) error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Log(ctx, message); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Event implements Sink.
func (m *MultiSink) Event(ctx context.Context, event Event) error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Event(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Flush implements Flusher and flushes every batching sink.
func (m *MultiSink) Flush(ctx context.Context) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := Flush(ctx, sink); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
