package events

import (
	"context"

	"github.com/rs/zerolog"
)

// NoopSink drops everything.
type NoopSink struct {
	logger zerolog.Logger
	reason string
}

// NewNoop returns a sink that logs once and does nothing thereafter.
func NewNoop(logger zerolog.Logger, reason string) *NoopSink {
	if reason != "" {
		logger.Info().Msg(reason)
	}
	return &NoopSink{logger: logger, reason: reason}
}

// Log implements Sink.
func (n *NoopSink) Log(context.Context, string) error {
	return nil
}

// Event implements Sink.
func (n *NoopSink) Event(context.Context, Event) error {
	return nil
}
