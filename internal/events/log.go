package events

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSink writes log lines and events to a zerolog logger.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink returns a sink backed by logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Log implements Sink.
func (s *LogSink) Log(_ context.Context, message string) error {
	s.logger.Info().Msg(message)
	return nil
}

// Event implements Sink.
func (s *LogSink) Event(_ context.Context, event Event) error {
	s.logger.Debug().
		Strs("tags", event.Tags).
		Float64("value", event.Value).
		Str("type", event.Type).
		Msg("event emitted")
	return nil
}
