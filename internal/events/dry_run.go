package events

import (
	"context"

	"github.com/rs/zerolog"
)

// DryRunSink logs events without delivering them to the wrapped sink.
type DryRunSink struct {
	logger zerolog.Logger
	inner  Sink
}

// NewDryRunSink returns a sink that suppresses delivery and logs instead.
func NewDryRunSink(logger zerolog.Logger, inner Sink) *DryRunSink {
	return &DryRunSink{logger: logger, inner: inner}
}

// Log implements Sink.
func (d *DryRunSink) Log(context.Context, string) error {
	return nil
}

// Event implements Sink.
func (d *DryRunSink) Event(_ context.Context, event Event) error {
	d.logger.Info().
		Strs("tags", event.Tags).
		Float64("value", event.Value).
		Str("type", event.Type).
		Msg("[DRY-RUN] Would emit event")
	return nil
}
