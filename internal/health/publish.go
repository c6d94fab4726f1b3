package health

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nholik/mesh-sentinel/internal/events"
	"github.com/nholik/mesh-sentinel/internal/metrics"
	"github.com/rs/zerolog"
)

// Publisher writes a log line and a structured event for every resolved node.
type Publisher struct {
	logger    zerolog.Logger
	sink      events.Sink
	metrics   *metrics.Metrics
	target    string
	now       func() time.Time
	published atomic.Int64
}

// PublisherOption customizes Publisher behavior.
type PublisherOption func(*Publisher)

// WithMetrics counts published events and sink failures under target.
func WithMetrics(m *metrics.Metrics, target string) PublisherOption {
	return func(p *Publisher) {
		p.metrics = m
		p.target = target
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) {
		p.now = now
	}
}

// NewPublisher returns a Publisher delivering to sink.
func NewPublisher(logger zerolog.Logger, sink events.Sink, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		logger: logger,
		sink:   sink,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish emits value for tags. Sink failures are logged and never returned.
func (p *Publisher) Publish(ctx context.Context, tags TagPath, value Value) {
	p.published.Add(1)
	p.metrics.IncHealthEvents(p.target, string(tags.Kind()), value.IsHealthy())

	if err := p.sink.Log(ctx, logLine(tags, value)); err != nil {
		p.sinkFailed(err, tags, "log")
	}

	event := events.Event{
		Tags:      []string(tags),
		Value:     float64(value),
		Type:      EventType,
		Timestamp: p.now(),
	}
	if err := p.sink.Event(ctx, event); err != nil {
		p.sinkFailed(err, tags, "event")
	}
}

// Published returns how many values have been published.
func (p *Publisher) Published() int64 {
	return p.published.Load()
}

func (p *Publisher) sinkFailed(err error, tags TagPath, op string) {
	p.metrics.IncSinkErrors(p.target)
	p.logger.Warn().
		Err(err).
		Strs("tags", tags).
		Str("op", op).
		Msg("health sink delivery failed")
}

func logLine(tags TagPath, value Value) string {
	encoded, err := json.Marshal([]string(tags))
	if err != nil {
		encoded = []byte("[]")
	}
	return fmt.Sprintf("health: [%s] - %d", encoded, value)
}
