package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

const apiRateKey = "events"

// APISink mirrors the events of a run to the control-plane events endpoint.
// Events are held until Flush so a slow or throttling endpoint never stalls
// the traversal that produces them.
type APISink struct {
	logger  zerolog.Logger
	poster  *poster
	pending buffer
}

// APIOption customizes APISink behavior.
type APIOption func(*deliveryPolicy)

// WithAPIRate limits event delivery to one event per interval with the given burst.
// A zero interval disables rate limiting.
func WithAPIRate(interval time.Duration, burst int) APIOption {
	return func(p *deliveryPolicy) {
		p.rateInterval = interval
		p.rateBurst = burst
	}
}

// WithAPIBackoff overrides retry timing. maxElapsed bounds the retries of a
// single event, Retry-After waits included.
func WithAPIBackoff(initial, maxInterval, maxElapsed time.Duration) APIOption {
	return func(p *deliveryPolicy) {
		p.retryInitial = initial
		p.retryMax = maxInterval
		p.retryBudget = maxElapsed
	}
}

// NewAPISink creates a sink posting to <apiURL>/events.
func NewAPISink(logger zerolog.Logger, apiURL string, timeout time.Duration, opts ...APIOption) (*APISink, error) {
	if apiURL == "" {
		return nil, errors.New("api url must not be empty")
	}
	endpoint, err := url.JoinPath(apiURL, "events")
	if err != nil {
		return nil, fmt.Errorf("build events url: %w", err)
	}

	policy := defaultPolicy
	policy.rateInterval = 20 * time.Millisecond
	policy.rateBurst = 20
	if timeout > 0 {
		policy.timeout = timeout
	}
	for _, opt := range opts {
		opt(&policy)
	}

	return &APISink{
		logger: logger,
		poster: newPoster(logger, "events api", endpoint, policy),
	}, nil
}

// Log implements Sink. Log lines are not mirrored to the API.
func (s *APISink) Log(context.Context, string) error {
	return nil
}

// Event implements Sink. The event is queued for the next Flush.
func (s *APISink) Event(_ context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	s.pending.add(event)
	return nil
}

// Flush implements Flusher. Events are posted one per request in publish
// order; the first event that cannot be delivered within its retry budget
// ends the flush and the rest of the batch is dropped.
func (s *APISink) Flush(ctx context.Context) error {
	batch := s.pending.drain()
	for i, event := range batch {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if err := s.poster.deliver(ctx, apiRateKey, payload); err != nil {
			return fmt.Errorf("%d of %d events undelivered: %w", len(batch)-i, len(batch), err)
		}
	}
	if len(batch) > 0 {
		s.logger.Debug().Int("events", len(batch)).Msg("events mirrored to api")
	}
	return nil
}
