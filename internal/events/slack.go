package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

const (
	slackMaxBlocks = 50
	// slackReservedBlocks accounts for header block + context block in each message
	slackReservedBlocks = 2
	slackMaxEvents      = slackMaxBlocks - slackReservedBlocks
)

// SlackSink posts one digest per run listing the unhealthy nodes of that run.
type SlackSink struct {
	logger  zerolog.Logger
	target  string
	policy  deliveryPolicy
	poster  *poster
	pending buffer
}

// SlackOption customizes SlackSink behavior.
type SlackOption func(*SlackSink)

// WithSlackTiming overrides timing parameters (primarily for testing).
func WithSlackTiming(rateInterval time.Duration, rateBurst int, backoffInitial, backoffMax, backoffMaxElapsed time.Duration) SlackOption {
	return func(s *SlackSink) {
		s.policy.rateInterval = rateInterval
		s.policy.rateBurst = rateBurst
		s.policy.retryInitial = backoffInitial
		s.policy.retryMax = backoffMax
		s.policy.retryBudget = backoffMaxElapsed
	}
}

// NewSlackSink creates a Slack digest sink or a noop sink when the webhook is empty.
func NewSlackSink(logger zerolog.Logger, webhookURL, target string, opts ...SlackOption) Sink {
	if webhookURL == "" {
		return NewNoop(logger, "slack webhook not configured; digests disabled")
	}

	sink := &SlackSink{
		logger: logger,
		target: targetLabel(target),
		policy: defaultPolicy,
	}
	for _, opt := range opts {
		opt(sink)
	}

	sink.poster = newPoster(logger, "slack", webhookURL, sink.policy)

	return sink
}

// Log implements Sink.
func (s *SlackSink) Log(context.Context, string) error {
	return nil
}

// Event implements Sink. Only unhealthy events are kept for the digest.
func (s *SlackSink) Event(_ context.Context, event Event) error {
	if event.Value > 0 {
		s.pending.add(event)
	}
	return nil
}

// Flush implements Flusher.
func (s *SlackSink) Flush(ctx context.Context) error {
	unhealthy := s.pending.drain()
	if len(unhealthy) == 0 {
		return nil
	}

	messages := buildSlackMessages(s.target, unhealthy)
	for _, message := range messages {
		payload, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("marshal slack payload: %w", err)
		}
		if err := s.poster.deliver(ctx, s.target, payload); err != nil {
			return err
		}
	}

	s.logger.Debug().
		Str("target", s.target).
		Int("unhealthy", len(unhealthy)).
		Int("messages", len(messages)).
		Msg("slack digest sent")

	return nil
}

func buildSlackMessages(target string, unhealthy []Event) []slack.WebhookMessage {
	if len(unhealthy) == 0 {
		return nil
	}

	total := len(unhealthy)
	chunkTotal := (total + slackMaxEvents - 1) / slackMaxEvents
	messages := make([]slack.WebhookMessage, 0, chunkTotal)

	for i := 0; i < total; i += slackMaxEvents {
		end := min(i+slackMaxEvents, total)
		partIndex := (i / slackMaxEvents) + 1
		messages = append(messages, buildSlackMessage(target, unhealthy[i:end], total, partIndex, chunkTotal))
	}
	return messages
}

func buildSlackMessage(target string, unhealthy []Event, total int, partIndex int, partTotal int) slack.WebhookMessage {
	summary := fmt.Sprintf("Target %s: %d unhealthy node(s)", target, total)
	if partTotal > 1 {
		summary = fmt.Sprintf("%s (part %d/%d)", summary, partIndex, partTotal)
	}
	header := slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text", summary, false, false))
	contextElements := []slack.MixedElement{
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Target: *%s*", target), false, false),
	}
	if partTotal > 1 {
		contextElements = append(contextElements, slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Batch: %d/%d", partIndex, partTotal), false, false))
	}
	contextBlock := slack.NewContextBlock("", contextElements...)

	blocks := []slack.Block{header, contextBlock}
	for _, event := range unhealthy {
		blocks = append(blocks, buildEventBlock(event))
	}

	blockSet := slack.Blocks{BlockSet: blocks}
	return slack.WebhookMessage{
		Text:   summary,
		Blocks: &blockSet,
	}
}

func buildEventBlock(event Event) slack.Block {
	title := fmt.Sprintf("`%s` → %g", strings.Join(event.Tags, " / "), event.Value)
	text := slack.NewTextBlockObject("mrkdwn", title, false, false)
	return slack.NewSectionBlock(text, nil, nil)
}
