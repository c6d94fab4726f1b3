package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"
	"time"

	"github.com/rs/zerolog"
)

const defaultWebhookTemplate = `{"target":"{{ .Target }}","events":{{ toJson .Events }}}`

// WebhookPayload is the template context for webhook deliveries.
type WebhookPayload struct {
	Target      string
	Events      []Event
	GeneratedAt time.Time
}

// WebhookSink batches the events of a run and posts them to a generic webhook on Flush.
type WebhookSink struct {
	logger   zerolog.Logger
	target   string
	template *template.Template
	poster   *poster
	pending  buffer
}

// NewWebhookSink creates a webhook sink with the provided template.
// It returns nil when webhookURL is empty.
func NewWebhookSink(logger zerolog.Logger, webhookURL, target, tmpl string) (*WebhookSink, error) {
	if webhookURL == "" {
		return nil, nil
	}
	if tmpl == "" {
		tmpl = defaultWebhookTemplate
	}

	parsed, err := template.New("webhook").Funcs(template.FuncMap{
		"toJson": func(v any) (string, error) {
			encoded, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(encoded), nil
		},
	}).Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parse webhook template: %w", err)
	}

	return &WebhookSink{
		logger:   logger,
		target:   targetLabel(target),
		template: parsed,
		poster:   newPoster(logger, "webhook", webhookURL, defaultPolicy),
	}, nil
}

// Log implements Sink.
func (s *WebhookSink) Log(context.Context, string) error {
	return nil
}

// Event implements Sink.
func (s *WebhookSink) Event(_ context.Context, event Event) error {
	s.pending.add(event)
	return nil
}

// Flush implements Flusher.
func (s *WebhookSink) Flush(ctx context.Context) error {
	batch := s.pending.drain()
	if len(batch) == 0 {
		return nil
	}

	payload := WebhookPayload{
		Target:      s.target,
		Events:      batch,
		GeneratedAt: time.Now().UTC(),
	}

	var buf bytes.Buffer
	if err := s.template.Execute(&buf, payload); err != nil {
		return fmt.Errorf("render webhook template: %w", err)
	}

	if err := s.poster.deliver(ctx, s.target, buf.Bytes()); err != nil {
		return err
	}

	s.logger.Debug().
		Str("target", s.target).
		Int("events", len(batch)).
		Msg("webhook delivery sent")

	return nil
}

func targetLabel(target string) string {
	if target == "" {
		return "default"
	}
	return target
}
