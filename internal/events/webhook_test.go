package events

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWebhookSinkTemplateRendering(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink, err := NewWebhookSink(zerolog.Nop(), server.URL, "alpha", `{"target":"{{ .Target }}","count":{{ len .Events }}}`)
	if err != nil {
		t.Fatalf("NewWebhookSink error: %v", err)
	}

	ctx := context.Background()
	for _, event := range makeEvents(2, 0) {
		if err := sink.Event(ctx, event); err != nil {
			t.Fatalf("Event error: %v", err)
		}
	}
	if err := sink.Flush(ctx); err != nil {
		t.Fatalf("Flush error: %v", err)
	}

	if !strings.Contains(body, `"target":"alpha"`) {
		t.Fatalf("expected target in payload, got %s", body)
	}
	if !strings.Contains(body, `"count":2`) {
		t.Fatalf("expected count in payload, got %s", body)
	}
}

func TestWebhookSinkDefaultTemplateCarriesEvents(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink, err := NewWebhookSink(zerolog.Nop(), server.URL, "", "")
	if err != nil {
		t.Fatalf("NewWebhookSink error: %v", err)
	}
	_ = sink.Event(context.Background(), Event{Tags: []string{"deployments:d1", "deployment", "health"}, Value: 1, Type: "health"})
	if err := sink.Flush(context.Background()); err != nil {
		t.Fatalf("Flush error: %v", err)
	}

	if !strings.Contains(body, `"target":"default"`) {
		t.Fatalf("expected default target, got %s", body)
	}
	if !strings.Contains(body, `"tags":["deployments:d1","deployment","health"]`) {
		t.Fatalf("expected event tags, got %s", body)
	}
}

func TestWebhookSinkRetriesOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := atomic.AddInt32(&calls, 1)
		if count <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink, err := NewWebhookSink(zerolog.Nop(), server.URL, "alpha", "")
	if err != nil {
		t.Fatalf("NewWebhookSink error: %v", err)
	}
	sink.poster.policy.retryInitial = time.Millisecond
	sink.poster.policy.retryMax = 2 * time.Millisecond
	sink.poster.policy.retryBudget = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_ = sink.Event(ctx, makeEvents(1, 1)[0])
	if err := sink.Flush(ctx); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestWebhookSinkInvalidTemplate(t *testing.T) {
	_, err := NewWebhookSink(zerolog.Nop(), "http://example.com", "alpha", "{{")
	if err == nil {
		t.Fatalf("expected template error")
	}
}

func TestWebhookSinkEmptyURL(t *testing.T) {
	sink, err := NewWebhookSink(zerolog.Nop(), "", "alpha", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink != nil {
		t.Fatalf("expected nil sink for empty url")
	}
}
