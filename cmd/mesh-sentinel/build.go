package main

import (
	"context"
	"fmt"

	"github.com/nholik/mesh-sentinel/internal/config"
	"github.com/nholik/mesh-sentinel/internal/events"
	"github.com/nholik/mesh-sentinel/internal/inventory"
	"github.com/nholik/mesh-sentinel/internal/metrics"
	"github.com/nholik/mesh-sentinel/internal/metricstore"
	"github.com/nholik/mesh-sentinel/internal/runner"
	"github.com/nholik/mesh-sentinel/internal/walker"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// cycleBuilder wires the collaborators of one target into a health cycle.
type cycleBuilder struct {
	cfg     config.Config
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func (b *cycleBuilder) build(ctx context.Context, logger zerolog.Logger, target config.Target) (runner.Cycle, error) {
	inv, err := b.inventory(ctx, logger, target)
	if err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}

	counter, err := metricstore.NewElasticClient(target.MetricsURL, target.MetricsIndex, target.Timeout)
	if err != nil {
		return nil, fmt.Errorf("metric store: %w", err)
	}

	sink, err := b.sink(logger, target)
	if err != nil {
		return nil, fmt.Errorf("event sinks: %w", err)
	}

	return walker.NewOrchestrator(logger, inv, counter, sink,
		walker.WithTarget(target.Name),
		walker.WithMetrics(b.metrics),
		walker.WithTracer(b.tracer),
	), nil
}

// inventory prefers a static document over the control-plane API.
func (b *cycleBuilder) inventory(ctx context.Context, logger zerolog.Logger, target config.Target) (inventory.Client, error) {
	if target.InventoryFile != "" {
		client, err := inventory.NewFileClient(ctx, logger, target.InventoryFile, target.Timeout)
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	client, err := inventory.NewHTTPClient(target.APIURL, target.Timeout,
		inventory.WithConcurrency(b.cfg.InventoryConcurrency),
	)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// sink always logs locally. Outbound sinks are suppressed in dry-run mode.
func (b *cycleBuilder) sink(logger zerolog.Logger, target config.Target) (events.Sink, error) {
	var outbound []events.Sink

	if target.APIURL != "" {
		api, err := events.NewAPISink(logger, target.APIURL, target.Timeout)
		if err != nil {
			return nil, err
		}
		outbound = append(outbound, api)
	}

	webhook, err := events.NewWebhookSink(logger, b.cfg.WebhookURL, target.Name, b.cfg.WebhookTemplate)
	if err != nil {
		return nil, err
	}
	if webhook != nil {
		outbound = append(outbound, webhook)
	}

	outbound = append(outbound, events.NewSlackSink(logger, b.cfg.SlackWebhookURL, target.Name))

	var delivery events.Sink = events.NewMultiSink(outbound...)
	if b.cfg.DryRun {
		delivery = events.NewDryRunSink(logger, delivery)
	}
	return events.NewMultiSink(events.NewLogSink(logger), delivery), nil
}
