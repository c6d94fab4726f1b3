package walker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nholik/mesh-sentinel/internal/events"
	"github.com/nholik/mesh-sentinel/internal/health"
	"github.com/nholik/mesh-sentinel/internal/inventory"
	"github.com/nholik/mesh-sentinel/internal/metrics"
	"github.com/nholik/mesh-sentinel/internal/metricstore"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/nholik/mesh-sentinel/internal/walker"

// Summary describes one completed run.
type Summary struct {
	Published int64
	Duration  time.Duration
}

// Orchestrator runs the gateway and deployment walkers for one target.
type Orchestrator struct {
	logger    zerolog.Logger
	sink      events.Sink
	publisher *health.Publisher
	deps      Deps
	tracer    trace.Tracer
	target    string
	now       func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*orchestratorOptions)

type orchestratorOptions struct {
	target  string
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// WithTarget labels logs, metrics and spans with name.
func WithTarget(name string) Option {
	return func(o *orchestratorOptions) {
		o.target = name
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *orchestratorOptions) {
		o.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(o *orchestratorOptions) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithClock overrides the clock used for event timestamps and run durations.
func WithClock(now func() time.Time) Option {
	return func(o *orchestratorOptions) {
		o.now = now
	}
}

// NewOrchestrator wires walkers over the given collaborators.
func NewOrchestrator(logger zerolog.Logger, inv inventory.Client, counter metricstore.Client, sink events.Sink, opts ...Option) *Orchestrator {
	options := orchestratorOptions{
		tracer: otel.Tracer(tracerName),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&options)
	}

	logger = logger.With().Str("target", options.target).Logger()
	publisher := health.NewPublisher(logger, sink,
		health.WithMetrics(options.metrics, options.target),
		health.WithClock(options.now),
	)
	deps := Deps{
		Logger:    logger,
		Inventory: inv,
		Evaluator: health.NewEvaluator(counter),
		Publisher: publisher,
		Metrics:   options.metrics,
		Target:    options.target,
	}

	return &Orchestrator{
		logger:    logger,
		sink:      sink,
		publisher: publisher,
		deps:      deps,
		tracer:    options.tracer,
		target:    options.target,
		now:       options.now,
	}
}

// Run performs one full pass. Both walkers always run to completion; their
// failures and any sink flush failure are joined into the returned error.
// Inventories that support snapshots are read at a single version per run.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	start := o.now()
	publishedBefore := o.publisher.Published()

	ctx, span := o.tracer.Start(ctx, "health.run", trace.WithAttributes(attribute.String("target", o.target)))
	defer span.End()

	deps, err := o.runDeps(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "inventory snapshot failed")
		return Summary{Duration: o.now().Sub(start)}, err
	}
	gateways := NewGatewayWalker(deps)
	deployments := NewDeploymentWalker(deps)

	var (
		wg            sync.WaitGroup
		gatewayErr    error
		deploymentErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		gatewayErr = o.traced(ctx, "health.walk_gateways", gateways.Walk)
	}()
	go func() {
		defer wg.Done()
		deploymentErr = o.traced(ctx, "health.walk_deployments", deployments.Walk)
	}()
	wg.Wait()

	flushErr := events.Flush(ctx, o.sink)
	if flushErr != nil {
		o.logger.Warn().Err(flushErr).Msg("failed to flush health events")
	}

	summary := Summary{
		Published: o.publisher.Published() - publishedBefore,
		Duration:  o.now().Sub(start),
	}
	span.SetAttributes(attribute.Int64("health.published", summary.Published))

	err = errors.Join(gatewayErr, deploymentErr, flushErr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "health run incomplete")
	}
	return summary, err
}

// runDeps pins the inventory for this run when it supports snapshots.
func (o *Orchestrator) runDeps(ctx context.Context) (Deps, error) {
	deps := o.deps
	snapshotter, ok := deps.Inventory.(inventory.Snapshotter)
	if !ok {
		return deps, nil
	}
	snapshot, err := snapshotter.Snapshot(ctx)
	if err != nil {
		return Deps{}, deps.inventoryFailed(err, "snapshot inventory", nil)
	}
	deps.Inventory = snapshot
	return deps, nil
}

func (o *Orchestrator) traced(ctx context.Context, name string, walk func(context.Context) error) error {
	ctx, span := o.tracer.Start(ctx, name)
	defer span.End()

	err := walk(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, name+" failed")
	}
	return err
}
