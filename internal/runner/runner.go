package runner

import (
	"context"
	"errors"
	"time"

	"github.com/nholik/mesh-sentinel/internal/healthcheck"
	"github.com/nholik/mesh-sentinel/internal/metrics"
	"github.com/nholik/mesh-sentinel/internal/walker"
	"github.com/rs/zerolog"
)

// Ticker is the minimal interface needed for driving the runner loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

// Cycle performs one full health pass for a target.
type Cycle interface {
	Run(ctx context.Context) (walker.Summary, error)
}

// Runner orchestrates the main execution loop.
type Runner struct {
	logger        zerolog.Logger
	pollInterval  time.Duration
	tickerFactory func(time.Duration) Ticker
	runOnce       func(context.Context) error
	cycle         Cycle
	target        string
	tracker       *healthcheck.Tracker
	metrics       *metrics.Metrics
	now           func() time.Time
}

// Option customizes runner behavior.
type Option func(*Runner)

// WithTickerFactory overrides how tickers are created.
func WithTickerFactory(factory func(time.Duration) Ticker) Option {
	return func(r *Runner) {
		r.tickerFactory = factory
	}
}

// WithRunOnce overrides the single-cycle execution step.
func WithRunOnce(runOnce func(context.Context) error) Option {
	return func(r *Runner) {
		r.runOnce = runOnce
	}
}

// WithCycle sets the health pass executed by the default RunOnce.
func WithCycle(cycle Cycle) Option {
	return func(r *Runner) {
		r.cycle = cycle
	}
}

// WithTarget labels metrics and tracker records with name.
func WithTarget(name string) Option {
	return func(r *Runner) {
		r.target = name
	}
}

// WithTracker records run timing for the health endpoints.
func WithTracker(tracker *healthcheck.Tracker) Option {
	return func(r *Runner) {
		r.tracker = tracker
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// New constructs a Runner with the given logger and poll interval.
func New(logger zerolog.Logger, pollInterval time.Duration, opts ...Option) *Runner {
	r := &Runner{
		logger:       logger,
		pollInterval: pollInterval,
		tickerFactory: func(d time.Duration) Ticker {
			return timeTicker{ticker: time.NewTicker(d)}
		},
		now: func() time.Time { return time.Now().UTC() },
	}
	r.runOnce = r.defaultRunOnce

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run starts the main loop and blocks until the context is canceled.
func (r *Runner) Run(ctx context.Context) error {
	if r.pollInterval <= 0 {
		return errors.New("poll interval must be greater than zero")
	}

	// Run immediately on startup
	r.logRunError(r.RunOnce(ctx), "initial run cycle failed")

	ticker := r.tickerFactory(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("runner stopped")
			return nil
		case <-ticker.C():
			r.logRunError(r.RunOnce(ctx), "run cycle failed")
		}
	}
}

// RunOnce executes a single cycle of the runner.
func (r *Runner) RunOnce(ctx context.Context) error {
	return r.runOnce(ctx)
}

func (r *Runner) defaultRunOnce(ctx context.Context) error {
	if r.cycle == nil {
		return errors.New("no health cycle configured")
	}

	start := r.now()
	summary, err := r.cycle.Run(ctx)
	duration := r.now().Sub(start)

	r.metrics.ObserveRunDuration(r.target, duration)
	r.tracker.RecordRun(r.target, duration, summary.Published, err)

	if err != nil {
		return runFailed(r.target, summary.Published, err)
	}

	r.metrics.SetLastSuccessfulRunTimestamp(r.target, r.now())
	r.logger.Info().
		Int64("published", summary.Published).
		Dur("duration", duration).
		Msg("health run completed")
	return nil
}

// logRunError reports err. Runtime errors only mean parts of the hierarchy
// went unpublished for this cycle.
func (r *Runner) logRunError(err error, msg string) {
	if err == nil {
		return
	}
	var runtimeErr *RuntimeError
	if errors.As(err, &runtimeErr) {
		r.logger.Warn().
			Err(runtimeErr.Err).
			Str("target", runtimeErr.Target).
			Int64("published", runtimeErr.Published).
			Msg(msg)
		return
	}
	r.logger.Error().Err(err).Msg(msg)
}
