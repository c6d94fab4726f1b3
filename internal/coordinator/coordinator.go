package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nholik/mesh-sentinel/internal/config"
	"github.com/nholik/mesh-sentinel/internal/runner"
	"github.com/rs/zerolog"
)

// BuildFunc constructs the health cycle for one target.
type BuildFunc func(ctx context.Context, logger zerolog.Logger, target config.Target) (runner.Cycle, error)

// Coordinator manages multiple Runner instances, one per target.
// It spawns runners in parallel and waits for context cancellation.
type Coordinator struct {
	logger       zerolog.Logger
	cfg          config.Config
	targets      []config.Target
	build        BuildFunc
	runnerOpts   []runner.Option
	runners      map[string]*runner.Runner
	runnerErrors map[string]error
	mu           sync.RWMutex
}

// New constructs a Coordinator. opts are applied to every runner it creates.
func New(logger zerolog.Logger, cfg config.Config, targets []config.Target, build BuildFunc, opts ...runner.Option) *Coordinator {
	return &Coordinator{
		logger:       logger,
		cfg:          cfg,
		targets:      targets,
		build:        build,
		runnerOpts:   opts,
		runners:      make(map[string]*runner.Runner),
		runnerErrors: make(map[string]error),
	}
}

// Run starts all runners in parallel and blocks until context is canceled.
// Returns nil on clean shutdown; logs any per-runner errors internally.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info().
		Int("targets", len(c.targets)).
		Msg("starting coordinator")

	var wg sync.WaitGroup
	for _, target := range c.targets {
		wg.Add(1)
		go c.spawnRunner(ctx, &wg, target)
	}

	wg.Wait()
	c.logger.Info().Msg("all runners stopped")

	c.mu.RLock()
	defer c.mu.RUnlock()
	for target, err := range c.runnerErrors {
		if err != nil {
			c.logger.Error().Err(err).Str("target", target).Msg("runner error")
		}
	}

	return nil
}

// RunOnce performs a single health pass for every target in parallel and
// returns the joined per-target failures.
func (c *Coordinator) RunOnce(ctx context.Context) error {
	errs := make([]error, len(c.targets))

	var wg sync.WaitGroup
	for i, target := range c.targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := c.newRunner(ctx, target)
			if err == nil {
				err = r.RunOnce(ctx)
			}
			if err != nil {
				c.recordError(target.Name, err)
				errs[i] = fmt.Errorf("target %q: %w", target.Name, err)
			}
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

// spawnRunner creates and runs a single Runner for the given target.
func (c *Coordinator) spawnRunner(ctx context.Context, wg *sync.WaitGroup, target config.Target) {
	defer wg.Done()

	targetLogger := c.logger.With().Str("target", target.Name).Logger()

	r, err := c.newRunner(ctx, target)
	if err != nil {
		targetLogger.Error().Err(err).Msg("failed to initialize target")
		c.recordError(target.Name, err)
		return
	}

	targetLogger.Info().Msg("runner started")

	if err := r.Run(ctx); err != nil {
		targetLogger.Error().Err(err).Msg("runner exited with error")
		c.recordError(target.Name, err)
	} else {
		targetLogger.Info().Msg("runner exited cleanly")
	}
}

func (c *Coordinator) newRunner(ctx context.Context, target config.Target) (*runner.Runner, error) {
	targetLogger := c.logger.With().Str("target", target.Name).Logger()

	cycle, err := c.build(ctx, targetLogger, target)
	if err != nil {
		return nil, err
	}

	opts := make([]runner.Option, 0, len(c.runnerOpts)+2)
	opts = append(opts, c.runnerOpts...)
	opts = append(opts, runner.WithCycle(cycle), runner.WithTarget(target.Name))
	r := runner.New(targetLogger, c.cfg.PollInterval, opts...)

	c.mu.Lock()
	c.runners[target.Name] = r
	c.mu.Unlock()

	return r, nil
}

// recordError records a per-target error for later reporting.
func (c *Coordinator) recordError(target string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runnerErrors[target] = err
}

// GetRunners returns a copy of the runners map for testing.
func (c *Coordinator) GetRunners() map[string]*runner.Runner {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]*runner.Runner, len(c.runners))
	for k, v := range c.runners {
		result[k] = v
	}
	return result
}
