package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nholik/mesh-sentinel/internal/config"
	"github.com/nholik/mesh-sentinel/internal/coordinator"
	"github.com/nholik/mesh-sentinel/internal/healthcheck"
	"github.com/nholik/mesh-sentinel/internal/logging"
	"github.com/nholik/mesh-sentinel/internal/metrics"
	"github.com/nholik/mesh-sentinel/internal/runner"
	"github.com/nholik/mesh-sentinel/internal/server"
	"github.com/nholik/mesh-sentinel/internal/tracing"
	"github.com/rs/zerolog"
)

const serviceName = "mesh-sentinel"

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger := logging.New()
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := logging.NewWithLevel(cfg.LogLevel)
	logger.Info().Str("version", version).Msg("mesh-sentinel starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, logger, cfg)
	stop()
	if err != nil {
		logger.Error().Err(err).Msg("mesh-sentinel stopped with errors")
		os.Exit(1)
	}
}

func run(ctx context.Context, logger zerolog.Logger, cfg config.Config) error {
	var traceOut io.Writer
	if cfg.TraceStdout {
		traceOut = os.Stdout
	}
	tracer, shutdownTracing, err := tracing.Setup(ctx, serviceName, version, traceOut)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("failed to flush traces")
		}
	}()

	targets, err := cfg.Targets()
	if err != nil {
		return fmt.Errorf("load targets: %w", err)
	}

	metricsCollector := metrics.New()
	tracker := healthcheck.NewTracker()
	builder := &cycleBuilder{cfg: cfg, metrics: metricsCollector, tracer: tracer}

	coord := coordinator.New(logger, cfg, targets, builder.build,
		runner.WithTracker(tracker),
		runner.WithMetrics(metricsCollector),
	)

	if cfg.RunOnce {
		return coord.RunOnce(ctx)
	}

	server.Start(ctx, logger, server.Ports{Health: cfg.HealthPort, Metrics: cfg.MetricsPort}, cfg.PollInterval, tracker, metricsCollector)
	return coord.Run(ctx)
}
