package walker

import (
	"context"
	"fmt"
	"strings"

	"github.com/nholik/mesh-sentinel/internal/health"
	"github.com/nholik/mesh-sentinel/internal/inventory"
	"github.com/nholik/mesh-sentinel/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	collaboratorMetrics   = "metrics"
	collaboratorInventory = "inventory"
)

// Deps are the collaborators shared by both walkers.
type Deps struct {
	Logger    zerolog.Logger
	Inventory inventory.Client
	Evaluator *health.Evaluator
	Publisher *health.Publisher
	Metrics   *metrics.Metrics
	Target    string
}

// leaf evaluates lookupKey and publishes the result under tags.
func (d Deps) leaf(ctx context.Context, lookupKey string, tags health.TagPath) (health.Value, error) {
	value, err := d.Evaluator.Evaluate(ctx, lookupKey)
	if err != nil {
		d.Metrics.IncQueryErrors(d.Target, collaboratorMetrics)
		d.Logger.Warn().
			Err(err).
			Strs("tags", tags).
			Str("lookup_name", lookupKey).
			Msg("leaf health evaluation failed")
		return 0, fmt.Errorf("%s: %w", strings.Join(tags, "/"), err)
	}
	d.Publisher.Publish(ctx, tags, value)
	return value, nil
}

// inventoryFailed records a failed inventory call and returns it wrapped with op.
func (d Deps) inventoryFailed(err error, op string, fields map[string]string) error {
	d.Metrics.IncQueryErrors(d.Target, collaboratorInventory)
	event := d.Logger.Warn().Err(err).Str("op", op)
	for key, value := range fields {
		event = event.Str(key, value)
	}
	event.Msg("inventory query failed")
	return fmt.Errorf("%s: %w", op, err)
}
