package health

import (
	"context"
	"fmt"
	"time"

	"github.com/nholik/mesh-sentinel/internal/metricstore"
)

const (
	// RoutingKeyField holds the lookup key of the route or gateway that served a request.
	RoutingKeyField = "ft"
	// StatusCodeField holds the HTTP status code of a request.
	StatusCodeField = "ST"
	// ServerErrorCode is the lowest status code counted as an error.
	ServerErrorCode = 500
	// Window is the lookback of every leaf evaluation.
	Window = 30 * time.Second
)

// Evaluator derives leaf health from the error count of a lookup key.
type Evaluator struct {
	client metricstore.Client
}

// NewEvaluator returns an Evaluator querying client.
func NewEvaluator(client metricstore.Client) *Evaluator {
	return &Evaluator{client: client}
}

// Evaluate returns Unhealthy when at least one server error was recorded for
// lookupKey within Window, and Healthy otherwise.
func (e *Evaluator) Evaluate(ctx context.Context, lookupKey string) (Value, error) {
	count, err := e.client.CountInWindow(ctx,
		metricstore.Term{Field: RoutingKeyField, Value: lookupKey},
		metricstore.Range{Field: StatusCodeField, Op: metricstore.OpGte, Value: ServerErrorCode},
		Window,
	)
	if err != nil {
		return 0, fmt.Errorf("count errors for %q: %w", lookupKey, err)
	}
	if count > 0 {
		return Unhealthy, nil
	}
	return Healthy, nil
}
