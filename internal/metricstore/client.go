package metricstore

import (
	"context"
	"time"
)

// RangeOp is a comparison applied by a Range filter.
type RangeOp string

const (
	OpGte RangeOp = "gte"
	OpGt  RangeOp = "gt"
	OpLte RangeOp = "lte"
	OpLt  RangeOp = "lt"
)

// Term matches records whose Field equals Value exactly.
type Term struct {
	Field string
	Value string
}

// Range matches records whose numeric Field satisfies Op against Value.
type Range struct {
	Field string
	Op    RangeOp
	Value int
}

// Client counts time-series records.
type Client interface {
	// CountInWindow returns how many records matching term and rng were
	// stored within the trailing window.
	CountInWindow(ctx context.Context, term Term, rng Range, window time.Duration) (int, error)
}
