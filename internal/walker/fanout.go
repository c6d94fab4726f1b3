package walker

import (
	"errors"
	"sync"

	"github.com/nholik/mesh-sentinel/internal/health"
)

// outcome is the result of one branch of a fan-out. ok is false when the
// branch produced no value without failing.
type outcome[R any] struct {
	value R
	ok    bool
	err   error
}

// fanOut runs fn for every item concurrently and returns the outcomes in item
// order, whatever order the branches complete in.
func fanOut[T, R any](items []T, fn func(T) (R, bool, error)) []outcome[R] {
	outcomes := make([]outcome[R], len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, ok, err := fn(item)
			outcomes[i] = outcome[R]{value: value, ok: ok, err: err}
		}()
	}
	wg.Wait()
	return outcomes
}

// fold combines the values of outcomes in listing order. A failed outcome
// fails the fold; outcomes without a value are skipped.
func fold(outcomes []outcome[health.Value]) (health.Value, bool, error) {
	if err := joinErrors(outcomes); err != nil {
		return 0, false, err
	}
	values := make([]health.Value, 0, len(outcomes))
	for _, o := range outcomes {
		if o.ok {
			values = append(values, o.value)
		}
	}
	value, ok := health.Reduce1(values, health.Combine)
	return value, ok, nil
}

func joinErrors[R any](outcomes []outcome[R]) error {
	var errs []error
	for _, o := range outcomes {
		if o.err != nil {
			errs = append(errs, o.err)
		}
	}
	return errors.Join(errs...)
}
