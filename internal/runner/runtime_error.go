package runner

import "fmt"

// RuntimeError is a failed health run. The loop keeps going; nodes published
// before the failure stay published.
type RuntimeError struct {
	Target    string
	Published int64
	Err       error
}

func (e *RuntimeError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("health run: %v", e.Err)
	}
	return fmt.Sprintf("health run for %s: %v", e.Target, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func runFailed(target string, published int64, err error) error {
	if err == nil {
		return nil
	}
	return &RuntimeError{Target: target, Published: published, Err: err}
}
