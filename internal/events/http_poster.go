package events

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const errorBodyLimit = 1024

// deliveryPolicy bounds one delivery. retryBudget caps the total time spent
// retrying, Retry-After waits included.
type deliveryPolicy struct {
	timeout      time.Duration
	rateInterval time.Duration
	rateBurst    int
	retryInitial time.Duration
	retryMax     time.Duration
	retryBudget  time.Duration
}

var defaultPolicy = deliveryPolicy{
	timeout:      10 * time.Second,
	rateInterval: time.Second,
	rateBurst:    1,
	retryInitial: time.Second,
	retryMax:     10 * time.Second,
	retryBudget:  30 * time.Second,
}

// poster sends JSON payloads to one endpoint, paced per key.
type poster struct {
	logger   zerolog.Logger
	name     string
	endpoint string
	client   *retryablehttp.Client
	policy   deliveryPolicy

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newPoster(logger zerolog.Logger, name, endpoint string, policy deliveryPolicy) *poster {
	client := retryablehttp.NewClient()
	// Retries are driven by deliver so Retry-After and the budget apply.
	client.RetryMax = 0
	client.CheckRetry = func(context.Context, *http.Response, error) (bool, error) {
		return false, nil
	}
	client.Logger = nil
	client.HTTPClient = &http.Client{Timeout: policy.timeout}

	return &poster{
		logger:   logger.With().Str("sink", name).Logger(),
		name:     name,
		endpoint: endpoint,
		client:   client,
		policy:   policy,
		limiters: make(map[string]*rate.Limiter),
	}
}

// deliver posts payload, retrying transient failures until the retry budget
// is spent.
func (p *poster) deliver(ctx context.Context, key string, payload []byte) error {
	if limiter := p.limiter(key); limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s rate limit: %w", p.name, err)
		}
	}

	policy := newRetryPolicy(p.policy)
	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		err := p.postOnce(ctx, payload)
		if err == nil {
			return nil
		}
		var hinted *retryAfterError
		if errors.As(err, &hinted) {
			policy.hint = hinted.Duration
			return err
		}
		var transient *retryableError
		if errors.As(err, &transient) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		p.logger.Debug().Err(err).Dur("wait", wait).Msg("retrying event delivery")
	})
	if err != nil {
		return fmt.Errorf("%s delivery failed after %d attempt(s): %w", p.name, attempts, err)
	}
	return nil
}

func (p *poster) limiter(key string) *rate.Limiter {
	if p.policy.rateInterval <= 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	limiter, ok := p.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(p.policy.rateInterval), p.policy.rateBurst)
		p.limiters[key] = limiter
	}
	return limiter
}

func (p *poster) postOnce(ctx context.Context, payload []byte) error {
	reqCtx, cancel := context.WithTimeout(ctx, p.policy.timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(reqCtx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", p.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return &retryableError{err: fmt.Errorf("%s request failed: %w", p.name, err)}
	}
	defer resp.Body.Close()

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		limited := fmt.Errorf("%s rate limited: %s", p.name, resp.Status)
		if wait, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
			return &retryAfterError{Duration: wait, err: limited}
		}
		return &retryableError{err: limited}
	case code >= http.StatusInternalServerError:
		return &retryableError{err: fmt.Errorf("%s server error: %s", p.name, resp.Status)}
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	if text := strings.TrimSpace(string(body)); text != "" {
		return fmt.Errorf("%s rejected event payload: %s (%s)", p.name, resp.Status, text)
	}
	return fmt.Errorf("%s rejected event payload: %s", p.name, resp.Status)
}

// retryPolicy is an exponential backoff that honours a server's Retry-After
// hint, still within the overall budget.
type retryPolicy struct {
	*backoff.ExponentialBackOff
	hint time.Duration
}

func newRetryPolicy(policy deliveryPolicy) *retryPolicy {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = policy.retryInitial
	exp.MaxInterval = policy.retryMax
	exp.MaxElapsedTime = policy.retryBudget
	exp.Reset()
	return &retryPolicy{ExponentialBackOff: exp}
}

func (r *retryPolicy) NextBackOff() time.Duration {
	next := r.ExponentialBackOff.NextBackOff()
	hint := r.hint
	r.hint = 0
	if next == backoff.Stop || hint <= 0 {
		return next
	}
	if budget := r.MaxElapsedTime; budget > 0 && r.GetElapsedTime()+hint > budget {
		return backoff.Stop
	}
	return hint
}

func (r *retryPolicy) Reset() {
	r.hint = 0
	r.ExponentialBackOff.Reset()
}

func parseRetryAfter(value string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		if wait := time.Until(when); wait > 0 {
			return wait, true
		}
	}
	return 0, false
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

type retryAfterError struct {
	Duration time.Duration
	err      error
}

func (e *retryAfterError) Error() string {
	return fmt.Sprintf("%v; retry after %s", e.err, e.Duration)
}

func (e *retryAfterError) Unwrap() error {
	return e.err
}
