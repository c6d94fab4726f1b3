package healthcheck

import (
	"sync"
	"time"
)

// TargetStatus describes the latest run of one target.
type TargetStatus struct {
	LastRunTime     time.Time `json:"last_run_time"`
	RunDurationMS   int64     `json:"run_duration_ms"`
	EventsPublished int64     `json:"events_published"`
	LastError       string    `json:"last_error,omitempty"`
}

// Snapshot describes the latest run timing details.
type Snapshot struct {
	LastCycleTime   *time.Time              `json:"last_cycle_time"`
	CycleDurationMS int64                   `json:"cycle_duration_ms"`
	EventsPublished int64                   `json:"events_published"`
	Targets         map[string]TargetStatus `json:"targets,omitempty"`
}

// Tracker records run timing for health endpoints. Runners of different
// targets may share one Tracker.
type Tracker struct {
	mu            sync.RWMutex
	now           func() time.Time
	lastCycle     time.Time
	cycleDuration time.Duration
	published     int64
	targets       map[string]TargetStatus
	ready         bool
}

// NewTracker constructs a new Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		now:     func() time.Time { return time.Now().UTC() },
		targets: make(map[string]TargetStatus),
	}
}

// RecordRun updates run timing and readiness. A failed run still counts as
// finished; its error is kept in the target status.
func (t *Tracker) RecordRun(target string, duration time.Duration, published int64, runErr error) {
	if t == nil {
		return
	}
	now := t.now()
	status := TargetStatus{
		LastRunTime:     now,
		RunDurationMS:   int64(duration / time.Millisecond),
		EventsPublished: published,
	}
	if runErr != nil {
		status.LastError = runErr.Error()
	}

	t.mu.Lock()
	t.lastCycle = now
	t.cycleDuration = duration
	t.published = published
	t.targets[target] = status
	t.ready = true
	t.mu.Unlock()
}

// Snapshot returns the current tracker snapshot.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	var last *time.Time
	if !t.lastCycle.IsZero() {
		value := t.lastCycle
		last = &value
	}
	var targets map[string]TargetStatus
	if len(t.targets) > 0 {
		targets = make(map[string]TargetStatus, len(t.targets))
		for name, status := range t.targets {
			targets[name] = status
		}
	}
	return Snapshot{
		LastCycleTime:   last,
		CycleDurationMS: int64(t.cycleDuration / time.Millisecond),
		EventsPublished: t.published,
		Targets:         targets,
	}
}

// Ready reports whether at least one run has completed.
func (t *Tracker) Ready() bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ready
}

// Healthy reports whether the last run completed within 2x the poll interval.
func (t *Tracker) Healthy(now time.Time, pollInterval time.Duration) bool {
	if t == nil {
		return false
	}
	if pollInterval <= 0 {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.lastCycle.IsZero() {
		return false
	}
	return now.Sub(t.lastCycle) <= 2*pollInterval
}
