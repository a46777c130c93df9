// Package breaker implements the named circuit-breaker fabric used
// uniformly in front of every outbound dependency (origin fetches, the
// headless-browser pool, the AI extractor, the database) per spec §4.D.
//
// The state machine and metrics surface are grounded on the teacher
// corpus's infrahttp.CircuitBreaker (GetState/IsHealthy/GetMetrics/Do/
// Reset/Stop), generalized from an HTTP-only breaker to one that guards an
// arbitrary func() error so a single fabric protects every dependency.
package breaker

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dioceseharvest/pipeline/pkg/pipeline/errs"
	"github.com/dioceseharvest/pipeline/pkg/shared/logging"
)

// State is one of the three circuit-breaker states (spec §4.D).
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Config is the per-breaker tuning (spec §4.D table).
type Config struct {
	FailureThreshold int
	FailureWindow    time.Duration
	RecoveryTimeout  time.Duration
}

// CircuitState is the snapshot shape persisted/reported for telemetry
// (spec §3 CircuitState entity).
type CircuitState struct {
	Name          string    `json:"name"`
	State         State     `json:"state"`
	FailureCount  int       `json:"failure_count"`
	SuccessCount  int       `json:"success_count"`
	LastFailureAt time.Time `json:"last_failure_at"`
	OpenedAt      time.Time `json:"opened_at"`
	TotalRequests int64     `json:"total_requests"`
	TotalBlocked  int64     `json:"total_blocked"`
}

// Breaker is a single named circuit breaker.
type Breaker struct {
	name   string
	config Config
	logger *logrus.Entry

	mu               sync.Mutex
	state            State
	failureTimes     []time.Time // sliding window for CLOSED->OPEN detection
	successCount     int
	lastFailureAt    time.Time
	openedAt         time.Time
	totalRequests    int64
	totalBlocked     int64
}

// New constructs a breaker starting CLOSED, matching the teacher's
// "should initialize with closed state" contract.
func New(name string, config Config, logger *logrus.Logger) *Breaker {
	if logger == nil {
		logger = logrus.New()
	}
	return &Breaker{
		name:   name,
		config: config,
		state:  StateClosed,
		logger: logger.WithFields(logging.BreakerFields(name, string(StateClosed)).ToLogrus()),
	}
}

// Guard executes fn if the breaker allows it, recording the outcome. If
// the breaker is OPEN (and the recovery timeout hasn't elapsed), fn is
// never called and errs.ErrCircuitOpen is returned with total_blocked
// incremented — this is the uniform "guard(name, fn)" primitive from
// spec §4.D.
func (b *Breaker) Guard(fn func() error) error {
	if !b.allow() {
		b.mu.Lock()
		b.totalBlocked++
		b.mu.Unlock()
		return errs.ErrCircuitOpen
	}

	b.mu.Lock()
	b.totalRequests++
	b.mu.Unlock()

	err := fn()
	if err != nil {
		b.recordFailure()
	} else {
		b.recordSuccess()
	}
	return err
}

// allow reports whether a call may proceed right now, performing the
// OPEN->HALF_OPEN transition as a side effect when the recovery timeout
// has elapsed (spec: "OPEN → HALF_OPEN when now - opened_at >=
// recovery_timeout").
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if time.Since(b.openedAt) >= b.config.RecoveryTimeout {
			b.state = StateHalfOpen
			b.successCount = 0
			return true
		}
		return false
	default:
		return true
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		// HALF_OPEN -> CLOSED on the first recorded success (spec §4.D).
		b.state = StateClosed
		b.failureTimes = nil
		b.successCount++
	case StateClosed:
		b.successCount++
		b.pruneFailures()
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.lastFailureAt = now

	switch b.state {
	case StateHalfOpen:
		// HALF_OPEN -> OPEN on any failure; opened_at resets.
		b.trip(now)
	case StateClosed:
		b.failureTimes = append(b.failureTimes, now)
		b.pruneFailures()
		if len(b.failureTimes) >= b.config.FailureThreshold {
			b.trip(now)
		}
	}
}

func (b *Breaker) trip(now time.Time) {
	b.state = StateOpen
	b.openedAt = now
}

// pruneFailures drops failure timestamps older than the failure window,
// implementing "within failure_window" from spec §4.D. Caller must hold mu.
func (b *Breaker) pruneFailures() {
	cutoff := time.Now().Add(-b.config.FailureWindow)
	kept := b.failureTimes[:0]
	for _, t := range b.failureTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failureTimes = kept
}

// State returns the breaker's current state, resolving a due
// OPEN->HALF_OPEN transition first.
func (b *Breaker) State() State {
	b.allow()
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsHealthy reports whether the breaker is not OPEN.
func (b *Breaker) IsHealthy() bool {
	return b.State() != StateOpen
}

// Snapshot returns the CircuitState telemetry shape for this breaker.
func (b *Breaker) Snapshot() CircuitState {
	b.allow()
	b.mu.Lock()
	defer b.mu.Unlock()
	return CircuitState{
		Name:          b.name,
		State:         b.state,
		FailureCount:  len(b.failureTimes),
		SuccessCount:  b.successCount,
		LastFailureAt: b.lastFailureAt,
		OpenedAt:      b.openedAt,
		TotalRequests: b.totalRequests,
		TotalBlocked:  b.totalBlocked,
	}
}

// Reset forces the breaker back to CLOSED with all counters cleared.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureTimes = nil
	b.successCount = 0
	b.totalRequests = 0
	b.totalBlocked = 0
	b.openedAt = time.Time{}
	b.lastFailureAt = time.Time{}
}

// Name returns the breaker's registered name.
func (b *Breaker) Name() string {
	return b.name
}
