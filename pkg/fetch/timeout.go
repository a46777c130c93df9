package fetch

import (
	"sync"
	"time"

	"github.com/dioceseharvest/pipeline/pkg/shared/mathutil"
)

// timeoutStats tracks recent response latencies per origin to derive an
// adaptive per-request timeout (spec §4.C: "the fetcher tracks a running
// P90 of response times per origin and sets the request timeout to
// max(min_timeout, P90*3), clamped to [min_timeout, max_timeout]").
type timeoutStats struct {
	mu                sync.Mutex
	byOrigin          map[string]*originStats
	minTimeout        time.Duration
	maxTimeout        time.Duration
	consecutiveWindow time.Duration
}

type originStats struct {
	samples         []float64 // milliseconds, most recent last, capped
	consecutiveSlow int
	lastSlowAt      time.Time
}

const maxSamples = 50
const consecutiveTimeoutsForCeiling = 3
const consecutiveTimeoutWindow = 10 * time.Minute

func newTimeoutStats(minTimeout, maxTimeout time.Duration) *timeoutStats {
	return &timeoutStats{
		byOrigin:          make(map[string]*originStats),
		minTimeout:        minTimeout,
		maxTimeout:        maxTimeout,
		consecutiveWindow: consecutiveTimeoutWindow,
	}
}

// Timeout returns the current adaptive timeout for origin.
func (t *timeoutStats) Timeout(origin string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.byOrigin[origin]
	if !ok || len(st.samples) == 0 {
		return t.minTimeout
	}
	if st.consecutiveSlow >= consecutiveTimeoutsForCeiling && time.Since(st.lastSlowAt) < t.consecutiveWindow {
		return t.maxTimeout
	}
	p90 := mathutil.Percentile(st.samples, 90)
	ms := mathutil.Clamp(p90*3, float64(t.minTimeout.Milliseconds()), float64(t.maxTimeout.Milliseconds()))
	return time.Duration(ms) * time.Millisecond
}

// RecordSuccess records a completed request's latency.
func (t *timeoutStats) RecordSuccess(origin string, elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.origin(origin)
	st.samples = append(st.samples, float64(elapsed.Milliseconds()))
	if len(st.samples) > maxSamples {
		st.samples = st.samples[len(st.samples)-maxSamples:]
	}
	st.consecutiveSlow = 0
}

// RecordTimeout records that a request against origin timed out.
func (t *timeoutStats) RecordTimeout(origin string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.origin(origin)
	st.consecutiveSlow++
	st.lastSlowAt = time.Now()
}

func (t *timeoutStats) origin(origin string) *originStats {
	st, ok := t.byOrigin[origin]
	if !ok {
		st = &originStats{}
		t.byOrigin[origin] = st
	}
	return st
}
