// Package telemetry implements the telemetry surface (spec §4.H): the
// current extraction status, a circuit-breaker snapshot, bounded ring
// buffers of recent error events and log lines, Prometheus metrics, a
// minimal health/ready HTTP surface, an optional fire-and-forget push of
// events to an external monitoring URL, and optional Slack alerting. It
// imposes no transport on the rest of the pipeline: callers record facts
// through Reporter and the HTTP surface/push/Slack side channels read
// from it.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DiocesesClaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dioceseharvest_dioceses_claimed_total",
		Help: "Total dioceses claimed by claim_next across all workers.",
	})

	DiocesesCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dioceseharvest_dioceses_completed_total",
		Help: "Total diocese assignments completed, by outcome.",
	}, []string{"outcome"})

	ParishesDiscoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dioceseharvest_parishes_discovered_total",
		Help: "Total parish rows upserted from directory parsing.",
	})

	ScheduleFactsExtractedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dioceseharvest_schedule_facts_extracted_total",
		Help: "Total ParishData rows appended, by fact_type and extraction_method.",
	}, []string{"fact_type", "extraction_method"})

	FetchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dioceseharvest_fetch_requests_total",
		Help: "Total Fetcher requests, by outcome.",
	}, []string{"outcome"})

	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dioceseharvest_fetch_duration_seconds",
		Help:    "Fetcher request latency in seconds, by outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	AIGateCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dioceseharvest_ai_gate_calls_total",
		Help: "Total AI Confidence Gate evaluations, by accepted/rejected.",
	}, []string{"result"})

	AIGateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dioceseharvest_ai_gate_duration_seconds",
		Help:    "AI Confidence Gate evaluation latency in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	BreakerTripsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dioceseharvest_breaker_trips_total",
		Help: "Total CLOSED/HALF_OPEN -> OPEN breaker transitions, by breaker name.",
	}, []string{"breaker"})

	BreakerBlockedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dioceseharvest_breaker_blocked_total",
		Help: "Total calls rejected with CircuitOpen, by breaker name.",
	}, []string{"breaker"})

	SweepReclaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dioceseharvest_sweep_reclaimed_total",
		Help: "Total assignments reclaimed by the coordinator's dead-worker sweep.",
	})

	HeartbeatsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dioceseharvest_heartbeats_total",
		Help: "Total heartbeat writes by this worker.",
	})
)

// RecordFetch records one Fetcher call's outcome and latency.
func RecordFetch(outcome string, d time.Duration) {
	FetchRequestsTotal.WithLabelValues(outcome).Inc()
	FetchDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordAIGate records one AI Confidence Gate evaluation.
func RecordAIGate(accepted bool, d time.Duration) {
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	AIGateCallsTotal.WithLabelValues(result).Inc()
	AIGateDuration.Observe(d.Seconds())
}

// RecordScheduleFact records one appended ParishData row.
func RecordScheduleFact(factType, extractionMethod string) {
	ScheduleFactsExtractedTotal.WithLabelValues(factType, extractionMethod).Inc()
}

// RecordBreakerTrip records a breaker's transition into OPEN.
func RecordBreakerTrip(name string) {
	BreakerTripsTotal.WithLabelValues(name).Inc()
}

// RecordBreakerBlocked records a call rejected with CircuitOpen.
func RecordBreakerBlocked(name string) {
	BreakerBlockedTotal.WithLabelValues(name).Inc()
}

// Timer measures elapsed wall time against a fixed start point, mirroring
// the teacher's metrics timer helper.
type Timer struct {
	start time.Time
}

// NewTimer starts a Timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the time since the Timer was created.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// RecordFetch records the elapsed time as a Fetcher call of outcome.
func (t *Timer) RecordFetch(outcome string) {
	RecordFetch(outcome, t.Elapsed())
}

// RecordAIGate records the elapsed time as an AI Confidence Gate call.
func (t *Timer) RecordAIGate(accepted bool) {
	RecordAIGate(accepted, t.Elapsed())
}
