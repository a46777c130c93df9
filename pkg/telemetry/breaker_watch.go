package telemetry

import (
	"context"
	"time"

	"github.com/dioceseharvest/pipeline/pkg/breaker"
)

// RegistryAdapter wraps a *breaker.Registry so it satisfies
// BreakerSnapshotter without the server.go surface importing pkg/breaker
// directly. Telemetry is the last component built (spec §2's leaves-first
// order), so it is free to depend on breaker here; the interface stays
// for testability, not for build-order necessity.
type RegistryAdapter struct {
	reg *breaker.Registry
}

// WrapRegistry adapts reg for use as a Server's BreakerSnapshotter.
func WrapRegistry(reg *breaker.Registry) *RegistryAdapter {
	return &RegistryAdapter{reg: reg}
}

// SnapshotAll converts every breaker.CircuitState into the wire-level
// BreakerState shape.
func (a *RegistryAdapter) SnapshotAll() map[string]BreakerState {
	snap := a.reg.SnapshotAll()
	out := make(map[string]BreakerState, len(snap))
	for name, cs := range snap {
		out[name] = BreakerState{
			Name:          cs.Name,
			State:         string(cs.State),
			FailureCount:  cs.FailureCount,
			SuccessCount:  cs.SuccessCount,
			LastFailureAt: cs.LastFailureAt,
			OpenedAt:      cs.OpenedAt,
			TotalRequests: cs.TotalRequests,
			TotalBlocked:  cs.TotalBlocked,
		}
	}
	return out
}

// WatchBreakers polls reg on interval and reports every CLOSED/HALF_OPEN
// -> OPEN transition it observes by incrementing BreakerTripsTotal and
// alerting slack (if configured). On every tick it also pushes a
// breaker_snapshot Event through reporter's pusher (if any), whether or
// not anything changed. It returns when ctx is cancelled.
func WatchBreakers(ctx context.Context, reg *breaker.Registry, reporter *Reporter, slack *SlackNotifier, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	adapter := WrapRegistry(reg)
	wasOpen := make(map[string]bool)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := adapter.SnapshotAll()
			for name, state := range snap {
				open := state.State == "OPEN"
				if open && !wasOpen[name] {
					RecordBreakerTrip(name)
					slack.NotifyBreakerOpen(name, state.FailureCount)
				}
				wasOpen[name] = open
			}
			if reporter != nil {
				reporter.mu.RLock()
				pusher := reporter.pusher
				reporter.mu.RUnlock()
				if pusher != nil {
					pusher.Enqueue(Event{Type: EventTypeBreaker, Breakers: snap})
				}
			}
		}
	}
}
