package persistence

import (
	"context"
	"time"

	"github.com/dioceseharvest/pipeline/pkg/frontier"
)

// parishIDKey is the context key the router stashes the parish a Fetch
// call belongs to under, so one long-lived fetch.Fetcher (whose
// per-origin rate-limiter and adaptive-timeout state must survive
// across parishes to be useful) can still record visits against the
// right ParishID without pkg/fetch knowing what a parish is.
type parishIDKey struct{}

// WithParishID returns a context carrying parishID for FetchVisitRecorder
// to pick up. The router calls this immediately before every
// fetcher.Fetch/FetchJS call.
func WithParishID(ctx context.Context, parishID int64) context.Context {
	return context.WithValue(ctx, parishIDKey{}, parishID)
}

// parishIDFrom extracts the parish ID stashed by WithParishID, or 0 if
// none was set (e.g. a diocese-level fetch with no parish yet).
func parishIDFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(parishIDKey{}).(int64)
	return id
}

// FetchVisitRecorder adapts Store.RecordVisit to fetch.VisitRecorder's
// narrower signature (outcome/status/elapsed, no parish_id). pkg/fetch is
// a leaf package with no notion of "parish", and its Fetcher is
// long-lived (its per-origin rate limiter and adaptive-timeout state are
// only useful if they persist across every parish a worker touches), so
// this recorder is stateless and reads the parish ID the router attached
// to ctx via WithParishID rather than binding one at construction.
type FetchVisitRecorder struct {
	store *Store
}

// NewFetchVisitRecorder builds the single FetchVisitRecorder a worker's
// Fetcher is constructed with.
func NewFetchVisitRecorder(store *Store) *FetchVisitRecorder {
	return &FetchVisitRecorder{store: store}
}

// RecordVisit implements fetch.VisitRecorder.
func (r *FetchVisitRecorder) RecordVisit(ctx context.Context, rawURL string, outcome string, statusCode int, elapsed time.Duration) error {
	result := frontier.VisitResult{
		HTTPStatus:        statusCode,
		ResponseTime:      elapsed,
		ExtractionSuccess: outcome == "ok",
	}
	if !result.ExtractionSuccess {
		result.ErrorType = outcome
	}
	return r.store.RecordVisit(ctx, parishIDFrom(ctx), rawURL, result)
}
