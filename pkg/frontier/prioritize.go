package frontier

import (
	"context"
	"net/url"
	"time"
)

// ParishSummary is the frontier's narrow view of one parish's extraction
// history, supplied by the persistence adapter, sufficient to bucket it
// per spec §4.E's "Parish prioritization (schedule role)."
type ParishSummary struct {
	ParishID              int64
	OriginURL             string
	HasParishData         bool
	HasDiscoveredURL      bool
	LastParishDataAt      time.Time // zero if HasParishData is false
	LastVisitedAt         time.Time // zero if never visited
	LastSuccessfulVisitAt time.Time // zero if never successful
}

// ParishSummaryProvider is the consumer-defined interface the frontier
// uses to read the summaries it buckets, kept separate from
// pkg/persistence so frontier remains upstream of it in the build order.
type ParishSummaryProvider interface {
	ListParishSummaries(ctx context.Context) ([]ParishSummary, error)
}

const defaultStaleAfter = 30 * 24 * time.Hour
const retryDeprioritizeWindow = 7 * 24 * time.Hour

// Prioritize buckets summaries per spec §4.E: unvisited first, stale
// next, retry-within-a-week last; suppressed origins are dropped before
// bucketing. now and staleAfter are passed in so the function is pure and
// trivially testable.
func Prioritize(summaries []ParishSummary, suppressed map[string]bool, now time.Time, staleAfter time.Duration) []ParishSummary {
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}

	var unvisited, stale, retry []ParishSummary
	for _, s := range summaries {
		if isSuppressed(suppressed, s.OriginURL) {
			continue
		}
		switch {
		case !s.HasParishData && !s.HasDiscoveredURL:
			unvisited = append(unvisited, s)
		case s.HasParishData && now.Sub(s.LastParishDataAt) > staleAfter:
			stale = append(stale, s)
		case s.LastSuccessfulVisitAt.IsZero() && !s.LastVisitedAt.IsZero() && now.Sub(s.LastVisitedAt) <= retryDeprioritizeWindow:
			retry = append(retry, s)
		}
	}

	out := make([]ParishSummary, 0, len(unvisited)+len(stale)+len(retry))
	out = append(out, unvisited...)
	out = append(out, stale...)
	out = append(out, retry...)
	return out
}

func isSuppressed(suppressed map[string]bool, rawURL string) bool {
	if len(suppressed) == 0 || rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return suppressed[rawURL]
	}
	return suppressed[u.Host]
}
