package persistence

import (
	"context"
	"database/sql"

	"github.com/dioceseharvest/pipeline/pkg/frontier"
	pipelineerrors "github.com/dioceseharvest/pipeline/pkg/shared/errors"
)

// ListParishSummaries implements frontier.ParishSummaryProvider: one row
// per parish with just enough history for Prioritize to bucket it (spec
// §4.E "Parish prioritization").
func (s *Store) ListParishSummaries(ctx context.Context) ([]frontier.ParishSummary, error) {
	const q = `
		SELECT
			p.parish_id,
			p.website_url AS origin_url,
			EXISTS (SELECT 1 FROM parish_data pd WHERE pd.parish_id = p.parish_id) AS has_parish_data,
			EXISTS (SELECT 1 FROM discovered_url du WHERE du.parish_id = p.parish_id) AS has_discovered_url,
			(SELECT max(pd.created_at) FROM parish_data pd WHERE pd.parish_id = p.parish_id) AS last_parish_data_at,
			(SELECT max(du.visited_at) FROM discovered_url du WHERE du.parish_id = p.parish_id) AS last_visited_at,
			(SELECT max(du.last_successful_visit) FROM discovered_url du WHERE du.parish_id = p.parish_id) AS last_successful_visit_at
		FROM parish p`

	var rows []parishSummaryRow
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, pipelineerrors.FailedTo("list parish summaries", err)
	}

	out := make([]frontier.ParishSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, frontier.ParishSummary{
			ParishID:              r.ParishID,
			OriginURL:             r.OriginURL,
			HasParishData:         r.HasParishData,
			HasDiscoveredURL:      r.HasDiscoveredURL,
			LastParishDataAt:      r.LastParishDataAt.Time,
			LastVisitedAt:         r.LastVisitedAt.Time,
			LastSuccessfulVisitAt: r.LastSuccessfulVisitAt.Time,
		})
	}
	return out, nil
}

type parishSummaryRow struct {
	ParishID              int64        `db:"parish_id"`
	OriginURL             string       `db:"origin_url"`
	HasParishData         bool         `db:"has_parish_data"`
	HasDiscoveredURL      bool         `db:"has_discovered_url"`
	LastParishDataAt      sql.NullTime `db:"last_parish_data_at"`
	LastVisitedAt         sql.NullTime `db:"last_visited_at"`
	LastSuccessfulVisitAt sql.NullTime `db:"last_successful_visit_at"`
}
