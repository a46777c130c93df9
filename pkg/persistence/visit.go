package persistence

import (
	"context"

	"github.com/dioceseharvest/pipeline/pkg/frontier"
	pipelineerrors "github.com/dioceseharvest/pipeline/pkg/shared/errors"
)

// RecordVisit upserts parishID/rawURL's DiscoveredUrl row, implementing
// frontier.VisitRecorder (spec §4.G record_visit: "upsert into
// DiscoveredUrl; monotonic counters"). visit_count always increments;
// last_successful_visit only advances when this visit succeeded, keeping
// the spec's "last_successful_visit <= visited_at" invariant.
func (s *Store) RecordVisit(ctx context.Context, parishID int64, rawURL string, result frontier.VisitResult) error {
	const q = `
		INSERT INTO discovered_url (
			parish_id, url, visited_at, http_status, response_time_ms,
			content_type, content_size_bytes, extraction_success,
			schedule_data_found, schedule_keywords_count, error_type,
			error_message, quality_score, visit_count, last_successful_visit
		) VALUES (
			$1, $2, now(), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1,
			CASE WHEN $7 THEN now() ELSE NULL END
		)
		ON CONFLICT (parish_id, url) DO UPDATE SET
			visited_at              = now(),
			http_status             = EXCLUDED.http_status,
			response_time_ms        = EXCLUDED.response_time_ms,
			content_type            = EXCLUDED.content_type,
			content_size_bytes      = EXCLUDED.content_size_bytes,
			extraction_success      = EXCLUDED.extraction_success,
			schedule_data_found     = EXCLUDED.schedule_data_found,
			schedule_keywords_count = EXCLUDED.schedule_keywords_count,
			error_type              = EXCLUDED.error_type,
			error_message           = EXCLUDED.error_message,
			quality_score           = EXCLUDED.quality_score,
			visit_count             = discovered_url.visit_count + 1,
			last_successful_visit   = CASE
				WHEN EXCLUDED.extraction_success THEN now()
				ELSE discovered_url.last_successful_visit
			END`

	_, err := s.db.ExecContext(ctx, q,
		parishID, rawURL, result.HTTPStatus, int(result.ResponseTime.Milliseconds()),
		result.ContentType, result.ContentSizeBytes, result.ExtractionSuccess,
		result.ScheduleDataFound, result.ScheduleKeywords, nullIfEmpty(result.ErrorType),
		nullIfEmpty(result.ErrorMessage), result.QualityScore,
	)
	if err != nil {
		return pipelineerrors.FailedToWithDetails("record visit", "persistence", rawURL, err)
	}
	return nil
}

// UpdateScore sets a DiscoveredUrl row's discovery score without touching
// visit bookkeeping, used when the frontier adds a candidate URL before
// it has ever been fetched.
func (s *Store) UpdateScore(ctx context.Context, parishID int64, rawURL string, score int) error {
	const q = `
		INSERT INTO discovered_url (parish_id, url, score)
		VALUES ($1, $2, $3)
		ON CONFLICT (parish_id, url) DO UPDATE SET score = EXCLUDED.score`
	_, err := s.db.ExecContext(ctx, q, parishID, rawURL, score)
	if err != nil {
		return pipelineerrors.FailedToWithDetails("update discovered url score", "persistence", rawURL, err)
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
