package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	pipelineerrors "github.com/dioceseharvest/pipeline/pkg/shared/errors"
)

// DetectedBy enumerates how a parish directory was located (spec §3).
type DetectedBy string

const (
	DetectedHeuristic      DetectedBy = "heuristic"
	DetectedAI             DetectedBy = "ai"
	DetectedSearchFallback DetectedBy = "search_fallback"
	DetectedManualOverride DetectedBy = "manual_override"
)

// ListDiocesesMissingDirectory returns every diocese with no
// ParishDirectory row yet, or whose row records found=false — the
// discovery role's work list (spec §4.B: "For each diocese missing a
// parish directory: run diocese discovery then directory detection").
func (s *Store) ListDiocesesMissingDirectory(ctx context.Context) ([]Diocese, error) {
	const q = `
		SELECT d.diocese_id, d.name, d.address, d.website_url
		FROM diocese d
		LEFT JOIN parish_directory pdir ON pdir.diocese_id = d.diocese_id
		WHERE pdir.diocese_id IS NULL OR NOT pdir.found
		ORDER BY d.diocese_id ASC`
	var dioceses []Diocese
	if err := s.db.SelectContext(ctx, &dioceses, q); err != nil {
		return nil, pipelineerrors.FailedTo("list dioceses missing directory", err)
	}
	return dioceses, nil
}

// ParishDirectory mirrors the ParishDirectory entity (spec §3), the
// extraction role's input for "where is this diocese's parish list."
type ParishDirectory struct {
	DioceseID    int64      `db:"diocese_id"`
	DirectoryURL string     `db:"directory_url"`
	Found        bool       `db:"found"`
	DetectedBy   DetectedBy `db:"detected_by"`
}

// GetParishDirectory returns dioceseID's recorded directory, or nil with
// a nil error if no row exists yet.
func (s *Store) GetParishDirectory(ctx context.Context, dioceseID int64) (*ParishDirectory, error) {
	const q = `SELECT diocese_id, directory_url, found, detected_by FROM parish_directory WHERE diocese_id = $1`
	var d ParishDirectory
	err := s.db.GetContext(ctx, &d, q, dioceseID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, pipelineerrors.FailedToWithDetails("get parish directory", "persistence", strconv.FormatInt(dioceseID, 10), err)
	}
	return &d, nil
}

// UpsertParishDirectory records dioceseID's parish-directory URL. One row
// per diocese (spec §3 ParishDirectory).
func (s *Store) UpsertParishDirectory(ctx context.Context, dioceseID int64, directoryURL string, found bool, detectedBy DetectedBy) error {
	const q = `
		INSERT INTO parish_directory (diocese_id, directory_url, found, detected_by, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (diocese_id) DO UPDATE SET
			directory_url = EXCLUDED.directory_url,
			found = EXCLUDED.found,
			detected_by = EXCLUDED.detected_by,
			updated_at = now()`
	_, err := s.db.ExecContext(ctx, q, dioceseID, directoryURL, found, string(detectedBy))
	if err != nil {
		return pipelineerrors.FailedToWithDetails("upsert parish directory", "persistence", strconv.FormatInt(dioceseID, 10), err)
	}
	return nil
}
