package persistence

import (
	"context"

	pipelineerrors "github.com/dioceseharvest/pipeline/pkg/shared/errors"
)

// Parish is the subset of the Parish entity (spec §3) a directory parser
// or AI extractor can populate before it is upserted. Normalization
// (lower-casing, punctuation/whitespace folding) is the caller's
// responsibility so the unique key matches reliably across sources.
type Parish struct {
	DioceseID        int64
	Name             string
	NormalizedName   string
	Street           string
	NormalizedStreet string
	City             string
	State            string
	PostalCode       string
	WebsiteURL       string
	Phone            string
	ExtractionMethod string
}

// UpsertParish dedupes on (diocese_id, normalized_name, normalized_street)
// (spec §3 Parish invariant). On conflict, only the columns the caller
// actually populated this time replace the stored value — an empty
// incoming field never clobbers data a previous, more detailed source
// already wrote (spec §4.G: "collisions merge non-null fields preferring
// higher-confidence sources"; later callers are expected to run a more
// targeted parser/AI pass than earlier ones, so "later write wins per
// populated field" approximates the confidence ordering without needing
// a stored per-field confidence value).
func (s *Store) UpsertParish(ctx context.Context, p Parish) (int64, error) {
	const q = `
		INSERT INTO parish (
			diocese_id, name, normalized_name, street, normalized_street,
			city, state, postal_code, website_url, phone, extraction_method
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (diocese_id, normalized_name, normalized_street) DO UPDATE SET
			name              = COALESCE(NULLIF(EXCLUDED.name, ''), parish.name),
			street            = COALESCE(NULLIF(EXCLUDED.street, ''), parish.street),
			city              = COALESCE(NULLIF(EXCLUDED.city, ''), parish.city),
			state             = COALESCE(NULLIF(EXCLUDED.state, ''), parish.state),
			postal_code       = COALESCE(NULLIF(EXCLUDED.postal_code, ''), parish.postal_code),
			website_url       = COALESCE(NULLIF(EXCLUDED.website_url, ''), parish.website_url),
			phone             = COALESCE(NULLIF(EXCLUDED.phone, ''), parish.phone),
			extraction_method = COALESCE(NULLIF(EXCLUDED.extraction_method, ''), parish.extraction_method),
			updated_at        = now()
		RETURNING parish_id`

	var parishID int64
	err := s.db.QueryRowxContext(ctx, q,
		p.DioceseID, p.Name, p.NormalizedName, p.Street, p.NormalizedStreet,
		p.City, p.State, p.PostalCode, p.WebsiteURL, p.Phone, p.ExtractionMethod,
	).Scan(&parishID)
	if err != nil {
		return 0, pipelineerrors.FailedToWithDetails("upsert parish", "persistence", p.NormalizedName, err)
	}
	return parishID, nil
}
