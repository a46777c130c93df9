package persistence

import (
	"context"
	"strconv"

	pipelineerrors "github.com/dioceseharvest/pipeline/pkg/shared/errors"
)

// Diocese mirrors the Diocese entity (spec §3). Its diocese_id never
// changes; UpsertDiocese refreshes the other fields.
type Diocese struct {
	DioceseID  int64  `db:"diocese_id"`
	Name       string `db:"name"`
	Address    string `db:"address"`
	WebsiteURL string `db:"website_url"`
}

// UpsertDiocese inserts d or, if diocese_id already exists, refreshes its
// mutable fields. Idempotent.
func (s *Store) UpsertDiocese(ctx context.Context, d Diocese) error {
	const q = `
		INSERT INTO diocese (diocese_id, name, address, website_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (diocese_id) DO UPDATE SET
			name = EXCLUDED.name,
			address = EXCLUDED.address,
			website_url = EXCLUDED.website_url`
	_, err := s.db.ExecContext(ctx, q, d.DioceseID, d.Name, d.Address, d.WebsiteURL)
	if err != nil {
		return pipelineerrors.FailedToWithDetails("upsert diocese", "persistence", strconv.FormatInt(d.DioceseID, 10), err)
	}
	return nil
}
