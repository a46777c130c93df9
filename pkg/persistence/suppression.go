package persistence

import (
	"context"
	"database/sql"
	"errors"
	"net/url"

	"github.com/lib/pq"

	pipelineerrors "github.com/dioceseharvest/pipeline/pkg/shared/errors"
)

// IsSuppressed implements fetch.SuppressionChecker: a URL is suppressed
// if either the exact URL or its bare origin appears in SuppressionUrl
// (spec §3 "opaque list of origins or URLs the fetcher must skip").
func (s *Store) IsSuppressed(ctx context.Context, rawURL string) (bool, error) {
	candidates := []string{rawURL}
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Host != "" {
		candidates = append(candidates, parsed.Scheme+"://"+parsed.Host)
	}

	const q = `SELECT 1 FROM suppression_url WHERE url = ANY($1) LIMIT 1`
	var exists int
	err := s.db.GetContext(ctx, &exists, q, pq.Array(candidates))
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, pipelineerrors.FailedToWithDetails("check suppression", "persistence", rawURL, err)
	}
	return true, nil
}

// ListSuppressedURLs returns every suppressed URL/origin entry, for
// callers (the schedule role) that need the whole set at once rather
// than checking one candidate at a time — e.g. to build the
// frontier.Prioritize suppressed-origins map up front.
func (s *Store) ListSuppressedURLs(ctx context.Context) ([]string, error) {
	var urls []string
	const q = `SELECT url FROM suppression_url`
	if err := s.db.SelectContext(ctx, &urls, q); err != nil {
		return nil, pipelineerrors.FailedTo("list suppressed urls", err)
	}
	return urls, nil
}

// AddSuppression inserts or refreshes a suppressed URL/origin entry.
func (s *Store) AddSuppression(ctx context.Context, rawURL, reason string) error {
	const q = `
		INSERT INTO suppression_url (url, reason)
		VALUES ($1, $2)
		ON CONFLICT (url) DO UPDATE SET reason = EXCLUDED.reason`
	_, err := s.db.ExecContext(ctx, q, rawURL, reason)
	if err != nil {
		return pipelineerrors.FailedToWithDetails("add suppression", "persistence", rawURL, err)
	}
	return nil
}
