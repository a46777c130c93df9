// Package persistence is the only writer to the relational store (spec
// §4.G). Every exported method is either idempotent or explicitly
// documented otherwise; coordination-sensitive operations run inside a
// single transaction retried on serialization conflict (spec §4.A/§4.G).
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	pipelineerrs "github.com/dioceseharvest/pipeline/pkg/pipeline/errs"
	pipelineerrors "github.com/dioceseharvest/pipeline/pkg/shared/errors"
)

// Store wraps the shared connection pool with every write operation the
// pipeline needs, grounded on the teacher corpus's repository-over-sqlx.DB
// construction style (NewXRepository(db, logger)).
type Store struct {
	db          *sqlx.DB
	logger      *logrus.Entry
	maxRetries  int
	backoffBase time.Duration
	backoffSpan time.Duration
}

// New constructs a Store over db.
func New(db *sqlx.DB, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{
		db:          db,
		logger:      logger.WithField("component", "persistence"),
		maxRetries:  3,
		backoffBase: 50 * time.Millisecond,
		backoffSpan: 200 * time.Millisecond,
	}
}

// serializationRetryable reports whether err is a Postgres serialization
// failure (SQLSTATE 40001) worth retrying the whole transaction for
// (spec §4.G: "on serialization failure the caller retries up to 3x with
// 50-250ms jittered backoff").
func serializationRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001"
	}
	return false
}

// withSerializableTxn runs fn inside a SERIALIZABLE transaction, retrying
// the entire attempt up to s.maxRetries times on a serialization conflict.
func (s *Store) withSerializableTxn(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			jitter := time.Duration(rand.Int63n(int64(s.backoffSpan)))
			select {
			case <-time.After(s.backoffBase + jitter):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return pipelineerrors.FailedTo("begin serializable transaction", err)
		}

		err = fn(tx)
		if err != nil {
			tx.Rollback()
			if serializationRetryable(err) {
				lastErr = fmt.Errorf("%w: %w", pipelineerrs.ErrSerializationConflict, err)
				continue
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			if serializationRetryable(err) {
				lastErr = fmt.Errorf("%w: %w", pipelineerrs.ErrSerializationConflict, err)
				continue
			}
			return pipelineerrors.FailedTo("commit transaction", err)
		}
		return nil
	}
	return lastErr
}
