package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	pipelineerrs "github.com/dioceseharvest/pipeline/pkg/pipeline/errs"
	pipelineerrors "github.com/dioceseharvest/pipeline/pkg/shared/errors"
)

// WorkerStatus mirrors PipelineWorker.status (spec §3).
type WorkerStatus string

const (
	WorkerActive   WorkerStatus = "active"
	WorkerInactive WorkerStatus = "inactive"
	WorkerFailed   WorkerStatus = "failed"
)

// AssignmentOutcome is the terminal state Complete sets (spec §4.A).
type AssignmentOutcome string

const (
	AssignmentCompleted AssignmentOutcome = "completed"
	AssignmentFailed    AssignmentOutcome = "failed"
)

// RegisterWorker upserts workerID's PipelineWorker row active, resetting
// its heartbeat (spec §4.A register: "Idempotent").
func (s *Store) RegisterWorker(ctx context.Context, workerID, podName string) error {
	const q = `
		INSERT INTO pipeline_worker (worker_id, pod_name, status, last_heartbeat, assigned_dioceses)
		VALUES ($1, $2, 'active', now(), '{}')
		ON CONFLICT (worker_id) DO UPDATE SET
			pod_name = EXCLUDED.pod_name,
			status = 'active',
			last_heartbeat = now(),
			updated_at = now()`
	_, err := s.db.ExecContext(ctx, q, workerID, podName)
	if err != nil {
		return pipelineerrors.FailedToWithDetails("register worker", "persistence", workerID, err)
	}
	return nil
}

// Heartbeat refreshes workerID's last_heartbeat. Returns
// pipeline/errs.ErrUnknownWorker if no active row exists (spec §4.A
// heartbeat: "caller must re-register").
func (s *Store) Heartbeat(ctx context.Context, workerID string) error {
	const q = `
		UPDATE pipeline_worker SET last_heartbeat = now(), updated_at = now()
		WHERE worker_id = $1 AND status = 'active'`
	res, err := s.db.ExecContext(ctx, q, workerID)
	if err != nil {
		return pipelineerrors.FailedToWithDetails("heartbeat", "persistence", workerID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return pipelineerrors.FailedTo("read heartbeat rows affected", err)
	}
	if n == 0 {
		return pipelineerrs.ErrUnknownWorker
	}
	return nil
}

// ClaimNext atomically assigns up to n unclaimed dioceses to workerID
// (spec §4.A claim_next selection policy: no directory yet first, then
// fewest ParishData rows, ties by ascending diocese_id), retried on
// serialization conflict.
func (s *Store) ClaimNext(ctx context.Context, workerID string, n int) ([]int64, error) {
	var claimed []int64
	err := s.withSerializableTxn(ctx, func(tx *sqlx.Tx) error {
		claimed = nil

		const selectQ = `
			SELECT d.diocese_id
			FROM diocese d
			LEFT JOIN parish_directory pdir ON pdir.diocese_id = d.diocese_id
			LEFT JOIN (
				SELECT p.diocese_id, count(pdt.id) AS cnt
				FROM parish p
				LEFT JOIN parish_data pdt ON pdt.parish_id = p.parish_id
				GROUP BY p.diocese_id
			) counts ON counts.diocese_id = d.diocese_id
			WHERE NOT EXISTS (
				SELECT 1 FROM diocese_work_assignment dwa
				WHERE dwa.diocese_id = d.diocese_id AND dwa.status = 'processing'
			)
			ORDER BY (pdir.diocese_id IS NULL OR NOT pdir.found) DESC,
			         COALESCE(counts.cnt, 0) ASC,
			         d.diocese_id ASC
			LIMIT $1
			FOR UPDATE OF d SKIP LOCKED`

		if err := tx.SelectContext(ctx, &claimed, selectQ, n); err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}

		const insertQ = `
			INSERT INTO diocese_work_assignment (id, diocese_id, worker_id, status, assigned_at)
			VALUES ($1, $2, $3, 'processing', now())`
		for _, dioceseID := range claimed {
			if _, err := tx.ExecContext(ctx, insertQ, uuid.New(), dioceseID, workerID); err != nil {
				return err
			}
		}

		const updateWorkerQ = `
			UPDATE pipeline_worker
			SET assigned_dioceses = assigned_dioceses || $2::bigint[], updated_at = now()
			WHERE worker_id = $1`
		if _, err := tx.ExecContext(ctx, updateWorkerQ, workerID, pq.Array(claimed)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, pipelineerrors.FailedToWithDetails("claim next dioceses", "persistence", workerID, err)
	}
	return claimed, nil
}

// Complete marks dioceseID's processing assignment terminal and removes
// it from workerID's assigned_dioceses (spec §4.A complete).
func (s *Store) Complete(ctx context.Context, workerID string, dioceseID int64, outcome AssignmentOutcome) error {
	return s.withSerializableTxn(ctx, func(tx *sqlx.Tx) error {
		const updateAssignmentQ = `
			UPDATE diocese_work_assignment
			SET status = $3, completed_at = now()
			WHERE diocese_id = $1 AND worker_id = $2 AND status = 'processing'`
		res, err := tx.ExecContext(ctx, updateAssignmentQ, dioceseID, workerID, string(outcome))
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return nil // nothing processing for this (worker, diocese) pair; treat as already completed
		}

		const updateWorkerQ = `
			UPDATE pipeline_worker
			SET assigned_dioceses = array_remove(assigned_dioceses, $2), updated_at = now()
			WHERE worker_id = $1`
		_, err = tx.ExecContext(ctx, updateWorkerQ, workerID, dioceseID)
		return err
	})
}

// Sweep reclaims work from workers whose heartbeat is older than
// deadAfter: marks them inactive, and every processing assignment they
// held becomes failed and eligible for ClaimNext again (spec §4.A sweep).
// Runs on exactly one worker — the lead — per call convention.
func (s *Store) Sweep(ctx context.Context, deadAfter time.Duration) (reclaimed int, err error) {
	err = s.withSerializableTxn(ctx, func(tx *sqlx.Tx) error {
		reclaimed = 0

		var deadWorkers []string
		const selectDeadQ = `
			SELECT worker_id FROM pipeline_worker
			WHERE status = 'active' AND last_heartbeat < now() - make_interval(secs => $1)
			FOR UPDATE SKIP LOCKED`
		if err := tx.SelectContext(ctx, &deadWorkers, selectDeadQ, deadAfter.Seconds()); err != nil {
			return err
		}
		if len(deadWorkers) == 0 {
			return nil
		}

		const markInactiveQ = `UPDATE pipeline_worker SET status = 'inactive', assigned_dioceses = '{}', updated_at = now() WHERE worker_id = ANY($1)`
		if _, err := tx.ExecContext(ctx, markInactiveQ, pq.Array(deadWorkers)); err != nil {
			return err
		}

		const reclaimQ = `
			UPDATE diocese_work_assignment
			SET status = 'failed', completed_at = now()
			WHERE worker_id = ANY($1) AND status = 'processing'`
		res, err := tx.ExecContext(ctx, reclaimQ, pq.Array(deadWorkers))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		reclaimed = int(n)
		return nil
	})
	if err != nil {
		return 0, pipelineerrors.FailedTo("sweep dead workers", err)
	}
	return reclaimed, nil
}

// ActiveWorkerIDs returns every currently-active worker_id, used by the
// lead-election rule (lexicographically smallest active worker_id is
// lead, spec §5).
func (s *Store) ActiveWorkerIDs(ctx context.Context) ([]string, error) {
	var ids []string
	const q = `SELECT worker_id FROM pipeline_worker WHERE status = 'active' ORDER BY worker_id ASC`
	if err := s.db.SelectContext(ctx, &ids, q); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, pipelineerrors.FailedTo("list active workers", err)
	}
	return ids, nil
}
