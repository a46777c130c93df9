// Package coordinator is the thin orchestration layer over
// pkg/persistence's worker-lifecycle methods: register/heartbeat once at
// start, a background heartbeat loop, lead election, and a lead-only
// sweep loop (spec §4.A).
package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dioceseharvest/pipeline/internal/config"
	pipelineerrs "github.com/dioceseharvest/pipeline/pkg/pipeline/errs"
	"github.com/dioceseharvest/pipeline/pkg/persistence"
)

// Store is the subset of *persistence.Store the coordinator needs.
type Store interface {
	RegisterWorker(ctx context.Context, workerID, podName string) error
	Heartbeat(ctx context.Context, workerID string) error
	ClaimNext(ctx context.Context, workerID string, n int) ([]int64, error)
	Complete(ctx context.Context, workerID string, dioceseID int64, outcome persistence.AssignmentOutcome) error
	Sweep(ctx context.Context, deadAfter time.Duration) (int, error)
	ActiveWorkerIDs(ctx context.Context) ([]string, error)
}

// Re-exported so callers only need to import pkg/coordinator.
const (
	Completed = persistence.AssignmentCompleted
	Failed    = persistence.AssignmentFailed
)

// Coordinator runs one worker's lifecycle: registration, heartbeat,
// claiming, completion, and (when it wins the lead election) periodic
// sweeping of dead workers.
type Coordinator struct {
	store     Store
	cfg       config.CoordinatorConfig
	workerID  string
	podName   string
	logger    *logrus.Entry
	sweepHook func(reclaimed int)
}

// New constructs a Coordinator for one worker process. workerID must be
// unique per process (spec §4.A register: "Upserts the PipelineWorker
// row"); callers typically derive it from the pod name plus a random
// suffix so restarts of the same pod don't collide with a still-draining
// predecessor.
func New(store Store, cfg config.CoordinatorConfig, workerID, podName string, logger *logrus.Logger) *Coordinator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Coordinator{
		store:    store,
		cfg:      cfg,
		workerID: workerID,
		podName:  podName,
		logger:   logger.WithFields(logrus.Fields{"component": "coordinator", "worker_id": workerID}),
	}
}

// WorkerID returns the identity this coordinator registers and claims
// work under.
func (c *Coordinator) WorkerID() string { return c.workerID }

// OnSweep registers hook to be called with the reclaimed count after every
// successful sweep RunSweepLoop runs as lead, including sweeps that
// reclaimed nothing (count 0).
// Used by the telemetry surface to count reclaims and alert on large
// ones without the coordinator importing telemetry.
func (c *Coordinator) OnSweep(hook func(reclaimed int)) {
	c.sweepHook = hook
}

// Register upserts this worker's row active (spec §4.A register).
func (c *Coordinator) Register(ctx context.Context) error {
	if err := c.store.RegisterWorker(ctx, c.workerID, c.podName); err != nil {
		return err
	}
	c.logger.Info("worker registered")
	return nil
}

// Heartbeat refreshes this worker's last_heartbeat.
func (c *Coordinator) Heartbeat(ctx context.Context) error {
	return c.store.Heartbeat(ctx, c.workerID)
}

// ClaimNext claims up to n dioceses for this worker (spec §4.A claim_next).
func (c *Coordinator) ClaimNext(ctx context.Context, n int) ([]int64, error) {
	return c.store.ClaimNext(ctx, c.workerID, n)
}

// Complete marks dioceseID's assignment terminal for this worker (spec
// §4.A complete).
func (c *Coordinator) Complete(ctx context.Context, dioceseID int64, outcome persistence.AssignmentOutcome) error {
	return c.store.Complete(ctx, c.workerID, dioceseID, outcome)
}

// IsLead reports whether this worker currently holds the lead —
// lexicographically smallest worker_id among active rows (spec §4.A
// "Lead-worker election").
func (c *Coordinator) IsLead(ctx context.Context) (bool, error) {
	ids, err := c.store.ActiveWorkerIDs(ctx)
	if err != nil {
		return false, err
	}
	if len(ids) == 0 {
		return false, nil
	}
	lead := ids[0]
	for _, id := range ids[1:] {
		if id < lead {
			lead = id
		}
	}
	return lead == c.workerID, nil
}

// RunHeartbeatLoop sends a heartbeat every cfg.HeartbeatPeriod until ctx
// is cancelled. When a heartbeat fails because this worker fell out of
// the active set (ErrUnknownWorker), the loop re-registers the worker
// itself rather than heartbeat a row that no longer exists; other
// heartbeat errors are logged and the loop keeps going.
func (c *Coordinator) RunHeartbeatLoop(ctx context.Context) error {
	period := c.cfg.HeartbeatPeriod
	if period <= 0 {
		period = 15 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.Heartbeat(ctx); err != nil {
				if errors.Is(err, pipelineerrs.ErrUnknownWorker) {
					if regErr := c.Register(ctx); regErr != nil {
						c.logger.WithError(regErr).Error("re-register after unknown worker failed")
						continue
					}
					continue
				}
				c.logger.WithError(err).Warn("heartbeat failed")
			}
		}
	}
}

// RunSweepLoop runs sweep on cfg.SweepInterval, but only takes effect
// while this worker holds the lead (spec §4.A sweep: "runs periodically
// on exactly one worker"). Every tick still re-checks leadership since
// the lead can change between ticks.
func (c *Coordinator) RunSweepLoop(ctx context.Context) error {
	interval := c.cfg.SweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			lead, err := c.IsLead(ctx)
			if err != nil {
				c.logger.WithError(err).Warn("lead election check failed")
				continue
			}
			if !lead {
				continue
			}
			deadAfter := c.cfg.WorkerDeadAfter
			if deadAfter <= 0 {
				deadAfter = 90 * time.Second
			}
			n, err := c.store.Sweep(ctx, deadAfter)
			if err != nil {
				c.logger.WithError(err).Error("sweep failed")
				continue
			}
			if n > 0 {
				c.logger.WithField("reclaimed", n).Info("swept dead workers")
			}
			if c.sweepHook != nil {
				c.sweepHook(n)
			}
		}
	}
}

// RunBackground starts the heartbeat and sweep loops under an errgroup
// bound to ctx, returning once ctx is cancelled or either loop errors.
func (c *Coordinator) RunBackground(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.RunHeartbeatLoop(ctx) })
	g.Go(func() error { return c.RunSweepLoop(ctx) })
	return g.Wait()
}
