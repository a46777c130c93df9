package coordinator

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dioceseharvest/pipeline/internal/config"
	pipelineerrs "github.com/dioceseharvest/pipeline/pkg/pipeline/errs"
	"github.com/dioceseharvest/pipeline/pkg/persistence"
)

type fakeStore struct {
	mu sync.Mutex

	registered    []string
	heartbeats    int
	heartbeatErr  error
	activeWorkers []string
	claimed       []int64
	claimErr      error
	completed     []persistence.AssignmentOutcome
	sweepCount    int
	sweepReclaim  int
	sweepErr      error
}

func (f *fakeStore) RegisterWorker(ctx context.Context, workerID, podName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, workerID)
	return nil
}

func (f *fakeStore) Heartbeat(ctx context.Context, workerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	return f.heartbeatErr
}

func (f *fakeStore) ClaimNext(ctx context.Context, workerID string, n int) ([]int64, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	return f.claimed, nil
}

func (f *fakeStore) Complete(ctx context.Context, workerID string, dioceseID int64, outcome persistence.AssignmentOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, outcome)
	return nil
}

func (f *fakeStore) Sweep(ctx context.Context, deadAfter time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweepCount++
	return f.sweepReclaim, f.sweepErr
}

func (f *fakeStore) ActiveWorkerIDs(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeWorkers, nil
}

func (f *fakeStore) snapshot() (registered []string, sweepCount int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.registered...), f.sweepCount
}

var _ = Describe("Coordinator", func() {
	var store *fakeStore

	BeforeEach(func() {
		store = &fakeStore{}
	})

	Describe("Register", func() {
		It("upserts this worker's row", func() {
			c := New(store, config.CoordinatorConfig{}, "worker-2", "pod-a", nil)

			Expect(c.Register(context.Background())).To(Succeed())
			Expect(store.registered).To(Equal([]string{"worker-2"}))
		})
	})

	Describe("IsLead", func() {
		It("wins when its worker_id is lexicographically smallest", func() {
			store.activeWorkers = []string{"worker-1", "worker-2"}
			c := New(store, config.CoordinatorConfig{}, "worker-1", "pod-a", nil)

			lead, err := c.IsLead(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(lead).To(BeTrue())
		})

		It("loses when another worker_id sorts first", func() {
			store.activeWorkers = []string{"worker-1", "worker-2"}
			c := New(store, config.CoordinatorConfig{}, "worker-2", "pod-a", nil)

			lead, err := c.IsLead(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(lead).To(BeFalse())
		})

		It("reports false when there are no active workers", func() {
			c := New(store, config.CoordinatorConfig{}, "worker-1", "pod-a", nil)

			lead, err := c.IsLead(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(lead).To(BeFalse())
		})
	})

	Describe("ClaimNext and Complete", func() {
		It("claims the store's batch and records the completion outcome", func() {
			store.claimed = []int64{3, 4}
			c := New(store, config.CoordinatorConfig{}, "worker-1", "pod-a", nil)

			claimed, err := c.ClaimNext(context.Background(), 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(claimed).To(HaveLen(2))

			Expect(c.Complete(context.Background(), 3, Completed)).To(Succeed())
			Expect(store.completed).To(Equal([]persistence.AssignmentOutcome{persistence.AssignmentCompleted}))
		})
	})

	Describe("RunHeartbeatLoop", func() {
		It("re-registers after an unknown-worker heartbeat failure", func() {
			store.heartbeatErr = pipelineerrs.ErrUnknownWorker
			c := New(store, config.CoordinatorConfig{HeartbeatPeriod: 5 * time.Millisecond}, "worker-1", "pod-a", nil)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()

			Expect(c.RunHeartbeatLoop(ctx)).To(Succeed())

			registered, _ := store.snapshot()
			Expect(registered).NotTo(BeEmpty())
		})
	})

	Describe("RunSweepLoop", func() {
		It("sweeps while this worker holds the lead", func() {
			store.activeWorkers = []string{"worker-2", "worker-1"}
			store.sweepReclaim = 1
			c := New(store, config.CoordinatorConfig{SweepInterval: 5 * time.Millisecond, WorkerDeadAfter: time.Second}, "worker-1", "pod-a", nil)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()

			Expect(c.RunSweepLoop(ctx)).To(Succeed())

			_, sweepCount := store.snapshot()
			Expect(sweepCount).To(BeNumerically(">", 0))
		})

		It("skips sweeping when another worker holds the lead", func() {
			store.activeWorkers = []string{"worker-1", "worker-2"}
			c := New(store, config.CoordinatorConfig{SweepInterval: 5 * time.Millisecond, WorkerDeadAfter: time.Second}, "worker-2", "pod-a", nil)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()

			Expect(c.RunSweepLoop(ctx)).To(Succeed())

			_, sweepCount := store.snapshot()
			Expect(sweepCount).To(Equal(0))
		})

		It("invokes the sweep hook with the reclaimed count", func() {
			store.activeWorkers = []string{"worker-1"}
			store.sweepReclaim = 3
			c := New(store, config.CoordinatorConfig{SweepInterval: 5 * time.Millisecond, WorkerDeadAfter: time.Second}, "worker-1", "pod-a", nil)

			var hookMu sync.Mutex
			var reclaimedSeen int
			c.OnSweep(func(reclaimed int) {
				hookMu.Lock()
				defer hookMu.Unlock()
				reclaimedSeen = reclaimed
			})

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()

			Expect(c.RunSweepLoop(ctx)).To(Succeed())

			hookMu.Lock()
			defer hookMu.Unlock()
			Expect(reclaimedSeen).To(Equal(3))
		})
	})
})
