package breaker

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sirupsen/logrus"

	pipelineerrs "github.com/dioceseharvest/pipeline/pkg/pipeline/errs"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

var _ = Describe("Breaker", func() {
	It("starts CLOSED and healthy", func() {
		b := New("test", Config{FailureThreshold: 3, FailureWindow: time.Minute, RecoveryTimeout: time.Minute}, testLogger())
		Expect(b.State()).To(Equal(StateClosed))
		Expect(b.IsHealthy()).To(BeTrue())
	})

	It("trips to OPEN after the failure threshold and blocks subsequent calls", func() {
		b := New("diocese_page_load", Config{FailureThreshold: 3, FailureWindow: time.Minute, RecoveryTimeout: time.Minute}, testLogger())
		failing := func() error { return errors.New("boom") }

		for i := 0; i < 2; i++ {
			_ = b.Guard(failing)
			Expect(b.State()).To(Equal(StateClosed))
		}

		_ = b.Guard(failing)
		Expect(b.State()).To(Equal(StateOpen))

		called := false
		err := b.Guard(func() error { called = true; return nil })
		Expect(called).To(BeFalse())
		Expect(errors.Is(err, pipelineerrs.ErrCircuitOpen)).To(BeTrue())

		snap := b.Snapshot()
		Expect(snap.TotalBlocked).To(Equal(int64(1)))
	})

	It("transitions OPEN -> HALF_OPEN -> CLOSED after recovery and a successful call", func() {
		b := New("test", Config{FailureThreshold: 1, FailureWindow: time.Minute, RecoveryTimeout: 20 * time.Millisecond}, testLogger())

		_ = b.Guard(func() error { return errors.New("boom") })
		Expect(b.State()).To(Equal(StateOpen))

		Eventually(b.State, 200*time.Millisecond, 5*time.Millisecond).Should(Equal(StateHalfOpen))

		Expect(b.Guard(func() error { return nil })).To(Succeed())
		Expect(b.State()).To(Equal(StateClosed))
	})

	It("reopens on a failure seen while HALF_OPEN", func() {
		b := New("test", Config{FailureThreshold: 1, FailureWindow: time.Minute, RecoveryTimeout: 10 * time.Millisecond}, testLogger())

		_ = b.Guard(func() error { return errors.New("boom") })
		Eventually(b.State, 200*time.Millisecond, 5*time.Millisecond).Should(Equal(StateHalfOpen))

		_ = b.Guard(func() error { return errors.New("still failing") })
		Expect(b.State()).To(Equal(StateOpen))
	})

	It("prunes failures that fall outside the failure window", func() {
		b := New("test", Config{FailureThreshold: 3, FailureWindow: 20 * time.Millisecond, RecoveryTimeout: time.Minute}, testLogger())

		_ = b.Guard(func() error { return errors.New("boom") })
		time.Sleep(30 * time.Millisecond)
		_ = b.Guard(func() error { return errors.New("boom") })
		_ = b.Guard(func() error { return errors.New("boom") })

		Expect(b.State()).To(Equal(StateClosed))
	})

	It("returns to a clean CLOSED state on Reset", func() {
		b := New("test", Config{FailureThreshold: 1, FailureWindow: time.Minute, RecoveryTimeout: time.Minute}, testLogger())
		_ = b.Guard(func() error { return errors.New("boom") })
		Expect(b.State()).To(Equal(StateOpen))

		b.Reset()
		Expect(b.State()).To(Equal(StateClosed))
		Expect(b.IsHealthy()).To(BeTrue())
	})
})

var _ = Describe("Registry", func() {
	It("preloads the well-known named breakers", func() {
		r := NewRegistry(testLogger())
		for _, name := range []string{NameDiocesePageLoad, NameParishDetailLoad, NameWebdriverRequests, NameJavascriptExec, NameAIContentAnalysis} {
			_, ok := r.Get(name)
			Expect(ok).To(BeTrue(), "expected preloaded breaker %q", name)
		}
	})

	It("lazily creates per-origin breakers and reuses the same instance", func() {
		r := NewRegistry(testLogger())
		name := "origin:parish.example.org"

		_, ok := r.Get(name)
		Expect(ok).To(BeFalse())

		b := r.GetOrCreate(name, nil)
		Expect(b).NotTo(BeNil())

		again := r.GetOrCreate(name, nil)
		Expect(again).To(BeIdenticalTo(b))
	})

	It("snapshots every registered breaker", func() {
		r := NewRegistry(testLogger())
		r.GetOrCreate("origin:parish.example.org", nil)

		snaps := r.SnapshotAll()
		Expect(len(snaps)).To(BeNumerically(">=", 6))
		Expect(snaps[NameDiocesePageLoad].State).To(Equal(StateClosed))
	})

	It("guards a call by name", func() {
		r := NewRegistry(testLogger())
		Expect(r.Guard(NameAIContentAnalysis, func() error { return nil })).To(Succeed())
	})
})
