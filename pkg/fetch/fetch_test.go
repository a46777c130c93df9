package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dioceseharvest/pipeline/internal/config"
	"github.com/dioceseharvest/pipeline/pkg/breaker"
	"github.com/dioceseharvest/pipeline/pkg/fetch/cache"
	"github.com/dioceseharvest/pipeline/pkg/pipeline/errs"
)

type fakeSuppression struct {
	suppressed map[string]bool
}

func (f *fakeSuppression) IsSuppressed(ctx context.Context, rawURL string) (bool, error) {
	return f.suppressed[rawURL], nil
}

type recordedVisit struct {
	url     string
	outcome string
	status  int
}

type fakeRecorder struct {
	visits []recordedVisit
}

func (f *fakeRecorder) RecordVisit(ctx context.Context, rawURL, outcome string, status int, elapsed time.Duration) error {
	f.visits = append(f.visits, recordedVisit{rawURL, outcome, status})
	return nil
}

func testConfig() config.FetchConfig {
	return config.FetchConfig{
		UserAgent:          "dioceseharvest-bot/1.0",
		RobotsTTL:          time.Hour,
		BlockedCooldown:    time.Minute,
		BaseDelay:          0,
		DefaultRatePerSec:  1000,
		DefaultBurst:       1000,
		DefaultConcurrency: 10,
		MinTimeout:         time.Second,
		MaxTimeout:         5 * time.Second,
	}
}

func newTestFetcher(suppressed map[string]bool) (*Fetcher, *fakeRecorder) {
	rec := &fakeRecorder{}
	f := New(
		testConfig(),
		breaker.NewRegistry(nil),
		cache.New(""),
		&fakeSuppression{suppressed: suppressed},
		rec,
		nil,
		nil,
	)
	f.rand = func() float64 { return 0 }
	return f, rec
}

var _ = Describe("Fetcher", func() {
	Describe("Fetch", func() {
		It("classifies a 2xx response as OK and records the visit", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("<html>ok</html>"))
			}))
			defer srv.Close()

			f, rec := newTestFetcher(nil)
			result, err := f.Fetch(context.Background(), srv.URL, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Outcome).To(Equal(OutcomeOK))
			Expect(rec.visits).To(HaveLen(1))
			Expect(rec.visits[0].outcome).To(Equal(string(OutcomeOK)))
		})

		It("short-circuits on a suppressed URL without making a request", func() {
			url := "http://example.org/parish"
			f, rec := newTestFetcher(map[string]bool{url: true})
			_, err := f.Fetch(context.Background(), url, "")
			Expect(err).To(MatchError(errs.ErrSuppressed))
			Expect(rec.visits).To(HaveLen(1))
			Expect(rec.visits[0].outcome).To(Equal(string(OutcomeSuppressed)))
		})

		It("classifies a 5xx response as a server error", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			}))
			defer srv.Close()

			f, _ := newTestFetcher(nil)
			_, err := f.Fetch(context.Background(), srv.URL, "")
			Expect(err).To(MatchError(errs.ErrServerError))
		})

		It("classifies a 4xx response as a client error", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			}))
			defer srv.Close()

			f, _ := newTestFetcher(nil)
			_, err := f.Fetch(context.Background(), srv.URL, "")
			Expect(err).To(MatchError(errs.ErrClientError))
		})

		It("marks the origin in cooldown after a 403 and short-circuits the next attempt", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			}))
			defer srv.Close()

			f, _ := newTestFetcher(nil)
			_, err := f.Fetch(context.Background(), srv.URL, "")
			Expect(err).To(HaveOccurred())

			_, err2 := f.Fetch(context.Background(), srv.URL, "")
			Expect(err2).To(HaveOccurred())
		})

		It("classifies a 200 response carrying a challenge marker as Blocked", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("<html><body>Checking your browser before accessing this site.</body></html>"))
			}))
			defer srv.Close()

			f, rec := newTestFetcher(nil)
			_, err := f.Fetch(context.Background(), srv.URL, "")
			Expect(err).To(MatchError(errs.ErrBlocked))
			Expect(rec.visits).To(HaveLen(1))
			Expect(rec.visits[0].outcome).To(Equal(string(OutcomeBlocked)))
		})

		It("opens the circuit after repeated server-error failures", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			}))
			defer srv.Close()

			f, _ := newTestFetcher(nil)
			var lastErr error
			for i := 0; i < 10; i++ {
				_, lastErr = f.Fetch(context.Background(), srv.URL, "")
			}
			Expect(lastErr).To(MatchError(errs.ErrCircuitOpen))
		})
	})

	Describe("FetchJS", func() {
		It("returns ErrResourceExhausted when no browser pool is configured", func() {
			f, _ := newTestFetcher(nil)
			_, err := f.FetchJS(context.Background(), "http://example.org")
			Expect(err).To(MatchError(errs.ErrResourceExhausted))
		})
	})
})
