package frontier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dioceseharvest/pipeline/internal/config"
	"github.com/dioceseharvest/pipeline/pkg/breaker"
	"github.com/dioceseharvest/pipeline/pkg/fetch"
	"github.com/dioceseharvest/pipeline/pkg/fetch/cache"
	"github.com/dioceseharvest/pipeline/pkg/keywords"
)

func testFetcher() *fetch.Fetcher {
	cfg := config.FetchConfig{
		UserAgent:          "dioceseharvest-bot/1.0",
		RobotsTTL:          time.Hour,
		BlockedCooldown:    time.Minute,
		DefaultRatePerSec:  1000,
		DefaultBurst:       1000,
		DefaultConcurrency: 10,
		MinTimeout:         time.Second,
		MaxTimeout:         5 * time.Second,
	}
	return fetch.New(cfg, breaker.NewRegistry(nil), cache.New(""), nil, nil, nil, nil)
}

var _ = Describe("Frontier score", func() {
	It("scores a dedicated schedule token path highly", func() {
		kw, _ := keywords.Load("", nil)
		f := New(testFetcher(), kw, nil)
		Expect(f.score("https://p.example.org/mass-times", "")).To(BeNumerically(">=", 40))
	})

	It("scores a cathedral path", func() {
		kw, _ := keywords.Load("", nil)
		f := New(testFetcher(), kw, nil)
		Expect(f.score("https://p.example.org/cathedral/events", "")).To(BeNumerically(">=", 20))
	})

	It("adds a scaled ML-confidence term when the scorer clears the gate", func() {
		kw, _ := keywords.Load("", nil)
		scorer := func(rawURL, ctx string) (float64, bool) { return 1.0, true }
		f := New(testFetcher(), kw, scorer)
		Expect(f.score("https://p.example.org/staff-directory", "")).To(Equal(15))
	})

	It("ignores an ML signal below the confidence gate", func() {
		kw, _ := keywords.Load("", nil)
		scorer := func(rawURL, ctx string) (float64, bool) { return 0.2, true }
		f := New(testFetcher(), kw, scorer)
		Expect(f.score("https://p.example.org/staff-directory", "")).To(Equal(0))
	})

	It("caps the total score at 100", func() {
		kw, _ := keywords.Load("", nil)
		scorer := func(rawURL, ctx string) (float64, bool) { return 1.0, true }
		f := New(testFetcher(), kw, scorer)
		got := f.score("https://p.example.org/cathedral-mass-times", "mass confession adoration reconciliation")
		Expect(got).To(Equal(100))
	})
})

var _ = Describe("Frontier Discover", func() {
	It("discovers and scores candidates from both the sitemap and the root page", func() {
		var baseURL string
		mux := http.NewServeMux()
		mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("User-agent: *\nDisallow:\n"))
		})
		mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<urlset><url><loc>` + baseURL + `/mass-times</loc></url></urlset>`))
		})
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html><body><a href="/events">Upcoming events</a></body></html>`))
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()
		baseURL = srv.URL

		f := New(testFetcher(), nil, nil)
		candidates, err := f.Discover(context.Background(), srv.URL+"/")
		Expect(err).NotTo(HaveOccurred())

		var foundMassTimes bool
		for _, c := range candidates {
			if strings.Contains(c.URL, "/mass-times") {
				foundMassTimes = true
				Expect(c.Score).To(BeNumerically(">=", 40))
			}
		}
		Expect(foundMassTimes).To(BeTrue(), "expected /mass-times discovered via sitemap")
	})
})
