package telemetry

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server is the minimal ops HTTP surface: health/ready, Prometheus
// /metrics, and a JSON status/breaker view for ad hoc polling (spec
// §4.H: "An external observer may poll a status call ... the core does
// not prescribe the protocol"). This is deliberately not the dashboard
// or WebSocket monitoring server, which is out of scope.
type Server struct {
	server   *http.Server
	log      *logrus.Entry
	reporter *Reporter
	breakers BreakerSnapshotter
}

// BreakerSnapshotter is the subset of *breaker.Registry the server needs,
// kept as a consumer-defined interface so the server does not depend on
// pkg/breaker and can be tested with a stub; RegistryAdapter in
// breaker_watch.go adapts the real registry.
type BreakerSnapshotter interface {
	SnapshotAll() map[string]BreakerState
}

// NewServer builds a Server listening on port (no leading colon). Routes
// are registered but the server is not started until StartAsync.
func NewServer(port string, logger *logrus.Logger, reporter *Reporter, breakers BreakerSnapshotter) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{
		log:      logger.WithField("component", "telemetry_server"),
		reporter: reporter,
		breakers: breakers,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/status", s.handleStatus)
	r.Get("/breakers", s.handleBreakers)
	r.Get("/events/errors", s.handleErrorEvents)
	r.Get("/events/log", s.handleLogLines)

	s.server = &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	return s
}

// StartAsync begins serving in a background goroutine. Bind errors other
// than ErrServerClosed are logged, not returned, matching the teacher's
// fire-and-forget server lifecycle.
func (s *Server) StartAsync() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("telemetry server stopped unexpectedly")
		}
	}()
}

// Stop gracefully shuts the server down, bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.reporter.Snapshot())
}

func (s *Server) handleBreakers(w http.ResponseWriter, _ *http.Request) {
	if s.breakers == nil {
		writeJSON(w, map[string]BreakerState{})
		return
	}
	writeJSON(w, s.breakers.SnapshotAll())
}

func (s *Server) handleErrorEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.reporter.ErrorEvents())
}

func (s *Server) handleLogLines(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.reporter.LogLines())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
