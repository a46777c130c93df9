// Command harvester is the single binary for every worker role (spec
// §6): parameterized by worker_type, it wires the coordinator, the
// respectful fetcher, the circuit-breaker fabric, the AI confidence
// gate, the URL frontier, the persistence store, and the telemetry
// surface into one of the router's role loops and runs until signalled.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/dioceseharvest/pipeline/internal/config"
	"github.com/dioceseharvest/pipeline/internal/database"
	"github.com/dioceseharvest/pipeline/pkg/aigate"
	"github.com/dioceseharvest/pipeline/pkg/aigate/llm"
	"github.com/dioceseharvest/pipeline/pkg/breaker"
	"github.com/dioceseharvest/pipeline/pkg/coordinator"
	"github.com/dioceseharvest/pipeline/pkg/discovery/search"
	"github.com/dioceseharvest/pipeline/pkg/fetch"
	"github.com/dioceseharvest/pipeline/pkg/fetch/cache"
	"github.com/dioceseharvest/pipeline/pkg/frontier"
	"github.com/dioceseharvest/pipeline/pkg/keywords"
	"github.com/dioceseharvest/pipeline/pkg/persistence"
	"github.com/dioceseharvest/pipeline/pkg/router"
	"github.com/dioceseharvest/pipeline/pkg/telemetry"
)

// Exit codes (spec §6): 0 clean shutdown, 1 unrecoverable startup error,
// 2 cancelled before the router ever started its role loop(s).
const (
	exitOK         = 0
	exitStartupErr = 1
	exitCancelled  = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath             = flag.String("config", "config.yaml", "path to the YAML config file")
		workerType             = flag.String("worker_type", "", "discovery|extraction|schedule|reporting|all (overrides WORKER_TYPE)")
		maxParishesPerDiocese  = flag.Int("max_parishes_per_diocese", 0, "cap on parishes upserted per diocese directory page (0 keeps the config default)")
		numParishesForSchedule = flag.Int("num_parishes_for_schedule", 0, "batch size of the schedule role's prioritized parish selection")
		poolSize               = flag.Int("pool_size", 0, "headless-browser pool size (0 keeps the config default)")
		batchSize              = flag.Int("batch_size", 0, "claim_next batch size for the extraction role")
		monitoringURL          = flag.String("monitoring_url", "", "base URL the telemetry pusher POSTs newline-delimited events to")
		disableMonitoring      = flag.Bool("disable_monitoring", false, "disable the telemetry push/health surface entirely")
		runMigrations          = flag.Bool("migrate", false, "apply embedded schema migrations on startup before running")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "harvester: %v\n", err)
		return exitStartupErr
	}
	applyFlagOverrides(cfg, *workerType, *maxParishesPerDiocese, *numParishesForSchedule, *poolSize, *batchSize, *monitoringURL, *disableMonitoring)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "harvester: %v\n", err)
		return exitStartupErr
	}

	logger := newLogger(cfg.Logging)
	reporter := telemetry.NewReporter(cfg.Telemetry.RingBufferSize, cfg.Telemetry.LogRingBufferSize)
	logger.AddHook(telemetry.NewHook(reporter, logger.Formatter))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap(ctx, cfg, logger, reporter)
	if err != nil {
		logger.WithError(err).Error("startup failed")
		return exitStartupErr
	}
	defer app.close()

	if *runMigrations {
		if err := database.Migrate(app.db.DB); err != nil {
			logger.WithError(err).Error("migration failed")
			return exitStartupErr
		}
		logger.Info("schema migrations applied")
	}

	if err := app.coord.Register(ctx); err != nil {
		logger.WithError(err).Error("worker registration failed")
		return exitStartupErr
	}

	select {
	case <-ctx.Done():
		return exitCancelled
	default:
	}

	return app.runUntilDone(ctx)
}

// applyFlagOverrides lets explicitly-passed CLI flags win over both the
// YAML file and the environment-variable overrides config.Load already
// applied (spec §6: CLI flags for the per-run tuning knobs, env vars for
// connection secrets).
func applyFlagOverrides(cfg *config.Config, workerType string, maxParishes, numForSchedule, poolSize, batchSize int, monitoringURL string, disableMonitoring bool) {
	if workerType != "" {
		cfg.Router.WorkerType = workerType
	}
	if maxParishes > 0 {
		cfg.Router.MaxParishesPerDiocese = maxParishes
	}
	if numForSchedule > 0 {
		cfg.Router.NumParishesForSchedule = numForSchedule
	}
	if poolSize > 0 {
		cfg.Fetch.BrowserPoolSize = poolSize
	}
	if batchSize > 0 {
		cfg.Router.BatchSize = batchSize
	}
	if monitoringURL != "" {
		cfg.Telemetry.MonitoringURL = monitoringURL
	}
	if disableMonitoring {
		cfg.Telemetry.DisableMonitoring = true
	}
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

// application holds every long-lived component one worker process needs,
// built once in bootstrap and torn down in close.
type application struct {
	cfg      *config.Config
	logger   *logrus.Logger
	reporter *telemetry.Reporter

	db       *sqlx.DB
	store    *persistence.Store
	breakers *breaker.Registry
	kwTable  *keywords.Table
	coord    *coordinator.Coordinator
	rtr      *router.Router

	pusher   *telemetry.Pusher
	slack    *telemetry.SlackNotifier
	opServer *telemetry.Server
}

// bootstrap wires every component per spec §4/§6: persistence connection,
// breaker fabric, respectful fetcher, AI confidence gate, keyword table,
// search-API fallback, coordinator, router, and telemetry surface.
func bootstrap(ctx context.Context, cfg *config.Config, logger *logrus.Logger, reporter *telemetry.Reporter) (*application, error) {
	db, err := database.OpenDSN(ctx, cfg.Persistence.DSN, cfg.Persistence.MaxOpenConns, cfg.Persistence.MaxIdleConns, 5*time.Minute, 5*time.Minute)
	if err != nil {
		return nil, err
	}
	store := persistence.New(db, logger)
	breakers := breaker.NewRegistry(logger)
	redisCache := cache.New(cfg.Persistence.RedisAddr)

	kwTable, err := keywords.Load("", logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	var browsers *fetch.BrowserPool
	if cfg.Fetch.BrowserPoolSize > 0 {
		// No headless-browser automation library is part of this module's
		// dependency set (see fetch.BrowserFactory's doc comment); running
		// with pool_size>0 here would need a caller-supplied factory this
		// binary doesn't have, so JS rendering stays disabled and FetchJS
		// calls return errs.ErrResourceExhausted.
		logger.Warn("pool_size > 0 but no BrowserFactory is wired; JS rendering stays disabled")
	}

	fetcher := fetch.New(cfg.Fetch, breakers, redisCache, store, persistence.NewFetchVisitRecorder(store), browsers, logger)

	llmClient, err := llm.NewClient(cfg.AI, logger)
	if err != nil {
		kwTable.Close()
		db.Close()
		return nil, err
	}
	gate := aigate.New(cfg.AI, llmClient, breakers, kwTable, logger)

	searchClient, err := search.New(cfg.Search)
	if err != nil {
		kwTable.Close()
		db.Close()
		return nil, err
	}

	// No ML-scorer implementation is part of this module; frontier.New
	// treats a nil MLScorer as "no ML signal available" and skips that
	// scoring term entirely.
	var scorer frontier.MLScorer

	workerID := newWorkerID()
	podName, _ := os.Hostname()
	coord := coordinator.New(store, cfg.Coordinator, workerID, podName, logger)

	slack := telemetry.NewSlackNotifier(cfg.Telemetry.SlackWebhookURL, 5, logger)
	coord.OnSweep(func(reclaimed int) {
		if reclaimed > 0 {
			telemetry.SweepReclaimedTotal.Add(float64(reclaimed))
		}
		slack.NotifySweepReclaim(reclaimed)
	})

	pushURL := cfg.Telemetry.MonitoringURL
	if cfg.Telemetry.DisableMonitoring {
		pushURL = ""
	}
	pusher := telemetry.NewPusher(pushURL, cfg.Telemetry.EventQueueSize, logger)
	reporter.AttachPusher(pusher)

	var opServer *telemetry.Server
	if !cfg.Telemetry.DisableMonitoring {
		opServer = telemetry.NewServer(cfg.Telemetry.HealthPort, logger, reporter, telemetry.WrapRegistry(breakers))
	}

	rtr := router.New(coord, store, fetcher, gate, kwTable, searchClient, scorer, cfg.Router, logger, reporter)

	return &application{
		cfg:      cfg,
		logger:   logger,
		reporter: reporter,
		db:       db,
		store:    store,
		breakers: breakers,
		kwTable:  kwTable,
		coord:    coord,
		rtr:      rtr,
		pusher:   pusher,
		slack:    slack,
		opServer: opServer,
	}, nil
}

func newWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.New().String()[:8])
}

// runUntilDone starts every background loop, blocks on the router's role
// loop(s), and on shutdown fails any assignment this worker still had
// claimed so another worker's sweep (or this worker's own restart) can
// reclaim it promptly rather than waiting out worker_dead_after.
func (a *application) runUntilDone(ctx context.Context) int {
	go func() {
		if err := a.coord.RunBackground(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.WithError(err).Warn("coordinator background loops stopped")
		}
	}()
	go a.pusher.Run(ctx)
	go telemetry.WatchBreakers(ctx, a.breakers, a.reporter, a.slack, 15*time.Second)
	if a.opServer != nil {
		a.opServer.StartAsync()
	}

	runErr := a.rtr.Run(ctx)

	a.failInFlightAssignment()
	a.stopOpServer()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		a.logger.WithError(runErr).Error("router stopped with an error")
		return exitStartupErr
	}
	return exitOK
}

// failInFlightAssignment marks Failed every diocese this worker's
// extraction role had claimed but not yet completed when shutdown began,
// per spec §4.B's graceful shutdown contract: "complete(..., failed) for
// everything still processing" — not just the one diocese currently being
// worked, since claim_next's batch size can exceed one.
func (a *application) failInFlightAssignment() {
	dioceseIDs := a.rtr.InFlightDioceses()
	if len(dioceseIDs) == 0 {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, dioceseID := range dioceseIDs {
		if err := a.coord.Complete(shutdownCtx, dioceseID, coordinator.Failed); err != nil {
			a.logger.WithError(err).WithField("diocese_id", dioceseID).Warn("failed to mark in-flight assignment failed during shutdown")
		}
	}
}

func (a *application) stopOpServer() {
	if a.opServer == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.opServer.Stop(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("telemetry server shutdown error")
	}
}

func (a *application) close() {
	a.kwTable.Close()
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Warn("error closing database connection")
	}
}
