// Package router implements the Work Router (spec §4.B): a single binary,
// parameterized by worker type, that drives one of four loops over the
// shared components. The router holds no extraction intelligence of its
// own — every decision (what to fetch, how to parse it, whether to trust
// an AI result) lives in the component it calls.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dioceseharvest/pipeline/internal/config"
	"github.com/dioceseharvest/pipeline/pkg/aigate"
	"github.com/dioceseharvest/pipeline/pkg/coordinator"
	"github.com/dioceseharvest/pipeline/pkg/discovery/search"
	"github.com/dioceseharvest/pipeline/pkg/fetch"
	"github.com/dioceseharvest/pipeline/pkg/frontier"
	"github.com/dioceseharvest/pipeline/pkg/keywords"
	"github.com/dioceseharvest/pipeline/pkg/parsers"
	"github.com/dioceseharvest/pipeline/pkg/persistence"
	"github.com/dioceseharvest/pipeline/pkg/pipeline/errs"
	"github.com/dioceseharvest/pipeline/pkg/shared/logging"
	"github.com/dioceseharvest/pipeline/pkg/telemetry"
)

// Store is the subset of *persistence.Store the router's loops need,
// beyond what pkg/coordinator already wraps.
type Store interface {
	ListDiocesesMissingDirectory(ctx context.Context) ([]persistence.Diocese, error)
	UpsertParishDirectory(ctx context.Context, dioceseID int64, directoryURL string, found bool, detectedBy persistence.DetectedBy) error
	GetParishDirectory(ctx context.Context, dioceseID int64) (*persistence.ParishDirectory, error)
	UpsertParish(ctx context.Context, p persistence.Parish) (int64, error)
	AppendParishData(ctx context.Context, d persistence.ParishData) error
	ListParishSummaries(ctx context.Context) ([]frontier.ParishSummary, error)
	ListSuppressedURLs(ctx context.Context) ([]string, error)
}

// scheduleFactTypes enumerates the three schedule kinds every schedule
// iteration evaluates for a candidate URL (spec §3 ParishData.fact_type).
var scheduleFactTypes = []keywords.ScheduleType{keywords.Reconciliation, keywords.Adoration, keywords.Mass}

// Router drives one of the four role loops over a shared set of
// components (spec §4.B). One Router instance is built per worker
// process and lives for that process's whole lifetime, mirroring the
// fetcher's own long-lived, per-process design.
type Router struct {
	coord    *coordinator.Coordinator
	store    Store
	fetcher  *fetch.Fetcher
	gate     *aigate.Gate
	keywords *keywords.Table
	search   *search.Client // nil when the search-API fallback is disabled
	scorer   frontier.MLScorer
	cfg      config.RouterConfig
	logger   *logrus.Entry
	reporter *telemetry.Reporter // nil is valid: all reporting calls become no-ops

	inFlightMu sync.Mutex
	inFlight   map[int64]bool // dioceses claimed by runExtraction but not yet Complete'd
}

// New builds a Router. search, scorer, and reporter may be nil.
func New(
	coord *coordinator.Coordinator,
	store Store,
	fetcher *fetch.Fetcher,
	gate *aigate.Gate,
	kw *keywords.Table,
	searchClient *search.Client,
	scorer frontier.MLScorer,
	cfg config.RouterConfig,
	logger *logrus.Logger,
	reporter *telemetry.Reporter,
) *Router {
	if logger == nil {
		logger = logrus.New()
	}
	return &Router{
		coord:    coord,
		store:    store,
		fetcher:  fetcher,
		gate:     gate,
		keywords: kw,
		search:   searchClient,
		scorer:   scorer,
		cfg:      cfg,
		logger:   logger.WithField("component", "router"),
		reporter: reporter,
		inFlight: make(map[int64]bool),
	}
}

// markInFlight records ids as claimed-but-not-yet-complete, before
// runExtraction starts working through them, so a shutdown that lands
// mid-batch (spec §4.B: "fail every still-processing assignment") sees
// every claimed diocese, not just the one currently being worked.
func (r *Router) markInFlight(ids []int64) {
	r.inFlightMu.Lock()
	defer r.inFlightMu.Unlock()
	for _, id := range ids {
		r.inFlight[id] = true
	}
}

func (r *Router) clearInFlight(id int64) {
	r.inFlightMu.Lock()
	defer r.inFlightMu.Unlock()
	delete(r.inFlight, id)
}

// InFlightDioceses returns every diocese this router's extraction role
// has claimed but not yet called Complete for — the set a caller must
// fail on shutdown so another worker's sweep can reclaim it promptly
// (spec §4.B).
func (r *Router) InFlightDioceses() []int64 {
	r.inFlightMu.Lock()
	defer r.inFlightMu.Unlock()
	ids := make([]int64, 0, len(r.inFlight))
	for id := range r.inFlight {
		ids = append(ids, id)
	}
	return ids
}

// reportRole updates the reporter's role, tolerating a nil reporter.
func (r *Router) reportRole(role string) {
	if r.reporter != nil {
		r.reporter.SetRole(role)
	}
}

// reportCurrent records which diocese/parish is presently worked,
// tolerating a nil reporter.
func (r *Router) reportCurrent(dioceseID, parishID int64) {
	if r.reporter != nil {
		r.reporter.SetCurrent(dioceseID, parishID)
	}
}

func (r *Router) reportError(dioceseID, parishID int64, operation string, err error) {
	if r.reporter != nil && err != nil {
		r.reporter.RecordError(dioceseID, parishID, operation, err.Error())
	}
}

// Run dispatches to the loop(s) named by r.cfg.WorkerType and blocks
// until ctx is cancelled (spec §4.B's role table). "all" runs every loop
// concurrently under one errgroup, for single-machine development.
func (r *Router) Run(ctx context.Context) error {
	switch r.cfg.WorkerType {
	case "discovery":
		return r.runDiscovery(ctx)
	case "extraction":
		return r.runExtraction(ctx)
	case "schedule":
		return r.runSchedule(ctx)
	case "reporting":
		return r.runReporting(ctx)
	case "all":
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return r.runDiscovery(ctx) })
		g.Go(func() error { return r.runExtraction(ctx) })
		g.Go(func() error { return r.runSchedule(ctx) })
		g.Go(func() error { return r.runReporting(ctx) })
		return g.Wait()
	default:
		return errors.New("router: unknown worker type " + r.cfg.WorkerType)
	}
}

func (r *Router) heartbeat(ctx context.Context) {
	if err := r.coord.Heartbeat(ctx); err != nil {
		r.logger.WithError(err).Warn("heartbeat failed")
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	select {
	case <-ctx.Done():
		return true
	case <-time.After(d):
		return false
	}
}

// runDiscovery implements the discovery role (spec §4.B row 1): for each
// diocese missing a parish directory, run diocese discovery (the
// frontier's root-page crawl, scoped to the diocese's own site) and then
// directory detection, falling back to the search API when the heuristic
// crawl finds nothing.
func (r *Router) runDiscovery(ctx context.Context) error {
	interval := r.cfg.DiscoverySweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	for {
		r.heartbeat(ctx)
		r.reportRole("discovery")

		dioceses, err := r.store.ListDiocesesMissingDirectory(ctx)
		if err != nil {
			r.logger.WithError(err).Error("list dioceses missing directory failed")
			r.reportError(0, 0, "list_dioceses_missing_directory", err)
		}
		for _, d := range dioceses {
			if ctx.Err() != nil {
				return nil
			}
			r.reportCurrent(d.DioceseID, 0)
			r.discoverOne(ctx, d)
		}

		if sleepOrDone(ctx, interval) {
			return nil
		}
	}
}

func (r *Router) discoverOne(ctx context.Context, d persistence.Diocese) {
	log := r.logger.WithFields(logging.WorkflowFields("discover_directory", d.Name).ToLogrus())

	candidate, detectedBy, ok := r.heuristicDirectory(ctx, d)
	if !ok && r.search != nil {
		result, err := r.search.FindParishDirectory(ctx, d.Name, d.WebsiteURL)
		if err != nil {
			log.WithError(err).Warn("search fallback failed")
			r.reportError(d.DioceseID, 0, "search_fallback", err)
		} else if result != nil {
			candidate, detectedBy, ok = result.URL, persistence.DetectedSearchFallback, true
		}
	}

	if err := r.store.UpsertParishDirectory(ctx, d.DioceseID, candidate, ok, detectedBy); err != nil {
		log.WithError(err).Error("upsert parish directory failed")
		r.reportError(d.DioceseID, 0, "upsert_parish_directory", err)
		return
	}
	if r.reporter != nil {
		r.reporter.IncrementProcessed()
	}
}

// heuristicDirectory runs the frontier's discovery pipeline against the
// diocese root site and looks for a page that parses as a parish
// directory, per spec §4.E's discovery strategy reused for directory
// detection.
func (r *Router) heuristicDirectory(ctx context.Context, d persistence.Diocese) (string, persistence.DetectedBy, bool) {
	if d.WebsiteURL == "" {
		return "", "", false
	}
	fr := frontier.New(r.fetcher, r.keywords, r.scorer)
	candidates, err := fr.Discover(ctx, d.WebsiteURL)
	if err != nil {
		r.logger.WithError(err).Warn("diocese discovery crawl failed")
		return "", "", false
	}
	for _, c := range candidates {
		result, err := r.fetchTraced(ctx, c.URL, fetch.KindDioceseDiscovery)
		if err != nil {
			continue
		}
		if parishes, err := parsers.ParseParishList(result.Body, c.URL, nil); err == nil && len(parishes) > 0 {
			return c.URL, persistence.DetectedHeuristic, true
		}
	}
	return "", "", false
}

// fetchTraced wraps fetcher.Fetch with a telemetry span and records the
// fetch outcome/latency metric, so every suspension point the router
// drives through the Fetcher (spec §5) is observable the same way.
func (r *Router) fetchTraced(ctx context.Context, rawURL string, kind fetch.RequestKind) (*fetch.Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "fetcher", "fetch")
	defer span.End()

	timer := telemetry.NewTimer()
	result, err := r.fetcher.Fetch(ctx, rawURL, kind)
	outcome := "error"
	if result != nil {
		outcome = string(result.Outcome)
	}
	timer.RecordFetch(outcome)
	return result, err
}

// runExtraction implements the extraction role (spec §4.B row 2):
// claim_next(1-N) dioceses; for each, fetch its detected directory page
// and parse the parish list via the platform strategy §4.E.parish_strategy
// selects (pkg/parsers.Detect/ParseParishList).
func (r *Router) runExtraction(ctx context.Context) error {
	batch := r.cfg.BatchSize
	if batch <= 0 {
		batch = 5
	}
	idleSleep := time.Second
	for {
		r.heartbeat(ctx)

		dioceseIDs, err := r.coord.ClaimNext(ctx, batch)
		if err != nil {
			r.logger.WithError(err).Error("claim_next failed")
			if sleepOrDone(ctx, idleSleep) {
				return nil
			}
			continue
		}
		if len(dioceseIDs) == 0 {
			if sleepOrDone(ctx, idleSleep) {
				return nil
			}
			continue
		}

		r.reportRole("extraction")
		// The whole batch is already "processing" in the store the moment
		// ClaimNext returns, so every member is in flight until this worker
		// either completes it or a shutdown hands it back via
		// InFlightDioceses — not just the one element the loop is
		// currently on.
		r.markInFlight(dioceseIDs)
		for _, dioceseID := range dioceseIDs {
			if ctx.Err() != nil {
				return nil
			}
			outcome := coordinator.Completed
			if err := r.extractOne(ctx, dioceseID); err != nil {
				r.logger.WithError(err).WithField("diocese_id", dioceseID).Warn("extraction failed")
				r.reportError(dioceseID, 0, "extract_diocese", err)
				outcome = coordinator.Failed
			} else if r.reporter != nil {
				r.reporter.IncrementProcessed()
			}
			if err := r.coord.Complete(ctx, dioceseID, outcome); err != nil {
				r.logger.WithError(err).WithField("diocese_id", dioceseID).Error("complete failed")
			}
			if r.reporter != nil {
				r.reporter.RecordCompletion(dioceseID, string(outcome))
			}
			r.clearInFlight(dioceseID)
		}
	}
}

func (r *Router) extractOne(ctx context.Context, dioceseID int64) error {
	r.reportCurrent(dioceseID, 0)

	directory, err := r.store.GetParishDirectory(ctx, dioceseID)
	if err != nil {
		return err
	}
	if directory == nil || !directory.Found {
		return errors.New("no detected parish directory for diocese")
	}

	result, err := r.fetchTraced(ctx, directory.DirectoryURL, fetch.KindParishDetail)
	if err != nil {
		return err
	}

	parished, err := parsers.ParseParishList(result.Body, directory.DirectoryURL, nil)
	if err != nil {
		return err
	}
	if len(parished) == 0 {
		return nil
	}

	limit := len(parished)
	if r.cfg.MaxParishesPerDiocese > 0 && r.cfg.MaxParishesPerDiocese < limit {
		limit = r.cfg.MaxParishesPerDiocese
	}
	for _, p := range parished[:limit] {
		parish := persistence.Parish{
			DioceseID:        dioceseID,
			Name:             p.Name,
			NormalizedName:   normalize(p.Name),
			Street:           p.Street,
			NormalizedStreet: normalize(p.Street),
			City:             p.City,
			State:            p.State,
			PostalCode:       p.PostalCode,
			WebsiteURL:       p.WebsiteURL,
			Phone:            p.Phone,
			ExtractionMethod: "directory_" + string(directory.DetectedBy),
		}
		if _, err := r.store.UpsertParish(ctx, parish); err != nil {
			r.logger.WithError(err).WithField("parish", p.Name).Warn("upsert parish failed")
			r.reportError(dioceseID, 0, "upsert_parish", err)
			continue
		}
		if r.reporter != nil {
			r.reporter.IncrementProcessed()
		}
	}
	return nil
}

// normalize folds whitespace and case so (diocese_id, normalized_name,
// normalized_street) reliably matches the same parish across sources
// (spec §3 Parish invariant).
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// runSchedule implements the schedule role (spec §4.B row 3): select
// parishes with no recent ParishData via the prioritizer, then for each
// run the URL frontier followed by both the always-on keyword extraction
// method and the AI confidence gate for every schedule fact type.
func (r *Router) runSchedule(ctx context.Context) error {
	idleSleep := time.Second
	for {
		r.heartbeat(ctx)
		r.reportRole("schedule")

		parishes, err := r.nextScheduleBatch(ctx)
		if err != nil {
			r.logger.WithError(err).Error("schedule batch selection failed")
			r.reportError(0, 0, "schedule_batch_selection", err)
			if sleepOrDone(ctx, idleSleep) {
				return nil
			}
			continue
		}
		if len(parishes) == 0 {
			if sleepOrDone(ctx, idleSleep) {
				return nil
			}
			continue
		}

		for _, p := range parishes {
			if ctx.Err() != nil {
				return nil
			}
			r.scheduleOne(ctx, p)
		}
	}
}

func (r *Router) nextScheduleBatch(ctx context.Context) ([]frontier.ParishSummary, error) {
	summaries, err := r.store.ListParishSummaries(ctx)
	if err != nil {
		return nil, err
	}
	suppressedURLs, err := r.store.ListSuppressedURLs(ctx)
	if err != nil {
		return nil, err
	}
	suppressed := make(map[string]bool, len(suppressedURLs))
	for _, u := range suppressedURLs {
		if parsed, err := url.Parse(u); err == nil && parsed.Host != "" {
			suppressed[parsed.Host] = true
		} else {
			suppressed[u] = true
		}
	}

	staleAfter := r.cfg.StaleAfter
	prioritized := frontier.Prioritize(summaries, suppressed, time.Now(), staleAfter)

	n := r.cfg.NumParishesForSchedule
	if n <= 0 {
		n = 100
	}
	if n < len(prioritized) {
		prioritized = prioritized[:n]
	}
	return prioritized, nil
}

func (r *Router) scheduleOne(ctx context.Context, p frontier.ParishSummary) {
	if p.OriginURL == "" {
		return
	}
	log := r.logger.WithField("parish_id", p.ParishID)
	r.reportCurrent(0, p.ParishID)

	visitCtx := persistence.WithParishID(ctx, p.ParishID)
	fr := frontier.New(r.fetcher, r.keywords, r.scorer)
	candidates, err := fr.Discover(visitCtx, p.OriginURL)
	if err != nil {
		log.WithError(err).Warn("frontier discovery failed")
		r.reportError(0, p.ParishID, "frontier_discovery", err)
		return
	}

	for _, c := range candidates {
		if ctx.Err() != nil {
			return
		}
		result, err := r.fetchTraced(visitCtx, c.URL, "")
		if err != nil || result.Outcome != fetch.OutcomeOK {
			continue
		}
		r.extractScheduleFacts(ctx, p.ParishID, c.URL, result.Body)
	}
	if r.reporter != nil {
		r.reporter.IncrementProcessed()
	}
}

// extractScheduleFacts runs the keyword-based method and the AI gate for
// every schedule fact type against content, writing a ParishData row for
// each method that produced a trustworthy result. Both methods run
// unconditionally; extraction_method is part of row identity, not a
// dedupe key, so a keyword hit and an accepted AI result for the same URL
// both persist.
func (r *Router) extractScheduleFacts(ctx context.Context, parishID int64, rawURL, content string) {
	for _, factType := range scheduleFactTypes {
		if r.keywords != nil {
			r.appendKeywordMatch(ctx, parishID, rawURL, factType, content)
		}
		if r.gate != nil {
			r.appendAIResult(ctx, parishID, rawURL, factType, content)
		}
	}
}

func (r *Router) appendKeywordMatch(ctx context.Context, parishID int64, rawURL string, factType keywords.ScheduleType, content string) {
	match := r.keywords.ExtractByKeyword(content, factType)
	if !match.Matched {
		return
	}
	method := "keyword_based"
	if match.Sentence == "" {
		method = "keyword_based_simple"
	}
	data := persistence.ParishData{
		ParishID:         parishID,
		FactType:         string(factType),
		FactValue:        match.Sentence,
		FactSourceURL:    rawURL,
		ExtractionMethod: method,
	}
	if err := r.store.AppendParishData(ctx, data); err != nil {
		r.logger.WithError(err).Warn("append keyword-based parish data failed")
		return
	}
	telemetry.RecordScheduleFact(string(factType), method)
}

func (r *Router) appendAIResult(ctx context.Context, parishID int64, rawURL string, factType keywords.ScheduleType, content string) {
	ctx, span := telemetry.StartSpan(ctx, "ai_gate", "evaluate")
	defer span.End()

	timer := telemetry.NewTimer()
	result, err := r.gate.Evaluate(ctx, rawURL, "", string(factType), content)
	if err != nil {
		timer.RecordAIGate(false)
		if !errs.AbortsDiocese(err) {
			r.logger.WithError(err).Debug("ai gate evaluation failed")
		}
		return
	}
	if result == nil {
		timer.RecordAIGate(false)
		return
	}
	timer.RecordAIGate(true)

	payload, err := marshalAIResult(result)
	if err != nil {
		r.logger.WithError(err).Warn("marshal ai result failed")
		return
	}
	confidence := result.Confidence
	data := persistence.ParishData{
		ParishID:         parishID,
		FactType:         string(factType),
		FactValue:        result.ScheduleDetails,
		FactSourceURL:    rawURL,
		ExtractionMethod: "ai_gemini",
		ConfidenceScore:  &confidence,
		AIStructuredData: payload,
	}
	if err := r.store.AppendParishData(ctx, data); err != nil {
		r.logger.WithError(err).Warn("append ai parish data failed")
		return
	}
	telemetry.RecordScheduleFact(string(factType), "ai_gemini")
}

func marshalAIResult(result *aigate.Result) ([]byte, error) {
	return json.Marshal(result)
}

// runReporting implements the reporting role (spec §4.B row 4): lead-only,
// runs the reporting job on a fixed interval.
func (r *Router) runReporting(ctx context.Context) error {
	interval := r.cfg.ReportInterval
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	windowStart := time.Now()
	for {
		r.heartbeat(ctx)
		r.reportRole("reporting")

		lead, err := r.coord.IsLead(ctx)
		if err != nil {
			r.logger.WithError(err).Warn("lead election check failed")
		} else if lead {
			r.report(ctx, windowStart)
			windowStart = time.Now()
		}

		if sleepOrDone(ctx, interval) {
			return nil
		}
	}
}

// report logs how many dioceses still lack a parish directory and, if
// reporter is wired, pushes one ReportingSnapshot telemetry event for the
// prior window. The snapshot carries only WindowStart and WindowEnd; its
// count fields are left zero.
func (r *Router) report(ctx context.Context, windowStart time.Time) {
	dioceses, err := r.store.ListDiocesesMissingDirectory(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("reporting: list dioceses missing directory failed")
		return
	}
	r.logger.WithField("dioceses_missing_directory", len(dioceses)).Info("reporting sweep")

	if r.reporter == nil {
		return
	}
	snapshot := telemetry.ReportingSnapshot{
		WindowStart: windowStart,
		WindowEnd:   time.Now(),
	}
	r.reporter.PushReport(snapshot)
}
