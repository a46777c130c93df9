// Package fetch implements the respectful fetcher (spec §4.C): the only
// component permitted to make outbound HTTP requests to diocese and
// parish sites. It enforces per-origin rate limits, robots.txt, a
// blocked-origin cooldown, circuit breakers, and an adaptive timeout
// before handing a classified result back to its caller.
package fetch

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/dioceseharvest/pipeline/internal/config"
	"github.com/dioceseharvest/pipeline/pkg/breaker"
	"github.com/dioceseharvest/pipeline/pkg/fetch/cache"
	"github.com/dioceseharvest/pipeline/pkg/pipeline/errs"
	"github.com/dioceseharvest/pipeline/pkg/shared/httpclient"
	"github.com/dioceseharvest/pipeline/pkg/shared/logging"
)

// RequestKind selects which additional named breaker (beyond the
// per-origin "origin:<host>" breaker) guards a request, per spec §4.D's
// table of well-known breakers.
type RequestKind string

const (
	KindDioceseDiscovery RequestKind = breaker.NameDiocesePageLoad
	KindParishDetail     RequestKind = breaker.NameParishDetailLoad
)

// fetchMaxRetries bounds the local retry of transient server/transport
// errors before they surface to the caller (spec §7).
const fetchMaxRetries = 2

// Outcome classifies a completed fetch attempt (spec §4.C step 7 /
// §7 error taxonomy).
type Outcome string

const (
	OutcomeOK           Outcome = "ok"
	OutcomeBlocked      Outcome = "blocked"
	OutcomeServerError  Outcome = "server_error"
	OutcomeClientError  Outcome = "client_error"
	OutcomeTransportErr Outcome = "transport_error"
	OutcomeRobotsDenied Outcome = "robots_disallowed"
	OutcomeSuppressed   Outcome = "suppressed"
)

// Result is what Fetch/FetchJS hand back to callers.
type Result struct {
	URL        string
	StatusCode int
	Body       string
	Outcome    Outcome
	Elapsed    time.Duration
	FetchedAt  time.Time
}

// SuppressionChecker lets the fetcher consult the suppression list
// before spending a request (spec §4.C step 1). Defined here rather than
// imported from pkg/persistence so fetch stays a leaf package with no
// dependency on the store (build order D->C->E->F->G->A->B->H).
type SuppressionChecker interface {
	IsSuppressed(ctx context.Context, rawURL string) (bool, error)
}

// VisitRecorder lets the fetcher append to the visit ledger after every
// attempt (spec §4.C step 8 / §4.G visit ledger). Like SuppressionChecker,
// this is a consumer-defined interface; pkg/persistence's adapter
// satisfies it without fetch importing persistence.
type VisitRecorder interface {
	RecordVisit(ctx context.Context, rawURL string, outcome string, statusCode int, elapsed time.Duration) error
}

// Fetcher is the single respectful-fetch entry point shared by every
// worker role that needs to read a remote page.
type Fetcher struct {
	cfg         config.FetchConfig
	client      *http.Client
	breakers    *breaker.Registry
	cache       *cache.Cache
	policies    *PolicyTable
	limiters    *limiterSet
	timeouts    *timeoutStats
	robots      *robotsSource
	suppression SuppressionChecker
	recorder    VisitRecorder
	browsers    *BrowserPool
	logger      *logrus.Logger
	rand        func() float64
}

// New builds a Fetcher. browsers may be nil; FetchJS then returns
// errs.ErrResourceExhausted immediately.
func New(
	cfg config.FetchConfig,
	breakers *breaker.Registry,
	c *cache.Cache,
	suppression SuppressionChecker,
	recorder VisitRecorder,
	browsers *BrowserPool,
	logger *logrus.Logger,
) *Fetcher {
	if logger == nil {
		logger = logrus.New()
	}
	policies := NewPolicyTableWithDefault(OriginPolicy{
		RatePerSecond: cfg.DefaultRatePerSec,
		Burst:         cfg.DefaultBurst,
		Concurrency:   cfg.DefaultConcurrency,
	})
	return &Fetcher{
		cfg:         cfg,
		client:      httpclient.NewClient(httpclient.DefaultClientConfig()),
		breakers:    breakers,
		cache:       c,
		policies:    policies,
		limiters:    newLimiterSet(policies),
		timeouts:    newTimeoutStats(cfg.MinTimeout, cfg.MaxTimeout),
		robots:      newRobotsSource(c, httpclient.NewClient(httpclient.DefaultClientConfig()), cfg.UserAgent, cfg.RobotsTTL),
		suppression: suppression,
		recorder:    recorder,
		browsers:    browsers,
		logger:      logger,
		rand:        rand.Float64,
	}
}

// Fetch performs one respectful GET against rawURL, classified by kind
// for breaker selection. It implements spec §4.C's 8-step contract:
// suppression check, robots check, rate-limit/concurrency acquire,
// jittered delay, breaker guard, timeout request, response
// classification, visit-ledger write.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, kind RequestKind) (*Result, error) {
	// Step 1: suppression.
	if f.suppression != nil {
		suppressed, err := f.suppression.IsSuppressed(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if suppressed {
			f.record(ctx, rawURL, OutcomeSuppressed, 0, 0)
			return nil, errs.ErrSuppressed
		}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	origin := parsed.Host

	// Cooldown short-circuit (spec §4.C): a single 403/429/challenge
	// response puts the origin into a cool-down that pre-empts further
	// attempts.
	if blocked, err := f.cache.IsBlocked(ctx, origin); err != nil {
		return nil, err
	} else if blocked {
		f.record(ctx, rawURL, OutcomeBlocked, 0, 0)
		return nil, errs.Blocked(origin, errs.BlockedRateLimit)
	}

	// Step 2: robots.
	scheme := parsed.Scheme
	if scheme == "" {
		scheme = "https"
	}
	policy, err := f.robots.resolve(ctx, scheme, origin)
	if err != nil {
		return nil, err
	}
	if !policy.Allowed(parsed.Path) {
		f.record(ctx, rawURL, OutcomeRobotsDenied, 0, 0)
		return nil, errs.ErrRobotsDisallowed
	}

	// Step 3: rate limit + concurrency.
	release, err := f.limiters.acquire(ctx, origin)
	if err != nil {
		return nil, err
	}
	defer release()

	// Step 4: jittered inter-request delay.
	delay := InterRequestDelay(f.cfg.BaseDelay, policy.CrawlDelay, f.rand)
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var result *Result
	timeout := f.timeouts.Timeout(origin)
	guardFn := func() error {
		var doErr error
		result, doErr = f.doRequest(ctx, rawURL, timeout)
		if doErr != nil {
			return doErr
		}
		return nil
	}

	// Step 5: breaker guard, both the per-origin breaker and (if kind is
	// set) the named breaker for this request's category. Server/transport
	// errors get a few jittered retries (spec §7: "transient server and
	// transport errors are retried locally before surfacing to the
	// caller"); everything else (blocked, robots, circuit-open) surfaces
	// immediately.
	backoff := retry.WithMaxRetries(fetchMaxRetries, retry.WithJitter(50*time.Millisecond, retry.NewExponential(100*time.Millisecond)))
	var lastErr error
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		guardErr := f.breakers.Guard("origin:"+origin, func() error {
			if kind == "" {
				return guardFn()
			}
			return f.breakers.Guard(string(kind), guardFn)
		})
		lastErr = guardErr
		if guardErr != nil && errs.Retryable(guardErr) {
			return retry.RetryableError(guardErr)
		}
		return guardErr
	})
	if err != nil {
		f.classifyAndRecord(ctx, rawURL, origin, lastErr)
		return nil, lastErr
	}

	f.record(ctx, rawURL, result.Outcome, result.StatusCode, result.Elapsed)
	return result, nil
}

// RobotsSitemaps returns the sitemap URLs robots.txt advertises for
// origin, using the same cached lookup Fetch uses internally (spec §4.E
// step 2: "parse robots.txt for Sitemap: hints; add all").
func (f *Fetcher) RobotsSitemaps(ctx context.Context, scheme, origin string) ([]string, error) {
	policy, err := f.robots.resolve(ctx, scheme, origin)
	if err != nil {
		return nil, err
	}
	return policy.Sitemaps, nil
}

// FetchJS renders rawURL through a leased headless-browser context
// instead of a plain HTTP GET, for JavaScript-dependent pages (spec
// §4.C: "fetch_js variant").
func (f *Fetcher) FetchJS(ctx context.Context, rawURL string) (*Result, error) {
	if f.browsers == nil {
		return nil, errs.ErrResourceExhausted
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	origin := parsed.Host

	release, err := f.limiters.acquire(ctx, origin)
	if err != nil {
		return nil, err
	}
	defer release()

	var result *Result
	err = f.breakers.Guard(breaker.NameWebdriverRequests, func() error {
		return f.breakers.Guard(breaker.NameJavascriptExec, func() error {
			bc, rel, leaseErr := f.browsers.Lease(ctx)
			if leaseErr != nil {
				return leaseErr
			}
			start := time.Now()
			html, status, renderErr := bc.Render(ctx, rawURL)
			rel(ctx, renderErr != nil)
			if renderErr != nil {
				return renderErr
			}
			result = &Result{
				URL:        rawURL,
				StatusCode: status,
				Body:       html,
				Outcome:    classifyStatus(status),
				Elapsed:    time.Since(start),
				FetchedAt:  time.Now(),
			}
			return nil
		})
	})
	if err != nil {
		f.classifyAndRecord(ctx, rawURL, origin, err)
		return nil, err
	}
	f.record(ctx, rawURL, result.Outcome, result.StatusCode, result.Elapsed)
	return result, nil
}

func (f *Fetcher) doRequest(ctx context.Context, rawURL string, timeout time.Duration) (*Result, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	start := time.Now()
	resp, err := f.client.Do(req)
	elapsed := time.Since(start)
	origin := req.URL.Host

	if err != nil {
		if reqCtx.Err() != nil {
			f.timeouts.RecordTimeout(origin)
		}
		return nil, wrapTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, wrapTransport(err)
	}
	f.timeouts.RecordSuccess(origin, elapsed)

	bodyStr := string(body)
	outcome := classifyStatus(resp.StatusCode)
	blockedKind, challenged := classifyBody(resp.StatusCode, bodyStr)
	if challenged {
		outcome = OutcomeBlocked
	}
	if outcome == OutcomeBlocked {
		if !challenged {
			blockedKind = errs.BlockedForbidden
			if resp.StatusCode == http.StatusTooManyRequests {
				blockedKind = errs.BlockedRateLimit
			}
		}
		if cooldownErr := f.cache.MarkBlocked(ctx, origin, f.cfg.BlockedCooldown); cooldownErr != nil {
			return nil, cooldownErr
		}
		return nil, errs.Blocked(origin, blockedKind)
	}
	result := &Result{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Body:       bodyStr,
		Outcome:    outcome,
		Elapsed:    elapsed,
		FetchedAt:  time.Now(),
	}
	if outcome == OutcomeServerError {
		return result, errs.ErrServerError
	}
	if outcome == OutcomeClientError {
		return result, errs.ErrClientError
	}
	return result, nil
}

func classifyStatus(status int) Outcome {
	switch {
	case status == http.StatusForbidden || status == http.StatusTooManyRequests:
		return OutcomeBlocked
	case status >= 500:
		return OutcomeServerError
	case status >= 400:
		return OutcomeClientError
	default:
		return OutcomeOK
	}
}

// challengeMarkers are substrings (checked case-insensitively) that appear
// in anti-bot interstitial pages, independent of the HTTP status code they
// ship with — Cloudflare's "I'm Under Attack" challenge, for instance,
// often responds 200 or 503 with an HTML page that only makes sense to a
// JS-executing browser (spec §4.C step 7: "body matching known challenge
// markers").
var challengeMarkers = []string{
	"checking your browser before accessing",
	"cf-browser-verification",
	"cf-chl-bypass",
	"attention required! | cloudflare",
	"ddos protection by",
	"please enable cookies",
	"rate limit exceeded",
	"request unsuccessful. incapsula",
	"perimeterx",
	"captcha",
}

// classifyBody checks the response body for a known challenge marker.
// 403/429 responses are classified by status alone in the caller, so a
// 403 with no recognizable body still yields BlockedForbidden rather than
// being silently reclassified; this only fires for the statuses
// classifyStatus would otherwise call OK, a server error, or a generic
// client error.
func classifyBody(status int, body string) (errs.BlockedType, bool) {
	if status == http.StatusForbidden || status == http.StatusTooManyRequests {
		return "", false
	}
	lower := strings.ToLower(body)
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, marker) {
			return errs.BlockedChallenge, true
		}
	}
	return "", false
}

func wrapTransport(err error) error {
	return errs.ErrTransportError
}

func (f *Fetcher) classifyAndRecord(ctx context.Context, rawURL, origin string, err error) {
	outcome := OutcomeTransportErr
	switch {
	case errors.Is(err, errs.ErrCircuitOpen), errors.Is(err, errs.ErrBlocked):
		outcome = OutcomeBlocked
	case errors.Is(err, errs.ErrRobotsDisallowed):
		outcome = OutcomeRobotsDenied
	}
	f.record(ctx, rawURL, outcome, 0, 0)
}

func (f *Fetcher) record(ctx context.Context, rawURL string, outcome Outcome, status int, elapsed time.Duration) {
	if f.recorder == nil {
		return
	}
	if err := f.recorder.RecordVisit(ctx, rawURL, string(outcome), status, elapsed); err != nil {
		f.logger.WithFields(logging.FetchFields("", rawURL).Error(err).ToLogrus()).Warn("failed to record visit")
	}
}
