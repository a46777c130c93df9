// Package aigate implements the AI Confidence Gate (spec §4.F): an
// adaptive-threshold wrapper around an AI schedule extractor that the
// rest of the pipeline treats as a pure function
// (cleaned_html, parish, schedule_type) -> *Result | nil.
package aigate

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/dioceseharvest/pipeline/internal/config"
	"github.com/dioceseharvest/pipeline/pkg/aigate/llm"
	"github.com/dioceseharvest/pipeline/pkg/breaker"
	"github.com/dioceseharvest/pipeline/pkg/keywords"
	"github.com/dioceseharvest/pipeline/pkg/pipeline/errs"
	"github.com/dioceseharvest/pipeline/pkg/shared/logging"
)

func errInvalidOutput(detail string) error {
	return fmt.Errorf("%w: %s", errs.ErrInvalidOutput, detail)
}

// Gate evaluates cleaned page content for one parish/schedule-type pair
// and decides whether the AI's answer is trustworthy enough to persist.
type Gate struct {
	client      llm.Client
	breakers    *breaker.Registry
	keywords    *keywords.Table
	base        int
	floor       int
	ceil        int
	maxAttempts int
	logger      *logrus.Entry
}

// New constructs a Gate from cfg (spec §4.F's base/floor/ceiling knobs,
// internal/config.AIConfig), wired to breakers' ai_content_analysis
// breaker and kw for the schedule-keyword content signal.
func New(cfg config.AIConfig, client llm.Client, breakers *breaker.Registry, kw *keywords.Table, logger *logrus.Logger) *Gate {
	if logger == nil {
		logger = logrus.New()
	}
	base, floor, ceil := cfg.BaseThreshold, cfg.ThresholdFloor, cfg.ThresholdCeil
	if base == 0 && floor == 0 && ceil == 0 {
		base, floor, ceil = 15, 3, 60
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 4
	}
	return &Gate{
		client:      client,
		breakers:    breakers,
		keywords:    kw,
		base:        base,
		floor:       floor,
		ceil:        ceil,
		maxAttempts: maxAttempts,
		logger:      logger.WithFields(logging.AIFields("evaluate", "").ToLogrus()),
	}
}

// Evaluate runs the AI extractor over content for parishName/scheduleType
// found at rawURL, and returns the accepted Result, or nil if the result
// was rejected by the threshold or the AI call could not be trusted
// (spec §4.F: "Accepted results produce exactly one ParishData row ...";
// rejected results produce none, but the visit is still recorded by the
// caller).
func (g *Gate) Evaluate(ctx context.Context, rawURL, parishName, scheduleType, content string) (*Result, error) {
	threshold := Threshold(rawURL, content, g.base, g.floor, g.ceil, g.keywordCount)

	prompt, err := buildSchedulePrompt(scheduleType, parishName, content)
	if err != nil {
		return nil, err
	}

	result, err := g.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	if result == nil {
		// Output still unparseable after complete()'s one repair-prompt
		// retry: nothing trustworthy to accept.
		return nil, nil
	}

	if !Accepted(result, threshold) {
		return nil, nil
	}
	return result, nil
}

// complete calls the AI client through the ai_content_analysis breaker,
// backing off 2^n seconds up to g.maxAttempts on ResourceExhausted, and
// retrying once with a repair prompt on InvalidOutput before giving up
// (spec §4.F Retries).
func (g *Gate) complete(ctx context.Context, prompt string) (*Result, error) {
	var raw string
	backoff := retry.WithMaxRetries(uint64(g.maxAttempts-1), retry.NewExponential(time.Second))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		guardErr := g.breakers.Guard(breaker.NameAIContentAnalysis, func() error {
			resp, callErr := g.client.Complete(ctx, prompt)
			if callErr != nil {
				raw = ""
				return fmt.Errorf("%w: %s", errs.ErrResourceExhausted, callErr.Error())
			}
			raw = resp
			return nil
		})
		if guardErr != nil {
			return retry.RetryableError(guardErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result, parseErr := parseResult(raw)
	if parseErr == nil {
		return result, nil
	}

	g.logger.WithError(parseErr).Debug("ai response failed shape validation, retrying with repair prompt")
	repair, err := buildRepairPrompt(raw)
	if err != nil {
		return nil, err
	}

	var repaired string
	guardErr := g.breakers.Guard(breaker.NameAIContentAnalysis, func() error {
		resp, callErr := g.client.Complete(ctx, repair)
		if callErr != nil {
			return callErr
		}
		repaired = resp
		return nil
	})
	if guardErr != nil {
		return nil, guardErr
	}

	result, parseErr = parseResult(repaired)
	if parseErr != nil {
		// second failure: the caller treats nil, nil as "no trustworthy
		// result", not an error (spec: "second failure returns None").
		return nil, nil
	}
	return result, nil
}

func (g *Gate) keywordCount(content string) int {
	if g.keywords == nil {
		return 0
	}
	return g.keywords.CountMatches(content)
}
