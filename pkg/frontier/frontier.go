// Package frontier discovers candidate URLs for a parish website, scores
// them for likely schedule content, and prioritizes which parishes the
// schedule role should visit next (spec §4.E).
package frontier

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/dioceseharvest/pipeline/pkg/fetch"
	"github.com/dioceseharvest/pipeline/pkg/keywords"
)

// DedicatedScheduleTokens mark a path as very likely to hold schedule
// content (spec §4.E scoring: "+40 if the path matches a dedicated-
// schedule token").
var DedicatedScheduleTokens = []string{"mass-times", "mass-schedule", "schedule", "adoration", "confession", "reconciliation", "hours"}

// CathedralTokens mark a path as belonging to a cathedral or other major
// parish, which the spec scores separately from the dedicated-schedule
// token set.
var CathedralTokens = []string{"cathedral", "basilica", "shrine"}

// relevanceTokens gate which discovered links are worth persisting at all
// (spec §4.E step 5): schedule-adjacent tokens plus the dedicated set.
var relevanceTokens = append(append([]string{}, DedicatedScheduleTokens...), "parish-life")

// MLScorer is an injected machine-learned relevance predictor (spec §4.E:
// "an injected scorer; signature url, context -> [0,1]"). context is the
// anchor text (or other surrounding page text) collected for the
// candidate. The frontier treats nil as "no ML signal available."
type MLScorer func(rawURL, context string) (confidence float64, ok bool)

// Candidate is one discovered, scored URL awaiting persistence.
type Candidate struct {
	URL        string
	Score      int
	AnchorText string
}

// SitemapPaths is the canonical list of sitemap paths to probe on a parish
// root (spec §4.E step 1).
var SitemapPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemaps.xml",
	"/sitemap/sitemap.xml",
	"/wp-sitemap.xml",
	"/site-map.xml",
	"/sitemap1.xml",
}

const maxSitemapIndexDepth = 2

// Frontier drives URL discovery and scoring for one parish website.
type Frontier struct {
	fetcher  *fetch.Fetcher
	keywords *keywords.Table
	scorer   MLScorer
}

// New builds a Frontier. scorer may be nil, in which case the +15
// ML-confidence scoring term is never applied.
func New(fetcher *fetch.Fetcher, keywordTable *keywords.Table, scorer MLScorer) *Frontier {
	return &Frontier{fetcher: fetcher, keywords: keywordTable, scorer: scorer}
}

// Discover runs the full spec §4.E discovery pipeline against rootURL and
// returns scored, deduplicated, in-origin candidates ready for
// persistence, ordered by descending score (ties: shorter path, then
// alphabetical).
func (f *Frontier) Discover(ctx context.Context, rootURL string) ([]Candidate, error) {
	root, err := url.Parse(rootURL)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]Candidate)

	for _, sm := range f.sitemapURLs(ctx, root) {
		urls, ferr := f.fetchSitemap(ctx, sm, 0)
		if ferr != nil {
			continue
		}
		for _, u := range urls {
			addCandidate(seen, root, u, "")
		}
	}

	if links, anchors, err := f.rootPageLinks(ctx, rootURL); err == nil {
		for i, link := range links {
			addCandidate(seen, root, link, anchors[i])
		}
	}

	// Root is always kept (spec: "URLs at the root of the site are
	// always kept").
	addCandidate(seen, root, rootURL, "")

	filtered := make([]Candidate, 0, len(seen))
	for u, c := range seen {
		if !f.isRelevant(u) && normalizePath(u) != "/" {
			continue
		}
		c.Score = f.score(u, c.AnchorText)
		filtered = append(filtered, c)
	}

	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].Score != filtered[j].Score {
			return filtered[i].Score > filtered[j].Score
		}
		li, lj := len(pathOf(filtered[i].URL)), len(pathOf(filtered[j].URL))
		if li != lj {
			return li < lj
		}
		return filtered[i].URL < filtered[j].URL
	})
	return filtered, nil
}

func (f *Frontier) sitemapURLs(ctx context.Context, root *url.URL) []string {
	var urls []string
	for _, p := range SitemapPaths {
		urls = append(urls, root.Scheme+"://"+root.Host+p)
	}
	if hints, err := f.fetcher.RobotsSitemaps(ctx, root.Scheme, root.Host); err == nil {
		urls = append(urls, hints...)
	}
	return urls
}

func (f *Frontier) fetchSitemap(ctx context.Context, sitemapURL string, depth int) ([]string, error) {
	if depth > maxSitemapIndexDepth {
		return nil, nil
	}
	result, err := f.fetcher.Fetch(ctx, sitemapURL, "")
	if err != nil {
		return nil, err
	}
	sm, err := parseSitemap(result.Body)
	if err != nil {
		return nil, err
	}
	if sm.isIndex {
		var all []string
		for _, childURL := range sm.locs {
			child, cerr := f.fetchSitemap(ctx, childURL, depth+1)
			if cerr != nil {
				continue
			}
			all = append(all, child...)
		}
		return all, nil
	}
	return sm.locs, nil
}

func (f *Frontier) rootPageLinks(ctx context.Context, rootURL string) ([]string, []string, error) {
	result, err := f.fetcher.Fetch(ctx, rootURL, fetch.KindDioceseDiscovery)
	if err != nil {
		return nil, nil, err
	}
	return extractLinks(result.Body)
}

// isRelevant applies spec §4.E step 5's path-token relevance filter.
func (f *Frontier) isRelevant(rawURL string) bool {
	path := strings.ToLower(pathOf(rawURL))
	for _, tok := range relevanceTokens {
		if strings.Contains(path, tok) {
			return true
		}
	}
	return false
}

// score implements the additive scoring formula from spec §4.E.
func (f *Frontier) score(rawURL, anchorText string) int {
	path := strings.ToLower(pathOf(rawURL))
	score := 0
	for _, tok := range DedicatedScheduleTokens {
		if strings.Contains(path, tok) {
			score += 40
			break
		}
	}
	for _, tok := range CathedralTokens {
		if strings.Contains(path, tok) {
			score += 20
			break
		}
	}
	if f.keywords != nil && anchorText != "" {
		score += 10 * f.keywords.CountMatches(anchorText)
	}
	if f.scorer != nil {
		if conf, ok := f.scorer(rawURL, anchorText); ok && conf >= 0.5 {
			score += int(15 * conf)
		}
	}
	if score > 100 {
		score = 100
	}
	return score
}

func addCandidate(seen map[string]Candidate, root *url.URL, rawURL, anchorText string) {
	clean, ok := normalizeAndFilter(root, rawURL)
	if !ok {
		return
	}
	if existing, ok := seen[clean]; ok {
		if anchorText != "" && existing.AnchorText == "" {
			existing.AnchorText = anchorText
			seen[clean] = existing
		}
		return
	}
	seen[clean] = Candidate{URL: clean, AnchorText: anchorText}
}

// normalizeAndFilter implements spec §4.E step 4: drop mailto/tel/
// fragment-only links and anything outside the parish origin.
func normalizeAndFilter(root *url.URL, rawURL string) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" || strings.HasPrefix(rawURL, "mailto:") || strings.HasPrefix(rawURL, "tel:") || strings.HasPrefix(rawURL, "#") {
		return "", false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	resolved := root.ResolveReference(u)
	if resolved.Host != root.Host {
		return "", false
	}
	resolved.Fragment = ""
	return resolved.String(), true
}

func pathOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Path
}

func normalizePath(rawURL string) string {
	p := pathOf(rawURL)
	if p == "" {
		return "/"
	}
	return p
}

// VisitRecorder is the frontier's narrow view of the persistence adapter
// (spec §4.E "visit ledger contract"). Defined here, not imported from
// pkg/persistence, so frontier stays a leaf of persistence rather than a
// dependent of it.
type VisitRecorder interface {
	RecordVisit(ctx context.Context, parishID int64, rawURL string, result VisitResult) error
}

// VisitResult is what a completed fetch contributes to DiscoveredUrl.
type VisitResult struct {
	HTTPStatus        int
	ResponseTime      time.Duration
	ContentType       string
	ContentSizeBytes  int
	ExtractionSuccess bool
	ScheduleDataFound bool
	ScheduleKeywords  int
	ErrorType         string
	ErrorMessage      string
	QualityScore      float64
}
