package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/dioceseharvest/pipeline/pkg/fetch/cache"
)

// robotsPolicy is the parsed outcome of a robots.txt lookup for one
// origin: whether the fetcher's user-agent may fetch, the crawl-delay
// floor it declares, and any sitemap URLs it advertises.
type robotsPolicy struct {
	group      *robotstxt.Group
	CrawlDelay time.Duration
	Sitemaps   []string
}

func (p *robotsPolicy) Allowed(path string) bool {
	if p == nil || p.group == nil {
		return true
	}
	return p.group.Test(path)
}

// robotsSource fetches and caches robots.txt per origin (spec §4.C step
// 2: "consult a cached robots.txt ruling ... TTL robots_ttl, default
// 24h").
type robotsSource struct {
	cache     *cache.Cache
	client    *http.Client
	userAgent string
	ttl       time.Duration
}

func newRobotsSource(c *cache.Cache, client *http.Client, userAgent string, ttl time.Duration) *robotsSource {
	return &robotsSource{cache: c, client: client, userAgent: userAgent, ttl: ttl}
}

func (r *robotsSource) resolve(ctx context.Context, scheme, origin string) (*robotsPolicy, error) {
	body, ok, err := r.cache.GetRobots(ctx, origin)
	if err != nil {
		return nil, err
	}
	if !ok {
		body, err = r.fetchBody(ctx, scheme, origin)
		if err != nil {
			// A fetch failure is treated as "no robots.txt" (allow-all),
			// matching the permissive default most crawlers apply.
			return &robotsPolicy{}, nil
		}
		if putErr := r.cache.PutRobots(ctx, origin, body, r.ttl); putErr != nil {
			return nil, putErr
		}
	}
	return r.parse(body)
}

func (r *robotsSource) fetchBody(ctx context.Context, scheme, origin string) (string, error) {
	url := fmt.Sprintf("%s://%s/robots.txt", scheme, origin)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", r.userAgent)
	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("robots.txt fetch returned status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *robotsSource) parse(body string) (*robotsPolicy, error) {
	data, err := robotstxt.FromString(body)
	if err != nil {
		return &robotsPolicy{}, nil
	}
	group := data.FindGroup(r.userAgent)
	policy := &robotsPolicy{group: group}
	if group != nil && group.CrawlDelay > 0 {
		policy.CrawlDelay = group.CrawlDelay
	}
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(line), "sitemap:") {
			policy.Sitemaps = append(policy.Sitemaps, strings.TrimSpace(line[len("sitemap:"):]))
		}
	}
	return policy, nil
}
