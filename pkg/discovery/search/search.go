// Package search implements the search-API fallback for parish-directory
// detection: when the heuristic sitemap/link crawl cannot locate a
// diocese's parish directory, a configured search endpoint is queried
// instead (SPEC_FULL.md §3 "Search-API fallback").
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/dioceseharvest/pipeline/internal/config"
)

// Result is one candidate directory URL the search API returned.
type Result struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// Client queries the configured search endpoint for a diocese's parish
// directory page, authenticating via OAuth2 client-credentials.
type Client struct {
	httpClient *http.Client
	endpoint   string
}

// New builds a Client from cfg. It returns (nil, nil) when the fallback
// is disabled, so callers can skip the search step without special-casing
// a nil check everywhere.
func New(cfg config.SearchConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Endpoint == "" || cfg.TokenURL == "" {
		return nil, fmt.Errorf("search fallback enabled but endpoint or token_url is empty")
	}

	ccCfg := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	return &Client{
		httpClient: ccCfg.Client(context.Background()),
		endpoint:   cfg.Endpoint,
	}, nil
}

// FindParishDirectory queries the search API for dioceseName's parish
// directory and returns the highest-scoring result, or nil if the API
// returned no results. No minimum score is applied.
func (c *Client) FindParishDirectory(ctx context.Context, dioceseName, dioceseWebsite string) (*Result, error) {
	q := url.Values{}
	q.Set("q", dioceseName+" parish directory find a parish")
	if dioceseWebsite != "" {
		q.Set("site", dioceseWebsite)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API returned status %d", resp.StatusCode)
	}

	var results []Result
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	best := results[0]
	for _, r := range results[1:] {
		if r.Score > best.Score {
			best = r
		}
	}
	return &best, nil
}
