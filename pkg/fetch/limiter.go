package fetch

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// originLimiter pairs a token-bucket rate limiter with a concurrency
// semaphore for one origin (spec §4.C: "per-origin token bucket ...
// concurrency cap").
type originLimiter struct {
	limiter *rate.Limiter
	sem     chan struct{}
}

// limiterSet keys originLimiter by host, created lazily on first use.
type limiterSet struct {
	mu     sync.Mutex
	byHost map[string]*originLimiter
	table  *PolicyTable
}

func newLimiterSet(table *PolicyTable) *limiterSet {
	return &limiterSet{
		byHost: make(map[string]*originLimiter),
		table:  table,
	}
}

func (s *limiterSet) get(host string) *originLimiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.byHost[host]; ok {
		return l
	}
	p := s.table.Resolve(host)
	l := &originLimiter{
		limiter: rate.NewLimiter(rate.Limit(p.RatePerSecond), p.Burst),
		sem:     make(chan struct{}, p.Concurrency),
	}
	s.byHost[host] = l
	return l
}

// acquire blocks until both the rate limiter allows a request and a
// concurrency slot is free for host, returning a release func.
func (s *limiterSet) acquire(ctx context.Context, host string) (func(), error) {
	l := s.get(host)
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return func() { <-l.sem }, nil
}
