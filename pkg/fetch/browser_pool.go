package fetch

import (
	"context"
	"time"

	"github.com/dioceseharvest/pipeline/pkg/pipeline/errs"
)

// BrowserContext is a leased handle capable of rendering JavaScript-heavy
// pages. No headless-browser automation library appears anywhere in the
// retrieved corpus, so this models the pool as a pluggable interface
// (matching the tagged-variant strategy used elsewhere) rather than
// inventing a dependency; a concrete implementation (e.g. chromedp-backed)
// is wired in by the caller.
type BrowserContext interface {
	// Render navigates to url and returns the fully rendered HTML, or an
	// error if the page could not be loaded or rendering panicked.
	Render(ctx context.Context, url string) (html string, statusCode int, err error)
	// Reset clears cookies/storage between leases so one parish's session
	// state cannot bleed into the next.
	Reset(ctx context.Context) error
}

// BrowserFactory constructs a fresh BrowserContext, used by the pool to
// replace one that failed.
type BrowserFactory func(ctx context.Context) (BrowserContext, error)

// BrowserPool is a fixed-size FIFO pool of leased BrowserContexts (spec
// §4.C: "a small fixed-size pool of headless-browser sessions, leased to
// callers with a timeout; a context that errors is destroyed and
// replaced rather than returned to the pool").
type BrowserPool struct {
	factory    BrowserFactory
	leaseLimit time.Duration
	slots      chan BrowserContext
	size       int
}

// NewBrowserPool eagerly creates size browser contexts via factory.
func NewBrowserPool(ctx context.Context, size int, leaseTimeout time.Duration, factory BrowserFactory) (*BrowserPool, error) {
	p := &BrowserPool{
		factory:    factory,
		leaseLimit: leaseTimeout,
		slots:      make(chan BrowserContext, size),
		size:       size,
	}
	for i := 0; i < size; i++ {
		bc, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		p.slots <- bc
	}
	return p, nil
}

// Lease acquires a BrowserContext, blocking up to the pool's lease
// timeout. The returned release func must be called exactly once; pass
// failed=true if the context errored during use so the pool replaces it
// rather than returning it to circulation.
func (p *BrowserPool) Lease(ctx context.Context) (bc BrowserContext, release func(ctx context.Context, failed bool), err error) {
	leaseCtx, cancel := context.WithTimeout(ctx, p.leaseLimit)
	defer cancel()
	select {
	case bc = <-p.slots:
	case <-leaseCtx.Done():
		return nil, nil, errs.ErrResourceExhausted
	}
	release = func(releaseCtx context.Context, failed bool) {
		if !failed {
			if rerr := bc.Reset(releaseCtx); rerr == nil {
				p.slots <- bc
				return
			}
		}
		replacement, ferr := p.factory(releaseCtx)
		if ferr != nil {
			// Could not replace; shrink the pool by one slot rather than
			// deadlock future leases on a context that no longer exists.
			return
		}
		p.slots <- replacement
	}
	return bc, release, nil
}

// Size returns the configured pool size.
func (p *BrowserPool) Size() int { return p.size }
