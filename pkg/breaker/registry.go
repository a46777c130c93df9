package breaker

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Well-known breaker names from spec §4.D's table. Dynamic per-origin
// breakers are named "origin:<host>" at first use.
const (
	NameDiocesePageLoad    = "diocese_page_load"
	NameParishDetailLoad   = "parish_detail_load"
	NameWebdriverRequests  = "webdriver_requests"
	NameJavascriptExec     = "javascript_execution"
	NameAIContentAnalysis  = "ai_content_analysis"
)

// defaultConfigs is the spec §4.D table of per-breaker defaults.
func defaultConfigs() map[string]Config {
	return map[string]Config{
		NameDiocesePageLoad:   {FailureThreshold: 3, FailureWindow: 60 * time.Second, RecoveryTimeout: 60 * time.Second},
		NameParishDetailLoad:  {FailureThreshold: 5, FailureWindow: 60 * time.Second, RecoveryTimeout: 30 * time.Second},
		NameWebdriverRequests: {FailureThreshold: 5, FailureWindow: 60 * time.Second, RecoveryTimeout: 30 * time.Second},
		NameJavascriptExec:    {FailureThreshold: 5, FailureWindow: 60 * time.Second, RecoveryTimeout: 60 * time.Second},
		NameAIContentAnalysis: {FailureThreshold: 5, FailureWindow: 120 * time.Second, RecoveryTimeout: 60 * time.Second},
	}
}

// originConfig is applied to any dynamically created "origin:<host>" breaker.
func originConfig() Config {
	return Config{FailureThreshold: 5, FailureWindow: 60 * time.Second, RecoveryTimeout: 60 * time.Second}
}

// Registry is the single process-wide fabric owning all named breakers
// (spec §9: "the breaker registry" is one of exactly two justified
// singletons). It must be constructed once at worker start and passed by
// reference into every component that needs to guard a call.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	logger   *logrus.Logger
}

// NewRegistry constructs a Registry pre-populated with the always-on
// breakers from spec §4.D's table. Dynamic origin breakers are added
// lazily via GetOrCreate.
func NewRegistry(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	r := &Registry{
		breakers: make(map[string]*Breaker),
		logger:   logger,
	}
	for name, cfg := range defaultConfigs() {
		r.breakers[name] = New(name, cfg, logger)
	}
	return r
}

// Get returns the named breaker if it has been created.
func (r *Registry) Get(name string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[name]
	return b, ok
}

// GetOrCreate returns the named breaker, creating it with cfg (or the
// origin default if cfg is nil) on first use. This is how dynamic
// "origin:<host>" breakers come into existence (spec §4.C step 5).
func (r *Registry) GetOrCreate(name string, cfg *Config) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	resolved := originConfig()
	if cfg != nil {
		resolved = *cfg
	}
	b = New(name, resolved, r.logger)
	r.breakers[name] = b
	return b
}

// Guard is a convenience that looks up (or lazily creates, for dynamic
// origin breakers) the named breaker and guards fn through it.
func (r *Registry) Guard(name string, fn func() error) error {
	return r.GetOrCreate(name, nil).Guard(fn)
}

// SnapshotAll returns every breaker's CircuitState, for the telemetry
// surface's "report all states at once" requirement (spec §4.D).
func (r *Registry) SnapshotAll() map[string]CircuitState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]CircuitState, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.Snapshot()
	}
	return out
}
