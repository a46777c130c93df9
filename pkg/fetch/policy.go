package fetch

import (
	"sort"
	"strings"
	"time"
)

// OriginPolicy is the per-origin rate/timeout policy (spec §4.C step 3 and
// §9 design note: "represent this as a prefix/suffix trie or ordered
// table; do not dispatch through dynamic types").
type OriginPolicy struct {
	RatePerSecond float64
	Burst         int
	Concurrency   int
}

// PolicyRule matches a host exactly, or any host with the given suffix
// (e.g. ".wordpress.com"), or is the catch-all default when Host == "".
// Rules are evaluated most-specific first: exact match, then longest
// suffix match, then default.
type PolicyRule struct {
	Host   string
	Suffix string
	Policy OriginPolicy
}

// PolicyTable is the ordered rule list. It is immutable after
// construction — no dynamic type dispatch, just ordered string matching.
type PolicyTable struct {
	exact   map[string]OriginPolicy
	suffix  []PolicyRule // sorted longest-suffix first
	Default OriginPolicy
}

// NewPolicyTable builds a table from rules plus a default, pre-sorting
// suffix rules so the longest (most specific) suffix is checked first.
func NewPolicyTable(rules []PolicyRule, defaultPolicy OriginPolicy) *PolicyTable {
	t := &PolicyTable{
		exact:   make(map[string]OriginPolicy),
		Default: defaultPolicy,
	}
	for _, r := range rules {
		switch {
		case r.Host != "":
			t.exact[strings.ToLower(r.Host)] = r.Policy
		case r.Suffix != "":
			t.suffix = append(t.suffix, r)
		}
	}
	sort.Slice(t.suffix, func(i, j int) bool {
		return len(t.suffix[i].Suffix) > len(t.suffix[j].Suffix)
	})
	return t
}

// Resolve returns the policy for host: exact match, else longest suffix
// match, else the table default.
func (t *PolicyTable) Resolve(host string) OriginPolicy {
	host = strings.ToLower(host)
	if p, ok := t.exact[host]; ok {
		return p
	}
	for _, r := range t.suffix {
		if strings.HasSuffix(host, r.Suffix) {
			return r.Policy
		}
	}
	return t.Default
}

// DefaultPolicyTable matches spec §4.C: "default 2 req/s, burst 3,
// concurrency cap 2 ... platforms known to be strict default to 1.5
// req/s, concurrency 1".
func DefaultPolicyTable() *PolicyTable {
	return NewPolicyTableWithDefault(OriginPolicy{RatePerSecond: 2, Burst: 3, Concurrency: 2})
}

// NewPolicyTableWithDefault builds the standard strict-platform rule set
// (spec §4.C) against a caller-supplied default policy, so deployments can
// tune the fallback rate via config.FetchConfig without losing the known
// strict-platform overrides.
func NewPolicyTableWithDefault(defaultPolicy OriginPolicy) *PolicyTable {
	strict := OriginPolicy{RatePerSecond: 1.5, Burst: 2, Concurrency: 1}
	return NewPolicyTable(
		[]PolicyRule{
			{Suffix: ".squarespace.com", Policy: strict},
			{Suffix: ".wixsite.com", Policy: strict},
		},
		defaultPolicy,
	)
}

// InterRequestDelay returns a randomized delay in [base, base*1.5] (spec
// §4.C step 4), respecting crawlDelay as a lower bound when robots.txt
// declared one (spec §6: "Crawl-delay directives are respected as a lower
// bound").
func InterRequestDelay(base time.Duration, crawlDelay time.Duration, jitter func() float64) time.Duration {
	if crawlDelay > base {
		base = crawlDelay
	}
	factor := 1 + 0.5*jitter() // jitter() in [0,1) -> factor in [1, 1.5)
	return time.Duration(float64(base) * factor)
}
