// Package parsers implements the pluggable per-platform parish-list
// parser (spec §9: "dynamic per-platform parsers ... behind one
// interface ParseParishList(html, base_url) -> []Parish ... a tagged-
// variant pattern matcher; do not inherit deeply").
package parsers

import (
	"net/url"
	"strings"
)

// Parish is the subset of the Parish entity a directory-page parser can
// populate; the caller fills in diocese_id and runs upsert_parish.
type Parish struct {
	Name       string
	Street     string
	City       string
	State      string
	PostalCode string
	WebsiteURL string
	Phone      string
}

// Platform tags the directory page's detected CMS/builder. It is a
// closed enumeration matched by ParseParishList via a plain switch, not a
// type hierarchy (per the spec's "do not inherit deeply" note).
type Platform string

const (
	PlatformECatholic   Platform = "ecatholic"
	PlatformWordPress   Platform = "wordpress"
	PlatformSquarespace Platform = "squarespace"
	PlatformGeneric     Platform = "generic"
)

// Detect is a pure function of page signals (headers, script tags, link
// patterns) that picks which parser variant to run.
func Detect(html string, headers map[string]string) Platform {
	switch {
	case containsAny(html, `ecatholic`, `/ecath-`, `data-ecatholic`):
		return PlatformECatholic
	case containsAny(html, `wp-content`, `wp-json`, `wordpress`):
		return PlatformWordPress
	case containsAny(html, `squarespace.com`, `sqs-block`, `static1.squarespace`):
		return PlatformSquarespace
	case headerContainsAny(headers, "x-powered-by", "ecatholic"):
		return PlatformECatholic
	case headerContainsAny(headers, "x-powered-by", "wordpress"):
		return PlatformWordPress
	default:
		return PlatformGeneric
	}
}

// ParseParishList extracts a directory page's parish list, selecting the
// parser variant via Detect.
func ParseParishList(html, baseURL string, headers map[string]string) ([]Parish, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	switch Detect(html, headers) {
	case PlatformECatholic:
		return parseECatholic(html, base)
	case PlatformWordPress:
		return parseWordPress(html, base)
	case PlatformSquarespace:
		return parseSquarespace(html, base)
	default:
		return parseGeneric(html, base)
	}
}

func containsAny(haystack string, needles ...string) bool {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

func headerContainsAny(headers map[string]string, key string, needles ...string) bool {
	if headers == nil {
		return false
	}
	val, ok := headers[key]
	if !ok {
		return false
	}
	return containsAny(val, needles...)
}
