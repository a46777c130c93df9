package aigate

import (
	"net/url"
	"strings"

	"github.com/dioceseharvest/pipeline/pkg/frontier"
)

// promotionalTokens mark a page as more likely to be an events/news feed
// than a durable schedule page, nudging the threshold up when no
// dedicated-schedule token is also present.
var promotionalTokens = []string{"events", "bulletin", "news"}

// Threshold computes the adaptive confidence floor for rawURL/content
// (spec §4.F), starting from base and clamped to [floor, ceil].
func Threshold(rawURL, content string, base, floor, ceil int, keywordCounter func(string) int) int {
	t := base

	lower := strings.ToLower(rawURL)
	parsed, _ := url.Parse(rawURL)
	host := ""
	if parsed != nil {
		host = strings.ToLower(parsed.Host)
	}

	isCathedral := false
	for _, tok := range frontier.CathedralTokens {
		if strings.Contains(lower, tok) || strings.Contains(host, tok) {
			isCathedral = true
			break
		}
	}
	if isCathedral {
		t -= 10
	}

	isDedicated := false
	for _, tok := range frontier.DedicatedScheduleTokens {
		if strings.Contains(lower, tok) {
			isDedicated = true
			break
		}
	}
	if isDedicated {
		t -= 7
	}

	if keywordCounter != nil && keywordCounter(content) >= 3 {
		t -= 5
	}

	if !isDedicated {
		for _, tok := range promotionalTokens {
			if strings.Contains(lower, tok) {
				t += 10
				break
			}
		}
	}

	if t < floor {
		t = floor
	}
	if t > ceil {
		t = ceil
	}
	return t
}
