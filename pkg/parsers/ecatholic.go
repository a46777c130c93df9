package parsers

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// parseECatholic handles the eCatholic directory widget, which renders
// each parish as a `.parish-card`/`.location-card`-style block with a
// dedicated name and address element. Falls back to the generic block
// walker when those class hooks are absent, since eCatholic sites vary
// their markup across template versions.
func parseECatholic(htmlBody string, base *url.URL) ([]Parish, error) {
	doc, err := html.Parse(strings.NewReader(htmlBody))
	if err != nil {
		return nil, err
	}

	var parishes []Parish
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && hasClassContaining(n, "card", "location", "listing") {
			if p, ok := parishFromBlock(n, base); ok {
				parishes = append(parishes, p)
			}
			return // don't also recurse into matched blocks and double-count nested cards
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if len(parishes) == 0 {
		return parseGeneric(htmlBody, base)
	}
	return parishes, nil
}

func hasClassContaining(n *html.Node, tokens ...string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		lower := strings.ToLower(attr.Val)
		for _, tok := range tokens {
			if strings.Contains(lower, tok) {
				return true
			}
		}
	}
	return false
}
