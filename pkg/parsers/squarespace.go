package parsers

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// parseSquarespace handles the Squarespace summary-block layout, where
// each directory entry renders as a `.summary-item` inside a
// `.summary-block`. Squarespace also commonly ships a raw list of
// address blocks (`.sqs-block-content`), so those count too.
func parseSquarespace(htmlBody string, base *url.URL) ([]Parish, error) {
	doc, err := html.Parse(strings.NewReader(htmlBody))
	if err != nil {
		return nil, err
	}

	var parishes []Parish
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && hasClassContaining(n, "summary-item", "sqs-block-content") {
			if p, ok := parishFromBlock(n, base); ok {
				parishes = append(parishes, p)
			}
			return
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
