package parsers

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// parseWordPress handles the common WordPress parish-directory shapes:
// a `.wp-block-*` list/grid, or a plain post loop where each parish is
// its own `<article>`. Both collapse to the same block walker as the
// generic parser once the relevant container tags are known, since
// WordPress themes vary wildly in class naming but agree on using
// <article>/<li> for repeated content.
func parseWordPress(htmlBody string, base *url.URL) ([]Parish, error) {
	doc, err := html.Parse(strings.NewReader(htmlBody))
	if err != nil {
		return nil, err
	}

	var parishes []Parish
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "article" || hasClassContaining(n, "wp-block-post", "parish-item", "directory-entry")) {
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
