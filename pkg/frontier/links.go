package frontier

import (
	"strings"

	"golang.org/x/net/html"
)

// extractLinks walks the parsed DOM for <a href> elements and their
// anchor text (spec §4.E step 3: "fetch the root page and collect
// internal links"). Parallel slices so callers can line up a link with
// the text used for its "+10 per schedule keyword in anchor text" score.
func extractLinks(body string) ([]string, []string, error) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, nil, err
	}

	var hrefs, texts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					hrefs = append(hrefs, attr.Val)
					texts = append(texts, anchorText(n))
					break
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return hrefs, texts, nil
}

func anchorText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
