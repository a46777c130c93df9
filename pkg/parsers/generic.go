package parsers

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// phoneRe is a loose US-style phone pattern good enough to pull a phone
// number out of free text near a parish name; it is intentionally
// permissive rather than exhaustively validating formats.
var phoneRe = regexp.MustCompile(`\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)

// parseGeneric handles any directory page with no detected platform
// signature: it treats every list item, table row or article with
// non-empty text as one candidate parish; its first link, if any,
// becomes the website URL.
func parseGeneric(htmlBody string, base *url.URL) ([]Parish, error) {
	doc, err := html.Parse(strings.NewReader(htmlBody))
	if err != nil {
		return nil, err
	}

	var parishes []Parish
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "li" || n.Data == "tr" || n.Data == "article") {
			if p, ok := parishFromBlock(n, base); ok {
				parishes = append(parishes, p)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return parishes, nil
}

func parishFromBlock(n *html.Node, base *url.URL) (Parish, bool) {
	var link, text string
	var collectLink func(*html.Node)
	collectLink = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" && link == "" {
			for _, a := range n.Attr {
				if a.Key == "href" {
					link = a.Val
				}
			}
		}
		if n.Type == html.TextNode {
			text += n.Data + " "
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collectLink(c)
		}
	}
	collectLink(n)
	text = strings.TrimSpace(strings.Join(strings.Fields(text), " "))
	if text == "" {
		return Parish{}, false
	}

	name := text
	if phone := phoneRe.FindString(text); phone != "" {
		name = strings.TrimSpace(strings.Replace(name, phone, "", 1))
	}
	if idx := strings.IndexAny(name, "|-–"); idx > 3 {
		name = strings.TrimSpace(name[:idx])
	}

	p := Parish{Name: name}
	if phone := phoneRe.FindString(text); phone != "" {
		p.Phone = phone
	}
	if link != "" {
		if resolved, err := base.Parse(link); err == nil {
			p.WebsiteURL = resolved.String()
		}
	}
	if p.Name == "" {
		return Parish{}, false
	}
	return p, true
}
