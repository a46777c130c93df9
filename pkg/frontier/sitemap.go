package frontier

import "encoding/xml"

// sitemapDoc covers both plain <urlset> sitemaps and <sitemapindex>
// sitemap-of-sitemaps documents with one lenient struct; no
// sitemap-specific parser appears anywhere in the retrieved corpus and
// the schema is small and stable, so stdlib encoding/xml is used
// directly rather than reaching for a third-party XML/sitemap library.
type sitemapDoc struct {
	URLSet   []string `xml:"url>loc"`
	SiteMaps []string `xml:"sitemap>loc"`
}

type parsedSitemap struct {
	isIndex bool
	locs    []string
}

func parseSitemap(body string) (parsedSitemap, error) {
	var doc sitemapDoc
	if err := xml.Unmarshal([]byte(body), &doc); err != nil {
		return parsedSitemap{}, err
	}
	if len(doc.SiteMaps) > 0 {
		return parsedSitemap{isIndex: true, locs: doc.SiteMaps}, nil
	}
	return parsedSitemap{locs: doc.URLSet}, nil
}
