package frontier

import "testing"

func TestParseSitemap_URLSet(t *testing.T) {
	body := `<?xml version="1.0"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://parish.example.org/mass-times</loc></url>
  <url><loc>https://parish.example.org/events</loc></url>
</urlset>`
	sm, err := parseSitemap(body)
	if err != nil {
		t.Fatalf("parseSitemap() error = %v", err)
	}
	if sm.isIndex {
		t.Error("expected a plain urlset, not a sitemap index")
	}
	if len(sm.locs) != 2 {
		t.Errorf("locs = %v, want 2 entries", sm.locs)
	}
}

func TestParseSitemap_Index(t *testing.T) {
	body := `<?xml version="1.0"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://parish.example.org/sitemap-pages.xml</loc></sitemap>
  <sitemap><loc>https://parish.example.org/sitemap-posts.xml</loc></sitemap>
</sitemapindex>`
	sm, err := parseSitemap(body)
	if err != nil {
		t.Fatalf("parseSitemap() error = %v", err)
	}
	if !sm.isIndex {
		t.Error("expected a sitemap index")
	}
	if len(sm.locs) != 2 {
		t.Errorf("locs = %v, want 2 entries", sm.locs)
	}
}
