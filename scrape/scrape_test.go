package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/sitefeed/config"
	"github.com/pevans/sitefeed/content"
	"github.com/pevans/sitefeed/fetch"
)

func testConfig(scraperType config.ScraperType, feeds ...string) *config.SiteConfig {
	return &config.SiteConfig{
		SiteName:    "Test Site",
		ScraperType: scraperType,
		Feeds:       feeds,
		ContentMapping: config.ContentMapping{
			Title:   "title",
			URL:     "link",
			Image:   "image",
			Excerpt: "description",
			Date:    "published",
		},
		UpdateInterval:       3600,
		AIEnhancementEnabled: true,
	}
}

func newTestScraper(t *testing.T, cfg *config.SiteConfig) Scraper {
	t.Helper()
	settings := config.DefaultSettings()
	settings.RetryAttempts = 0
	client := fetch.NewClient(settings, nil, nil)
	scraper, err := New(cfg, settings, client, nil)
	require.NoError(t, err)
	return scraper
}

func TestNewRejectsUnknownScraperType(t *testing.T) {
	cfg := testConfig("sitemap", "https://example.com/feed")
	settings := config.DefaultSettings()
	_, err := New(cfg, settings, fetch.NewClient(settings, nil, nil), nil)
	assert.ErrorIs(t, err, config.ErrInvalidScraperType)
}

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/">
  <channel>
    <title>Test Deals</title>
    <item>
      <title>Great Laptop Deal</title>
      <link>https://example.com/laptop</link>
      <description>&lt;p&gt;A laptop at a &lt;b&gt;great&lt;/b&gt; price&lt;/p&gt;</description>
      <pubDate>Mon, 31 Aug 2026 10:00:00 GMT</pubDate>
      <media:thumbnail url="//cdn.example.com/laptop.jpg"/>
    </item>
    <item>
      <title></title>
      <link>https://example.com/untitled</link>
    </item>
  </channel>
</rss>`

func TestRSSScraperExtractsItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(sampleRSS))
	}))
	defer server.Close()

	cfg := testConfig(config.ScraperRSS, server.URL)
	scraper := newTestScraper(t, cfg)

	items, err := scraper.ScrapeFeed(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, items, 1, "the untitled entry is skipped")

	item := items[0]
	assert.Equal(t, "Great Laptop Deal", item.Title)
	assert.Equal(t, "https://example.com/laptop", item.URL)
	assert.Equal(t, "https://cdn.example.com/laptop.jpg", item.Image, "protocol-relative thumbnail gets an https scheme")
	assert.Equal(t, "A laptop at a great price", item.Excerpt, "HTML is stripped from the excerpt")
	assert.Equal(t, "2026-08-31", item.Date)
	assert.Equal(t, "rss", item.ScraperType)
	assert.Equal(t, server.URL, item.SourceURL)
}

func TestRSSScraperDropsStaleItems(t *testing.T) {
	const staleRSS = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Old</title>
<item><title>Ancient Deal</title><link>https://example.com/old</link>
<pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate></item>
</channel></rss>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(staleRSS))
	}))
	defer server.Close()

	cfg := testConfig(config.ScraperRSS, server.URL)
	scraper := newTestScraper(t, cfg)

	items, err := scraper.ScrapeFeed(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestWordPressScraperExtractsAPIFields(t *testing.T) {
	const posts = `[{
		"title": {"rendered": "Deal of the Day"},
		"link": "https://example.com/deal",
		"excerpt": {"rendered": "<p>Save big today</p>"},
		"date": "2026-08-30T08:00:00",
		"featured_media": 42,
		"_embedded": {
			"wp:featuredmedia": [{"source_url": "https://example.com/img.jpg"}],
			"wp:term": [[{"name": "Electronics"}]]
		}
	}]`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(posts))
	}))
	defer server.Close()

	cfg := testConfig(config.ScraperWordPress, server.URL+"/wp-json/wp/v2/posts")
	cfg.ContentMapping = config.ContentMapping{
		Title:    "title.rendered",
		URL:      "link",
		Image:    "jetpack_featured_media_url",
		Excerpt:  "excerpt.rendered",
		Category: "category_name",
		Date:     "date",
	}
	scraper := newTestScraper(t, cfg)

	items, err := scraper.ScrapeFeed(context.Background(), server.URL+"/wp-json/wp/v2/posts")
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, "Deal of the Day", item.Title)
	assert.Equal(t, "https://example.com/deal", item.URL)
	assert.Equal(t, "https://example.com/img.jpg", item.Image, "embedded featured media fills the missing mapping")
	assert.Equal(t, "Save big today", item.Excerpt)
	assert.Equal(t, "Electronics", item.Category)
	assert.Equal(t, "2026-08-30", item.Date)
	assert.Equal(t, "wordpress", item.ScraperType)
}

func TestWordPressScraperFetchesMediaEndpoint(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/wp-json/wp/v2/posts", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{
			"title": {"rendered": "Media Test"},
			"link": "https://example.com/p",
			"excerpt": {"rendered": "text"},
			"featured_media": 7
		}]`))
	})
	mux.HandleFunc("/wp-json/wp/v2/media/7", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"source_url": "https://example.com/media7.png"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	apiURL := server.URL + "/wp-json/wp/v2/posts"
	cfg := testConfig(config.ScraperWordPress, apiURL)
	cfg.ContentMapping.Title = "title.rendered"
	cfg.ContentMapping.Excerpt = "excerpt.rendered"
	scraper := newTestScraper(t, cfg)

	items, err := scraper.ScrapeFeed(context.Background(), apiURL)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://example.com/media7.png", items[0].Image)
}

func TestCustomScraperJSONContainer(t *testing.T) {
	const payload = `{"items": [
		{"title": "First", "link": "https://example.com/1", "image": "https://example.com/1.png", "description": "one"},
		{"title": "Second", "link": "https://example.com/2", "image": "https://example.com/2.png", "description": "two"}
	]}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer server.Close()

	sourceURL := server.URL + "/api/deals"
	cfg := testConfig(config.ScraperCustom, sourceURL)
	scraper := newTestScraper(t, cfg)

	items, err := scraper.ScrapeFeed(context.Background(), sourceURL)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "First", items[0].Title)
	assert.Equal(t, "custom", items[0].ScraperType)
}

func TestCustomScraperXMLRecords(t *testing.T) {
	const payload = `<?xml version="1.0"?>
<catalog>
  <record>
    <title>XML Deal</title>
    <link>https://example.com/x1</link>
    <image>https://example.com/x1.png</image>
    <description>first record</description>
  </record>
  <record>
    <title>Another</title>
    <link>https://example.com/x2</link>
    <image>https://example.com/x2.png</image>
    <description>second record</description>
  </record>
</catalog>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer server.Close()

	sourceURL := server.URL + "/catalog.xml"
	cfg := testConfig(config.ScraperCustom, sourceURL)
	scraper := newTestScraper(t, cfg)

	items, err := scraper.ScrapeFeed(context.Background(), sourceURL)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "XML Deal", items[0].Title)
	assert.Equal(t, "https://example.com/x1", items[0].URL)
}

func TestCustomScraperHTMLCards(t *testing.T) {
	const page = `<html><body>
	  <div class="card">
	    <h2 class="tt">HTML Deal</h2>
	    <a class="link-url" href="/deals/1">view</a>
	    <img class="img" src="/img/1.png">
	    <p class="desc">first card</p>
	  </div>
	  <div class="card">
	    <h2 class="tt">Second Deal</h2>
	    <a class="link-url" href="/deals/2">view</a>
	    <img class="img" src="/img/2.png">
	    <p class="desc">second card</p>
	  </div>
	</body></html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer server.Close()

	cfg := testConfig(config.ScraperCustom, server.URL)
	cfg.ContentMapping = config.ContentMapping{
		Title:   ".tt",
		URL:     "a.link-url",
		Image:   "img.image", // no match, image stays empty
		Excerpt: ".desc",
	}
	scraper := newTestScraper(t, cfg)

	items, err := scraper.ScrapeFeed(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "HTML Deal", items[0].Title)
	assert.Equal(t, server.URL+"/deals/1", items[0].URL, "relative link resolved against the page")
	assert.Empty(t, items[0].Image)
	assert.Equal(t, "first card", items[0].Excerpt)
}

func TestCustomScraperHTMLNeedsRepeatedPattern(t *testing.T) {
	const page = `<html><body><div class="card"><h2 class="tt">Only One</h2></div></body></html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer server.Close()

	cfg := testConfig(config.ScraperCustom, server.URL)
	scraper := newTestScraper(t, cfg)

	items, err := scraper.ScrapeFeed(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Empty(t, items, "a single element is not a listing")
}

type fakeScraper struct {
	results map[string][]content.RawContent
	errs    map[string]error
}

func (f *fakeScraper) ScrapeFeed(_ context.Context, feedURL string) ([]content.RawContent, error) {
	if err := f.errs[feedURL]; err != nil {
		return nil, err
	}
	return f.results[feedURL], nil
}

func TestScrapeAllSurvivesFeedFailures(t *testing.T) {
	cfg := testConfig(config.ScraperRSS, "https://a.example.com/feed", "https://b.example.com/feed")
	scraper := &fakeScraper{
		results: map[string][]content.RawContent{
			"https://a.example.com/feed": {
				{Title: "Kept", URL: "https://a.example.com/1", ScrapedAt: time.Now()},
			},
		},
		errs: map[string]error{
			"https://b.example.com/feed": errors.New("connection refused"),
		},
	}

	items := ScrapeAll(context.Background(), scraper, cfg, config.DefaultSettings(), nil)
	require.Len(t, items, 1)
	assert.Equal(t, "Kept", items[0].Title)
}

func TestNormalizeImageURL(t *testing.T) {
	assert.Equal(t, "https://x.com/a.png", normalizeImageURL("https://x.com/a.png", "https://site.com"))
	assert.Equal(t, "https://cdn.x.com/a.png", normalizeImageURL("//cdn.x.com/a.png", "https://site.com"))
	assert.Equal(t, "https://site.com/a.png", normalizeImageURL("/a.png", "https://site.com/page"))
	assert.Empty(t, normalizeImageURL("a.png", "https://site.com"))
	assert.Empty(t, normalizeImageURL("", "https://site.com"))
}
