package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pevans/sitefeed/config"
	"github.com/pevans/sitefeed/content"
	"github.com/pevans/sitefeed/fetch"
	"github.com/pevans/sitefeed/fieldpath"
	"github.com/pevans/sitefeed/textutil"
)

// WordPressScraper handles WordPress sites through the REST API v2, with
// RSS feeds as a fallback transport for sites that disable the API.
// Implements RFC 2 section 4.
type WordPressScraper struct {
	cfg      *config.SiteConfig
	settings config.Settings
	client   *fetch.Client
	logger   *zap.Logger
}

// ScrapeFeed fetches one WordPress source. URLs containing /wp-json/ or
// ending in .json go through the REST API path; everything else is treated
// as an RSS feed.
func (s *WordPressScraper) ScrapeFeed(ctx context.Context, feedURL string) ([]content.RawContent, error) {
	if strings.Contains(feedURL, "/wp-json/") || strings.HasSuffix(feedURL, ".json") {
		return s.scrapeAPI(ctx, feedURL)
	}
	return s.scrapeRSS(ctx, feedURL)
}

// scrapeRSS delegates to the RSS scraper but labels the items as
// WordPress-sourced.
func (s *WordPressScraper) scrapeRSS(ctx context.Context, feedURL string) ([]content.RawContent, error) {
	rss := &RSSScraper{
		cfg:         s.cfg,
		settings:    s.settings,
		client:      s.client,
		logger:      s.logger,
		scraperType: string(config.ScraperWordPress),
	}
	return rss.ScrapeFeed(ctx, feedURL)
}

func (s *WordPressScraper) scrapeAPI(ctx context.Context, apiURL string) ([]content.RawContent, error) {
	resp, err := s.client.Get(ctx, apiURL)
	if errors.Is(err, fetch.ErrNotModified) {
		s.logger.Info("API not modified", zap.String("url", apiURL))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch WordPress API %s: %w", apiURL, err)
	}

	var posts []map[string]any
	if err := json.Unmarshal(resp.Body, &posts); err != nil {
		return nil, fmt.Errorf("invalid JSON from WordPress API %s: %w", apiURL, err)
	}

	if len(posts) > maxItemsPerFeed {
		posts = posts[:maxItemsPerFeed]
	}

	var items []content.RawContent
	for _, post := range posts {
		item, ok := s.extractPost(ctx, post, apiURL)
		if !ok {
			continue
		}
		if !isRecent(item.Date, s.settings.MaxContentAge) {
			continue
		}
		if err := item.Validate(); err != nil {
			s.logger.Warn("skipping invalid post", zap.String("url", apiURL), zap.Error(err))
			continue
		}
		items = append(items, item)
	}

	return items, nil
}

func (s *WordPressScraper) extractPost(ctx context.Context, post map[string]any, apiURL string) (content.RawContent, bool) {
	title := s.extractTitle(post)
	if title == "" {
		s.logger.Debug("skipping post without title", zap.String("url", apiURL))
		return content.RawContent{}, false
	}

	postURL := s.extractURL(post)
	if postURL == "" {
		s.logger.Debug("skipping post without URL", zap.String("title", title))
		return content.RawContent{}, false
	}

	return content.RawContent{
		Title:       title,
		URL:         postURL,
		Image:       s.extractImage(ctx, post, apiURL),
		Excerpt:     s.extractExcerpt(post),
		Category:    s.extractCategory(post),
		Date:        s.extractDate(post),
		SourceData:  post,
		ScrapedAt:   time.Now(),
		ScraperType: string(config.ScraperWordPress),
		SourceURL:   apiURL,
	}, true
}

func (s *WordPressScraper) extractTitle(post map[string]any) string {
	title := fieldpath.Extract(post, s.cfg.ContentMapping.Title)
	if title == "" {
		title = fieldpath.Extract(post, "title.rendered")
	}
	if title == "" {
		title = fieldpath.Extract(post, "title")
	}
	return textutil.Clean(title)
}

func (s *WordPressScraper) extractURL(post map[string]any) string {
	postURL := fieldpath.Extract(post, s.cfg.ContentMapping.URL)
	if postURL == "" {
		for _, path := range []string{"link", "guid.rendered", "guid.href", "permalink"} {
			if postURL = fieldpath.Extract(post, path); postURL != "" {
				break
			}
		}
	}
	return strings.TrimSpace(postURL)
}

func (s *WordPressScraper) extractImage(ctx context.Context, post map[string]any, apiURL string) string {
	image := fieldpath.Extract(post, s.cfg.ContentMapping.Image)

	if image == "" {
		image = s.featuredMediaImage(ctx, post, apiURL)
	}

	// Embedded img tags in the excerpt or content are the last resort.
	if image == "" {
		for _, path := range []string{"excerpt.rendered", "content.rendered"} {
			if fragment := fieldpath.Extract(post, path); fragment != "" {
				if image = firstImageInHTML(fragment); image != "" {
					break
				}
			}
		}
	}

	return normalizeImageURL(image, apiURL)
}

// featuredMediaImage resolves a post's featured_media attachment: embedded
// media data when the response carries it, otherwise a lookup against the
// site's media endpoint.
func (s *WordPressScraper) featuredMediaImage(ctx context.Context, post map[string]any, apiURL string) string {
	mediaID, ok := post["featured_media"].(float64)
	if !ok || mediaID == 0 {
		return ""
	}

	for _, path := range []string{
		"_embedded.wp:featuredmedia.0.source_url",
		"_embedded.wp:featuredmedia.0.media_details.sizes.medium.source_url",
	} {
		if image := fieldpath.Extract(post, path); image != "" {
			return image
		}
	}

	mediaURL := fmt.Sprintf("%s/%d", strings.Replace(apiURL, "/posts", "/media", 1), int(mediaID))
	resp, err := s.client.Get(ctx, mediaURL)
	if err != nil {
		s.logger.Debug("failed to fetch media data", zap.String("url", mediaURL), zap.Error(err))
		return ""
	}

	var media map[string]any
	if err := json.Unmarshal(resp.Body, &media); err != nil {
		return ""
	}
	return fieldpath.Extract(media, "source_url")
}

func (s *WordPressScraper) extractExcerpt(post map[string]any) string {
	excerpt := fieldpath.Extract(post, s.cfg.ContentMapping.Excerpt)
	if excerpt == "" {
		excerpt = fieldpath.Extract(post, "excerpt.rendered")
	}
	if excerpt == "" {
		if fragment := fieldpath.Extract(post, "content.rendered"); fragment != "" {
			excerpt = htmlToText(fragment)
		}
	}

	excerpt = textutil.Clean(excerpt)
	if len(excerpt) > 500 {
		excerpt = textutil.Truncate(excerpt, 500)
	}
	return excerpt
}

func (s *WordPressScraper) extractCategory(post map[string]any) string {
	if s.cfg.ContentMapping.Category == "" {
		return ""
	}

	category := fieldpath.Extract(post, s.cfg.ContentMapping.Category)

	if category == "" {
		// Embedded term data carries categories first, tags second.
		category = fieldpath.Extract(post, "_embedded.wp:term.0.0.name")
	}
	if category == "" {
		if categories, ok := post["categories"].([]any); ok && len(categories) > 0 {
			if id, ok := categories[0].(float64); ok {
				category = fmt.Sprintf("Category %d", int(id))
			}
		}
	}
	if category == "" {
		category = fieldpath.Extract(post, "_embedded.wp:term.1.0.name")
	}

	return textutil.Clean(category)
}

func (s *WordPressScraper) extractDate(post map[string]any) string {
	if s.cfg.ContentMapping.Date == "" {
		return ""
	}

	dateStr := fieldpath.Extract(post, s.cfg.ContentMapping.Date)
	if dateStr == "" {
		for _, field := range []string{"date", "date_gmt", "modified", "modified_gmt"} {
			if dateStr = fieldpath.Extract(post, field); dateStr != "" {
				break
			}
		}
	}

	return normalizeDate(dateStr)
}
