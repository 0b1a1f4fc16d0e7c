package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/pevans/sitefeed/config"
	"github.com/pevans/sitefeed/content"
	"github.com/pevans/sitefeed/fetch"
	"github.com/pevans/sitefeed/fieldpath"
	"github.com/pevans/sitefeed/textutil"
)

// RSSScraper handles RSS 2.0, RSS 1.0, and Atom feeds. The gofeed library
// normalizes all of them into a common item shape, so the configured field
// mapping is applied to that normalized form. Implements RFC 2 section 3.
type RSSScraper struct {
	cfg      *config.SiteConfig
	settings config.Settings
	client   *fetch.Client
	logger   *zap.Logger

	// scraperType lets the WordPress scraper reuse this logic for RSS
	// fallback while labelling items as its own.
	scraperType string
}

// ScrapeFeed fetches and parses one feed. A 304 answer yields an empty,
// non-error result.
func (s *RSSScraper) ScrapeFeed(ctx context.Context, feedURL string) ([]content.RawContent, error) {
	resp, err := s.client.Get(ctx, feedURL)
	if errors.Is(err, fetch.ErrNotModified) {
		s.logger.Info("feed not modified", zap.String("feed", feedURL))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", feedURL, err)
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", feedURL, err)
	}

	if len(feed.Items) == 0 {
		s.logger.Warn("no entries found in feed", zap.String("feed", feedURL))
		return nil, nil
	}

	entries := feed.Items
	if len(entries) > maxItemsPerFeed {
		entries = entries[:maxItemsPerFeed]
	}

	var items []content.RawContent
	for _, entry := range entries {
		item, ok := s.extractItem(entry, feedURL)
		if !ok {
			continue
		}
		if !isRecent(item.Date, s.settings.MaxContentAge) {
			continue
		}
		if err := item.Validate(); err != nil {
			s.logger.Warn("skipping invalid entry", zap.String("feed", feedURL), zap.Error(err))
			continue
		}
		items = append(items, item)
	}

	return items, nil
}

func (s *RSSScraper) extractItem(entry *gofeed.Item, feedURL string) (content.RawContent, bool) {
	doc := entryDocument(entry)

	title := s.extractTitle(entry, doc)
	if title == "" {
		s.logger.Debug("skipping entry without title", zap.String("feed", feedURL))
		return content.RawContent{}, false
	}

	itemURL := s.extractURL(entry, doc)
	if itemURL == "" {
		s.logger.Debug("skipping entry without URL", zap.String("title", title))
		return content.RawContent{}, false
	}

	scraperType := s.scraperType
	if scraperType == "" {
		scraperType = string(config.ScraperRSS)
	}

	return content.RawContent{
		Title:       title,
		URL:         itemURL,
		Image:       s.extractImage(entry, doc, feedURL),
		Excerpt:     s.extractExcerpt(entry, doc),
		Category:    s.extractCategory(entry, doc),
		Date:        s.extractDate(entry, doc),
		SourceData:  doc,
		ScrapedAt:   time.Now(),
		ScraperType: scraperType,
		SourceURL:   feedURL,
	}, true
}

func (s *RSSScraper) extractTitle(entry *gofeed.Item, doc map[string]any) string {
	title := fieldpath.Extract(doc, s.cfg.ContentMapping.Title)
	if title == "" {
		for _, fallback := range []string{entry.Title, entry.Description} {
			if fallback != "" {
				title = fallback
				break
			}
		}
	}
	return textutil.Clean(title)
}

func (s *RSSScraper) extractURL(entry *gofeed.Item, doc map[string]any) string {
	itemURL := fieldpath.Extract(doc, s.cfg.ContentMapping.URL)
	if itemURL == "" {
		for _, fallback := range []string{entry.Link, entry.GUID} {
			if fallback != "" {
				itemURL = fallback
				break
			}
		}
	}
	return strings.TrimSpace(itemURL)
}

func (s *RSSScraper) extractImage(entry *gofeed.Item, doc map[string]any, feedURL string) string {
	image := fieldpath.Extract(doc, s.cfg.ContentMapping.Image)

	if image == "" && entry.Image != nil {
		image = entry.Image.URL
	}

	if image == "" {
		for _, enclosure := range entry.Enclosures {
			if strings.HasPrefix(enclosure.Type, "image/") {
				image = enclosure.URL
				break
			}
		}
	}

	if image == "" {
		image = mediaExtensionImage(entry)
	}

	if image == "" && entry.Description != "" {
		image = firstImageInHTML(entry.Description)
	}

	return normalizeImageURL(image, feedURL)
}

// mediaExtensionImage pulls an image URL out of Media RSS extensions:
// media:thumbnail first, then media:content elements that carry an image.
func mediaExtensionImage(entry *gofeed.Item) string {
	media, ok := entry.Extensions["media"]
	if !ok {
		return ""
	}

	for _, thumb := range media["thumbnail"] {
		if url := thumb.Attrs["url"]; url != "" {
			return url
		}
	}

	for _, mc := range media["content"] {
		if mc.Attrs["medium"] == "image" || strings.HasPrefix(mc.Attrs["type"], "image/") {
			if url := mc.Attrs["url"]; url != "" {
				return url
			}
		}
	}

	return ""
}

func (s *RSSScraper) extractExcerpt(entry *gofeed.Item, doc map[string]any) string {
	excerpt := fieldpath.Extract(doc, s.cfg.ContentMapping.Excerpt)
	if excerpt == "" {
		for _, fallback := range []string{entry.Description, entry.Content} {
			if fallback != "" {
				excerpt = fallback
				break
			}
		}
	}

	excerpt = textutil.Clean(excerpt)
	if len(excerpt) > 500 {
		excerpt = textutil.Truncate(excerpt, 500)
	}
	return excerpt
}

func (s *RSSScraper) extractCategory(entry *gofeed.Item, doc map[string]any) string {
	if s.cfg.ContentMapping.Category == "" {
		return ""
	}

	category := fieldpath.Extract(doc, s.cfg.ContentMapping.Category)
	if category == "" && len(entry.Categories) > 0 {
		category = entry.Categories[0]
	}
	return textutil.Clean(category)
}

func (s *RSSScraper) extractDate(entry *gofeed.Item, doc map[string]any) string {
	if s.cfg.ContentMapping.Date == "" {
		return ""
	}

	dateStr := fieldpath.Extract(doc, s.cfg.ContentMapping.Date)
	if dateStr == "" {
		switch {
		case entry.PublishedParsed != nil:
			dateStr = entry.PublishedParsed.Format("2006-01-02 15:04:05")
		case entry.Published != "":
			dateStr = entry.Published
		case entry.UpdatedParsed != nil:
			dateStr = entry.UpdatedParsed.Format("2006-01-02 15:04:05")
		case entry.Updated != "":
			dateStr = entry.Updated
		}
	}

	return normalizeDate(dateStr)
}

// entryDocument converts a feed entry into a generic document so the
// configured field mapping can address it with dot paths.
func entryDocument(entry *gofeed.Item) map[string]any {
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	return doc
}
