package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/pevans/sitefeed/config"
	"github.com/pevans/sitefeed/content"
	"github.com/pevans/sitefeed/fetch"
	"github.com/pevans/sitefeed/fieldpath"
	"github.com/pevans/sitefeed/textutil"
)

// jsonContainerKeys are the common wrapper keys that hold an item array in
// JSON API responses.
var jsonContainerKeys = []string{"items", "data", "posts", "articles", "results", "content"}

// xmlItemTags are the common repeated element names that mark items in XML
// documents.
var xmlItemTags = []string{"item", "entry", "post", "article", "record"}

// htmlItemSelectors are tried in order against an HTML page. A selector
// only counts as the item pattern when it matches at least two elements.
var htmlItemSelectors = []string{
	"article",
	".post",
	".item",
	".entry",
	".content-item",
	"[data-item]",
	".card",
	"li",
}

// CustomScraper handles sources that fit neither the RSS nor the WordPress
// shape: arbitrary JSON APIs, XML documents, and listing-style HTML pages.
// The response format is chosen by URL shape, and all field extraction runs
// off the configured mapping. Implements RFC 2 section 5.
type CustomScraper struct {
	cfg      *config.SiteConfig
	settings config.Settings
	client   *fetch.Client
	logger   *zap.Logger
}

// ScrapeFeed fetches one custom source. URLs ending in .json or containing
// /api/ are parsed as JSON, URLs ending in .xml as XML, and everything else
// as HTML.
func (s *CustomScraper) ScrapeFeed(ctx context.Context, feedURL string) ([]content.RawContent, error) {
	resp, err := s.client.Get(ctx, feedURL)
	if errors.Is(err, fetch.ErrNotModified) {
		s.logger.Info("source not modified", zap.String("url", feedURL))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch custom source %s: %w", feedURL, err)
	}

	switch {
	case strings.HasSuffix(feedURL, ".json") || strings.Contains(feedURL, "/api/"):
		return s.scrapeJSON(resp.Body, feedURL)
	case strings.HasSuffix(feedURL, ".xml"):
		return s.scrapeXML(resp.Body, feedURL)
	default:
		return s.scrapeHTML(resp.Body, feedURL)
	}
}

func (s *CustomScraper) scrapeJSON(body []byte, sourceURL string) ([]content.RawContent, error) {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("invalid JSON from %s: %w", sourceURL, err)
	}

	records := itemsFromJSON(data)
	if len(records) == 0 {
		s.logger.Warn("no items found in JSON response", zap.String("url", sourceURL))
		return nil, nil
	}
	if len(records) > maxItemsPerFeed {
		records = records[:maxItemsPerFeed]
	}

	var items []content.RawContent
	for _, record := range records {
		item, ok := s.extractJSONItem(record, sourceURL)
		if !ok {
			continue
		}
		if !isRecent(item.Date, s.settings.MaxContentAge) {
			continue
		}
		if err := item.Validate(); err != nil {
			s.logger.Warn("skipping invalid item", zap.String("url", sourceURL), zap.Error(err))
			continue
		}
		items = append(items, item)
	}

	return items, nil
}

// itemsFromJSON locates the item array in a JSON document: a top-level
// array is used directly, an object is probed for the common container
// keys, and an object with no array inside is treated as a single item.
func itemsFromJSON(data any) []any {
	switch doc := data.(type) {
	case []any:
		return doc
	case map[string]any:
		for _, key := range jsonContainerKeys {
			if list, ok := doc[key].([]any); ok {
				return list
			}
		}
		return []any{doc}
	default:
		return nil
	}
}

func (s *CustomScraper) extractJSONItem(record any, sourceURL string) (content.RawContent, bool) {
	mapping := s.cfg.ContentMapping

	title := textutil.Clean(fieldpath.Extract(record, mapping.Title))
	itemURL := strings.TrimSpace(fieldpath.Extract(record, mapping.URL))
	if title == "" || itemURL == "" {
		return content.RawContent{}, false
	}

	item := content.RawContent{
		Title:       title,
		URL:         itemURL,
		Image:       fieldpath.Extract(record, mapping.Image),
		Excerpt:     textutil.Clean(fieldpath.Extract(record, mapping.Excerpt)),
		SourceData:  record,
		ScrapedAt:   time.Now(),
		ScraperType: string(config.ScraperCustom),
		SourceURL:   sourceURL,
	}
	if mapping.Category != "" {
		item.Category = textutil.Clean(fieldpath.Extract(record, mapping.Category))
	}
	if mapping.Date != "" {
		item.Date = normalizeDate(fieldpath.Extract(record, mapping.Date))
	}

	return item, true
}

func (s *CustomScraper) scrapeXML(body []byte, sourceURL string) ([]content.RawContent, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("invalid XML from %s: %w", sourceURL, err)
	}

	nodes := itemsFromXML(doc)
	if len(nodes) == 0 {
		s.logger.Warn("no items found in XML response", zap.String("url", sourceURL))
		return nil, nil
	}
	if len(nodes) > maxItemsPerFeed {
		nodes = nodes[:maxItemsPerFeed]
	}

	var items []content.RawContent
	for _, node := range nodes {
		item, ok := s.extractXMLItem(node, sourceURL)
		if !ok {
			continue
		}
		if !isRecent(item.Date, s.settings.MaxContentAge) {
			continue
		}
		if err := item.Validate(); err != nil {
			s.logger.Warn("skipping invalid item", zap.String("url", sourceURL), zap.Error(err))
			continue
		}
		items = append(items, item)
	}

	return items, nil
}

// itemsFromXML locates repeated item elements: the common tag names are
// tried first, then the most frequent element name in the document, as long
// as it repeats.
func itemsFromXML(doc *xmlquery.Node) []*xmlquery.Node {
	for _, tag := range xmlItemTags {
		if nodes := xmlquery.Find(doc, "//"+tag); len(nodes) > 0 {
			return nodes
		}
	}

	counts := make(map[string]int)
	countElements(doc, counts)

	var mostCommon string
	for tag, count := range counts {
		if count > counts[mostCommon] {
			mostCommon = tag
		}
	}
	if mostCommon != "" && counts[mostCommon] > 1 {
		return xmlquery.Find(doc, "//"+mostCommon)
	}

	return nil
}

func countElements(node *xmlquery.Node, counts map[string]int) {
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			counts[child.Data]++
		}
		countElements(child, counts)
	}
}

func (s *CustomScraper) extractXMLItem(node *xmlquery.Node, sourceURL string) (content.RawContent, bool) {
	mapping := s.cfg.ContentMapping

	title := textutil.Clean(xmlField(node, mapping.Title))
	itemURL := strings.TrimSpace(xmlField(node, mapping.URL))
	if title == "" || itemURL == "" {
		return content.RawContent{}, false
	}

	item := content.RawContent{
		Title:       title,
		URL:         itemURL,
		Image:       xmlField(node, mapping.Image),
		Excerpt:     textutil.Clean(xmlField(node, mapping.Excerpt)),
		SourceData:  node.OutputXML(true),
		ScrapedAt:   time.Now(),
		ScraperType: string(config.ScraperCustom),
		SourceURL:   sourceURL,
	}
	if mapping.Category != "" {
		item.Category = textutil.Clean(xmlField(node, mapping.Category))
	}
	if mapping.Date != "" {
		item.Date = normalizeDate(xmlField(node, mapping.Date))
	}

	return item, true
}

// xmlField resolves a mapping path against an XML item: as a child element
// first, then as an attribute.
func xmlField(node *xmlquery.Node, field string) string {
	if field == "" {
		return ""
	}
	if child := xmlquery.FindOne(node, field); child != nil {
		return strings.TrimSpace(child.InnerText())
	}
	if attr := node.SelectAttr(field); attr != "" {
		return attr
	}
	return ""
}

func (s *CustomScraper) scrapeHTML(body []byte, sourceURL string) ([]content.RawContent, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("invalid HTML from %s: %w", sourceURL, err)
	}

	selection := itemsFromHTML(doc)
	if selection == nil {
		s.logger.Warn("no item pattern found in HTML page", zap.String("url", sourceURL))
		return nil, nil
	}

	var items []content.RawContent
	selection.EachWithBreak(func(i int, elem *goquery.Selection) bool {
		if len(items) >= maxItemsPerFeed {
			return false
		}

		item, ok := s.extractHTMLItem(elem, sourceURL)
		if !ok {
			return true
		}
		if !isRecent(item.Date, s.settings.MaxContentAge) {
			return true
		}
		if err := item.Validate(); err != nil {
			s.logger.Warn("skipping invalid item", zap.String("url", sourceURL), zap.Error(err))
			return true
		}
		items = append(items, item)
		return true
	})

	return items, nil
}

// itemsFromHTML finds the repeated item pattern on a page. A selector needs
// at least two matches to count, so a page's single article element is
// never mistaken for a listing.
func itemsFromHTML(doc *goquery.Document) *goquery.Selection {
	for _, selector := range htmlItemSelectors {
		if selection := doc.Find(selector); selection.Length() > 1 {
			return selection
		}
	}
	return nil
}

func (s *CustomScraper) extractHTMLItem(elem *goquery.Selection, sourceURL string) (content.RawContent, bool) {
	mapping := s.cfg.ContentMapping

	title := textutil.Clean(htmlField(elem, mapping.Title))
	itemURL := strings.TrimSpace(htmlField(elem, mapping.URL))
	if title == "" || itemURL == "" {
		return content.RawContent{}, false
	}
	itemURL = resolveURL(itemURL, sourceURL)

	html, _ := goquery.OuterHtml(elem)
	item := content.RawContent{
		Title:       title,
		URL:         itemURL,
		Image:       normalizeImageURL(htmlField(elem, mapping.Image), sourceURL),
		Excerpt:     textutil.Clean(htmlField(elem, mapping.Excerpt)),
		SourceData:  html,
		ScrapedAt:   time.Now(),
		ScraperType: string(config.ScraperCustom),
		SourceURL:   sourceURL,
	}
	if mapping.Category != "" {
		item.Category = textutil.Clean(htmlField(elem, mapping.Category))
	}
	if mapping.Date != "" {
		item.Date = normalizeDate(htmlField(elem, mapping.Date))
	}

	return item, true
}

// htmlField resolves a mapping path as a CSS selector inside an item
// element. Anchors mapped to URL fields yield their href, images mapped to
// image fields yield their src, and everything else yields text content.
func htmlField(elem *goquery.Selection, field string) string {
	if field == "" {
		return ""
	}

	found := elem.Find(field).First()
	if found.Length() == 0 {
		return ""
	}

	switch {
	case goquery.NodeName(found) == "a" && strings.Contains(strings.ToLower(field), "url"):
		href, _ := found.Attr("href")
		return strings.TrimSpace(href)
	case goquery.NodeName(found) == "img" && strings.Contains(strings.ToLower(field), "image"):
		src, _ := found.Attr("src")
		return strings.TrimSpace(src)
	default:
		return strings.TrimSpace(found.Text())
	}
}
