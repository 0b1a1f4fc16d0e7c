package scrape

import (
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
)

// normalizeImageURL validates and absolutizes a candidate image URL.
// Protocol-relative URLs get an https scheme, host-relative paths are
// resolved against the source URL, and anything else non-absolute is
// dropped.
func normalizeImageURL(image, sourceURL string) string {
	image = strings.TrimSpace(image)
	if image == "" {
		return ""
	}
	if strings.HasPrefix(image, "http://") || strings.HasPrefix(image, "https://") {
		return image
	}
	if strings.HasPrefix(image, "//") {
		return "https:" + image
	}
	if strings.HasPrefix(image, "/") {
		base, err := url.Parse(sourceURL)
		if err != nil || base.Host == "" {
			return ""
		}
		ref, err := url.Parse(image)
		if err != nil {
			return ""
		}
		return base.ResolveReference(ref).String()
	}
	return ""
}

// resolveURL makes a host-relative item URL absolute against its source
// page.
func resolveURL(itemURL, sourceURL string) string {
	if !strings.HasPrefix(itemURL, "/") {
		return itemURL
	}
	base, err := url.Parse(sourceURL)
	if err != nil || base.Host == "" {
		return itemURL
	}
	ref, err := url.Parse(itemURL)
	if err != nil {
		return itemURL
	}
	return base.ResolveReference(ref).String()
}

// normalizeDate reparses a source-native date string into YYYY-MM-DD. When
// the string cannot be parsed it is passed through untouched so downstream
// stages can still see what the source said.
func normalizeDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, err := dateparse.ParseAny(raw)
	if err != nil {
		return raw
	}
	return parsed.Format("2006-01-02")
}

// isRecent reports whether a date string falls within the retention window.
// Items with no date or an unparsable date are kept.
func isRecent(dateStr string, maxAge time.Duration) bool {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" {
		return true
	}
	parsed, err := dateparse.ParseAny(dateStr)
	if err != nil {
		return true
	}
	cutoff := time.Now().Add(-maxAge)
	return !parsed.Before(cutoff)
}

// firstImageInHTML returns the src of the first img tag in an HTML
// fragment, or "" when there is none.
func firstImageInHTML(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img").First().Attr("src")
	return strings.TrimSpace(src)
}

// htmlToText strips tags from an HTML fragment and returns the remaining
// text.
func htmlToText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Text())
}
