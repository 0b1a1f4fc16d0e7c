// Package output projects validated content into the site's published JSON
// artifact. The record schema uses camelCase keys because the consuming
// frontend reads the file directly. Implements RFC 4.
package output

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/pevans/sitefeed/config"
	"github.com/pevans/sitefeed/content"
	"github.com/pevans/sitefeed/textutil"
)

// FeaturedThreshold is the quality score above which an item is flagged as
// featured.
const FeaturedThreshold = 0.8

// Record is one published item. Field names match the frontend's Deal
// interface exactly and must not change without coordinating a frontend
// release.
type Record struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	ImageURL        string  `json:"imageUrl"`
	Price           float64 `json:"price"`
	OriginalPrice   float64 `json:"originalPrice"`
	DiscountPercent int     `json:"discountPercent"`
	Category        string  `json:"category"`
	Description     string  `json:"description"`
	AffiliateURL    string  `json:"affiliateUrl"`
	Featured        bool    `json:"featured"`
	DateAdded       string  `json:"dateAdded"`
}

// Project converts one validated item into its published record. It never
// fails: malformed inputs are absorbed with defensive defaults so a bad
// item can degrade but not break a publish.
func Project(item content.EnhancedContent, cfg *config.SiteConfig) Record {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = "Untitled"
	}

	description := strings.TrimSpace(item.Excerpt)
	if description == "" {
		description = fmt.Sprintf("Learn more about %s", title)
	}

	image := strings.TrimSpace(item.Image)
	if image == "" {
		image = "/placeholder-deal.svg"
	}

	category := strings.TrimSpace(item.Category)
	if category == "" {
		category = "General"
	}
	category = textutil.TitleCase(category)

	record := Record{
		ID:           ContentID(title, item.URL),
		Title:        title,
		ImageURL:     image,
		Category:     category,
		Description:  description,
		AffiliateURL: affiliateURL(item.URL, cfg.AffiliateTag),
		Featured:     item.QualityScore > FeaturedThreshold,
		DateAdded:    normalizeDateAdded(item.Date),
	}
	record.OriginalPrice = ReconcileOriginalPrice(record.Price, record.OriginalPrice)
	record.DiscountPercent = ReconcileDiscount(record.Price, record.OriginalPrice, record.DiscountPercent)
	return record
}

// ReconcileOriginalPrice keeps the original price from dipping below the
// current price.
func ReconcileOriginalPrice(price, originalPrice float64) float64 {
	if originalPrice < price {
		return price
	}
	return originalPrice
}

// ContentID derives a stable identifier from an item's title and URL, so
// the same item keeps its ID across runs.
func ContentID(title, url string) string {
	sum := sha256.Sum256([]byte(title + url))
	return hex.EncodeToString(sum[:])[:12]
}

// affiliateURL appends the configured affiliate tag to Amazon URLs. Other
// URLs pass through untouched.
func affiliateURL(itemURL, tag string) string {
	if tag == "" || !strings.Contains(strings.ToLower(itemURL), "amazon") {
		return itemURL
	}
	separator := "?"
	if strings.Contains(itemURL, "?") {
		separator = "&"
	}
	return itemURL + separator + "tag=" + tag
}

// normalizeDateAdded reparses the item date into YYYY-MM-DD. Items whose
// date is missing or unparsable are dated today.
func normalizeDateAdded(date string) string {
	date = strings.TrimSpace(date)
	if date == "" {
		return time.Now().Format("2006-01-02")
	}
	parsed, err := dateparse.ParseAny(date)
	if err != nil {
		return time.Now().Format("2006-01-02")
	}
	return parsed.Format("2006-01-02")
}

// ReconcileDiscount makes the price fields mutually consistent: when both
// prices are present and sensible the discount is recomputed from them,
// otherwise a claimed discount is kept but capped at 100.
func ReconcileDiscount(price, originalPrice float64, claimed int) int {
	if originalPrice > 0 && price > 0 && originalPrice > price {
		computed := int((originalPrice - price) / originalPrice * 100)
		if computed > 100 {
			return 100
		}
		return computed
	}
	if claimed > 100 {
		return 100
	}
	if claimed < 0 {
		return 0
	}
	return claimed
}
