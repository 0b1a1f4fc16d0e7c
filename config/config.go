// Package config loads and validates the per-site configuration that
// drives a pipeline run. Configuration is loaded once at process start and
// never mutated afterwards, except for an explicit AI-disable override from
// the caller.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ScraperType identifies which scraper adapter a site uses.
type ScraperType string

const (
	ScraperRSS       ScraperType = "rss"
	ScraperWordPress ScraperType = "wordpress"
	ScraperCustom    ScraperType = "custom"
)

// Custom errors for configuration validation
var (
	ErrInvalidScraperType      = errors.New("scraper_type must be rss, wordpress, or custom")
	ErrNoFeeds                 = errors.New("at least one feed URL is required")
	ErrTooManyFeeds            = errors.New("maximum 20 feed URLs allowed")
	ErrInvalidQualityThreshold = errors.New("quality_threshold must be between 0 and 1")
)

// Update interval bounds in seconds (5 minutes to 24 hours).
const (
	MinUpdateInterval = 300
	MaxUpdateInterval = 86400
)

// ContentMapping defines the field paths in the source documents that
// correspond to the standard content fields. Title, URL, image, and excerpt
// paths are required; category and date are optional. Implements RFC 1
// section 3.2.
type ContentMapping struct {
	Title    string `json:"title" yaml:"title"`
	URL      string `json:"url" yaml:"url"`
	Image    string `json:"image" yaml:"image"`
	Excerpt  string `json:"excerpt" yaml:"excerpt"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
	Date     string `json:"date,omitempty" yaml:"date,omitempty"`
}

// Validate checks that the required mapping paths are present.
func (m *ContentMapping) Validate() error {
	required := []struct {
		name string
		path string
	}{
		{"title", m.Title},
		{"url", m.URL},
		{"image", m.Image},
		{"excerpt", m.Excerpt},
	}
	for _, field := range required {
		if strings.TrimSpace(field.path) == "" {
			return fmt.Errorf("content_mapping.%s cannot be empty", field.name)
		}
	}
	return nil
}

// SiteConfig is the immutable per-run site configuration. Implements RFC 1
// section 3.1.
type SiteConfig struct {
	SiteName             string         `json:"site_name" yaml:"site_name"`
	ScraperType          ScraperType    `json:"scraper_type" yaml:"scraper_type"`
	Feeds                []string       `json:"feeds" yaml:"feeds"`
	ContentMapping       ContentMapping `json:"content_mapping" yaml:"content_mapping"`
	UpdateInterval       int            `json:"update_interval" yaml:"update_interval"` // seconds
	AIEnhancementEnabled bool           `json:"ai_enhancement_enabled" yaml:"ai_enhancement_enabled"`
	QualityThreshold     float64        `json:"quality_threshold,omitempty" yaml:"quality_threshold,omitempty"`
	StrictValidation     bool           `json:"strict_validation,omitempty" yaml:"strict_validation,omitempty"`
	AffiliateTag         string         `json:"affiliate_tag,omitempty" yaml:"affiliate_tag,omitempty"`
}

// Validate checks every configuration invariant. A SiteConfig that fails
// validation must never reach the pipeline.
func (c *SiteConfig) Validate() error {
	if strings.TrimSpace(c.SiteName) == "" {
		return fmt.Errorf("site_name cannot be empty")
	}
	if len(c.SiteName) > 100 {
		return fmt.Errorf("site_name too long (%d characters, max 100)", len(c.SiteName))
	}

	switch c.ScraperType {
	case ScraperRSS, ScraperWordPress, ScraperCustom:
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidScraperType, c.ScraperType)
	}

	if len(c.Feeds) == 0 {
		return ErrNoFeeds
	}
	if len(c.Feeds) > 20 {
		return fmt.Errorf("%w: got %d", ErrTooManyFeeds, len(c.Feeds))
	}
	for _, feed := range c.Feeds {
		parsed, err := url.Parse(feed)
		if err != nil {
			return fmt.Errorf("invalid feed URL %q: %w", feed, err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("feed URL %q must use http or https scheme", feed)
		}
	}

	if err := c.ContentMapping.Validate(); err != nil {
		return err
	}

	if c.UpdateInterval < MinUpdateInterval || c.UpdateInterval > MaxUpdateInterval {
		return fmt.Errorf("update_interval must be between %d and %d seconds, got %d",
			MinUpdateInterval, MaxUpdateInterval, c.UpdateInterval)
	}

	if c.QualityThreshold < 0 || c.QualityThreshold > 1 {
		return fmt.Errorf("%w: got %g", ErrInvalidQualityThreshold, c.QualityThreshold)
	}

	if c.AffiliateTag != "" {
		if len(c.AffiliateTag) > 50 {
			return fmt.Errorf("affiliate_tag too long (%d characters, max 50)", len(c.AffiliateTag))
		}
		stripped := strings.NewReplacer("-", "", "_", "").Replace(c.AffiliateTag)
		for _, r := range stripped {
			if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
				return fmt.Errorf("affiliate_tag can only contain letters, numbers, hyphens, and underscores")
			}
		}
	}

	return nil
}

// Warnings reports non-fatal configuration issues: mappings that look wrong
// for the configured scraper type, and update intervals aggressive enough
// to bother upstream servers.
func (c *SiteConfig) Warnings() []string {
	var warnings []string

	switch c.ScraperType {
	case ScraperRSS:
		if c.ContentMapping.Title != "title" && c.ContentMapping.Title != "title.rendered" {
			warnings = append(warnings,
				fmt.Sprintf("RSS feeds typically use 'title' for the title field, got: %s", c.ContentMapping.Title))
		}
		if c.ContentMapping.URL != "link" && c.ContentMapping.URL != "url" {
			warnings = append(warnings,
				fmt.Sprintf("RSS feeds typically use 'link' for the URL field, got: %s", c.ContentMapping.URL))
		}
	case ScraperWordPress:
		if !strings.HasPrefix(c.ContentMapping.Title, "title") {
			warnings = append(warnings,
				fmt.Sprintf("WordPress API typically uses 'title.rendered' for the title field, got: %s", c.ContentMapping.Title))
		}
	}

	if c.UpdateInterval < 1800 {
		warnings = append(warnings,
			fmt.Sprintf("update interval of %ds may be too frequent and could overload servers", c.UpdateInterval))
	}

	return warnings
}

// UpdatePeriod returns the update interval as a duration.
func (c *SiteConfig) UpdatePeriod() time.Duration {
	return time.Duration(c.UpdateInterval) * time.Second
}

// Settings holds runtime scraper settings that are not part of the site
// configuration users typically edit.
type Settings struct {
	RequestTimeout        time.Duration `json:"request_timeout" yaml:"request_timeout"`
	MaxConcurrentRequests int           `json:"max_concurrent_requests" yaml:"max_concurrent_requests"`
	RetryAttempts         int           `json:"retry_attempts" yaml:"retry_attempts"`
	MaxContentAge         time.Duration `json:"max_content_age" yaml:"max_content_age"`
	UserAgent             string        `json:"user_agent" yaml:"user_agent"`
}

// DefaultSettings returns the default runtime settings.
func DefaultSettings() Settings {
	return Settings{
		RequestTimeout:        30 * time.Second,
		MaxConcurrentRequests: 5,
		RetryAttempts:         3,
		MaxContentAge:         30 * 24 * time.Hour,
		UserAgent:             "Mozilla/5.0 (compatible; sitefeed/1.0)",
	}
}
