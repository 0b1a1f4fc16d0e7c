// Package content defines the item model at each stage of the pipeline:
// raw (as scraped), enhanced (after AI processing), and the ephemeral
// quality assessment produced during validation.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/pevans/sitefeed/textutil"
)

// Status describes where an item sits in the processing pipeline.
// Implements RFC 1 section 2.1.
type Status string

const (
	StatusRaw       Status = "raw"       // just scraped, not processed
	StatusEnhanced  Status = "enhanced"  // AI-enhanced but not validated
	StatusValidated Status = "validated" // passed quality validation
	StatusRejected  Status = "rejected"  // failed quality validation
)

// Field length limits shared by the scrapers and the enhancement stage.
const (
	MaxTitleLength    = 500
	MaxExcerptLength  = 1000
	MaxCategoryLength = 100
)

// RawContent is a single item scraped from a source, before any AI
// processing. Title and URL are always present; everything else is
// best-effort. Implements RFC 1 section 2.2.
type RawContent struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Image       string    `json:"image,omitempty"`
	Excerpt     string    `json:"excerpt,omitempty"`
	Category    string    `json:"category,omitempty"`
	Date        string    `json:"date,omitempty"` // source-native format, untyped
	SourceData  any       `json:"-"`              // original entry, kept for diagnostics
	ScrapedAt   time.Time `json:"scraped_at"`
	ScraperType string    `json:"scraper_type"`
	SourceURL   string    `json:"source_url"`
}

// ID derives a stable, human-scannable identifier for the item: a slug of
// the first words of the title followed by 12 hex characters hashed from
// the title and URL. Used in logs and diagnostics; the published record
// carries the bare hash portion.
func (r *RawContent) ID() string {
	sum := sha256.Sum256([]byte(r.Title + r.URL))
	return slugify(r.Title) + "-" + hex.EncodeToString(sum[:])[:12]
}

// slugify reduces a title to a short lowercase dashed prefix.
func slugify(title string) string {
	var b strings.Builder
	words := 0
	for _, field := range strings.Fields(strings.ToLower(title)) {
		var word strings.Builder
		for _, r := range field {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
				word.WriteRune(r)
			}
		}
		if word.Len() == 0 {
			continue
		}
		if words > 0 {
			b.WriteByte('-')
		}
		b.WriteString(word.String())
		words++
		if words == 5 {
			break
		}
	}
	if b.Len() == 0 {
		return "item"
	}
	return b.String()
}

// Validate checks the invariants every scraper must uphold before an item
// enters the pipeline.
func (r *RawContent) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("raw content: title cannot be empty")
	}
	if len(r.Title) > MaxTitleLength {
		return fmt.Errorf("raw content: title too long (%d characters, max %d)", len(r.Title), MaxTitleLength)
	}
	if strings.TrimSpace(r.URL) == "" {
		return fmt.Errorf("raw content: url cannot be empty")
	}
	if len(r.Excerpt) > MaxExcerptLength {
		return fmt.Errorf("raw content: excerpt too long (%d characters, max %d)", len(r.Excerpt), MaxExcerptLength)
	}
	if len(r.Category) > MaxCategoryLength {
		return fmt.Errorf("raw content: category too long (%d characters, max %d)", len(r.Category), MaxCategoryLength)
	}
	return nil
}

// EnhancedContent is an item after AI enhancement. Unlike RawContent, the
// image, excerpt, category, and date fields are all required here: the
// enhancement stage backfills anything the scraper could not resolve.
// Implements RFC 1 section 2.3.
type EnhancedContent struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Image    string `json:"image"`
	Excerpt  string `json:"excerpt"`
	Category string `json:"category"`
	Date     string `json:"date"` // YYYY-MM-DD

	QualityScore      float64  `json:"quality_score"`
	AIGeneratedFields []string `json:"ai_generated_fields"`
	EnhancementNotes  string   `json:"enhancement_notes,omitempty"`

	EnhancedAt time.Time   `json:"enhanced_at"`
	Original   *RawContent `json:"-"` // read-only back-reference, never mutated
}

// aiFields is the closed set of fields the AI is allowed to touch.
var aiFields = map[string]bool{
	"title":    true,
	"excerpt":  true,
	"category": true,
	"image":    true,
	"date":     true,
}

// Normalize applies the post-enhancement cleanup rules: trailing
// punctuation runs are stripped from titles, a trailing ellipsis is removed
// from excerpts short enough to be complete, and categories are title-cased.
func (e *EnhancedContent) Normalize() {
	e.Title = strings.TrimRight(strings.TrimSpace(e.Title), "!?.")
	e.Excerpt = strings.TrimSpace(e.Excerpt)
	if len(e.Excerpt) < 500 && strings.HasSuffix(e.Excerpt, "...") {
		e.Excerpt = strings.TrimSpace(strings.TrimSuffix(e.Excerpt, "..."))
	}
	e.Category = textutil.TitleCase(strings.TrimSpace(e.Category))
}

// Validate checks the enhanced-content invariants.
func (e *EnhancedContent) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("enhanced content: title cannot be empty")
	}
	if len(e.Title) > MaxTitleLength {
		return fmt.Errorf("enhanced content: title too long (%d characters, max %d)", len(e.Title), MaxTitleLength)
	}
	if strings.TrimSpace(e.URL) == "" {
		return fmt.Errorf("enhanced content: url cannot be empty")
	}
	if strings.TrimSpace(e.Image) == "" {
		return fmt.Errorf("enhanced content: image cannot be empty")
	}
	if strings.TrimSpace(e.Excerpt) == "" {
		return fmt.Errorf("enhanced content: excerpt cannot be empty")
	}
	if strings.TrimSpace(e.Category) == "" {
		return fmt.Errorf("enhanced content: category cannot be empty")
	}
	if e.QualityScore < 0.0 || e.QualityScore > 1.0 {
		return fmt.Errorf("enhanced content: quality score %f out of range [0,1]", e.QualityScore)
	}
	for _, field := range e.AIGeneratedFields {
		if !aiFields[field] {
			return fmt.Errorf("enhanced content: invalid AI generated field: %s", field)
		}
	}
	return nil
}

// QualityIssue tags a class of problem detected during validation.
type QualityIssue string

const (
	IssueLowContentQuality       QualityIssue = "low_content_quality"
	IssueInsufficientInformation QualityIssue = "insufficient_information"
	IssueDuplicateContent        QualityIssue = "duplicate_content"
	IssueIrrelevantContent       QualityIssue = "irrelevant_content"
	IssueMissingCriticalFields   QualityIssue = "missing_critical_fields"
	IssuePoorLanguageQuality     QualityIssue = "poor_language_quality"
	IssueSpamOrPromotional       QualityIssue = "spam_or_promotional"
	IssueOutdatedContent         QualityIssue = "outdated_content"
)

// QualityMetrics is the per-dimension quality breakdown. All scores are in
// [0,1].
type QualityMetrics struct {
	Completeness    float64 `json:"completeness_score"`
	Relevance       float64 `json:"relevance_score"`
	Engagement      float64 `json:"engagement_score"`
	Uniqueness      float64 `json:"uniqueness_score"`
	LanguageQuality float64 `json:"language_quality_score"`
}

// QualityResult is the outcome of validating a single item. It is ephemeral
// and never persisted; the orchestrator uses the recommendation to filter
// the batch and copies the overall score onto surviving items. Implements
// RFC 3 section 4.2.
type QualityResult struct {
	OverallScore   float64        `json:"overall_quality_score"`
	Recommendation Status         `json:"recommendation"`
	Metrics        QualityMetrics `json:"quality_metrics"`
	Issues         []QualityIssue `json:"issues_found"`
	Strengths      []string       `json:"strengths"`
	Suggestions    []string       `json:"improvement_suggestions"`
	Reasoning      string         `json:"reasoning"`
}

// Publishable reports whether the recommendation allows the item to survive
// filtering: both validated and enhanced items are published, only rejected
// items are dropped.
func (q QualityResult) Publishable() bool {
	return q.Recommendation == StatusValidated || q.Recommendation == StatusEnhanced
}
