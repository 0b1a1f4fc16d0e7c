package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pevans/sitefeed/config"
	"github.com/pevans/sitefeed/content"
)

// DefaultQualityThreshold is the minimum overall score an item needs to be
// published.
const DefaultQualityThreshold = 0.6

// validatedThreshold is the score at which an item is considered excellent
// and recommended as validated rather than merely publishable.
const validatedThreshold = 0.8

// duplicateHistoryLimit caps how many known titles are sent to the
// duplicate check.
const duplicateHistoryLimit = 50

// Validator scores enhanced items across five quality dimensions and
// filters out the ones below threshold. The LLM produces the metrics; the
// recommendation is derived deterministically from the overall score so a
// chatty model cannot override the threshold policy. Implements RFC 3
// section 4.
type Validator struct {
	cfg             *config.SiteConfig
	client          Client
	threshold       float64
	strict          bool
	checkDuplicates bool
	history         []string
	logger          *zap.Logger
}

// NewValidator creates a validator using the configured quality threshold,
// falling back to the default when the config leaves it unset. Strict
// validation tightens the assessment prompt. The history holds titles from
// earlier runs for duplicate detection; pass nil to skip that check.
func NewValidator(cfg *config.SiteConfig, client Client, history []string, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := cfg.QualityThreshold
	if threshold == 0 {
		threshold = DefaultQualityThreshold
	}
	return &Validator{
		cfg:             cfg,
		client:          client,
		threshold:       threshold,
		strict:          cfg.StrictValidation,
		checkDuplicates: true,
		history:         history,
		logger:          logger,
	}
}

func (v *Validator) systemPrompt() string {
	prompt := fmt.Sprintf(`You are an expert content quality validator for %s. Assess content quality, completeness, and relevance so only high-quality, valuable content is published.

Quality dimensions and weights:
1. Completeness (25%%): informative title, valuable description, critical fields present
2. Relevance (25%%): aligns with the site's purpose and audience
3. Engagement (20%%): compelling title, description encourages interaction
4. Uniqueness (15%%): not duplicate or generic content
5. Language Quality (15%%): clear, well-written, proper grammar

Quality thresholds:
- 0.8-1.0: excellent, publish immediately
- 0.6-0.79: good, publish with minor improvements
- 0.4-0.59: fair, needs significant improvement
- 0.0-0.39: poor, reject

Always provide detailed reasoning and specific improvement suggestions.`, v.cfg.SiteName)
	if v.strict {
		prompt += "\n\nApply strict validation standards and be more critical in your assessment."
	}
	return prompt
}

// Validate assesses one enhanced item. Any failure along the way returns a
// conservative middle-of-the-road assessment instead of an error, so a
// broken LLM never drops an entire batch.
func (v *Validator) Validate(ctx context.Context, item content.EnhancedContent) content.QualityResult {
	result, err := v.assess(ctx, item)
	if err != nil {
		v.logger.Warn("quality validation failed, using conservative assessment",
			zap.String("title", item.Title), zap.Error(err))
		return conservativeResult(err)
	}

	// The recommendation follows the score, not the model's own verdict.
	switch {
	case result.OverallScore >= validatedThreshold:
		result.Recommendation = content.StatusValidated
	case result.OverallScore >= v.threshold:
		result.Recommendation = content.StatusEnhanced
	default:
		result.Recommendation = content.StatusRejected
	}

	if v.checkDuplicates && len(v.history) > 0 {
		if v.isDuplicate(ctx, item) {
			result.Issues = append(result.Issues, content.IssueDuplicateContent)
			result.Recommendation = content.StatusRejected
		}
	}

	v.logger.Info("quality assessment",
		zap.String("title", item.Title),
		zap.Float64("score", result.OverallScore),
		zap.String("recommendation", string(result.Recommendation)))
	return result
}

func (v *Validator) assess(ctx context.Context, item content.EnhancedContent) (content.QualityResult, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", item.Title)
	fmt.Fprintf(&b, "Description: %s\n", orMissing(item.Excerpt))
	fmt.Fprintf(&b, "Category: %s\n", orMissing(item.Category))
	fmt.Fprintf(&b, "Image: %s\n", orMissing(item.Image))
	fmt.Fprintf(&b, "Source: %s\n", item.URL)
	fmt.Fprintf(&b, "Date: %s\n", item.Date)

	prompt := fmt.Sprintf(`Assess the quality of this content for %s:

%s
Quality threshold for publication: %.1f

Respond with a single JSON object and nothing else, using exactly these keys:
{
  "overall_quality_score": 0.0,
  "quality_metrics": {
    "completeness_score": 0.0,
    "relevance_score": 0.0,
    "engagement_score": 0.0,
    "uniqueness_score": 0.0,
    "language_quality_score": 0.0
  },
  "issues_found": [],
  "strengths": [],
  "improvement_suggestions": [],
  "reasoning": ""
}`, v.cfg.SiteName, b.String(), v.threshold)

	raw, err := v.client.Generate(ctx, v.systemPrompt(), prompt)
	if err != nil {
		return content.QualityResult{}, err
	}

	var result content.QualityResult
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &result); err != nil {
		return content.QualityResult{}, fmt.Errorf("unparsable quality assessment: %w", err)
	}

	result.OverallScore = clamp01(result.OverallScore)
	result.Metrics.Completeness = clamp01(result.Metrics.Completeness)
	result.Metrics.Relevance = clamp01(result.Metrics.Relevance)
	result.Metrics.Engagement = clamp01(result.Metrics.Engagement)
	result.Metrics.Uniqueness = clamp01(result.Metrics.Uniqueness)
	result.Metrics.LanguageQuality = clamp01(result.Metrics.LanguageQuality)
	return result, nil
}

// duplicateVerdict mirrors the JSON shape the duplicate-check prompt asks
// for.
type duplicateVerdict struct {
	IsDuplicate     bool    `json:"is_duplicate"`
	SimilarityScore float64 `json:"similarity_score"`
	Reasoning       string  `json:"reasoning"`
}

// isDuplicate asks the LLM whether the item repeats known content. The
// check is advisory: any error means "not a duplicate".
func (v *Validator) isDuplicate(ctx context.Context, item content.EnhancedContent) bool {
	history := v.history
	if len(history) > duplicateHistoryLimit {
		history = history[:duplicateHistoryLimit]
	}

	var b strings.Builder
	for _, known := range history {
		fmt.Fprintf(&b, "- %s\n", known)
	}

	prompt := fmt.Sprintf(`Check if this new content is duplicate or very similar to existing content:

NEW CONTENT:
Title: %s
Description: %s

EXISTING CONTENT:
%s
Analyze for exact or near-exact duplicates, very similar titles or topics, and repetitive content that adds no value.

Respond with a single JSON object and nothing else:
{"is_duplicate": false, "similarity_score": 0.0, "reasoning": ""}`,
		item.Title, item.Excerpt, b.String())

	result, err := v.client.Generate(ctx, v.systemPrompt(), prompt)
	if err != nil {
		v.logger.Debug("duplicate check failed", zap.String("title", item.Title), zap.Error(err))
		return false
	}

	var verdict duplicateVerdict
	if err := json.Unmarshal([]byte(extractJSONObject(result)), &verdict); err == nil {
		v.logger.Info("duplicate check",
			zap.String("title", item.Title),
			zap.Bool("is_duplicate", verdict.IsDuplicate),
			zap.Float64("similarity_score", clamp01(verdict.SimilarityScore)))
		return verdict.IsDuplicate
	}

	// Free-text answer: fall back to scanning for verdict markers.
	lower := strings.ToLower(result)
	for _, marker := range []string{"duplicate", "very similar", "exact match"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Filter keeps the publishable items and copies each surviving item's
// overall score onto it. Items and results must be index-aligned.
func (v *Validator) Filter(items []content.EnhancedContent, results []content.QualityResult) []content.EnhancedContent {
	kept := make([]content.EnhancedContent, 0, len(items))
	for i, item := range items {
		if i >= len(results) {
			break
		}
		if !results[i].Publishable() {
			v.logger.Info("filtered out low-quality content", zap.String("title", item.Title))
			continue
		}
		item.QualityScore = results[i].OverallScore
		kept = append(kept, item)
	}
	v.logger.Info("quality filter complete",
		zap.Int("kept", len(kept)), zap.Int("total", len(items)))
	return kept
}

// conservativeResult is the assessment used when validation itself fails:
// a middle score that keeps the item publishable but flags it for review.
func conservativeResult(err error) content.QualityResult {
	return content.QualityResult{
		OverallScore:   0.5,
		Recommendation: content.StatusEnhanced,
		Metrics: content.QualityMetrics{
			Completeness:    0.5,
			Relevance:       0.5,
			Engagement:      0.5,
			Uniqueness:      0.5,
			LanguageQuality: 0.5,
		},
		Issues:      []content.QualityIssue{content.IssueInsufficientInformation},
		Suggestions: []string{"Quality validation failed - manual review needed"},
		Reasoning:   fmt.Sprintf("Quality validation error: %v", err),
	}
}

func orMissing(s string) string {
	if s == "" {
		return "[MISSING]"
	}
	return s
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
