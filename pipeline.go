// Package sitefeed aggregates content from configured sources, enhances it
// with an LLM, validates quality, and publishes the survivors as a JSON
// artifact for the site frontend. Implements RFC 4 section 2.
package sitefeed

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pevans/sitefeed/ai"
	"github.com/pevans/sitefeed/config"
	"github.com/pevans/sitefeed/content"
	"github.com/pevans/sitefeed/fetch"
	"github.com/pevans/sitefeed/output"
	"github.com/pevans/sitefeed/scrape"
)

// PassthroughQualityScore is assigned when AI enhancement is disabled and
// raw items are converted directly.
const PassthroughQualityScore = 0.7

// Pipeline runs the scrape, enhance, validate, and publish phases for one
// site. Failures are contained per item and per feed: the run aborts only
// when the output artifact itself cannot be written.
type Pipeline struct {
	cfg       *config.SiteConfig
	settings  config.Settings
	scraper   scrape.Scraper
	enhancer  *ai.Enhancer
	validator *ai.Validator
	writer    *output.Writer
	aiEnabled bool
	logger    *zap.Logger
}

// NewPipeline wires the pipeline for a site. A nil aiClient (or a config
// with AI enhancement disabled) selects the passthrough conversion path.
// The history titles feed duplicate detection during validation.
func NewPipeline(
	cfg *config.SiteConfig,
	settings config.Settings,
	fetchClient *fetch.Client,
	aiClient ai.Client,
	history []string,
	logger *zap.Logger,
) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	scraper, err := scrape.New(cfg, settings, fetchClient, logger)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:       cfg,
		settings:  settings,
		scraper:   scraper,
		writer:    output.NewWriter(logger),
		aiEnabled: cfg.AIEnhancementEnabled && aiClient != nil,
		logger:    logger,
	}
	if p.aiEnabled {
		p.enhancer = ai.NewEnhancer(cfg, aiClient, logger)
		p.validator = ai.NewValidator(cfg, aiClient, history, logger)
	}
	return p, nil
}

// Run executes one full pipeline pass and writes the artifact to
// outputPath. The run always produces an artifact: when no content is
// scraped at all, an empty JSON array is written so consumers never read a
// stale or missing file.
func (p *Pipeline) Run(ctx context.Context, outputPath string) (output.Summary, error) {
	p.logger.Info("starting content pipeline", zap.String("site", p.cfg.SiteName))
	start := time.Now()

	var failed int

	raw := scrape.ScrapeAll(ctx, p.scraper, p.cfg, p.settings, p.logger)
	totalScraped := len(raw)
	if totalScraped == 0 {
		p.logger.Warn("no content scraped from sources, publishing empty artifact")
		if err := p.writer.Write(nil, outputPath); err != nil {
			return output.Summary{}, fmt.Errorf("pipeline failed: %w", err)
		}
		return output.NewSummary(nil, outputPath, 0, 0, 0, 0, time.Since(start)), nil
	}

	var validated []content.EnhancedContent
	var aiEnhancedCount int
	if p.aiEnabled {
		enhanced, enhanceFailures := p.enhance(ctx, raw)
		failed += enhanceFailures
		aiEnhancedCount = len(enhanced)

		results := make([]content.QualityResult, len(enhanced))
		for i, item := range enhanced {
			results[i] = p.validator.Validate(ctx, item)
		}
		validated = p.validator.Filter(enhanced, results)
	} else {
		p.logger.Info("AI enhancement disabled, converting raw content")
		validated = convertRaw(raw)
	}

	records := make([]output.Record, 0, len(validated))
	for _, item := range validated {
		records = append(records, output.Project(item, p.cfg))
	}

	if err := p.writer.Write(records, outputPath); err != nil {
		return output.Summary{}, fmt.Errorf("pipeline failed: %w", err)
	}

	summary := output.NewSummary(
		records, outputPath, totalScraped, failed, aiEnhancedCount,
		averageQuality(validated), time.Since(start),
	)
	p.logger.Info("pipeline completed",
		zap.Int("scraped", totalScraped),
		zap.Int("published", summary.SuccessfulItems),
		zap.Int("failed", failed))
	return summary, nil
}

// enhance runs every raw item through the enhancer. An item whose
// enhancement fails is not dropped: the enhancer returns it as a degraded
// result carrying the original fields. Returns the enhanced batch and the
// degraded count.
func (p *Pipeline) enhance(ctx context.Context, raw []content.RawContent) ([]content.EnhancedContent, int) {
	enhanced := make([]content.EnhancedContent, 0, len(raw))
	var failures int

	for _, item := range raw {
		result := p.enhancer.Enhance(ctx, item)
		if result.Degraded {
			p.logger.Warn("enhancement degraded",
				zap.String("content_id", item.ID()),
				zap.String("reason", result.Reason))
			failures++
		}
		enhanced = append(enhanced, result.Item)
	}

	return enhanced, failures
}

// convertRaw is the no-AI path: every raw item becomes an enhanced item
// with defaults filled in and a fixed passthrough score.
func convertRaw(raw []content.RawContent) []content.EnhancedContent {
	converted := make([]content.EnhancedContent, 0, len(raw))
	for _, item := range raw {
		enhanced := ai.Fallback(item)
		enhanced.QualityScore = PassthroughQualityScore
		enhanced.EnhancementNotes = "No AI enhancement applied"
		converted = append(converted, enhanced)
	}
	return converted
}

func averageQuality(items []content.EnhancedContent) float64 {
	if len(items) == 0 {
		return 0
	}
	var sum float64
	for _, item := range items {
		sum += item.QualityScore
	}
	return sum / float64(len(items))
}
