package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pevans/sitefeed/config"
	"github.com/pevans/sitefeed/content"
	"github.com/pevans/sitefeed/textutil"
)

// PlaceholderImage is used for items where no image could be scraped or
// generated.
const PlaceholderImage = "/placeholder-deal.svg"

// EnhancedQualityScore is assigned to items that went through the full
// enhancement path.
const EnhancedQualityScore = 0.8

// maxDescriptionLength caps enhanced excerpts.
const maxDescriptionLength = 200

// maxTitleLength caps improved titles.
const maxTitleLength = 100

// titleKeywords mark a title as already descriptive. Titles shorter than 30
// characters or missing all of these get an improvement pass.
var titleKeywords = []string{"how", "why", "what", "best", "top"}

// Enhancer rewrites excerpts, improves weak titles, and backfills missing
// fields using the LLM. Implements RFC 3 section 2.
type Enhancer struct {
	cfg    *config.SiteConfig
	client Client
	style  string
	logger *zap.Logger
}

// NewEnhancer creates an enhancer for a site. The style feeds into the
// prompts; "engaging" is the default register.
func NewEnhancer(cfg *config.SiteConfig, client Client, logger *zap.Logger) *Enhancer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enhancer{
		cfg:    cfg,
		client: client,
		style:  "engaging",
		logger: logger,
	}
}

func (e *Enhancer) systemPrompt() string {
	return fmt.Sprintf(`You are an expert content enhancement specialist for %s. Your role is to improve content quality, generate engaging descriptions, and ensure consistency across all content items.

Guidelines:
1. Adapt to the %s style appropriate for %s
2. Keep descriptions under %d characters
3. Create descriptions that encourage clicks without being clickbait
4. Use relevant keywords naturally within the content
5. Never fabricate facts, only enhance presentation of existing information`,
		e.cfg.SiteName, e.style, e.cfg.SiteName, maxDescriptionLength)
}

// Enhance runs the enhancement passes over one raw item. The excerpt
// rewrite is mandatory: if it fails, the item comes back as a degraded
// result carrying its original fields. Title improvement and missing-field
// generation degrade gracefully in place instead.
func (e *Enhancer) Enhance(ctx context.Context, raw content.RawContent) Result {
	e.logger.Info("enhancing content", zap.String("title", raw.Title))

	var aiFields []string

	excerpt, err := e.enhanceExcerpt(ctx, raw)
	if err != nil {
		e.logger.Warn("excerpt enhancement failed, carrying item forward",
			zap.String("title", raw.Title), zap.Error(err))
		return degraded(raw, fmt.Errorf("failed to enhance excerpt: %w", err))
	}
	if excerpt != raw.Excerpt {
		aiFields = append(aiFields, "excerpt")
	}

	title := raw.Title
	if needsTitleImprovement(raw.Title) {
		improved, err := e.improveTitle(ctx, raw)
		if err != nil {
			e.logger.Warn("title improvement failed, keeping original",
				zap.String("title", raw.Title), zap.Error(err))
		} else if improved != "" && improved != raw.Title {
			title = improved
			aiFields = append(aiFields, "title")
		}
	}

	var missing []string
	if raw.Image == "" {
		missing = append(missing, "image")
	}
	if raw.Category == "" {
		missing = append(missing, "category")
	}

	generated := map[string]string{}
	if len(missing) > 0 {
		generated = e.generateMissingFields(ctx, raw, missing)
		aiFields = append(aiFields, missing...)
	}

	image := raw.Image
	if image == "" {
		image = generated["image"]
	}
	if image == "" {
		image = PlaceholderImage
	}

	category := raw.Category
	if category == "" {
		category = generated["category"]
	}
	if category == "" {
		category = "General"
	}

	date := raw.Date
	if date == "" {
		date = raw.ScrapedAt.Format("2006-01-02")
	}

	enhanced := content.EnhancedContent{
		Title:             title,
		URL:               raw.URL,
		Image:             image,
		Excerpt:           excerpt,
		Category:          category,
		Date:              date,
		QualityScore:      EnhancedQualityScore,
		AIGeneratedFields: aiFields,
		EnhancementNotes:  fmt.Sprintf("Enhanced with %d field(s) improved", len(aiFields)),
		EnhancedAt:        time.Now(),
		Original:          &raw,
	}
	enhanced.Normalize()

	if err := enhanced.Validate(); err != nil {
		e.logger.Warn("enhanced content invalid, carrying item forward",
			zap.String("title", raw.Title), zap.Error(err))
		return degraded(raw, fmt.Errorf("enhanced content invalid: %w", err))
	}

	e.logger.Info("enhanced content",
		zap.String("title", enhanced.Title),
		zap.Strings("ai_fields", aiFields))
	return Result{Item: enhanced}
}

// needsTitleImprovement reports whether a title is short or generic enough
// to warrant an improvement pass.
func needsTitleImprovement(title string) bool {
	if len(title) < 30 {
		return true
	}
	lower := strings.ToLower(title)
	for _, keyword := range titleKeywords {
		if strings.Contains(lower, keyword) {
			return false
		}
	}
	return true
}

func (e *Enhancer) enhanceExcerpt(ctx context.Context, raw content.RawContent) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", raw.Title)
	if raw.Excerpt != "" {
		fmt.Fprintf(&b, "Original description: %s\n", raw.Excerpt)
	} else {
		b.WriteString("Original description: Not provided\n")
	}
	if raw.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", raw.Category)
	}
	fmt.Fprintf(&b, "Source: %s\n", raw.SourceURL)

	prompt := fmt.Sprintf(`Based on this content:
%s
Create an engaging description that:
1. Is under %d characters
2. Highlights key benefits or interesting aspects
3. Uses language appropriate for %s
4. Encourages user engagement without being clickbait
5. Matches the %s style

Return only the enhanced description, no additional text.`,
		b.String(), maxDescriptionLength, e.cfg.SiteName, e.style)

	result, err := e.client.Generate(ctx, e.systemPrompt(), prompt)
	if err != nil {
		return "", err
	}

	excerpt := strings.TrimSpace(result)
	if excerpt == "" {
		excerpt = raw.Excerpt
	}
	if excerpt == "" {
		excerpt = fmt.Sprintf("Discover more about %s", raw.Title)
	}
	excerpt = textutil.Truncate(excerpt, maxDescriptionLength)
	return excerpt, nil
}

func (e *Enhancer) improveTitle(ctx context.Context, raw content.RawContent) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Original title: %s\n", raw.Title)
	if raw.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", raw.Category)
	}
	if raw.Excerpt != "" {
		summary := raw.Excerpt
		if runes := []rune(summary); len(runes) > 200 {
			summary = string(runes[:200])
		}
		fmt.Fprintf(&b, "Content summary: %s\n", summary)
	}

	prompt := fmt.Sprintf(`Based on this content:
%s
Improve the title to be more engaging while maintaining accuracy. The improved title should:
1. Be more compelling and click-worthy
2. Stay truthful to the original content
3. Be appropriate for %s
4. Match the %s style
5. Be under %d characters

Return only the improved title, no additional text.`,
		b.String(), e.cfg.SiteName, e.style, maxTitleLength)

	result, err := e.client.Generate(ctx, e.systemPrompt(), prompt)
	if err != nil {
		return "", err
	}

	title := strings.Trim(strings.TrimSpace(result), `"'`)
	title = textutil.Truncate(title, maxTitleLength)
	return title, nil
}

// generateMissingFields asks the LLM for the fields the scraper could not
// resolve. Both LLM errors and unparsable responses degrade to deterministic
// defaults, so this never fails the item.
func (e *Enhancer) generateMissingFields(ctx context.Context, raw content.RawContent, missing []string) map[string]string {
	prompt := fmt.Sprintf(`Based on this available content:
Title: %s
Excerpt: %s
Category: %s
Url: %s

Generate appropriate content for these missing fields: %s

Guidelines:
- Keep generated content consistent with available information
- Make it appropriate for %s
- Use %s style
- Don't fabricate specific facts

Return the generated content as a JSON object with the field names as keys.`,
		raw.Title, raw.Excerpt, raw.Category, raw.URL,
		strings.Join(missing, ", "), e.cfg.SiteName, e.style)

	result, err := e.client.Generate(ctx, e.systemPrompt(), prompt)
	if err != nil {
		e.logger.Warn("missing-field generation failed, using defaults",
			zap.String("title", raw.Title), zap.Error(err))
		return defaultGeneratedFields(raw.Title, missing)
	}

	var generated map[string]string
	if err := json.Unmarshal([]byte(extractJSONObject(result)), &generated); err != nil {
		e.logger.Warn("missing-field response was not JSON, using defaults",
			zap.String("title", raw.Title), zap.Error(err))
		return defaultGeneratedFields(raw.Title, missing)
	}
	return generated
}

func defaultGeneratedFields(title string, missing []string) map[string]string {
	generated := make(map[string]string, len(missing))
	for _, field := range missing {
		switch field {
		case "excerpt":
			generated[field] = fmt.Sprintf("Learn more about %s", title)
		case "category":
			generated[field] = "General"
		}
	}
	return generated
}

// extractJSONObject trims everything outside the outermost braces, which
// drops markdown fences and prose the model may wrap around its JSON.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
