package ai

import (
	"fmt"
	"time"

	"github.com/pevans/sitefeed/content"
)

// DegradedQualityScore is assigned when enhancement fails for an item and
// its raw fields are carried forward instead.
const DegradedQualityScore = 0.6

// Result is the outcome of enhancing one item. The stage never drops an
// item: a failure yields a degraded result that still holds a usable
// fallback item, with Reason recording what went wrong.
type Result struct {
	Item     content.EnhancedContent
	Degraded bool
	Reason   string
}

// Fallback converts a raw item directly to an enhanced item, filling the
// required display fields with defaults. It backs both degraded results and
// the passthrough path used when AI enhancement is disabled.
func Fallback(raw content.RawContent) content.EnhancedContent {
	image := raw.Image
	if image == "" {
		image = PlaceholderImage
	}
	excerpt := raw.Excerpt
	if excerpt == "" {
		excerpt = fmt.Sprintf("Learn more about %s", raw.Title)
	}
	category := raw.Category
	if category == "" {
		category = "General"
	}
	date := raw.Date
	if date == "" {
		date = raw.ScrapedAt.Format("2006-01-02")
	}

	return content.EnhancedContent{
		Title:             raw.Title,
		URL:               raw.URL,
		Image:             image,
		Excerpt:           excerpt,
		Category:          category,
		Date:              date,
		AIGeneratedFields: []string{},
		EnhancedAt:        time.Now(),
		Original:          &raw,
	}
}

// degraded wraps a fallback conversion in a Result recording the failure.
func degraded(raw content.RawContent, err error) Result {
	item := Fallback(raw)
	item.QualityScore = DegradedQualityScore
	item.EnhancementNotes = "Enhancement failed, using original content"
	return Result{Item: item, Degraded: true, Reason: err.Error()}
}
