package output

import (
	"time"

	"github.com/google/uuid"
)

// Summary reports what a pipeline run produced. It is returned to the
// caller and printed at the end of a CLI run; it is never written into the
// output artifact itself.
type Summary struct {
	RunID           uuid.UUID `json:"run_id"`
	TotalItems      int       `json:"total_items"`
	SuccessfulItems int       `json:"successful_items"`
	FailedItems     int       `json:"failed_items"`
	OutputFile      string    `json:"output_file"`
	GenerationTime  float64   `json:"generation_time"` // seconds
	GeneratedAt     time.Time `json:"generated_at"`
	AverageQuality  float64   `json:"average_quality_score"`
	AIEnhancedCount int       `json:"ai_enhanced_count"`
	Categories      []string  `json:"categories"`
}

// NewSummary assembles a run summary from the surviving items and the run's
// counters.
func NewSummary(records []Record, outputFile string, totalScraped, failed, aiEnhanced int, avgQuality float64, elapsed time.Duration) Summary {
	categorySet := make(map[string]bool)
	for _, record := range records {
		if record.Category != "" {
			categorySet[record.Category] = true
		}
	}
	categories := make([]string, 0, len(categorySet))
	for category := range categorySet {
		categories = append(categories, category)
	}

	return Summary{
		RunID:           uuid.New(),
		TotalItems:      totalScraped,
		SuccessfulItems: len(records),
		FailedItems:     failed,
		OutputFile:      outputFile,
		GenerationTime:  elapsed.Seconds(),
		GeneratedAt:     time.Now(),
		AverageQuality:  avgQuality,
		AIEnhancedCount: aiEnhanced,
		Categories:      categories,
	}
}

// SuccessRate is the share of scraped items that made it to the output, as
// a percentage.
func (s Summary) SuccessRate() float64 {
	if s.TotalItems == 0 {
		return 0
	}
	return float64(s.SuccessfulItems) / float64(s.TotalItems) * 100
}
