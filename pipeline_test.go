package sitefeed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/sitefeed/ai"
	"github.com/pevans/sitefeed/config"
	"github.com/pevans/sitefeed/fetch"
	"github.com/pevans/sitefeed/output"
)

const pipelineRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Feed</title>
<item>
  <title>First Deal</title>
  <link>https://example.com/1</link>
  <description>First description</description>
</item>
<item>
  <title>Second Deal</title>
  <link>https://example.com/2</link>
  <description>Second description</description>
</item>
</channel></rss>`

// stubAI answers every prompt according to a few fixed rules, enough to
// drive the enhancement and validation stages deterministically.
type stubAI struct {
	failFor      string // title substring whose enhancement calls fail
	rejectTitles []string
	calls        atomic.Int32
}

func (s *stubAI) Generate(_ context.Context, _, userPrompt string) (string, error) {
	s.calls.Add(1)

	if s.failFor != "" && strings.Contains(userPrompt, s.failFor) &&
		strings.Contains(userPrompt, "Create an engaging description") {
		return "", errors.New("llm enhancement outage")
	}

	switch {
	case strings.Contains(userPrompt, "Create an engaging description"):
		return "Enhanced description", nil
	case strings.Contains(userPrompt, "Improve the title"):
		return "An Improved Title", nil
	case strings.Contains(userPrompt, "missing fields"):
		return `{"image": "https://example.com/gen.png", "category": "Deals"}`, nil
	case strings.Contains(userPrompt, "Assess the quality"):
		score := "0.9"
		for _, rejected := range s.rejectTitles {
			if strings.Contains(userPrompt, rejected) {
				score = "0.2"
			}
		}
		return `{"overall_quality_score": ` + score + `,
			"quality_metrics": {"completeness_score": 0.9, "relevance_score": 0.9,
			"engagement_score": 0.9, "uniqueness_score": 0.9, "language_quality_score": 0.9},
			"issues_found": [], "strengths": [], "improvement_suggestions": [], "reasoning": "ok"}`, nil
	default:
		return "", errors.New("unexpected prompt")
	}
}

func pipelineConfig(feedURL string) *config.SiteConfig {
	return &config.SiteConfig{
		SiteName:    "Deals Daily",
		ScraperType: config.ScraperRSS,
		Feeds:       []string{feedURL},
		ContentMapping: config.ContentMapping{
			Title: "title", URL: "link", Image: "image", Excerpt: "description",
		},
		UpdateInterval:       3600,
		AIEnhancementEnabled: true,
	}
}

func newTestPipeline(t *testing.T, cfg *config.SiteConfig, aiClient ai.Client) *Pipeline {
	t.Helper()
	settings := config.DefaultSettings()
	settings.RetryAttempts = 0
	pipeline, err := NewPipeline(cfg, settings, fetch.NewClient(settings, nil, nil), aiClient, nil, nil)
	require.NoError(t, err)
	return pipeline
}

func readRecords(t *testing.T, path string) []output.Record {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var records []output.Record
	require.NoError(t, json.Unmarshal(data, &records))
	return records
}

func TestPipelinePublishesEnhancedContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pipelineRSS))
	}))
	defer server.Close()

	outputPath := filepath.Join(t.TempDir(), "data.json")
	pipeline := newTestPipeline(t, pipelineConfig(server.URL), &stubAI{})

	summary, err := pipeline.Run(context.Background(), outputPath)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalItems)
	assert.Equal(t, 2, summary.SuccessfulItems)
	assert.Equal(t, 0, summary.FailedItems)
	assert.Equal(t, 2, summary.AIEnhancedCount)
	assert.Equal(t, 100.0, summary.SuccessRate())
	assert.InDelta(t, 0.9, summary.AverageQuality, 0.001)

	records := readRecords(t, outputPath)
	require.Len(t, records, 2)
	assert.Equal(t, "Enhanced description", records[0].Description)
	assert.Equal(t, "Deals", records[0].Category)
	assert.True(t, records[0].Featured, "score 0.9 exceeds the featured threshold")
}

func TestPipelineCarriesFailedEnhancementsForward(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pipelineRSS))
	}))
	defer server.Close()

	outputPath := filepath.Join(t.TempDir(), "data.json")
	pipeline := newTestPipeline(t, pipelineConfig(server.URL), &stubAI{failFor: "First Deal"})

	summary, err := pipeline.Run(context.Background(), outputPath)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.FailedItems)
	assert.Equal(t, 2, summary.SuccessfulItems, "the failed item still reaches the output")

	records := readRecords(t, outputPath)
	require.Len(t, records, 2)

	var degraded *output.Record
	for i := range records {
		if records[i].Title == "First Deal" {
			degraded = &records[i]
		}
	}
	require.NotNil(t, degraded)
	assert.Equal(t, "First description", degraded.Description, "original excerpt survives the failed enhancement")
}

func TestPipelineFiltersRejectedContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pipelineRSS))
	}))
	defer server.Close()

	outputPath := filepath.Join(t.TempDir(), "data.json")
	// Titles get rewritten during enhancement, so the rejected item is
	// matched by its URL in the assessment prompt.
	stub := &stubAI{rejectTitles: []string{"example.com/2"}}
	pipeline := newTestPipeline(t, pipelineConfig(server.URL), stub)

	summary, err := pipeline.Run(context.Background(), outputPath)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalItems)
	assert.Equal(t, 1, summary.SuccessfulItems)

	records := readRecords(t, outputPath)
	require.Len(t, records, 1)
	assert.Equal(t, "https://example.com/1", records[0].AffiliateURL)
}

func TestPipelineWithoutAIConvertsDirectly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pipelineRSS))
	}))
	defer server.Close()

	cfg := pipelineConfig(server.URL)
	cfg.AIEnhancementEnabled = false

	outputPath := filepath.Join(t.TempDir(), "data.json")
	stub := &stubAI{}
	pipeline := newTestPipeline(t, cfg, stub)

	summary, err := pipeline.Run(context.Background(), outputPath)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.SuccessfulItems)
	assert.Equal(t, 0, summary.AIEnhancedCount)
	assert.InDelta(t, PassthroughQualityScore, summary.AverageQuality, 0.001)
	assert.Zero(t, stub.calls.Load(), "no LLM calls on the passthrough path")

	records := readRecords(t, outputPath)
	require.Len(t, records, 2)
	assert.Equal(t, "First description", records[0].Description)
	assert.False(t, records[0].Featured, "passthrough score stays below the featured threshold")
}

func TestPipelineWritesEmptyArtifactWhenNothingScraped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	outputDir := t.TempDir()
	outputPath := filepath.Join(outputDir, "data.json")
	require.NoError(t, os.WriteFile(outputPath, []byte(`[{"id":"stale"}]`), 0o644))

	pipeline := newTestPipeline(t, pipelineConfig(server.URL), &stubAI{})
	summary, err := pipeline.Run(context.Background(), outputPath)
	require.NoError(t, err)

	assert.Zero(t, summary.TotalItems)
	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data), "a run that yields nothing still publishes an empty array")
}

func TestRunnerStopsOnStop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pipelineRSS))
	}))
	defer server.Close()

	outputPath := filepath.Join(t.TempDir(), "data.json")
	pipeline := newTestPipeline(t, pipelineConfig(server.URL), &stubAI{})
	runner := NewRunner(pipeline, outputPath, nil)

	done := make(chan error, 1)
	go func() { done <- runner.Run(context.Background()) }()

	// Give the immediate run time to finish, then stop.
	require.Eventually(t, func() bool {
		_, err := os.Stat(outputPath)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	runner.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunnerStopsOnContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pipelineRSS))
	}))
	defer server.Close()

	outputPath := filepath.Join(t.TempDir(), "data.json")
	pipeline := newTestPipeline(t, pipelineConfig(server.URL), &stubAI{})
	runner := NewRunner(pipeline, outputPath, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}
