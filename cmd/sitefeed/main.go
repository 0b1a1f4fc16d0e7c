package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/pevans/sitefeed"
	"github.com/pevans/sitefeed/ai"
	"github.com/pevans/sitefeed/config"
	"github.com/pevans/sitefeed/fetch"
	"github.com/pevans/sitefeed/output"
)

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Parse command line flags with environment variable defaults per RFC 4
	// section 6.1
	configPath := flag.String("config", getEnv("SITEFEED_CONFIG", "config/config.json"), "Path to site configuration file (SITEFEED_CONFIG)")
	outputPath := flag.String("output", getEnv("SITEFEED_OUTPUT", "public/data.json"), "Path to output JSON artifact (SITEFEED_OUTPUT)")
	cachePath := flag.String("cache", getEnv("SITEFEED_CACHE_DSN", ""), "Path to fetch cache database, empty for in-memory (SITEFEED_CACHE_DSN)")
	noAI := flag.Bool("no-ai", false, "Disable AI enhancement regardless of configuration")
	daemon := flag.Bool("daemon", false, "Run continuously at the configured update interval")
	verbose := flag.Bool("verbose", false, "Enable debug logging")

	flag.Parse()

	logger, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	for _, warning := range cfg.Warnings() {
		logger.Warn("Configuration warning", zap.String("warning", warning))
	}

	if *noAI {
		cfg.AIEnhancementEnabled = false
		logger.Info("AI enhancement disabled via command line")
	}

	// Open the fetch validator cache. An on-disk cache makes conditional
	// requests effective across runs.
	var cache fetch.CacheStore
	if *cachePath != "" {
		sqliteCache, err := fetch.NewSQLiteCache(*cachePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to open fetch cache: %v\n", err)
			os.Exit(1)
		}
		cache = sqliteCache
	} else {
		cache = fetch.NewMemoryCache()
	}
	defer cache.Close()

	settings := config.DefaultSettings()
	fetchClient := fetch.NewClient(settings, cache, logger)

	var aiClient ai.Client
	aiConfig := ai.ConfigFromEnv()
	if cfg.AIEnhancementEnabled {
		if aiConfig.Enabled() {
			aiClient = ai.NewChatClient(aiConfig)
		} else {
			logger.Warn("LLM_API_KEY not set, running without AI enhancement")
		}
	}

	// Titles already published in a previous run seed duplicate detection.
	history := output.ReadTitles(*outputPath)

	pipeline, err := sitefeed.NewPipeline(cfg, settings, fetchClient, aiClient, history, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to build pipeline: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigChan
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	if *daemon {
		runner := sitefeed.NewRunner(pipeline, *outputPath, logger)
		if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "Error: runner failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	summary, err := pipeline.Run(ctx, *outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: scraping run failed: %v\n", err)
		os.Exit(1)
	}
	printSummary(summary)
}

// newLogger builds a production zap logger, at debug level when verbose is
// set.
func newLogger(verbose bool) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if verbose {
		zapConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zapConfig.Build()
}

// printSummary writes the end-of-run report to stdout.
func printSummary(summary output.Summary) {
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("SCRAPING SUMMARY")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Run ID:           %s\n", summary.RunID)
	fmt.Printf("Total items:      %d\n", summary.TotalItems)
	fmt.Printf("Successful:       %d\n", summary.SuccessfulItems)
	fmt.Printf("Failed:           %d\n", summary.FailedItems)
	fmt.Printf("Success rate:     %.1f%%\n", summary.SuccessRate())
	fmt.Printf("Average quality:  %.2f\n", summary.AverageQuality)
	fmt.Printf("AI enhanced:      %d\n", summary.AIEnhancedCount)
	fmt.Printf("Categories:       %s\n", strings.Join(summary.Categories, ", "))
	fmt.Printf("Generation time:  %.2fs\n", summary.GenerationTime)
	fmt.Printf("Output file:      %s\n", summary.OutputFile)
	fmt.Println(strings.Repeat("=", 50))
}
