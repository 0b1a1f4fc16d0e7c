// Package scrape turns configured feeds into raw content items. Each
// scraper type handles one family of sources: RSS and Atom feeds,
// WordPress sites, and custom JSON, XML, or HTML endpoints. Implements RFC
// 2 sections 3 through 6.
package scrape

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/pevans/sitefeed/config"
	"github.com/pevans/sitefeed/content"
	"github.com/pevans/sitefeed/fetch"
)

// maxItemsPerFeed caps how many entries a single feed contributes per run.
const maxItemsPerFeed = 50

// Scraper extracts raw content items from a single feed URL.
type Scraper interface {
	ScrapeFeed(ctx context.Context, feedURL string) ([]content.RawContent, error)
}

// New builds the scraper matching the configured scraper type.
func New(cfg *config.SiteConfig, settings config.Settings, client *fetch.Client, logger *zap.Logger) (Scraper, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.ScraperType {
	case config.ScraperRSS:
		return &RSSScraper{cfg: cfg, settings: settings, client: client, logger: logger}, nil
	case config.ScraperWordPress:
		return &WordPressScraper{cfg: cfg, settings: settings, client: client, logger: logger}, nil
	case config.ScraperCustom:
		return &CustomScraper{cfg: cfg, settings: settings, client: client, logger: logger}, nil
	default:
		return nil, fmt.Errorf("%w: got %q", config.ErrInvalidScraperType, cfg.ScraperType)
	}
}

// ScrapeAll scrapes every configured feed with bounded concurrency. A feed
// that fails or yields nothing never aborts the run: its error is logged
// and the remaining feeds still contribute their items.
func ScrapeAll(ctx context.Context, scraper Scraper, cfg *config.SiteConfig, settings config.Settings, logger *zap.Logger) []content.RawContent {
	if logger == nil {
		logger = zap.NewNop()
	}

	concurrency := settings.MaxConcurrentRequests
	if concurrency < 1 {
		concurrency = 1
	}
	semaphore := make(chan struct{}, concurrency)

	var mu sync.Mutex
	var all []content.RawContent
	var wg sync.WaitGroup

	for _, feedURL := range cfg.Feeds {
		select {
		case <-ctx.Done():
			logger.Warn("scrape cancelled", zap.Error(ctx.Err()))
			wg.Wait()
			return all
		case semaphore <- struct{}{}:
		}

		wg.Add(1)
		go func(feedURL string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			items, err := scraper.ScrapeFeed(ctx, feedURL)
			if err != nil {
				logger.Error("failed to scrape feed", zap.String("feed", feedURL), zap.Error(err))
				return
			}

			logger.Info("scraped feed", zap.String("feed", feedURL), zap.Int("items", len(items)))

			mu.Lock()
			all = append(all, items...)
			mu.Unlock()
		}(feedURL)
	}

	wg.Wait()
	logger.Info("scrape complete", zap.Int("total_items", len(all)))
	return all
}
