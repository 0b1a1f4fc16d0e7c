package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/pevans/sitefeed/config"
)

// ErrNotModified reports that the server answered 304 and the cached copy
// is still current. Callers treat it as "nothing new", not as a failure.
var ErrNotModified = errors.New("content not modified")

// Response is a successful fetch result.
type Response struct {
	Body        []byte
	StatusCode  int
	ContentType string
}

// retryableStatus reports whether a status code indicates a transient
// server-side condition worth retrying.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Client fetches URLs with conditional headers and exponential backoff
// retries. Implements RFC 2 sections 2.1 and 2.2.
type Client struct {
	httpClient *http.Client
	cache      CacheStore
	settings   config.Settings
	logger     *zap.Logger
}

// NewClient creates a fetch client. A nil cache disables conditional
// requests, and a nil logger disables logging.
func NewClient(settings config.Settings, cache CacheStore, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: settings.RequestTimeout},
		cache:      cache,
		settings:   settings,
		logger:     logger,
	}
}

// Get fetches a URL. When cached validators exist for the URL they are sent
// as If-None-Match and If-Modified-Since, and a 304 answer surfaces as
// ErrNotModified with a nil response. On success any validators in the
// response are stored for the next fetch.
//
// Transient failures (connection errors and 429/500/502/503/504 responses)
// are retried with exponential backoff up to the configured attempt budget.
// Other non-2xx statuses fail immediately.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	var cached Entry
	var haveCached bool
	if c.cache != nil {
		var err error
		cached, haveCached, err = c.cache.Get(url)
		if err != nil {
			c.logger.Warn("fetch cache lookup failed", zap.String("url", url), zap.Error(err))
			haveCached = false
		}
	}

	var result *Response

	attempt := func() error {
		resp, err := c.do(ctx, url, cached, haveCached)
		if err != nil {
			c.logger.Debug("fetch attempt failed", zap.String("url", url), zap.Error(err))
			return err
		}
		result = resp
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.settings.RetryAttempts)),
		ctx,
	)
	if err := backoff.Retry(attempt, policy); err != nil {
		return nil, err
	}

	return result, nil
}

func (c *Client) do(ctx context.Context, url string, cached Entry, haveCached bool) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request for %s: %w", url, err))
	}

	req.Header.Set("User-Agent", c.settings.UserAgent)
	if haveCached {
		if cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			req.Header.Set("If-Modified-Since", cached.LastModified)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Connection errors and timeouts are worth retrying.
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		c.logger.Debug("content not modified", zap.String("url", url))
		return nil, backoff.Permanent(ErrNotModified)
	case retryableStatus(resp.StatusCode):
		return nil, fmt.Errorf("server returned %d for %s", resp.StatusCode, url)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, backoff.Permanent(fmt.Errorf("server returned %d for %s", resp.StatusCode, url))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", url, err)
	}

	if c.cache != nil {
		entry := Entry{
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if entry.ETag != "" || entry.LastModified != "" {
			if err := c.cache.Put(url, entry); err != nil {
				c.logger.Warn("fetch cache update failed", zap.String("url", url), zap.Error(err))
			}
		}
	}

	return &Response{
		Body:        body,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
