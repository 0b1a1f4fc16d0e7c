package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/sitefeed/config"
)

func testSettings() config.Settings {
	settings := config.DefaultSettings()
	settings.RequestTimeout = 5 * time.Second
	settings.RetryAttempts = 2
	return settings
}

func TestGetReturnsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewClient(testSettings(), nil, nil)
	resp, err := client.Get(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, "application/json", resp.ContentType)
}

func TestGetSendsUserAgent(t *testing.T) {
	var gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	client := NewClient(testSettings(), nil, nil)
	_, err := client.Get(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, testSettings().UserAgent, gotAgent)
}

func TestGetStoresAndSendsValidators(t *testing.T) {
	const etag = `"v1"`
	const lastModified = "Mon, 02 Jan 2006 15:04:05 GMT"

	var conditional atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == etag &&
			r.Header.Get("If-Modified-Since") == lastModified {
			conditional.Store(true)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Last-Modified", lastModified)
		w.Write([]byte("fresh"))
	}))
	defer server.Close()

	cache := NewMemoryCache()
	client := NewClient(testSettings(), cache, nil)

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(resp.Body))

	// Second fetch goes conditional and surfaces the 304 as ErrNotModified.
	_, err = client.Get(context.Background(), server.URL)
	assert.ErrorIs(t, err, ErrNotModified)
	assert.True(t, conditional.Load())

	// The cached validators survive the 304.
	entry, ok, err := cache.Get(server.URL)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, etag, entry.ETag)
	assert.Equal(t, lastModified, entry.LastModified)
}

func TestGetRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer server.Close()

	client := NewClient(testSettings(), nil, nil)
	resp, err := client.Get(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, "recovered", string(resp.Body))
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetGivesUpAfterRetryBudget(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(testSettings(), nil, nil)
	_, err := client.Get(context.Background(), server.URL)

	assert.Error(t, err)
	assert.Equal(t, int32(3), calls.Load(), "initial attempt plus two retries")
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(testSettings(), nil, nil)
	_, err := client.Get(context.Background(), server.URL)

	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSQLiteCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	cache, err := NewSQLiteCache(path)
	require.NoError(t, err)
	defer cache.Close()

	_, ok, err := cache.Get("https://example.com/feed")
	require.NoError(t, err)
	assert.False(t, ok)

	entry := Entry{ETag: `"abc"`, LastModified: "Mon, 02 Jan 2006 15:04:05 GMT"}
	require.NoError(t, cache.Put("https://example.com/feed", entry))

	got, ok, err := cache.Get("https://example.com/feed")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry, got)

	// Replacement overwrites the previous validators.
	require.NoError(t, cache.Put("https://example.com/feed", Entry{ETag: `"def"`}))
	got, ok, err = cache.Get("https://example.com/feed")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `"def"`, got.ETag)
	assert.Empty(t, got.LastModified)
}
