package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/signalwatch/signalwatch/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchPage = `<html><body>
<article>
  <a class="title" href="https://news.example.com/a1">Acme surges on record earnings</a>
  <span class="source">Wire One</span>
  <time datetime="2026-08-20T09:30:00Z">Aug 20</time>
  <p class="summary">Shares jumped after the report.</p>
</article>
<article>
  <a class="title" href="https://news.example.com/a2">Regulator opens probe into Acme</a>
  <span class="source">Wire Two</span>
</article>
<article>
  <a class="title" href="">Missing link is skipped</a>
</article>
</body></html>`

func newTestClient(endpoint string) *Client {
	return NewClient(Config{
		Endpoint:    endpoint,
		CacheTTL:    time.Minute,
		MinInterval: 0,
		Timeout:     2 * time.Second,
		MaxRetries:  2,
	})
}

func TestFetchByKeyword_ParsesArticles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "acme", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(searchPage))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	articles, meta, err := client.FetchByKeyword(context.Background(), "acme", 30)
	require.NoError(t, err)
	assert.Equal(t, SourceNetwork, meta.Source)
	require.Len(t, articles, 2, "article without a link must be skipped")

	assert.Equal(t, "Acme surges on record earnings", articles[0].Title)
	assert.Equal(t, "https://news.example.com/a1", articles[0].Link)
	assert.Equal(t, "Wire One", articles[0].Source)
	assert.Equal(t, "Shares jumped after the report.", articles[0].Summary)
	assert.Equal(t, 2026, articles[0].PublishedAt.Year())
	assert.Equal(t, "Wire Two", articles[1].Source)
	assert.True(t, articles[1].PublishedAt.IsZero())
}

func TestFetchByKeyword_RespectsMaxCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(searchPage))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	articles, _, err := client.FetchByKeyword(context.Background(), "acme", 1)
	require.NoError(t, err)
	assert.Len(t, articles, 1)
}

func TestFetchByKeyword_CacheHit(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte(searchPage))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	ctx := context.Background()

	_, meta, err := client.FetchByKeyword(ctx, "acme", 30)
	require.NoError(t, err)
	assert.Equal(t, SourceNetwork, meta.Source)

	_, meta, err = client.FetchByKeyword(ctx, "acme", 30)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, meta.Source)
	assert.Equal(t, int64(1), requests.Load())

	// A different limit is a different cache key
	_, meta, err = client.FetchByKeyword(ctx, "acme", 5)
	require.NoError(t, err)
	assert.Equal(t, SourceNetwork, meta.Source)
	assert.Equal(t, int64(2), requests.Load())

	stats := client.GetStats()
	assert.Equal(t, int64(2), stats.NetworkRequests)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, 2, client.CacheSize())
}

func TestFetchByKeyword_StaleFallback(t *testing.T) {
	var failing atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusNotFound) // non-retryable, fails fast
			return
		}
		_, _ = w.Write([]byte(searchPage))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	client.cfg.CacheTTL = time.Nanosecond // everything is immediately stale
	ctx := context.Background()

	articles, _, err := client.FetchByKeyword(ctx, "acme", 30)
	require.NoError(t, err)
	require.Len(t, articles, 2)

	failing.Store(true)
	articles, meta, err := client.FetchByKeyword(ctx, "acme", 30)
	require.NoError(t, err, "upstream failure must not surface when stale results exist")
	assert.Equal(t, SourceStaleCache, meta.Source)
	assert.Len(t, articles, 2)
	assert.Equal(t, int64(1), client.GetStats().StaleFallbacks)
}

func TestFetchByKeyword_EmptyOnColdFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	articles, meta, err := client.FetchByKeyword(context.Background(), "acme", 30)
	require.NoError(t, err)
	assert.Equal(t, SourceEmpty, meta.Source)
	assert.Empty(t, articles)
	assert.NotNil(t, articles)
	assert.Equal(t, int64(1), client.GetStats().EmptyResults)
}

func TestFetchByKeyword_RetriesServerErrors(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(searchPage))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	articles, meta, err := client.FetchByKeyword(context.Background(), "acme", 30)
	require.NoError(t, err)
	assert.Equal(t, SourceNetwork, meta.Source)
	assert.Len(t, articles, 2)
	assert.Equal(t, int64(2), requests.Load())
}

func TestFetchByKeyword_EmptyKeyword(t *testing.T) {
	client := newTestClient("http://unused.invalid")
	_, _, err := client.FetchByKeyword(context.Background(), "  ", 30)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestRetryableStatus(t *testing.T) {
	assert.True(t, retryableStatus(http.StatusTooManyRequests))
	assert.True(t, retryableStatus(http.StatusForbidden))
	assert.True(t, retryableStatus(http.StatusBadGateway))
	assert.False(t, retryableStatus(http.StatusNotFound))
	assert.False(t, retryableStatus(http.StatusBadRequest))
}

func TestThrottleSpacesRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(searchPage))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	client.cfg.MinInterval = 50 * time.Millisecond
	ctx := context.Background()

	start := time.Now()
	_, _, err := client.FetchByKeyword(ctx, "first", 30)
	require.NoError(t, err)
	_, _, err = client.FetchByKeyword(ctx, "second", 30)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}
