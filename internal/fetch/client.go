// Package fetch implements the news search client: throttled, retried,
// cached, and degrading to stale results when the upstream misbehaves.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/signalwatch/signalwatch/internal/common"
	"github.com/signalwatch/signalwatch/internal/model"
)

// Fetch result sources, reported in Meta.
const (
	SourceNetwork    = "network"
	SourceCache      = "cache"
	SourceStaleCache = "stale_cache"
	SourceEmpty      = "empty"
)

// Meta describes where a fetch result came from and how old it is.
type Meta struct {
	FetchedAt time.Time `json:"fetched_at"`
	Source    string    `json:"source"`
	AgeSec    float64   `json:"age_sec"`
	TTLSec    float64   `json:"cache_ttl_sec"`
}

// Stats is a snapshot of the client's runtime counters.
type Stats struct {
	NetworkRequests int64 `json:"network_requests"`
	CacheHits       int64 `json:"cache_hits"`
	StaleFallbacks  int64 `json:"stale_fallbacks"`
	EmptyResults    int64 `json:"empty_results"`
	FetchErrors     int64 `json:"fetch_errors"`
}

// Config holds the client tunables.
type Config struct {
	Endpoint    string
	CacheTTL    time.Duration
	MinInterval time.Duration
	Timeout     time.Duration
	MaxRetries  int
}

// Client fetches news search results for a keyword.
type Client struct {
	httpClient  *http.Client
	cache       *articleCache
	lastRequest time.Time
	cfg         Config

	networkRequests atomic.Int64
	cacheHits       atomic.Int64
	staleFallbacks  atomic.Int64
	emptyResults    atomic.Int64
	fetchErrors     atomic.Int64

	throttleMu sync.Mutex
}

// NewClient creates a news search client.
func NewClient(cfg Config) *Client {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 180 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	return &Client{
		cfg:        cfg,
		cache:      newArticleCache(),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// FetchByKeyword returns up to maxCount articles for a keyword. The result
// degrades network -> fresh cache -> stale cache -> empty; an exhausted
// upstream never fails the caller.
func (c *Client) FetchByKeyword(ctx context.Context, keyword string, maxCount int) ([]model.Article, Meta, error) {
	if strings.TrimSpace(keyword) == "" {
		return nil, Meta{Source: SourceEmpty}, common.NewValidationError("keyword", "cannot be empty")
	}
	if maxCount <= 0 {
		maxCount = 30
	}

	cacheKey := fmt.Sprintf("%s::%d", keyword, maxCount)

	// Fresh cache short-circuits the network entirely
	if entry, ok := c.cache.get(cacheKey); ok {
		if age := time.Since(entry.fetchedAt); age <= c.cfg.CacheTTL {
			c.cacheHits.Add(1)
			return entry.articles, c.meta(SourceCache, entry.fetchedAt), nil
		}
	}

	if err := c.throttle(ctx); err != nil {
		return nil, Meta{Source: SourceEmpty}, err
	}

	articles, err := c.fetchWithRetry(ctx, keyword, maxCount)
	if err == nil {
		c.cache.set(cacheKey, articles)
		return articles, c.meta(SourceNetwork, time.Now()), nil
	}

	c.fetchErrors.Add(1)
	common.LogError(err, "news fetch failed, degrading", common.Fields{"keyword": keyword})

	// Expired cache beats nothing at all
	if entry, ok := c.cache.get(cacheKey); ok {
		c.staleFallbacks.Add(1)
		return entry.articles, c.meta(SourceStaleCache, entry.fetchedAt), nil
	}

	c.emptyResults.Add(1)
	return []model.Article{}, Meta{Source: SourceEmpty, TTLSec: c.cfg.CacheTTL.Seconds()}, nil
}

// throttle enforces the minimum spacing between network requests.
func (c *Client) throttle(ctx context.Context) error {
	if c.cfg.MinInterval <= 0 {
		return nil
	}

	c.throttleMu.Lock()
	wait := c.cfg.MinInterval - time.Since(c.lastRequest)
	c.lastRequest = time.Now().Add(wait)
	c.throttleMu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// retryableStatus reports whether an HTTP status is worth another attempt.
func retryableStatus(status int) bool {
	switch status {
	case http.StatusForbidden, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (c *Client) fetchWithRetry(ctx context.Context, keyword string, maxCount int) ([]model.Article, error) {
	var articles []model.Article

	err := common.WithRetry(ctx, func() error {
		result, err := c.fetchOnce(ctx, keyword, maxCount)
		if err != nil {
			return err
		}
		articles = result
		return nil
	}, common.RetryOptions{
		MaxAttempts:  c.cfg.MaxRetries,
		InitialDelay: 800 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return articles, nil
}

func (c *Client) fetchOnce(ctx context.Context, keyword string, maxCount int) ([]model.Article, error) {
	c.networkRequests.Add(1)

	endpoint, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return nil, &common.RetryableError{Err: fmt.Errorf("invalid endpoint: %w", err), Retryable: false}
	}
	query := endpoint.Query()
	query.Set("q", keyword)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, &common.RetryableError{Err: err, Retryable: false}
	}
	req.Header.Set("User-Agent", "signalwatch/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("%w: unexpected status %d", common.ErrFetchFailed, resp.StatusCode)
		if !retryableStatus(resp.StatusCode) {
			return nil, &common.RetryableError{Err: statusErr, Retryable: false}
		}
		return nil, statusErr
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse: %v", common.ErrFetchFailed, err)
	}

	return parseArticles(doc, maxCount), nil
}

// parseArticles extracts articles from a search result page.
func parseArticles(doc *goquery.Document, maxCount int) []model.Article {
	articles := make([]model.Article, 0, maxCount)

	doc.Find("article").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		titleSel := sel.Find("a.title").First()
		title := strings.TrimSpace(titleSel.Text())
		link, _ := titleSel.Attr("href")
		if title == "" || link == "" {
			return true
		}

		article := model.Article{
			Title:   title,
			Link:    link,
			Source:  strings.TrimSpace(sel.Find("span.source").First().Text()),
			Summary: strings.TrimSpace(sel.Find("p.summary").First().Text()),
		}
		if ts, ok := sel.Find("time").First().Attr("datetime"); ok {
			if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
				article.PublishedAt = parsed
			}
		}

		articles = append(articles, article)
		return len(articles) < maxCount
	})

	return articles
}

func (c *Client) meta(source string, fetchedAt time.Time) Meta {
	return Meta{
		Source:    source,
		FetchedAt: fetchedAt,
		AgeSec:    time.Since(fetchedAt).Seconds(),
		TTLSec:    c.cfg.CacheTTL.Seconds(),
	}
}

// GetStats snapshots the runtime counters.
func (c *Client) GetStats() Stats {
	return Stats{
		NetworkRequests: c.networkRequests.Load(),
		CacheHits:       c.cacheHits.Load(),
		StaleFallbacks:  c.staleFallbacks.Load(),
		EmptyResults:    c.emptyResults.Load(),
		FetchErrors:     c.fetchErrors.Load(),
	}
}

// CacheSize reports the number of cached keyword entries.
func (c *Client) CacheSize() int {
	return c.cache.size()
}
