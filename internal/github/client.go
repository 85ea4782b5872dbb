// Package github is the typed adapter for the GitHub code-search and content
// APIs. Every request consults the shared rate-limit Coordinator before
// firing and rotates to the next pool credential.
package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"patscan/internal/clock"
	"patscan/internal/ratelimit"
)

const (
	defaultBaseURL = "https://api.github.com"
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) PatScan/1.0"

	perPage = 100
	// The search API refuses to page past the first 1000 results regardless
	// of total_count. The deep-scan orchestrator works around this by
	// narrowing the time range per query.
	resultWindowCap = 1000

	defaultMaxPages          = 10
	defaultRetriesPerPage    = 5
	defaultThrottleRetryWait = 60 * time.Second
)

type ClientConfig struct {
	BaseURL           string
	MaxPages          int
	MaxRetriesPerPage int
}

type Client struct {
	http    *http.Client
	pool    *TokenPool
	limiter *ratelimit.Coordinator
	clock   clock.Clock

	baseURL           string
	maxPages          int
	maxRetriesPerPage int
}

func NewClient(hc *http.Client, pool *TokenPool, limiter *ratelimit.Coordinator, clk clock.Clock, cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	if cfg.MaxRetriesPerPage <= 0 {
		cfg.MaxRetriesPerPage = defaultRetriesPerPage
	}
	return &Client{
		http:              hc,
		pool:              pool,
		limiter:           limiter,
		clock:             clk,
		baseURL:           strings.TrimRight(cfg.BaseURL, "/"),
		maxPages:          cfg.MaxPages,
		maxRetriesPerPage: cfg.MaxRetriesPerPage,
	}
}

// Search walks result pages for one query until a page comes back empty, the
// advertised total (capped at the result window) is reached, or the page cap
// hits. A page that exhausts its retry budget truncates the search early:
// already-fetched pages are still returned, so callers must not assume
// completeness.
func (c *Client) Search(ctx context.Context, query string) (*SearchResult, error) {
	var all []SearchItem
	totalCount := 0
	expected := resultWindowCap

	for page := 1; page <= c.maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return &SearchResult{TotalCount: totalCount, Items: all}, err
		}

		resp, err := c.searchPage(ctx, query, page)
		if err != nil {
			slog.WarnContext(ctx, "search page failed, returning partial results",
				"page", page, "fetched", len(all), "error", err)
			break
		}

		if page == 1 {
			totalCount = resp.TotalCount
			expected = min(totalCount, resultWindowCap)
		}
		if len(resp.Items) == 0 {
			break
		}
		all = append(all, resp.Items...)
		if len(all) >= expected {
			break
		}

		// Randomized inter-page delay: a fixed cadence is an easy bot signature.
		c.clock.Sleep(time.Duration(1000+rand.Intn(1500)) * time.Millisecond)
	}

	slog.InfoContext(ctx, "search complete", "query", truncate(query, 60), "hits", len(all), "total_count", totalCount)
	return &SearchResult{TotalCount: totalCount, Items: all}, nil
}

// searchPage fetches one page with a bounded retry budget. Throttling does
// not consume the budget: the shared cooldown clears and the same page is
// retried, since advancing would silently drop results.
func (c *Client) searchPage(ctx context.Context, query string, page int) (*searchResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetriesPerPage; {
		if err := c.limiter.AwaitClear(ctx); err != nil {
			return nil, err
		}

		resp, err := c.doSearch(ctx, query, page)
		if err == nil {
			c.limiter.RecordSuccess()
			return resp, nil
		}

		var throttle *ThrottleError
		if errors.As(err, &throttle) {
			wait := c.limiter.RecordViolation(throttle.RetryAfter)
			slog.WarnContext(ctx, "search throttled", "page", page, "status", throttle.StatusCode, "cooldown", wait.String())
			continue
		}

		lastErr = err
		if attempt == c.maxRetriesPerPage {
			break
		}
		backoff := min(time.Duration(1<<attempt)*time.Second, 30*time.Second)
		backoff += time.Duration(rand.Intn(500)) * time.Millisecond
		slog.WarnContext(ctx, "search attempt failed, backing off", "page", page, "attempt", attempt, "backoff", backoff.String(), "error", err)
		c.clock.Sleep(backoff)
		attempt++
	}
	return nil, fmt.Errorf("page %d: retry budget exhausted: %w", page, lastErr)
}

func (c *Client) doSearch(ctx context.Context, query string, page int) (*searchResponse, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("per_page", strconv.Itoa(perPage))
	params.Set("page", strconv.Itoa(page))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search/code?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
		if n, err := strconv.Atoi(remaining); err == nil && n < 5 {
			slog.WarnContext(ctx, "search quota nearly exhausted", "remaining", n)
		}
	}

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return nil, &ThrottleError{StatusCode: resp.StatusCode, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("search service error: status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected search status %d", resp.StatusCode)
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		// Malformed payloads fail closed: an empty page ends pagination
		// instead of surfacing a decode error deep in the crawl flow.
		slog.WarnContext(ctx, "unparseable search response, treating as empty", "page", page, "error", err)
		return &searchResponse{}, nil
	}
	return &decoded, nil
}

// FileContent fetches and decodes the raw content behind a search hit. The
// contents endpoint returns either inline base64 or a download URL; both
// paths decode best-effort, never failing the hit over undecodable bytes.
func (c *Client) FileContent(ctx context.Context, item SearchItem) (string, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/contents/%s", c.baseURL, item.Repository.FullName, item.Path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("content request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("content fetch: status %d", resp.StatusCode)
	}

	var decoded contentResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("content decode: %w", err)
	}

	// Inline base64 saves a second round trip when present.
	if decoded.Encoding == "base64" && decoded.Content != "" {
		raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(decoded.Content, "\n", ""))
		if err != nil {
			return "", fmt.Errorf("content base64: %w", err)
		}
		return strings.ToValidUTF8(string(raw), ""), nil
	}

	if decoded.DownloadURL == "" {
		return "", errors.New("content response carried neither inline content nor a download url")
	}

	dlReq, err := http.NewRequestWithContext(ctx, http.MethodGet, decoded.DownloadURL, nil)
	if err != nil {
		return "", err
	}
	dlResp, err := c.http.Do(dlReq)
	if err != nil {
		return "", fmt.Errorf("content download: %w", err)
	}
	defer dlResp.Body.Close()

	body, err := io.ReadAll(dlResp.Body)
	if err != nil {
		return "", fmt.Errorf("content read: %w", err)
	}
	return strings.ToValidUTF8(string(body), ""), nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", userAgent)
	if tk, ok := c.pool.Next(); ok {
		req.Header.Set("Authorization", "token "+tk)
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return defaultThrottleRetryWait
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return defaultThrottleRetryWait
	}
	return time.Duration(secs) * time.Second
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
