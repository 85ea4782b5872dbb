package github

import (
	"fmt"
	"time"
)

type Repository struct {
	FullName string    `json:"full_name"`
	PushedAt time.Time `json:"pushed_at"`
}

// SearchItem is one code-search result row. The SHA is content-addressable
// and serves as the dedup identifier across crawl cycles.
type SearchItem struct {
	SHA        string     `json:"sha"`
	Path       string     `json:"path"`
	HTMLURL    string     `json:"html_url"`
	Repository Repository `json:"repository"`
}

// SearchResult aggregates the walked pages of one query. Items may be a
// partial set when a page exhausted its retry budget; TotalCount is the
// service-advertised total, which can exceed what is retrievable.
type SearchResult struct {
	TotalCount int
	Items      []SearchItem
}

type searchResponse struct {
	TotalCount int          `json:"total_count"`
	Items      []SearchItem `json:"items"`
}

type contentResponse struct {
	Encoding    string `json:"encoding"`
	Content     string `json:"content"`
	DownloadURL string `json:"download_url"`
}

// ThrottleError marks a 403/429 response. RetryAfter carries the service's
// Retry-After hint when present, zero otherwise.
type ThrottleError struct {
	StatusCode int
	RetryAfter time.Duration
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled by search service (status %d, retry after %s)", e.StatusCode, e.RetryAfter)
}
