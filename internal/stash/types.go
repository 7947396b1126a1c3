// Package stash defines core types shared across subsystems.
package stash

import "time"

// Outcome classifies the result of a single crawl attempt.
type Outcome string

// Outcome values returned per URL by the fetch pool.
const (
	OutcomeOK      Outcome = "ok"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Page is one stored row per unique URL within a tenant.
type Page struct {
	ID          int64      `json:"id"`
	URL         string     `json:"url"`
	Title       *string    `json:"title,omitempty"`
	Content     string     `json:"content"`
	StatusCode  *int       `json:"status_code,omitempty"`
	ContentHash string     `json:"content_hash"`
	FetchedAt   *time.Time `json:"fetched_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CrawlOutcome is the transient per-URL result of a crawl batch.
type CrawlOutcome struct {
	URL         string  `json:"url"`
	Status      Outcome `json:"status"`
	PageID      int64   `json:"page_id,omitempty"`
	ContentHash string  `json:"content_hash,omitempty"`
	Reason      string  `json:"reason,omitempty"`
}

// PreviewItem is a fetched-but-not-persisted page summary.
type PreviewItem struct {
	URL        string  `json:"url"`
	Title      *string `json:"title,omitempty"`
	Excerpt    string  `json:"excerpt"`
	StatusCode int     `json:"status_code"`
}

// AggregatedResult is one job listing normalized into a common shape.
type AggregatedResult struct {
	Title       string `json:"title"`
	Source      string `json:"source"`
	Location    string `json:"location,omitempty"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// FetchResponse is what a Fetcher returns for one URL.
type FetchResponse struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}
