package jobsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chatstash/chatstash/internal/stash"
)

// Source is one independent upstream job board.
type Source interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]stash.AggregatedResult, error)
}

const sourceTimeout = 10 * time.Second

func newSourceClient() *http.Client {
	return &http.Client{Timeout: sourceTimeout}
}

func getJSON(ctx context.Context, client *http.Client, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("source request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("source status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode source payload: %w", err)
	}
	return nil
}

// RemotiveSource queries the Remotive remote-jobs API.
type RemotiveSource struct {
	BaseURL string
	client  *http.Client
}

// NewRemotiveSource builds the Remotive adapter. baseURL is overridable
// for tests; empty picks the public endpoint.
func NewRemotiveSource(baseURL string) *RemotiveSource {
	if baseURL == "" {
		baseURL = "https://remotive.com"
	}
	return &RemotiveSource{BaseURL: baseURL, client: newSourceClient()}
}

// Name implements Source.
func (s *RemotiveSource) Name() string { return "remotive" }

// Search implements Source.
func (s *RemotiveSource) Search(ctx context.Context, query string, limit int) ([]stash.AggregatedResult, error) {
	endpoint := s.BaseURL + "/api/remote-jobs?search=" + url.QueryEscape(query) +
		"&limit=" + strconv.Itoa(limit)

	var payload struct {
		Jobs []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			CompanyName string `json:"company_name"`
			Location    string `json:"candidate_required_location"`
			Description string `json:"description"`
		} `json:"jobs"`
	}
	if err := getJSON(ctx, s.client, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("remotive: %w", err)
	}

	items := make([]stash.AggregatedResult, 0, len(payload.Jobs))
	for _, job := range payload.Jobs {
		items = append(items, stash.AggregatedResult{
			Title:       strings.TrimSpace(job.Title),
			Source:      s.Name(),
			Location:    job.Location,
			URL:         job.URL,
			Description: truncateDescription(job.Description),
		})
	}
	return items, nil
}

// ArbeitnowSource queries the Arbeitnow job board API. The API has no
// server-side search, so filtering happens here on title and description.
type ArbeitnowSource struct {
	BaseURL string
	client  *http.Client
}

// NewArbeitnowSource builds the Arbeitnow adapter.
func NewArbeitnowSource(baseURL string) *ArbeitnowSource {
	if baseURL == "" {
		baseURL = "https://www.arbeitnow.com"
	}
	return &ArbeitnowSource{BaseURL: baseURL, client: newSourceClient()}
}

// Name implements Source.
func (s *ArbeitnowSource) Name() string { return "arbeitnow" }

// Search implements Source.
func (s *ArbeitnowSource) Search(ctx context.Context, query string, limit int) ([]stash.AggregatedResult, error) {
	var payload struct {
		Data []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Location    string `json:"location"`
			Description string `json:"description"`
		} `json:"data"`
	}
	if err := getJSON(ctx, s.client, s.BaseURL+"/api/job-board-api", &payload); err != nil {
		return nil, fmt.Errorf("arbeitnow: %w", err)
	}

	needle := strings.ToLower(query)
	items := make([]stash.AggregatedResult, 0, limit)
	for _, job := range payload.Data {
		if needle != "" &&
			!strings.Contains(strings.ToLower(job.Title), needle) &&
			!strings.Contains(strings.ToLower(job.Description), needle) {
			continue
		}
		items = append(items, stash.AggregatedResult{
			Title:       strings.TrimSpace(job.Title),
			Source:      s.Name(),
			Location:    job.Location,
			URL:         job.URL,
			Description: truncateDescription(job.Description),
		})
		if len(items) >= limit {
			break
		}
	}
	return items, nil
}

// JobicySource queries the Jobicy remote-jobs API.
type JobicySource struct {
	BaseURL string
	client  *http.Client
}

// NewJobicySource builds the Jobicy adapter.
func NewJobicySource(baseURL string) *JobicySource {
	if baseURL == "" {
		baseURL = "https://jobicy.com"
	}
	return &JobicySource{BaseURL: baseURL, client: newSourceClient()}
}

// Name implements Source.
func (s *JobicySource) Name() string { return "jobicy" }

// Search implements Source.
func (s *JobicySource) Search(ctx context.Context, query string, limit int) ([]stash.AggregatedResult, error) {
	endpoint := s.BaseURL + "/api/v2/remote-jobs?count=" + strconv.Itoa(limit) +
		"&tag=" + url.QueryEscape(query)

	var payload struct {
		Jobs []struct {
			Title       string `json:"jobTitle"`
			URL         string `json:"url"`
			Geo         string `json:"jobGeo"`
			Description string `json:"jobExcerpt"`
		} `json:"jobs"`
	}
	if err := getJSON(ctx, s.client, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("jobicy: %w", err)
	}

	items := make([]stash.AggregatedResult, 0, len(payload.Jobs))
	for _, job := range payload.Jobs {
		items = append(items, stash.AggregatedResult{
			Title:       strings.TrimSpace(job.Title),
			Source:      s.Name(),
			Location:    job.Geo,
			URL:         job.URL,
			Description: truncateDescription(job.Description),
		})
	}
	return items, nil
}

const maxDescriptionLen = 500

func truncateDescription(s string) string {
	s = strings.TrimSpace(s)
	if runes := []rune(s); len(runes) > maxDescriptionLen {
		return string(runes[:maxDescriptionLen])
	}
	return s
}
