// Package fetchpool runs bounded-concurrency URL batches through the
// fetch → extract → persist pipeline.
//
// Exactly Workers fetches are in flight at any time regardless of batch
// size. A failure on one URL never aborts its siblings; every URL reports
// its own outcome and callers correlate by URL, not by position.
package fetchpool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chatstash/chatstash/internal/extract"
	"github.com/chatstash/chatstash/internal/id/uuid"
	"github.com/chatstash/chatstash/internal/metrics"
	"github.com/chatstash/chatstash/internal/pages"
	"github.com/chatstash/chatstash/internal/policy/blocklist"
	"github.com/chatstash/chatstash/internal/policy/ratelimit"
	"github.com/chatstash/chatstash/internal/progress"
	"github.com/chatstash/chatstash/internal/stash"
)

// Batch validation errors, surfaced before any fetch is dispatched.
var (
	ErrEmptyBatch  = errors.New("url batch is empty")
	ErrTooManyURLs = errors.New("url batch exceeds maximum")
)

// ErrHostBlocked marks URLs rejected by the configured blocklist.
var ErrHostBlocked = errors.New("host is blocked")

// Config controls pool behavior.
type Config struct {
	Workers       int
	MaxBatch      int
	FetchTimeout  time.Duration
	MaxContentLen int
	ExcerptLen    int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = 1000
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.MaxContentLen <= 0 {
		c.MaxContentLen = 20000
	}
	if c.ExcerptLen <= 0 {
		c.ExcerptLen = 300
	}
	return c
}

// Option customizes optional pool collaborators.
type Option func(*Pool)

// WithBlocklist rejects blocked hosts before any request is made.
func WithBlocklist(bl *blocklist.Blocklist) Option {
	return func(p *Pool) { p.blocklist = bl }
}

// WithProgress emits lifecycle events for every batch and fetch.
func WithProgress(emitter progress.Emitter) Option {
	return func(p *Pool) { p.emitter = emitter }
}

// Pool schedules fetches over a fixed set of workers pulling from a shared
// queue.
type Pool struct {
	fetcher   stash.Fetcher
	limiter   *ratelimit.Limiter
	blocklist *blocklist.Blocklist
	emitter   progress.Emitter
	ids       *uuid.Generator
	logger    *zap.Logger
	cfg       Config
}

// New constructs a Pool. limiter may be nil to disable politeness limits.
func New(fetcher stash.Fetcher, limiter *ratelimit.Limiter, cfg Config, logger *zap.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		fetcher: fetcher,
		limiter: limiter,
		ids:     uuid.New(),
		logger:  logger,
		cfg:     cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// batchScope identifies one running batch for progress reporting.
type batchScope struct {
	id     string
	tenant string
}

// Crawl fetches every URL and persists extracted content through repo.
// Output order is unspecified; correlate by URL.
func (p *Pool) Crawl(ctx context.Context, urls []string, repo *pages.Repo) ([]stash.CrawlOutcome, error) {
	outcomes := make([]stash.CrawlOutcome, 0, len(urls))
	var mu sync.Mutex

	err := p.forEach(ctx, urls, repo.TenantID(), func(ctx context.Context, scope batchScope, url string) {
		outcome := p.crawlOne(ctx, scope, url, repo)
		metrics.ObserveCrawlOutcome(string(outcome.Status))
		mu.Lock()
		outcomes = append(outcomes, outcome)
		mu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	return outcomes, nil
}

// Preview fetches every URL without persisting anything. Pages whose
// extracted text is empty, or does not contain the optional query
// substring, are dropped.
func (p *Pool) Preview(ctx context.Context, urls []string, query string) ([]stash.PreviewItem, error) {
	items := make([]stash.PreviewItem, 0, len(urls))
	var mu sync.Mutex

	err := p.forEach(ctx, urls, "", func(ctx context.Context, scope batchScope, url string) {
		item := p.previewOne(ctx, scope, url, query)
		if item == nil {
			metrics.ObserveCrawlOutcome("dropped")
			return
		}
		metrics.ObserveCrawlOutcome(string(stash.OutcomeOK))
		mu.Lock()
		items = append(items, *item)
		mu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// forEach validates the batch, then runs handle for every URL across a
// fixed worker set draining a shared channel.
func (p *Pool) forEach(ctx context.Context, urls []string, tenant string, handle func(ctx context.Context, scope batchScope, url string)) error {
	if len(urls) == 0 {
		return ErrEmptyBatch
	}
	if len(urls) > p.cfg.MaxBatch {
		return fmt.Errorf("%w: %d urls, limit %d", ErrTooManyURLs, len(urls), p.cfg.MaxBatch)
	}

	batchID, err := p.ids.NewID()
	if err != nil {
		// Crypto-rand exhaustion is effectively unreachable; fall back to a
		// timestamp id rather than failing the batch.
		batchID = fmt.Sprintf("batch-%d", time.Now().UnixNano())
	}
	scope := batchScope{id: batchID, tenant: tenant}
	start := time.Now()
	p.emit(progress.Event{
		BatchID: scope.id,
		TS:      start.UTC(),
		Stage:   progress.StageBatchStart,
		Tenant:  tenant,
		Note:    fmt.Sprintf("%d urls", len(urls)),
	})

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for url := range jobs {
				metrics.IncActiveWorkers()
				handle(ctx, scope, url)
				metrics.DecActiveWorkers()
			}
		}()
	}

	for _, url := range urls {
		jobs <- url
	}
	close(jobs)
	wg.Wait()

	p.emit(progress.Event{
		BatchID: scope.id,
		TS:      time.Now().UTC(),
		Stage:   progress.StageBatchDone,
		Tenant:  tenant,
		Dur:     time.Since(start),
	})
	return nil
}

func (p *Pool) emit(evt progress.Event) {
	if p.emitter != nil {
		p.emitter.Emit(evt)
	}
}

// fetchExtract runs the shared fetch → extract steps with a per-URL
// timeout and a panic boundary so one bad URL cannot take the worker down.
func (p *Pool) fetchExtract(ctx context.Context, scope batchScope, url string) (resp stash.FetchResponse, res extract.Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("fetch panic recovered", zap.String("url", url), zap.Any("panic", rec))
			err = fmt.Errorf("fetch panicked: %v", rec)
		}
	}()

	if p.blocklist.BlockedURL(url) {
		p.emit(progress.Event{
			BatchID: scope.id, TS: time.Now().UTC(), Stage: progress.StageFetchError,
			Tenant: scope.tenant, URL: url, Note: ErrHostBlocked.Error(),
		})
		return stash.FetchResponse{}, extract.Result{}, fmt.Errorf("%w: %s", ErrHostBlocked, url)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()

	if p.limiter != nil {
		if err := p.limiter.Wait(fetchCtx, url); err != nil {
			return stash.FetchResponse{}, extract.Result{}, err
		}
	}

	p.emit(progress.Event{
		BatchID: scope.id, TS: time.Now().UTC(), Stage: progress.StageFetchStart,
		Tenant: scope.tenant, URL: url,
	})

	start := time.Now()
	resp, err = p.fetcher.Fetch(fetchCtx, url)
	elapsed := time.Since(start)
	metrics.ObserveFetchDuration(elapsed)
	if err != nil {
		p.emit(progress.Event{
			BatchID: scope.id, TS: time.Now().UTC(), Stage: progress.StageFetchError,
			Tenant: scope.tenant, URL: url, Dur: elapsed, Note: err.Error(),
		})
		return stash.FetchResponse{}, extract.Result{}, err
	}

	p.emit(progress.Event{
		BatchID: scope.id, TS: time.Now().UTC(), Stage: progress.StageFetchDone,
		Tenant: scope.tenant, URL: resp.URL, Bytes: int64(len(resp.Body)),
		StatusClass: progress.ClassifyStatus(resp.StatusCode), Dur: elapsed,
	})
	res = extract.Page(string(resp.Body), p.cfg.MaxContentLen)
	return resp, res, nil
}

func (p *Pool) crawlOne(ctx context.Context, scope batchScope, url string, repo *pages.Repo) stash.CrawlOutcome {
	resp, res, err := p.fetchExtract(ctx, scope, url)
	if err != nil {
		p.logger.Debug("crawl fetch failed", zap.String("url", url), zap.Error(err))
		return stash.CrawlOutcome{URL: url, Status: stash.OutcomeFailed, Reason: err.Error()}
	}
	if res.Text == "" {
		return stash.CrawlOutcome{URL: url, Status: stash.OutcomeSkipped, Reason: "no extractable content"}
	}

	// Persist under the resolved URL so redirect chains collapse onto one row.
	status := resp.StatusCode
	saved, err := repo.Upsert(ctx, resp.URL, res.Title, res.Text, &status)
	if err != nil {
		p.logger.Error("crawl persist failed", zap.String("url", resp.URL), zap.Error(err))
		return stash.CrawlOutcome{URL: url, Status: stash.OutcomeFailed, Reason: err.Error()}
	}
	return stash.CrawlOutcome{
		URL:         url,
		Status:      stash.OutcomeOK,
		PageID:      saved.ID,
		ContentHash: saved.ContentHash,
	}
}

func (p *Pool) previewOne(ctx context.Context, scope batchScope, url, query string) *stash.PreviewItem {
	resp, res, err := p.fetchExtract(ctx, scope, url)
	if err != nil {
		p.logger.Debug("preview fetch failed", zap.String("url", url), zap.Error(err))
		return nil
	}
	if res.Text == "" {
		return nil
	}
	if query != "" && !strings.Contains(strings.ToLower(res.Text), strings.ToLower(query)) {
		return nil
	}
	return &stash.PreviewItem{
		URL:        resp.URL,
		Title:      res.Title,
		Excerpt:    extract.Excerpt(res.Text, p.cfg.ExcerptLen),
		StatusCode: resp.StatusCode,
	}
}
