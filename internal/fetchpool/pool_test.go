// Package fetchpool contains tests for the bounded-concurrency pipeline.
package fetchpool

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatstash/chatstash/internal/clock/system"
	"github.com/chatstash/chatstash/internal/hash/sha256"
	"github.com/chatstash/chatstash/internal/metrics"
	"github.com/chatstash/chatstash/internal/pages"
	"github.com/chatstash/chatstash/internal/policy/blocklist"
	"github.com/chatstash/chatstash/internal/progress"
	"github.com/chatstash/chatstash/internal/stash"
	"github.com/chatstash/chatstash/internal/tenant"
)

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

// fakeFetcher serves canned bodies and tracks in-flight concurrency.
type fakeFetcher struct {
	mu        sync.Mutex
	bodies    map[string]string
	resolved  map[string]string
	failURLs  map[string]error
	delay     time.Duration
	inFlight  int64
	maxSeen   int64
	fetchedAt map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		bodies:    map[string]string{},
		resolved:  map[string]string{},
		failURLs:  map[string]error{},
		fetchedAt: map[string]int{},
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (stash.FetchResponse, error) {
	cur := atomic.AddInt64(&f.inFlight, 1)
	defer atomic.AddInt64(&f.inFlight, -1)
	for {
		max := atomic.LoadInt64(&f.maxSeen)
		if cur <= max || atomic.CompareAndSwapInt64(&f.maxSeen, max, cur) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return stash.FetchResponse{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchedAt[url]++
	if err, ok := f.failURLs[url]; ok {
		return stash.FetchResponse{}, err
	}
	final := url
	if r, ok := f.resolved[url]; ok {
		final = r
	}
	return stash.FetchResponse{
		URL:        final,
		StatusCode: http.StatusOK,
		Body:       []byte(f.bodies[url]),
		Duration:   time.Millisecond,
	}, nil
}

func newTestRepo(t *testing.T) *pages.Repo {
	t.Helper()
	m := tenant.NewManager(t.TempDir(), zap.NewNop())
	t.Cleanup(func() { m.Close() })
	store, err := m.Open("pool-test")
	require.NoError(t, err)
	return pages.NewRepo(store, sha256.New(), system.New())
}

func outcomeByURL(outcomes []stash.CrawlOutcome, url string) stash.CrawlOutcome {
	for _, o := range outcomes {
		if o.URL == url {
			return o
		}
	}
	return stash.CrawlOutcome{}
}

func TestCrawlPersistsAndDedupsByResolvedURL(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.bodies["http://a.test"] = "<title>A</title><p>alpha content</p>"
	fetcher.bodies["http://b.test-broken"] = ""
	fetcher.failURLs["http://b.test-broken"] = errors.New("connection refused")

	pool := New(fetcher, nil, Config{Workers: 8}, zap.NewNop())
	repo := newTestRepo(t)

	outcomes, err := pool.Crawl(
		context.Background(),
		[]string{"http://a.test", "http://b.test-broken", "http://a.test"},
		repo,
	)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	broken := outcomeByURL(outcomes, "http://b.test-broken")
	require.Equal(t, stash.OutcomeFailed, broken.Status)
	require.NotEmpty(t, broken.Reason)

	var okIDs []int64
	for _, o := range outcomes {
		if o.URL == "http://a.test" {
			require.Equal(t, stash.OutcomeOK, o.Status)
			okIDs = append(okIDs, o.PageID)
		}
	}
	require.Len(t, okIDs, 2)
	require.Equal(t, okIDs[0], okIDs[1], "duplicate URL must land on the same row")

	items, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestCrawlUsesResolvedURLForPersistence(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.bodies["http://short.test"] = "<p>redirected content</p>"
	fetcher.resolved["http://short.test"] = "http://long.test/landing"

	pool := New(fetcher, nil, Config{Workers: 2}, zap.NewNop())
	repo := newTestRepo(t)

	outcomes, err := pool.Crawl(context.Background(), []string{"http://short.test"}, repo)
	require.NoError(t, err)
	require.Equal(t, stash.OutcomeOK, outcomes[0].Status)

	page, err := repo.Get(context.Background(), "http://long.test/landing")
	require.NoError(t, err)
	require.Equal(t, "redirected content", page.Content)
}

func TestCrawlSkipsEmptyContent(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.bodies["http://empty.test"] = "<script>nothing()</script>"

	pool := New(fetcher, nil, Config{Workers: 2}, zap.NewNop())
	repo := newTestRepo(t)

	outcomes, err := pool.Crawl(context.Background(), []string{"http://empty.test"}, repo)
	require.NoError(t, err)
	require.Equal(t, stash.OutcomeSkipped, outcomes[0].Status)

	items, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestCrawlFailureDoesNotBlockSiblings(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	urls := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		url := fmt.Sprintf("http://site%d.test", i)
		urls = append(urls, url)
		if i == 7 {
			fetcher.failURLs[url] = errors.New("always broken")
			continue
		}
		fetcher.bodies[url] = fmt.Sprintf("<p>content %d</p>", i)
	}

	pool := New(fetcher, nil, Config{Workers: 4}, zap.NewNop())
	repo := newTestRepo(t)

	outcomes, err := pool.Crawl(context.Background(), urls, repo)
	require.NoError(t, err)
	require.Len(t, outcomes, 20)

	okCount := 0
	for _, o := range outcomes {
		if o.Status == stash.OutcomeOK {
			okCount++
		}
	}
	require.Equal(t, 19, okCount)
	require.Equal(t, stash.OutcomeFailed, outcomeByURL(outcomes, "http://site7.test").Status)
}

func TestConcurrencyBounded(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.delay = 20 * time.Millisecond
	urls := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		url := fmt.Sprintf("http://bound%d.test", i)
		urls = append(urls, url)
		fetcher.bodies[url] = "<p>x</p>"
	}

	const workers = 3
	pool := New(fetcher, nil, Config{Workers: workers}, zap.NewNop())

	items, err := pool.Preview(context.Background(), urls, "")
	require.NoError(t, err)
	require.Len(t, items, 40)
	require.LessOrEqual(t, atomic.LoadInt64(&fetcher.maxSeen), int64(workers))
}

func TestPreviewFiltersByQuerySubstring(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.bodies["http://match.test"] = "<p>all about Golang concurrency</p>"
	fetcher.bodies["http://miss.test"] = "<p>unrelated topic</p>"
	fetcher.bodies["http://empty.test"] = "<style>.x{}</style>"

	pool := New(fetcher, nil, Config{Workers: 4}, zap.NewNop())

	items, err := pool.Preview(
		context.Background(),
		[]string{"http://match.test", "http://miss.test", "http://empty.test"},
		"golang",
	)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "http://match.test", items[0].URL)
}

func TestPreviewTruncatesExcerpt(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	long := ""
	for i := 0; i < 100; i++ {
		long += "lengthy sentence fragment "
	}
	fetcher.bodies["http://long.test"] = "<p>" + long + "</p>"

	pool := New(fetcher, nil, Config{Workers: 1, ExcerptLen: 50}, zap.NewNop())
	items, err := pool.Preview(context.Background(), []string{"http://long.test"}, "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.LessOrEqual(t, len([]rune(items[0].Excerpt)), 50)
}

func TestCrawlRejectsBlockedHosts(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.bodies["http://ok.test"] = "<p>fine</p>"
	fetcher.bodies["http://bad.internal"] = "<p>never fetched</p>"

	pool := New(fetcher, nil, Config{Workers: 2}, zap.NewNop(),
		WithBlocklist(blocklist.New([]string{"*.internal"})))
	repo := newTestRepo(t)

	outcomes, err := pool.Crawl(
		context.Background(),
		[]string{"http://ok.test", "http://bad.internal"},
		repo,
	)
	require.NoError(t, err)

	blocked := outcomeByURL(outcomes, "http://bad.internal")
	require.Equal(t, stash.OutcomeFailed, blocked.Status)
	require.Contains(t, blocked.Reason, "blocked")
	require.Equal(t, stash.OutcomeOK, outcomeByURL(outcomes, "http://ok.test").Status)

	// The blocked URL never reached the fetcher.
	require.NotContains(t, fetcher.fetchedAt, "http://bad.internal")
}

type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *captureEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *captureEmitter) byStage(stage progress.Stage) []progress.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := []progress.Event{}
	for _, evt := range e.events {
		if evt.Stage == stage {
			out = append(out, evt)
		}
	}
	return out
}

func TestCrawlEmitsProgressEvents(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.bodies["http://a.test"] = "<p>alpha</p>"
	fetcher.failURLs["http://down.test"] = errors.New("refused")

	emitter := &captureEmitter{}
	pool := New(fetcher, nil, Config{Workers: 2}, zap.NewNop(), WithProgress(emitter))
	repo := newTestRepo(t)

	_, err := pool.Crawl(context.Background(), []string{"http://a.test", "http://down.test"}, repo)
	require.NoError(t, err)

	starts := emitter.byStage(progress.StageBatchStart)
	require.Len(t, starts, 1)
	require.Equal(t, "pool-test", starts[0].Tenant)
	require.NotEmpty(t, starts[0].BatchID)

	require.Len(t, emitter.byStage(progress.StageBatchDone), 1)
	require.Len(t, emitter.byStage(progress.StageFetchDone), 1)
	require.Len(t, emitter.byStage(progress.StageFetchError), 1)

	// Every event belongs to the same batch.
	for _, evt := range emitter.byStage(progress.StageFetchDone) {
		require.Equal(t, starts[0].BatchID, evt.BatchID)
	}
}

func TestBatchValidation(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	pool := New(fetcher, nil, Config{Workers: 2, MaxBatch: 5}, zap.NewNop())
	repo := newTestRepo(t)

	_, err := pool.Crawl(context.Background(), nil, repo)
	require.ErrorIs(t, err, ErrEmptyBatch)

	urls := make([]string, 6)
	for i := range urls {
		urls[i] = fmt.Sprintf("http://v%d.test", i)
	}
	_, err = pool.Crawl(context.Background(), urls, repo)
	require.ErrorIs(t, err, ErrTooManyURLs)

	// Nothing may have been dispatched.
	require.Empty(t, fetcher.fetchedAt)
}
