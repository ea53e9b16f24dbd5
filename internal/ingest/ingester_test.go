package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/childcare-cli/internal/model"
	"github.com/sells-group/childcare-cli/internal/resilience"
	"github.com/sells-group/childcare-cli/internal/store"
	"github.com/sells-group/childcare-cli/pkg/firecrawl"
)

// fakeCrawler completes every crawl on the first status poll.
type fakeCrawler struct {
	mu       sync.Mutex
	pages    map[string][]firecrawl.PageData
	failures map[string][]error
	requests []firecrawl.CrawlRequest
}

func (f *fakeCrawler) Crawl(_ context.Context, req firecrawl.CrawlRequest) (*firecrawl.CrawlResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if errs := f.failures[req.URL]; len(errs) > 0 {
		f.failures[req.URL] = errs[1:]
		return nil, errs[0]
	}
	return &firecrawl.CrawlResponse{Success: true, ID: req.URL}, nil
}

func (f *fakeCrawler) GetCrawlStatus(_ context.Context, id string) (*firecrawl.CrawlStatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data := f.pages[id]
	return &firecrawl.CrawlStatusResponse{Status: "completed", Total: len(data), Completed: len(data), Data: data}, nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func TestIngester_Run(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	_, err := st.AppendPages(ctx, []model.CrawledPage{{SchoolID: 1, URL: "https://done.example/", StatusCode: 200}})
	require.NoError(t, err)

	crawler := &fakeCrawler{
		pages: map[string][]firecrawl.PageData{
			"https://agassiz.example/": {
				{Markdown: "# Home", Metadata: firecrawl.PageMetadata{SourceURL: "https://agassiz.example/", StatusCode: 200}},
				{Markdown: "After care", Metadata: firecrawl.PageMetadata{SourceURL: "https://agassiz.example/care", StatusCode: 200}},
				{Markdown: "orphan"},
			},
		},
		failures: map[string][]error{
			"https://broken.example/": {&firecrawl.APIError{StatusCode: 402, Body: "payment required"}},
		},
	}

	var observed []int64
	ing := New(st, crawler, CrawlOptions{MaxPages: 100, ExcludePaths: []string{"/calendar/*"}},
		WithRetryConfig(fastRetry()),
		WithPageObserver(func(n int64) { observed = append(observed, n) }),
	)

	sum, err := ing.Run(ctx, []model.School{
		{ID: 1, WebsiteURL: "https://done.example/"},
		{ID: 2, Name: "Agassiz", Type: "Elementary School", WebsiteURL: "https://agassiz.example/"},
		{ID: 3, WebsiteURL: ""},
		{ID: 4, WebsiteURL: "https://broken.example/"},
	})
	require.NoError(t, err)

	assert.Equal(t, Summary{Schools: 4, Skipped: 2, Crawled: 1, Failed: 1, Pages: 2}, sum)
	assert.Equal(t, []int64{2}, observed)

	// A 402 is not retried.
	require.Len(t, crawler.requests, 2)
	req := crawler.requests[0]
	assert.Equal(t, 100, req.Limit)
	assert.Equal(t, []string{"/calendar/*"}, req.ExcludePaths)
	assert.Equal(t, []string{"markdown", "html"}, req.ScrapeOptions.Formats)
	assert.True(t, req.ScrapeOptions.OnlyMainContent)

	ids, err := st.CrawledSchoolIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, ids)

	pages, err := st.PendingPages(ctx, store.PendingFilter{
		Pass:      model.PassContact,
		Target:    model.ExtractionKey{Model: "m", PromptVersion: "v3"},
		SchoolIDs: []int64{2},
	})
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "Agassiz", pages[0].SchoolName)
}

func TestIngester_RetriesTransient(t *testing.T) {
	ctx := context.Background()
	crawler := &fakeCrawler{
		pages: map[string][]firecrawl.PageData{
			"https://a.example/": {{Markdown: "# A", Metadata: firecrawl.PageMetadata{SourceURL: "https://a.example/", StatusCode: 200}}},
		},
		failures: map[string][]error{
			"https://a.example/": {&firecrawl.APIError{StatusCode: 503, Body: "busy"}},
		},
	}
	ing := New(newTestStore(t), crawler, CrawlOptions{}, WithRetryConfig(fastRetry()))

	sum, err := ing.Run(ctx, []model.School{{ID: 9, WebsiteURL: "https://a.example/"}})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Crawled)
	assert.EqualValues(t, 1, sum.Pages)
	assert.Len(t, crawler.requests, 2)
}

func TestIngester_SkipsDuplicateSchoolsInInput(t *testing.T) {
	crawler := &fakeCrawler{pages: map[string][]firecrawl.PageData{
		"https://a.example/": {{Markdown: "# A", Metadata: firecrawl.PageMetadata{SourceURL: "https://a.example/", StatusCode: 200}}},
	}}
	ing := New(newTestStore(t), crawler, CrawlOptions{}, WithRetryConfig(fastRetry()))

	sum, err := ing.Run(context.Background(), []model.School{
		{ID: 9, WebsiteURL: "https://a.example/"},
		{ID: 9, WebsiteURL: "https://a.example/"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Crawled)
	assert.Equal(t, 1, sum.Skipped)
}

func TestIngester_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	st := newTestStore(t)
	cancel()

	_, err := New(st, &fakeCrawler{}, CrawlOptions{}).Run(ctx, []model.School{{ID: 1, WebsiteURL: "https://a.example/"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
