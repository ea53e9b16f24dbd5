// Package ingest crawls school websites and appends the fetched pages to the
// record store.
package ingest

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/childcare-cli/internal/model"
	"github.com/sells-group/childcare-cli/internal/resilience"
	"github.com/sells-group/childcare-cli/internal/store"
	"github.com/sells-group/childcare-cli/pkg/firecrawl"
)

// PageObserver receives the number of pages stored per school.
type PageObserver func(pages int64)

// CrawlOptions bounds each site crawl.
type CrawlOptions struct {
	MaxPages     int
	MaxDepth     int
	ExcludePaths []string
	PollTimeout  time.Duration
	PollInterval time.Duration
}

// Summary counts the outcome of one ingest run.
type Summary struct {
	Schools int   `json:"schools"`
	Skipped int   `json:"skipped"`
	Crawled int   `json:"crawled"`
	Failed  int   `json:"failed"`
	Pages   int64 `json:"pages"`
}

// Ingester crawls schools that have no pages yet.
type Ingester struct {
	store   store.Store
	client  firecrawl.Client
	mapper  *PageMapper
	opts    CrawlOptions
	retry   resilience.RetryConfig
	observe PageObserver
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithRetryConfig overrides the retry policy around crawl calls.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(i *Ingester) { i.retry = cfg }
}

// WithPageObserver registers a callback for stored page counts.
func WithPageObserver(fn PageObserver) Option {
	return func(i *Ingester) { i.observe = fn }
}

// New creates an Ingester.
func New(st store.Store, client firecrawl.Client, opts CrawlOptions, options ...Option) *Ingester {
	i := &Ingester{
		store:  st,
		client: client,
		mapper: NewPageMapper(),
		opts:   opts,
		retry:  resilience.DefaultRetryConfig(),
	}
	for _, o := range options {
		o(i)
	}
	return i
}

// Run crawls each school without existing pages. A failed crawl is logged
// and skipped; only selection errors and cancellation abort the run.
func (i *Ingester) Run(ctx context.Context, schools []model.School) (Summary, error) {
	sum := Summary{Schools: len(schools)}

	crawled, err := i.store.CrawledSchoolIDs(ctx)
	if err != nil {
		return sum, eris.Wrap(err, "ingest: load crawled schools")
	}
	done := make(map[int64]struct{}, len(crawled))
	for _, id := range crawled {
		done[id] = struct{}{}
	}

	for _, school := range schools {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		log := zap.L().With(zap.Int64("school_id", school.ID), zap.String("url", school.WebsiteURL))

		if _, ok := done[school.ID]; ok || school.WebsiteURL == "" {
			sum.Skipped++
			continue
		}

		n, err := i.crawlSchool(ctx, school)
		if err != nil {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			log.Warn("ingest: crawl failed, skipping school", zap.Error(err))
			sum.Failed++
			continue
		}
		done[school.ID] = struct{}{}
		sum.Crawled++
		sum.Pages += n
		if i.observe != nil {
			i.observe(n)
		}
		log.Info("ingest: school crawled", zap.Int64("pages", n))
	}

	zap.L().Info("ingest: run complete",
		zap.Int("schools", sum.Schools),
		zap.Int("skipped", sum.Skipped),
		zap.Int("crawled", sum.Crawled),
		zap.Int("failed", sum.Failed),
		zap.Int64("pages", sum.Pages),
	)
	return sum, nil
}

func (i *Ingester) crawlSchool(ctx context.Context, school model.School) (int64, error) {
	retry := i.retry
	if retry.ShouldRetry == nil {
		retry.ShouldRetry = resilience.IsTransient
	}
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("firecrawl", "crawl", zap.Int64("school_id", school.ID))
	}

	started, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*firecrawl.CrawlResponse, error) {
		return i.client.Crawl(ctx, firecrawl.CrawlRequest{
			URL:          school.WebsiteURL,
			Limit:        i.opts.MaxPages,
			MaxDepth:     i.opts.MaxDepth,
			ExcludePaths: i.opts.ExcludePaths,
			ScrapeOptions: &firecrawl.ScrapeOptions{
				Formats:         []string{"markdown", "html"},
				OnlyMainContent: true,
			},
		})
	})
	if err != nil {
		return 0, err
	}
	if !started.Success || started.ID == "" {
		return 0, eris.Errorf("ingest: crawl of %s was not accepted", school.WebsiteURL)
	}

	var pollOpts []firecrawl.PollOption
	if i.opts.PollTimeout > 0 {
		pollOpts = append(pollOpts, firecrawl.WithPollTimeout(i.opts.PollTimeout))
	}
	if i.opts.PollInterval > 0 {
		pollOpts = append(pollOpts, firecrawl.WithPollInterval(i.opts.PollInterval))
	}
	status, err := firecrawl.PollCrawl(ctx, i.client, started.ID, pollOpts...)
	if err != nil {
		return 0, err
	}

	pages := make([]model.CrawledPage, 0, len(status.Data))
	for _, data := range status.Data {
		if data.Metadata.SourceURL == "" {
			continue
		}
		pages = append(pages, i.mapper.Map(school, data))
	}
	if len(pages) == 0 {
		return 0, nil
	}

	n, err := i.store.AppendPages(ctx, pages)
	if err != nil {
		return 0, eris.Wrapf(err, "ingest: append pages for school %d", school.ID)
	}
	return n, nil
}
