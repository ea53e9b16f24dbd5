// Package pipeline runs the extraction passes over everything the store
// selects, committing each item on its own and continuing past failures.
package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/childcare-cli/internal/cost"
	"github.com/sells-group/childcare-cli/internal/extract"
	"github.com/sells-group/childcare-cli/internal/model"
	"github.com/sells-group/childcare-cli/internal/monitoring"
	"github.com/sells-group/childcare-cli/internal/store"
)

// PageExtractor runs the per-page passes.
type PageExtractor interface {
	ExtractContact(ctx context.Context, page model.CrawledPage, key model.ExtractionKey) (*model.ExtractionRecord, error)
	ExtractChildcare(ctx context.Context, page model.CrawledPage, key model.ExtractionKey) (*model.ChildcareExtraction, error)
}

// SchoolCombiner runs the per-school combine pass.
type SchoolCombiner interface {
	Combine(ctx context.Context, schoolID int64, key model.ExtractionKey) (*model.CombinedExtraction, error)
}

// Runner drives the passes. Writers for one (model, prompt version) must not
// run concurrently in separate processes: selection and append are not
// atomic, so overlapping runs duplicate work.
type Runner struct {
	store       store.Store
	extractor   PageExtractor
	combiner    SchoolCombiner
	concurrency int
	metrics     *monitoring.Metrics
	tracker     *cost.Tracker
	alerter     *monitoring.Alerter
}

// Options configures a Runner.
type Options struct {
	// Concurrency bounds in-flight items per pass. Values below 1 run
	// items sequentially.
	Concurrency int
	Metrics     *monitoring.Metrics
	Tracker     *cost.Tracker
	Alerter     *monitoring.Alerter
}

// New creates a Runner.
func New(st store.Store, extractor PageExtractor, combiner SchoolCombiner, opts Options) *Runner {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Runner{
		store:       st,
		extractor:   extractor,
		combiner:    combiner,
		concurrency: opts.Concurrency,
		metrics:     opts.Metrics,
		tracker:     opts.Tracker,
		alerter:     opts.Alerter,
	}
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeEmpty
	outcomeFailed
)

// tally accumulates item outcomes across goroutines.
type tally struct {
	mu  sync.Mutex
	sum model.PassSummary
}

func (t *tally) add(o outcome, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch o {
	case outcomeSuccess:
		t.sum.Succeeded++
	case outcomeEmpty:
		t.sum.Empty++
	case outcomeFailed:
		t.sum.Failed++
		if extract.IsDocumentTooLong(err) {
			t.sum.TooLong++
		}
	}
}

// forEach runs fn over items with bounded concurrency. Item failures are
// counted, never propagated; only cancellation stops the loop early.
func forEach[T any](ctx context.Context, r *Runner, pass model.Pass, items []T, fn func(ctx context.Context, item T) (outcome, error)) model.PassSummary {
	t := &tally{sum: model.PassSummary{Pass: pass, Selected: len(items)}}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, item := range items {
		if gCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			start := time.Now()
			o, err := fn(gCtx, item)
			t.add(o, err)
			r.metrics.ObserveItem(pass, metricOutcome(o, err), time.Since(start))
			return nil
		})
	}
	_ = g.Wait()

	return t.sum
}

func metricOutcome(o outcome, err error) string {
	switch {
	case o == outcomeSuccess:
		return monitoring.OutcomeSuccess
	case o == outcomeEmpty:
		return monitoring.OutcomeEmpty
	case extract.IsDocumentTooLong(err):
		return monitoring.OutcomeTooLong
	default:
		return monitoring.OutcomeFailed
	}
}

// finish stamps timing and cost on a summary, logs it and raises alerts.
func (r *Runner) finish(ctx context.Context, sum model.PassSummary, start time.Time, costBefore float64) model.PassSummary {
	sum.Duration = time.Since(start)
	if r.tracker != nil {
		sum.CostUSD = r.tracker.Totals(sum.Pass).CostUSD - costBefore
	}

	zap.L().Info("pipeline: pass complete",
		zap.String("pass", string(sum.Pass)),
		zap.String("key", sum.Key.String()),
		zap.Int("selected", sum.Selected),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("empty", sum.Empty),
		zap.Int("failed", sum.Failed),
		zap.Int("too_long", sum.TooLong),
		zap.Float64("cost_usd", sum.CostUSD),
		zap.Duration("duration", sum.Duration),
	)

	if r.alerter != nil {
		if alerts := r.alerter.EvaluatePass(sum); len(alerts) > 0 {
			r.alerter.SendAlerts(ctx, alerts)
		}
	}
	return sum
}

func (r *Runner) costSoFar(pass model.Pass) float64 {
	if r.tracker == nil {
		return 0
	}
	return r.tracker.Totals(pass).CostUSD
}
