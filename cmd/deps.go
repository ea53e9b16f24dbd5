package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/sells-group/childcare-cli/internal/config"
	"github.com/sells-group/childcare-cli/internal/cost"
	"github.com/sells-group/childcare-cli/internal/extract"
	"github.com/sells-group/childcare-cli/internal/model"
	"github.com/sells-group/childcare-cli/internal/monitoring"
	"github.com/sells-group/childcare-cli/internal/pipeline"
	"github.com/sells-group/childcare-cli/internal/reconcile"
	"github.com/sells-group/childcare-cli/internal/resilience"
	"github.com/sells-group/childcare-cli/internal/store"
	anthropicpkg "github.com/sells-group/childcare-cli/pkg/anthropic"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore validates config for mode, opens the store and applies the schema.
func openStore(ctx context.Context, mode string) (store.Store, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// costRates starts from the default rates and applies configured overrides.
func costRates(p config.PricingConfig) cost.Rates {
	rates := cost.DefaultRates()
	for name, mp := range p.Anthropic {
		rates.Anthropic[name] = cost.ModelRate{
			Input:         mp.Input,
			Output:        mp.Output,
			CacheWriteMul: mp.CacheWriteMul,
			CacheReadMul:  mp.CacheReadMul,
		}
	}
	if p.Firecrawl.CreditsIncluded > 0 {
		rates.Firecrawl = cost.FirecrawlRate{
			PlanMonthly:     p.Firecrawl.PlanMonthly,
			CreditsIncluded: p.Firecrawl.CreditsIncluded,
		}
	}
	return rates
}

// extractEnv holds everything the extraction commands share.
type extractEnv struct {
	Store   store.Store
	Engine  *extract.Engine
	Tracker *cost.Tracker
	Metrics *monitoring.Metrics
	Runner  *pipeline.Runner
}

func (e *extractEnv) Close() {
	e.Tracker.Log()
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initExtract builds the store, model client, engine and batch runner.
// Callers should defer env.Close().
func initExtract(ctx context.Context, cmd *cobra.Command) (*extractEnv, error) {
	st, err := openStore(ctx, config.ModeExtract)
	if err != nil {
		return nil, err
	}

	tracker := cost.NewTracker(cost.NewCalculator(costRates(cfg.Pricing)))
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())

	opts := []extract.Option{
		extract.WithMaxPromptTokens(cfg.Extract.MaxPromptTokens),
		extract.WithMaxTokens(cfg.Anthropic.MaxTokens),
		extract.WithRetryConfig(resilience.FromRetryConfig(
			cfg.Retry.MaxAttempts,
			cfg.Retry.InitialBackoffMs,
			cfg.Retry.MaxBackoffMs,
			cfg.Retry.Multiplier,
			cfg.Retry.JitterFraction,
		)),
		extract.WithUsageHook(func(pass model.Pass, modelName string, u anthropicpkg.TokenUsage) {
			usd := tracker.Record(pass, modelName, u)
			metrics.ObserveUsage(pass, u.InputTokens, u.OutputTokens, usd)
		}),
	}
	if rpm := cfg.Anthropic.RequestsPerMinute; rpm > 0 {
		opts = append(opts, extract.WithLimiter(rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)))
	}
	engine := extract.New(anthropicpkg.NewClient(cfg.Anthropic.Key), opts...)

	var combineOpts []reconcile.CombinerOption
	if source := sourceKey(cmd); source != nil {
		combineOpts = append(combineOpts, reconcile.WithSource(source))
	}
	combiner := reconcile.NewCombiner(engine, st, combineOpts...)

	concurrency := cfg.Extract.Concurrency
	if cmd.Flags().Changed("concurrency") {
		concurrency, _ = cmd.Flags().GetInt("concurrency")
	}

	runner := pipeline.New(st, engine, combiner, pipeline.Options{
		Concurrency: concurrency,
		Metrics:     metrics,
		Tracker:     tracker,
		Alerter:     monitoring.NewAlerter(cfg.Monitoring),
	})

	return &extractEnv{
		Store:   st,
		Engine:  engine,
		Tracker: tracker,
		Metrics: metrics,
		Runner:  runner,
	}, nil
}
