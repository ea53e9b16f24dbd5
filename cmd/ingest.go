package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/childcare-cli/internal/config"
	"github.com/sells-group/childcare-cli/internal/cost"
	"github.com/sells-group/childcare-cli/internal/ingest"
	"github.com/sells-group/childcare-cli/internal/model"
	"github.com/sells-group/childcare-cli/internal/monitoring"
	"github.com/sells-group/childcare-cli/pkg/firecrawl"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Crawl school websites and store their pages",
	Long: "Crawls each school's website with Firecrawl and appends the pages. Schools that already " +
		"have pages are skipped. Schools come from --schools (CSV with school_id and website_url columns) " +
		"or from a single --school-id/--url pair.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		schools, err := schoolsFromFlags(cmd)
		if err != nil {
			return err
		}

		st, err := openStore(ctx, config.ModeIngest)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		metrics := monitoring.NewMetrics(prometheus.NewRegistry())
		client := firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
		ing := ingest.New(st, client, ingest.CrawlOptions{
			MaxPages:     cfg.Firecrawl.MaxPages,
			MaxDepth:     cfg.Firecrawl.MaxDepth,
			ExcludePaths: cfg.Firecrawl.ExcludePaths,
			PollTimeout:  time.Duration(cfg.Firecrawl.PollTimeoutSec) * time.Second,
		}, ingest.WithPageObserver(metrics.ObserveIngest))

		sum, err := ing.Run(ctx, schools)
		if err != nil {
			return err
		}

		calc := cost.NewCalculator(costRates(cfg.Pricing))
		zap.L().Info("ingest: estimated crawl cost",
			zap.Int64("pages", sum.Pages),
			zap.Float64("cost_usd", calc.Firecrawl(int(sum.Pages))),
		)
		cmd.Printf("Crawled %d schools (%d skipped, %d failed), %d pages stored.\n",
			sum.Crawled, sum.Skipped, sum.Failed, sum.Pages)
		return nil
	},
}

func schoolsFromFlags(cmd *cobra.Command) ([]model.School, error) {
	path, _ := cmd.Flags().GetString("schools")
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "ingest: open schools file")
		}
		defer f.Close() //nolint:errcheck
		return ingest.ReadSchools(cmd.Context(), f)
	}

	id, _ := cmd.Flags().GetInt64("school-id")
	url, _ := cmd.Flags().GetString("url")
	if id <= 0 || url == "" {
		return nil, eris.New("ingest: provide --schools, or both --school-id and --url")
	}
	name, _ := cmd.Flags().GetString("name")
	typ, _ := cmd.Flags().GetString("type")
	return []model.School{{ID: id, Name: name, Type: typ, WebsiteURL: url}}, nil
}

func init() {
	ingestCmd.Flags().String("schools", "", "CSV file of schools to crawl")
	ingestCmd.Flags().Int64("school-id", 0, "school id for a single crawl")
	ingestCmd.Flags().String("url", "", "website URL for a single crawl")
	ingestCmd.Flags().String("name", "", "school name for a single crawl")
	ingestCmd.Flags().String("type", "", "school type for a single crawl")
	rootCmd.AddCommand(ingestCmd)
}
