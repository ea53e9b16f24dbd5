package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/childcare-cli/internal/model"
	"github.com/sells-group/childcare-cli/internal/pipeline"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Run a per-page extraction pass",
}

var extractContactCmd = &cobra.Command{
	Use:   "contact",
	Short: "Extract emails, contact-page flag and care blurb from each pending page",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initExtract(ctx, cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		opts, err := pageOptions(cmd, keyFromFlags(cmd, cfg.Anthropic.Model, cfg.Extract.ContactVersion))
		if err != nil {
			return err
		}
		sum, err := env.Runner.RunContact(ctx, opts)
		printSummaries(cmd.OutOrStdout(), sum)
		return err
	},
}

var extractChildcareCmd = &cobra.Command{
	Use:   "childcare",
	Short: "Extract before/after care details from pages with a care blurb (or labelled pages with --evals)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initExtract(ctx, cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		opts, err := pageOptions(cmd, keyFromFlags(cmd, cfg.Anthropic.Model, cfg.Extract.ChildcareVersion))
		if err != nil {
			return err
		}
		if !opts.EvalOnly {
			opts.Upstream = upstreamKey(cmd)
		}

		sum, err := env.Runner.RunChildcare(ctx, opts)
		printSummaries(cmd.OutOrStdout(), sum)
		return err
	},
}

func pageOptions(cmd *cobra.Command, key model.ExtractionKey) (pipeline.PageOptions, error) {
	evals, _ := cmd.Flags().GetBool("evals")
	limit, _ := cmd.Flags().GetInt("limit")
	ids, err := cmd.Flags().GetInt64Slice("school-id")
	if err != nil {
		return pipeline.PageOptions{}, err
	}
	return pipeline.PageOptions{Key: key, EvalOnly: evals, SchoolIDs: ids, Limit: limit}, nil
}

func init() {
	for _, c := range []*cobra.Command{extractContactCmd, extractChildcareCmd} {
		addKeyFlags(c)
		addSelectionFlags(c)
		c.Flags().Bool("evals", false, "only process pages on the evaluation allow-list")
		extractCmd.AddCommand(c)
	}
	addUpstreamFlags(extractChildcareCmd)
	rootCmd.AddCommand(extractCmd)
}
