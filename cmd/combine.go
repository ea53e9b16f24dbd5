package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/childcare-cli/internal/pipeline"
)

var combineCmd = &cobra.Command{
	Use:   "combine",
	Short: "Reconcile each school's childcare extractions into one cited answer",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initExtract(ctx, cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		ids, err := cmd.Flags().GetInt64Slice("school-id")
		if err != nil {
			return err
		}

		sum, err := env.Runner.RunCombine(ctx, pipeline.CombineOptions{
			Key:       keyFromFlags(cmd, cfg.Anthropic.CombineModel, cfg.Extract.CombineVersion),
			Source:    sourceKey(cmd),
			SchoolIDs: ids,
			Limit:     limit,
		})
		printSummaries(cmd.OutOrStdout(), sum)
		return err
	},
}

func init() {
	addKeyFlags(combineCmd)
	addSelectionFlags(combineCmd)
	addSourceFlags(combineCmd)
	rootCmd.AddCommand(combineCmd)
}
