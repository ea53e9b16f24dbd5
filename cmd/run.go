package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/childcare-cli/internal/model"
	"github.com/sells-group/childcare-cli/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the contact, childcare and combine passes in order",
	Long: "Runs all three passes with the configured prompt versions. The childcare pass only reads pages " +
		"whose contact-pass record from this run's key has a care blurb.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initExtract(ctx, cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		evals, _ := cmd.Flags().GetBool("evals")
		limit, _ := cmd.Flags().GetInt("limit")
		ids, err := cmd.Flags().GetInt64Slice("school-id")
		if err != nil {
			return err
		}
		modelName := stringFlag(cmd, "model", cfg.Anthropic.Model)

		sums, err := env.Runner.RunAll(ctx, pipeline.AllOptions{
			Contact:   model.ExtractionKey{Model: modelName, PromptVersion: stringFlag(cmd, "contact-version", cfg.Extract.ContactVersion)},
			Childcare: model.ExtractionKey{Model: modelName, PromptVersion: stringFlag(cmd, "childcare-version", cfg.Extract.ChildcareVersion)},
			Combine: model.ExtractionKey{
				Model:         stringFlag(cmd, "combine-model", cfg.Anthropic.CombineModel),
				PromptVersion: stringFlag(cmd, "combine-version", cfg.Extract.CombineVersion),
			},
			Source:    sourceKey(cmd),
			EvalOnly:  evals,
			SchoolIDs: ids,
			Limit:     limit,
		})
		printSummaries(cmd.OutOrStdout(), sums...)
		return err
	},
}

func init() {
	runCmd.Flags().String("model", "", "model for the per-page passes (default from config)")
	runCmd.Flags().String("combine-model", "", "model for the combine pass (default from config)")
	runCmd.Flags().String("contact-version", "", "contact prompt version (default from config)")
	runCmd.Flags().String("childcare-version", "", "childcare prompt version (default from config)")
	runCmd.Flags().String("combine-version", "", "combine prompt version (default from config)")
	runCmd.Flags().Bool("evals", false, "only process pages on the evaluation allow-list")
	addSelectionFlags(runCmd)
	addSourceFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}
