package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/childcare-cli/internal/model"
)

// addKeyFlags registers --model and --prompt-version.
func addKeyFlags(cmd *cobra.Command) {
	cmd.Flags().String("model", "", "model name (default from config)")
	cmd.Flags().String("prompt-version", "", "prompt version (default from config)")
}

// addSelectionFlags registers the flags that narrow which items a pass runs over.
func addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().Int("concurrency", 0, "items processed in parallel (default from config)")
	cmd.Flags().Int("limit", 0, "maximum number of items to process (0 = all)")
	cmd.Flags().Int64Slice("school-id", nil, "restrict to these school ids")
}

// addUpstreamFlags registers the flags gating the childcare pass on pass-1 results.
func addUpstreamFlags(cmd *cobra.Command) {
	cmd.Flags().String("upstream-model", "", "contact-pass model gating the childcare pass (default from config)")
	cmd.Flags().String("upstream-prompt-version", "", "contact-pass prompt version gating the childcare pass (default from config)")
}

// addSourceFlags registers the flags restricting which childcare rows feed the combine pass.
func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().String("source-model", "", "only combine childcare rows from this model")
	cmd.Flags().String("source-prompt-version", "", "only combine childcare rows from this prompt version")
}

// keyFromFlags resolves --model and --prompt-version against defaults.
func keyFromFlags(cmd *cobra.Command, defModel, defVersion string) model.ExtractionKey {
	return model.ExtractionKey{
		Model:         stringFlag(cmd, "model", defModel),
		PromptVersion: stringFlag(cmd, "prompt-version", defVersion),
	}
}

// upstreamKey resolves the contact-pass key gating the childcare pass.
func upstreamKey(cmd *cobra.Command) *model.ExtractionKey {
	return &model.ExtractionKey{
		Model:         stringFlag(cmd, "upstream-model", cfg.Anthropic.Model),
		PromptVersion: stringFlag(cmd, "upstream-prompt-version", cfg.Extract.ContactVersion),
	}
}

// sourceKey returns the childcare key filter for the combine pass, or nil
// when neither source flag is set.
func sourceKey(cmd *cobra.Command) *model.ExtractionKey {
	if cmd.Flags().Lookup("source-model") == nil {
		return nil
	}
	m, _ := cmd.Flags().GetString("source-model")
	v, _ := cmd.Flags().GetString("source-prompt-version")
	if m == "" && v == "" {
		return nil
	}
	return &model.ExtractionKey{
		Model:         stringFlag(cmd, "source-model", cfg.Anthropic.Model),
		PromptVersion: stringFlag(cmd, "source-prompt-version", cfg.Extract.ChildcareVersion),
	}
}

func stringFlag(cmd *cobra.Command, name, def string) string {
	if v, _ := cmd.Flags().GetString(name); v != "" {
		return v
	}
	return def
}
