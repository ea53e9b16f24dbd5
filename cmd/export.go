package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/childcare-cli/internal/config"
	"github.com/sells-group/childcare-cli/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the final per-school childcare dataset",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		formatName, _ := cmd.Flags().GetString("format")
		format, err := export.ParseFormat(formatName)
		if err != nil {
			return err
		}

		st, err := openStore(ctx, config.ModeStore)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		modelName, _ := cmd.Flags().GetString("model")
		types, _ := cmd.Flags().GetStringSlice("school-type")
		rows, err := export.Rows(ctx, st, export.Filter{
			Model:         modelName,
			PromptVersion: stringFlag(cmd, "prompt-version", cfg.Extract.CombineVersion),
			SchoolTypes:   types,
		})
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("output")
		var w io.Writer = cmd.OutOrStdout()
		if out != "" && out != "-" {
			f, err := os.Create(out)
			if err != nil {
				return eris.Wrap(err, "export: create output file")
			}
			defer f.Close() //nolint:errcheck
			w = f
		}

		if err := export.Write(w, format, rows); err != nil {
			return err
		}
		if out != "" && out != "-" {
			cmd.PrintErrf("Wrote %d schools to %s.\n", len(rows), out)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().String("format", "csv", "output format: csv or xlsx")
	exportCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
	exportCmd.Flags().String("model", "", "only export answers from this combine model")
	exportCmd.Flags().String("prompt-version", "", "combine prompt version (default from config)")
	exportCmd.Flags().StringSlice("school-type", nil, "only export these school types")
	rootCmd.AddCommand(exportCmd)
}
