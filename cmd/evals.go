package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/childcare-cli/internal/config"
	"github.com/sells-group/childcare-cli/internal/ingest"
)

var evalsCmd = &cobra.Command{
	Use:   "evals",
	Short: "Manage the evaluation allow-list",
}

var evalsLoadCmd = &cobra.Command{
	Use:   "load <labels.csv>",
	Short: "Load labeled pages (school_id, page_url, label) into the evaluation allow-list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "evals: open labels file")
		}
		defer f.Close() //nolint:errcheck

		labels, err := ingest.ReadEvalLabels(ctx, f)
		if err != nil {
			return err
		}

		st, err := openStore(ctx, config.ModeStore)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.AppendEvalLabels(ctx, labels)
		if err != nil {
			return eris.Wrap(err, "evals: append labels")
		}
		cmd.Printf("Loaded %d evaluation labels.\n", n)
		return nil
	},
}

func init() {
	evalsCmd.AddCommand(evalsLoadCmd)
	rootCmd.AddCommand(evalsCmd)
}
