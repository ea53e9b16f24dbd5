package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/sells-group/childcare-cli/internal/model"
)

// printSummaries writes one line per pass summary as an aligned table.
func printSummaries(w io.Writer, sums ...model.PassSummary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PASS\tKEY\tSELECTED\tSUCCEEDED\tEMPTY\tFAILED\tTOO LONG\tCOST\tDURATION")
	for _, s := range sums {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t$%.4f\t%s\n",
			s.Pass, s.Key, s.Selected, s.Succeeded, s.Empty, s.Failed, s.TooLong, s.CostUSD, s.Duration.Round(time.Millisecond))
	}
	_ = tw.Flush()
}
