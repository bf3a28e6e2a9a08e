package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/cost"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/server"
)

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Show provider spend from the cost ledger",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		sinceFlag, _ := cmd.Flags().GetString("since")
		asJSON, _ := cmd.Flags().GetBool("json")

		since, err := server.ParseSince(sinceFlag, time.Now())
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sum, err := cost.History(ctx, st, since)
		if err != nil {
			return err
		}
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(sum)
		}
		formatCosts(os.Stdout, since, sum)
		return nil
	},
}

// formatCosts writes the per-operation breakdown and total to out.
func formatCosts(out io.Writer, since time.Time, s model.CostSummary) {
	_, _ = fmt.Fprintf(out, "Spend since %s\n\n", since.Format("2006-01-02 15:04"))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROVIDER\tOPERATION\tCALLS\tUNITS\tUSD")
	for _, l := range s.Breakdown {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.4f\n", l.Provider, l.Operation, l.Calls, l.Units, l.Total)
	}
	_, _ = fmt.Fprintf(w, "TOTAL\t\t\t\t%.4f\n", s.Total)
	_ = w.Flush()
}

func init() {
	costsCmd.Flags().String("since", "", "start of the window: RFC3339, YYYY-MM-DD, or a duration like 72h (default start of month)")
	costsCmd.Flags().Bool("json", false, "print the summary as JSON")
	rootCmd.AddCommand(costsCmd)
}
