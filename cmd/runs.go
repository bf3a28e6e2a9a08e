package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect past pipeline runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter := store.RunFilter{}
		filter.CampaignID, _ = cmd.Flags().GetString("campaign")
		filter.Limit, _ = cmd.Flags().GetInt("limit")
		if m, _ := cmd.Flags().GetString("mode"); m != "" {
			filter.Mode = model.RunMode(m)
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}
		if len(runs) == 0 {
			fmt.Println("No runs found.")
			return nil
		}
		formatRunsList(os.Stdout, runs)
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the full record of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		if full, _ := cmd.Flags().GetBool("leads"); !full {
			run.Leads = nil
			run.Attempts = nil
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	runsListCmd.Flags().String("campaign", "", "filter by campaign id")
	runsListCmd.Flags().String("mode", "", "filter by mode (dry-run, live)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsShowCmd.Flags().Bool("leads", false, "include leads and provider attempts")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to out.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tMODE\tVERDICT\tSCRAPED\tENRICHED\tPUSHED\tHELD\tCOST\tCREATED\tQUERY")
	_, _ = fmt.Fprintln(w, "--\t----\t-------\t-------\t--------\t------\t----\t----\t-------\t-----")

	for _, r := range runs {
		c := r.Summary.Counts
		query := ""
		if len(r.Queries) > 0 {
			query = r.Queries[0]
			if len(r.Queries) > 1 {
				query = fmt.Sprintf("%s (+%d)", query, len(r.Queries)-1)
			}
		}
		if len(query) > 40 {
			query = query[:37] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t$%.2f\t%s\t%s\n",
			truncateID(r.ID),
			r.Mode,
			r.Summary.Verdict,
			c.Scraped,
			c.Enriched,
			c.Pushed,
			c.Held,
			r.Summary.Cost.Total,
			r.CreatedAt.Format("2006-01-02 15:04"),
			query,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
