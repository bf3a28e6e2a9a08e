package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/suppression"
)

var suppressCmd = &cobra.Command{
	Use:   "suppress",
	Short: "Manage the do-not-contact list",
}

var suppressAddCmd = &cobra.Command{
	Use:   "add <email>...",
	Short: "Suppress one or more email addresses",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reason, err := reasonFlag(cmd)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		gate, err := suppression.Load(ctx, st)
		if err != nil {
			return err
		}
		for _, email := range args {
			e, err := gate.Add(ctx, email, reason, "cli")
			if err != nil {
				return eris.Wrapf(err, "suppress %s", email)
			}
			fmt.Printf("suppressed %s (%s)\n", e.Email, e.Reason)
		}
		return nil
	},
}

var suppressCheckCmd = &cobra.Command{
	Use:   "check <email>",
	Short: "Report whether an address is suppressed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		gate, err := suppression.Load(ctx, st)
		if err != nil {
			return err
		}
		e, ok := gate.Lookup(args[0])
		if !ok {
			fmt.Printf("%s is not suppressed\n", suppression.Normalize(args[0]))
			return nil
		}
		fmt.Printf("%s is suppressed: %s via %s on %s\n", e.Email, e.Reason, e.Source, e.AddedAt.Format("2006-01-02"))
		return nil
	},
}

var suppressListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every suppressed address",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		gate, err := suppression.Load(ctx, st)
		if err != nil {
			return err
		}
		formatSuppressions(os.Stdout, gate.Export())
		return nil
	},
}

var suppressImportCmd = &cobra.Command{
	Use:   "import <file.csv|file.xlsx>",
	Short: "Bulk-import suppressions from a CSV or XLSX export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reason, err := reasonFlag(cmd)
		if err != nil {
			return err
		}
		source, _ := cmd.Flags().GetString("source")

		reqs, err := suppression.ReadFile(args[0], reason, source)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		gate, err := suppression.Load(ctx, st)
		if err != nil {
			return err
		}
		res := gate.BulkAdd(ctx, reqs)
		for i, err := range res.Errors {
			if err != nil {
				zap.L().Warn("suppress import: entry rejected", zap.String("identity", reqs[i].Identity), zap.Error(err))
			}
		}
		fmt.Printf("imported %d of %d entries (%d rejected)\n", res.Added, len(reqs), len(reqs)-res.Added)
		return nil
	},
}

func reasonFlag(cmd *cobra.Command) (model.SuppressionReason, error) {
	r, _ := cmd.Flags().GetString("reason")
	return model.ParseSuppressionReason(r)
}

// formatSuppressions writes a tabular list of entries to out.
func formatSuppressions(out io.Writer, entries []model.SuppressionEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "EMAIL\tREASON\tSOURCE\tADDED")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Email, e.Reason, e.Source, e.AddedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "%d suppressed\n", len(entries))
}

func init() {
	suppressAddCmd.Flags().String("reason", string(model.ReasonManual), "suppression reason (opt-out, hard-bounce, spam-complaint, manual, declined)")
	suppressImportCmd.Flags().String("reason", string(model.ReasonManual), "default reason for rows without a reason column")
	suppressImportCmd.Flags().String("source", "import", "source recorded on each entry")

	suppressCmd.AddCommand(suppressAddCmd)
	suppressCmd.AddCommand(suppressCheckCmd)
	suppressCmd.AddCommand(suppressListCmd)
	suppressCmd.AddCommand(suppressImportCmd)
	rootCmd.AddCommand(suppressCmd)
}
