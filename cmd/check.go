package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/pkg/hunter"
	"github.com/sells-group/leadgen-cli/pkg/notion"
)

// checkResult is the outcome of one connectivity check.
type checkResult struct {
	Name   string
	Status string
	Detail string
	Err    error
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify store connectivity and provider credentials",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		results := runChecks(ctx)
		formatChecks(os.Stdout, results)
		for _, r := range results {
			if r.Err != nil {
				return eris.New("one or more checks failed")
			}
		}
		return nil
	},
}

func runChecks(ctx context.Context) []checkResult {
	var results []checkResult
	add := func(name string, configured bool, ping func() (string, error)) {
		if !configured {
			results = append(results, checkResult{Name: name, Status: "skipped", Detail: "not configured"})
			return
		}
		detail, err := ping()
		r := checkResult{Name: name, Status: "ok", Detail: detail, Err: err}
		if err != nil {
			r.Status = "FAIL"
			r.Detail = err.Error()
		}
		results = append(results, r)
	}

	add("store", true, func() (string, error) {
		st, err := initStore(ctx)
		if err != nil {
			return "", err
		}
		defer st.Close() //nolint:errcheck
		return cfg.Store.Driver, st.Ping(ctx)
	})
	add("hunter", cfg.Hunter.Key != "", func() (string, error) {
		var opts []hunter.Option
		if cfg.Hunter.BaseURL != "" {
			opts = append(opts, hunter.WithBaseURL(cfg.Hunter.BaseURL))
		}
		acct, err := hunter.NewClient(cfg.Hunter.Key, opts...).Account(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s (%s)", acct.Data.Email, acct.Data.Plan), nil
	})
	add("instantly", cfg.Instantly.Key != "", func() (string, error) {
		campaigns, err := newInstantly(cfg).ListCampaigns(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d campaigns", len(campaigns)), nil
	})
	add("notion", cfg.Notion.Token != "" && cfg.Notion.QueueDB != "", func() (string, error) {
		jobs, err := notion.QueuedJobs(ctx, notion.NewClient(cfg.Notion.Token), cfg.Notion.QueueDB)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d queued jobs", len(jobs)), nil
	})
	add("salesforce", cfg.Salesforce.Configured(), func() (string, error) {
		if _, err := connectSalesforce(cfg.Salesforce); err != nil {
			return "", err
		}
		return cfg.Salesforce.Username, nil
	})
	return results
}

// formatChecks writes one row per check to out.
func formatChecks(out io.Writer, results []checkResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CHECK\tSTATUS\tDETAIL")
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.Status, r.Detail)
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
