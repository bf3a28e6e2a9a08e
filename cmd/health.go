package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/monitoring"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Evaluate outreach campaign health",
	Long:  "Reads bounce, unsubscribe, and reply rates for each campaign and reports healthy, warn, or block. With --alert, warn and block verdicts are posted to monitoring.webhook_url.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModeHealth); err != nil {
			return err
		}
		campaigns, _ := cmd.Flags().GetStringSlice("campaign")
		alert, _ := cmd.Flags().GetBool("alert")
		asJSON, _ := cmd.Flags().GetBool("json")

		if len(campaigns) == 0 {
			campaigns = cfg.Monitoring.Campaigns
		}
		if len(campaigns) == 0 && cfg.Pipeline.CampaignID != "" {
			campaigns = []string{cfg.Pipeline.CampaignID}
		}
		if len(campaigns) == 0 {
			return eris.New("no campaign to check: pass --campaign or set monitoring.campaigns")
		}

		check := healthCheck(cfg, newExecutor(cfg, nil))
		verdicts := make([]monitoring.Verdict, 0, len(campaigns))
		for _, id := range campaigns {
			v, _ := check(ctx, id)
			verdicts = append(verdicts, v)
		}

		if alert {
			alerter := monitoring.NewAlerter(cfg.Monitoring.WebhookURL)
			var alerts []monitoring.Alert
			for _, v := range verdicts {
				alerts = append(alerts, monitoring.AlertsFor(v)...)
			}
			alerter.Send(ctx, alerts)
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(verdicts)
		}
		formatVerdicts(os.Stdout, verdicts)
		return nil
	},
}

// formatVerdicts writes one block per campaign verdict to out.
func formatVerdicts(out io.Writer, verdicts []monitoring.Verdict) {
	for _, v := range verdicts {
		m := v.Metrics
		_, _ = fmt.Fprintf(out, "%s: %s\n", m.CampaignID, strings.ToUpper(string(v.Level)))
		_, _ = fmt.Fprintf(out, "  sent %d  bounced %d (%.2f%%)  unsubscribed %d (%.2f%%)  replied %d (%.2f%%)\n",
			m.Sent,
			m.Bounced, 100*m.BounceRate(),
			m.Unsubscribed, 100*m.UnsubscribeRate(),
			m.Replied, 100*m.ReplyRate(),
		)
		for _, r := range v.Reasons {
			_, _ = fmt.Fprintf(out, "  - %s\n", r)
		}
	}
}

func init() {
	healthCmd.Flags().StringSlice("campaign", nil, "campaign ids to check (default monitoring.campaigns)")
	healthCmd.Flags().Bool("alert", false, "post warn and block verdicts to the alert webhook")
	healthCmd.Flags().Bool("json", false, "print verdicts as JSON")
	rootCmd.AddCommand(healthCmd)
}
