package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/pipeline"
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push leads held back by a campaign health block",
	Long:  "Re-checks campaign health and pushes the leads a blocked run left parked in the store. Leads that still fail stay parked.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if campaign, _ := cmd.Flags().GetString("campaign"); campaign != "" {
			cfg.Pipeline.CampaignID = campaign
		}
		if err := cfg.Validate(config.ModePush); err != nil {
			return err
		}

		runID := uuid.NewString()
		e, err := openEnv(ctx, runID)
		if err != nil {
			return err
		}
		defer e.Close()

		pusher, err := buildPusher(cfg, e.exec, e.gate)
		if err != nil {
			return err
		}
		arts, err := openArtifacts(ctx, cfg)
		if err != nil {
			return err
		}
		defer arts.Close() //nolint:errcheck

		p := pipeline.New(pipeline.Deps{
			Gate:      e.gate,
			Pusher:    pusher,
			Health:    healthCheck(cfg, e.exec),
			Store:     e.store,
			Artifacts: arts,
			Costs:     e.tracker,
		}, pipeline.Options{Concurrency: cfg.Pipeline.Concurrency})

		run, err := p.PushHeld(ctx, runID, cfg.Pipeline.CampaignID)
		if run != nil {
			if werr := writeSummary(os.Stdout, run.Summary); werr != nil {
				return werr
			}
		}
		return err
	},
}

func init() {
	pushCmd.Flags().String("campaign", "", "outreach campaign id (overrides pipeline.campaign_id)")
	rootCmd.AddCommand(pushCmd)
}
