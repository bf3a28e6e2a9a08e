package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/pipeline"
	"github.com/sells-group/leadgen-cli/pkg/notion"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline for one or more search queries",
	Long:  "Scrapes each query, drops suppressed leads, enriches, personalizes, and pushes to the campaign. With --dry-run nothing is pushed. With --notion the queries are taken from the queued jobs of the Notion search queue.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		queries, _ := cmd.Flags().GetStringArray("query")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		campaign, _ := cmd.Flags().GetString("campaign")
		limit, _ := cmd.Flags().GetInt("limit")
		fromNotion, _ := cmd.Flags().GetBool("notion")

		if campaign != "" {
			cfg.Pipeline.CampaignID = campaign
		}
		mode := model.ModeLive
		vmode := config.ModeLive
		if dryRun {
			mode = model.ModeDryRun
			vmode = config.ModeRun
		}
		if err := cfg.Validate(vmode); err != nil {
			return err
		}

		if fromNotion {
			return runNotionQueue(ctx, mode)
		}
		if len(queries) == 0 {
			return eris.New("at least one --query is required (or use --notion)")
		}

		run, err := runOnce(ctx, pipeline.Request{
			Queries:    queries,
			CampaignID: cfg.Pipeline.CampaignID,
			Mode:       mode,
		}, limit)
		if run != nil {
			if werr := writeSummary(os.Stdout, run.Summary); werr != nil {
				return werr
			}
		}
		return err
	},
}

// runOnce executes one pipeline run with its own cost tracker.
func runOnce(ctx context.Context, req pipeline.Request, limit int) (*model.Run, error) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	e, err := openEnv(ctx, req.RunID)
	if err != nil {
		return nil, err
	}
	defer e.Close()

	p, cleanup, err := buildPipeline(ctx, e, req.Mode, limit)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return p.Run(ctx, req)
}

// runNotionQueue runs every queued job in the Notion search queue and
// writes the outcome back to its page.
func runNotionQueue(ctx context.Context, mode model.RunMode) error {
	if cfg.Notion.Token == "" || cfg.Notion.QueueDB == "" {
		return eris.New("notion.token and notion.queue_db are required for --notion")
	}
	nc := notion.NewClient(cfg.Notion.Token)

	jobs, err := notion.QueuedJobs(ctx, nc, cfg.Notion.QueueDB)
	if err != nil {
		return err
	}
	zap.L().Info("notion: queued jobs", zap.Int("count", len(jobs)))

	var failed int
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		runID := uuid.NewString()
		log := zap.L().With(zap.String("page_id", job.PageID), zap.String("run_id", runID))
		if err := notion.MarkJob(ctx, nc, job.PageID, notion.JobResult{Status: notion.StatusRunning, RunID: runID}); err != nil {
			log.Warn("notion: mark running failed", zap.Error(err))
		}

		campaign := job.CampaignID
		if campaign == "" {
			campaign = cfg.Pipeline.CampaignID
		}
		run, runErr := runOnce(ctx, pipeline.Request{
			RunID:      runID,
			Queries:    []string{job.Query},
			CampaignID: campaign,
			Mode:       mode,
		}, job.Limit)

		res := notion.JobResult{Status: notion.StatusDone, RunID: runID}
		if run != nil {
			res.Scraped = run.Summary.Counts.Scraped
			res.Pushed = run.Summary.Counts.Pushed
			res.Cost = run.Summary.Cost.Total
		}
		if runErr != nil || run == nil {
			res.Status = notion.StatusFailed
			failed++
			log.Error("notion: job failed", zap.String("query", job.Query), zap.Error(runErr))
		}
		if err := notion.MarkJob(context.WithoutCancel(ctx), nc, job.PageID, res); err != nil {
			log.Warn("notion: mark result failed", zap.Error(err))
		}
		if run != nil {
			if err := writeSummary(os.Stdout, run.Summary); err != nil {
				return err
			}
		}
	}

	if failed > 0 {
		return eris.Errorf("%d of %d notion jobs failed", failed, len(jobs))
	}
	return ctx.Err()
}

func writeSummary(w io.Writer, s model.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func init() {
	runCmd.Flags().StringArrayP("query", "q", nil, "search query, e.g. \"dentists in Austin TX\" (repeatable)")
	runCmd.Flags().Bool("dry-run", false, "run every stage but push nothing")
	runCmd.Flags().String("campaign", "", "outreach campaign id (overrides pipeline.campaign_id)")
	runCmd.Flags().Int("limit", 0, "max results per query (0 uses pipeline.max_results_per_query)")
	runCmd.Flags().Bool("notion", false, "take queries from the Notion search queue")
	rootCmd.AddCommand(runCmd)
}
