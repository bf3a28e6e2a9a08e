// Package pipeline runs the lead-generation stages in order:
// scraping, suppression, enrichment, personalization, push, summary.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/monitoring"
	"github.com/sells-group/leadgen-cli/internal/pushing"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/internal/scrape"
	"github.com/sells-group/leadgen-cli/internal/store"
	"github.com/sells-group/leadgen-cli/internal/waterfall"
)

// Scraper turns search queries into sanitized, deduplicated leads.
type Scraper interface {
	SearchAll(ctx context.Context, queries []string, limit, maxConcurrent int) scrape.Result
}

// Gate screens leads against the suppression set.
type Gate interface {
	Filter(leads []model.Lead) (allowed, suppressed []model.Lead)
	IsSuppressed(identity string) bool
}

// Enricher finds a verified address for one lead.
type Enricher interface {
	Enrich(ctx context.Context, lead model.Lead, order []string) (model.Lead, waterfall.Outcome)
}

// Personalizer derives website facts and an opening line for one lead.
type Personalizer interface {
	Personalize(ctx context.Context, lead model.Lead) (model.Lead, []string, error)
}

// Pusher adds one lead to a campaign.
type Pusher interface {
	Push(ctx context.Context, campaignID string, lead model.Lead) pushing.Result
}

// HealthCheck returns the current verdict for a campaign.
type HealthCheck func(ctx context.Context, campaignID string) (monitoring.Verdict, error)

// RunStore persists runs and leads held back by a health block.
type RunStore interface {
	SaveRun(ctx context.Context, run *model.Run) error
	HoldLeads(ctx context.Context, runID, campaignID string, leads []model.Lead) error
	ListHeldLeads(ctx context.Context, campaignID string) ([]store.HeldLead, error)
	ReleaseHeldLeads(ctx context.Context, campaignID string, leadIDs []string) error
}

// ArtifactWriter writes the terminal run record.
type ArtifactWriter interface {
	WriteRun(ctx context.Context, run *model.Run) (string, error)
}

// CostSummarizer reports what the run has spent so far and the first
// ledger write failure, if any.
type CostSummarizer interface {
	Summary() model.CostSummary
	Err() error
}

// Deps are the collaborators of a Pipeline. Personalizer, Store, Artifacts,
// and Costs are optional. Pusher and Health are required for live runs.
type Deps struct {
	Scraper      Scraper
	Gate         Gate
	Enricher     Enricher
	Personalizer Personalizer
	Pusher       Pusher
	Health       HealthCheck
	Store        RunStore
	Artifacts    ArtifactWriter
	Costs        CostSummarizer
}

// Options tune a Pipeline.
type Options struct {
	Concurrency   int
	Limit         int
	ProviderOrder []string
	RunTimeout    time.Duration
}

// Request describes one run.
type Request struct {
	// RunID is generated when empty.
	RunID      string
	Queries    []string
	CampaignID string
	Mode       model.RunMode
}

// Pipeline orchestrates a run.
type Pipeline struct {
	deps Deps
	opts Options
	now  func() time.Time
}

// New creates a Pipeline.
func New(deps Deps, opts Options) *Pipeline {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	return &Pipeline{deps: deps, opts: opts, now: time.Now}
}

func (p *Pipeline) validate(req Request) error {
	if len(req.Queries) == 0 {
		return eris.New("pipeline: at least one query is required")
	}
	if p.deps.Scraper == nil || p.deps.Gate == nil || p.deps.Enricher == nil {
		return eris.New("pipeline: scraper, suppression gate, and enricher are required")
	}
	switch req.Mode {
	case model.ModeDryRun:
	case model.ModeLive:
		if req.CampaignID == "" {
			return eris.New("pipeline: live run requires a campaign id")
		}
		if p.deps.Pusher == nil || p.deps.Health == nil {
			return eris.New("pipeline: live run requires a pusher and a health check")
		}
	default:
		return eris.Errorf("pipeline: unknown mode %q", req.Mode)
	}
	return nil
}

// Run executes every stage and returns the run record. Per-lead failures
// never abort the run; they are recorded in the stage reports. A rejected
// provider credential or a failed cost-ledger write does: no later stage
// starts, the summary is still persisted with verdict aborted, and the
// error is returned with the run. A non-nil error with a non-nil run
// otherwise means the run completed but could not be fully persisted.
func (p *Pipeline) Run(ctx context.Context, req Request) (*model.Run, error) {
	if err := p.validate(req); err != nil {
		return nil, err
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if p.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.RunTimeout)
		defer cancel()
	}

	r := p.newRunState(req)
	log := zap.L().With(zap.String("run_id", req.RunID), zap.String("mode", string(req.Mode)))
	log.Info("pipeline: starting run", zap.Strings("queries", req.Queries))

	leads := p.scrapeStage(ctx, r, req.Queries)
	for _, next := range []func([]model.Lead) []model.Lead{
		func(in []model.Lead) []model.Lead { return p.suppressStage(r, in) },
		func(in []model.Lead) []model.Lead { return p.enrichStage(ctx, r, in) },
		func(in []model.Lead) []model.Lead { return p.personalizeStage(ctx, r, in) },
		func(in []model.Lead) []model.Lead { return p.pushStage(ctx, r, in, true) },
	} {
		if p.checkFatal(r); r.fatal != nil {
			r.abandon(leads)
			leads = nil
			break
		}
		leads = next(leads)
	}
	p.checkFatal(r)

	run := p.finish(r, leads)
	err := p.persist(ctx, run)
	if r.fatal != nil {
		if err != nil {
			log.Error("pipeline: aborted run was not fully persisted", zap.Error(err))
		}
		err = eris.Wrap(r.fatal, "pipeline: run aborted")
	}

	c := run.Summary.Counts
	log.Info("pipeline: run complete",
		zap.String("verdict", string(run.Summary.Verdict)),
		zap.Int("scraped", c.Scraped),
		zap.Int("suppressed", c.Suppressed),
		zap.Int("enriched", c.Enriched),
		zap.Int("pushed", c.Pushed),
		zap.Int("held", c.Held),
		zap.Int("cancelled", c.Cancelled),
		zap.Float64("cost_usd", run.Summary.Cost.Total),
	)
	return run, err
}

// PushHeld retries leads parked for campaignID by an earlier health block.
// Leads that are pushed or found suppressed are released; leads that fail
// stay parked for the next attempt.
func (p *Pipeline) PushHeld(ctx context.Context, runID, campaignID string) (*model.Run, error) {
	if campaignID == "" {
		return nil, eris.New("pipeline: push requires a campaign id")
	}
	if p.deps.Store == nil || p.deps.Pusher == nil || p.deps.Health == nil {
		return nil, eris.New("pipeline: push requires a store, a pusher, and a health check")
	}
	if runID == "" {
		runID = uuid.NewString()
	}

	held, err := p.deps.Store.ListHeldLeads(ctx, campaignID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list held leads")
	}
	leads := make([]model.Lead, 0, len(held))
	for _, h := range held {
		leads = append(leads, h.Lead)
	}

	r := p.newRunState(Request{RunID: runID, CampaignID: campaignID, Mode: model.ModeLive})
	zap.L().Info("pipeline: pushing held leads",
		zap.String("run_id", runID),
		zap.String("campaign_id", campaignID),
		zap.Int("count", len(leads)),
	)

	out := p.pushStage(ctx, r, leads, false)

	var release []string
	for _, l := range out {
		if l.Status == model.LeadStatusPushed || l.Status == model.LeadStatusSuppressed {
			release = append(release, l.ID)
		}
	}
	var releaseErr error
	if len(release) > 0 {
		if err := p.deps.Store.ReleaseHeldLeads(context.WithoutCancel(ctx), campaignID, release); err != nil {
			releaseErr = eris.Wrap(err, "pipeline: release held leads")
			r.warn("held leads were pushed but could not be released: " + err.Error())
		}
	}

	p.checkFatal(r)
	run := p.finish(r, out)
	if err := p.persist(ctx, run); err != nil {
		return run, err
	}
	if r.fatal != nil {
		return run, eris.Wrap(r.fatal, "pipeline: push aborted")
	}
	return run, releaseErr
}

// checkFatal aborts the run once the cost ledger has lost a write.
func (p *Pipeline) checkFatal(r *runState) {
	if p.deps.Costs == nil {
		return
	}
	if err := p.deps.Costs.Err(); err != nil {
		r.abort(eris.Wrapf(resilience.ErrLedgerUnavailable, "%v", err))
	}
}

const persistTimeout = 30 * time.Second

// persist saves the run even when the run context was cancelled, so a
// cancelled run still leaves its summary behind.
func (p *Pipeline) persist(ctx context.Context, run *model.Run) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	var firstErr error
	if p.deps.Store != nil {
		if err := p.deps.Store.SaveRun(ctx, run); err != nil {
			zap.L().Error("pipeline: failed to save run", zap.String("run_id", run.ID), zap.Error(err))
			firstErr = eris.Wrap(err, "pipeline: save run")
		}
	}
	if p.deps.Artifacts != nil {
		key, err := p.deps.Artifacts.WriteRun(ctx, run)
		if err != nil {
			zap.L().Error("pipeline: failed to write run artifact", zap.String("run_id", run.ID), zap.Error(err))
			if firstErr == nil {
				firstErr = eris.Wrap(err, "pipeline: write run artifact")
			}
		} else {
			zap.L().Info("pipeline: run artifact written", zap.String("key", key))
		}
	}
	return firstErr
}
