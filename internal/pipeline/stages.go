package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/monitoring"
	"github.com/sells-group/leadgen-cli/internal/pushing"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/internal/waterfall"
)

// fanOut runs fn for every index with at most n in flight. Each call owns
// slot i of whatever the caller writes into, so no locking is needed.
func fanOut(n, count int, fn func(i int)) {
	var g errgroup.Group
	g.SetLimit(n)
	for i := 0; i < count; i++ {
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Pipeline) scrapeStage(ctx context.Context, r *runState, queries []string) []model.Lead {
	var leads []model.Lead
	r.stage(model.StageScraping, len(queries), func(rep *model.StageReport) {
		res := p.deps.Scraper.SearchAll(ctx, queries, p.opts.Limit, p.opts.Concurrency)
		for _, f := range res.Failures {
			reason := reasonQueryFailed
			switch {
			case resilience.IsFatal(f.Err):
				reason = resilience.Reason(f.Err)
				r.abort(f.Err)
			case ctx.Err() != nil:
				reason = reasonCancelled
			}
			rep.Failures = append(rep.Failures, model.LeadFailure{
				Stage:  model.StageScraping,
				Reason: reason,
				Detail: fmt.Sprintf("query %q: %v", f.Query, f.Err),
			})
		}
		leads = res.Leads
		rep.Out = len(leads)
	})
	r.summary.Counts.Scraped = len(leads)
	return leads
}

func (p *Pipeline) suppressStage(r *runState, leads []model.Lead) []model.Lead {
	var allowed []model.Lead
	r.stage(model.StageSuppression, len(leads), func(rep *model.StageReport) {
		var suppressed []model.Lead
		allowed, suppressed = p.deps.Gate.Filter(leads)
		for _, l := range suppressed {
			rep.Failures = append(rep.Failures, failure(model.StageSuppression, l, reasonSuppressed, l.Email))
		}
		r.summary.Counts.Suppressed += len(suppressed)
		rep.Out = len(allowed)
	})
	return allowed
}

type enrichSlot struct {
	lead    model.Lead
	outcome waterfall.Outcome
}

func (p *Pipeline) enrichStage(ctx context.Context, r *runState, leads []model.Lead) []model.Lead {
	var out []model.Lead
	r.stage(model.StageEnrichment, len(leads), func(rep *model.StageReport) {
		sctx, trip, done := stageContext(ctx)
		defer done()

		slots := make([]enrichSlot, len(leads))
		fanOut(p.opts.Concurrency, len(leads), func(i int) {
			if sctx.Err() != nil {
				slots[i] = enrichSlot{lead: leads[i].WithStatus(model.LeadStatusCancelled)}
				return
			}
			l, oc := p.deps.Enricher.Enrich(sctx, leads[i], p.opts.ProviderOrder)
			trip(oc.Err)
			slots[i] = enrichSlot{lead: l, outcome: oc}
		})
		r.abort(fatalCause(sctx))

		var enriched []model.Lead
		for _, s := range slots {
			r.attempts = append(r.attempts, s.outcome.Attempts...)
			switch {
			case s.lead.Status == model.LeadStatusCancelled:
				r.summary.Counts.Cancelled++
				rep.Failures = append(rep.Failures, failure(model.StageEnrichment, s.lead, reasonCancelled, ""))
			case s.lead.Contactable():
				enriched = append(enriched, s.lead)
			default:
				r.summary.Counts.FailedEnrichment++
				detail := ""
				if s.outcome.Err != nil {
					detail = s.outcome.Err.Error()
				}
				reason := s.outcome.Reason
				if reason == "" {
					reason = waterfall.ReasonNotFound
				}
				rep.Failures = append(rep.Failures, failure(model.StageEnrichment, s.lead, reason, detail))
			}
		}
		r.summary.Counts.Enriched = len(enriched)

		// An address found by enrichment may itself be suppressed.
		allowed, suppressed := p.deps.Gate.Filter(enriched)
		for _, l := range suppressed {
			rep.Failures = append(rep.Failures, failure(model.StageEnrichment, l, reasonSuppressed, l.Email))
		}
		r.summary.Counts.Suppressed += len(suppressed)
		out = allowed
		rep.Out = len(out)
	})
	return out
}

type personalizeSlot struct {
	lead  model.Lead
	notes []string
	err   error
}

func (p *Pipeline) personalizeStage(ctx context.Context, r *runState, leads []model.Lead) []model.Lead {
	var out []model.Lead
	r.stage(model.StagePersonalization, len(leads), func(rep *model.StageReport) {
		if p.deps.Personalizer == nil {
			out = leads
			rep.Out = len(out)
			return
		}

		slots := make([]personalizeSlot, len(leads))
		fanOut(p.opts.Concurrency, len(leads), func(i int) {
			if ctx.Err() != nil {
				slots[i] = personalizeSlot{lead: leads[i], err: ctx.Err()}
				return
			}
			l, notes, err := p.deps.Personalizer.Personalize(ctx, leads[i])
			slots[i] = personalizeSlot{lead: l, notes: notes, err: err}
		})

		for _, s := range slots {
			if s.err != nil {
				r.summary.Counts.Cancelled++
				rep.Failures = append(rep.Failures, failure(model.StagePersonalization, s.lead.WithStatus(model.LeadStatusCancelled), reasonCancelled, ""))
				continue
			}
			// Degraded personalization is recorded but the lead moves on.
			for _, n := range s.notes {
				rep.Failures = append(rep.Failures, failure(model.StagePersonalization, s.lead, n, ""))
			}
			if s.lead.FirstLine != "" {
				r.summary.Counts.Personalized++
			}
			out = append(out, s.lead)
		}
		rep.Out = len(out)
	})
	return out
}

// pushStage sends leads to the campaign. In dry-run mode no external call is
// made. In live mode the campaign health verdict gates the push; on a block
// the leads are parked in the store when hold is set.
func (p *Pipeline) pushStage(ctx context.Context, r *runState, leads []model.Lead, hold bool) []model.Lead {
	var out []model.Lead
	r.stage(model.StagePush, len(leads), func(rep *model.StageReport) {
		if r.req.Mode == model.ModeDryRun {
			out = p.simulatePush(rep, leads)
			r.summary.Verdict = model.VerdictDryRun
			r.summary.Counts.Suppressed += len(leads) - len(out)
			rep.Out = len(out)
			return
		}

		r.summary.Verdict = model.VerdictPushed
		if len(leads) == 0 {
			return
		}
		if ctx.Err() != nil {
			for _, l := range leads {
				out = append(out, l.WithStatus(model.LeadStatusCancelled))
				rep.Failures = append(rep.Failures, failure(model.StagePush, l, reasonCancelled, ""))
			}
			r.summary.Counts.Cancelled += len(leads)
			return
		}

		verdict := p.checkHealth(ctx, r)
		if verdict.Blocked() {
			out = p.holdLeads(ctx, r, rep, leads, hold)
			r.summary.Verdict = model.VerdictBlocked
			return
		}

		out = p.sendLeads(ctx, r, rep, leads, hold)
		rep.Out = r.summary.Counts.Pushed
	})
	return out
}

func (p *Pipeline) simulatePush(rep *model.StageReport, leads []model.Lead) []model.Lead {
	out := make([]model.Lead, 0, len(leads))
	for _, l := range leads {
		if p.deps.Gate.IsSuppressed(l.Email) {
			rep.Failures = append(rep.Failures, failure(model.StagePush, l, reasonSuppressed, l.Email))
			continue
		}
		out = append(out, l.WithStatus(model.LeadStatusReady))
	}
	return out
}

func (p *Pipeline) checkHealth(ctx context.Context, r *runState) monitoring.Verdict {
	v, err := p.deps.Health(ctx, r.req.CampaignID)
	r.summary.Health = string(v.Level)
	if err != nil {
		zap.L().Warn("pipeline: campaign health check failed", zap.String("campaign_id", r.req.CampaignID), zap.Error(err))
		r.summary.FailureReasons[reasonHealthCheckFail]++
	}
	if len(v.Reasons) > 0 {
		r.warn(fmt.Sprintf("campaign health %s: %s", v.Level, strings.Join(v.Reasons, "; ")))
	}
	return v
}

func (p *Pipeline) holdLeads(ctx context.Context, r *runState, rep *model.StageReport, leads []model.Lead, persist bool) []model.Lead {
	out := make([]model.Lead, 0, len(leads))
	for _, l := range leads {
		out = append(out, l.WithStatus(model.LeadStatusHeld))
	}
	if persist {
		if p.deps.Store == nil {
			r.warn("health block: no store configured, enriched leads are only in the run artifact")
		} else if err := p.deps.Store.HoldLeads(context.WithoutCancel(ctx), r.req.RunID, r.req.CampaignID, out); err != nil {
			zap.L().Error("pipeline: failed to hold leads", zap.String("run_id", r.req.RunID), zap.Error(err))
			r.warn("health block: failed to hold leads: " + err.Error())
		}
	}
	for _, l := range out {
		rep.Failures = append(rep.Failures, failure(model.StagePush, l, reasonHeld, ""))
	}
	r.summary.Counts.Held += len(out)
	return out
}

// sendLeads pushes leads concurrently. A fatal push error stops further
// sends; the lead that hit it and every lead not yet sent are held.
func (p *Pipeline) sendLeads(ctx context.Context, r *runState, rep *model.StageReport, leads []model.Lead, hold bool) []model.Lead {
	sctx, trip, done := stageContext(ctx)
	defer done()

	results := make([]pushing.Result, len(leads))
	cancelled := make([]bool, len(leads))
	fanOut(p.opts.Concurrency, len(leads), func(i int) {
		if sctx.Err() != nil {
			cancelled[i] = true
			return
		}
		results[i] = p.deps.Pusher.Push(sctx, r.req.CampaignID, leads[i])
		trip(results[i].Err)
	})
	fatal := fatalCause(sctx)
	r.abort(fatal)

	out := make([]model.Lead, 0, len(leads))
	var unsent []model.Lead
	for i, l := range leads {
		res := results[i]
		switch {
		case fatal != nil && (cancelled[i] || res.Reason == reasonCancelled || resilience.IsFatal(res.Err)):
			unsent = append(unsent, l)
			continue
		case cancelled[i] || res.Reason == reasonCancelled:
			l = l.WithStatus(model.LeadStatusCancelled)
			r.summary.Counts.Cancelled++
			rep.Failures = append(rep.Failures, failure(model.StagePush, l, reasonCancelled, ""))
		case res.Outcome == pushing.OutcomePushed:
			l = l.WithStatus(model.LeadStatusPushed)
			r.summary.Counts.Pushed++
		case res.Outcome == pushing.OutcomeSuppressed:
			l = l.WithStatus(model.LeadStatusSuppressed)
			r.summary.Counts.Suppressed++
			rep.Failures = append(rep.Failures, failure(model.StagePush, l, reasonSuppressed, l.Email))
		default:
			l = l.WithStatus(model.FailedStatus(model.StagePush))
			r.summary.Counts.FailedPush++
			detail := ""
			if res.Err != nil {
				detail = res.Err.Error()
			}
			rep.Failures = append(rep.Failures, failure(model.StagePush, l, res.Reason, detail))
		}
		out = append(out, l)
	}
	if len(unsent) > 0 {
		out = append(out, p.holdLeads(ctx, r, rep, unsent, hold)...)
	}
	return out
}
