package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
)

// Failure reasons recorded by the orchestrator itself.
const (
	reasonCancelled       = "cancelled"
	reasonQueryFailed     = "query_failed"
	reasonSuppressed      = "suppressed"
	reasonHeld            = "held"
	reasonHealthCheckFail = "health_check_failed"
	reasonAborted         = "aborted"
)

// runState accumulates the summary of one run. Stages run one after another
// and only touch it between fan-outs, so it needs no lock.
type runState struct {
	req      Request
	summary  model.Summary
	attempts []model.ProviderAttempt
	// fatal stops the run after the current stage.
	fatal error
}

func (p *Pipeline) newRunState(req Request) *runState {
	return &runState{
		req: req,
		summary: model.Summary{
			RunID:          req.RunID,
			Mode:           req.Mode,
			FailureReasons: map[string]int{},
			StartedAt:      p.now().UTC(),
		},
	}
}

// stage times fn and appends its report.
func (r *runState) stage(name model.Stage, in int, fn func(rep *model.StageReport)) {
	start := time.Now()
	rep := model.StageReport{Stage: name, In: in}
	fn(&rep)
	rep.Duration = time.Since(start)

	for _, f := range rep.Failures {
		r.summary.FailureReasons[f.Reason]++
	}
	r.summary.Stages = append(r.summary.Stages, rep)

	zap.L().Info("pipeline: stage complete",
		zap.String("run_id", r.req.RunID),
		zap.String("stage", string(name)),
		zap.Int("in", rep.In),
		zap.Int("out", rep.Out),
		zap.Int("failures", len(rep.Failures)),
		zap.Int64("duration_ms", rep.Duration.Milliseconds()),
	)
}

func (r *runState) warn(msg string) {
	r.summary.Warnings = append(r.summary.Warnings, msg)
}

func (r *runState) abort(err error) {
	if r.fatal != nil || err == nil {
		return
	}
	r.fatal = err
	zap.L().Error("pipeline: aborting run", zap.String("run_id", r.req.RunID), zap.Error(err))
}

// abandon records leads that were still in flight when the run aborted
// against the last reported stage.
func (r *runState) abandon(leads []model.Lead) {
	if len(leads) == 0 || len(r.summary.Stages) == 0 {
		return
	}
	rep := &r.summary.Stages[len(r.summary.Stages)-1]
	for _, l := range leads {
		rep.Failures = append(rep.Failures, failure(rep.Stage, l.WithStatus(model.LeadStatusCancelled), reasonAborted, r.fatal.Error()))
	}
	r.summary.FailureReasons[reasonAborted] += len(leads)
	r.summary.Counts.Cancelled += len(leads)
}

// stageContext returns a context that is cancelled with a fatal error as
// soon as one lead task reports one.
func stageContext(ctx context.Context) (context.Context, func(err error), func()) {
	sctx, cancel := context.WithCancelCause(ctx)
	trip := func(err error) {
		if resilience.IsFatal(err) {
			cancel(err)
		}
	}
	return sctx, trip, func() { cancel(nil) }
}

// fatalCause returns the fatal error a stage context was cancelled with.
func fatalCause(sctx context.Context) error {
	if cause := context.Cause(sctx); resilience.IsFatal(cause) {
		return cause
	}
	return nil
}

func failure(stage model.Stage, l model.Lead, reason, detail string) model.LeadFailure {
	return model.LeadFailure{
		LeadID:       l.ID,
		BusinessName: l.BusinessName,
		Stage:        stage,
		Reason:       reason,
		Detail:       detail,
	}
}

// finish closes the summary stage and assembles the run record.
func (p *Pipeline) finish(r *runState, leads []model.Lead) *model.Run {
	survivors := make([]model.Lead, 0, len(leads))
	for _, l := range leads {
		if l.Survived() {
			survivors = append(survivors, l)
		}
	}
	r.stage(model.StageSummary, len(leads), func(rep *model.StageReport) {
		rep.Out = len(survivors)
	})
	if r.fatal != nil {
		r.summary.Verdict = model.VerdictAborted
		r.summary.Error = r.fatal.Error()
	}
	if r.summary.Verdict == "" {
		r.summary.Verdict = model.VerdictPushed
		if r.req.Mode == model.ModeDryRun {
			r.summary.Verdict = model.VerdictDryRun
		}
	}
	if p.deps.Costs != nil {
		r.summary.Cost = p.deps.Costs.Summary()
	}
	r.summary.FinishedAt = p.now().UTC()

	return &model.Run{
		ID:         r.req.RunID,
		Queries:    r.req.Queries,
		CampaignID: r.req.CampaignID,
		Mode:       r.req.Mode,
		Leads:      survivors,
		Attempts:   r.attempts,
		Summary:    r.summary,
		CreatedAt:  r.summary.StartedAt,
	}
}
