package waterfall

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/internal/waterfall/provider"
)

// Operation names charged to the cost ledger.
const (
	OpLookup = "domain_search"
	OpVerify = "verify"
)

// SourceScraped marks an address that came with the scraped listing.
const SourceScraped = "scraped"

// Failure reasons reported when a lead cannot be enriched.
const (
	ReasonNoDomain  = "no_domain"
	ReasonNotFound  = "not_found"
	ReasonCancelled = "cancelled"
)

// Outcome describes how enrichment of one lead went.
type Outcome struct {
	Attempts []model.ProviderAttempt
	// Reason is empty on success.
	Reason string
	// Err is the last provider error, if any.
	Err error
}

// Engine runs the waterfall.
type Engine struct {
	cfg      *Config
	registry *provider.Registry
	exec     *resilience.Executor
	now      func() time.Time
}

// NewEngine creates a waterfall engine. Every provider call goes through exec.
func NewEngine(cfg *Config, registry *provider.Registry, exec *resilience.Executor) *Engine {
	if cfg == nil {
		cfg = DefaultConfig(registry.List()...)
	}
	return &Engine{cfg: cfg, registry: registry, exec: exec, now: time.Now}
}

// Order returns the configured provider order.
func (e *Engine) Order() []string { return e.cfg.Order }

// Enrich returns a copy of lead carrying a verified address, or tagged
// failed:enrichment (or failed:cancelled) when none could be found.
//
// Providers are tried strictly in order. A found-verified result is accepted
// immediately. A found-unverified address is accepted only after an explicit
// verification call, and at most one verification call is made per lead. A
// nil order uses the configured one.
func (e *Engine) Enrich(ctx context.Context, lead model.Lead, order []string) (model.Lead, Outcome) {
	if lead.Contactable() {
		return lead.WithStatus(model.LeadStatusEnriched), Outcome{}
	}
	if order == nil {
		order = e.cfg.Order
	}

	r := &run{engine: e, lead: lead}
	log := zap.L().With(zap.String("lead_id", lead.ID), zap.String("business", lead.BusinessName))

	// A scraped address only needs the verification call.
	if lead.Email != "" && model.ValidEmail(lead.Email) {
		verifier := e.verifierFor(firstOf(order))
		ok, err := r.verify(ctx, verifier, lead.Email)
		if ok {
			return lead.WithEmail(lead.Email, 90, true, SourceScraped), r.outcome("", nil)
		}
		if resilience.IsFatal(err) {
			return r.fatal(err)
		}
		if ctx.Err() != nil {
			return r.cancelled()
		}
	}

	domain := lead.Domain()
	if domain == "" {
		return lead.WithStatus(model.FailedStatus(model.StageEnrichment)), r.outcome(ReasonNoDomain, nil)
	}
	company := provider.Company{Name: lead.BusinessName, Domain: domain, Website: lead.Website}

	for _, name := range order {
		if ctx.Err() != nil {
			return r.cancelled()
		}
		p := e.registry.Get(name)
		if p == nil {
			log.Warn("waterfall: provider not registered, skipping", zap.String("provider", name))
			continue
		}

		res, err := r.lookup(ctx, p, company)
		if err != nil {
			if resilience.IsFatal(err) {
				return r.fatal(err)
			}
			if ctx.Err() != nil {
				return r.cancelled()
			}
			log.Debug("waterfall: provider failed, falling back",
				zap.String("provider", name), zap.Error(err))
			continue
		}

		switch res.Outcome {
		case model.OutcomeFoundVerified:
			return lead.WithEmail(res.Email, res.Confidence, true, name), r.outcome("", nil)
		case model.OutcomeFoundUnverified:
			if r.verified {
				// Verification budget already spent on this lead.
				continue
			}
			ok, err := r.verify(ctx, e.verifierFor(name), res.Email)
			if ok {
				return lead.WithEmail(res.Email, res.Confidence, true, name), r.outcome("", nil)
			}
			if resilience.IsFatal(err) {
				return r.fatal(err)
			}
			if ctx.Err() != nil {
				return r.cancelled()
			}
		}
	}

	reason := ReasonNotFound
	if r.lastErr != nil {
		reason = resilience.Reason(r.lastErr)
	}
	return lead.WithStatus(model.FailedStatus(model.StageEnrichment)), r.outcome(reason, r.lastErr)
}

func (e *Engine) verifierFor(found string) provider.Provider {
	if e.cfg.Verifier != "" {
		if p := e.registry.Get(e.cfg.Verifier); p != nil {
			return p
		}
	}
	return e.registry.Get(found)
}

func firstOf(order []string) string {
	if len(order) == 0 {
		return ""
	}
	return order[0]
}

// run is the per-lead state of one Enrich call.
type run struct {
	engine   *Engine
	lead     model.Lead
	attempts []model.ProviderAttempt
	verified bool
	lastErr  error
}

func (r *run) lookup(ctx context.Context, p provider.Provider, company provider.Company) (*provider.Result, error) {
	e := r.engine
	start := e.now()
	res, err := resilience.Execute(ctx, e.exec, resilience.Call{
		Provider:  p.Name(),
		Operation: OpLookup,
		Units:     1,
		Budget:    e.cfg.Budget(p.Name()),
	}, func(ctx context.Context) (*provider.Result, error) {
		return p.Lookup(ctx, company)
	})

	a := r.attempt(p.Name(), OpLookup, e.now().Sub(start))
	if err != nil {
		r.lastErr = err
		a.Outcome = model.OutcomeError
		a.Error = err.Error()
	} else {
		a.Outcome = res.Outcome
		a.Email = res.Email
		a.Raw = res.Raw
	}
	r.attempts = append(r.attempts, a)
	return res, err
}

// verify spends the lead's single verification call.
func (r *run) verify(ctx context.Context, p provider.Provider, email string) (bool, error) {
	if p == nil || r.verified {
		return false, nil
	}
	r.verified = true

	e := r.engine
	start := e.now()
	v, err := resilience.Execute(ctx, e.exec, resilience.Call{
		Provider:  p.Name(),
		Operation: OpVerify,
		Units:     1,
		Budget:    e.cfg.Budget(p.Name()),
	}, func(ctx context.Context) (*provider.Verification, error) {
		return p.Verify(ctx, email)
	})

	a := r.attempt(p.Name(), OpVerify, e.now().Sub(start))
	a.Email = email
	switch {
	case err != nil:
		r.lastErr = err
		a.Outcome = model.OutcomeError
		a.Error = err.Error()
	case v.Valid:
		a.Outcome = model.OutcomeFoundVerified
		a.Raw = v.Raw
	default:
		a.Outcome = model.OutcomeNotFound
		a.Raw = v.Raw
	}
	r.attempts = append(r.attempts, a)
	return err == nil && v.Valid, err
}

func (r *run) attempt(name, op string, latency time.Duration) model.ProviderAttempt {
	return model.ProviderAttempt{
		LeadID:     r.lead.ID,
		Provider:   name,
		Operation:  op,
		Latency:    latency,
		PayloadRef: fmt.Sprintf("%s/%s/%s/%d", r.lead.ID, name, op, len(r.attempts)),
	}
}

func (r *run) outcome(reason string, err error) Outcome {
	return Outcome{Attempts: r.attempts, Reason: reason, Err: err}
}

func (r *run) fatal(err error) (model.Lead, Outcome) {
	return r.lead.WithStatus(model.FailedStatus(model.StageEnrichment)), r.outcome(resilience.Reason(err), err)
}

func (r *run) cancelled() (model.Lead, Outcome) {
	return r.lead.WithStatus(model.LeadStatusCancelled), r.outcome(ReasonCancelled, context.Canceled)
}
