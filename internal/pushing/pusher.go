// Package pushing delivers contactable leads to the outreach platform and
// mirrors them into the CRM.
package pushing

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/pkg/instantly"
	"github.com/sells-group/leadgen-cli/pkg/salesforce"
)

// Outcome is the result of pushing one lead.
type Outcome string

const (
	OutcomePushed        Outcome = "pushed"
	OutcomeSuppressed    Outcome = "suppressed"
	OutcomeRejected      Outcome = "rejected"
	OutcomeFailed        Outcome = "failed"
	OutcomeUncontactable Outcome = "not_contactable"
)

// Result describes one push.
type Result struct {
	Outcome Outcome
	// Reason is a short machine-readable cause for a non-pushed outcome.
	Reason string
	Err    error
	// CRMID is the Salesforce Lead ID when CRM sync ran and succeeded.
	CRMID string
}

// Checker re-checks suppression immediately before a lead leaves the system.
type Checker interface {
	IsSuppressed(identity string) bool
}

// Pusher adds leads to a campaign one at a time.
type Pusher struct {
	client instantly.Client
	exec   *resilience.Executor
	gate   Checker
	crm    salesforce.Client
}

// Option configures a Pusher.
type Option func(*Pusher)

// WithCRM mirrors pushed leads into Salesforce.
func WithCRM(c salesforce.Client) Option { return func(p *Pusher) { p.crm = c } }

// New creates a Pusher.
func New(client instantly.Client, exec *resilience.Executor, gate Checker, opts ...Option) *Pusher {
	p := &Pusher{client: client, exec: exec, gate: gate}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Push sends lead to the campaign. Re-pushing a lead that is already in the
// campaign counts as pushed. CRM failures are logged and never change the
// outcome.
func (p *Pusher) Push(ctx context.Context, campaignID string, lead model.Lead) Result {
	if !lead.Contactable() {
		return Result{Outcome: OutcomeUncontactable, Reason: "unverified_email"}
	}
	if p.gate != nil && p.gate.IsSuppressed(lead.Email) {
		return Result{Outcome: OutcomeSuppressed, Reason: "suppressed"}
	}

	resp, err := resilience.Execute(ctx, p.exec, resilience.Call{
		Provider:  "instantly",
		Operation: "add_lead",
	}, func(ctx context.Context) (*instantly.AddLeadsResponse, error) {
		r, err := p.client.AddLeads(ctx, campaignID, []instantly.Lead{ToInstantly(lead)})
		return r, resilience.Classify(err)
	})
	if err != nil {
		return Result{Outcome: OutcomeFailed, Reason: resilience.Reason(err), Err: eris.Wrapf(err, "pushing: add lead %s", lead.ID)}
	}
	if !resp.Accepted() {
		reason := "not_uploaded"
		switch {
		case resp.InBlocklist > 0:
			reason = "in_blocklist"
		case resp.InvalidEmailCount > 0:
			reason = "invalid_email"
		}
		return Result{Outcome: OutcomeRejected, Reason: reason}
	}

	res := Result{Outcome: OutcomePushed}
	if p.crm != nil {
		res.CRMID = p.syncCRM(ctx, lead)
	}
	return res
}

func (p *Pusher) syncCRM(ctx context.Context, lead model.Lead) string {
	id, err := resilience.Execute(ctx, p.exec, resilience.Call{
		Provider:  "salesforce",
		Operation: "upsert_lead",
	}, func(ctx context.Context) (string, error) {
		id, err := salesforce.UpsertLead(ctx, p.crm, ToSalesforce(lead))
		return id, resilience.Classify(err)
	})
	if err != nil {
		zap.L().Warn("pushing: crm sync failed",
			zap.String("lead_id", lead.ID),
			zap.Error(err),
		)
		return ""
	}
	return id
}

// ToInstantly maps a lead onto the campaign lead payload.
func ToInstantly(l model.Lead) instantly.Lead {
	vars := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			vars[k] = v
		}
	}
	set("city", l.City)
	set("category", l.Category)
	set("main_service", l.Facts.MainService)
	set("specific_detail", l.Facts.SpecificDetail)
	set("pain_point", l.Facts.PainPoint)
	if l.Rating > 0 {
		vars["rating"] = strconv.FormatFloat(l.Rating, 'f', 1, 64)
	}
	if len(vars) == 0 {
		vars = nil
	}
	return instantly.Lead{
		Email:           l.Email,
		CompanyName:     l.BusinessName,
		Personalization: l.FirstLine,
		Website:         l.Website,
		Phone:           l.Phone,
		CustomVariables: vars,
	}
}

// ToSalesforce maps a lead onto a CRM Lead record.
func ToSalesforce(l model.Lead) salesforce.Lead {
	desc := ""
	if l.Query != "" {
		desc = fmt.Sprintf("Sourced from %q", l.Query)
	}
	return salesforce.Lead{
		Company:     l.BusinessName,
		Email:       l.Email,
		Phone:       l.Phone,
		Website:     l.Website,
		City:        l.City,
		Industry:    l.Category,
		Description: desc,
	}
}
