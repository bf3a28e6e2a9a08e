package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/pkg/prospeo"
)

// Prospeo adapts the Prospeo client.
type Prospeo struct {
	client prospeo.Client
}

// NewProspeo wraps c.
func NewProspeo(c prospeo.Client) *Prospeo { return &Prospeo{client: c} }

// Name implements Provider.
func (p *Prospeo) Name() string { return "prospeo" }

// Lookup implements Provider. A verified address wins over an unverified one.
func (p *Prospeo) Lookup(ctx context.Context, company Company) (*Result, error) {
	resp, err := p.client.DomainSearch(ctx, company.Domain)
	if err != nil {
		if noResult(err) {
			return NotFound(nil), nil
		}
		return nil, resilience.Classify(err)
	}

	var best *prospeo.Email
	for i := range resp.Response.Emails {
		e := &resp.Response.Emails[i]
		if !model.ValidEmail(e.Email) {
			continue
		}
		if e.Verified() {
			best = e
			break
		}
		if best == nil {
			best = e
		}
	}
	if best == nil {
		return NotFound(resp.Raw), nil
	}

	res := &Result{Outcome: model.OutcomeFoundUnverified, Email: best.Email, Confidence: 70, Raw: resp.Raw}
	if best.Verified() {
		res.Outcome = model.OutcomeFoundVerified
		res.Confidence = 95
	}
	return res, nil
}

// Verify implements Provider.
func (p *Prospeo) Verify(ctx context.Context, email string) (*Verification, error) {
	resp, err := p.client.VerifyEmail(ctx, email)
	if err != nil {
		return nil, resilience.Classify(err)
	}
	return &Verification{Valid: resp.Valid(), Status: resp.Response.Result, Raw: resp.Raw}, nil
}

// noResult reports Prospeo's "no result" answer, which arrives as a 4xx with
// a NO_RESULT error code rather than an empty list.
func noResult(err error) bool {
	var apiErr *prospeo.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode == http.StatusNotFound {
		return true
	}
	return apiErr.StatusCode == http.StatusBadRequest && strings.Contains(apiErr.Body, "NO_RESULT")
}
