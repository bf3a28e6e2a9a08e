package provider

import (
	"context"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/pkg/hunter"
)

// Hunter adapts the Hunter client.
type Hunter struct {
	client hunter.Client
}

// NewHunter wraps c.
func NewHunter(c hunter.Client) *Hunter { return &Hunter{client: c} }

// Name implements Provider.
func (h *Hunter) Name() string { return "hunter" }

// Lookup implements Provider. The highest-confidence address is returned;
// it counts as verified only when Hunter's last check said "valid".
func (h *Hunter) Lookup(ctx context.Context, company Company) (*Result, error) {
	resp, err := h.client.DomainSearch(ctx, company.Domain)
	if err != nil {
		return nil, resilience.Classify(err)
	}

	var best *hunter.Email
	for i := range resp.Data.Emails {
		e := &resp.Data.Emails[i]
		if !model.ValidEmail(e.Value) {
			continue
		}
		if best == nil || e.Confidence > best.Confidence {
			best = e
		}
	}
	if best == nil {
		return NotFound(resp.Raw), nil
	}

	res := &Result{Outcome: model.OutcomeFoundUnverified, Email: best.Value, Confidence: best.Confidence, Raw: resp.Raw}
	if best.Verification.Status == "valid" {
		res.Outcome = model.OutcomeFoundVerified
	}
	return res, nil
}

// Verify implements Provider.
func (h *Hunter) Verify(ctx context.Context, email string) (*Verification, error) {
	resp, err := h.client.VerifyEmail(ctx, email)
	if err != nil {
		return nil, resilience.Classify(err)
	}
	return &Verification{Valid: resp.Valid(), Status: resp.Data.Status, Raw: resp.Raw}, nil
}
