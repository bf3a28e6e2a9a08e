package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// LeadSource tags every Lead created by the pipeline.
const LeadSource = "Cold Outreach"

// Lead is the subset of the Salesforce Lead object the pipeline writes.
type Lead struct {
	ID          string `json:"Id,omitempty" salesforce:"Id"`
	Company     string `json:"Company" salesforce:"Company"`
	LastName    string `json:"LastName" salesforce:"LastName"`
	Email       string `json:"Email" salesforce:"Email"`
	Phone       string `json:"Phone,omitempty" salesforce:"Phone"`
	Website     string `json:"Website,omitempty" salesforce:"Website"`
	City        string `json:"City,omitempty" salesforce:"City"`
	Industry    string `json:"Industry,omitempty" salesforce:"Industry"`
	Description string `json:"Description,omitempty" salesforce:"Description"`
}

func (l Lead) fields() map[string]any {
	lastName := l.LastName
	if lastName == "" {
		// LastName is required on Lead; fall back to the company.
		lastName = l.Company
	}
	return map[string]any{
		"Company":     l.Company,
		"LastName":    lastName,
		"Email":       l.Email,
		"Phone":       l.Phone,
		"Website":     l.Website,
		"City":        l.City,
		"Industry":    l.Industry,
		"Description": l.Description,
		"LeadSource":  LeadSource,
	}
}

// FindLeadByEmail returns the Lead with the given email, or nil.
func FindLeadByEmail(ctx context.Context, c Client, email string) (*Lead, error) {
	soql := fmt.Sprintf("SELECT Id, Company, LastName, Email FROM Lead WHERE Email = '%s' LIMIT 1", escapeSoql(email))

	var leads []Lead
	if err := c.Query(ctx, soql, &leads); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find lead by email %s", email))
	}
	if len(leads) == 0 {
		return nil, nil
	}
	return &leads[0], nil
}

// UpsertLead updates the Lead matching l.Email or creates one, returning its ID.
func UpsertLead(ctx context.Context, c Client, l Lead) (string, error) {
	if strings.TrimSpace(l.Email) == "" {
		return "", eris.New("sf: lead email is required")
	}
	if strings.TrimSpace(l.Company) == "" {
		return "", eris.New("sf: lead company is required")
	}

	existing, err := FindLeadByEmail(ctx, c, l.Email)
	if err != nil {
		return "", err
	}
	if existing != nil {
		if err := c.UpdateOne(ctx, "Lead", existing.ID, l.fields()); err != nil {
			return "", eris.Wrap(err, fmt.Sprintf("sf: update lead %s", existing.ID))
		}
		return existing.ID, nil
	}

	id, err := c.InsertOne(ctx, "Lead", l.fields())
	if err != nil {
		return "", eris.Wrap(err, "sf: create lead")
	}
	return id, nil
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
