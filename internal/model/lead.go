package model

import (
	"strings"

	"github.com/google/uuid"
)

// Stage names one step of a pipeline run.
type Stage string

const (
	StageScraping        Stage = "scraping"
	StageSuppression     Stage = "suppression"
	StageEnrichment      Stage = "enrichment"
	StagePersonalization Stage = "personalization"
	StagePush            Stage = "push"
	StageSummary         Stage = "summary"
)

// Stages lists every stage in execution order.
var Stages = []Stage{
	StageScraping,
	StageSuppression,
	StageEnrichment,
	StagePersonalization,
	StagePush,
	StageSummary,
}

// LeadStatus is the per-stage status tag carried by a Lead.
type LeadStatus string

const (
	LeadStatusPending    LeadStatus = "pending"
	LeadStatusEnriched   LeadStatus = "enriched"
	LeadStatusSuppressed LeadStatus = "suppressed"
	LeadStatusReady      LeadStatus = "ready"
	LeadStatusPushed     LeadStatus = "pushed"
	LeadStatusHeld       LeadStatus = "held"
	LeadStatusCancelled  LeadStatus = "failed:cancelled"
)

// FailedStatus returns the failure tag for the given stage.
func FailedStatus(stage Stage) LeadStatus {
	return LeadStatus("failed:" + string(stage))
}

// Failed reports whether the status is any failure tag.
func (s LeadStatus) Failed() bool {
	return strings.HasPrefix(string(s), "failed:")
}

// leadNamespace scopes stable lead IDs.
var leadNamespace = uuid.MustParse("8f5f7f0e-3b9c-4c55-9d1e-6a0c2f1b7e42")

// LeadID derives the stable identifier for a business from its name and
// address. The same listing scraped twice yields the same ID.
func LeadID(businessName, address string) string {
	key := strings.ToLower(strings.TrimSpace(businessName)) + "|" + strings.ToLower(strings.TrimSpace(address))
	return uuid.NewSHA1(leadNamespace, []byte(key)).String()
}

// WebsiteFacts are the structured facts derived from a lead's website.
type WebsiteFacts struct {
	MainService    string `json:"main_service"`
	SpecificDetail string `json:"specific_detail"`
	PainPoint      string `json:"pain_point"`
	TechStack      string `json:"tech_stack"`
}

// Empty reports whether no fact was derived.
func (f WebsiteFacts) Empty() bool {
	return f.MainService == "" && f.SpecificDetail == "" && f.PainPoint == "" && f.TechStack == ""
}

// Lead is one prospective contact. Values are never mutated once they have
// been emitted by a stage; the With* helpers return modified copies.
type Lead struct {
	ID string `json:"id"`

	// Source attributes.
	BusinessName string  `json:"business_name"`
	Phone        string  `json:"phone,omitempty"`
	Website      string  `json:"website,omitempty"`
	Address      string  `json:"address,omitempty"`
	City         string  `json:"city,omitempty"`
	Category     string  `json:"category,omitempty"`
	Rating       float64 `json:"rating,omitempty"`
	ReviewCount  int     `json:"review_count,omitempty"`
	Query        string  `json:"query,omitempty"`

	// Enrichment attributes.
	Email            string `json:"email,omitempty"`
	EmailVerified    bool   `json:"email_verified"`
	EmailConfidence  int    `json:"email_confidence,omitempty"`
	EnrichmentSource string `json:"enrichment_source,omitempty"`

	// Personalization attributes.
	Facts     WebsiteFacts `json:"facts"`
	FirstLine string       `json:"first_line,omitempty"`

	Status LeadStatus `json:"status"`
}

// NewLead builds a pending lead with its stable ID filled in.
func NewLead(businessName, address string) Lead {
	return Lead{
		ID:           LeadID(businessName, address),
		BusinessName: strings.TrimSpace(businessName),
		Address:      strings.TrimSpace(address),
		Status:       LeadStatusPending,
	}
}

// WithStatus returns a copy of l tagged with s.
func (l Lead) WithStatus(s LeadStatus) Lead {
	l.Status = s
	return l
}

// Survived reports whether l left the push stage pushed, ready, or held.
func (l Lead) Survived() bool {
	switch l.Status {
	case LeadStatusPushed, LeadStatusReady, LeadStatusHeld:
		return true
	}
	return false
}

// WithEmail returns a copy of l carrying the given contact address.
func (l Lead) WithEmail(email string, confidence int, verified bool, source string) Lead {
	l.Email = email
	l.EmailConfidence = confidence
	l.EmailVerified = verified
	l.EnrichmentSource = source
	if verified {
		l.Status = LeadStatusEnriched
	}
	return l
}

// WithPersonalization returns a copy of l with derived facts and opening line.
func (l Lead) WithPersonalization(facts WebsiteFacts, firstLine string) Lead {
	l.Facts = facts
	l.FirstLine = firstLine
	return l
}

// Contactable reports whether l has a verified address that may be pushed.
func (l Lead) Contactable() bool {
	return l.Email != "" && l.EmailVerified
}

// Domain returns the bare host of the lead's website, if any.
func (l Lead) Domain() string {
	return DomainOf(l.Website)
}
