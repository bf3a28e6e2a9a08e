package model

import (
	"encoding/json"
	"time"
)

// AttemptOutcome is the normalized result of one enrichment provider call.
type AttemptOutcome string

const (
	OutcomeFoundVerified   AttemptOutcome = "found-verified"
	OutcomeFoundUnverified AttemptOutcome = "found-unverified"
	OutcomeNotFound        AttemptOutcome = "not-found"
	OutcomeError           AttemptOutcome = "error"
)

// ProviderAttempt records one enrichment or verification call for one lead.
type ProviderAttempt struct {
	LeadID     string          `json:"lead_id"`
	Provider   string          `json:"provider"`
	Operation  string          `json:"operation"`
	Outcome    AttemptOutcome  `json:"outcome"`
	Email      string          `json:"email,omitempty"`
	Latency    time.Duration   `json:"latency"`
	Error      string          `json:"error,omitempty"`
	PayloadRef string          `json:"payload_ref,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}
