package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// SuppressionReason is why an identity must not be contacted.
type SuppressionReason string

const (
	ReasonOptOut        SuppressionReason = "opt-out"
	ReasonHardBounce    SuppressionReason = "hard-bounce"
	ReasonSpamComplaint SuppressionReason = "spam-complaint"
	ReasonManual        SuppressionReason = "manual"
	ReasonDeclined      SuppressionReason = "declined"
)

// ParseSuppressionReason validates a reason string.
func ParseSuppressionReason(s string) (SuppressionReason, error) {
	switch r := SuppressionReason(s); r {
	case ReasonOptOut, ReasonHardBounce, ReasonSpamComplaint, ReasonManual, ReasonDeclined:
		return r, nil
	default:
		return "", eris.Errorf("model: unknown suppression reason %q", s)
	}
}

// SuppressionEntry is one do-not-contact record keyed by normalized email.
type SuppressionEntry struct {
	Email   string            `json:"email"`
	Reason  SuppressionReason `json:"reason"`
	Source  string            `json:"source"`
	AddedAt time.Time         `json:"added_at"`
}
