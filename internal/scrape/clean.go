package scrape

import (
	"strings"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// Sanitize normalizes the source attributes of a scraped lead. A website
// that fails sanitation is dropped (the lead skips research) and a
// malformed email is discarded so enrichment looks one up instead.
func Sanitize(l model.Lead) model.Lead {
	l.BusinessName = strings.TrimSpace(l.BusinessName)
	l.Address = strings.TrimSpace(l.Address)
	l.City = strings.TrimSpace(l.City)
	l.Phone = model.NormalizePhone(l.Phone)

	if l.Website != "" {
		if u, err := model.SanitizeURL(l.Website); err == nil {
			l.Website = u
		} else {
			l.Website = ""
		}
	}

	l.Email = strings.ToLower(strings.TrimSpace(l.Email))
	if l.Email != "" && !model.ValidEmail(l.Email) {
		l.Email = ""
	}
	l.EmailVerified = false
	l.EmailConfidence = 0
	l.EnrichmentSource = ""
	if l.ID == "" {
		l.ID = model.LeadID(l.BusinessName, l.Address)
	}
	l.Status = model.LeadStatusPending
	return l
}

// Dedupe keeps the first lead per stable ID, preserving order.
func Dedupe(leads []model.Lead) []model.Lead {
	seen := make(map[string]struct{}, len(leads))
	out := make([]model.Lead, 0, len(leads))
	for _, l := range leads {
		if _, ok := seen[l.ID]; ok {
			continue
		}
		seen[l.ID] = struct{}{}
		out = append(out, l)
	}
	return out
}
