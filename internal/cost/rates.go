// Package cost keeps the append-only ledger of billable provider calls.
package cost

import "strings"

// Rates maps provider -> operation -> estimated USD price per unit.
type Rates map[string]map[string]float64

// DefaultRates returns list prices for every provider operation the
// pipeline issues.
func DefaultRates() Rates {
	return Rates{
		"apify":      {"places_search": 0.0041},
		"google":     {"text_search": 0.032},
		"apollo":     {"people_search": 0.02},
		"prospeo":    {"domain_search": 0.01, "verify": 0.005},
		"hunter":     {"domain_search": 0.015, "verify": 0.01},
		"firecrawl":  {"scrape": 0.01},
		"jina":       {"read": 0.002},
		"gemini":     {"website_facts": 0.005},
		"anthropic":  {"first_line": 0.003, "classify_reply": 0.001, "draft_reply": 0.003},
		"instantly":  {"add_lead": 0, "campaign_analytics": 0},
		"salesforce": {"upsert_lead": 0},
	}
}

// Merge returns a copy of r with every price in over applied on top.
func (r Rates) Merge(over Rates) Rates {
	out := make(Rates, len(r))
	for p, ops := range r {
		out[p] = make(map[string]float64, len(ops))
		for op, price := range ops {
			out[p][op] = price
		}
	}
	for p, ops := range over {
		p = strings.ToLower(p)
		if out[p] == nil {
			out[p] = make(map[string]float64, len(ops))
		}
		for op, price := range ops {
			out[p][strings.ToLower(op)] = price
		}
	}
	return out
}

// UnitPrice returns the price of one unit, or 0 when unknown.
func (r Rates) UnitPrice(provider, operation string) float64 {
	return r[strings.ToLower(provider)][strings.ToLower(operation)]
}
