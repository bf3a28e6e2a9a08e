package model

import "time"

// CostEntry is one billable external call in the cost ledger.
type CostEntry struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id,omitempty"`
	Provider  string    `json:"provider"`
	Operation string    `json:"operation"`
	Units     int       `json:"units"`
	UnitPrice float64   `json:"unit_price"`
	CreatedAt time.Time `json:"created_at"`
}

// Amount is units times unit price.
func (e CostEntry) Amount() float64 {
	return float64(e.Units) * e.UnitPrice
}

// CostLine aggregates ledger entries sharing a provider and operation.
type CostLine struct {
	Provider  string  `json:"provider"`
	Operation string  `json:"operation"`
	Calls     int     `json:"calls"`
	Units     int     `json:"units"`
	Total     float64 `json:"total"`
}

// CostSummary is the read-side view of a ledger slice.
type CostSummary struct {
	Total     float64    `json:"total"`
	Breakdown []CostLine `json:"breakdown"`
}
