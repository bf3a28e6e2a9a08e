// Package store persists the suppression set, the cost ledger, run records,
// and leads held back by a health block.
package store

import (
	"context"
	"time"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	CampaignID string        `json:"campaign_id,omitempty"`
	Mode       model.RunMode `json:"mode,omitempty"`
	Limit      int           `json:"limit,omitempty"`
	Offset     int           `json:"offset,omitempty"`
}

// HeldLead is a lead parked by a health block, waiting for a later push.
type HeldLead struct {
	RunID      string     `json:"run_id"`
	CampaignID string     `json:"campaign_id"`
	Lead       model.Lead `json:"lead"`
	HeldAt     time.Time  `json:"held_at"`
}

// Store defines the persistence interface for the pipeline. Every write is
// durable when it returns.
type Store interface {
	// Suppression
	UpsertSuppression(ctx context.Context, e model.SuppressionEntry) error
	ListSuppressions(ctx context.Context) ([]model.SuppressionEntry, error)

	// Cost ledger
	AppendCost(ctx context.Context, e model.CostEntry) error
	ListCosts(ctx context.Context, since time.Time) ([]model.CostEntry, error)

	// Runs
	SaveRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Held leads
	HoldLeads(ctx context.Context, runID, campaignID string, leads []model.Lead) error
	ListHeldLeads(ctx context.Context, campaignID string) ([]HeldLead, error)
	ReleaseHeldLeads(ctx context.Context, campaignID string, leadIDs []string) error

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const defaultRunLimit = 100

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
