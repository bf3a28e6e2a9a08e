package model

import "time"

// RunMode selects how the push stage behaves.
type RunMode string

const (
	ModeDryRun RunMode = "dry-run"
	ModeLive   RunMode = "live"
)

// RunVerdict is the terminal outcome of a run.
type RunVerdict string

const (
	VerdictPushed  RunVerdict = "pushed"
	VerdictDryRun  RunVerdict = "dry-run"
	VerdictBlocked RunVerdict = "blocked-by-health-check"
	VerdictAborted RunVerdict = "aborted"
)

// LeadFailure is one entry in a stage's failure ledger.
type LeadFailure struct {
	LeadID       string `json:"lead_id"`
	BusinessName string `json:"business_name"`
	Stage        Stage  `json:"stage"`
	Reason       string `json:"reason"`
	Detail       string `json:"detail,omitempty"`
}

// StageReport describes what happened at one stage.
type StageReport struct {
	Stage    Stage         `json:"stage"`
	In       int           `json:"in"`
	Out      int           `json:"out"`
	Failures []LeadFailure `json:"failures,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Counts are the headline numbers of a run.
type Counts struct {
	Scraped          int `json:"scraped"`
	Suppressed       int `json:"suppressed"`
	Enriched         int `json:"enriched"`
	FailedEnrichment int `json:"failed_enrichment"`
	Personalized     int `json:"personalized"`
	Pushed           int `json:"pushed"`
	Held             int `json:"held"`
	FailedPush       int `json:"failed_push"`
	Cancelled        int `json:"cancelled"`
}

// Summary is the terminal record of a run.
type Summary struct {
	RunID          string         `json:"run_id"`
	Mode           RunMode        `json:"mode"`
	Verdict        RunVerdict     `json:"verdict"`
	Health         string         `json:"health,omitempty"`
	Counts         Counts         `json:"counts"`
	Stages         []StageReport  `json:"stages"`
	Cost           CostSummary    `json:"cost"`
	FailureReasons map[string]int `json:"failure_reasons"`
	Warnings       []string       `json:"warnings,omitempty"`
	// Error is the run-level failure that aborted the run.
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Run is one end-to-end pipeline execution.
type Run struct {
	ID         string   `json:"id"`
	Queries    []string `json:"queries"`
	CampaignID string   `json:"campaign_id,omitempty"`
	Mode       RunMode  `json:"mode"`
	// Leads are the leads that came out of the push stage pushed, ready,
	// or held. Every other lead is in a stage failure ledger.
	Leads     []Lead            `json:"leads"`
	Attempts  []ProviderAttempt `json:"attempts,omitempty"`
	Summary   Summary           `json:"summary"`
	CreatedAt time.Time         `json:"created_at"`
}
