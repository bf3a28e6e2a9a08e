//go:build !integration

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/monitoring"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:      "abc12345-6789-0000-0000-000000000000",
			Queries: []string{"dentists in Austin TX", "dentists in Dallas TX"},
			Mode:    model.ModeLive,
			Summary: model.Summary{
				Verdict: model.VerdictPushed,
				Counts:  model.Counts{Scraped: 10, Enriched: 6, Pushed: 6},
				Cost:    model.CostSummary{Total: 0.11},
			},
			CreatedAt: now,
		},
		{
			ID:   "def12345-6789-0000-0000-000000000000",
			Mode: model.ModeDryRun,
			Summary: model.Summary{
				Verdict: model.VerdictDryRun,
			},
			CreatedAt: now.Add(-time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "VERDICT")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "pushed")
	assert.Contains(t, output, "dry-run")
	assert.Contains(t, output, "$0.11")
	assert.Contains(t, output, "dentists in Austin TX (+1)")
	assert.Contains(t, output, "2025-06-15 10:30")
}

func TestFormatRunsList_LongQueryTruncated(t *testing.T) {
	runs := []model.Run{{
		ID:      "r1",
		Queries: []string{strings.Repeat("plumbers ", 10)},
	}}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	assert.Contains(t, buf.String(), "...")
	assert.NotContains(t, buf.String(), strings.Repeat("plumbers ", 10))
}

func TestTruncateID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abc12345-6789-0000", "abc12345"},
		{"short", "short"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncateID(tt.in))
	}
}

func TestFormatCosts(t *testing.T) {
	since := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	sum := model.CostSummary{
		Total: 0.118,
		Breakdown: []model.CostLine{
			{Provider: "apify", Operation: "places_search", Calls: 1, Units: 10, Total: 0.04},
			{Provider: "prospeo", Operation: "domain_search", Calls: 8, Units: 8, Total: 0.078},
		},
	}

	var buf bytes.Buffer
	formatCosts(&buf, since, sum)

	output := buf.String()
	assert.Contains(t, output, "Spend since 2025-06-01 00:00")
	assert.Contains(t, output, "places_search")
	assert.Contains(t, output, "prospeo")
	assert.Contains(t, output, "0.0780")
	assert.Contains(t, output, "TOTAL")
	assert.Contains(t, output, "0.1180")
}

func TestFormatVerdicts(t *testing.T) {
	verdicts := []monitoring.Verdict{
		{
			Level:   monitoring.LevelBlock,
			Reasons: []string{"bounce rate 3.00% is above the 2.00% ceiling"},
			Metrics: model.CampaignMetrics{CampaignID: "camp-1", Sent: 1000, Bounced: 30, Replied: 40},
		},
		{
			Level:   monitoring.LevelHealthy,
			Metrics: model.CampaignMetrics{CampaignID: "camp-2"},
		},
	}

	var buf bytes.Buffer
	formatVerdicts(&buf, verdicts)

	output := buf.String()
	assert.Contains(t, output, "camp-1: BLOCK")
	assert.Contains(t, output, "bounced 30 (3.00%)")
	assert.Contains(t, output, "replied 40 (4.00%)")
	assert.Contains(t, output, "- bounce rate 3.00%")
	assert.Contains(t, output, "camp-2: HEALTHY")
}

func TestFormatSuppressions(t *testing.T) {
	entries := []model.SuppressionEntry{
		{Email: "a@x.com", Reason: model.ReasonOptOut, Source: "webhook", AddedAt: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)},
		{Email: "b@y.com", Reason: model.ReasonHardBounce, Source: "import"},
	}

	var buf bytes.Buffer
	formatSuppressions(&buf, entries)

	output := buf.String()
	assert.Contains(t, output, "EMAIL")
	assert.Contains(t, output, "a@x.com")
	assert.Contains(t, output, "opt-out")
	assert.Contains(t, output, "hard-bounce")
	assert.Contains(t, output, "2025-06-02 09:00")
	assert.Contains(t, output, "2 suppressed")
}

func TestFormatChecks(t *testing.T) {
	results := []checkResult{
		{Name: "store", Status: "ok", Detail: "sqlite"},
		{Name: "hunter", Status: "FAIL", Detail: "hunter: HTTP 401", Err: errors.New("hunter: HTTP 401")},
		{Name: "notion", Status: "skipped", Detail: "not configured"},
	}

	var buf bytes.Buffer
	formatChecks(&buf, results)

	output := buf.String()
	assert.Contains(t, output, "CHECK")
	assert.Contains(t, output, "sqlite")
	assert.Contains(t, output, "FAIL")
	assert.Contains(t, output, "not configured")
}

func TestWriteSummary(t *testing.T) {
	s := model.Summary{
		RunID:          "run-1",
		Mode:           model.ModeDryRun,
		Verdict:        model.VerdictDryRun,
		Counts:         model.Counts{Scraped: 3},
		FailureReasons: map[string]int{"not_found": 1},
	}

	var buf bytes.Buffer
	require.NoError(t, writeSummary(&buf, s))

	var got model.Summary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, model.VerdictDryRun, got.Verdict)
	assert.Equal(t, 3, got.Counts.Scraped)
	assert.Equal(t, 1, got.FailureReasons["not_found"])
}
