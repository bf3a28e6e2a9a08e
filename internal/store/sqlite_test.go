package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "leadgen.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	return s
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	s := newTestSQLiteStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
}

func TestSQLite_Suppressions_UpsertAndList(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.UpsertSuppression(ctx, model.SuppressionEntry{Email: "b@x.com", Reason: model.ReasonOptOut, Source: "webhook", AddedAt: now}))
	require.NoError(t, s.UpsertSuppression(ctx, model.SuppressionEntry{Email: "a@x.com", Reason: model.ReasonHardBounce, Source: "import", AddedAt: now}))
	require.NoError(t, s.UpsertSuppression(ctx, model.SuppressionEntry{Email: "b@x.com", Reason: model.ReasonSpamComplaint, Source: "webhook", AddedAt: now}))

	got, err := s.ListSuppressions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a@x.com", got[0].Email)
	assert.Equal(t, model.ReasonSpamComplaint, got[1].Reason)
	assert.True(t, now.Equal(got[1].AddedAt))
}

func TestSQLite_Suppressions_SurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leadgen.db")
	ctx := context.Background()

	s, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.UpsertSuppression(ctx, model.SuppressionEntry{Email: "a@x.com", Reason: model.ReasonManual, AddedAt: time.Now()}))
	require.NoError(t, s.AppendCost(ctx, model.CostEntry{Provider: "prospeo", Operation: "domain_search", Units: 1, UnitPrice: 0.01, CreatedAt: time.Now()}))
	require.NoError(t, s.Close())

	s2, err := NewSQLite(path)
	require.NoError(t, err)
	defer s2.Close() //nolint:errcheck
	require.NoError(t, s2.Migrate(ctx))

	sup, err := s2.ListSuppressions(ctx)
	require.NoError(t, err)
	assert.Len(t, sup, 1)

	costs, err := s2.ListCosts(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, costs, 1)
}

func TestSQLite_Costs_Since(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	for i, p := range []string{"apify", "prospeo", "hunter"} {
		require.NoError(t, s.AppendCost(ctx, model.CostEntry{
			RunID:     "run-1",
			Provider:  p,
			Operation: "call",
			Units:     i + 1,
			UnitPrice: 0.5,
			CreatedAt: base.Add(time.Duration(i) * 24 * time.Hour),
		}))
	}

	all, err := s.ListCosts(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "apify", all[0].Provider)
	assert.NotEmpty(t, all[0].ID)

	recent, err := s.ListCosts(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "prospeo", recent[0].Provider)
	assert.Equal(t, 2, recent[0].Units)
}

func TestSQLite_Runs_SaveGetList(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	lead := model.NewLead("Acme Plumbing", "1 Main St").WithEmail("bob@acme.com", 95, true, "prospeo")
	first := &model.Run{
		ID:         "run-1",
		Queries:    []string{"plumbers in austin"},
		CampaignID: "camp-1",
		Mode:       model.ModeDryRun,
		Leads:      []model.Lead{lead},
		Summary:    model.Summary{RunID: "run-1", Verdict: model.VerdictDryRun, Counts: model.Counts{Scraped: 1}},
		CreatedAt:  base,
	}
	second := &model.Run{
		ID:         "run-2",
		Queries:    []string{"dentists"},
		CampaignID: "camp-2",
		Mode:       model.ModeLive,
		Summary:    model.Summary{RunID: "run-2", Verdict: model.VerdictPushed},
		CreatedAt:  base.Add(time.Minute),
	}
	require.NoError(t, s.SaveRun(ctx, first))
	require.NoError(t, s.SaveRun(ctx, second))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"plumbers in austin"}, got.Queries)
	assert.Equal(t, model.ModeDryRun, got.Mode)
	require.Len(t, got.Leads, 1)
	assert.Equal(t, "bob@acme.com", got.Leads[0].Email)
	assert.Equal(t, 1, got.Summary.Counts.Scraped)

	runs, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Nil(t, runs[1].Leads)

	live, err := s.ListRuns(ctx, RunFilter{Mode: model.ModeLive})
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, model.VerdictPushed, live[0].Summary.Verdict)

	limited, err := s.ListRuns(ctx, RunFilter{CampaignID: "camp-1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "run-1", limited[0].ID)
}

func TestSQLite_Runs_SaveOverwritesSummary(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run := &model.Run{ID: "run-1", Mode: model.ModeLive, CreatedAt: time.Now()}
	require.NoError(t, s.SaveRun(ctx, run))

	run.Summary = model.Summary{Verdict: model.VerdictBlocked, Counts: model.Counts{Held: 4}}
	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictBlocked, got.Summary.Verdict)
	assert.Equal(t, 4, got.Summary.Counts.Held)
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_SaveRun_RequiresID(t *testing.T) {
	s := newTestSQLiteStore(t)
	require.Error(t, s.SaveRun(context.Background(), &model.Run{}))
}

func TestSQLite_HeldLeads(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	a := model.NewLead("Acme", "1 Main").WithEmail("a@acme.com", 90, true, "hunter")
	b := model.NewLead("Beta", "2 Main").WithEmail("b@beta.com", 90, true, "prospeo")
	c := model.NewLead("Gamma", "3 Main").WithEmail("c@gamma.com", 90, true, "prospeo")

	require.NoError(t, s.HoldLeads(ctx, "run-1", "camp-1", []model.Lead{a, b}))
	require.NoError(t, s.HoldLeads(ctx, "run-2", "camp-2", []model.Lead{c}))
	require.NoError(t, s.HoldLeads(ctx, "run-3", "camp-1", []model.Lead{a}))
	require.NoError(t, s.HoldLeads(ctx, "run-3", "camp-1", nil))

	held, err := s.ListHeldLeads(ctx, "camp-1")
	require.NoError(t, err)
	require.Len(t, held, 2)
	byID := map[string]HeldLead{}
	for _, h := range held {
		byID[h.Lead.ID] = h
	}
	assert.Equal(t, "run-3", byID[a.ID].RunID)
	assert.Equal(t, "b@beta.com", byID[b.ID].Lead.Email)

	all, err := s.ListHeldLeads(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, s.ReleaseHeldLeads(ctx, "camp-1", []string{a.ID, b.ID}))
	require.NoError(t, s.ReleaseHeldLeads(ctx, "camp-1", nil))

	held, err = s.ListHeldLeads(ctx, "camp-1")
	require.NoError(t, err)
	assert.Empty(t, held)

	other, err := s.ListHeldLeads(ctx, "camp-2")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}
