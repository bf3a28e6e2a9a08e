package suppression

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/model"
)

type memStore struct {
	mu      sync.Mutex
	rows    map[string]model.SuppressionEntry
	failFor string
}

func newMemStore() *memStore { return &memStore{rows: make(map[string]model.SuppressionEntry)} }

func (m *memStore) UpsertSuppression(_ context.Context, e model.SuppressionEntry) error {
	if m.failFor != "" && e.Email == m.failFor {
		return errors.New("write failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[e.Email] = e
	return nil
}

func (m *memStore) ListSuppressions(context.Context) ([]model.SuppressionEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SuppressionEntry
	for _, e := range m.rows {
		out = append(out, e)
	}
	return out, nil
}

func lead(name, email string) model.Lead {
	l := model.NewLead(name, name+" street")
	l.Email = email
	return l
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "owner@acme.com", Normalize("  Owner@ACME.com\t"))
	assert.Equal(t, Normalize("STRASSE@x.de"), Normalize("strasse@x.de"))
}

func TestGate_AddAndLookup(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	g, err := Load(ctx, store)
	require.NoError(t, err)

	e, err := g.Add(ctx, " Owner@Acme.com ", model.ReasonOptOut, "webhook")
	require.NoError(t, err)
	assert.Equal(t, "owner@acme.com", e.Email)
	assert.True(t, g.IsSuppressed("OWNER@acme.com"))
	assert.Contains(t, store.rows, "owner@acme.com")

	_, err = g.Add(ctx, "owner@acme.com", model.ReasonHardBounce, "instantly")
	require.NoError(t, err)
	got, ok := g.Lookup("owner@acme.com")
	require.True(t, ok)
	assert.Equal(t, model.ReasonHardBounce, got.Reason)
	assert.Equal(t, 1, g.Len())
}

func TestGate_AddRejectsMalformed(t *testing.T) {
	g, err := Load(context.Background(), newMemStore())
	require.NoError(t, err)

	_, err = g.Add(context.Background(), "not-an-email", model.ReasonManual, "cli")
	assert.Error(t, err)
	_, err = g.Add(context.Background(), "a@b.com", model.SuppressionReason("whim"), "cli")
	assert.Error(t, err)
	assert.Zero(t, g.Len())
}

func TestGate_FailedPersistNotVisible(t *testing.T) {
	store := newMemStore()
	store.failFor = "a@b.com"
	g, err := Load(context.Background(), store)
	require.NoError(t, err)

	_, err = g.Add(context.Background(), "a@b.com", model.ReasonManual, "cli")
	require.Error(t, err)
	assert.False(t, g.IsSuppressed("a@b.com"))
}

func TestGate_BulkAddIsolatesFailures(t *testing.T) {
	g, err := Load(context.Background(), newMemStore())
	require.NoError(t, err)

	res := g.BulkAdd(context.Background(), []Request{
		{Identity: "one@x.com", Reason: model.ReasonManual},
		{Identity: "broken", Reason: model.ReasonManual},
		{Identity: "two@x.com", Reason: model.ReasonDeclined},
	})
	assert.Equal(t, 2, res.Added)
	assert.NoError(t, res.Errors[0])
	assert.Error(t, res.Errors[1])
	assert.NoError(t, res.Errors[2])
	assert.True(t, g.IsSuppressed("two@x.com"))
}

func TestGate_Monotonic(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	g, err := Load(ctx, store)
	require.NoError(t, err)

	_, err = g.Add(ctx, "gone@x.com", model.ReasonSpamComplaint, "webhook")
	require.NoError(t, err)
	g.BulkAdd(ctx, []Request{{Identity: "other@x.com", Reason: model.ReasonManual}})
	assert.True(t, g.IsSuppressed("gone@x.com"))

	reloaded, err := Load(ctx, store)
	require.NoError(t, err)
	assert.True(t, reloaded.IsSuppressed("gone@x.com"))
	assert.True(t, reloaded.IsSuppressed("other@x.com"))
}

func TestGate_Filter(t *testing.T) {
	ctx := context.Background()
	g, err := Load(ctx, newMemStore())
	require.NoError(t, err)
	_, err = g.Add(ctx, "blocked@x.com", model.ReasonOptOut, "test")
	require.NoError(t, err)

	leads := []model.Lead{
		lead("a", "ok@x.com"),
		lead("b", " BLOCKED@x.com"),
		lead("c", ""),
	}
	allowed, suppressed := g.Filter(leads)
	require.Len(t, allowed, 2)
	require.Len(t, suppressed, 1)
	assert.Equal(t, model.LeadStatusSuppressed, suppressed[0].Status)
	assert.Equal(t, model.LeadStatusPending, leads[1].Status, "input must not be mutated")

	again, none := g.Filter(allowed)
	assert.Equal(t, allowed, again)
	assert.Empty(t, none)
}

func TestGate_ConcurrentAdds(t *testing.T) {
	g, err := Load(context.Background(), newMemStore())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = g.Add(context.Background(), string(rune('a'+i%26))+"@x.com", model.ReasonManual, "t")
			_ = g.IsSuppressed("a@x.com")
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 26, g.Len())
}

func TestGate_ExportSorted(t *testing.T) {
	g, err := Load(context.Background(), nil)
	require.NoError(t, err)
	for _, e := range []string{"c@x.com", "a@x.com", "b@x.com"} {
		_, err := g.Add(context.Background(), e, model.ReasonManual, "t")
		require.NoError(t, err)
	}
	out := g.Export()
	require.Len(t, out, 3)
	assert.Equal(t, "a@x.com", out[0].Email)
	assert.Equal(t, "c@x.com", out[2].Email)
}
