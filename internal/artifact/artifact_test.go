package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"

	"github.com/sells-group/leadgen-cli/internal/model"
)

func testRun() *model.Run {
	lead := model.NewLead("Acme Plumbing", "1 Main St").WithEmail("bob@acme.com", 95, true, "prospeo")
	return &model.Run{
		ID:      "run-1",
		Queries: []string{"plumbers in austin"},
		Mode:    model.ModeDryRun,
		Leads:   []model.Lead{lead},
		Summary: model.Summary{
			RunID:   "run-1",
			Mode:    model.ModeDryRun,
			Verdict: model.VerdictDryRun,
			Counts:  model.Counts{Scraped: 1, Enriched: 1},
		},
		CreatedAt: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestWriter_RoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		t.Run(map[bool]string{false: "plain", true: "zstd"}[compress], func(t *testing.T) {
			ctx := context.Background()
			w, err := NewWriter(memblob.OpenBucket(nil), "runs", compress)
			require.NoError(t, err)
			defer w.Close() //nolint:errcheck

			key, err := w.WriteRun(ctx, testRun())
			require.NoError(t, err)
			if compress {
				assert.Equal(t, "runs/run-1/run.json.zst", key)
			} else {
				assert.Equal(t, "runs/run-1/run.json", key)
			}

			s, err := w.ReadSummary(ctx, "run-1")
			require.NoError(t, err)
			assert.Equal(t, model.VerdictDryRun, s.Verdict)
			assert.Equal(t, 1, s.Counts.Enriched)

			r, err := w.ReadRun(ctx, "run-1")
			require.NoError(t, err)
			require.Len(t, r.Leads, 1)
			assert.Equal(t, "bob@acme.com", r.Leads[0].Email)
		})
	}
}

func TestWriter_RequiresRunID(t *testing.T) {
	w, err := NewWriter(memblob.OpenBucket(nil), "", false)
	require.NoError(t, err)
	defer w.Close() //nolint:errcheck

	_, err = w.WriteRun(context.Background(), &model.Run{})
	require.Error(t, err)
}

func TestWriter_ReadMissing(t *testing.T) {
	w, err := NewWriter(memblob.OpenBucket(nil), "", false)
	require.NoError(t, err)
	defer w.Close() //nolint:errcheck

	_, err = w.ReadSummary(context.Background(), "nope")
	require.Error(t, err)
}

func TestOpen_LocalDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "artifacts")
	w, err := Open(context.Background(), Options{Dir: dir, Prefix: "/leadgen/"})
	require.NoError(t, err)

	_, err = w.WriteRun(context.Background(), testRun())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = os.Stat(filepath.Join(dir, "leadgen", "run-1", "summary.json"))
	assert.NoError(t, err)
}

func TestOpen_RequiresLocation(t *testing.T) {
	_, err := Open(context.Background(), Options{})
	require.Error(t, err)
}
