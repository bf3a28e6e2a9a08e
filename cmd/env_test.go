//go:build !integration

package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/monitoring"
	"github.com/sells-group/leadgen-cli/internal/suppression"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store: config.StoreConfig{
			Driver: "sqlite",
			Path:   filepath.Join(t.TempDir(), "leadgen.db"),
		},
		Retry:    config.RetryConfig{MaxAttempts: 1, InitialBackoffMs: 1, MaxBackoffMs: 1},
		Pipeline: config.PipelineConfig{Concurrency: 2, MaxResultsPerQuery: 20},
		Artifact: config.ArtifactConfig{Dir: t.TempDir()},
	}
}

func TestInitStore_SQLite(t *testing.T) {
	cfg = testConfig(t)

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	assert.NoError(t, st.Ping(context.Background()))
	list, err := st.ListSuppressions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestInitStore_UnknownDriver(t *testing.T) {
	cfg = testConfig(t)
	cfg.Store.Driver = "mysql"

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mysql")
}

func TestOpenEnv_LoadsSuppressions(t *testing.T) {
	cfg = testConfig(t)
	ctx := context.Background()

	e, err := openEnv(ctx, "run-1")
	require.NoError(t, err)
	_, err = e.gate.Add(ctx, "Owner@Example.com", model.ReasonOptOut, "test")
	require.NoError(t, err)
	e.Close()

	e, err = openEnv(ctx, "run-2")
	require.NoError(t, err)
	defer e.Close()
	assert.True(t, e.gate.IsSuppressed("owner@example.com"))
	assert.NotNil(t, e.exec)
	assert.Equal(t, 0.0, e.tracker.Summary().Total)
}

func TestBuildEnricher(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(c *config.Config)
		wantErr string
		order   []string
	}{
		{
			name: "keyed providers in order",
			setup: func(c *config.Config) {
				c.Prospeo.Key = "p"
				c.Hunter.Key = "h"
				c.Pipeline.ProviderOrder = []string{"prospeo", "hunter"}
			},
			order: []string{"prospeo", "hunter"},
		},
		{
			name: "provider without key",
			setup: func(c *config.Config) {
				c.Prospeo.Key = "p"
				c.Pipeline.ProviderOrder = []string{"prospeo", "hunter"}
			},
			wantErr: `provider "hunter" is not configured`,
		},
		{
			name: "verifier without key",
			setup: func(c *config.Config) {
				c.Prospeo.Key = "p"
				c.Pipeline.ProviderOrder = []string{"prospeo"}
				c.Pipeline.Verifier = "hunter"
			},
			wantErr: `verifier "hunter" is not configured`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConfig(t)
			tt.setup(c)

			eng, err := buildEnricher(c, newExecutor(c, nil))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.order, eng.Order())
		})
	}
}

func TestBuildEnricher_WaterfallFile(t *testing.T) {
	c := testConfig(t)
	c.Prospeo.Key = "p"
	c.Hunter.Key = "h"
	c.Pipeline.ProviderOrder = []string{"prospeo"}

	path := filepath.Join(t.TempDir(), "waterfall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`waterfall:
  order: [hunter, prospeo]
  providers:
    hunter:
      max_attempts: 2
`), 0o600))
	c.Pipeline.WaterfallFile = path

	eng, err := buildEnricher(c, newExecutor(c, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"hunter", "prospeo"}, eng.Order())
}

func TestBuildPersonalizer_DisabledWithoutScraper(t *testing.T) {
	c := testConfig(t)
	c.Anthropic.Key = "a"

	p, err := buildPersonalizer(context.Background(), c, newExecutor(c, nil))
	require.NoError(t, err)
	assert.Nil(t, p)

	c.Firecrawl.Key = "f"
	p, err = buildPersonalizer(context.Background(), c, newExecutor(c, nil))
	require.NoError(t, err)
	assert.NotNil(t, p)

	c.Firecrawl.Key = ""
	c.Jina.Key = "j"
	p, err = buildPersonalizer(context.Background(), c, newExecutor(c, nil))
	require.NoError(t, err)
	assert.NotNil(t, p, "the reader alone enables personalization")
}

func TestBuildPusher_IncompleteCRM(t *testing.T) {
	c := testConfig(t)
	c.Instantly.Key = "i"
	c.Pipeline.SyncCRM = true
	c.Salesforce.ClientID = "client"

	gate, err := suppression.Load(context.Background(), nil)
	require.NoError(t, err)

	_, err = buildPusher(c, newExecutor(c, nil), gate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "salesforce")

	c.Pipeline.SyncCRM = false
	p, err := buildPusher(c, newExecutor(c, nil), gate)
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestBuildScraper_NoSources(t *testing.T) {
	c := testConfig(t)
	c.Pipeline.Source = "apify"

	_, err := buildScraper(c, newExecutor(c, nil)).Search(context.Background(), "dentists in Austin", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sources")
}

func TestBuildScraper_Apollo(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/mixed_people/search", r.URL.Path)
		assert.Equal(t, "ak", r.Header.Get("X-Api-Key"))
		_, _ = w.Write([]byte(`{"people":[{"first_name":"Ann","organization":{"name":"Acme Dental","website_url":"https://acmedental.com","city":"Austin"}}],"pagination":{"page":1,"total_pages":1}}`))
	}))
	defer srv.Close()

	c := testConfig(t)
	c.Pipeline.Source = "apollo"
	c.Apollo.Key = "ak"
	c.Apollo.BaseURL = srv.URL
	c.Apollo.Titles = []string{"Owner"}

	leads, err := buildScraper(c, newExecutor(c, nil)).Search(context.Background(), "dentists", 5)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "Acme Dental", leads[0].BusinessName)
	assert.Equal(t, int32(1), hits.Load())
}

func TestHealthCheck_UnavailableBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testConfig(t)
	c.Instantly.Key = "i"
	c.Instantly.BaseURL = srv.URL

	v, err := healthCheck(c, newExecutor(c, nil))(context.Background(), "camp-1")
	require.Error(t, err)
	assert.Equal(t, monitoring.LevelBlock, v.Level)
	assert.True(t, v.Blocked())
	assert.Equal(t, "camp-1", v.Metrics.CampaignID)
}

func TestBuildPipeline_DryRun(t *testing.T) {
	cfg = testConfig(t)
	cfg.Google.Key = "g"
	cfg.Prospeo.Key = "p"
	cfg.Pipeline.Source = "google"
	cfg.Pipeline.ProviderOrder = []string{"prospeo"}
	ctx := context.Background()

	e, err := openEnv(ctx, "run-1")
	require.NoError(t, err)
	defer e.Close()

	p, cleanup, err := buildPipeline(ctx, e, model.ModeDryRun, 0)
	require.NoError(t, err)
	defer cleanup()
	assert.NotNil(t, p)
}

func TestSuppressCommand_AddAndImport(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "leadgen.db")
	t.Setenv("LEADGEN_STORE_PATH", dbPath)
	t.Setenv("LEADGEN_LOG_LEVEL", "error")

	rootCmd.SetArgs([]string{"suppress", "add", "Owner@Example.com", "--reason", "opt-out"})
	require.NoError(t, rootCmd.Execute())

	csvPath := filepath.Join(dir, "bounces.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("email,reason\nbounce@x.com,hard-bounce\nnot-an-email,\nplain@y.com,\n"), 0o600))
	rootCmd.SetArgs([]string{"suppress", "import", csvPath, "--reason", "manual"})
	require.NoError(t, rootCmd.Execute())

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	list, err := st.ListSuppressions(context.Background())
	require.NoError(t, err)
	got := make(map[string]model.SuppressionReason, len(list))
	for _, e := range list {
		got[e.Email] = e.Reason
	}
	assert.Equal(t, model.ReasonOptOut, got["owner@example.com"])
	assert.Equal(t, model.ReasonHardBounce, got["bounce@x.com"])
	assert.Equal(t, model.ReasonManual, got["plain@y.com"])
	assert.NotContains(t, got, "not-an-email")
}
