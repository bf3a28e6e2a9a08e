package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "leadgen.db", cfg.Store.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "apify", cfg.Pipeline.Source)
	assert.Equal(t, 5, cfg.Pipeline.Concurrency)
	assert.Equal(t, []string{"prospeo", "hunter"}, cfg.Pipeline.ProviderOrder)
	assert.Equal(t, 50, cfg.Pipeline.MaxResultsPerQuery)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 30, cfg.Retry.ShortTimeoutSecs)
	assert.Equal(t, 120, cfg.Retry.LongTimeoutSecs)
	assert.InDelta(t, 2.0, cfg.RateLimit.Default.RPS, 0.001)
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
	assert.InDelta(t, 0.02, cfg.Health.BounceCeiling, 0.0001)
	assert.InDelta(t, 0.02, cfg.Health.UnsubscribeCeiling, 0.0001)
	assert.InDelta(t, 0.03, cfg.Health.ReplyFloor, 0.0001)
	assert.Equal(t, 500, cfg.Health.MinSample)
	assert.Equal(t, "compass~crawler-google-places", cfg.Apify.ActorID)
	assert.Equal(t, []string{"Owner", "Founder", "CEO", "President"}, cfg.Apollo.Titles)
	assert.Equal(t, "gemini-2.0-flash", cfg.Gemini.Model)
	assert.Equal(t, "https://login.salesforce.com", cfg.Salesforce.LoginURL)
	assert.Equal(t, "runs", cfg.Artifact.Dir)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 900, cfg.Monitoring.IntervalSecs)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/leadgen
log:
  level: debug
  format: console
pipeline:
  concurrency: 8
  provider_order: [hunter]
  campaign_id: camp-1
ratelimit:
  providers:
    hunter:
      rps: 0.5
      burst: 1
pricing:
  hunter:
    domain_search: 0.02
monitoring:
  campaigns: [camp-1, camp-2]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 8, cfg.Pipeline.Concurrency)
	assert.Equal(t, []string{"hunter"}, cfg.Pipeline.ProviderOrder)
	assert.Equal(t, "camp-1", cfg.Pipeline.CampaignID)
	assert.InDelta(t, 0.5, cfg.RateLimit.Providers["hunter"].RPS, 0.001)
	assert.InDelta(t, 0.02, cfg.Pricing["hunter"]["domain_search"], 0.0001)
	assert.Equal(t, []string{"camp-1", "camp-2"}, cfg.Monitoring.Campaigns)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("LEADGEN_STORE_DRIVER", "postgres")
	t.Setenv("LEADGEN_LOG_LEVEL", "warn")
	t.Setenv("LEADGEN_PROSPEO_KEY", "pk_test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "pk_test", cfg.Prospeo.Key)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config that passes validation for every mode.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = "leadgen.db"
	cfg.Pipeline.Source = "apify"
	cfg.Pipeline.Concurrency = 5
	cfg.Pipeline.ProviderOrder = []string{"prospeo", "hunter"}
	cfg.Pipeline.CampaignID = "camp-1"
	cfg.Health = HealthConfig{BounceCeiling: 0.02, UnsubscribeCeiling: 0.02, ReplyFloor: 0.03, MinSample: 500}
	cfg.Apify.Token = "apify_token"
	cfg.Prospeo.Key = "pk"
	cfg.Hunter.Key = "hk"
	cfg.Instantly.Key = "ik"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_AllModes(t *testing.T) {
	for _, mode := range []Mode{ModeRun, ModeLive, ModePush, ModeHealth, ModeServe} {
		t.Run(string(mode), func(t *testing.T) {
			assert.NoError(t, validDefaults().Validate(mode))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mode   Mode
		mutate func(*Config)
		want   []string
	}{
		{
			name:   "missing scrape token",
			mode:   ModeRun,
			mutate: func(c *Config) { c.Apify.Token = "" },
			want:   []string{"apify.token is required"},
		},
		{
			name:   "google source needs key",
			mode:   ModeRun,
			mutate: func(c *Config) { c.Pipeline.Source = "google" },
			want:   []string{"google.key is required"},
		},
		{
			name: "apollo source needs key and titles",
			mode: ModeRun,
			mutate: func(c *Config) {
				c.Pipeline.Source = "apollo"
				c.Apollo.Titles = nil
			},
			want: []string{"apollo.key is required", "apollo.titles must name"},
		},
		{
			name:   "unknown source",
			mode:   ModeRun,
			mutate: func(c *Config) { c.Pipeline.Source = "yelp" },
			want:   []string{`pipeline.source "yelp"`},
		},
		{
			name: "provider keys",
			mode: ModeRun,
			mutate: func(c *Config) {
				c.Prospeo.Key = ""
				c.Hunter.Key = ""
			},
			want: []string{"prospeo.key is required", "hunter.key is required"},
		},
		{
			name:   "unknown provider",
			mode:   ModeRun,
			mutate: func(c *Config) { c.Pipeline.ProviderOrder = []string{"clearbit"} },
			want:   []string{`unknown provider "clearbit"`},
		},
		{
			name:   "empty order",
			mode:   ModeRun,
			mutate: func(c *Config) { c.Pipeline.ProviderOrder = nil },
			want:   []string{"provider_order must name at least one provider"},
		},
		{
			name:   "dry run does not need instantly",
			mode:   ModeRun,
			mutate: func(c *Config) { c.Instantly.Key = "" },
		},
		{
			name: "live run needs instantly and campaign",
			mode: ModeLive,
			mutate: func(c *Config) {
				c.Instantly.Key = ""
				c.Pipeline.CampaignID = ""
			},
			want: []string{"instantly.key is required to push", "pipeline.campaign_id is required to push"},
		},
		{
			name:   "push needs campaign",
			mode:   ModePush,
			mutate: func(c *Config) { c.Pipeline.CampaignID = "" },
			want:   []string{"pipeline.campaign_id is required"},
		},
		{
			name:   "health needs instantly",
			mode:   ModeHealth,
			mutate: func(c *Config) { c.Instantly.Key = "" },
			want:   []string{"instantly.key is required to read campaign analytics"},
		},
		{
			name:   "serve port",
			mode:   ModeServe,
			mutate: func(c *Config) { c.Server.Port = 0 },
			want:   []string{"server.port must be positive"},
		},
		{
			name: "postgres needs url",
			mode: ModeServe,
			mutate: func(c *Config) {
				c.Store.Driver = "postgres"
			},
			want: []string{"store.database_url is required"},
		},
		{
			name:   "unknown driver",
			mode:   ModeServe,
			mutate: func(c *Config) { c.Store.Driver = "mysql" },
			want:   []string{`store.driver "mysql"`},
		},
		{
			name:   "health thresholds",
			mode:   ModeServe,
			mutate: func(c *Config) { c.Health.BounceCeiling = 0; c.Health.ReplyFloor = 2 },
			want:   []string{"health.bounce_ceiling", "health.reply_floor"},
		},
		{
			name:   "unknown mode",
			mode:   Mode("export"),
			mutate: func(*Config) {},
			want:   []string{"unknown validation mode"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate(tt.mode)
			if len(tt.want) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestSalesforceConfigured(t *testing.T) {
	assert.False(t, SalesforceConfig{}.Configured())
	assert.True(t, SalesforceConfig{ClientID: "id", Username: "u", KeyPath: "/k.pem"}.Configured())
}
