package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit" mapstructure:"ratelimit"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Health     HealthConfig     `yaml:"health" mapstructure:"health"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Apify      ApifyConfig      `yaml:"apify" mapstructure:"apify"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	Apollo     ApolloConfig     `yaml:"apollo" mapstructure:"apollo"`
	Prospeo    APIKeyConfig     `yaml:"prospeo" mapstructure:"prospeo"`
	Hunter     APIKeyConfig     `yaml:"hunter" mapstructure:"hunter"`
	Firecrawl  APIKeyConfig     `yaml:"firecrawl" mapstructure:"firecrawl"`
	Jina       APIKeyConfig     `yaml:"jina" mapstructure:"jina"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Instantly  APIKeyConfig     `yaml:"instantly" mapstructure:"instantly"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Artifact   ArtifactConfig   `yaml:"artifact" mapstructure:"artifact"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// PipelineConfig configures a run.
type PipelineConfig struct {
	Source             string   `yaml:"source" mapstructure:"source"`
	Concurrency        int      `yaml:"concurrency" mapstructure:"concurrency"`
	RunTimeoutSecs     int      `yaml:"run_timeout_secs" mapstructure:"run_timeout_secs"`
	ProviderOrder      []string `yaml:"provider_order" mapstructure:"provider_order"`
	Verifier           string   `yaml:"verifier" mapstructure:"verifier"`
	WaterfallFile      string   `yaml:"waterfall_file" mapstructure:"waterfall_file"`
	MaxResultsPerQuery int      `yaml:"max_results_per_query" mapstructure:"max_results_per_query"`
	CampaignID         string   `yaml:"campaign_id" mapstructure:"campaign_id"`
	SyncCRM            bool     `yaml:"sync_crm" mapstructure:"sync_crm"`
}

// ProviderLimit sizes one provider's token bucket.
type ProviderLimit struct {
	RPS       float64 `yaml:"rps" mapstructure:"rps"`
	Burst     int     `yaml:"burst" mapstructure:"burst"`
	MaxWaitMs int     `yaml:"max_wait_ms" mapstructure:"max_wait_ms"`
}

// RateLimitConfig holds the default bucket and per-provider overrides.
type RateLimitConfig struct {
	Default   ProviderLimit            `yaml:"default" mapstructure:"default"`
	Providers map[string]ProviderLimit `yaml:"providers" mapstructure:"providers"`
}

// RetryConfig configures the retry policy shared by every provider call.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	Jitter           float64 `yaml:"jitter" mapstructure:"jitter"`
	ShortTimeoutSecs int     `yaml:"short_timeout_secs" mapstructure:"short_timeout_secs"`
	LongTimeoutSecs  int     `yaml:"long_timeout_secs" mapstructure:"long_timeout_secs"`
}

// CircuitConfig configures per-provider circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// HealthConfig holds campaign health thresholds as fractions.
type HealthConfig struct {
	BounceCeiling      float64 `yaml:"bounce_ceiling" mapstructure:"bounce_ceiling"`
	UnsubscribeCeiling float64 `yaml:"unsubscribe_ceiling" mapstructure:"unsubscribe_ceiling"`
	ReplyFloor         float64 `yaml:"reply_floor" mapstructure:"reply_floor"`
	MinSample          int     `yaml:"min_sample" mapstructure:"min_sample"`
}

// PricingConfig maps provider -> operation -> USD per unit. Entries
// override the built-in rate card.
type PricingConfig map[string]map[string]float64

// APIKeyConfig is the common shape of a key-authenticated HTTP provider.
type APIKeyConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ApifyConfig holds Apify settings.
type ApifyConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	ActorID  string `yaml:"actor_id" mapstructure:"actor_id"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	Language string `yaml:"language" mapstructure:"language"`
}

// GoogleConfig holds Google Places settings.
type GoogleConfig struct {
	Key      string `yaml:"key" mapstructure:"key"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	Language string `yaml:"language" mapstructure:"language"`
}

// ApolloConfig holds Apollo.io settings. The filters describe the ideal
// customer profile every people search is narrowed to.
type ApolloConfig struct {
	Key            string   `yaml:"key" mapstructure:"key"`
	BaseURL        string   `yaml:"base_url" mapstructure:"base_url"`
	Titles         []string `yaml:"titles" mapstructure:"titles"`
	Locations      []string `yaml:"locations" mapstructure:"locations"`
	EmployeeRanges []string `yaml:"employee_ranges" mapstructure:"employee_ranges"`
	IndustryIDs    []string `yaml:"industry_ids" mapstructure:"industry_ids"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// GeminiConfig holds Gemini API settings.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// Configured reports whether every JWT credential is present.
func (s SalesforceConfig) Configured() bool {
	return s.ClientID != "" && s.Username != "" && s.KeyPath != ""
}

// NotionConfig holds the Notion token and the search-queue database.
type NotionConfig struct {
	Token   string `yaml:"token" mapstructure:"token"`
	QueueDB string `yaml:"queue_db" mapstructure:"queue_db"`
}

// ArtifactConfig configures where run artifacts are written. BucketURL
// (s3://, gs://, file:///) wins over Dir.
type ArtifactConfig struct {
	BucketURL string `yaml:"bucket_url" mapstructure:"bucket_url"`
	Dir       string `yaml:"dir" mapstructure:"dir"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	Compress  bool   `yaml:"compress" mapstructure:"compress"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port          int    `yaml:"port" mapstructure:"port"`
	WebhookSecret string `yaml:"webhook_secret" mapstructure:"webhook_secret"`
}

// MonitoringConfig configures the background health checker.
type MonitoringConfig struct {
	WebhookURL   string   `yaml:"webhook_url" mapstructure:"webhook_url"`
	IntervalSecs int      `yaml:"interval_secs" mapstructure:"interval_secs"`
	Campaigns    []string `yaml:"campaigns" mapstructure:"campaigns"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "leadgen.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("pipeline.source", "apify")
	v.SetDefault("pipeline.concurrency", 5)
	v.SetDefault("pipeline.run_timeout_secs", 1800)
	v.SetDefault("pipeline.provider_order", []string{"prospeo", "hunter"})
	v.SetDefault("pipeline.max_results_per_query", 50)
	v.SetDefault("ratelimit.default.rps", 2.0)
	v.SetDefault("ratelimit.default.burst", 2)
	v.SetDefault("ratelimit.default.max_wait_ms", 30000)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter", 0.2)
	v.SetDefault("retry.short_timeout_secs", 30)
	v.SetDefault("retry.long_timeout_secs", 120)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 60)
	v.SetDefault("health.bounce_ceiling", 0.02)
	v.SetDefault("health.unsubscribe_ceiling", 0.02)
	v.SetDefault("health.reply_floor", 0.03)
	v.SetDefault("health.min_sample", 500)
	v.SetDefault("apify.actor_id", "compass~crawler-google-places")
	v.SetDefault("apify.language", "en")
	v.SetDefault("google.language", "en")
	v.SetDefault("apollo.titles", []string{"Owner", "Founder", "CEO", "President"})
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 200)
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("artifact.dir", "runs")
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.interval_secs", 900)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Mode names the command surface a configuration is validated for.
type Mode string

const (
	ModeRun    Mode = "run"
	ModeLive   Mode = "live"
	ModePush   Mode = "push"
	ModeHealth Mode = "health"
	ModeServe  Mode = "serve"
)

// Validate checks that everything mode needs is configured. It reports
// every problem at once so a run fails before any paid call.
func (c *Config) Validate(mode Mode) error {
	var problems []string
	need := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	switch c.Store.Driver {
	case "sqlite":
		need(c.Store.Path != "", "store.path is required for the sqlite driver")
	case "postgres":
		need(c.Store.DatabaseURL != "", "store.database_url is required for the postgres driver")
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q is not one of sqlite, postgres", c.Store.Driver))
	}

	need(c.Health.BounceCeiling > 0 && c.Health.BounceCeiling <= 1, "health.bounce_ceiling must be in (0, 1]")
	need(c.Health.UnsubscribeCeiling > 0 && c.Health.UnsubscribeCeiling <= 1, "health.unsubscribe_ceiling must be in (0, 1]")
	need(c.Health.ReplyFloor >= 0 && c.Health.ReplyFloor <= 1, "health.reply_floor must be in [0, 1]")

	switch mode {
	case ModeRun, ModeLive:
		switch c.Pipeline.Source {
		case "apify":
			need(c.Apify.Token != "", "apify.token is required for the apify source")
		case "google":
			need(c.Google.Key != "", "google.key is required for the google source")
		case "apollo":
			need(c.Apollo.Key != "", "apollo.key is required for the apollo source")
			need(len(c.Apollo.Titles) > 0, "apollo.titles must name at least one job title")
		default:
			problems = append(problems, fmt.Sprintf("pipeline.source %q is not one of apify, google, apollo", c.Pipeline.Source))
		}
		need(len(c.Pipeline.ProviderOrder) > 0 || c.Pipeline.WaterfallFile != "", "pipeline.provider_order must name at least one provider")
		for _, p := range c.Pipeline.ProviderOrder {
			switch p {
			case "prospeo":
				need(c.Prospeo.Key != "", "prospeo.key is required by pipeline.provider_order")
			case "hunter":
				need(c.Hunter.Key != "", "hunter.key is required by pipeline.provider_order")
			default:
				problems = append(problems, fmt.Sprintf("pipeline.provider_order names unknown provider %q", p))
			}
		}
		need(c.Pipeline.Concurrency > 0, "pipeline.concurrency must be positive")
		if mode == ModeLive {
			need(c.Instantly.Key != "", "instantly.key is required to push")
			need(c.Pipeline.CampaignID != "", "pipeline.campaign_id is required to push")
		}
	case ModePush:
		need(c.Instantly.Key != "", "instantly.key is required to push")
		need(c.Pipeline.CampaignID != "", "pipeline.campaign_id is required to push")
	case ModeHealth:
		need(c.Instantly.Key != "", "instantly.key is required to read campaign analytics")
	case ModeServe:
		need(c.Server.Port > 0, "server.port must be positive")
	default:
		problems = append(problems, fmt.Sprintf("unknown validation mode %q", mode))
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
