package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/artifact"
	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/cost"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/monitoring"
	"github.com/sells-group/leadgen-cli/internal/personalize"
	"github.com/sells-group/leadgen-cli/internal/pipeline"
	"github.com/sells-group/leadgen-cli/internal/pushing"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/internal/scrape"
	"github.com/sells-group/leadgen-cli/internal/store"
	"github.com/sells-group/leadgen-cli/internal/suppression"
	"github.com/sells-group/leadgen-cli/internal/waterfall"
	"github.com/sells-group/leadgen-cli/internal/waterfall/provider"
	"github.com/sells-group/leadgen-cli/pkg/anthropic"
	"github.com/sells-group/leadgen-cli/pkg/apify"
	"github.com/sells-group/leadgen-cli/pkg/apollo"
	"github.com/sells-group/leadgen-cli/pkg/firecrawl"
	"github.com/sells-group/leadgen-cli/pkg/gemini"
	"github.com/sells-group/leadgen-cli/pkg/google"
	"github.com/sells-group/leadgen-cli/pkg/hunter"
	"github.com/sells-group/leadgen-cli/pkg/instantly"
	"github.com/sells-group/leadgen-cli/pkg/jina"
	"github.com/sells-group/leadgen-cli/pkg/prospeo"
	"github.com/sells-group/leadgen-cli/pkg/salesforce"
)

// initStore opens the configured store and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "sqlite", "":
		st, err = store.NewSQLite(cfg.Store.Path)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// env holds the collaborators shared by every command that calls providers.
type env struct {
	store   store.Store
	tracker *cost.Tracker
	exec    *resilience.Executor
	gate    *suppression.Gate
}

// openEnv opens the store, loads the suppression set, and builds an executor
// whose charges are tagged with runID.
func openEnv(ctx context.Context, runID string) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	gate, err := suppression.Load(ctx, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	tracker := cost.NewTracker(st, runID)
	return &env{
		store:   st,
		tracker: tracker,
		exec:    newExecutor(cfg, tracker),
		gate:    gate,
	}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}

func limitFromConfig(l config.ProviderLimit) resilience.LimitConfig {
	return resilience.LimitConfig{
		RPS:     l.RPS,
		Burst:   l.Burst,
		MaxWait: time.Duration(l.MaxWaitMs) * time.Millisecond,
	}
}

// newExecutor wires retry, rate limits, breakers, and cost reporting from c.
func newExecutor(c *config.Config, rec resilience.CostRecorder) *resilience.Executor {
	r := c.Retry
	policy := resilience.FromConfig(r.MaxAttempts, r.InitialBackoffMs, r.MaxBackoffMs,
		r.Multiplier, r.Jitter, r.ShortTimeoutSecs, r.LongTimeoutSecs)

	overrides := make(map[string]resilience.LimitConfig, len(c.RateLimit.Providers))
	for name, l := range c.RateLimit.Providers {
		overrides[name] = limitFromConfig(l)
	}

	opts := []resilience.Option{
		resilience.WithLimiters(resilience.NewLimiters(limitFromConfig(c.RateLimit.Default), overrides)),
		resilience.WithBreakers(resilience.NewBreakers(resilience.BreakerConfig{
			FailureThreshold: c.Circuit.FailureThreshold,
			ResetTimeout:     time.Duration(c.Circuit.ResetTimeoutSecs) * time.Second,
		})),
	}
	if rec != nil {
		opts = append(opts, resilience.WithCostRecorder(rec, cost.DefaultRates().Merge(cost.Rates(c.Pricing))))
	}
	return resilience.NewExecutor(policy, opts...)
}

// buildScraper returns the configured source first, then Google Places and
// Apollo as fallbacks when they are keyed.
func buildScraper(c *config.Config, exec *resilience.Executor) *scrape.Chain {
	var sources []scrape.Source
	if c.Pipeline.Source == "apify" && c.Apify.Token != "" {
		var opts []apify.Option
		if c.Apify.BaseURL != "" {
			opts = append(opts, apify.WithBaseURL(c.Apify.BaseURL))
		}
		sources = append(sources, scrape.NewApifySource(apify.NewClient(c.Apify.Token, opts...), exec, c.Apify.ActorID, c.Apify.Language))
	}
	var apolloSrc scrape.Source
	if c.Apollo.Key != "" {
		var opts []apollo.Option
		if c.Apollo.BaseURL != "" {
			opts = append(opts, apollo.WithBaseURL(c.Apollo.BaseURL))
		}
		apolloSrc = scrape.NewApolloSource(apollo.NewClient(c.Apollo.Key, opts...), exec, scrape.ApolloFilter{
			Titles:         c.Apollo.Titles,
			Locations:      c.Apollo.Locations,
			EmployeeRanges: c.Apollo.EmployeeRanges,
			IndustryIDs:    c.Apollo.IndustryIDs,
		})
		if c.Pipeline.Source == "apollo" {
			sources = append(sources, apolloSrc)
			apolloSrc = nil
		}
	}
	if c.Google.Key != "" {
		var opts []google.Option
		if c.Google.BaseURL != "" {
			opts = append(opts, google.WithBaseURL(c.Google.BaseURL))
		}
		sources = append(sources, scrape.NewGoogleSource(google.NewClient(c.Google.Key, opts...), exec, c.Google.Language))
	}
	if apolloSrc != nil {
		sources = append(sources, apolloSrc)
	}
	return scrape.NewChain(sources...)
}

// buildEnricher registers every keyed email provider and loads the waterfall
// order from pipeline.waterfall_file when set.
func buildEnricher(c *config.Config, exec *resilience.Executor) (*waterfall.Engine, error) {
	reg := provider.NewRegistry()
	if c.Prospeo.Key != "" {
		var opts []prospeo.Option
		if c.Prospeo.BaseURL != "" {
			opts = append(opts, prospeo.WithBaseURL(c.Prospeo.BaseURL))
		}
		reg.Register(provider.NewProspeo(prospeo.NewClient(c.Prospeo.Key, opts...)))
	}
	if c.Hunter.Key != "" {
		var opts []hunter.Option
		if c.Hunter.BaseURL != "" {
			opts = append(opts, hunter.WithBaseURL(c.Hunter.BaseURL))
		}
		reg.Register(provider.NewHunter(hunter.NewClient(c.Hunter.Key, opts...)))
	}

	wcfg := waterfall.DefaultConfig(c.Pipeline.ProviderOrder...)
	if c.Pipeline.WaterfallFile != "" {
		loaded, err := waterfall.LoadConfig(c.Pipeline.WaterfallFile)
		if err != nil {
			return nil, err
		}
		wcfg = loaded
	}
	if wcfg.Verifier == "" {
		wcfg.Verifier = c.Pipeline.Verifier
	}
	if wcfg.Verifier != "" && reg.Get(wcfg.Verifier) == nil {
		return nil, eris.Errorf("waterfall: verifier %q is not configured", wcfg.Verifier)
	}
	for _, name := range wcfg.Order {
		if reg.Get(name) == nil {
			return nil, eris.Errorf("waterfall: provider %q is not configured", name)
		}
	}
	return waterfall.NewEngine(wcfg, reg, exec), nil
}

// buildPersonalizer returns nil when neither website fetcher is configured,
// in which case the stage passes leads through untouched.
func buildPersonalizer(ctx context.Context, c *config.Config, exec *resilience.Executor) (*personalize.Personalizer, error) {
	if c.Firecrawl.Key == "" && c.Jina.Key == "" {
		return nil, nil
	}
	var scraper firecrawl.Client
	if c.Firecrawl.Key != "" {
		var opts []firecrawl.Option
		if c.Firecrawl.BaseURL != "" {
			opts = append(opts, firecrawl.WithBaseURL(c.Firecrawl.BaseURL))
		}
		scraper = firecrawl.NewClient(c.Firecrawl.Key, opts...)
	}
	var reader jina.Client
	if c.Jina.Key != "" {
		var opts []jina.Option
		if c.Jina.BaseURL != "" {
			opts = append(opts, jina.WithBaseURL(c.Jina.BaseURL))
		}
		reader = jina.NewClient(c.Jina.Key, opts...)
	}

	var analyzer gemini.Analyzer
	if c.Gemini.Key != "" {
		a, err := gemini.New(ctx, gemini.Config{APIKey: c.Gemini.Key, Model: c.Gemini.Model})
		if err != nil {
			return nil, err
		}
		analyzer = a
	}

	var writer anthropic.Client
	if c.Anthropic.Key != "" {
		writer = anthropic.NewClient(c.Anthropic.Key)
	}

	return personalize.New(scraper, analyzer, writer, exec, personalize.Options{
		Model:     c.Anthropic.Model,
		MaxTokens: c.Anthropic.MaxTokens,
		Reader:    reader,
	}), nil
}

func newInstantly(c *config.Config) instantly.Client {
	var opts []instantly.Option
	if c.Instantly.BaseURL != "" {
		opts = append(opts, instantly.WithBaseURL(c.Instantly.BaseURL))
	}
	return instantly.NewClient(c.Instantly.Key, opts...)
}

// buildPusher adds CRM sync when pipeline.sync_crm is on and Salesforce
// credentials are complete.
func buildPusher(c *config.Config, exec *resilience.Executor, gate pushing.Checker) (*pushing.Pusher, error) {
	var opts []pushing.Option
	if c.Pipeline.SyncCRM {
		if !c.Salesforce.Configured() {
			return nil, eris.New("pipeline.sync_crm is on but salesforce credentials are incomplete")
		}
		crm, err := connectSalesforce(c.Salesforce)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pushing.WithCRM(crm))
	}
	return pushing.New(newInstantly(c), exec, gate, opts...), nil
}

func connectSalesforce(sc config.SalesforceConfig) (salesforce.Client, error) {
	pem, err := os.ReadFile(sc.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce key")
	}
	return salesforce.Connect(salesforce.Creds{
		LoginURL:  sc.LoginURL,
		Username:  sc.Username,
		ClientID:  sc.ClientID,
		RSAKeyPEM: string(pem),
	})
}

func newMonitor(c *config.Config) *monitoring.Monitor {
	return monitoring.NewMonitor(monitoring.Thresholds{
		BounceCeiling:      c.Health.BounceCeiling,
		UnsubscribeCeiling: c.Health.UnsubscribeCeiling,
		ReplyFloor:         c.Health.ReplyFloor,
		MinSample:          c.Health.MinSample,
	})
}

// healthCheck binds the monitor to live campaign analytics.
func healthCheck(c *config.Config, exec *resilience.Executor) pipeline.HealthCheck {
	mon := newMonitor(c)
	src := monitoring.NewCollector(newInstantly(c), exec)
	return func(ctx context.Context, campaignID string) (monitoring.Verdict, error) {
		return mon.Check(ctx, src, campaignID)
	}
}

func openArtifacts(ctx context.Context, c *config.Config) (*artifact.Writer, error) {
	return artifact.Open(ctx, artifact.Options{
		BucketURL: c.Artifact.BucketURL,
		Dir:       c.Artifact.Dir,
		Prefix:    c.Artifact.Prefix,
		Compress:  c.Artifact.Compress,
	})
}

// buildPipeline assembles a pipeline for mode. Push collaborators are only
// built for live runs.
func buildPipeline(ctx context.Context, e *env, mode model.RunMode, limit int) (*pipeline.Pipeline, func(), error) {
	enricher, err := buildEnricher(cfg, e.exec)
	if err != nil {
		return nil, nil, err
	}
	arts, err := openArtifacts(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := arts.Close(); err != nil {
			zap.L().Warn("close artifact bucket", zap.Error(err))
		}
	}

	deps := pipeline.Deps{
		Scraper:   buildScraper(cfg, e.exec),
		Gate:      e.gate,
		Enricher:  enricher,
		Store:     e.store,
		Artifacts: arts,
		Costs:     e.tracker,
	}
	pers, err := buildPersonalizer(ctx, cfg, e.exec)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if pers != nil {
		deps.Personalizer = pers
	}
	if mode == model.ModeLive {
		pusher, err := buildPusher(cfg, e.exec, e.gate)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.Pusher = pusher
		deps.Health = healthCheck(cfg, e.exec)
	}

	if limit <= 0 {
		limit = cfg.Pipeline.MaxResultsPerQuery
	}
	p := pipeline.New(deps, pipeline.Options{
		Concurrency:   cfg.Pipeline.Concurrency,
		Limit:         limit,
		ProviderOrder: enricher.Order(),
		RunTimeout:    time.Duration(cfg.Pipeline.RunTimeoutSecs) * time.Second,
	})
	return p, cleanup, nil
}
