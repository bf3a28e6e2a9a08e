package scrape

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
)

// QueryFailure records a query no source could serve.
type QueryFailure struct {
	Query string
	Err   error
}

// Result is the outcome of scraping a batch of queries.
type Result struct {
	Leads    []model.Lead
	Failures []QueryFailure
}

// Chain tries sources in priority order for each query, returning the
// first that yields listings.
type Chain struct {
	sources []Source
}

// NewChain creates a Chain. Sources are tried in the given order.
func NewChain(sources ...Source) *Chain {
	return &Chain{sources: sources}
}

// Search runs one query through the chain. An empty result from a source
// is not a failure; the next source is only tried on error. A fatal error
// such as a rejected credential ends the chain.
func (c *Chain) Search(ctx context.Context, query string, limit int) ([]model.Lead, error) {
	if len(c.sources) == 0 {
		return nil, eris.New("scrape: no sources configured")
	}
	var lastErr error
	for _, s := range c.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		leads, err := s.Search(ctx, query, limit)
		if err == nil {
			return leads, nil
		}
		if len(leads) > 0 {
			zap.L().Warn("scrape: source returned partial results",
				zap.String("source", s.Name()),
				zap.String("query", query),
				zap.Int("results", len(leads)),
				zap.Error(err),
			)
			return leads, nil
		}
		if resilience.IsFatal(err) {
			return nil, eris.Wrapf(err, "scrape: %s", s.Name())
		}
		zap.L().Debug("scrape: source failed, trying next",
			zap.String("source", s.Name()),
			zap.String("query", query),
			zap.Error(err),
		)
		lastErr = err
	}
	return nil, eris.Wrapf(lastErr, "scrape: all sources failed for %q", query)
}

// SearchAll runs every query with bounded concurrency, then sanitizes and
// deduplicates the listings. Leads keep the order of their queries. A
// fatal query error cancels the queries still running.
func (c *Chain) SearchAll(ctx context.Context, queries []string, limit, maxConcurrent int) Result {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	perQuery := make([][]model.Lead, len(queries))
	errs := make([]error, len(queries))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for i, q := range queries {
		g.Go(func() error {
			perQuery[i], errs[i] = c.Search(gCtx, q, limit)
			if resilience.IsFatal(errs[i]) {
				return errs[i]
			}
			return nil
		})
	}
	_ = g.Wait()

	var (
		all      []model.Lead
		failures []QueryFailure
	)
	for i, leads := range perQuery {
		if errs[i] != nil {
			failures = append(failures, QueryFailure{Query: queries[i], Err: errs[i]})
			continue
		}
		for _, l := range leads {
			all = append(all, Sanitize(l))
		}
	}
	return Result{Leads: Dedupe(all), Failures: failures}
}
