// Package scrape turns search queries into sanitized, deduplicated leads
// using business-listing sources.
package scrape

import (
	"context"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// Source returns raw business listings for one search query.
type Source interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]model.Lead, error)
}
