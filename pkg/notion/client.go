// Package notion reads queued search jobs from a Notion database and writes
// run results back to them.
package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Notion allows an average of three requests per second per integration.
const defaultRPS = 3

// Client is the slice of the Notion API the job queue needs.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

type throttledClient struct {
	api     *notionapi.Client
	limiter *rate.Limiter
}

// NewClient returns a Client for the integration token. Calls are paced at
// the Notion rate limit.
func NewClient(token string) Client {
	return &throttledClient{
		api:     notionapi.NewClient(notionapi.Token(token)),
		limiter: rate.NewLimiter(defaultRPS, 1),
	}
}

func (c *throttledClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "notion: throttle")
	}
	resp, err := c.api.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
	return resp, eris.Wrapf(err, "notion: query database %s", dbID)
}

func (c *throttledClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "notion: throttle")
	}
	page, err := c.api.Page.Update(ctx, notionapi.PageID(pageID), req)
	return page, eris.Wrapf(err, "notion: update page %s", pageID)
}
