package notion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Job statuses on the search-queue database.
const (
	StatusQueued  = "Queued"
	StatusRunning = "Running"
	StatusDone    = "Done"
	StatusFailed  = "Failed"
)

// SearchJob is one queued scrape query.
type SearchJob struct {
	PageID     string
	Query      string
	CampaignID string
	Limit      int
}

// JobResult is written back to the job page when a run finishes.
type JobResult struct {
	Status  string
	RunID   string
	Scraped int
	Pushed  int
	Cost    float64
}

// QueuedJobs returns every page with Status = "Queued", following result
// cursors. Pages without a Query title are skipped.
func QueuedJobs(ctx context.Context, c Client, dbID string) ([]SearchJob, error) {
	filter := notionapi.PropertyFilter{
		Property: "Status",
		Status:   &notionapi.StatusFilterCondition{Equals: StatusQueued},
	}

	var jobs []SearchJob
	var cursor notionapi.Cursor
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "notion: query queued jobs")
		}
		resp, err := c.QueryDatabase(ctx, dbID, &notionapi.DatabaseQueryRequest{
			Filter:      filter,
			StartCursor: cursor,
		})
		if err != nil {
			return nil, eris.Wrap(err, "notion: query queued jobs")
		}
		for _, p := range resp.Results {
			if j := parseJobPage(p); j.Query != "" {
				jobs = append(jobs, j)
			}
		}
		if !resp.HasMore {
			return jobs, nil
		}
		cursor = resp.NextCursor
	}
}

func parseJobPage(p notionapi.Page) SearchJob {
	j := SearchJob{PageID: string(p.ID)}
	if tp, ok := p.Properties["Query"].(*notionapi.TitleProperty); ok {
		j.Query = plainText(tp.Title)
	}
	if rtp, ok := p.Properties["Campaign"].(*notionapi.RichTextProperty); ok {
		j.CampaignID = plainText(rtp.RichText)
	}
	if np, ok := p.Properties["Limit"].(*notionapi.NumberProperty); ok {
		j.Limit = int(np.Number)
	}
	return j
}

// MarkJob sets the job status and, for finished jobs, the run result.
func MarkJob(ctx context.Context, c Client, pageID string, res JobResult) error {
	now := notionapi.Date(time.Now())
	props := notionapi.Properties{
		"Status": notionapi.StatusProperty{
			Status: notionapi.Status{Name: res.Status},
		},
		"Last Run": notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &now},
		},
	}
	if res.RunID != "" {
		props["Run ID"] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: res.RunID}},
			},
		}
		props["Scraped"] = notionapi.NumberProperty{Number: float64(res.Scraped)}
		props["Pushed"] = notionapi.NumberProperty{Number: float64(res.Pushed)}
		props["Cost"] = notionapi.NumberProperty{Number: res.Cost}
	}

	if _, err := c.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: props}); err != nil {
		return eris.Wrap(err, fmt.Sprintf("notion: mark job %s", pageID))
	}
	return nil
}

func plainText(rt []notionapi.RichText) string {
	var b strings.Builder
	for _, r := range rt {
		b.WriteString(r.PlainText)
	}
	return strings.TrimSpace(b.String())
}
