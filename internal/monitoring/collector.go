package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/pkg/instantly"
)

// MetricsSource fetches aggregate metrics for a campaign.
type MetricsSource interface {
	CampaignMetrics(ctx context.Context, campaignID string) (model.CampaignMetrics, error)
}

// Collector reads campaign analytics from Instantly through the retry layer.
type Collector struct {
	client instantly.Client
	exec   *resilience.Executor
	now    func() time.Time
}

// NewCollector creates a Collector.
func NewCollector(client instantly.Client, exec *resilience.Executor) *Collector {
	return &Collector{client: client, exec: exec, now: time.Now}
}

// CampaignMetrics implements MetricsSource. The window covers the campaign
// lifetime as reported by the summary endpoint.
func (c *Collector) CampaignMetrics(ctx context.Context, campaignID string) (model.CampaignMetrics, error) {
	if campaignID == "" {
		return model.CampaignMetrics{}, eris.New("monitoring: campaign id is required")
	}
	s, err := resilience.Execute(ctx, c.exec, resilience.Call{
		Provider:  "instantly",
		Operation: "campaign_analytics",
		Units:     1,
	}, func(ctx context.Context) (*instantly.CampaignSummary, error) {
		s, err := c.client.CampaignSummary(ctx, campaignID)
		return s, resilience.Classify(err)
	})
	if err != nil {
		return model.CampaignMetrics{}, eris.Wrapf(err, "monitoring: fetch metrics for %s", campaignID)
	}
	return model.CampaignMetrics{
		CampaignID:   campaignID,
		Sent:         s.Contacted,
		Bounced:      s.Bounced,
		Unsubscribed: s.Unsubscribed,
		Replied:      s.LeadsWhoReplied,
		WindowEnd:    c.now().UTC(),
	}, nil
}

// Check fetches metrics for campaignID and evaluates them. A fetch failure
// yields the Unavailable verdict together with the error.
func (m *Monitor) Check(ctx context.Context, src MetricsSource, campaignID string) (Verdict, error) {
	metrics, err := src.CampaignMetrics(ctx, campaignID)
	if err != nil {
		return m.Unavailable(campaignID, err), err
	}
	return m.Evaluate(metrics), nil
}
