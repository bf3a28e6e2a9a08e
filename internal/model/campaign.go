package model

import "time"

// CampaignMetrics are aggregate send counts for one campaign. Rates are
// always derived from the counts.
type CampaignMetrics struct {
	CampaignID   string    `json:"campaign_id"`
	Sent         int       `json:"sent"`
	Bounced      int       `json:"bounced"`
	Unsubscribed int       `json:"unsubscribed"`
	Replied      int       `json:"replied"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
}

func (m CampaignMetrics) rate(n int) float64 {
	if m.Sent <= 0 {
		return 0
	}
	return float64(n) / float64(m.Sent)
}

// BounceRate is bounces over sends.
func (m CampaignMetrics) BounceRate() float64 { return m.rate(m.Bounced) }

// UnsubscribeRate is unsubscribes over sends.
func (m CampaignMetrics) UnsubscribeRate() float64 { return m.rate(m.Unsubscribed) }

// ReplyRate is replies over sends.
func (m CampaignMetrics) ReplyRate() float64 { return m.rate(m.Replied) }
