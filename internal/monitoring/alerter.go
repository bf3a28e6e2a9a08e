package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Alert is one message about a degraded campaign.
type Alert struct {
	Level      Level     `json:"level"`
	CampaignID string    `json:"campaign_id"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// AlertsFor turns a non-healthy verdict into alerts, one per reason.
func AlertsFor(v Verdict) []Alert {
	if v.Level == LevelHealthy {
		return nil
	}
	alerts := make([]Alert, 0, len(v.Reasons))
	for _, r := range v.Reasons {
		alerts = append(alerts, Alert{
			Level:      v.Level,
			CampaignID: v.Metrics.CampaignID,
			Message:    r,
			Timestamp:  v.EvaluatedAt,
		})
	}
	return alerts
}

// Alerter posts alerts to a Slack-compatible incoming webhook.
type Alerter struct {
	webhookURL string
	client     *http.Client
}

// NewAlerter creates an Alerter. An empty URL disables sending.
func NewAlerter(webhookURL string) *Alerter {
	return &Alerter{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Send delivers alerts as a single message and reports whether it was sent.
func (a *Alerter) Send(ctx context.Context, alerts []Alert) bool {
	if a.webhookURL == "" || len(alerts) == 0 {
		return false
	}
	if err := a.post(ctx, formatAlerts(alerts)); err != nil {
		zap.L().Error("monitoring: failed to send alerts",
			zap.Int("count", len(alerts)),
			zap.Error(err),
		)
		return false
	}
	zap.L().Info("monitoring: alerts sent", zap.Int("count", len(alerts)))
	return true
}

func formatAlerts(alerts []Alert) string {
	lines := make([]string, 0, len(alerts))
	for _, al := range alerts {
		icon := ":warning:"
		if al.Level == LevelBlock {
			icon = ":rotating_light:"
		}
		lines = append(lines, fmt.Sprintf("%s [%s] campaign %s: %s", icon, strings.ToUpper(string(al.Level)), al.CampaignID, al.Message))
	}
	return strings.Join(lines, "\n")
}

func (a *Alerter) post(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Notify posts a free-form message to the webhook. It is a no-op when no
// webhook is configured.
func (a *Alerter) Notify(ctx context.Context, text string) error {
	if a.webhookURL == "" {
		return nil
	}
	return a.post(ctx, text)
}
