package monitoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/leadgen-cli/internal/model"
)

func TestEvaluate(t *testing.T) {
	m := NewMonitor(DefaultThresholds())

	tests := []struct {
		name    string
		metrics model.CampaignMetrics
		level   Level
		reasons int
	}{
		{"no sends", model.CampaignMetrics{}, LevelHealthy, 0},
		{"healthy", model.CampaignMetrics{Sent: 1000, Bounced: 10, Unsubscribed: 5, Replied: 50}, LevelHealthy, 0},
		{"bounce at ceiling passes", model.CampaignMetrics{Sent: 100, Bounced: 2}, LevelHealthy, 0},
		{"bounce above ceiling blocks", model.CampaignMetrics{Sent: 10000, Bounced: 201, Replied: 500}, LevelBlock, 1},
		{"unsubscribe above ceiling blocks", model.CampaignMetrics{Sent: 100, Unsubscribed: 3}, LevelBlock, 1},
		{"low reply below sample ignored", model.CampaignMetrics{Sent: 499}, LevelHealthy, 0},
		{"low reply at sample warns", model.CampaignMetrics{Sent: 500, Replied: 14}, LevelWarn, 1},
		{"reply at floor passes", model.CampaignMetrics{Sent: 1000, Replied: 30}, LevelHealthy, 0},
		{"block outranks warn", model.CampaignMetrics{Sent: 1000, Bounced: 50, Replied: 1}, LevelBlock, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := m.Evaluate(tt.metrics)
			assert.Equal(t, tt.level, v.Level)
			assert.Len(t, v.Reasons, tt.reasons)
			assert.Equal(t, tt.level == LevelBlock, v.Blocked())
		})
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	m := NewMonitor(DefaultThresholds())
	metrics := model.CampaignMetrics{CampaignID: "c1", Sent: 800, Bounced: 20, Replied: 10}

	a := m.Evaluate(metrics)
	b := m.Evaluate(metrics)
	assert.Equal(t, a.Level, b.Level)
	assert.Equal(t, a.Reasons, b.Reasons)
}

func TestNewMonitor_Defaults(t *testing.T) {
	m := NewMonitor(Thresholds{})
	assert.Equal(t, DefaultThresholds(), m.Thresholds())

	custom := NewMonitor(Thresholds{BounceCeiling: 0.05, UnsubscribeCeiling: 0.01, ReplyFloor: 0.02, MinSample: 100})
	assert.InDelta(t, 0.05, custom.Thresholds().BounceCeiling, 1e-9)
	assert.Equal(t, 100, custom.Thresholds().MinSample)

	v := custom.Evaluate(model.CampaignMetrics{Sent: 100, Bounced: 4, Replied: 1})
	assert.Equal(t, LevelWarn, v.Level)
}

func TestUnavailable(t *testing.T) {
	m := NewMonitor(DefaultThresholds())
	v := m.Unavailable("c1", assert.AnError)
	assert.True(t, v.Blocked())
	assert.Equal(t, "c1", v.Metrics.CampaignID)
	assert.Contains(t, v.Reasons[0], "metrics unavailable")
}
