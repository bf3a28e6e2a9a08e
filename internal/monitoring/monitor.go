// Package monitoring evaluates campaign health, gates pushes on it, and
// alerts a chat webhook when a campaign degrades.
package monitoring

import (
	"fmt"
	"time"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// Level is the health verdict kind.
type Level string

const (
	LevelHealthy Level = "healthy"
	LevelWarn    Level = "warn"
	LevelBlock   Level = "block"
)

// Thresholds are expressed as fractions (0.02 == 2%).
type Thresholds struct {
	BounceCeiling      float64
	UnsubscribeCeiling float64
	ReplyFloor         float64
	// MinSample is the send count below which the reply floor is ignored.
	MinSample int
}

// DefaultThresholds returns the industry cold-email limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BounceCeiling:      0.02,
		UnsubscribeCeiling: 0.02,
		ReplyFloor:         0.03,
		MinSample:          500,
	}
}

// Verdict is the outcome of one evaluation.
type Verdict struct {
	Level       Level                 `json:"level"`
	Reasons     []string              `json:"reasons,omitempty"`
	Metrics     model.CampaignMetrics `json:"metrics"`
	EvaluatedAt time.Time             `json:"evaluated_at"`
}

// Blocked reports whether pushes must halt.
func (v Verdict) Blocked() bool { return v.Level == LevelBlock }

// Monitor evaluates campaign metrics against thresholds.
type Monitor struct {
	th  Thresholds
	now func() time.Time
}

// NewMonitor creates a Monitor. Zero thresholds fall back to the defaults.
func NewMonitor(th Thresholds) *Monitor {
	d := DefaultThresholds()
	if th.BounceCeiling <= 0 {
		th.BounceCeiling = d.BounceCeiling
	}
	if th.UnsubscribeCeiling <= 0 {
		th.UnsubscribeCeiling = d.UnsubscribeCeiling
	}
	if th.ReplyFloor < 0 {
		th.ReplyFloor = 0
	}
	if th.MinSample <= 0 {
		th.MinSample = d.MinSample
	}
	return &Monitor{th: th, now: time.Now}
}

// Thresholds returns the effective thresholds.
func (m *Monitor) Thresholds() Thresholds { return m.th }

// Evaluate is pure over m. Ceilings are exclusive: a rate equal to its
// ceiling passes. Any block reason outranks warnings. No sends is healthy.
func (m *Monitor) Evaluate(metrics model.CampaignMetrics) Verdict {
	v := Verdict{Level: LevelHealthy, Metrics: metrics, EvaluatedAt: m.now().UTC()}
	if metrics.Sent <= 0 {
		return v
	}

	var block, warn []string
	if r := metrics.BounceRate(); r > m.th.BounceCeiling {
		block = append(block, fmt.Sprintf("bounce rate %.2f%% exceeds ceiling %.2f%%", r*100, m.th.BounceCeiling*100))
	}
	if r := metrics.UnsubscribeRate(); r > m.th.UnsubscribeCeiling {
		block = append(block, fmt.Sprintf("unsubscribe rate %.2f%% exceeds ceiling %.2f%%", r*100, m.th.UnsubscribeCeiling*100))
	}
	if metrics.Sent >= m.th.MinSample {
		if r := metrics.ReplyRate(); r < m.th.ReplyFloor {
			warn = append(warn, fmt.Sprintf("reply rate %.2f%% below floor %.2f%% after %d sends", r*100, m.th.ReplyFloor*100, metrics.Sent))
		}
	}

	switch {
	case len(block) > 0:
		v.Level = LevelBlock
		v.Reasons = append(block, warn...)
	case len(warn) > 0:
		v.Level = LevelWarn
		v.Reasons = warn
	}
	return v
}

// Unavailable is the verdict used when metrics cannot be fetched. Pushing
// blind into a campaign of unknown health is treated as a block.
func (m *Monitor) Unavailable(campaignID string, err error) Verdict {
	return Verdict{
		Level:       LevelBlock,
		Reasons:     []string{fmt.Sprintf("campaign metrics unavailable: %v", err)},
		Metrics:     model.CampaignMetrics{CampaignID: campaignID},
		EvaluatedAt: m.now().UTC(),
	}
}
