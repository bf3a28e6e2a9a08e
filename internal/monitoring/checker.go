package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Checker evaluates campaigns on an interval and alerts on warn or block.
type Checker struct {
	source    MetricsSource
	monitor   *Monitor
	alerter   *Alerter
	campaigns []string
	interval  time.Duration
}

// NewChecker creates a background health checker.
func NewChecker(source MetricsSource, monitor *Monitor, alerter *Alerter, campaigns []string, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Checker{
		source:    source,
		monitor:   monitor,
		alerter:   alerter,
		campaigns: campaigns,
		interval:  interval,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting campaign health checker",
		zap.Duration("interval", c.interval),
		zap.Strings("campaigns", c.campaigns),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("campaign health checker stopped")
			return
		case <-ticker.C:
			c.CheckOnce(ctx)
		}
	}
}

// CheckOnce evaluates every campaign once, sends alerts for the unhealthy
// ones, and returns the verdicts in campaign order.
func (c *Checker) CheckOnce(ctx context.Context) []Verdict {
	log := zap.L().With(zap.String("component", "monitoring.checker"))

	verdicts := make([]Verdict, 0, len(c.campaigns))
	var alerts []Alert
	for _, id := range c.campaigns {
		v, err := c.monitor.Check(ctx, c.source, id)
		if err != nil {
			log.Error("monitoring: failed to collect metrics", zap.String("campaign_id", id), zap.Error(err))
		}
		verdicts = append(verdicts, v)
		alerts = append(alerts, AlertsFor(v)...)

		log.Info("monitoring: campaign evaluated",
			zap.String("campaign_id", id),
			zap.String("level", string(v.Level)),
			zap.Int("sent", v.Metrics.Sent),
			zap.Float64("bounce_rate", v.Metrics.BounceRate()),
			zap.Float64("reply_rate", v.Metrics.ReplyRate()),
		)
	}

	if len(alerts) > 0 {
		c.alerter.Send(ctx, alerts)
	}
	return verdicts
}
