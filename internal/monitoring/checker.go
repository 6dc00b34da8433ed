package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/doc-intake/internal/config"
)

const (
	defaultCheckInterval = 5 * time.Minute
	defaultLookbackHours = 24
)

// Checker periodically collects a Snapshot, publishes it as gauges and
// sends any triggered alerts.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	metrics   *Metrics
	every     time.Duration
	lookback  int
	log       *zap.Logger
}

// NewChecker creates a background checker. metrics may be nil.
func NewChecker(collector *Collector, alerter *Alerter, metrics *Metrics, cfg config.MonitoringConfig) *Checker {
	c := &Checker{
		collector: collector,
		alerter:   alerter,
		metrics:   metrics,
		every:     time.Duration(cfg.CheckIntervalSecs) * time.Second,
		lookback:  cfg.LookbackWindowHours,
		log:       zap.L().Named("monitoring"),
	}
	if c.every <= 0 {
		c.every = defaultCheckInterval
	}
	if c.lookback <= 0 {
		c.lookback = defaultLookbackHours
	}
	return c
}

// Run checks once immediately and then every interval until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	c.log.Info("monitoring: checker started",
		zap.Duration("every", c.every),
		zap.Int("lookback_hours", c.lookback),
	)
	tick := time.NewTicker(c.every)
	defer tick.Stop()

	for {
		c.Check(ctx)
		select {
		case <-ctx.Done():
			c.log.Info("monitoring: checker stopped")
			return
		case <-tick.C:
		}
	}
}

// Check runs a single collect, evaluate and send cycle.
func (c *Checker) Check(ctx context.Context) {
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		c.log.Error("monitoring: snapshot failed", zap.Error(err))
		return
	}
	c.metrics.SetSnapshot(snap)

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		return
	}
	c.log.Info("monitoring: thresholds tripped",
		zap.Int("alerts", len(alerts)),
		zap.Int("delivered", c.alerter.SendAlerts(ctx, alerts)),
	)
}
