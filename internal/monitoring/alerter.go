package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/doc-intake/internal/config"
)

// AlertType names the threshold an alert tripped.
type AlertType string

const (
	AlertRunFailureRate   AlertType = "run_failure_rate"
	AlertEmailFailureRate AlertType = "email_failure_rate"
	AlertCostOverrun      AlertType = "cost_overrun"
)

// minSample is the number of finished runs or emails below which rate
// alerts stay quiet.
const minSample = 5

// Alert is the JSON body posted to the webhook.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// rule inspects a snapshot and reports whether its threshold tripped.
type rule func(cfg config.MonitoringConfig, s *Snapshot) (Alert, bool)

var rules = []rule{runFailureRule, emailFailureRule, costRule}

func runFailureRule(cfg config.MonitoringConfig, s *Snapshot) (Alert, bool) {
	finished := s.RunsComplete + s.RunsFailed
	if cfg.FailureRateThreshold <= 0 || finished < minSample || s.FailRate <= cfg.FailureRateThreshold {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertRunFailureRate,
		Severity: "high",
		Message: fmt.Sprintf("%d of %d intake runs failed in the last %dh (%.1f%%, limit %.1f%%)",
			s.RunsFailed, finished, s.LookbackHours, s.FailRate*100, cfg.FailureRateThreshold*100),
		Details: map[string]any{"failed": s.RunsFailed, "finished": finished, "rate": s.FailRate},
	}, true
}

func emailFailureRule(cfg config.MonitoringConfig, s *Snapshot) (Alert, bool) {
	attempted := s.EmailsSent + s.EmailsFailed
	if cfg.EmailFailureRateThreshold <= 0 || attempted < minSample || s.EmailFailRate <= cfg.EmailFailureRateThreshold {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertEmailFailureRate,
		Severity: "medium",
		Message: fmt.Sprintf("%d of %d client emails failed in the last %dh (%.1f%%, limit %.1f%%)",
			s.EmailsFailed, attempted, s.LookbackHours, s.EmailFailRate*100, cfg.EmailFailureRateThreshold*100),
		Details: map[string]any{"failed": s.EmailsFailed, "attempted": attempted, "rate": s.EmailFailRate},
	}, true
}

func costRule(cfg config.MonitoringConfig, s *Snapshot) (Alert, bool) {
	if cfg.CostThresholdUSD <= 0 || s.CostUSD <= cfg.CostThresholdUSD {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertCostOverrun,
		Severity: "high",
		Message: fmt.Sprintf("Claude spend $%.2f over %d runs in the last %dh is above $%.2f",
			s.CostUSD, s.RunsTotal, s.LookbackHours, cfg.CostThresholdUSD),
		Details: map[string]any{"cost_usd": s.CostUSD, "limit_usd": cfg.CostThresholdUSD},
	}, true
}

// Alerter applies the threshold rules and delivers alerts to a webhook.
type Alerter struct {
	cfg  config.MonitoringConfig
	http *http.Client
}

// NewAlerter builds an Alerter. Thresholds left at zero are disabled.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{cfg: cfg, http: &http.Client{Timeout: 10 * time.Second}}
}

// Evaluate returns the alerts tripped by snap, in rule order.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var out []Alert
	ts := time.Now().UTC()
	for _, r := range rules {
		if alert, ok := r(a.cfg, snap); ok {
			alert.Timestamp = ts
			out = append(out, alert)
		}
	}
	return out
}

// SendAlerts posts each alert to the webhook and reports how many were
// accepted. Delivery failures are logged, not returned.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" {
		return 0
	}
	var delivered int
	for _, alert := range alerts {
		err := a.post(ctx, alert)
		if err == nil {
			delivered++
			continue
		}
		zap.L().Warn("monitoring: alert not delivered",
			zap.String("alert", string(alert.Type)),
			zap.Error(err),
		)
	}
	return delivered
}

func (a *Alerter) post(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrapf(err, "monitoring: encode %s alert", alert.Type)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: post webhook")
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return eris.Errorf("monitoring: webhook answered %s", resp.Status)
	}
	return nil
}
