package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/doc-intake/internal/model"
	"github.com/sells-group/doc-intake/internal/store"
)

// collectLimit bounds how many recent runs one snapshot reads.
const collectLimit = 1000

// Snapshot is a point-in-time view of recent intake runs.
type Snapshot struct {
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	FailRate     float64 `json:"fail_rate"`

	// Complete runs with at least one degraded node.
	RunsDegraded int `json:"runs_degraded"`

	EmailsSent      int     `json:"emails_sent"`
	EmailsFailed    int     `json:"emails_failed"`
	EmailFailRate   float64 `json:"email_fail_rate"`
	CostUSD         float64 `json:"cost_usd"`
	AvgTokensPerRun int     `json:"avg_tokens_per_run"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector summarizes recent runs from the store.
type Collector struct {
	store store.Store
	now   func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st, now: time.Now}
}

// Collect builds a Snapshot of the runs created within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{LookbackHours: lookbackHours, CollectedAt: now}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListRuns(ctx, store.RunFilter{Limit: collectLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	var totalTokens int
	for _, r := range runs {
		// ListRuns is newest first.
		if r.CreatedAt.Before(cutoff) {
			break
		}
		snap.RunsTotal++

		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}

		if r.Result == nil {
			continue
		}
		if len(r.Result.Degraded) > 0 {
			snap.RunsDegraded++
		}
		for _, o := range r.Result.Outcomes {
			if o.Success {
				snap.EmailsSent++
			} else {
				snap.EmailsFailed++
			}
		}
		snap.CostUSD += r.Result.TokenUsage.Cost
		totalTokens += r.Result.TokenUsage.InputTokens + r.Result.TokenUsage.OutputTokens
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if emails := snap.EmailsSent + snap.EmailsFailed; emails > 0 {
		snap.EmailFailRate = float64(snap.EmailsFailed) / float64(emails)
	}
	if snap.RunsTotal > 0 {
		snap.AvgTokensPerRun = totalTokens / snap.RunsTotal
	}
	return snap, nil
}
