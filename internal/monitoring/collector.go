// Package monitoring summarizes run-log history for operator-facing status.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sarbstats/econ-cli/internal/model"
	"github.com/sarbstats/econ-cli/internal/pipeline"
)

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	RunFailRate  float64 `json:"run_fail_rate"`

	// Record counts aggregated across completed runs in the window.
	Landed             int `json:"landed"`
	LandedMalformed    int `json:"landed_malformed"`
	Validated          int `json:"validated"`
	ValidationRejected int `json:"validation_rejected"`
	Annotated          int `json:"annotated"`

	LatestSnapshotDate *time.Time `json:"latest_snapshot_date,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLogQuerier abstracts the run-log methods the collector needs.
type RunLogQuerier interface {
	ListAll(ctx context.Context) ([]pipeline.RunEntry, error)
}

// Collector gathers metrics from the run log.
type Collector struct {
	runLog RunLogQuerier
}

// NewCollector creates a new metrics collector.
func NewCollector(runLog RunLogQuerier) *Collector {
	return &Collector{runLog: runLog}
}

// Collect gathers a snapshot of pipeline metrics over the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	entries, err := c.runLog.ListAll(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	for _, e := range entries {
		if e.StartedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		switch e.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}

		if e.SnapshotDate != nil {
			if snap.LatestSnapshotDate == nil || e.SnapshotDate.After(*snap.LatestSnapshotDate) {
				snap.LatestSnapshotDate = e.SnapshotDate
			}
		}

		if e.Report == nil {
			continue
		}
		if land := e.Report.StageFor(model.StageLand); land != nil {
			snap.Landed += land.Accepted
			snap.LandedMalformed += land.Rejected
		}
		if val := e.Report.StageFor(model.StageValidate); val != nil {
			snap.Validated += val.Accepted
			snap.ValidationRejected += val.Rejected
		}
		if e.Report.Annotated {
			snap.Annotated++
		}
	}

	finished := snap.RunsComplete + snap.RunsFailed
	if finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}

	return snap, nil
}
