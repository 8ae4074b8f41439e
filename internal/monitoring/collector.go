// Package monitoring watches recent pipeline runs and raises webhook alerts
// when data quality or run health degrades.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/edusignal/exam-intel/internal/model"
	"github.com/edusignal/exam-intel/internal/tablestore"
)

// MetricsSnapshot holds a point-in-time view of pipeline health over the
// most recent runs.
type MetricsSnapshot struct {
	RunsTotal  int `json:"runs_total"`
	RunsFailed int `json:"runs_failed"`

	RawTotal        int     `json:"raw_total"`
	RejectedTotal   int     `json:"rejected_total"`
	RejectRate      float64 `json:"reject_rate"`
	SkippedStudents int     `json:"skipped_students"`

	LastRunID     string    `json:"last_run_id,omitempty"`
	LastRunErrors int       `json:"last_run_errors"`
	LookbackRuns  int       `json:"lookback_runs"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers run health metrics from the store.
type Collector struct {
	store tablestore.Store
}

// NewCollector creates a Collector over the given store.
func NewCollector(st tablestore.Store) *Collector {
	return &Collector{store: st}
}

// Collect builds a snapshot from the most recent lookback runs.
func (c *Collector) Collect(ctx context.Context, lookbackRuns int) (*MetricsSnapshot, error) {
	if lookbackRuns <= 0 {
		lookbackRuns = 10
	}

	reports, err := c.store.ListRunReports(ctx, lookbackRuns)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list run reports")
	}

	snap := &MetricsSnapshot{
		LookbackRuns: lookbackRuns,
		CollectedAt:  time.Now().UTC(),
	}

	for _, r := range reports {
		snap.RunsTotal++
		if runFailed(r) {
			snap.RunsFailed++
		}
		snap.RawTotal += r.RawCount
		snap.RejectedTotal += r.RejectedCount
		snap.SkippedStudents += len(r.Skipped)
	}

	if snap.RawTotal > 0 {
		snap.RejectRate = float64(snap.RejectedTotal) / float64(snap.RawTotal)
	}
	if len(reports) > 0 {
		// ListRunReports returns newest first.
		snap.LastRunID = reports[0].RunID
		snap.LastRunErrors = len(reports[0].Errors)
	}

	return snap, nil
}

func runFailed(r model.PipelineReport) bool {
	for _, s := range r.Stages {
		if s.Status == model.StageStatusFailed {
			return true
		}
	}
	return false
}
