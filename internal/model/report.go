package model

import "time"

// StageStatus represents the outcome of one pipeline stage.
type StageStatus string

const (
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
	StageStatusSkipped  StageStatus = "skipped"
)

// StageResult records one stage's outcome inside a pipeline report.
type StageResult struct {
	Name     string      `json:"name"`
	Status   StageStatus `json:"status"`
	Duration int64       `json:"duration_ms"`
	Count    int         `json:"count"`
	Error    string      `json:"error,omitempty"`
}

// SkippedStudent records a per-student consolidation that was isolated
// rather than allowed to abort the batch.
type SkippedStudent struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

// PipelineReport is the aggregate outcome of one pipeline run, returned to
// callers and persisted for audit. Every rejection and skip is enumerated so
// no failure is silent.
type PipelineReport struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	RawCount          int `json:"raw_count"`
	ValidatedCount    int `json:"validated_count"`
	RejectedCount     int `json:"rejected_count"`
	MetricCount       int `json:"metric_count"`
	InsightCount      int `json:"insight_count"`
	NarrativeCount    int `json:"narrative_count"`
	ConsolidatedCount int `json:"consolidated_count"`

	RejectsByKind map[RejectKind]int `json:"rejects_by_kind,omitempty"`
	Stages        []StageResult      `json:"stages"`
	Skipped       []SkippedStudent   `json:"skipped_students,omitempty"`
	Errors        []string           `json:"errors,omitempty"`
}
