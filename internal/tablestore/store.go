// Package tablestore is the sheet-like persistence collaborator: named
// tables supporting read-all, overwrite-on-run replace, append, and
// upsert-by-key. Each pipeline stage is the sole writer of its output table.
package tablestore

import (
	"context"

	"github.com/edusignal/exam-intel/internal/model"
)

// Table names shared by both backends.
const (
	TableRawRecords         = "raw_exam_records"
	TableValidated          = "validated_results"
	TableRejected           = "rejected_records"
	TableAnalytics          = "subject_analytics"
	TableInsights           = "subject_insights"
	TableSummaries          = "subject_summaries"
	TableConsolidatedLatest = "student_consolidated_latest"
	TableConsolidatedHist   = "student_consolidated_history"
	TablePipelineRuns       = "pipeline_runs"
)

// Store defines the persistence interface for the exam intelligence
// pipeline. Replace* methods overwrite the whole table in one transaction
// (overwrite-on-run); Append* methods only add rows; the latest
// consolidation is upserted by student_id with last-write-wins.
type Store interface {
	// Raw ingestion
	AppendRawRecords(ctx context.Context, records []model.ExamRecord) error
	ListRawRecords(ctx context.Context) ([]model.ExamRecord, error)

	// Validator output
	ReplaceValidated(ctx context.Context, records []model.ValidatedRecord) error
	ListValidated(ctx context.Context) ([]model.ValidatedRecord, error)
	ReplaceRejects(ctx context.Context, rejects []model.RejectedRecord) error
	ListRejects(ctx context.Context) ([]model.RejectedRecord, error)

	// Analyzer output
	ReplaceMetrics(ctx context.Context, metrics []model.SubjectMetric) error
	ListMetrics(ctx context.Context) ([]model.SubjectMetric, error)

	// Insight engine output
	ReplaceInsights(ctx context.Context, insights []model.SubjectInsight) error
	ListInsights(ctx context.Context) ([]model.SubjectInsight, error)

	// Narrative collaborator output
	ReplaceNarratives(ctx context.Context, narratives []model.SubjectNarrative) error
	ListNarratives(ctx context.Context) ([]model.SubjectNarrative, error)

	// Consolidations: latest is upserted, history is append-only.
	UpsertConsolidatedLatest(ctx context.Context, c model.StudentConsolidation) error
	GetConsolidatedLatest(ctx context.Context, studentID string) (*model.StudentConsolidation, error)
	ListConsolidatedLatest(ctx context.Context) ([]model.StudentConsolidation, error)
	AppendConsolidatedHistory(ctx context.Context, c model.StudentConsolidation) error
	ListConsolidatedHistory(ctx context.Context, studentID string) ([]model.StudentConsolidation, error)

	// Run reports
	SaveRunReport(ctx context.Context, report model.PipelineReport) error
	ListRunReports(ctx context.Context, limit int) ([]model.PipelineReport, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
