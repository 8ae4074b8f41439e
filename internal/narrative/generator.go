// Package narrative wraps the text-generation collaborator behind a strict
// request/response contract. Responses must satisfy the schema exactly or the
// call counts as failed; callers substitute the deterministic templated
// fallback and the core pipeline never blocks on or fails from this layer.
package narrative

import (
	"context"

	"github.com/edusignal/exam-intel/internal/model"
)

// OverviewRequest carries everything the collaborator may cite for a
// cross-subject student overview. It must not invent data beyond it.
type OverviewRequest struct {
	StudentID string                  `json:"student_id"`
	Grade     int                     `json:"grade"`
	Insights  []model.SubjectInsight  `json:"insights"`
	Metrics   []model.SubjectMetric   `json:"metrics"`
	Patterns  []model.Pattern         `json:"patterns,omitempty"`
}

// Overview is the strict response schema for a student overview.
type Overview struct {
	OverallSummary string                `json:"overall_summary"`
	KeyStrengths   string                `json:"key_strengths"`
	AreasToImprove string                `json:"areas_to_improve"`
	NextSteps      string                `json:"recommended_next_steps"`
	Confidence     model.ConfidenceLevel `json:"confidence_note"`
}

// subjectSummary is the strict response schema for a per-subject summary.
type subjectSummary struct {
	PerformanceSummary string                `json:"performance_summary"`
	ImprovementPlan    string                `json:"improvement_plan"`
	MotivationNote     string                `json:"motivation_note"`
	Confidence         model.ConfidenceLevel `json:"confidence_note"`
}

// Generator is the text-generation collaborator. Implementations must bound
// every call with a timeout; an error return means the caller should fall
// back, never abort.
type Generator interface {
	SubjectSummary(ctx context.Context, in model.SubjectInsight) (*model.SubjectNarrative, error)
	StudentOverview(ctx context.Context, req OverviewRequest) (*Overview, error)
	Provider() string
}

func validConfidence(c model.ConfidenceLevel) bool {
	switch c {
	case model.ConfidenceLow, model.ConfidenceMedium, model.ConfidenceHigh:
		return true
	}
	return false
}

func (s subjectSummary) valid() bool {
	return s.PerformanceSummary != "" &&
		s.ImprovementPlan != "" &&
		s.MotivationNote != "" &&
		validConfidence(s.Confidence)
}

func (o Overview) valid() bool {
	return o.OverallSummary != "" &&
		o.KeyStrengths != "" &&
		o.AreasToImprove != "" &&
		o.NextSteps != "" &&
		validConfidence(o.Confidence)
}
