package model

// SubjectNarrative is the text-generation collaborator's prose rendering of a
// SubjectInsight. The response either satisfies the strict schema (all text
// fields non-empty, a recognized confidence level) or is replaced by the
// deterministic templated fallback; Fallback records which path produced it.
type SubjectNarrative struct {
	StudentID string `json:"student_id"`
	Grade     int    `json:"grade"`
	Subject   string `json:"subject"`

	PerformanceSummary string `json:"performance_summary"`
	ImprovementPlan    string `json:"improvement_plan"`
	MotivationNote     string `json:"motivation_note"`

	Confidence ConfidenceLevel `json:"confidence_note"`
	Provider   string          `json:"provider"`
	Fallback   bool            `json:"fallback"`
}
