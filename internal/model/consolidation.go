package model

import "time"

// Pattern is a recurring issue surfaced across at least two of a student's
// subjects. A single-subject issue is reported as subject-specific, never as
// a pattern.
type Pattern struct {
	RootCause string   `json:"root_cause"`
	Subjects  []string `json:"subjects"`
	Urgency   Urgency  `json:"urgency"`
}

// StudentConsolidation is the cross-subject synthesis of one student's
// insights. The same value is upserted into student_consolidated_latest and
// appended to student_consolidated_history; only the write discipline differs.
type StudentConsolidation struct {
	StudentID    string `json:"student_id"`
	Grade        int    `json:"grade"`
	GenerationID string `json:"generation_id"`

	OverallSummary   string `json:"overall_summary"`
	KeyStrengths     string `json:"key_strengths"`
	ImprovementAreas string `json:"areas_to_improve"`
	NextSteps        string `json:"recommended_next_steps"`

	Patterns         []Pattern `json:"patterns,omitempty"`
	StrongSubjects   []string  `json:"strong_subjects,omitempty"`
	FocusSubjects    []string  `json:"focus_subjects,omitempty"`
	SubjectCount     int       `json:"subject_count"`
	InterventionNeed bool      `json:"teacher_intervention_needed"`

	Confidence  ConfidenceLevel `json:"confidence_note"`
	Provider    string          `json:"provider"`
	Fallback    bool            `json:"fallback"`
	GeneratedAt time.Time       `json:"generated_at"`
}
