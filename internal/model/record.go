package model

import "time"

// ExamDateLayout is the canonical calendar-date format for validated records.
const ExamDateLayout = "2006-01-02"

// ExamType distinguishes practice exams from graded ones.
type ExamType string

const (
	ExamTypeMock ExamType = "mock"
	ExamTypeReal ExamType = "real"
)

// ExamRecord is a raw, untrusted row from an ingestion source. All fields are
// kept as strings until the validator has parsed and range-checked them; a raw
// record carries no invariants at all.
type ExamRecord struct {
	StudentID     string `json:"student_id"`
	Grade         string `json:"grade"`
	Subject       string `json:"subject"`
	ExamID        string `json:"exam_id"`
	ExamType      string `json:"exam_type"`
	AttemptNumber string `json:"attempt_number"`
	Score         string `json:"score"`
	MaxScore      string `json:"max_score"`
	ExamDate      string `json:"exam_date"`
	SourceRow     int    `json:"source_row"` // 1-based row in the source file, for quarantine reports
}

// ValidatedRecord is an exam record that has passed every validation check.
// Created only by the validator and immutable once written.
type ValidatedRecord struct {
	StudentID string    `json:"student_id"`
	Grade     int       `json:"grade"`
	Subject   string    `json:"subject"`
	ExamID    string    `json:"exam_id"`
	ExamType  ExamType  `json:"exam_type"`
	Attempt   int       `json:"attempt_number"`
	Score     float64   `json:"score"`
	MaxScore  float64   `json:"max_score"`
	ExamDate  time.Time `json:"exam_date"`
	Seq       int       `json:"seq"` // ingestion order, tie-break for same-date exams
}

// DateString renders the exam date in the canonical storage format.
func (r ValidatedRecord) DateString() string {
	return r.ExamDate.Format(ExamDateLayout)
}

// RejectKind classifies why a raw record was quarantined.
type RejectKind string

const (
	RejectMissingField    RejectKind = "missing_field"
	RejectBadGrade        RejectKind = "bad_grade"
	RejectBadExamType     RejectKind = "bad_exam_type"
	RejectBadAttempt      RejectKind = "bad_attempt"
	RejectBadMaxScore     RejectKind = "bad_max_score"
	RejectScoreOutOfRange RejectKind = "score_out_of_range"
	RejectBadDate         RejectKind = "bad_date"
	RejectFutureDate      RejectKind = "future_date"
	RejectDuplicate       RejectKind = "duplicate"
)

// RejectedRecord pairs a raw record with the reason it failed validation.
// Rejected rows never reach validated_results; they land in the quarantine
// table so no failure is silent.
type RejectedRecord struct {
	Record ExamRecord `json:"record"`
	Kind   RejectKind `json:"kind"`
	Reason string     `json:"reason"`
}
